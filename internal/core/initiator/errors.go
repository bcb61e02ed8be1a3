package initiator

import "errors"

var (
	// ErrBind 绑定本地地址失败（启动期错误）
	ErrBind = errors.New("initiator: bind failed")

	// ErrUntrusted 对端证书不在信任库中或主机名不匹配
	ErrUntrusted = errors.New("initiator: peer not trusted")

	// ErrDial 非信任原因的拨号失败（地址不可达、超时等）
	ErrDial = errors.New("initiator: dial failed")

	// ErrEmptyHostname 未指定期望的主机名
	ErrEmptyHostname = errors.New("initiator: expected hostname is empty")

	// ErrClosed 发起端已关闭
	ErrClosed = errors.New("initiator: closed")
)
