package listener

import "errors"

var (
	// ErrBind 绑定监听地址失败（启动期错误）
	ErrBind = errors.New("listener: bind failed")

	// ErrNotListening 尚未调用 Listen
	ErrNotListening = errors.New("listener: not listening")

	// ErrAlreadyListening 已经调用过 Listen
	ErrAlreadyListening = errors.New("listener: already listening")

	// ErrClosed 监听端已关闭
	ErrClosed = errors.New("listener: closed")
)
