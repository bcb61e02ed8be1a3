package quic

import (
	"crypto/tls"
	"crypto/x509"
	"errors"

	"github.com/quic-go/quic-go"
)

var (
	// ErrEndpointClosed 端点已关闭
	ErrEndpointClosed = errors.New("endpoint closed")

	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("listener closed")

	// ErrAlreadyListening 端点上已有监听器
	ErrAlreadyListening = errors.New("endpoint already listening")
)

// 应用层关闭码
const (
	// CodeDone 正常完成，发起端在全部流排空后使用
	CodeDone quic.ApplicationErrorCode = 0
	// CodeProtocolError 对端发送了无法解析的数据
	CodeProtocolError quic.ApplicationErrorCode = 1
	// CodeAborted 交换失败后中止
	CodeAborted quic.ApplicationErrorCode = 2
	// CodeInternal 本地处理出错
	CodeInternal quic.ApplicationErrorCode = 3
)

// 证书相关的 TLS alert（RFC 8446 §6.2），QUIC 中编码为 0x100 + alert
const (
	alertBadCertificate         = 42
	alertUnsupportedCertificate = 43
	alertCertificateRevoked     = 44
	alertCertificateExpired     = 45
	alertCertificateUnknown     = 46
	alertUnknownCA              = 48
)

// IsTrustError 判断握手是否因证书不受信任或主机名不匹配而失败
//
// 只识别证书校验失败。ALPN 不匹配等其他握手错误返回 false。
func IsTrustError(err error) bool {
	if err == nil {
		return false
	}
	var unknownAuthority x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var invalid x509.CertificateInvalidError
	var verify *tls.CertificateVerificationError
	if errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostname) ||
		errors.As(err, &invalid) ||
		errors.As(err, &verify) {
		return true
	}

	var tErr *quic.TransportError
	if !errors.As(err, &tErr) || !tErr.ErrorCode.IsCryptoError() {
		return false
	}
	switch tErr.ErrorCode - 0x100 {
	case alertBadCertificate, alertUnsupportedCertificate, alertCertificateRevoked,
		alertCertificateExpired, alertCertificateUnknown, alertUnknownCA:
		return true
	}
	return false
}

// IsPeerDone 判断连接是否由对端以 CodeDone 正常关闭
func IsPeerDone(err error) bool {
	var appErr *quic.ApplicationError
	return errors.As(err, &appErr) && appErr.Remote && appErr.ErrorCode == CodeDone
}

// IsIdleTimeout 判断连接是否因空闲超时被回收
func IsIdleTimeout(err error) bool {
	var idle *quic.IdleTimeoutError
	return errors.As(err, &idle)
}

// IsStreamReset 判断错误是否来自对端重置/停止流
func IsStreamReset(err error) bool {
	var sErr *quic.StreamError
	return errors.As(err, &sErr) && sErr.Remote
}
