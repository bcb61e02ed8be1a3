package identity

import "errors"

var (
	// ErrProviderUnavailable 加密提供者不可用（启动期致命错误）
	ErrProviderUnavailable = errors.New("crypto provider unavailable")

	// ErrFailedToGenerateKey 密钥生成失败
	ErrFailedToGenerateKey = errors.New("failed to generate key")

	// ErrFailedToCreateCertificate 证书生成失败
	ErrFailedToCreateCertificate = errors.New("failed to create certificate")
)
