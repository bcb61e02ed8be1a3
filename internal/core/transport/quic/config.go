package quic

import (
	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-qsession/config"
)

// NewConfig 根据配置构造 quic.Config
//
// maxStreams 同时作为双向与单向入站流上限；0 表示使用 quic-go 默认值。
func NewConfig(c config.QUICConfig, maxStreams int) *quic.Config {
	return &quic.Config{
		HandshakeIdleTimeout:  c.HandshakeIdleTimeout.Duration(),
		MaxIdleTimeout:        c.MaxIdleTimeout.Duration(),
		KeepAlivePeriod:       c.KeepAlivePeriod.Duration(),
		MaxIncomingStreams:    int64(maxStreams),
		MaxIncomingUniStreams: int64(maxStreams),
	}
}
