package quic

import (
	"context"
	"sync/atomic"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/logging"
)

// HandshakeFailureFunc 在入站连接于握手完成前结束时调用
//
// 这类连接不会出现在 Listener.Accept 中。err 为连接关闭原因。
type HandshakeFailureFunc func(err error)

// WithHandshakeFailures 为 conf 安装连接追踪器，上报握手失败的入站连接
//
// 服务端在握手完成时丢弃 Handshake 密钥，以此作为握手完成的标志；
// 关闭时仍未丢弃即视为握手失败。conf 会被原地修改并返回。
func WithHandshakeFailures(conf *quic.Config, fn HandshakeFailureFunc) *quic.Config {
	if fn == nil {
		return conf
	}
	conf.Tracer = func(_ context.Context, p logging.Perspective, _ quic.ConnectionID) *logging.ConnectionTracer {
		if p != logging.PerspectiveServer {
			return nil
		}
		var completed atomic.Bool
		return &logging.ConnectionTracer{
			DroppedEncryptionLevel: func(level logging.EncryptionLevel) {
				if level == logging.EncryptionHandshake {
					completed.Store(true)
				}
			},
			ClosedConnection: func(err error) {
				if !completed.Load() {
					fn(err)
				}
			},
		}
	}
	return conf
}
