package quic

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/quic-go/quic-go"
)

// Listener QUIC 监听器
type Listener struct {
	quicListener *quic.Listener
	addr         net.Addr
	closed       atomic.Bool
}

func newListener(ql *quic.Listener, addr net.Addr) *Listener {
	return &Listener{quicListener: ql, addr: addr}
}

// Accept 接受一个已完成握手的连接
//
// 握手失败的连接不会出现在这里。监听器关闭后返回 ErrListenerClosed。
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	if l.closed.Load() {
		return nil, ErrListenerClosed
	}

	qc, err := l.quicListener.Accept(ctx)
	if err != nil {
		if l.closed.Load() || errors.Is(err, quic.ErrServerClosed) || errors.Is(err, quic.ErrTransportClosed) {
			return nil, ErrListenerClosed
		}
		return nil, fmt.Errorf("accept: %w", err)
	}
	return newConn(qc, DirInbound, qc.ConnectionState().TLS.ServerName), nil
}

// Addr 返回监听地址
func (l *Listener) Addr() net.Addr {
	return l.addr
}

// Close 关闭监听器
func (l *Listener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.quicListener.Close()
}

// IsClosed 检查监听器是否已关闭
func (l *Listener) IsClosed() bool {
	return l.closed.Load()
}
