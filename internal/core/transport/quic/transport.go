package quic

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-qsession/pkg/lib/log"
)

var logger = log.Logger("core/transport/quic")

// Endpoint QUIC 端点
//
// 持有一个 UDP socket 及其上的 quic.Transport。监听与拨号共用同一个
// socket；一个端点最多承载一个监听器。
type Endpoint struct {
	mu sync.Mutex

	udpConn       *net.UDPConn
	quicTransport *quic.Transport
	listener      *Listener
	closed        bool
}

// Bind 绑定本地 UDP 地址
//
// 端口为 0 时由系统分配，可通过 LocalAddr 获取实际地址。
func Bind(addr string) (*Endpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}

	logger.Debug("端点已绑定", "addr", conn.LocalAddr().String())
	return &Endpoint{
		udpConn:       conn,
		quicTransport: &quic.Transport{Conn: conn},
	}, nil
}

// LocalAddr 返回实际绑定地址
func (e *Endpoint) LocalAddr() net.Addr {
	return e.udpConn.LocalAddr()
}

// Listen 在端点上开始接受入站连接
func (e *Endpoint) Listen(tlsConf *tls.Config, conf *quic.Config) (*Listener, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEndpointClosed
	}
	if e.listener != nil {
		return nil, ErrAlreadyListening
	}

	ql, err := e.quicTransport.Listen(tlsConf, conf)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	e.listener = newListener(ql, e.udpConn.LocalAddr())
	return e.listener, nil
}

// Dial 向 raddr 发起握手
//
// tlsConf.ServerName 决定对端证书需要匹配的主机名。
func (e *Endpoint) Dial(ctx context.Context, raddr string, tlsConf *tls.Config, conf *quic.Config) (*Conn, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEndpointClosed
	}
	quicTransport := e.quicTransport
	e.mu.Unlock()

	udpAddr, err := net.ResolveUDPAddr("udp", raddr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", raddr, err)
	}

	qc, err := quicTransport.Dial(ctx, udpAddr, tlsConf, conf)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", raddr, err)
	}
	return newConn(qc, DirOutbound, tlsConf.ServerName), nil
}

// Close 关闭端点及其上的监听器与全部连接
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.listener != nil {
		e.listener.Close()
	}
	err := e.quicTransport.Close()
	// quic.Transport 不关闭外部传入的 socket
	if cerr := e.udpConn.Close(); err == nil {
		err = cerr
	}
	return err
}
