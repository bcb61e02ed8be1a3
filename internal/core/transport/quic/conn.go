package quic

import (
	"context"
	"crypto/x509"
	"fmt"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-qsession/internal/core/teardown"
)

// Direction 连接方向
type Direction int

const (
	// DirInbound 由对端发起
	DirInbound Direction = iota
	// DirOutbound 由本端发起
	DirOutbound
)

// String 返回方向名
func (d Direction) String() string {
	if d == DirOutbound {
		return "outbound"
	}
	return "inbound"
}

// Conn QUIC 连接
//
// 本端在该连接上打开或接受的每一条流都登记在 teardown 跟踪器中。
type Conn struct {
	quicConn  *quic.Conn
	direction Direction
	hostname  string
	tracker   *teardown.Conn
	opened    time.Time
}

func newConn(qc *quic.Conn, dir Direction, hostname string) *Conn {
	return &Conn{
		quicConn:  qc,
		direction: dir,
		hostname:  hostname,
		tracker:   teardown.NewConn(),
		opened:    time.Now(),
	}
}

// OpenStream 打开一条新的双向流
//
// 达到对端的并发流上限时阻塞直到有可用额度或 ctx 结束。
func (c *Conn) OpenStream(ctx context.Context) (*Stream, error) {
	if c.tracker.IsClosed() {
		return nil, teardown.ErrClosed
	}
	qs, err := c.quicConn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	return newStream(qs, c), nil
}

// AcceptStream 接受对端打开的双向流
func (c *Conn) AcceptStream(ctx context.Context) (*Stream, error) {
	qs, err := c.quicConn.AcceptStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("accept stream: %w", err)
	}
	return newStream(qs, c), nil
}

// Close 在全部流排空后正常关闭连接
//
// 任一流尚未排空时返回 teardown.ErrUnsafeClose，连接保持打开；
// 重复关闭返回 teardown.ErrClosed。
func (c *Conn) Close() error {
	if err := c.tracker.MarkClosed(); err != nil {
		return err
	}
	return c.quicConn.CloseWithError(CodeDone, "done")
}

// CanClose 检查 Close 当前是否会被允许
func (c *Conn) CanClose() error {
	return c.tracker.CanClose()
}

// Abort 以错误码立即关闭连接，不做排空检查
//
// 仅用于交换已经失败的出错路径。
func (c *Conn) Abort(code quic.ApplicationErrorCode, reason string) error {
	if !c.tracker.ForceClosed() {
		return nil
	}
	return c.quicConn.CloseWithError(code, reason)
}

// Context 返回连接上下文，连接关闭时取消，cause 为关闭原因
func (c *Conn) Context() context.Context {
	return c.quicConn.Context()
}

// CloseReason 返回连接关闭原因；连接仍打开时返回 nil
func (c *Conn) CloseReason() error {
	ctx := c.quicConn.Context()
	if ctx.Err() == nil {
		return nil
	}
	return context.Cause(ctx)
}

// IsClosed 本端是否已关闭该连接
func (c *Conn) IsClosed() bool {
	return c.tracker.IsClosed()
}

// RemoteAddr 返回对端地址
func (c *Conn) RemoteAddr() net.Addr {
	return c.quicConn.RemoteAddr()
}

// LocalAddr 返回本地地址
func (c *Conn) LocalAddr() net.Addr {
	return c.quicConn.LocalAddr()
}

// Direction 返回连接方向
func (c *Conn) Direction() Direction {
	return c.direction
}

// PeerHostname 返回握手时校验的主机名（出站）或对端请求的 SNI（入站）
func (c *Conn) PeerHostname() string {
	return c.hostname
}

// PeerCertificate 返回对端叶子证书；对端未出示证书时返回 nil
func (c *Conn) PeerCertificate() *x509.Certificate {
	certs := c.quicConn.ConnectionState().TLS.PeerCertificates
	if len(certs) == 0 {
		return nil
	}
	return certs[0]
}

// NegotiatedProtocol 返回 ALPN 协商结果
func (c *Conn) NegotiatedProtocol() string {
	return c.quicConn.ConnectionState().TLS.NegotiatedProtocol
}

// Streams 返回已登记流的数量
func (c *Conn) Streams() int {
	return c.tracker.Streams()
}

// Opened 返回连接建立时间
func (c *Conn) Opened() time.Time {
	return c.opened
}

// String 返回便于日志的描述
func (c *Conn) String() string {
	return fmt.Sprintf("%s %s<->%s", c.direction, c.LocalAddr(), c.RemoteAddr())
}
