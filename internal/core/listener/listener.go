// Package listener 实现会话层监听端
//
// 监听端在构造时生成自签名身份，绑定地址后接受任意数量的入站连接；
// 每个连接、每条流各由独立 goroutine 处理。单条流上的交换失败只记录
// 日志与指标，不影响其他流与 accept 循环。
//
// 监听端从不主动关闭连接：连接由发起端在全部流排空后关闭，发起端
// 遗留的连接由空闲超时回收。
package listener

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-qsession/internal/core/identity"
	"github.com/dep2p/go-qsession/internal/core/metrics"
	qtransport "github.com/dep2p/go-qsession/internal/core/transport/quic"
	"github.com/dep2p/go-qsession/pkg/lib/log"
)

var logger = log.Logger("core/listener")

// logSink 同时由 *slog.Logger 与 *log.LazyLogger 满足
type logSink interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Listener 会话层监听端
type Listener struct {
	id   uuid.UUID
	name string
	cfg  Config

	ident    *identity.Identity
	tlsConf  *tls.Config
	quicConf *quic.Config

	handler Handler
	metrics *metrics.Metrics
	log     logSink

	mu       sync.Mutex
	endpoint *qtransport.Endpoint
	ln       *qtransport.Listener
	closed   bool
	wg       sync.WaitGroup
}

// New 创建监听端并生成身份
//
// 加密提供者未安装时返回 identity.ErrProviderUnavailable。
func New(cfg Config, opts ...Option) (*Listener, error) {
	if cfg.MaxStreams <= 0 {
		cfg.MaxStreams = DefaultConfig().MaxStreams
	}
	if cfg.QUIC.ALPN == "" {
		cfg.QUIC.ALPN = DefaultConfig().QUIC.ALPN
	}

	ident, err := identity.Generate(cfg.Hostname)
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}

	id := uuid.New()
	name := cfg.Name
	if name == "" {
		name = id.String()
	}

	l := &Listener{
		id:       id,
		name:     name,
		cfg:      cfg,
		ident:    ident,
		tlsConf:  ident.ServerTLSConfig(cfg.QUIC.ALPN),
		quicConf: qtransport.NewConfig(cfg.QUIC, cfg.MaxStreams),
		log:      logger,
	}
	qtransport.WithHandshakeFailures(l.quicConf, l.handshakeFailed)
	l.handler = GreetingHandler(name)
	for _, opt := range opts {
		opt(l)
	}

	l.log.Debug("监听端已创建",
		"id", l.id.String(),
		"name", l.name,
		"hostname", ident.Hostname(),
		"fingerprint", log.TruncateID(ident.Fingerprint(), 16))
	return l, nil
}

// ID 返回监听端 ID
func (l *Listener) ID() uuid.UUID {
	return l.id
}

// Name 返回监听端名称
func (l *Listener) Name() string {
	return l.name
}

// Certificate 返回自签名证书（DER），用于带外分发
func (l *Listener) Certificate() []byte {
	return l.ident.Certificate()
}

// CertificatePEM 返回 PEM 编码的证书
func (l *Listener) CertificatePEM() []byte {
	return l.ident.CertificatePEM()
}

// Fingerprint 返回证书指纹
func (l *Listener) Fingerprint() string {
	return l.ident.Fingerprint()
}

// Hostname 返回证书绑定的主机名
func (l *Listener) Hostname() string {
	return l.ident.Hostname()
}

// Listen 绑定地址并开始接受握手
//
// 端口为 0 时由系统分配，返回实际地址。绑定失败返回 ErrBind。
func (l *Listener) Listen(addr string) (net.Addr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	if l.endpoint != nil {
		return nil, ErrAlreadyListening
	}

	ep, err := qtransport.Bind(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBind, err)
	}
	ln, err := ep.Listen(l.tlsConf, l.quicConf)
	if err != nil {
		ep.Close()
		return nil, fmt.Errorf("%w: %w", ErrBind, err)
	}

	l.endpoint = ep
	l.ln = ln
	l.log.Info("监听端开始监听", "name", l.name, "addr", ln.Addr().String())
	return ln.Addr(), nil
}

// Addr 返回监听地址，未监听时返回 nil
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Serve 运行 accept 循环直到 ctx 结束或监听端关闭
//
// ctx 结束时返回 ctx.Err()，监听端关闭时返回 ErrClosed。单个连接或
// 单条流的失败不会使 Serve 返回。ctx 同时约束全部连接与流的处理
// goroutine，连接本身在 Close 时随端点关闭。
func (l *Listener) Serve(ctx context.Context) error {
	l.mu.Lock()
	ln := l.ln
	closed := l.closed
	l.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if ln == nil {
		return ErrNotListening
	}

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, qtransport.ErrListenerClosed) {
				return ErrClosed
			}
			l.metrics.AcceptFailed()
			l.log.Warn("接受连接失败", "name", l.name, "error", err)
			continue
		}

		l.metrics.ConnectionAccepted()
		l.log.Info("接受新连接", "name", l.name, "remote", conn.RemoteAddr().String())

		if !l.spawn(func() { l.serveConn(ctx, conn) }) {
			conn.Abort(qtransport.CodeInternal, "listener closed")
			return ErrClosed
		}
	}
}

// ListenAndServe 绑定 addr 并服务，返回前关闭监听端
func (l *Listener) ListenAndServe(ctx context.Context, addr string) error {
	if _, err := l.Listen(addr); err != nil {
		return err
	}
	defer l.Close()
	return l.Serve(ctx)
}

// Close 关闭端点并等待全部处理 goroutine 退出
//
// 仍打开的连接随端点一同关闭。
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	ep := l.endpoint
	l.mu.Unlock()

	var err error
	if ep != nil {
		err = ep.Close()
	}
	l.wg.Wait()
	l.log.Debug("监听端已关闭", "name", l.name)
	return err
}

// handshakeFailed 记录未完成握手即结束的入站连接
func (l *Listener) handshakeFailed(err error) {
	l.metrics.AcceptFailed()
	l.log.Warn("入站握手失败", "name", l.name, "error", err)
}

// spawn 在监听端未关闭时启动受跟踪的 goroutine
func (l *Listener) spawn(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
	return true
}

// serveConn 接受连接上的流直到连接结束
func (l *Listener) serveConn(ctx context.Context, conn *qtransport.Conn) {
	remote := conn.RemoteAddr().String()
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			reason := conn.CloseReason()
			switch {
			case ctx.Err() != nil:
			case qtransport.IsPeerDone(reason):
				l.log.Debug("连接已由对端关闭", "name", l.name, "remote", remote, "streams", conn.Streams())
			case qtransport.IsIdleTimeout(reason):
				l.log.Info("连接空闲超时，已回收", "name", l.name, "remote", remote)
			default:
				l.log.Debug("连接结束", "name", l.name, "remote", remote, "error", err)
			}
			return
		}

		if !l.spawn(func() { l.serveStream(ctx, stream) }) {
			stream.Reset(quic.StreamErrorCode(qtransport.CodeInternal))
			return
		}
	}
}
