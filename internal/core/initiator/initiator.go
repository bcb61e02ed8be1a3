// Package initiator 实现会话层发起端
//
// 发起端绑定一个本地 UDP 端点，持有只增不减的信任库，并向监听端发起
// 连接。建立的连接由发起端保留并负责关闭。
//
// TrustCert 与 Connect 通过读写锁串行化：Connect 只在锁内取当前 TLS
// 配置的快照，握手期间不持锁，因此 TrustCert 不会被进行中的握手阻塞，
// 而快照之后才加入的证书只对后续 Connect 生效。
package initiator

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-qsession/internal/core/metrics"
	qtransport "github.com/dep2p/go-qsession/internal/core/transport/quic"
	"github.com/dep2p/go-qsession/internal/core/truststore"
	"github.com/dep2p/go-qsession/pkg/lib/log"
)

var logger = log.Logger("core/initiator")

type logSink interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Initiator 会话层发起端
type Initiator struct {
	endpoint    *qtransport.Endpoint
	alpn        string
	quicConf    *quic.Config
	dialTimeout time.Duration
	metrics     *metrics.Metrics
	log         logSink

	trustMu sync.RWMutex
	store   *truststore.Store
	tlsConf *tls.Config

	connMu sync.Mutex
	conns  []*qtransport.Conn
	closed bool
}

// New 绑定 bindAddr 并创建信任库为空的发起端
//
// 绑定失败返回 ErrBind。
func New(bindAddr string, opts ...Option) (*Initiator, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ep, err := qtransport.Bind(bindAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBind, err)
	}

	store := truststore.New()
	i := &Initiator{
		endpoint:    ep,
		alpn:        o.quic.ALPN,
		quicConf:    qtransport.NewConfig(o.quic, 0),
		dialTimeout: o.dialTimeout,
		metrics:     o.metrics,
		log:         logger,
		store:       store,
		tlsConf:     store.ClientTLSConfig(o.quic.ALPN),
	}
	if o.logger != nil {
		i.log = o.logger
	}

	i.log.Debug("发起端已创建", "addr", ep.LocalAddr().String())
	return i, nil
}

// TrustCert 信任一张 DER 编码证书
//
// 幂等：重复信任同一证书不报错。成功返回后发起的 Connect 都会使用
// 包含该证书的 TLS 配置。
func (i *Initiator) TrustCert(der []byte) error {
	i.trustMu.Lock()
	defer i.trustMu.Unlock()

	added, err := i.store.Add(der)
	if err != nil {
		return fmt.Errorf("trust certificate: %w", err)
	}
	if !added {
		return nil
	}

	i.tlsConf = i.store.ClientTLSConfig(i.alpn)
	i.metrics.CertificateTrusted()
	i.log.Debug("已信任证书", "certs", i.store.Len())
	return nil
}

// Connect 连接 remoteAddr，要求对端证书受信任且匹配 expectedHostname
//
// 信任失败返回包装 ErrUntrusted 的错误，其他失败包装 ErrDial。
// 成功建立的连接被保留，调用方负责在全部流排空后关闭它。
func (i *Initiator) Connect(ctx context.Context, remoteAddr, expectedHostname string) (*qtransport.Conn, error) {
	if expectedHostname == "" {
		return nil, ErrEmptyHostname
	}
	if i.isClosed() {
		return nil, ErrClosed
	}

	i.trustMu.RLock()
	tlsConf := i.tlsConf.Clone()
	i.trustMu.RUnlock()
	tlsConf.ServerName = expectedHostname

	if i.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.dialTimeout)
		defer cancel()
	}

	conn, err := i.endpoint.Dial(ctx, remoteAddr, tlsConf, i.quicConf)
	if err != nil {
		if qtransport.IsTrustError(err) {
			i.metrics.Dialed(metrics.ResultUntrusted)
			i.log.Warn("对端不受信任", "remote", remoteAddr, "hostname", expectedHostname, "error", err)
			return nil, fmt.Errorf("%w: %s (%s): %w", ErrUntrusted, remoteAddr, expectedHostname, err)
		}
		i.metrics.Dialed(metrics.ResultError)
		i.log.Warn("拨号失败", "remote", remoteAddr, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrDial, remoteAddr, err)
	}

	i.connMu.Lock()
	if i.closed {
		i.connMu.Unlock()
		conn.Abort(qtransport.CodeAborted, "initiator closed")
		return nil, ErrClosed
	}
	i.conns = append(i.conns, conn)
	i.connMu.Unlock()

	i.metrics.Dialed(metrics.ResultOK)
	i.log.Info("连接已建立", "remote", conn.RemoteAddr().String(), "hostname", expectedHostname)
	return conn, nil
}

// Connections 返回已建立连接的副本
func (i *Initiator) Connections() []*qtransport.Conn {
	i.connMu.Lock()
	defer i.connMu.Unlock()
	return append([]*qtransport.Conn(nil), i.conns...)
}

// TrustStore 返回信任库的只读视图
func (i *Initiator) TrustStore() TrustView {
	return TrustView{store: i.store}
}

// LocalAddr 返回本地绑定地址
func (i *Initiator) LocalAddr() net.Addr {
	return i.endpoint.LocalAddr()
}

// Close 关闭端点
//
// 尚未关闭的连接随端点一同被强制关闭。
func (i *Initiator) Close() error {
	i.connMu.Lock()
	if i.closed {
		i.connMu.Unlock()
		return nil
	}
	i.closed = true
	i.connMu.Unlock()

	return i.endpoint.Close()
}

func (i *Initiator) isClosed() bool {
	i.connMu.Lock()
	defer i.connMu.Unlock()
	return i.closed
}

// TrustView 信任库只读视图
type TrustView struct {
	store *truststore.Store
}

// Len 返回受信任证书数量
func (v TrustView) Len() int {
	return v.store.Len()
}

// Contains 检查证书是否受信任
func (v TrustView) Contains(der []byte) bool {
	return v.store.Contains(der)
}

// Fingerprints 返回受信任证书的指纹
func (v TrustView) Fingerprints() []string {
	return v.store.Fingerprints()
}
