package initiator

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-qsession/config"
	"github.com/dep2p/go-qsession/internal/core/listener"
	"github.com/dep2p/go-qsession/internal/core/metrics"
	"github.com/dep2p/go-qsession/internal/core/provider"
	"github.com/dep2p/go-qsession/internal/core/truststore"
)

func TestMain(m *testing.M) {
	provider.MustInstallDefault()
	os.Exit(m.Run())
}

func startListener(t *testing.T, hostname string) *listener.Listener {
	t.Helper()

	cfg := listener.DefaultConfig()
	cfg.Hostname = hostname
	l, err := listener.New(cfg)
	require.NoError(t, err)
	_, err = l.Listen("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		l.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-served
		l.Close()
	})
	return l
}

func newInitiator(t *testing.T, opts ...Option) *Initiator {
	t.Helper()
	i, err := New("127.0.0.1:0", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { i.Close() })
	return i
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNew_BindFailure(t *testing.T) {
	i := newInitiator(t)

	_, err := New(i.LocalAddr().String())
	assert.ErrorIs(t, err, ErrBind)
}

func TestConnect_RequiresTrust(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	l := startListener(t, "localhost")
	i := newInitiator(t, WithMetrics(m))
	ctx := testContext(t)

	_, err := i.Connect(ctx, l.Addr().String(), "localhost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUntrusted)
	assert.Empty(t, i.Connections())

	require.NoError(t, i.TrustCert(l.Certificate()))
	conn, err := i.Connect(ctx, l.Addr().String(), "localhost")
	require.NoError(t, err)
	assert.Equal(t, "localhost", conn.PeerHostname())
	assert.Equal(t, l.Certificate(), conn.PeerCertificate().Raw)
	assert.Equal(t, config.DefaultALPN, conn.NegotiatedProtocol())

	conns := i.Connections()
	require.Len(t, conns, 1)
	assert.Same(t, conn, conns[0])

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Dials.WithLabelValues(metrics.ResultUntrusted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Dials.WithLabelValues(metrics.ResultOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TrustedCertificates))
}

func TestConnect_HostnameMismatch(t *testing.T) {
	l := startListener(t, "alpha.test")
	i := newInitiator(t)
	require.NoError(t, i.TrustCert(l.Certificate()))

	_, err := i.Connect(testContext(t), l.Addr().String(), "beta.test")
	assert.ErrorIs(t, err, ErrUntrusted)

	conn, err := i.Connect(testContext(t), l.Addr().String(), "alpha.test")
	require.NoError(t, err)
	assert.Equal(t, "alpha.test", conn.PeerHostname())
}

func TestConnect_TrustsOnlyAddedCertificates(t *testing.T) {
	trusted := startListener(t, "localhost")
	stranger := startListener(t, "localhost")
	i := newInitiator(t)
	require.NoError(t, i.TrustCert(trusted.Certificate()))

	_, err := i.Connect(testContext(t), stranger.Addr().String(), "localhost")
	assert.ErrorIs(t, err, ErrUntrusted)

	_, err = i.Connect(testContext(t), trusted.Addr().String(), "localhost")
	assert.NoError(t, err)
}

func TestConnect_DialFailure(t *testing.T) {
	// 已关闭的端口上没有监听端
	l, err := listener.New(listener.DefaultConfig())
	require.NoError(t, err)
	addr, err := l.Listen("127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, l.Close())

	i := newInitiator(t, WithDialTimeout(500*time.Millisecond))
	require.NoError(t, i.TrustCert(l.Certificate()))

	_, err = i.Connect(context.Background(), addr.String(), "localhost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDial)
	assert.NotErrorIs(t, err, ErrUntrusted)
}

func TestConnect_EmptyHostname(t *testing.T) {
	i := newInitiator(t)
	_, err := i.Connect(context.Background(), "127.0.0.1:1", "")
	assert.ErrorIs(t, err, ErrEmptyHostname)
}

func TestTrustCert_Idempotent(t *testing.T) {
	l := startListener(t, "localhost")
	i := newInitiator(t)

	require.NoError(t, i.TrustCert(l.Certificate()))
	require.NoError(t, i.TrustCert(l.Certificate()))
	assert.Equal(t, 1, i.TrustStore().Len())
	assert.True(t, i.TrustStore().Contains(l.Certificate()))
	assert.Equal(t, []string{l.Fingerprint()}, i.TrustStore().Fingerprints())

	err := i.TrustCert([]byte("not a certificate"))
	assert.ErrorIs(t, err, truststore.ErrInvalidCertificate)
	assert.Equal(t, 1, i.TrustStore().Len())

	_, err = i.Connect(testContext(t), l.Addr().String(), "localhost")
	assert.NoError(t, err)
}

func TestTrustCert_ConcurrentWithConnect(t *testing.T) {
	const n = 4
	listeners := make([]*listener.Listener, n)
	for j := range listeners {
		listeners[j] = startListener(t, "localhost")
	}
	i := newInitiator(t)
	ctx := testContext(t)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for j, l := range listeners {
		wg.Add(1)
		go func(j int, l *listener.Listener) {
			defer wg.Done()
			if err := i.TrustCert(l.Certificate()); err != nil {
				errs[j] = err
				return
			}
			_, errs[j] = i.Connect(ctx, l.Addr().String(), "localhost")
		}(j, l)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, n, i.TrustStore().Len())
	assert.Len(t, i.Connections(), n)
}

func TestClose(t *testing.T) {
	l := startListener(t, "localhost")
	i, err := New("127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, i.TrustCert(l.Certificate()))

	conn, err := i.Connect(testContext(t), l.Addr().String(), "localhost")
	require.NoError(t, err)

	require.NoError(t, i.Close())
	assert.NoError(t, i.Close())

	_, err = i.Connect(testContext(t), l.Addr().String(), "localhost")
	assert.ErrorIs(t, err, ErrClosed)

	select {
	case <-conn.Context().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("端点关闭后连接仍打开")
	}
}

func TestFromConfig(t *testing.T) {
	assert.Nil(t, FromConfig(nil))

	cfg := config.NewConfig()
	cfg.Initiator.DialTimeout = config.Duration(time.Second)
	o := defaultOptions()
	for _, opt := range FromConfig(cfg) {
		opt(&o)
	}
	assert.Equal(t, time.Second, o.dialTimeout)
	assert.Equal(t, cfg.QUIC, o.quic)
}

func TestConnect_ALPNMismatchIsNotTrustFailure(t *testing.T) {
	l := startListener(t, "localhost")

	qc := config.DefaultQUICConfig()
	qc.ALPN = "other/1"
	i := newInitiator(t, WithQUIC(qc))
	require.NoError(t, i.TrustCert(l.Certificate()))

	_, err := i.Connect(testContext(t), l.Addr().String(), "localhost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDial)
	assert.NotErrorIs(t, err, ErrUntrusted)
}
