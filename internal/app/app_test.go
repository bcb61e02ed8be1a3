package app

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-qsession/config"
	"github.com/dep2p/go-qsession/internal/core/exchange"
	"github.com/dep2p/go-qsession/internal/core/initiator"
	"github.com/dep2p/go-qsession/internal/core/listener"
	"github.com/dep2p/go-qsession/internal/core/metrics"
	"github.com/dep2p/go-qsession/internal/core/provider"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	require.NoError(t, config.ApplyPreset(cfg, config.PresetTest))
	return cfg
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestModule_Provides 测试模块提供的类型
func TestModule_Provides(t *testing.T) {
	var (
		p      provider.Provider
		reg    *prometheus.Registry
		m      *metrics.Metrics
		coord  *exchange.Coordinator
		runner *Runner
	)

	app := fxtest.New(t,
		Module(testConfig(t)),
		fx.Populate(&p, &reg, &m, &coord, &runner),
	)
	defer app.RequireStart().RequireStop()

	assert.Equal(t, provider.ECDSAP256().Name, p.Name)
	require.NotNil(t, reg)
	require.NotNil(t, m)
	require.NotNil(t, coord)
	require.NotNil(t, runner)
}

func TestModule_NilConfig(t *testing.T) {
	var cfg *config.Config
	app := fxtest.New(t, Module(nil), fx.Populate(&cfg))
	defer app.RequireStart().RequireStop()

	assert.Equal(t, config.NewConfig(), cfg)
}

// TestServeModule_Lifecycle 测试监听端随 fx 生命周期启动与关闭
func TestServeModule_Lifecycle(t *testing.T) {
	var (
		l     *listener.Listener
		coord *exchange.Coordinator
		m     *metrics.Metrics
	)
	cfg := testConfig(t)
	cfg.Listener.Name = "served"

	app := fxtest.New(t,
		Module(cfg),
		ServeModule(),
		fx.Populate(&l, &coord, &m),
	)
	app.RequireStart()

	require.NotNil(t, l.Addr())
	assert.Equal(t, "served", l.Name())

	ini, err := initiator.New("127.0.0.1:0")
	require.NoError(t, err)
	defer ini.Close()
	require.NoError(t, ini.TrustCert(l.Certificate()))

	ctx := testContext(t)
	conn, err := ini.Connect(ctx, l.Addr().String(), l.Hostname())
	require.NoError(t, err)
	response, err := coord.Converse(ctx, conn, []byte("Hello from client 0"))
	require.NoError(t, err)
	assert.Equal(t, "Hello from server served", string(response))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConnectionsAccepted))

	app.RequireStop()
	assert.ErrorIs(t, l.Serve(context.Background()), listener.ErrClosed)
}

func TestServeModule_MetricsServer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Addr = "127.0.0.1:0"

	app := fxtest.New(t, Module(cfg), ServeModule())
	app.RequireStart()
	app.RequireStop()
}

func TestServeModule_BindFailure(t *testing.T) {
	occupied, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	cfg := testConfig(t)
	cfg.Listener.Addr = occupied.LocalAddr().String()

	app := fx.New(Module(cfg), ServeModule(), fx.NopLogger)
	require.NoError(t, app.Err())

	err = app.Start(testContext(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind failed")
}

func TestRunFanout(t *testing.T) {
	fc := config.FanoutConfig{Listeners: 3, Initiators: 2, Host: "127.0.0.1", BasePort: 0}

	report, err := RunFanout(testContext(t), fc)
	require.NoError(t, err)
	require.NoError(t, report.Err())

	require.Len(t, report.Listeners, 3)
	require.Len(t, report.Results, 6)
	assert.Equal(t, 6, report.Succeeded())
	assert.Empty(t, report.ServeErrs)

	for _, res := range report.Results {
		assert.Equal(t, report.Listeners[res.Listener].Addr, res.Remote)
		assert.NotEmpty(t, res.Local)
		assert.Equal(t, fmt.Sprintf("Hello from server %d", res.Listener), string(res.Response))
	}
	for i := 0; i < fc.Initiators; i++ {
		for j := 0; j < fc.Listeners; j++ {
			res := report.Results[i*fc.Listeners+j]
			assert.Equal(t, i, res.Initiator)
			assert.Equal(t, j, res.Listener)
		}
	}
	assert.NotEqual(t, report.Listeners[0].Fingerprint, report.Listeners[1].Fingerprint)
}

func TestRunner_RunFanoutMetrics(t *testing.T) {
	var (
		runner *Runner
		m      *metrics.Metrics
	)
	cfg := testConfig(t)
	app := fxtest.New(t, Module(cfg), fx.Populate(&runner, &m))
	defer app.RequireStart().RequireStop()

	report, err := runner.RunFanout(testContext(t), cfg.Fanout)
	require.NoError(t, err)
	require.NoError(t, report.Err())

	total := float64(cfg.Fanout.Listeners * cfg.Fanout.Initiators)
	assert.Equal(t, total, testutil.ToFloat64(m.Exchanges.WithLabelValues(metrics.ResultOK)))
	assert.Equal(t, total, testutil.ToFloat64(m.Dials.WithLabelValues(metrics.ResultOK)))
	assert.Equal(t, total, testutil.ToFloat64(m.ConnectionsAccepted))
}

func TestRunFanout_BindConflict(t *testing.T) {
	occupied, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	port := occupied.LocalAddr().(*net.UDPAddr).Port
	fc := config.FanoutConfig{Listeners: 1, Initiators: 1, Host: "127.0.0.1", BasePort: port}

	_, err = RunFanout(testContext(t), fc)
	assert.ErrorIs(t, err, listener.ErrBind)
}

func TestRunner_InitiatorBindAddr(t *testing.T) {
	var runner *Runner
	cfg := testConfig(t)
	cfg.Initiator.BindAddr = "0.0.0.0:0"
	app := fxtest.New(t, Module(cfg), fx.Populate(&runner))
	defer app.RequireStart().RequireStop()

	report, err := runner.RunFanout(testContext(t), cfg.Fanout)
	require.NoError(t, err)
	require.NoError(t, report.Err())

	for _, res := range report.Results {
		host, _, err := net.SplitHostPort(res.Local)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0", host)
	}
}

func TestRunner_InitiatorBindConflict(t *testing.T) {
	occupied, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	var runner *Runner
	cfg := testConfig(t)
	cfg.Initiator.BindAddr = occupied.LocalAddr().String()
	cfg.Fanout.Initiators = 1
	app := fxtest.New(t, Module(cfg), fx.Populate(&runner))
	defer app.RequireStart().RequireStop()

	_, err = runner.RunFanout(testContext(t), cfg.Fanout)
	assert.ErrorIs(t, err, initiator.ErrBind)
}

func TestRunFanout_InvalidConfig(t *testing.T) {
	_, err := RunFanout(context.Background(), config.FanoutConfig{})
	assert.Error(t, err)
}

// syncBuffer 并发安全的输出缓冲
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServeSingle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- ServeSingle(ctx, testConfig(t), &out, false) }()

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "END CERTIFICATE")
	}, 10*time.Second, 20*time.Millisecond)
	assert.Contains(t, out.String(), "fingerprint ")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("ServeSingle 未在取消后返回")
	}
}

func TestFanoutReport_Err(t *testing.T) {
	r := &FanoutReport{Results: []FanoutResult{{}, {Initiator: 1, Listener: 0, Err: initiator.ErrUntrusted}}}
	assert.Equal(t, 1, r.Succeeded())
	assert.ErrorIs(t, r.Err(), initiator.ErrUntrusted)

	r.Results[1].Err = nil
	assert.NoError(t, r.Err())
}
