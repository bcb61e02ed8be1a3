package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-qsession/config"
	"github.com/dep2p/go-qsession/internal/core/exchange"
	"github.com/dep2p/go-qsession/internal/core/initiator"
	"github.com/dep2p/go-qsession/internal/core/listener"
	"github.com/dep2p/go-qsession/internal/core/metrics"
	"github.com/dep2p/go-qsession/internal/core/provider"
	qtransport "github.com/dep2p/go-qsession/internal/core/transport/quic"
)

// Runner 运行多对多场景
type Runner struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	coord   *exchange.Coordinator
}

// NewRunner 创建 Runner
//
// provider 参数只用于声明依赖：构造监听端之前必须已安装加密提供者。
func NewRunner(_ provider.Provider, cfg *config.Config, m *metrics.Metrics, coord *exchange.Coordinator) *Runner {
	return &Runner{cfg: cfg, metrics: m, coord: coord}
}

// ListenerInfo 场景中一个监听端的概要
type ListenerInfo struct {
	Name        string
	Addr        string
	Fingerprint string
}

// FanoutResult 一对 (发起端, 监听端) 的交换结果
type FanoutResult struct {
	Initiator int
	Listener  int
	Local     string // 发起端绑定地址
	Remote    string
	Response  []byte
	Err       error
}

// FanoutReport 多对多场景报告
type FanoutReport struct {
	Listeners []ListenerInfo
	// Results 按 Initiator*len(Listeners)+Listener 排列
	Results []FanoutResult
	// ServeErrs 取消以外原因导致的监听端服务错误
	ServeErrs []error
}

// Succeeded 返回成功的交换数
func (r *FanoutReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Err 合并全部交换失败与服务错误
func (r *FanoutReport) Err() error {
	var err error
	for _, res := range r.Results {
		if res.Err != nil {
			err = multierr.Append(err, fmt.Errorf("initiator %d -> listener %d: %w", res.Initiator, res.Listener, res.Err))
		}
	}
	return multierr.Combine(append([]error{err}, r.ServeErrs...)...)
}

// RunFanout 使用默认配置运行多对多场景
func RunFanout(ctx context.Context, fc config.FanoutConfig) (*FanoutReport, error) {
	p, err := installProvider()
	if err != nil {
		return nil, err
	}
	cfg := config.NewConfig()
	cfg.Fanout = fc
	m := metrics.New(prometheus.NewRegistry())
	return NewRunner(p, cfg, m, newCoordinator(m)).RunFanout(ctx, fc)
}

// RunFanout 启动 fc.Listeners 个监听端与 fc.Initiators 个发起端
//
// 每个发起端信任全部监听端证书并连接全部监听端，发起端 i 发送
// "Hello from client {i}"，全部交换并发进行。监听端或发起端无法绑定时
// 返回错误；单个连接的失败只记录在报告中。
func (r *Runner) RunFanout(ctx context.Context, fc config.FanoutConfig) (*FanoutReport, error) {
	if err := fc.Validate(); err != nil {
		return nil, err
	}

	listeners, err := r.startListeners(fc)
	if err != nil {
		return nil, err
	}

	report := &FanoutReport{
		Listeners: make([]ListenerInfo, len(listeners)),
		Results:   make([]FanoutResult, fc.Initiators*len(listeners)),
	}
	for j, l := range listeners {
		report.Listeners[j] = ListenerInfo{Name: l.Name(), Addr: l.Addr().String(), Fingerprint: l.Fingerprint()}
	}

	serveCtx, stopServe := context.WithCancel(ctx)
	serveErrs := make([]error, len(listeners))
	var serving errgroup.Group
	for j, l := range listeners {
		serving.Go(func() error {
			err := l.Serve(serveCtx)
			if serveCtx.Err() == nil && !errors.Is(err, listener.ErrClosed) {
				serveErrs[j] = fmt.Errorf("listener %d: %w", j, err)
			}
			return nil
		})
	}
	defer func() {
		stopServe()
		_ = serving.Wait()
		for _, l := range listeners {
			l.Close()
		}
	}()

	initiators, err := r.startInitiators(fc, listeners)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, ini := range initiators {
			ini.Close()
		}
	}()

	var g errgroup.Group
	for i, ini := range initiators {
		g.Go(func() error {
			r.converseAll(ctx, i, ini, listeners, report.Results[i*len(listeners):(i+1)*len(listeners)])
			return nil
		})
	}
	_ = g.Wait()

	// 交换全部结束后再停止服务，serveErrs 此后不再变化
	stopServe()
	_ = serving.Wait()
	for _, err := range serveErrs {
		if err != nil {
			report.ServeErrs = append(report.ServeErrs, err)
		}
	}

	logger.Info("多对多交换完成",
		"listeners", len(listeners),
		"initiators", len(initiators),
		"succeeded", report.Succeeded(),
		"total", len(report.Results))
	return report, nil
}

func listenAddr(fc config.FanoutConfig, j int) string {
	port := 0
	if fc.BasePort > 0 {
		port = fc.BasePort + j
	}
	return net.JoinHostPort(fc.Host, strconv.Itoa(port))
}

// startListeners 创建并绑定全部监听端，失败时关闭已创建的
func (r *Runner) startListeners(fc config.FanoutConfig) ([]*listener.Listener, error) {
	listeners := make([]*listener.Listener, 0, fc.Listeners)
	fail := func(err error) ([]*listener.Listener, error) {
		for _, l := range listeners {
			l.Close()
		}
		return nil, err
	}

	for j := 0; j < fc.Listeners; j++ {
		lc := listener.ConfigFromUnified(r.cfg)
		lc.Name = strconv.Itoa(j)
		l, err := listener.New(lc, listener.WithMetrics(r.metrics))
		if err != nil {
			return fail(fmt.Errorf("listener %d: %w", j, err))
		}
		listeners = append(listeners, l)
		if _, err := l.Listen(listenAddr(fc, j)); err != nil {
			return fail(fmt.Errorf("listener %d: %w", j, err))
		}
	}
	return listeners, nil
}

// startInitiators 创建全部发起端并信任全部监听端证书
//
// 发起端绑定在 cfg.Initiator.BindAddr；端口非 0 时只能有一个发起端。
func (r *Runner) startInitiators(fc config.FanoutConfig, listeners []*listener.Listener) ([]*initiator.Initiator, error) {
	initiators := make([]*initiator.Initiator, 0, fc.Initiators)
	fail := func(err error) ([]*initiator.Initiator, error) {
		for _, ini := range initiators {
			ini.Close()
		}
		return nil, err
	}

	opts := append(initiator.FromConfig(r.cfg), initiator.WithMetrics(r.metrics))
	for i := 0; i < fc.Initiators; i++ {
		ini, err := initiator.New(r.cfg.Initiator.BindAddr, opts...)
		if err != nil {
			return fail(fmt.Errorf("initiator %d: %w", i, err))
		}
		initiators = append(initiators, ini)
		for _, l := range listeners {
			if err := ini.TrustCert(l.Certificate()); err != nil {
				return fail(fmt.Errorf("initiator %d: %w", i, err))
			}
		}
	}
	return initiators, nil
}

// converseAll 连接全部监听端后在全部连接上并发交换
func (r *Runner) converseAll(ctx context.Context, i int, ini *initiator.Initiator, listeners []*listener.Listener, results []FanoutResult) {
	payload := []byte(fmt.Sprintf("Hello from client %d", i))
	local := ini.LocalAddr().String()

	conns := make([]*qtransport.Conn, 0, len(listeners))
	index := make([]int, 0, len(listeners))
	for j, l := range listeners {
		results[j] = FanoutResult{Initiator: i, Listener: j, Local: local, Remote: l.Addr().String()}
		conn, err := ini.Connect(ctx, l.Addr().String(), l.Hostname())
		if err != nil {
			results[j].Err = err
			continue
		}
		conns = append(conns, conn)
		index = append(index, j)
	}

	report := r.coord.RunAll(ctx, conns, func(int) []byte { return payload })
	for k, res := range report.Results {
		j := index[k]
		results[j].Response = res.Response
		results[j].Err = res.Err
	}
}
