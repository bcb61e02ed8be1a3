package exchange

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	qtransport "github.com/dep2p/go-qsession/internal/core/transport/quic"
)

// Result 单个连接的交换结果
type Result struct {
	Index    int
	Remote   string
	Response []byte
	Err      error
}

// Report 一批交换的结果，按连接顺序排列
type Report struct {
	Results []Result
}

// Err 合并全部失败；全部成功时返回 nil
func (r *Report) Err() error {
	var err error
	for _, res := range r.Results {
		if res.Err != nil {
			err = multierr.Append(err, fmt.Errorf("connection %d (%s): %w", res.Index, res.Remote, res.Err))
		}
	}
	return err
}

// Succeeded 返回成功的交换数
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Failed 返回失败的交换数
func (r *Report) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// RunAll 在每个连接上并发执行 Converse
//
// 单个连接失败不会取消其他连接；payload(i) 给出第 i 个连接的请求。
func (c *Coordinator) RunAll(ctx context.Context, conns []*qtransport.Conn, payload func(i int) []byte) *Report {
	report := &Report{Results: make([]Result, len(conns))}

	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, conn := range conns {
		g.Go(func() error {
			res := Result{Index: i, Remote: conn.RemoteAddr().String()}
			res.Response, res.Err = c.Converse(ctx, conn, payload(i))
			report.Results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	if n := report.Failed(); n > 0 {
		c.log.Warn("部分交换失败", "failed", n, "total", len(conns))
	}
	return report
}
