// Package exchange 实现发起端的请求/响应交换与连接关闭协调
//
// 一次交换占用一条新的双向流：写请求 → finish 写半部 → 等待两个完成事件
// （对端 Ack、响应读到 EOF），两者到达顺序任意。连接只有在其上全部流都
// 排空后才能正常关闭，关闭前的检查由 teardown 跟踪器强制执行。
package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-qsession/internal/core/metrics"
	qtransport "github.com/dep2p/go-qsession/internal/core/transport/quic"
	"github.com/dep2p/go-qsession/internal/protocol/greeting"
	"github.com/dep2p/go-qsession/pkg/lib/log"
)

var logger = log.Logger("core/exchange")

type logSink interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Coordinator 交换协调器，可被多个 goroutine 共享
type Coordinator struct {
	metrics     *metrics.Metrics
	log         logSink
	concurrency int
}

// Option 协调器选项
type Option func(*Coordinator)

// WithMetrics 注入指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithLogger 替换组件日志
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithConcurrency 限制 RunAll 同时进行的交换数，0 表示不限制
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		c.concurrency = n
	}
}

// NewCoordinator 创建协调器
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{log: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exchange 在 conn 上打开新流完成一次交换，返回完整响应
//
// 不关闭连接。返回 nil 错误时该流已排空。失败时流被重置，
// ctx 结束时返回 ctx.Err()。
func (c *Coordinator) Exchange(ctx context.Context, conn *qtransport.Conn, payload []byte) ([]byte, error) {
	response, err := c.exchange(ctx, conn, payload)
	c.metrics.ExchangeDone(err)
	return response, err
}

func (c *Coordinator) exchange(ctx context.Context, conn *qtransport.Conn, payload []byte) ([]byte, error) {
	stream, err := conn.OpenStream(ctx)
	if err != nil {
		return nil, err
	}

	// ctx 结束时重置流，解除阻塞中的读写
	stop := context.AfterFunc(ctx, func() {
		stream.Reset(quic.StreamErrorCode(qtransport.CodeAborted))
	})
	defer stop()

	response, err := c.run(stream, payload)
	if err != nil {
		stream.Reset(quic.StreamErrorCode(qtransport.CodeAborted))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("stream %d: %w", stream.ID(), err)
	}
	return response, nil
}

func (c *Coordinator) run(stream *qtransport.Stream, payload []byte) ([]byte, error) {
	sent, err := greeting.NewEncoder(stream).WriteRequest(payload)
	if err != nil {
		return nil, err
	}
	if err := stream.CloseWrite(); err != nil {
		return nil, fmt.Errorf("finish request: %w", err)
	}
	c.metrics.Transferred(metrics.SideInitiator, metrics.DirectionOut, sent)

	// Ack 与响应共用同一读方向，按到达顺序分派
	var (
		response []byte
		acked    bool
	)
	dec := greeting.NewDecoder(stream)
	for {
		f, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch f.Kind {
		case greeting.KindAck:
			if acked {
				return nil, ErrDuplicateAck
			}
			if f.Count != uint64(sent) {
				return nil, fmt.Errorf("%w: sent %d, peer drained %d", ErrAckMismatch, sent, f.Count)
			}
			acked = true
			stream.ObservePeerAck()
		case greeting.KindResponse:
			response = append(response, f.Payload...)
		default:
			return nil, fmt.Errorf("%w: %s on response direction", greeting.ErrUnexpectedFrame, f.Kind)
		}
	}
	if !acked {
		return nil, ErrMissingAck
	}

	c.metrics.Transferred(metrics.SideInitiator, metrics.DirectionIn, len(response))
	c.log.Info("收到消息",
		"remote", stream.Conn().RemoteAddr().String(),
		"stream", stream.ID(),
		"message", string(response))
	return response, nil
}

// Converse 完成一次交换后关闭连接
//
// 交换失败时以 CodeAborted 中止连接。交换成功但连接上仍有其他未排空
// 的流时，关闭被拒绝并返回 teardown.ErrUnsafeClose，连接保持打开。
func (c *Coordinator) Converse(ctx context.Context, conn *qtransport.Conn, payload []byte) ([]byte, error) {
	response, err := c.Exchange(ctx, conn, payload)
	if err != nil {
		conn.Abort(qtransport.CodeAborted, "exchange failed")
		return nil, err
	}
	if err := conn.Close(); err != nil {
		return response, fmt.Errorf("close: %w", err)
	}
	c.log.Debug("连接已关闭", "remote", conn.RemoteAddr().String())
	return response, nil
}
