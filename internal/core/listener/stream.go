package listener

import (
	"context"
	"errors"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-qsession/internal/core/metrics"
	qtransport "github.com/dep2p/go-qsession/internal/core/transport/quic"
	"github.com/dep2p/go-qsession/internal/protocol/greeting"
)

// 单流处理阶段，用作失败指标标签
const (
	stageRead    = "read"
	stageAck     = "ack"
	stageHandler = "handler"
	stageWrite   = "write"
	stageStopped = "stopped"
)

// serveStream 在一条流上完成一次交换
//
// 读请求到 EOF → 写 Ack → 计算响应 → 写响应并 finish → 等待对端停止读取。
func (l *Listener) serveStream(ctx context.Context, stream *qtransport.Stream) {
	done := l.metrics.HandlerStarted()
	defer done()

	remote := stream.Conn().RemoteAddr().String()

	request, err := greeting.ReadRequest(stream)
	if err != nil {
		code := qtransport.CodeInternal
		if errors.Is(err, greeting.ErrMalformedFrame) || errors.Is(err, greeting.ErrUnexpectedFrame) {
			code = qtransport.CodeProtocolError
		}
		l.fail(stream, stageRead, code, err)
		return
	}
	l.metrics.Transferred(metrics.SideListener, metrics.DirectionIn, len(request))
	l.log.Info("收到消息", "name", l.name, "remote", remote, "stream", stream.ID(), "message", string(request))

	enc := greeting.NewEncoder(stream)
	if err := enc.WriteAck(uint64(len(request))); err != nil {
		l.fail(stream, stageAck, qtransport.CodeInternal, err)
		return
	}

	response, err := l.handler(ctx, request)
	if err != nil {
		l.fail(stream, stageHandler, qtransport.CodeInternal, err)
		return
	}

	n, err := enc.WriteResponse(response)
	if err != nil {
		l.fail(stream, stageWrite, qtransport.CodeInternal, err)
		return
	}
	if err := stream.CloseWrite(); err != nil {
		l.fail(stream, stageWrite, qtransport.CodeInternal, err)
		return
	}
	l.metrics.Transferred(metrics.SideListener, metrics.DirectionOut, n)

	// 对端读完响应并关闭连接之前，不能认为响应已送达
	if err := stream.Stopped(ctx); err != nil {
		switch {
		case ctx.Err() != nil:
		case qtransport.IsIdleTimeout(err):
			l.log.Debug("等待对端确认时连接空闲超时", "name", l.name, "remote", remote, "stream", stream.ID())
		default:
			l.metrics.HandlerFailed(stageStopped)
			l.log.Warn("等待对端确认失败", "name", l.name, "remote", remote, "stream", stream.ID(), "error", err)
		}
		return
	}
	l.log.Debug("交换完成", "name", l.name, "remote", remote, "stream", stream.ID())
}

func (l *Listener) fail(stream *qtransport.Stream, stage string, code quic.ApplicationErrorCode, err error) {
	stream.Reset(quic.StreamErrorCode(code))
	l.metrics.HandlerFailed(stage)
	l.log.Warn("处理流失败",
		"name", l.name,
		"remote", stream.Conn().RemoteAddr().String(),
		"stream", stream.ID(),
		"stage", stage,
		"error", err)
}
