package quic

import (
	"context"
	"errors"
	"io"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-qsession/internal/core/teardown"
)

// Stream QUIC 双向流
//
// Read 读到 io.EOF 时记录"对端写半部已读完"；CloseWrite 记录"本端写半部
// 已 finish"；对端确认由上层协议观测后调用 ObservePeerAck。
type Stream struct {
	quicStream *quic.Stream
	conn       *Conn
	state      *teardown.Stream
}

func newStream(qs *quic.Stream, conn *Conn) *Stream {
	return &Stream{
		quicStream: qs,
		conn:       conn,
		state:      conn.tracker.Track(uint64(qs.StreamID())),
	}
}

// Read 从流中读取数据
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.quicStream.Read(p)
	if errors.Is(err, io.EOF) {
		s.state.ObserveReadEOF()
	}
	return n, err
}

// Write 向流写入数据
func (s *Stream) Write(p []byte) (int, error) {
	return s.quicStream.Write(p)
}

// CloseWrite finish 写半部，之后不再发送任何字节
func (s *Stream) CloseWrite() error {
	if err := s.quicStream.Close(); err != nil {
		return err
	}
	s.state.FinishWrite()
	return nil
}

// ObservePeerAck 记录对端已确认读完本端写半部
func (s *Stream) ObservePeerAck() {
	s.state.ObservePeerAck()
}

// Reset 以错误码放弃两个方向
func (s *Stream) Reset(code quic.StreamErrorCode) {
	s.quicStream.CancelWrite(code)
	s.quicStream.CancelRead(code)
}

// Stopped 等待对端表明不再读取本端写出的数据
//
// 以下任一情况返回：
//   - 对端以 CodeDone 关闭连接，返回 nil；
//   - 对端停止读取本流（STOP_SENDING）且错误码为 CodeDone 时返回 nil，
//     其他错误码返回对应的 *quic.StreamError；
//   - 连接因其他原因结束，返回关闭原因（空闲超时可用 IsIdleTimeout 识别）；
//   - ctx 结束，返回 ctx.Err()。
//
// quic-go 不报告对端是否已把流读完，正常完成的流会一直等到连接关闭。
func (s *Stream) Stopped(ctx context.Context) error {
	streamDone := s.quicStream.Context().Done()
	connCtx := s.conn.Context()
	for {
		if stopped, err := s.peerStopped(); stopped {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-connCtx.Done():
			cause := context.Cause(connCtx)
			if IsPeerDone(cause) {
				return nil
			}
			return cause
		case <-streamDone:
			// 写半部由本端结束时继续等待连接关闭
			streamDone = nil
		}
	}
}

// peerStopped 检查写半部是否因对端 STOP_SENDING 而结束
func (s *Stream) peerStopped() (bool, error) {
	streamCtx := s.quicStream.Context()
	if streamCtx.Err() == nil {
		return false, nil
	}
	var sErr *quic.StreamError
	if !errors.As(context.Cause(streamCtx), &sErr) || !sErr.Remote {
		return false, nil
	}
	if sErr.ErrorCode == quic.StreamErrorCode(CodeDone) {
		return true, nil
	}
	return true, sErr
}

// ID 返回流 ID
func (s *Stream) ID() uint64 {
	return uint64(s.quicStream.StreamID())
}

// State 返回流的关闭状态
func (s *Stream) State() teardown.State {
	return s.state.State()
}

// Conn 返回所属连接
func (s *Stream) Conn() *Conn {
	return s.conn
}
