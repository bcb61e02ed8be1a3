// Package teardown 实现连接关闭的安全判定
//
// 一方只有在能从本地观测证明以下条件时才可关闭连接：对它打开或接受的
// 每一条流，
//
//	(a) 本方写半部已 finish，且对端确认已把该方向读到 EOF；
//	(b) 本方已把对端的写半部读到 EOF。
//
// 过早关闭会静默截断在途数据，传输层无法察觉。因此 Conn.MarkClosed 以
// 显式检查而非调用顺序来保证该不变式。
//
// 单条流的状态：
//
//	Open ──FinishWrite──▶ RequestSent ──┬─ObserveReadEOF──▶ ResponseReceived ─┐
//	                                    └─ObservePeerAck──▶ PeerAckObserved ──┴─▶ Drained
//
// 两个完成事件的先后顺序不受约束，到达 Drained 后连接才可进入 Closed。
package teardown

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnsafeClose 仍有流未排空，关闭会丢数据
	ErrUnsafeClose = errors.New("teardown: unsafe close")

	// ErrClosed 连接已关闭
	ErrClosed = errors.New("teardown: connection already closed")
)

// State 流状态
type State int

const (
	// StateOpen 流已打开，本方仍在写
	StateOpen State = iota
	// StateRequestSent 本方写半部已 finish
	StateRequestSent
	// StateResponseReceived 已把对端写半部读到 EOF，尚未收到对端确认
	StateResponseReceived
	// StatePeerAckObserved 已收到对端确认，对端写半部尚未读完
	StatePeerAckObserved
	// StateDrained 两个方向均已写完并读完
	StateDrained
	// StateClosed 所属连接已关闭
	StateClosed
)

// String 返回状态名
func (s State) String() string {
	switch s {
	case StateOpen:
		return "Open"
	case StateRequestSent:
		return "RequestSent"
	case StateResponseReceived:
		return "ResponseReceived"
	case StatePeerAckObserved:
		return "PeerAckObserved"
	case StateDrained:
		return "Drained"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stream 单条流的关闭状态跟踪
//
// 所有事件方法幂等，可并发调用。
type Stream struct {
	id uint64

	mu            sync.Mutex
	writeFinished bool
	readEOF       bool
	peerAck       bool
	closed        bool
}

// ID 返回流 ID
func (s *Stream) ID() uint64 {
	return s.id
}

// FinishWrite 记录本方写半部已 finish
func (s *Stream) FinishWrite() {
	s.mu.Lock()
	s.writeFinished = true
	s.mu.Unlock()
}

// ObserveReadEOF 记录已把对端写半部读到 EOF
func (s *Stream) ObserveReadEOF() {
	s.mu.Lock()
	s.readEOF = true
	s.mu.Unlock()
}

// ObservePeerAck 记录对端确认已读完本方写半部
func (s *Stream) ObservePeerAck() {
	s.mu.Lock()
	s.peerAck = true
	s.mu.Unlock()
}

// Drained 两个方向是否都已写完并读完
func (s *Stream) Drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.drainedLocked()
}

func (s *Stream) drainedLocked() bool {
	return s.writeFinished && s.readEOF && s.peerAck
}

// State 返回当前状态
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return StateClosed
	case s.drainedLocked():
		return StateDrained
	case !s.writeFinished:
		return StateOpen
	case s.readEOF:
		return StateResponseReceived
	case s.peerAck:
		return StatePeerAckObserved
	default:
		return StateRequestSent
	}
}

// Conn 单个连接的关闭判定
type Conn struct {
	mu      sync.Mutex
	streams []*Stream
	closed  bool
}

// NewConn 创建连接跟踪器
func NewConn() *Conn {
	return &Conn{}
}

// Track 登记一条新流
//
// 连接关闭后登记的流直接处于 Closed 状态。
func (c *Conn) Track(id uint64) *Stream {
	s := &Stream{id: id}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		s.closed = true
		return s
	}
	c.streams = append(c.streams, s)
	return s
}

// Streams 返回已登记流的数量
func (c *Conn) Streams() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.streams)
}

// CanClose 检查关闭是否安全
func (c *Conn) CanClose() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.canCloseLocked()
}

func (c *Conn) canCloseLocked() error {
	if c.closed {
		return ErrClosed
	}
	for _, s := range c.streams {
		s.mu.Lock()
		drained := s.drainedLocked()
		s.mu.Unlock()
		if !drained {
			return fmt.Errorf("%w: stream %d in state %s", ErrUnsafeClose, s.id, s.State())
		}
	}
	return nil
}

// MarkClosed 在安全时转入 Closed
//
// 返回 nil 表示调用方现在可以关闭底层连接，且只会成功一次。
func (c *Conn) MarkClosed() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.canCloseLocked(); err != nil {
		return err
	}
	c.closeLocked()
	return nil
}

// ForceClosed 无条件转入 Closed，仅用于出错后的中止路径
//
// 返回 false 表示连接此前已关闭。
func (c *Conn) ForceClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closeLocked()
	return true
}

func (c *Conn) closeLocked() {
	c.closed = true
	for _, s := range c.streams {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	}
}

// IsClosed 是否已关闭
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}
