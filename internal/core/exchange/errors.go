package exchange

import "errors"

var (
	// ErrAckMismatch 对端确认的字节数与本端发送的不一致
	ErrAckMismatch = errors.New("exchange: ack count mismatch")

	// ErrMissingAck 响应结束前没有收到对端确认
	ErrMissingAck = errors.New("exchange: response ended without ack")

	// ErrDuplicateAck 同一条流上收到多个确认
	ErrDuplicateAck = errors.New("exchange: duplicate ack")
)
