// Package greeting 实现演示性请求/响应交换的流上编码
//
// 一条双向流上的字节序列由若干帧组成：
//
//	frame := uvarint(len(body)) || body
//	body  := protobuf wire format
//	         field 1 (varint) kind
//	         field 2 (bytes)  payload
//	         field 3 (varint) count
//
// 发起端写 Request 帧后 finish 写半部；响应端把请求读到 EOF，先回 Ack
// （count 为实际读到的请求字节数），再写 Response 帧并 finish。
// 空载荷不产生任何帧，读方在 Ack 之后直接看到 EOF。
package greeting

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxFrameSize 单帧体最大长度；总载荷长度不受限，大载荷拆分为多帧
const MaxFrameSize = 1 << 20

// chunkSize 写入时每帧携带的最大载荷
const chunkSize = MaxFrameSize - 64

const (
	fieldKind    protowire.Number = 1
	fieldPayload protowire.Number = 2
	fieldCount   protowire.Number = 3
)

// Kind 帧类型
type Kind uint8

const (
	// KindRequest 请求载荷
	KindRequest Kind = 1
	// KindAck 响应端确认已把请求读到 EOF
	KindAck Kind = 2
	// KindResponse 响应载荷
	KindResponse Kind = 3
)

// String 返回帧类型名
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindAck:
		return "ack"
	case KindResponse:
		return "response"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

var (
	// ErrMalformedFrame 帧无法解析
	ErrMalformedFrame = errors.New("greeting: malformed frame")

	// ErrUnexpectedFrame 帧类型不符合交换顺序
	ErrUnexpectedFrame = errors.New("greeting: unexpected frame")
)

// Frame 解码后的帧
type Frame struct {
	Kind    Kind
	Payload []byte
	Count   uint64
}

// ============================================================================
//                              编码
// ============================================================================

// Encoder 帧编码器
type Encoder struct {
	w io.Writer
}

// NewEncoder 创建编码器
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// WriteRequest 写请求载荷，返回载荷字节数
func (e *Encoder) WriteRequest(p []byte) (int, error) {
	return e.writeChunked(KindRequest, p)
}

// WriteResponse 写响应载荷，返回载荷字节数
func (e *Encoder) WriteResponse(p []byte) (int, error) {
	return e.writeChunked(KindResponse, p)
}

// WriteAck 写确认帧
func (e *Encoder) WriteAck(count uint64) error {
	return e.writeFrame(Frame{Kind: KindAck, Count: count})
}

func (e *Encoder) writeChunked(kind Kind, p []byte) (int, error) {
	n := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > chunkSize {
			chunk = chunk[:chunkSize]
		}
		if err := e.writeFrame(Frame{Kind: kind, Payload: chunk}); err != nil {
			return n, err
		}
		n += len(chunk)
		p = p[len(chunk):]
	}
	return n, nil
}

func (e *Encoder) writeFrame(f Frame) error {
	body := AppendBody(nil, f)
	buf := binary.AppendUvarint(make([]byte, 0, len(body)+binary.MaxVarintLen64), uint64(len(body)))
	buf = append(buf, body...)
	if _, err := e.w.Write(buf); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Kind, err)
	}
	return nil
}

// AppendBody 按 protobuf wire format 编码帧体
func AppendBody(b []byte, f Frame) []byte {
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Kind))
	if len(f.Payload) > 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Payload)
	}
	if f.Count > 0 {
		b = protowire.AppendTag(b, fieldCount, protowire.VarintType)
		b = protowire.AppendVarint(b, f.Count)
	}
	return b
}

// ============================================================================
//                              解码
// ============================================================================

// Decoder 帧解码器
type Decoder struct {
	r *bufio.Reader

	// readErr 记录底层读错误，用于区分 varint 溢出与传输错误
	readErr error
}

// NewDecoder 创建解码器
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// ReadByte 实现 io.ByteReader
func (d *Decoder) ReadByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		d.readErr = err
	}
	return b, err
}

// Next 读取下一帧
//
// 只有在帧边界上遇到流结束才返回 io.EOF；半帧、超长帧或帧体无法解析
// 均返回 ErrMalformedFrame。底层读错误原样包装返回。
func (d *Decoder) Next() (Frame, error) {
	d.readErr = nil
	size, err := binary.ReadUvarint(d)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return Frame{}, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return Frame{}, fmt.Errorf("%w: truncated length", ErrMalformedFrame)
		case d.readErr == nil:
			return Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		default:
			return Frame{}, err
		}
	}
	if size == 0 || size > MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: frame size %d", ErrMalformedFrame, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(d.r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, fmt.Errorf("%w: truncated body", ErrMalformedFrame)
		}
		return Frame{}, err
	}
	return ParseBody(body)
}

// ParseBody 解析帧体
func ParseBody(b []byte) (Frame, error) {
	var f Frame
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: kind: %w", ErrMalformedFrame, protowire.ParseError(n))
			}
			f.Kind = Kind(v)
			b = b[n:]
		case num == fieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: payload: %w", ErrMalformedFrame, protowire.ParseError(n))
			}
			f.Payload = append(f.Payload, v...)
			b = b[n:]
		case num == fieldCount && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: count: %w", ErrMalformedFrame, protowire.ParseError(n))
			}
			f.Count = v
			b = b[n:]
		default:
			// 未知字段跳过，便于后续扩展
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: field %d: %w", ErrMalformedFrame, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	switch f.Kind {
	case KindRequest, KindAck, KindResponse:
		return f, nil
	default:
		return Frame{}, fmt.Errorf("%w: unknown %s", ErrMalformedFrame, f.Kind)
	}
}

// ReadRequest 把流读到 EOF 并拼接全部请求载荷
//
// 请求方向只允许 Request 帧。
func ReadRequest(r io.Reader) ([]byte, error) {
	dec := NewDecoder(r)
	var payload []byte
	for {
		f, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return payload, nil
		}
		if err != nil {
			return payload, err
		}
		if f.Kind != KindRequest {
			return payload, fmt.Errorf("%w: %s on request direction", ErrUnexpectedFrame, f.Kind)
		}
		payload = append(payload, f.Payload...)
	}
}
