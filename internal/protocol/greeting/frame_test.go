package greeting

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestExchangeSequence(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.WriteAck(21))
	n, err := enc.WriteResponse([]byte("Hello from server 3"))
	require.NoError(t, err)
	assert.Equal(t, 19, n)

	dec := NewDecoder(&buf)

	f, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, KindAck, f.Kind)
	assert.Equal(t, uint64(21), f.Count)
	assert.Empty(t, f.Payload)

	f, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, KindResponse, f.Kind)
	assert.Equal(t, "Hello from server 3", string(f.Payload))

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadRequest(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewEncoder(&buf).WriteRequest([]byte("Hello from client 7"))
	require.NoError(t, err)

	got, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, "Hello from client 7", string(got))
}

func TestEmptyPayload_NoFrames(t *testing.T) {
	var buf bytes.Buffer
	n, err := NewEncoder(&buf).WriteResponse(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, buf.Len())

	// 空流立即 EOF，是合法的完成
	got, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLargePayload_Chunked(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 3*MaxFrameSize+17)

	var buf bytes.Buffer
	n, err := NewEncoder(&buf).WriteRequest(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	got, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadRequest_RejectsOtherKinds(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).WriteAck(1))

	_, err := ReadRequest(&buf)
	assert.ErrorIs(t, err, ErrUnexpectedFrame)
}

func frameOf(body []byte) []byte {
	return append(binary.AppendUvarint(nil, uint64(len(body))), body...)
}

func TestDecoder_Malformed(t *testing.T) {
	valid := frameOf(AppendBody(nil, Frame{Kind: KindRequest, Payload: []byte("abc")}))

	unknownKind := protowire.AppendVarint(protowire.AppendTag(nil, fieldKind, protowire.VarintType), 9)
	badBytes := protowire.AppendTag(AppendBody(nil, Frame{Kind: KindRequest}), fieldPayload, protowire.BytesType)
	badBytes = protowire.AppendVarint(badBytes, 50) // 声明 50 字节但没有内容

	tests := []struct {
		name string
		data []byte
	}{
		{"截断的长度", []byte{0x80}},
		{"零长度帧", []byte{0x00}},
		{"超长帧", binary.AppendUvarint(nil, MaxFrameSize+1)},
		{"截断的帧体", valid[:len(valid)-1]},
		{"varint 溢出", bytes.Repeat([]byte{0xff}, 11)},
		{"未知类型", frameOf(unknownKind)},
		{"缺少类型", frameOf(protowire.AppendBytes(protowire.AppendTag(nil, fieldPayload, protowire.BytesType), []byte("x")))},
		{"载荷越界", frameOf(badBytes)},
		{"非法标签", frameOf([]byte{0x00})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder(bytes.NewReader(tt.data)).Next()
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestParseBody_SkipsUnknownFields(t *testing.T) {
	body := AppendBody(nil, Frame{Kind: KindAck, Count: 5})
	body = protowire.AppendTag(body, 15, protowire.BytesType)
	body = protowire.AppendBytes(body, []byte("future"))

	f, err := ParseBody(body)
	require.NoError(t, err)
	assert.Equal(t, KindAck, f.Kind)
	assert.Equal(t, uint64(5), f.Count)
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestDecoder_TransportErrorPassthrough(t *testing.T) {
	boom := errors.New("stream reset")
	_, err := NewDecoder(failingReader{boom}).Next()
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrMalformedFrame)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestEncoder_WriteError(t *testing.T) {
	_, err := NewEncoder(failingWriter{}).WriteRequest([]byte("x"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "ack", KindAck.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
