package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

const (
	// headerSize is the length prefix: uint32, little-endian.
	headerSize = 4

	// MaxOutboundSize is the largest frame the browser accepts from a host.
	MaxOutboundSize = 1 << 20

	// MaxInboundSize caps how much we are willing to allocate for a request.
	MaxInboundSize = 64 << 20
)

// ErrFrameTooLarge is returned by WriteMessage when the encoded value would
// exceed MaxOutboundSize. Nothing is written in that case.
var ErrFrameTooLarge = errors.New("frame exceeds outbound size limit")

// DecodeError reports an inbound frame that could not be read or parsed.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErrorf(format string, args ...any) error {
	return &DecodeError{Err: fmt.Errorf(format, args...)}
}

// ReadFrame reads one length-prefixed frame from r.
// It returns io.EOF, unwrapped, when r is closed before any prefix byte
// arrives; every other failure is a *DecodeError.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	n, err := io.ReadFull(r, header[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, decodeErrorf("read length prefix: got %d of %d bytes: %w", n, headerSize, err)
	}

	size := binary.LittleEndian.Uint32(header[:])
	if size > MaxInboundSize {
		return nil, decodeErrorf("message length %d exceeds limit of %d bytes", size, MaxInboundSize)
	}

	payload := make([]byte, size)
	if n, err := io.ReadFull(r, payload); err != nil {
		return nil, decodeErrorf("read payload: got %d of %d bytes: %w", n, size, err)
	}

	return payload, nil
}

// ReadMessage reads one framed request from r.
// io.EOF means the channel was closed cleanly; it is not an error condition.
func ReadMessage(r io.Reader) (*Request, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}

	if !utf8.Valid(payload) {
		return nil, decodeErrorf("payload is not valid UTF-8")
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, decodeErrorf("%w", err)
	}

	return &req, nil
}

// Encode serializes v to compact UTF-8 JSON without HTML escaping.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// WriteFrame writes payload with its length prefix in a single Write call,
// then flushes w if it buffers. The frame is assembled in memory first so a
// reader never observes a prefix without its payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxOutboundSize {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, len(payload), MaxOutboundSize)
	}

	frame := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[headerSize:], payload)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush frame: %w", err)
		}
	}

	return nil
}

// WriteMessage encodes v as JSON and writes it as one frame.
func WriteMessage(w io.Writer, v any) error {
	payload, err := Encode(v)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}
