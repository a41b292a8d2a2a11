// Package wire frames JSON records on a byte stream: a 4-byte big-endian
// length followed by that many bytes of UTF-8 JSON. A zero-length frame
// carries no message and is skipped.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"

	"github.com/dkeye/tablekeeper/internal/domain"
)

const HeaderSize = 4

// DefaultMaxFrame bounds a single payload unless the caller picks another limit.
const DefaultMaxFrame = 1 << 20

var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// Marshal and Unmarshal are the JSON codec shared by every transport.
func Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal wraps decode failures in domain.ErrMalformedRequest.
func Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedRequest, err)
	}
	return nil
}

type Reader struct {
	r   *bufio.Reader
	max uint32
}

func NewReader(r io.Reader, maxFrame uint32) *Reader {
	if maxFrame == 0 {
		maxFrame = DefaultMaxFrame
	}
	return &Reader{r: bufio.NewReader(r), max: maxFrame}
}

// ReadFrame returns the next non-empty payload.
func (r *Reader) ReadFrame() ([]byte, error) {
	var header [HeaderSize]byte
	for {
		if _, err := io.ReadFull(r.r, header[:]); err != nil {
			return nil, err
		}
		n := binary.BigEndian.Uint32(header[:])
		if n == 0 {
			continue
		}
		if n > r.max {
			return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, r.max)
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(r.r, payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
}

// Read decodes the next frame into v. A payload that is not valid JSON
// yields domain.ErrMalformedRequest and leaves the stream usable.
func (r *Reader) Read(v any) error {
	payload, err := r.ReadFrame()
	if err != nil {
		return err
	}
	return Unmarshal(payload, v)
}

// Writer is safe for concurrent use; each message goes out in one Write.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) WriteFrame(payload []byte) error {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.w.Write(buf)
	return err
}

func (w *Writer) Write(v any) error {
	payload, err := Marshal(v)
	if err != nil {
		return err
	}
	return w.WriteFrame(payload)
}
