package lsp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const contentLengthHeader = "content-length"

var headerTerminator = []byte("\r\n\r\n")

// maxLoggedBody bounds how much of a bad body is kept in a FramingError.
const maxLoggedBody = 64

// EncodeFrame prefixes body with the Content-Length header of the LSP base protocol.
func EncodeFrame(body []byte) []byte {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	frame := make([]byte, 0, len(header)+len(body))
	frame = append(frame, header...)
	return append(frame, body...)
}

// Encode marshals v to JSON and frames it.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return EncodeFrame(data), nil
}

// Framer reassembles JSON payloads from a byte stream split into arbitrary chunks.
//
// A Framer owns its buffer and is not safe for concurrent use; each session
// keeps its own.
type Framer struct {
	buf []byte
}

// NewFramer creates an empty framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset discards any partially received frame.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}

// Feed appends chunk to the buffer and returns every payload completed by it.
//
// A complete frame whose body is not valid JSON, or a header block without a
// usable Content-Length, is discarded and reported as a *FramingError. The
// remaining frames are still decoded, so the returned payloads and error can
// both be non-nil. Multiple errors are joined.
func (f *Framer) Feed(chunk []byte) ([]json.RawMessage, error) {
	f.buf = append(f.buf, chunk...)

	var (
		payloads []json.RawMessage
		errs     []error
		consumed int
	)

	for {
		rest := f.buf[consumed:]
		idx := bytes.Index(rest, headerTerminator)
		if idx < 0 {
			break
		}
		header := rest[:idx]
		bodyStart := idx + len(headerTerminator)

		length, err := parseContentLength(header)
		if err != nil {
			errs = append(errs, &FramingError{Reason: err.Error(), Header: string(header)})
			consumed += bodyStart
			continue
		}

		if len(rest)-bodyStart < length {
			break // wait for the rest of the body
		}

		body := rest[bodyStart : bodyStart+length]
		consumed += bodyStart + length

		if !gjson.ValidBytes(body) {
			errs = append(errs, &FramingError{
				Reason: "malformed JSON body",
				Header: string(header),
				Body:   truncateBody(body),
			})
			continue
		}

		payload := make(json.RawMessage, len(body))
		copy(payload, body)
		payloads = append(payloads, payload)
	}

	if consumed > 0 {
		f.buf = append(f.buf[:0], f.buf[consumed:]...)
	}

	return payloads, errors.Join(errs...)
}

// parseContentLength finds the Content-Length value in a header block.
// Header names are matched case-insensitively and other headers are ignored.
func parseContentLength(header []byte) (int, error) {
	for _, line := range strings.Split(string(header), "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), contentLengthHeader) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid Content-Length %q", strings.TrimSpace(value))
		}
		return n, nil
	}
	return 0, errors.New("missing Content-Length header")
}

func truncateBody(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "..."
	}
	return string(body)
}
