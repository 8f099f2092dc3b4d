package ollama

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrTruncated is returned when a stream ends without a final done line.
var ErrTruncated = errors.New("stream ended before completion")

// GenerateStream reads the NDJSON lines of a streamed /api/generate response.
// It is a pull iterator: call Next until it returns false, then check Err.
type GenerateStream struct {
	body io.ReadCloser
	dec  *json.Decoder
	cur  GenerateResponse
	done bool
	err  error
}

func newGenerateStream(body io.ReadCloser) *GenerateStream {
	return &GenerateStream{body: body, dec: json.NewDecoder(body)}
}

// Next advances to the next non-empty fragment.
func (s *GenerateStream) Next() bool {
	for !s.done && s.err == nil {
		var line GenerateResponse
		if err := s.dec.Decode(&line); err != nil {
			s.err = decodeErr(err)
			return false
		}
		if line.Error != "" {
			s.err = &APIError{Message: line.Error}
			return false
		}
		s.cur = line
		if line.Done {
			s.done = true
		}
		if line.Response != "" {
			return true
		}
	}
	return false
}

// Fragment returns the text of the current line.
func (s *GenerateStream) Fragment() string {
	return s.cur.Response
}

// Final returns the last line read, which carries done_reason and counters
// once the stream is exhausted.
func (s *GenerateStream) Final() GenerateResponse {
	return s.cur
}

// Err returns the first error hit while reading, if any.
func (s *GenerateStream) Err() error {
	return s.err
}

// Close releases the underlying response body.
func (s *GenerateStream) Close() error {
	return s.body.Close()
}

func decodeErr(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrTruncated
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("malformed stream line: %w", err)
	}
	return fmt.Errorf("%w: reading stream: %w", ErrUnreachable, err)
}
