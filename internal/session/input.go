package session

import (
	"bufio"
	"context"
	"io"
	"sync"
)

// InputSource supplies lines of user input. ReadLine returns io.EOF once the
// input is exhausted.
type InputSource interface {
	ReadLine(ctx context.Context) (string, error)
}

type lineResult struct {
	line string
	err  error
}

// LineSource reads newline-terminated lines from a reader. Reads happen on a
// background goroutine so that ReadLine can return when ctx is canceled
// while the reader is blocked, as stdin usually is.
type LineSource struct {
	r     io.Reader
	once  sync.Once
	lines chan lineResult
}

// NewLineSource wraps r. Lines longer than 1 MiB are reported as an error.
func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{r: r, lines: make(chan lineResult)}
}

func (s *LineSource) start() {
	go func() {
		sc := bufio.NewScanner(s.r)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			s.lines <- lineResult{line: sc.Text()}
		}
		err := sc.Err()
		if err == nil {
			err = io.EOF
		}
		for {
			s.lines <- lineResult{err: err}
		}
	}()
}

func (s *LineSource) ReadLine(ctx context.Context) (string, error) {
	s.once.Do(s.start)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-s.lines:
		return r.line, r.err
	}
}

// Script is an InputSource that replays fixed lines, then reports io.EOF.
type Script struct {
	mu    sync.Mutex
	lines []string
}

// NewScript returns a Script over lines.
func NewScript(lines ...string) *Script {
	return &Script{lines: lines}
}

func (s *Script) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}
