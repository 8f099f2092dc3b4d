package harness

import (
	"context"
	"io"
	"strings"

	"github.com/kalambet/ollamakit/internal/engine"
)

// Result is a finite, non-restartable sequence of completion fragments.
//
//	res, err := h.Complete(ctx, "Tell me a joke about a programmer.", memory.History{})
//	if err != nil { ... }
//	defer res.Close()
//	for res.Next() {
//		fmt.Print(res.Fragment())
//	}
//	if err := res.Err(); err != nil { ... }
type Result struct {
	stream   engine.Stream
	cancel   context.CancelFunc
	classify func(error) error
	prompt   string

	text   strings.Builder
	closed bool
}

// Next advances to the next fragment. It returns false at the end of the
// sequence, after an error, or once the Result is closed.
func (r *Result) Next() bool {
	if r.closed || !r.stream.Next() {
		return false
	}
	r.text.WriteString(r.stream.Fragment())
	return true
}

// Fragment returns the current fragment.
func (r *Result) Fragment() string { return r.stream.Fragment() }

// Err returns the error that ended the sequence, if any.
func (r *Result) Err() error { return r.classify(r.stream.Err()) }

// Text returns the concatenation of all fragments consumed so far.
func (r *Result) Text() string { return r.text.String() }

// Prompt returns the effective prompt that produced this result.
func (r *Result) Prompt() string { return r.prompt }

// Close releases the underlying connection. It is safe to call more than once.
func (r *Result) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.stream.Close()
	r.cancel()
	return err
}

// Collect drains the remaining fragments and closes the Result. On error the
// text received so far is returned alongside it.
func (r *Result) Collect() (string, error) {
	defer r.Close()
	for r.Next() {
	}
	return r.Text(), r.Err()
}

// WriteTo writes each fragment to w as it arrives, then closes the Result.
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	defer r.Close()
	var total int64
	for r.Next() {
		n, err := io.WriteString(w, r.Fragment())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, r.Err()
}
