// Package session runs the interactive read-complete-print loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// State is the loop's position in its cycle.
type State int32

const (
	Idle State = iota
	AwaitingInput
	Completing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingInput:
		return "awaiting-input"
	case Completing:
		return "completing"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Reply is what a turn produced.
type Reply struct {
	// Prompt is the effective prompt sent for the turn.
	Prompt string
	Text   string
}

// TurnFunc handles one line of input, writing the answer to out as it arrives.
type TurnFunc func(ctx context.Context, input string, out io.Writer) (Reply, error)

// Exchange describes one finished turn, successful or not.
type Exchange struct {
	Input    string
	Prompt   string
	Response string
	Err      error
	Started  time.Time
	Elapsed  time.Duration
}

// Recorder receives every exchange. Errors are logged and otherwise ignored.
type Recorder interface {
	Record(ctx context.Context, ex Exchange) error
}

// Loop drives Idle → AwaitingInput → Completing → Idle until the input ends
// or ctx is canceled.
type Loop struct {
	Input  InputSource
	Output io.Writer
	// Prompt is written before each read, e.g. "\n\nYou: ".
	Prompt string
	Turn   TurnFunc
	// Recorder is optional.
	Recorder Recorder
	// ReportError writes a failed turn's error to the output. Defaults to "Error: <err>".
	ReportError func(w io.Writer, err error)
	Logger      *slog.Logger

	state atomic.Int32
	turns atomic.Int64
}

// State returns the current state. Safe to call from other goroutines.
func (l *Loop) State() State { return State(l.state.Load()) }

// Turns returns the number of completed turns, failed ones included.
func (l *Loop) Turns() int64 { return l.turns.Load() }

// Run loops until the input source reports io.EOF (returns nil) or ctx is
// canceled (returns ctx.Err()). A failed turn is reported to Output and the
// loop carries on with the next line. Blank lines are skipped.
func (l *Loop) Run(ctx context.Context) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defer l.setState(Idle)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.setState(AwaitingInput)
		io.WriteString(l.Output, l.Prompt)
		line, err := l.Input.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			io.WriteString(l.Output, "\n")
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			l.setState(Idle)
			continue
		}

		l.setState(Completing)
		io.WriteString(l.Output, "\n")
		started := time.Now()
		reply, err := l.Turn(ctx, line, l.Output)
		l.turns.Add(1)

		if l.Recorder != nil {
			ex := Exchange{
				Input:    line,
				Prompt:   reply.Prompt,
				Response: reply.Text,
				Err:      err,
				Started:  started,
				Elapsed:  time.Since(started),
			}
			if rerr := l.Recorder.Record(context.WithoutCancel(ctx), ex); rerr != nil {
				logger.Warn("recording exchange failed", "error", rerr)
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Debug("turn failed", "input_chars", len(line), "error", err)
			l.reportError(err)
		}
		l.setState(Idle)
	}
}

func (l *Loop) setState(s State) { l.state.Store(int32(s)) }

func (l *Loop) reportError(err error) {
	if l.ReportError != nil {
		l.ReportError(l.Output, err)
		return
	}
	fmt.Fprintf(l.Output, "\nError: %v\n", err)
}
