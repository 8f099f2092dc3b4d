package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Exchange statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Exchange is one recorded turn of a session.
type Exchange struct {
	ID        string
	SessionID string
	CreatedAt time.Time
	Mode      string // "ask", "repl", "template", "chat", "mcp"
	Model     string
	BaseURL   string
	Input     string
	Prompt    string // effective prompt sent to the model
	Response  string
	Status    string
	ErrorKind string
	ErrorText string
	Elapsed   time.Duration
}

// SessionSummary aggregates the exchanges of one session.
type SessionSummary struct {
	SessionID string
	Mode      string
	Model     string
	Started   time.Time
	Exchanges int
	Failed    int
}
