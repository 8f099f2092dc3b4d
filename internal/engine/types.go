package engine

import "errors"

var (
	// ErrServiceUnavailable means the backend could not be reached or the
	// connection was lost mid-response.
	ErrServiceUnavailable = errors.New("completion service unavailable")

	// ErrInference means the backend was reached but reported a generation failure.
	ErrInference = errors.New("inference failed")
)

// Request is a single text-completion request.
type Request struct {
	Model  string
	Prompt string
	// System is an optional system prompt passed alongside Prompt.
	System string
	// Options are backend sampling options such as temperature or num_predict.
	Options map[string]any
}

// Stream is a pull-based, finite, non-restartable sequence of text fragments.
// Call Next until it returns false, then check Err. Close must always be called.
type Stream interface {
	Next() bool
	Fragment() string
	Err() error
	Close() error
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}
