package harness

import (
	"context"
	"errors"

	"github.com/kalambet/ollamakit/internal/engine"
	"github.com/kalambet/ollamakit/internal/prompt"
)

// Error kinds. Every error returned by this package matches exactly one of
// them with errors.Is, except context cancellation which is passed through.
var (
	ErrConfiguration      = errors.New("configuration error")
	ErrTemplate           = prompt.ErrTemplate
	ErrServiceUnavailable = engine.ErrServiceUnavailable
	ErrInference          = engine.ErrInference
)

// Kind names the error kind of err for display.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "ConfigurationError"
	case errors.Is(err, ErrTemplate):
		return "TemplateError"
	case errors.Is(err, ErrServiceUnavailable):
		return "ServiceUnavailableError"
	case errors.Is(err, ErrInference):
		return "InferenceError"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	default:
		return "Error"
	}
}
