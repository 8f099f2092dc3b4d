package main

import (
	"context"

	"github.com/google/uuid"

	"github.com/kalambet/ollamakit/internal/harness"
	"github.com/kalambet/ollamakit/internal/session"
	"github.com/kalambet/ollamakit/internal/storage"
)

// storeRecorder writes session exchanges to the transcript log.
type storeRecorder struct {
	store     *storage.Store
	sessionID string
	mode      string
	model     string
	baseURL   string
}

func (r *storeRecorder) Record(_ context.Context, ex session.Exchange) error {
	rec := storage.Exchange{
		ID:        uuid.NewString(),
		SessionID: r.sessionID,
		CreatedAt: ex.Started,
		Mode:      r.mode,
		Model:     r.model,
		BaseURL:   r.baseURL,
		Input:     ex.Input,
		Prompt:    ex.Prompt,
		Response:  ex.Response,
		Status:    storage.StatusCompleted,
		Elapsed:   ex.Elapsed,
	}
	if ex.Err != nil {
		rec.Status = storage.StatusFailed
		rec.ErrorKind = harness.Kind(ex.Err)
		rec.ErrorText = ex.Err.Error()
	}
	return r.store.SaveExchange(rec)
}
