package engine

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

// EnsureReady checks that the Engine is reachable and the given models are
// available. Presence checks run concurrently; missing models are pulled one
// at a time with progress output written to w. With pull=false a missing
// model is an error instead.
func EnsureReady(ctx context.Context, e Engine, models []string, pull bool, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("%w: local inference engine is not running; start it with: ollama serve", ErrServiceUnavailable)
	}

	var wanted []string
	seen := make(map[string]bool, len(models))
	for _, m := range models {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		wanted = append(wanted, m)
	}

	present := make([]bool, len(wanted))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, model := range wanted {
		g.Go(func() error {
			present[i] = e.HasModel(gCtx, model)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, model := range wanted {
		if present[i] {
			fmt.Fprintf(w, "model %s: ready\n", model)
			continue
		}
		if !pull {
			return fmt.Errorf("model %s is not available locally; pull it with: ollama pull %s", model, model)
		}

		fmt.Fprintf(w, "model %s: pulling...\n", model)
		err := e.PullModel(ctx, model, func(p PullProgress) {
			if p.Total > 0 {
				pct := float64(p.Completed) / float64(p.Total) * 100
				fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
			} else {
				fmt.Fprintf(w, "  %s\n", p.Status)
			}
		})
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}

	return nil
}
