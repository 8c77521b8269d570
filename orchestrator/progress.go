package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wrx861/agentai/notify"
	"github.com/wrx861/agentai/storage"
)

// Reporter persists a project's status transitions and mirrors each one to
// subscribers. The persistence write strictly precedes the notification, so
// a subscriber never observes a status the store does not yet hold.
type Reporter struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
}

// NewReporter creates a Reporter.
func NewReporter(store Store, notifier Notifier, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{store: store, notifier: notifier, logger: logger}
}

// Report writes one status transition and emits the matching event.
// Progress is clamped to [0,100]. The store write is the only failure mode;
// notification dispatch is best-effort.
func (r *Reporter) Report(ctx context.Context, projectID string, phase Phase, progress int, message, step string) error {
	if !phase.Valid() {
		return fmt.Errorf("invalid phase %q", phase)
	}
	progress = clampProgress(progress)

	status := storage.Status{
		Phase:       string(phase),
		Progress:    progress,
		Message:     message,
		CurrentStep: step,
	}
	if err := r.store.UpdateProjectStatus(ctx, projectID, status); err != nil {
		return fmt.Errorf("persist status: %w", err)
	}

	r.notifier.Publish(projectID, notify.TypeProjectUpdate, map[string]any{
		"status":       string(phase),
		"progress":     progress,
		"message":      message,
		"current_step": step,
	})
	return nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
