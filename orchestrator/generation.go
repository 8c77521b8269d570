package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/wrx861/agentai/agent"
	"github.com/wrx861/agentai/notify"
	"github.com/wrx861/agentai/storage"
)

// StartGeneration launches a generation run for the project. It returns
// ErrRunInFlight when the project already has a run in progress; otherwise
// the run proceeds on a detached goroutine and the call returns immediately.
func (e *Engine) StartGeneration(projectID, prompt string) error {
	if err := e.guard.acquire(projectID); err != nil {
		rejectedTriggers.Inc()
		return err
	}
	runsStarted.WithLabelValues(runKindGeneration).Inc()

	go func() {
		defer e.guard.release(projectID)
		e.runGeneration(context.Background(), projectID, prompt)
	}()
	return nil
}

// runGeneration drives one generation run to a terminal phase: ready on
// success or fallback, failed on provider/store error or panic. Regeneration
// uses the same path; existing files are never touched, so a repeated path
// yields a second record.
func (e *Engine) runGeneration(ctx context.Context, projectID, prompt string) {
	start := time.Now()
	final := PhaseFailed

	defer func() {
		if r := recover(); r != nil {
			e.failGeneration(ctx, projectID, fmt.Errorf("panic: %v", r))
		}
		runsCompleted.WithLabelValues(runKindGeneration, string(final)).Inc()
		runDuration.WithLabelValues(runKindGeneration).Observe(time.Since(start).Seconds())
	}()

	e.report(ctx, projectID, PhaseCreating, 10, "Creating project", "Initializing")
	e.log(ctx, projectID, agent.System, storage.LevelInfo, "Project generation started", map[string]any{
		"prompt": prompt,
	})

	e.report(ctx, projectID, PhaseCreating, 20, "Analyzing prompt", "Analysis")
	e.report(ctx, projectID, PhaseCreating, 30, "Connecting to model", "Connection")

	userPrompt := agent.Render(e.templates.Template(agent.Generator), map[string]string{
		"prompt": prompt,
	})
	content, err := e.complete(ctx, agent.Generator, userPrompt)
	if err != nil {
		e.failGeneration(ctx, projectID, err)
		return
	}

	e.report(ctx, projectID, PhaseCreating, 40, "Generating project structure", "Planning")

	result, fromFallback := agent.ParseGeneration(content, prompt)
	if fromFallback {
		e.log(ctx, projectID, agent.Generator, storage.LevelWarning,
			"Model output was not parseable, using default project", nil)
	}

	e.report(ctx, projectID, PhaseCreating, 50, "Saving files", "Materializing files")

	total := len(result.Files)
	for i, f := range result.Files {
		item := &storage.FileItem{
			ProjectID: projectID,
			Path:      f.Path,
			Content:   f.Content,
			Language:  f.Language,
		}
		if err := e.store.CreateFile(ctx, item); err != nil {
			e.failGeneration(ctx, projectID, fmt.Errorf("store file %s: %w", f.Path, err))
			return
		}

		e.notifier.Publish(projectID, notify.TypeFileCreated, map[string]any{
			"id":       item.ID,
			"path":     item.Path,
			"language": item.Language,
			"size":     len(item.Content),
		})

		progress := 50 + int(math.Floor(float64(i+1)/float64(total)*30))
		e.report(ctx, projectID, PhaseCreating, progress,
			fmt.Sprintf("Created %s", f.Path), "Materializing files")
		e.pause()
	}

	if err := e.store.UpdateProjectMeta(ctx, projectID, result.ProjectName, result.Description); err != nil {
		e.failGeneration(ctx, projectID, fmt.Errorf("update project: %w", err))
		return
	}
	if err := e.store.SetFilesCount(ctx, projectID, total); err != nil {
		e.failGeneration(ctx, projectID, fmt.Errorf("update files count: %w", err))
		return
	}

	if err := e.store.CreateVersion(ctx, &storage.Version{
		ProjectID: projectID,
		Message:   "Initial generation",
		Changes: map[string]any{
			"files_created": total,
			"technologies":  result.Technologies,
		},
	}); err != nil {
		e.logger.Warn("Failed to record version",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()))
	}

	e.log(ctx, projectID, agent.Generator, storage.LevelInfo,
		fmt.Sprintf("Generated %d files", total), map[string]any{
			"project_name": result.ProjectName,
		})

	e.report(ctx, projectID, PhaseReady, 100, "Project is ready", "Done")
	final = PhaseReady
}

// failGeneration is the generation run's terminal error path: phase failed,
// progress reset to 0, the error recorded in the status message and the log.
func (e *Engine) failGeneration(ctx context.Context, projectID string, err error) {
	e.logger.Error("Generation run failed",
		slog.String("project_id", projectID),
		slog.String("error", err.Error()))
	e.log(ctx, projectID, agent.Generator, storage.LevelError, err.Error(), nil)
	e.report(ctx, projectID, PhaseFailed, 0, fmt.Sprintf("Generation failed: %s", err), "Error")
}

// report wraps Reporter.Report; a failed status write is logged but does not
// abort the run, since the next write may still succeed.
func (e *Engine) report(ctx context.Context, projectID string, phase Phase, progress int, message, step string) {
	if err := e.reporter.Report(ctx, projectID, phase, progress, message, step); err != nil {
		e.logger.Warn("Failed to report status",
			slog.String("project_id", projectID),
			slog.String("phase", string(phase)),
			slog.String("error", err.Error()))
	}
}
