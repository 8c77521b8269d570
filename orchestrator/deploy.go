package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wrx861/agentai/agent"
	"github.com/wrx861/agentai/storage"
)

// StartDeploy validates that a GitHub token is configured and launches the
// deployment run. A missing token is a ValidationError returned to the
// caller before any state changes; ErrRunInFlight is returned when the
// project already has a run in progress.
func (e *Engine) StartDeploy(ctx context.Context, projectID string) error {
	settings, err := e.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if settings.GithubToken == "" {
		return &ValidationError{Reason: "github token is not configured"}
	}

	project, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}

	if err := e.guard.acquire(projectID); err != nil {
		rejectedTriggers.Inc()
		return err
	}
	runsStarted.WithLabelValues(runKindDeploy).Inc()

	go func() {
		defer e.guard.release(projectID)
		e.runDeploy(context.Background(), projectID, project.Name)
	}()
	return nil
}

// runDeploy performs the single-shot deployment: two progress cues, a
// simulated push, then the remote URL is persisted. Deployment failure is
// non-fatal to project usability, so the failure path settles on ready.
func (e *Engine) runDeploy(ctx context.Context, projectID, repoName string) {
	start := time.Now()
	final := PhaseReady

	defer func() {
		if r := recover(); r != nil {
			e.failDeploy(ctx, projectID, fmt.Errorf("panic: %v", r))
		}
		runsCompleted.WithLabelValues(runKindDeploy, string(final)).Inc()
		runDuration.WithLabelValues(runKindDeploy).Observe(time.Since(start).Seconds())
	}()

	e.report(ctx, projectID, PhaseDeploying, 80, "Preparing deployment", "Deployment")
	e.report(ctx, projectID, PhaseDeploying, 85, "Pushing to GitHub", "Deployment")

	// Simulated push; a real remote integration would replace this.
	e.pause()

	url := fmt.Sprintf("https://github.com/user/%s", repoName)
	if err := e.store.SetGithubURL(ctx, projectID, url); err != nil {
		e.failDeploy(ctx, projectID, fmt.Errorf("persist remote url: %w", err))
		return
	}

	e.log(ctx, projectID, agent.Deploy, storage.LevelInfo,
		fmt.Sprintf("Deployed to %s", url), nil)
	e.report(ctx, projectID, PhaseDeployed, 100, "Deployed to GitHub", "Done")
	final = PhaseDeployed
}

func (e *Engine) failDeploy(ctx context.Context, projectID string, err error) {
	e.logger.Error("Deployment failed",
		slog.String("project_id", projectID),
		slog.String("error", err.Error()))
	e.log(ctx, projectID, agent.Deploy, storage.LevelError, err.Error(), nil)
	e.report(ctx, projectID, PhaseReady, 100, fmt.Sprintf("Deployment failed: %s", err), "Error")
}
