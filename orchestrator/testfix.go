package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wrx861/agentai/agent"
	"github.com/wrx861/agentai/notify"
	"github.com/wrx861/agentai/storage"
)

const (
	// maxTestIterations bounds the test-fix loop; the 3rd test pass is final.
	maxTestIterations = 3
	// maxFixesPerRound bounds how many reported errors get a fix attempt.
	maxFixesPerRound = 3
	// maxSampledFiles bounds how many files the tester prompt includes.
	maxSampledFiles = 5
	// maxSampledContent truncates each sampled file's content, in bytes.
	maxSampledContent = 1000
)

// StartTestFix launches a test-fix run for the project. It returns
// ErrRunInFlight when the project already has a run in progress.
func (e *Engine) StartTestFix(projectID string) error {
	if err := e.guard.acquire(projectID); err != nil {
		rejectedTriggers.Inc()
		return err
	}
	runsStarted.WithLabelValues(runKindTestFix).Inc()

	go func() {
		defer e.guard.release(projectID)
		e.runTestFix(context.Background(), projectID)
	}()
	return nil
}

// runTestFix drives the bounded test-fix loop. The loop always terminates in
// phase ready: testing problems are non-blocking to project usability, so
// even provider errors and panics end as "ready with errors remaining",
// never as failed.
func (e *Engine) runTestFix(ctx context.Context, projectID string) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.settleTestFix(ctx, projectID, fmt.Sprintf("Testing aborted: %v", r), storage.LevelError)
		}
		runsCompleted.WithLabelValues(runKindTestFix, string(PhaseReady)).Inc()
		runDuration.WithLabelValues(runKindTestFix).Observe(time.Since(start).Seconds())
	}()

	e.log(ctx, projectID, agent.Tester, storage.LevelInfo, "Testing started", nil)

	for iteration := 0; iteration < maxTestIterations; iteration++ {
		files, err := e.store.ListFilesByProject(ctx, projectID)
		if err != nil {
			e.settleTestFix(ctx, projectID, fmt.Sprintf("Testing failed: %s", err), storage.LevelError)
			return
		}
		if len(files) == 0 {
			e.settleTestFix(ctx, projectID, "No files to test", storage.LevelInfo)
			return
		}

		pass := iteration + 1
		e.report(ctx, projectID, PhaseTesting, 50+pass*10,
			fmt.Sprintf("Running tests (pass %d)", pass), "Testing")

		report, err := e.runTestPass(ctx, projectID, files)
		if err != nil {
			e.settleTestFix(ctx, projectID, fmt.Sprintf("Testing failed: %s", err), storage.LevelError)
			return
		}

		e.report(ctx, projectID, PhaseTesting, 60+pass*10, "Analyzing results", "Analysis")

		if err := e.store.InsertTestResult(ctx, &storage.TestResult{
			ProjectID:   projectID,
			TestsPassed: report.TestsPassed,
			TestsFailed: report.TestsFailed,
			Errors:      report.Errors,
			Warnings:    report.Warnings,
		}); err != nil {
			e.settleTestFix(ctx, projectID, fmt.Sprintf("Testing failed: %s", err), storage.LevelError)
			return
		}
		e.log(ctx, projectID, agent.Tester, storage.LevelInfo,
			fmt.Sprintf("Test pass %d: %d passed, %d failed", iteration+1, report.TestsPassed, report.TestsFailed),
			map[string]any{"errors": report.Errors})

		if report.TestsFailed == 0 {
			e.settleTestFix(ctx, projectID, "All tests passed", storage.LevelInfo)
			return
		}
		if iteration == maxTestIterations-1 {
			e.settleTestFix(ctx, projectID,
				fmt.Sprintf("Ready with %d failing tests", report.TestsFailed), storage.LevelWarning)
			return
		}

		e.report(ctx, projectID, PhaseTesting, 70+pass*10, "Fixing errors", "Fixing")

		if fixed := e.fixErrors(ctx, projectID, files, report.Errors); fixed == 0 {
			e.settleTestFix(ctx, projectID,
				fmt.Sprintf("Ready with %d failing tests", report.TestsFailed), storage.LevelWarning)
			return
		}
		e.pause()
	}
}

// runTestPass issues one tester call over a bounded sample of the project's
// files and decodes the report, falling back to a zero-failure report when
// the output is unparseable.
func (e *Engine) runTestPass(ctx context.Context, projectID string, files []*storage.FileItem) (agent.TestReport, error) {
	sample := files
	if len(sample) > maxSampledFiles {
		sample = sample[:maxSampledFiles]
	}
	promptFiles := make([]agent.PromptFile, 0, len(sample))
	for _, f := range sample {
		promptFiles = append(promptFiles, agent.PromptFile{
			Path:     f.Path,
			Language: f.Language,
			Content:  f.Content,
		})
	}

	userPrompt := agent.Render(e.templates.Template(agent.Tester), map[string]string{
		"files": agent.FilesPromptSection(promptFiles, maxSampledContent),
	})
	content, err := e.complete(ctx, agent.Tester, userPrompt)
	if err != nil {
		return agent.TestReport{}, err
	}

	report, fromFallback := agent.ParseTestReport(content, len(files))
	if fromFallback {
		e.log(ctx, projectID, agent.Tester, storage.LevelWarning,
			"Tester output was not parseable, assuming review passed", nil)
	}
	return report, nil
}

// fixErrors attempts one fix round over the reported errors, bounded to
// maxFixesPerRound. Each fix is isolated: a provider error, unparseable fix,
// or store failure logs a warning and moves on to the next error. Returns
// how many fixes were applied.
func (e *Engine) fixErrors(ctx context.Context, projectID string, files []*storage.FileItem, errs []string) int {
	if len(errs) > maxFixesPerRound {
		errs = errs[:maxFixesPerRound]
	}

	fixed := 0
	for _, errText := range errs {
		target := targetFile(files, errText)

		userPrompt := agent.Render(e.templates.Template(agent.Fixer), map[string]string{
			"file_path": target.Path,
			"error":     errText,
			"code":      target.Content,
		})
		content, err := e.complete(ctx, agent.Fixer, userPrompt)
		if err != nil {
			e.log(ctx, projectID, agent.Fixer, storage.LevelWarning,
				fmt.Sprintf("Fix attempt for %s failed: %s", target.Path, err), nil)
			continue
		}

		fix, skip := agent.ParseFix(content)
		if skip {
			e.log(ctx, projectID, agent.Fixer, storage.LevelWarning,
				fmt.Sprintf("Fixer produced no usable code for %s", target.Path), nil)
			continue
		}

		if err := e.store.UpdateFileContent(ctx, target.ID, fix.FixedCode); err != nil {
			e.log(ctx, projectID, agent.Fixer, storage.LevelWarning,
				fmt.Sprintf("Failed to store fix for %s: %s", target.Path, err), nil)
			continue
		}
		target.Content = fix.FixedCode

		e.notifier.Publish(projectID, notify.TypeFileUpdated, map[string]any{
			"id":   target.ID,
			"path": target.Path,
		})
		e.log(ctx, projectID, agent.Fixer, storage.LevelInfo,
			fmt.Sprintf("Fixed %s", target.Path), map[string]any{
				"explanation": fix.Explanation,
			})
		fixed++
	}
	return fixed
}

// targetFile picks the file an error refers to: the first file whose path
// appears in the error text, else the first file.
func targetFile(files []*storage.FileItem, errText string) *storage.FileItem {
	for _, f := range files {
		if strings.Contains(errText, f.Path) {
			return f
		}
	}
	return files[0]
}

// settleTestFix is the loop's single terminal path: phase ready, progress
// 100, with the outcome in the status message.
func (e *Engine) settleTestFix(ctx context.Context, projectID, message, level string) {
	if level == storage.LevelError {
		e.logger.Error("Test-fix run ended with error",
			slog.String("project_id", projectID),
			slog.String("message", message))
	}
	e.log(ctx, projectID, agent.Tester, level, message, nil)
	e.report(ctx, projectID, PhaseReady, 100, message, "Done")
}
