// Package orchestrator implements C9: driving every configured,
// enabled app through the pipeline in sequence and aggregating the
// outcome counts the CLI reports and bases its exit code on.
package orchestrator

import (
	"context"

	"github.com/flanksource/commons/logger"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
	"github.com/pthomasgarcia/packwatch/internal/config"
	"github.com/pthomasgarcia/packwatch/internal/pipeline"
)

// Summary aggregates per-outcome counts across a full run.
type Summary struct {
	Results   []pipeline.Result
	UpToDate  int
	Updated   int
	Skipped   int
	Failed    int
}

// Run drives every app in apps through p in order, sequentially — apps
// are not run concurrently, since many install strategies (dpkg, make
// install, flatpak) are not safe to run in parallel against shared
// system state (spec.md §4.9).
func Run(ctx context.Context, p *pipeline.Pipeline, apps []*config.AppConfig) Summary {
	summary := Summary{Results: make([]pipeline.Result, 0, len(apps))}

	for _, app := range apps {
		logger.Infof("orchestrator: checking %s", app.AppKey)
		result := p.Run(ctx, app)
		summary.Results = append(summary.Results, result)

		switch result.Outcome {
		case pipeline.OutcomeUpToDate:
			summary.UpToDate++
		case pipeline.OutcomeUpdated:
			summary.Updated++
		case pipeline.OutcomeSkipped:
			summary.Skipped++
		case pipeline.OutcomeFailed:
			summary.Failed++
		}
	}

	return summary
}

// ExitCode returns the process exit code for a completed Summary: 0 if
// every app succeeded (or was skipped/up-to-date), or the exit code of
// the first failure's error otherwise, so a mixed run's exit status
// still identifies a meaningful failure class rather than a generic 1.
func (s Summary) ExitCode() int {
	if s.Failed == 0 {
		return 0
	}
	for _, r := range s.Results {
		if r.Outcome == pipeline.OutcomeFailed {
			return apperrors.ExitCode(r.Err)
		}
	}
	return 1
}
