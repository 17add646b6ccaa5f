// Package pipeline implements C8: the per-app update lifecycle state
// machine and its six-slot hook system. Hooks are plain Go functions, not
// tied to any terminal-UI library — the teacher's flanksource/clicky task
// rendering is explicitly out of scope here (spec.md §1 places "terminal
// UI formatting and color" outside the engine boundary).
package pipeline

import (
	"context"

	"github.com/pthomasgarcia/packwatch/internal/config"
)

// Stage names the six lifecycle extension points an app's hooks can
// attach to.
type Stage string

const (
	PreCheck   Stage = "pre_check"
	PostCheck  Stage = "post_check"
	PreInstall Stage = "pre_install"
	PostInstall Stage = "post_install"
	PostVerify Stage = "post_verify"
	OnError    Stage = "error"
)

// Event carries the context a hook receives when invoked.
type Event struct {
	Stage  Stage
	App    *config.AppConfig
	Result *Result
	Err    error
}

// Hook is a single lifecycle callback. Returning an error from a hook
// other than OnError aborts the remainder of the pipeline for that app;
// an error from an OnError hook is logged but never escalated further,
// so a broken notifier can't mask the original failure.
type Hook func(ctx context.Context, event Event) error

// Hooks is a registry of callbacks per stage. Multiple hooks may be
// registered for the same stage; they run in registration order.
type Hooks struct {
	byStage map[Stage][]Hook
}

// NewHooks returns an empty hook registry.
func NewHooks() *Hooks {
	return &Hooks{byStage: make(map[Stage][]Hook)}
}

// On registers hook to run at stage.
func (h *Hooks) On(stage Stage, hook Hook) {
	h.byStage[stage] = append(h.byStage[stage], hook)
}

// Fire invokes every hook registered for event.Stage, in order. If stage
// is not OnError and a hook returns an error, Fire stops and returns it
// immediately. OnError hooks all run regardless of individual failures,
// since notification is best-effort by nature.
func (h *Hooks) Fire(ctx context.Context, event Event) error {
	for _, hook := range h.byStage[event.Stage] {
		if err := hook(ctx, event); err != nil {
			if event.Stage == OnError {
				continue
			}
			return err
		}
	}
	return nil
}
