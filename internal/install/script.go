package install

import (
	"context"
	"os"

	"github.com/flanksource/commons/logger"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
	"github.com/pthomasgarcia/packwatch/internal/config"
)

// ScriptInstaller executes a downloaded installer script directly (the
// "script" app type, spec.md §4.7), e.g. a vendor-provided shell
// installer. The script is made executable and run with no arguments,
// through the same argv-array Runner every other strategy uses — never
// piped into "sh" — so packwatch never trusts shell metacharacters in a
// downloaded file.
type ScriptInstaller struct {
	runner *Runner
}

// NewScriptInstaller returns a ScriptInstaller that runs scripts through
// runner.
func NewScriptInstaller(runner *Runner) *ScriptInstaller {
	return &ScriptInstaller{runner: runner}
}

// Run marks scriptPath executable and runs it.
func (s *ScriptInstaller) Run(ctx context.Context, cfg *config.AppConfig, scriptPath string) error {
	if err := os.Chmod(scriptPath, 0o755); err != nil {
		return apperrors.Wrap(apperrors.Installation, err, "make script executable").WithApp(cfg.AppKey)
	}

	if _, err := s.runner.Run(ctx, cfg.AppKey+":script", []string{scriptPath}, "", nil); err != nil {
		return apperrors.Wrap(apperrors.Installation, err, "installer script failed").WithApp(cfg.AppKey)
	}

	logger.Infof("install: %s: installer script completed", cfg.AppKey)
	return nil
}
