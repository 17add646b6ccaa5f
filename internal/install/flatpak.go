package install

import (
	"context"

	"github.com/flanksource/commons/logger"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
	"github.com/pthomasgarcia/packwatch/internal/config"
)

// FlatpakInstaller is a thin passthrough to the flatpak CLI: Flatpak
// already owns version discovery, download, and signature verification
// for its own remotes, so packwatch's only job for this type is to ask
// it to update (or install, if absent) and report back (spec.md §4.7).
type FlatpakInstaller struct {
	runner *Runner
}

// NewFlatpakInstaller returns a FlatpakInstaller that invokes flatpak
// through runner.
func NewFlatpakInstaller(runner *Runner) *FlatpakInstaller {
	return &FlatpakInstaller{runner: runner}
}

// Install runs "flatpak install -y --or-update flathub <app_id>", letting
// flatpak itself decide whether this is a fresh install or an update.
func (f *FlatpakInstaller) Install(ctx context.Context, cfg *config.AppConfig) error {
	spec, ok := cfg.AsFlatpak()
	if !ok {
		return apperrors.New(apperrors.Config, "not a flatpak app").WithApp(cfg.AppKey)
	}
	if spec.AppID == "" {
		return apperrors.New(apperrors.Config, "flatpak_app_id is required").WithApp(cfg.AppKey)
	}

	argv := []string{"flatpak", "install", "-y", "--or-update", "flathub", spec.AppID}
	if _, err := f.runner.Run(ctx, cfg.AppKey+":flatpak", argv, "", nil); err != nil {
		return apperrors.Wrap(apperrors.Installation, err, "flatpak install failed").WithApp(cfg.AppKey)
	}

	logger.Infof("install: %s: flatpak install/update completed", cfg.AppKey)
	return nil
}

// InstalledVersion returns the version flatpak reports for spec.AppID,
// via "flatpak info --show-commit", used by C2 to compare against the
// latest available branch commit.
func (f *FlatpakInstaller) InstalledVersion(ctx context.Context, cfg *config.AppConfig) (string, error) {
	spec, ok := cfg.AsFlatpak()
	if !ok {
		return "", apperrors.New(apperrors.Config, "not a flatpak app").WithApp(cfg.AppKey)
	}

	result, err := f.runner.Run(ctx, cfg.AppKey+":flatpak-info",
		[]string{"flatpak", "info", "--show-commit", spec.AppID}, "", nil)
	if err != nil {
		return "", apperrors.Wrap(apperrors.Dependency, err, "not installed via flatpak").WithApp(cfg.AppKey)
	}
	return result.Stdout, nil
}
