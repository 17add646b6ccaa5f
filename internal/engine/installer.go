package engine

import (
	"context"
	"strings"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
	"github.com/pthomasgarcia/packwatch/internal/config"
	"github.com/pthomasgarcia/packwatch/internal/install"
)

// Installer dispatches a downloaded artifact to the install strategy
// matching its app type and, for github_release/direct_download/appimage
// apps, its file suffix — .deb packages go through dpkg, every other
// archive suffix goes through ArchiveInstaller's extraction pipeline
// (spec.md §4.7).
type Installer struct {
	archive *install.ArchiveInstaller
	deb     *install.DebInstaller
	flatpak *install.FlatpakInstaller
	script  *install.ScriptInstaller
}

// NewInstaller returns an Installer wiring the archive, deb, flatpak and
// script installers.
func NewInstaller(runner *install.Runner, workDir string) *Installer {
	return &Installer{
		archive: install.NewArchiveInstaller(runner, workDir),
		deb:     install.NewDebInstaller(runner),
		flatpak: install.NewFlatpakInstaller(runner),
		script:  install.NewScriptInstaller(runner),
	}
}

// Install implements pipeline.Installer.
func (i *Installer) Install(ctx context.Context, cfg *config.AppConfig, localPath string) error {
	switch cfg.Type {
	case config.TypeFlatpak:
		return i.flatpak.Install(ctx, cfg)
	case config.TypeScript:
		return i.script.Run(ctx, cfg, localPath)
	case config.TypeGithubRelease, config.TypeDirectDownload, config.TypeAppImage:
		if strings.HasSuffix(localPath, ".deb") {
			return i.deb.Install(ctx, cfg, localPath)
		}
		return i.archive.Install(ctx, cfg, localPath)
	case config.TypeCustom:
		// A custom checker's verdict re-enters the pipeline with its
		// reported install_type already translated to one of the above
		// (internal/customchecker), so Installer should never see
		// TypeCustom directly.
		return apperrors.New(apperrors.Config, "custom type must resolve to a concrete install_type before Install").WithApp(cfg.AppKey)
	default:
		return apperrors.New(apperrors.Config, "unknown app type "+string(cfg.Type)).WithApp(cfg.AppKey)
	}
}
