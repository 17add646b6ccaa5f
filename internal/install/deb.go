package install

import (
	"context"
	"fmt"
	"os"
	"strings"

	"pault.ag/go/debian/control"
	"pault.ag/go/debian/deb"

	"github.com/flanksource/commons/logger"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
	"github.com/pthomasgarcia/packwatch/internal/config"
)

// debControl is the minimal set of control fields packwatch needs out of
// a .deb's control file, unpacked the same way paultag-go-archive's own
// Package type is built from a deb.Deb's control paragraph.
type debControl struct {
	control.Paragraph

	Package string `required:"true"`
}

// DebInstaller installs .deb packages via the system package manager
// after a metadata sanity check, grounded on paultag-go-archive's
// pault.ag/go/debian/deb usage for building .debs — packwatch only reads
// the control metadata those same types decode, never writes one.
type DebInstaller struct {
	runner *Runner
}

// NewDebInstaller returns a DebInstaller that runs dpkg/apt through runner.
func NewDebInstaller(runner *Runner) *DebInstaller {
	return &DebInstaller{runner: runner}
}

// SanityCheck opens debPath as a .deb archive and verifies it has a
// parseable control file naming a package, catching corrupt or
// truncated downloads before they reach a privileged package manager
// invocation (spec.md §4.7).
func (d *DebInstaller) SanityCheck(debPath string, cfg *config.AppConfig) error {
	f, err := os.Open(debPath)
	if err != nil {
		return apperrors.Wrap(apperrors.Installation, err, "open .deb file").WithApp(cfg.AppKey)
	}
	defer f.Close()

	debFile, err := deb.Load(f, debPath)
	if err != nil {
		return apperrors.Wrap(apperrors.Installation, err, ".deb file failed sanity check").WithApp(cfg.AppKey)
	}

	var ctl debControl
	if err := control.UnpackFromParagraph(debFile.Control.Paragraph, &ctl); err != nil {
		return apperrors.Wrap(apperrors.Installation, err, ".deb control file is malformed").WithApp(cfg.AppKey)
	}

	name := strings.TrimSpace(ctl.Package)
	if name == "" {
		return apperrors.New(apperrors.Installation, ".deb control file has no Package field").WithApp(cfg.AppKey)
	}

	if cfg.PackageName != "" && !strings.EqualFold(name, cfg.PackageName) {
		return apperrors.New(apperrors.Installation,
			fmt.Sprintf(".deb package name %q does not match configured package_name %q", name, cfg.PackageName)).
			WithApp(cfg.AppKey)
	}

	logger.Debugf("install: %s: .deb sanity check passed for package %s", cfg.AppKey, name)
	return nil
}

// Install invokes the system package manager (dpkg -i, falling back to
// apt-get install -f to resolve dependencies) to install debPath.
// Elevated privileges are assumed to already be held by the invoking
// process; packwatch never re-execs itself through sudo.
func (d *DebInstaller) Install(ctx context.Context, cfg *config.AppConfig, debPath string) error {
	if err := d.SanityCheck(debPath, cfg); err != nil {
		return err
	}

	if _, err := d.runner.Run(ctx, cfg.AppKey+":dpkg", []string{"dpkg", "-i", debPath}, "", nil); err != nil {
		logger.Warnf("install: %s: dpkg -i reported an error, attempting dependency resolution: %v", cfg.AppKey, err)
		if _, fixErr := d.runner.Run(ctx, cfg.AppKey+":apt-fix", []string{"apt-get", "install", "-f", "-y"}, "", nil); fixErr != nil {
			return apperrors.Wrap(apperrors.Installation, fixErr,
				"dpkg install failed and dependency resolution also failed").WithApp(cfg.AppKey)
		}
	}

	logger.Infof("install: %s: installed via dpkg", cfg.AppKey)
	return nil
}
