package install

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/flanksource/commons/logger"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
	"github.com/pthomasgarcia/packwatch/internal/config"
)

// ArchiveInstaller extracts a downloaded archive and applies one of the
// four archive-based install strategies (spec.md §4.7).
type ArchiveInstaller struct {
	runner  *Runner
	workDir string
}

// NewArchiveInstaller returns an ArchiveInstaller that extracts archives
// under workDir and runs subprocesses through runner.
func NewArchiveInstaller(runner *Runner, workDir string) *ArchiveInstaller {
	return &ArchiveInstaller{runner: runner, workDir: workDir}
}

// Install extracts archivePath and applies cfg.InstallStrategy.
func (a *ArchiveInstaller) Install(ctx context.Context, cfg *config.AppConfig, archivePath string) error {
	extractDir, err := os.MkdirTemp(a.workDir, "packwatch-extract-*")
	if err != nil {
		return apperrors.Wrap(apperrors.Installation, err, "create extraction directory").WithApp(cfg.AppKey)
	}
	defer os.RemoveAll(extractDir)

	if err := ExtractArchive(archivePath, extractDir); err != nil {
		return err
	}

	switch cfg.InstallStrategy {
	case config.StrategyMoveBinary:
		return a.moveBinary(cfg, extractDir)
	case config.StrategyCopyRootContents:
		return a.copyRootContents(cfg, extractDir)
	case config.StrategyCompile:
		return a.compile(ctx, cfg, extractDir)
	case config.StrategyMoveAppImage:
		return a.moveAppImage(cfg, extractDir)
	default:
		return apperrors.New(apperrors.Config,
			fmt.Sprintf("unknown install_strategy %q", cfg.InstallStrategy)).WithApp(cfg.AppKey)
	}
}

// moveBinary locates cfg.BinaryName within the extracted tree and copies
// it to cfg.InstallPath, setting the executable bit.
func (a *ArchiveInstaller) moveBinary(cfg *config.AppConfig, extractDir string) error {
	if cfg.BinaryName == "" || cfg.InstallPath == "" {
		return apperrors.New(apperrors.Config, "move_binary requires binary_name and install_path").WithApp(cfg.AppKey)
	}

	src, err := FindBinary(extractDir, cfg.BinaryName)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.InstallPath), 0o755); err != nil {
		return apperrors.Wrap(apperrors.Installation, err, "create install directory").WithApp(cfg.AppKey)
	}

	if err := copyFile(src, cfg.InstallPath, 0o755); err != nil {
		return apperrors.Wrap(apperrors.Installation, err, "copy binary into place").WithApp(cfg.AppKey)
	}

	logger.Infof("install: %s: moved binary to %s", cfg.AppKey, cfg.InstallPath)
	return nil
}

// copyRootContents copies the extracted tree to cfg.InstallPath,
// descending first into the archive's single top-level directory when
// that is all it holds — used for applications distributed as a self-contained
// directory tree (e.g. a bundled runtime plus launcher scripts).
func (a *ArchiveInstaller) copyRootContents(cfg *config.AppConfig, extractDir string) error {
	if cfg.InstallPath == "" {
		return apperrors.New(apperrors.Config, "copy_root_contents requires install_path").WithApp(cfg.AppKey)
	}

	root := extractDir
	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return apperrors.Wrap(apperrors.Installation, err, "read extracted directory").WithApp(cfg.AppKey)
	}
	// Archives commonly wrap their contents in a single top-level
	// directory (e.g. "myapp-1.2.3/"); descend into it when present so
	// install_path doesn't end up with a redundant nested directory.
	if len(entries) == 1 && entries[0].IsDir() {
		root = filepath.Join(extractDir, entries[0].Name())
	}

	if err := os.MkdirAll(cfg.InstallPath, 0o755); err != nil {
		return apperrors.Wrap(apperrors.Installation, err, "create install directory").WithApp(cfg.AppKey)
	}

	if err := copyTree(root, cfg.InstallPath); err != nil {
		return apperrors.Wrap(apperrors.Installation, err, "copy extracted tree into place").WithApp(cfg.AppKey)
	}

	logger.Infof("install: %s: copied tree to %s", cfg.AppKey, cfg.InstallPath)
	return nil
}

// compile runs ./configure, make, and make install in sequence inside
// the extracted tree, each bounded by the runner's timeout.
func (a *ArchiveInstaller) compile(ctx context.Context, cfg *config.AppConfig, extractDir string) error {
	root := extractDir
	entries, err := os.ReadDir(extractDir)
	if err == nil && len(entries) == 1 && entries[0].IsDir() {
		root = filepath.Join(extractDir, entries[0].Name())
	}

	steps := [][]string{
		{filepath.Join(root, "configure")},
		{"make"},
		{"make", "install"},
	}
	for _, argv := range steps {
		if _, err := os.Stat(argv[0]); argv[0] == filepath.Join(root, "configure") && err != nil {
			continue // some projects ship without a configure script
		}
		if _, err := a.runner.Run(ctx, cfg.AppKey+":compile", argv, root, nil); err != nil {
			return apperrors.Wrap(apperrors.Compilation, err,
				fmt.Sprintf("compile step %v failed", argv)).WithApp(cfg.AppKey)
		}
	}

	logger.Infof("install: %s: compiled and installed from source", cfg.AppKey)
	return nil
}

// moveAppImage installs an extracted AppImage binary to cfg.InstallPath
// and marks it executable, mirroring moveBinary but named separately
// since AppImages are a distinct install_strategy in spec.md §4.7.
func (a *ArchiveInstaller) moveAppImage(cfg *config.AppConfig, extractDir string) error {
	return a.moveBinary(cfg, extractDir)
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Chmod(mode)
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			_ = os.Remove(target)
			return os.Symlink(link, target)
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}
