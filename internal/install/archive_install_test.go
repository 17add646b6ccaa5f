package install

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthomasgarcia/packwatch/internal/config"
)

func TestArchiveInstallerMoveBinaryCopiesExecutable(t *testing.T) {
	archivePath := buildTarGz(t, map[string]string{
		"pkg/bin/mytool": "#!/bin/sh\necho hi\n",
	})
	workDir := t.TempDir()
	installPath := filepath.Join(t.TempDir(), "install", "mytool")

	runner := NewRunner(t.TempDir(), 5*time.Second)
	installer := NewArchiveInstaller(runner, workDir)

	cfg := &config.AppConfig{
		AppKey:          "mytool",
		InstallStrategy: config.StrategyMoveBinary,
		BinaryName:      "mytool",
		InstallPath:     installPath,
	}

	require.NoError(t, installer.Install(context.Background(), cfg, archivePath))

	info, err := os.Stat(installPath)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100, "installed binary must be executable")
}

func TestArchiveInstallerCopyRootContentsFlattensSingleTopDir(t *testing.T) {
	archivePath := buildTarGz(t, map[string]string{
		"pkg-1.0/README.txt":  "readme",
		"pkg-1.0/bin/run.sh":  "#!/bin/sh\n",
	})
	workDir := t.TempDir()
	installPath := filepath.Join(t.TempDir(), "install")

	runner := NewRunner(t.TempDir(), 5*time.Second)
	installer := NewArchiveInstaller(runner, workDir)

	cfg := &config.AppConfig{
		AppKey:          "pkgapp",
		InstallStrategy: config.StrategyCopyRootContents,
		InstallPath:     installPath,
	}

	require.NoError(t, installer.Install(context.Background(), cfg, archivePath))

	_, err := os.Stat(filepath.Join(installPath, "README.txt"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(installPath, "bin", "run.sh"))
	require.NoError(t, err)
}

func TestArchiveInstallerUnknownStrategyFails(t *testing.T) {
	archivePath := buildTarGz(t, map[string]string{"a": "b"})
	runner := NewRunner(t.TempDir(), 5*time.Second)
	installer := NewArchiveInstaller(runner, t.TempDir())

	cfg := &config.AppConfig{AppKey: "x", InstallStrategy: config.InstallStrategy("unknown")}
	err := installer.Install(context.Background(), cfg, archivePath)
	require.Error(t, err)
}

func TestArchiveInstallerMoveBinaryMissingConfigFails(t *testing.T) {
	archivePath := buildTarGz(t, map[string]string{"pkg/bin/mytool": "x"})
	runner := NewRunner(t.TempDir(), 5*time.Second)
	installer := NewArchiveInstaller(runner, t.TempDir())

	cfg := &config.AppConfig{AppKey: "x", InstallStrategy: config.StrategyMoveBinary}
	err := installer.Install(context.Background(), cfg, archivePath)
	require.Error(t, err)
}
