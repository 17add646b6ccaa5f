package engine

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthomasgarcia/packwatch/internal/config"
	"github.com/pthomasgarcia/packwatch/internal/install"
)

func buildTestTarGz(t *testing.T, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, contents := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(contents))}))
		_, err := tw.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "artifact.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestInstallerDispatchesArchiveForDirectDownload(t *testing.T) {
	archivePath := buildTestTarGz(t, map[string]string{"mybin": "#!/bin/sh\necho hi\n"})
	runner := install.NewRunner(t.TempDir(), 5*time.Second)
	i := NewInstaller(runner, t.TempDir())

	installDir := t.TempDir()
	cfg := &config.AppConfig{
		AppKey: "app", Type: config.TypeDirectDownload,
		InstallStrategy: config.StrategyMoveBinary,
		BinaryName:      "mybin",
		InstallPath:     filepath.Join(installDir, "mybin"),
	}

	err := i.Install(context.Background(), cfg, archivePath)
	require.NoError(t, err)

	info, err := os.Stat(cfg.InstallPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestInstallerRejectsUnresolvedCustomType(t *testing.T) {
	runner := install.NewRunner(t.TempDir(), 5*time.Second)
	i := NewInstaller(runner, t.TempDir())
	cfg := &config.AppConfig{AppKey: "app", Type: config.TypeCustom}

	err := i.Install(context.Background(), cfg, "/tmp/whatever")
	require.Error(t, err)
}

func TestInstallerRejectsUnknownType(t *testing.T) {
	runner := install.NewRunner(t.TempDir(), 5*time.Second)
	i := NewInstaller(runner, t.TempDir())
	cfg := &config.AppConfig{AppKey: "app", Type: config.Type("nonsense")}

	err := i.Install(context.Background(), cfg, "/tmp/whatever")
	require.Error(t, err)
}
