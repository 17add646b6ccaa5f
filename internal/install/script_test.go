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

func TestScriptInstallerRunsAndMarksExecutable(t *testing.T) {
	scriptPath := filepath.Join(t.TempDir(), "install.sh")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/bin/sh\nexit 0\n"), 0o644))

	runner := NewRunner(t.TempDir(), 5*time.Second)
	installer := NewScriptInstaller(runner)

	cfg := &config.AppConfig{AppKey: "myscript", Type: config.TypeScript}
	require.NoError(t, installer.Run(context.Background(), cfg, scriptPath))

	info, err := os.Stat(scriptPath)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100)
}

func TestScriptInstallerPropagatesFailure(t *testing.T) {
	scriptPath := filepath.Join(t.TempDir(), "install.sh")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/bin/sh\nexit 3\n"), 0o644))

	runner := NewRunner(t.TempDir(), 5*time.Second)
	installer := NewScriptInstaller(runner)

	cfg := &config.AppConfig{AppKey: "myscript", Type: config.TypeScript}
	err := installer.Run(context.Background(), cfg, scriptPath)
	require.Error(t, err)
}
