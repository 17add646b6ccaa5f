package install

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pthomasgarcia/packwatch/internal/config"
)

func TestFlatpakInstallerRejectsNonFlatpakConfig(t *testing.T) {
	runner := NewRunner(t.TempDir(), 5*time.Second)
	installer := NewFlatpakInstaller(runner)

	cfg := &config.AppConfig{AppKey: "x", Type: config.TypeGithubRelease}
	err := installer.Install(context.Background(), cfg)
	require.Error(t, err)
}

func TestFlatpakInstallerRejectsMissingAppID(t *testing.T) {
	runner := NewRunner(t.TempDir(), 5*time.Second)
	installer := NewFlatpakInstaller(runner)

	cfg := &config.AppConfig{AppKey: "x", Type: config.TypeFlatpak}
	err := installer.Install(context.Background(), cfg)
	require.Error(t, err)
}
