package install

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pthomasgarcia/packwatch/internal/config"
)

func TestDebInstallerSanityCheckRejectsMissingFile(t *testing.T) {
	d := NewDebInstaller(NewRunner(t.TempDir(), 5*time.Second))
	cfg := &config.AppConfig{AppKey: "veracrypt", Type: config.TypeDirectDownload}

	err := d.SanityCheck(filepath.Join(t.TempDir(), "missing.deb"), cfg)
	require.Error(t, err)
}

func TestDebInstallerSanityCheckRejectsGarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.deb")
	require.NoError(t, os.WriteFile(path, []byte("not a deb file at all"), 0o644))

	d := NewDebInstaller(NewRunner(t.TempDir(), 5*time.Second))
	cfg := &config.AppConfig{AppKey: "veracrypt", Type: config.TypeDirectDownload}

	err := d.SanityCheck(path, cfg)
	require.Error(t, err)
}
