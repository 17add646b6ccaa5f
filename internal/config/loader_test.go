package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadReadsAllEnabledApps(t *testing.T) {
	dir := t.TempDir()
	writeConfFile(t, dir, "firefox.json", `{
		"app_key": "firefox", "name": "Firefox", "type": "github_release",
		"enabled": true, "repo_owner": "mozilla", "repo_name": "firefox",
		"filename_pattern_template": "firefox-%s.tar.bz2",
		"download_url": "https://example.com/firefox.tar.bz2"
	}`)
	writeConfFile(t, dir, "disabled-app.json", `{
		"app_key": "disabled-app", "name": "Disabled", "type": "flatpak",
		"enabled": false, "flatpak_app_id": "org.example.Disabled"
	}`)

	store, err := Load(dir)
	require.NoError(t, err)

	enabled := store.List()
	require.Len(t, enabled, 1)
	assert.Equal(t, "firefox", enabled[0].AppKey)

	all := store.All()
	assert.Len(t, all, 2)
}

func TestLoadRejectsFilenameAppKeyMismatch(t *testing.T) {
	dir := t.TempDir()
	writeConfFile(t, dir, "firefox.json", `{
		"app_key": "chrome", "name": "Firefox", "type": "flatpak",
		"enabled": true, "flatpak_app_id": "org.mozilla.firefox"
	}`)

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match filename")
}

func TestLoadCollectsMultipleErrors(t *testing.T) {
	dir := t.TempDir()
	writeConfFile(t, dir, "bad1.json", `{"app_key": "bad1", "name": "", "type": "flatpak"}`)
	writeConfFile(t, dir, "bad2.json", `{"app_key": "bad2", "type": "flatpak"}`)

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad1.json")
	assert.Contains(t, err.Error(), "bad2.json")
}

func TestStoreGetSuggestsClosestKeyOnTypo(t *testing.T) {
	dir := t.TempDir()
	writeConfFile(t, dir, "firefox.json", `{
		"app_key": "firefox", "name": "Firefox", "type": "flatpak",
		"enabled": true, "flatpak_app_id": "org.mozilla.firefox"
	}`)
	store, err := Load(dir)
	require.NoError(t, err)

	_, err = store.Get("firefxo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "firefox")
}

func TestStoreGetReturnsConfiguredApp(t *testing.T) {
	dir := t.TempDir()
	writeConfFile(t, dir, "firefox.json", `{
		"app_key": "firefox", "name": "Firefox", "type": "flatpak",
		"enabled": true, "flatpak_app_id": "org.mozilla.firefox"
	}`)
	store, err := Load(dir)
	require.NoError(t, err)

	cfg, err := store.Get("firefox")
	require.NoError(t, err)
	assert.Equal(t, "Firefox", cfg.Name)
}
