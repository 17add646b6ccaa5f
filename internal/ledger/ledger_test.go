package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetThenGetRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	l := New(path)
	require.NoError(t, l.Init())

	entry := Entry{Version: "1.2.3", InstalledAt: time.Unix(1700000000, 0).UTC(), Checksum: "deadbeef"}
	require.NoError(t, l.Set("firefox", entry))

	got, ok, err := l.Get("firefox")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.Version, got.Version)
	assert.Equal(t, entry.Checksum, got.Checksum)
}

func TestGetOnMissingAppReturnsNotOK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	l := New(path)
	require.NoError(t, l.Init())

	_, ok, err := l.Get("nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetOnUninitializedLedgerTreatsAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "ledger.json")
	l := New(path)

	_, ok, err := l.Get("firefox")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetOverwritesExistingEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	l := New(path)
	require.NoError(t, l.Init())

	require.NoError(t, l.Set("firefox", Entry{Version: "1.0.0"}))
	require.NoError(t, l.Set("firefox", Entry{Version: "2.0.0"}))

	got, ok, err := l.Get("firefox")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2.0.0", got.Version)
}

func TestAllReturnsEveryRecordedApp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	l := New(path)
	require.NoError(t, l.Init())
	require.NoError(t, l.Set("firefox", Entry{Version: "1.0.0"}))
	require.NoError(t, l.Set("chrome", Entry{Version: "2.0.0"}))

	all, err := l.All()
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, []string{"chrome", "firefox"}, Keys(all))
}

func TestConcurrentSetsAreSerialized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	l := New(path)
	require.NoError(t, l.Init())

	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func(n int) {
			done <- l.Set("firefox", Entry{Version: "concurrent"})
		}(i)
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, <-done)
	}

	got, ok, err := l.Get("firefox")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "concurrent", got.Version)
}
