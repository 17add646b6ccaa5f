package install

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
)

func TestRunSucceedsAndCapturesStdout(t *testing.T) {
	r := NewRunner(t.TempDir(), 5*time.Second)
	result, err := r.Run(context.Background(), "echo", []string{"echo", "hello"}, "", nil)
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, "hello")
	assert.Equal(t, 0, result.ExitCode)
}

func TestRunCapturesNonZeroExitCode(t *testing.T) {
	r := NewRunner(t.TempDir(), 5*time.Second)
	result, err := r.Run(context.Background(), "false", []string{"false"}, "", nil)
	require.Error(t, err)
	assert.Equal(t, 1, result.ExitCode)
	kind, ok := apperrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.Installation, kind)
}

func TestRunTimesOutOnSlowCommand(t *testing.T) {
	r := NewRunner(t.TempDir(), 50*time.Millisecond)
	_, err := r.Run(context.Background(), "sleep", []string{"sleep", "5"}, "", nil)
	require.Error(t, err)
	kind, ok := apperrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.Timeout, kind)
}

func TestRunRejectsEmptyArgv(t *testing.T) {
	r := NewRunner(t.TempDir(), time.Second)
	_, err := r.Run(context.Background(), "empty", nil, "", nil)
	require.Error(t, err)
}

func TestRunWritesRunScopedLogFile(t *testing.T) {
	logDir := t.TempDir()
	r := NewRunner(logDir, 5*time.Second)
	result, err := r.Run(context.Background(), "echo-test", []string{"echo", "logged"}, "", nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.LogPath)

	data, err := os.ReadFile(result.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "logged")
}

func TestRunUsesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0o644))

	r := NewRunner(t.TempDir(), 5*time.Second)
	result, err := r.Run(context.Background(), "ls", []string{"ls"}, dir, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, "marker.txt")
}

func TestSanitizeLabelReplacesUnsafeCharacters(t *testing.T) {
	assert.Equal(t, "foo_bar_baz", sanitizeLabel("foo/bar baz"))
}
