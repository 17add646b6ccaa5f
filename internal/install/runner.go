// Package install implements C7: executing the five installer strategies
// (deb, archive→compile, archive→binary, archive→tree, archive→appimage)
// plus flatpak and script passthrough, always via argv arrays through
// os/exec — never a shell — with per-invocation timeouts and run-scoped
// log files, grounded on the teacher's pkg/version subprocess idioms.
package install

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/flanksource/commons/logger"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
)

// RunResult captures a completed subprocess invocation.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	LogPath  string
}

// Runner executes argv-array commands with a bounded timeout, writing
// combined output to a run-scoped log file under logDir.
type Runner struct {
	logDir  string
	timeout time.Duration
}

// NewRunner returns a Runner that writes logs under logDir and bounds
// every invocation to timeout.
func NewRunner(logDir string, timeout time.Duration) *Runner {
	return &Runner{logDir: logDir, timeout: timeout}
}

// Run executes argv[0] with argv[1:] as arguments, in dir (if non-empty),
// with env appended to the current environment. It never goes through a
// shell, so argv elements are never interpreted for globbing or
// substitution — the single defense against injection from
// attacker-controlled version strings or filenames.
func (r *Runner) Run(ctx context.Context, label string, argv []string, dir string, env []string) (RunResult, error) {
	if len(argv) == 0 {
		return RunResult{}, apperrors.New(apperrors.Installation, "empty command")
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	if dir != "" {
		cmd.Dir = dir
	}
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logPath, logErr := r.openLog(label)
	if logErr != nil {
		logger.Warnf("install: failed to create run log for %s: %v", label, logErr)
	}

	logger.Debugf("install: running %s: %v", label, argv)
	runErr := cmd.Run()

	result := RunResult{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		LogPath: logPath,
	}

	if logPath != "" {
		r.writeLog(logPath, argv, result)
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return result, apperrors.New(apperrors.Timeout, fmt.Sprintf("%s: timed out after %s", label, r.timeout))
	}

	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			return result, apperrors.Wrap(apperrors.Installation, runErr, label+": failed to start")
		}
		result.ExitCode = exitErr.ExitCode()
		return result, apperrors.New(apperrors.Installation,
			fmt.Sprintf("%s: exited with status %d: %s", label, result.ExitCode, lastLine(result.Stderr)))
	}

	return result, nil
}

// RunWithStdin behaves like Run but feeds stdin's contents to the
// subprocess, used by the custom-checker protocol (C10) to pass an
// app's configuration as JSON on stdin.
func (r *Runner) RunWithStdin(ctx context.Context, label string, argv []string, dir string, env []string, stdin io.Reader) (RunResult, error) {
	if len(argv) == 0 {
		return RunResult{}, apperrors.New(apperrors.Installation, "empty command")
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	if dir != "" {
		cmd.Dir = dir
	}
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	cmd.Stdin = stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logPath, logErr := r.openLog(label)
	if logErr != nil {
		logger.Warnf("install: failed to create run log for %s: %v", label, logErr)
	}

	logger.Debugf("install: running %s (with stdin): %v", label, argv)
	runErr := cmd.Run()

	result := RunResult{Stdout: stdout.String(), Stderr: stderr.String(), LogPath: logPath}
	if logPath != "" {
		r.writeLog(logPath, argv, result)
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return result, apperrors.New(apperrors.Timeout, fmt.Sprintf("%s: timed out after %s", label, r.timeout))
	}

	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			return result, apperrors.Wrap(apperrors.Installation, runErr, label+": failed to start")
		}
		result.ExitCode = exitErr.ExitCode()
		return result, apperrors.New(apperrors.Installation,
			fmt.Sprintf("%s: exited with status %d: %s", label, result.ExitCode, lastLine(result.Stderr)))
	}

	return result, nil
}

func (r *Runner) openLog(label string) (string, error) {
	if r.logDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(r.logDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%d.log", sanitizeLabel(label), time.Now().UnixNano())
	return filepath.Join(r.logDir, name), nil
}

func (r *Runner) writeLog(path string, argv []string, result RunResult) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "command: %v\nexit_code: %d\n\n--- stdout ---\n%s\n--- stderr ---\n%s\n",
		argv, result.ExitCode, result.Stdout, result.Stderr)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		logger.Warnf("install: failed to write run log %s: %v", path, err)
	}
}

func sanitizeLabel(label string) string {
	out := make([]rune, 0, len(label))
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func lastLine(s string) string {
	lines := []byte(s)
	start := len(lines)
	for start > 0 && lines[start-1] == '\n' {
		start--
	}
	end := start
	start = end
	for start > 0 && lines[start-1] != '\n' {
		start--
	}
	if start == end {
		return ""
	}
	return string(lines[start:end])
}
