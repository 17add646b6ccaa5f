package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
	"github.com/pthomasgarcia/packwatch/internal/config"
	"github.com/pthomasgarcia/packwatch/internal/ledger"
	"github.com/pthomasgarcia/packwatch/internal/pipeline"
)

type stubResolver struct {
	version string
	url     string
	err     error
}

func (s stubResolver) ResolveLatest(ctx context.Context, cfg *config.AppConfig) (string, string, error) {
	return s.version, s.url, s.err
}

type stubDownloader struct{}

func (stubDownloader) Download(ctx context.Context, cfg *config.AppConfig, version, rawURL string) (string, error) {
	return "/tmp/x", nil
}

type stubVerifier struct{}

func (stubVerifier) Verify(ctx context.Context, cfg *config.AppConfig, path string) error { return nil }

type stubInstaller struct{}

func (stubInstaller) Install(ctx context.Context, cfg *config.AppConfig, path string) error { return nil }

type failingErr struct{}

func (failingErr) Error() string { return "network unreachable" }

func newOrchestratorTestPipeline(t *testing.T, version string, err error) *pipeline.Pipeline {
	t.Helper()
	led := ledger.New(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, led.Init())
	return pipeline.New(
		map[config.Type]pipeline.Resolver{config.TypeGithubRelease: stubResolver{version: version, url: "https://example.com/a", err: err}},
		stubDownloader{}, stubVerifier{}, stubInstaller{}, led, nil)
}

func TestRunAggregatesUpdatedCount(t *testing.T) {
	p := newOrchestratorTestPipeline(t, "1.0.0", nil)
	apps := []*config.AppConfig{
		{AppKey: "a", Type: config.TypeGithubRelease},
		{AppKey: "b", Type: config.TypeGithubRelease},
	}

	summary := Run(context.Background(), p, apps)
	assert.Equal(t, 2, summary.Updated)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.ExitCode())
}

func TestRunAggregatesFailedCountAndExitCode(t *testing.T) {
	p := newOrchestratorTestPipeline(t, "", failingErr{})
	apps := []*config.AppConfig{{AppKey: "a", Type: config.TypeGithubRelease}}

	summary := Run(context.Background(), p, apps)
	assert.Equal(t, 1, summary.Failed)
	assert.NotEqual(t, 0, summary.ExitCode())
}

func TestRunContinuesPastFailures(t *testing.T) {
	led := ledger.New(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, led.Init())

	resolvers := map[config.Type]pipeline.Resolver{
		config.TypeGithubRelease:  stubResolver{version: "1.0.0"},
		config.TypeDirectDownload: stubResolver{err: failingErr{}},
	}
	p := pipeline.New(resolvers, stubDownloader{}, stubVerifier{}, stubInstaller{}, led, nil)

	apps := []*config.AppConfig{
		{AppKey: "good", Type: config.TypeGithubRelease},
		{AppKey: "bad", Type: config.TypeDirectDownload},
	}

	summary := Run(context.Background(), p, apps)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Failed)
	assert.Len(t, summary.Results, 2)
}

func TestExitCodeZeroWhenNoFailures(t *testing.T) {
	s := Summary{}
	assert.Equal(t, 0, s.ExitCode())
}

func TestExitCodeReflectsFirstFailureKind(t *testing.T) {
	s := Summary{
		Failed: 1,
		Results: []pipeline.Result{
			{Outcome: pipeline.OutcomeUpdated},
			{Outcome: pipeline.OutcomeFailed, Err: apperrors.New(apperrors.Network, "boom")},
		},
	}
	assert.Equal(t, 10, s.ExitCode())
}
