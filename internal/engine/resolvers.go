// Package engine wires the concrete collaborators — repository lookups,
// the fetch client/cache, checksum/GPG verification, and the install
// strategies — into the pipeline.Resolver / Downloader / Verifier /
// Installer interfaces, one implementation per app config.Type.
package engine

import (
	"context"
	"errors"
	"io"
	"regexp"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
	"github.com/pthomasgarcia/packwatch/internal/config"
	"github.com/pthomasgarcia/packwatch/internal/fetch"
	"github.com/pthomasgarcia/packwatch/internal/install"
	"github.com/pthomasgarcia/packwatch/internal/repository"
)

// GithubResolver discovers the latest version and asset URL for
// github_release apps (C4).
type GithubResolver struct {
	repo *repository.Client
}

// NewGithubResolver returns a GithubResolver backed by repo.
func NewGithubResolver(repo *repository.Client) *GithubResolver {
	return &GithubResolver{repo: repo}
}

// ResolveLatest implements pipeline.Resolver.
func (g *GithubResolver) ResolveLatest(ctx context.Context, cfg *config.AppConfig) (string, string, error) {
	spec, ok := cfg.AsGithubRelease()
	if !ok {
		return "", "", apperrors.New(apperrors.Config, "not a github_release app").WithApp(cfg.AppKey)
	}

	version, err := g.repo.LatestVersion(ctx, spec.RepoOwner, spec.RepoName)
	if err != nil {
		return "", "", err
	}

	release, err := g.repo.FindRelease(ctx, spec.RepoOwner, spec.RepoName, version)
	if err != nil {
		return "", "", err
	}

	url, err := release.AssetURL(spec.FilenamePatternTemplate)
	if err != nil {
		return "", "", err
	}

	return version, url, nil
}

// DirectDownloadResolver discovers the latest version for
// direct_download and appimage apps by fetching version_url and
// applying version_regex, since these projects publish a single stable
// download URL rather than versioned release assets (spec.md §4.4).
type DirectDownloadResolver struct {
	http *fetch.Client
}

// NewDirectDownloadResolver returns a DirectDownloadResolver backed by httpClient.
func NewDirectDownloadResolver(httpClient *fetch.Client) *DirectDownloadResolver {
	return &DirectDownloadResolver{http: httpClient}
}

// ResolveLatest implements pipeline.Resolver for both direct_download
// and appimage types, which share the same version-page-scrape shape.
func (d *DirectDownloadResolver) ResolveLatest(ctx context.Context, cfg *config.AppConfig) (string, string, error) {
	if cfg.VersionURL == "" || cfg.VersionRegex == "" {
		// No version page configured: the fixed version string
		// "latest" is reported for the download URL; no checksum is
		// compared here to tell whether the artifact changed.
		return "latest", cfg.DownloadURL, nil
	}

	resp, err := d.http.Get(ctx, cfg.VersionURL)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	re, err := regexp.Compile(cfg.VersionRegex)
	if err != nil {
		return "", "", apperrors.Wrap(apperrors.Config, err, "compile version_regex").WithApp(cfg.AppKey)
	}

	buf := make([]byte, 64*1024)
	n, err := io.ReadFull(resp.Body, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", "", apperrors.Wrap(apperrors.Network, err, "read version_url").WithApp(cfg.AppKey)
	}
	match := re.FindSubmatch(buf[:n])
	if match == nil {
		return "", "", apperrors.New(apperrors.Validation, "version_regex did not match version_url contents").WithApp(cfg.AppKey)
	}
	version := string(match[0])
	if len(match) > 1 {
		version = string(match[1])
	}

	return version, cfg.DownloadURL, nil
}

// ScriptResolver discovers the latest version for "script" apps the
// same way DirectDownloadResolver does, but resolves to the script's own
// URL as the thing to download and execute rather than an archive.
type ScriptResolver struct {
	inner *DirectDownloadResolver
}

// NewScriptResolver returns a ScriptResolver backed by httpClient.
func NewScriptResolver(httpClient *fetch.Client) *ScriptResolver {
	return &ScriptResolver{inner: NewDirectDownloadResolver(httpClient)}
}

// ResolveLatest implements pipeline.Resolver.
func (s *ScriptResolver) ResolveLatest(ctx context.Context, cfg *config.AppConfig) (string, string, error) {
	return s.inner.ResolveLatest(ctx, cfg)
}

// FlatpakResolver reports the app's commit on the flathub remote
// (flatpak remote-info --commit) as the "version" for ledger purposes,
// since flatpak owns its own version numbering. The installed commit is
// not queried; the pipeline compares the remote commit with the ledger.
type FlatpakResolver struct {
	flatpak *install.FlatpakInstaller
	runner  *install.Runner
}

// NewFlatpakResolver returns a FlatpakResolver backed by runner.
func NewFlatpakResolver(runner *install.Runner) *FlatpakResolver {
	return &FlatpakResolver{flatpak: install.NewFlatpakInstaller(runner), runner: runner}
}

// ResolveLatest implements pipeline.Resolver. Flatpak manages its own
// download and install, so the "download URL" returned here is a
// sentinel the Installer/Downloader recognize rather than a real HTTP
// location.
func (f *FlatpakResolver) ResolveLatest(ctx context.Context, cfg *config.AppConfig) (string, string, error) {
	spec, ok := cfg.AsFlatpak()
	if !ok {
		return "", "", apperrors.New(apperrors.Config, "not a flatpak app").WithApp(cfg.AppKey)
	}
	result, err := f.runner.Run(ctx, cfg.AppKey+":flatpak-remote-info",
		[]string{"flatpak", "remote-info", "--commit", "flathub", spec.AppID}, "", nil)
	if err != nil {
		return "", "", apperrors.Wrap(apperrors.Network, err, "query flatpak remote commit").WithApp(cfg.AppKey)
	}
	return result.Stdout, config.FlatpakSentinelURL, nil
}
