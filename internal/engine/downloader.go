package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/flanksource/commons/logger"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
	"github.com/pthomasgarcia/packwatch/internal/config"
	"github.com/pthomasgarcia/packwatch/internal/fetch"
)

// Downloader fetches an artifact through the cache, falling back to a
// live request and populating the cache on a miss, then stages it into
// a deterministic, version-addressed path under artifactsDir so it
// survives across runs and is re-used rather than re-fetched (spec.md
// §3's Artifact semantics).
type Downloader struct {
	http         *fetch.Client
	cache        *fetch.Cache
	artifactsDir string
}

// NewDownloader returns a Downloader backed by httpClient and cache,
// staging downloaded artifacts under artifactsDir/<app_key>/v<version>/.
func NewDownloader(httpClient *fetch.Client, cache *fetch.Cache, artifactsDir string) *Downloader {
	return &Downloader{http: httpClient, cache: cache, artifactsDir: artifactsDir}
}

// Download implements pipeline.Downloader. version is the already
// resolved, normalized version being fetched.
func (d *Downloader) Download(ctx context.Context, cfg *config.AppConfig, version, rawURL string) (string, error) {
	if rawURL == config.FlatpakSentinelURL || cfg.Type == config.TypeFlatpak {
		return "", nil
	}

	target := d.artifactPath(cfg, version, rawURL)
	if d.reusable(cfg, target) {
		logger.Debugf("download: %s: reusing existing artifact at %s", cfg.AppKey, target)
		return target, nil
	}

	if path, ok := d.cache.Lookup(rawURL); ok && d.reusable(cfg, path) {
		logger.Debugf("download: %s: cache hit for %s", cfg.AppKey, rawURL)
		return d.stage(cfg, path, target)
	}

	resp, err := d.http.Get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	cachedPath, err := d.cache.Store(rawURL, resp.Body)
	if err != nil {
		return "", err
	}

	logger.Infof("download: %s: fetched %s", cfg.AppKey, rawURL)
	return d.stage(cfg, cachedPath, target)
}

// artifactPath returns the deterministic, version-addressed path an
// app's downloaded artifact is staged at: <artifacts_dir>/<app_key>/v<version>/<basename>.
func (d *Downloader) artifactPath(cfg *config.AppConfig, version, rawURL string) string {
	name := filenameFor(cfg)
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		name = filepath.Base(u.Path)
	}
	return filepath.Join(d.artifactsDir, cfg.AppKey, "v"+version, name)
}

// reusable reports whether target already holds a usable artifact: it
// exists, is non-empty, and — when an expected checksum is known —
// its sha256 matches, so a partially written or stale file is not
// silently reused.
func (d *Downloader) reusable(cfg *config.AppConfig, target string) bool {
	info, err := os.Stat(target)
	if err != nil || info.Size() == 0 {
		return false
	}
	if cfg.ExpectedChecksum == "" {
		return true
	}
	sum, err := sha256File(target)
	if err != nil {
		return false
	}
	return strings.EqualFold(sum, cfg.ExpectedChecksum)
}

// stage hardlinks (or copies, if linking fails across filesystems) the
// cached artifact into its deterministic path under its original
// filename, since install strategies key off the filename's suffix to
// infer archive format.
func (d *Downloader) stage(cfg *config.AppConfig, cachedPath, target string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return "", apperrors.Wrap(apperrors.Cache, err, "create artifact directory").WithApp(cfg.AppKey)
	}

	if err := os.Link(cachedPath, target); err != nil {
		if copyErr := copyFileContents(cachedPath, target); copyErr != nil {
			return "", apperrors.Wrap(apperrors.Cache, copyErr, "stage downloaded artifact").WithApp(cfg.AppKey)
		}
	}
	return target, nil
}

func filenameFor(cfg *config.AppConfig) string {
	raw := cfg.DownloadURL
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return filepath.Base(u.Path)
	}
	return cfg.AppKey + ".bin"
}

func copyFileContents(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
