// Package repository resolves the latest release and matching asset for
// github_release apps (C4). HTTP transport and caching are delegated to
// internal/fetch; github.RepositoryRelease / github.ReleaseAsset from
// google/go-github are reused purely as JSON-decode targets for the
// GitHub releases API response — packwatch never calls go-github's own
// HTTP client, since internal/fetch already owns rate limiting, retry,
// and on-disk caching for every request the engine makes.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/go-github/v57/github"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
	"github.com/pthomasgarcia/packwatch/internal/fetch"
)

const defaultReleasesAPIBase = "https://api.github.com"

const releasesAPIPathFormat = "/repos/%s/%s/releases"

// Release is the trimmed view of a GitHub release packwatch acts on:
// a version tag plus its assets.
type Release struct {
	TagName string
	Assets  []Asset
	raw     *github.RepositoryRelease
}

// Asset is one downloadable file attached to a release.
type Asset struct {
	Name        string
	DownloadURL string
	Size        int64
	Digest      string // "algo:hex", populated by GitHub for some uploads
}

// Client discovers releases for a given owner/repo via the GitHub REST API.
type Client struct {
	http    *fetch.Client
	apiBase string
}

// New returns a repository Client backed by the given fetch.Client,
// talking to the real GitHub API.
func New(httpClient *fetch.Client) *Client {
	return &Client{http: httpClient, apiBase: defaultReleasesAPIBase}
}

// NewWithBase returns a repository Client against a custom API base URL,
// used by tests to point at an httptest fixture server.
func NewWithBase(httpClient *fetch.Client, apiBase string) *Client {
	return &Client{http: httpClient, apiBase: apiBase}
}

// LatestVersion fetches the releases list for owner/repo and returns the
// first non-draft, non-prerelease release's tag, normalized (spec.md
// §4.4: leading "v" stripped, whitespace trimmed, leading version
// prefix extracted) so the ledger and summary output carry a bare
// version rather than the tag's raw VCS conventions.
func (c *Client) LatestVersion(ctx context.Context, owner, repo string) (string, error) {
	releases, err := c.fetchReleases(ctx, owner, repo)
	if err != nil {
		return "", err
	}
	for _, r := range releases {
		if r.raw.GetDraft() || r.raw.GetPrerelease() {
			continue
		}
		return normalizeTag(r.TagName), nil
	}
	return "", apperrors.New(apperrors.Network,
		fmt.Sprintf("%s/%s: no published releases", owner, repo))
}

var versionPrefixPattern = regexp.MustCompile(`^[0-9.]+([-+][A-Za-z0-9.-]+)?`)

// normalizeTag strips a leading "v", trims whitespace, and extracts the
// leading numeric-dotted version prefix from a raw release tag.
func normalizeTag(raw string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	if m := versionPrefixPattern.FindString(trimmed); m != "" {
		return m
	}
	return trimmed
}

// FindRelease returns the release matching tag (accepting either the bare
// tag or a "v"-prefixed variant), used when re-verifying a pinned version.
func (c *Client) FindRelease(ctx context.Context, owner, repo, tag string) (*Release, error) {
	releases, err := c.fetchReleases(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	for _, r := range releases {
		if r.TagName == tag || r.TagName == "v"+tag || strings.TrimPrefix(r.TagName, "v") == tag {
			return &r, nil
		}
	}
	return nil, apperrors.New(apperrors.Network,
		fmt.Sprintf("%s/%s: release %q not found", owner, repo, tag))
}

// AssetURL resolves filenamePatternTemplate (a printf template with a
// single %s for the version) against release's assets, trying an exact
// filename match first and falling back to a regex built from the
// template so minor naming variance (e.g. architecture suffixes appended
// by the upstream project) still resolves.
func (r *Release) AssetURL(filenamePatternTemplate string) (string, error) {
	version := strings.TrimPrefix(r.TagName, "v")
	want := fmt.Sprintf(filenamePatternTemplate, version)

	for _, a := range r.Assets {
		if a.Name == want {
			return requireHTTPS(a.DownloadURL)
		}
	}

	pattern := templateToRegex(filenamePatternTemplate, version)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", apperrors.Wrap(apperrors.Config, err, "compile filename pattern")
	}
	for _, a := range r.Assets {
		if re.MatchString(a.Name) {
			return requireHTTPS(a.DownloadURL)
		}
	}

	return "", apperrors.New(apperrors.Network,
		fmt.Sprintf("no asset matching %q in release %s", want, r.TagName))
}

// AssetDigest returns the GitHub-reported digest for the asset matching
// filenamePatternTemplate, if GitHub computed one, for use as a
// checksum-from-release-digest source (spec.md §4.6 priority order).
func (r *Release) AssetDigest(filenamePatternTemplate string) (string, bool) {
	version := strings.TrimPrefix(r.TagName, "v")
	want := fmt.Sprintf(filenamePatternTemplate, version)
	for _, a := range r.Assets {
		if a.Name == want && a.Digest != "" {
			return a.Digest, true
		}
	}
	return "", false
}

func requireHTTPS(rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, "https://") {
		return "", apperrors.New(apperrors.Security, "asset download URL is not https")
	}
	return rawURL, nil
}

// templateToRegex converts a printf-style "%s" template into an anchored
// regex in which "%s" matches any text, escaping every literal segment so
// characters like "." in "app-%s.tar.gz" are not treated as wildcards.
func templateToRegex(template, version string) string {
	parts := strings.SplitN(template, "%s", 2)
	if len(parts) != 2 {
		return "^" + regexp.QuoteMeta(fmt.Sprintf(template, version)) + "$"
	}
	return "^" + regexp.QuoteMeta(parts[0]) + ".*" + regexp.QuoteMeta(parts[1]) + "$"
}

func (c *Client) fetchReleases(ctx context.Context, owner, repo string) ([]Release, error) {
	url := c.apiBase + fmt.Sprintf(releasesAPIPathFormat, owner, repo)
	resp, err := c.http.Get(ctx, url)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Network, err, "list releases")
	}
	defer resp.Body.Close()

	var raw []*github.RepositoryRelease
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, apperrors.Wrap(apperrors.Network, err, "decode releases response")
	}

	releases := make([]Release, 0, len(raw))
	for _, rel := range raw {
		assets := make([]Asset, 0, len(rel.Assets))
		for _, a := range rel.Assets {
			assets = append(assets, Asset{
				Name:        a.GetName(),
				DownloadURL: a.GetBrowserDownloadURL(),
				Size:        int64(a.GetSize()),
				Digest:      a.GetDigest(),
			})
		}
		releases = append(releases, Release{TagName: rel.GetTagName(), Assets: assets, raw: rel})
	}

	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].raw.GetPublishedAt().After(releases[j].raw.GetPublishedAt().Time)
	})

	return releases, nil
}
