package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
)

var validTypes = map[Type]bool{
	TypeGithubRelease:  true,
	TypeDirectDownload: true,
	TypeAppImage:       true,
	TypeScript:         true,
	TypeFlatpak:        true,
	TypeCustom:         true,
}

// Validate checks an AppConfig for completeness and policy compliance
// before it can be used by any pipeline stage. It is intentionally strict:
// a malformed config must fail fast at load time (spec.md §4.1), not
// surface as a confusing failure mid-pipeline.
func Validate(cfg *AppConfig) error {
	if cfg.AppKey == "" {
		return apperrors.New(apperrors.Config, "app_key is required")
	}
	if cfg.Name == "" {
		return apperrors.New(apperrors.Config, "name is required").WithApp(cfg.AppKey)
	}
	if !validTypes[cfg.Type] {
		return apperrors.New(apperrors.Config,
			fmt.Sprintf("unknown type %q", cfg.Type)).WithApp(cfg.AppKey)
	}

	for _, field := range requiredFields[cfg.Type] {
		if cfg.fieldValue(field) == "" {
			return apperrors.New(apperrors.Config,
				fmt.Sprintf("field %q is required for type %q", field, cfg.Type)).WithApp(cfg.AppKey)
		}
	}

	if err := validateURLs(cfg); err != nil {
		return err
	}
	if err := validateInstallPath(cfg); err != nil {
		return err
	}
	if err := validateChecksumPolicy(cfg); err != nil {
		return err
	}
	return nil
}

// validateURLs enforces the HTTPS-only policy (spec.md §4.3): any
// configured URL must use https:// unless the app's allow_insecure_http
// flag is set, in which case any host is accepted — the flag is a
// per-app opt-in, not scoped to loopback addresses.
func validateURLs(cfg *AppConfig) error {
	candidates := []string{cfg.DownloadURL, cfg.VersionURL, cfg.ChecksumURL, cfg.SigURL}
	for _, raw := range candidates {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return apperrors.New(apperrors.Config,
				fmt.Sprintf("invalid URL %q: %v", raw, err)).WithApp(cfg.AppKey)
		}
		if u.Scheme == "https" {
			continue
		}
		if u.Scheme == "http" && cfg.AllowInsecureHTTP {
			continue
		}
		return apperrors.New(apperrors.Security,
			fmt.Sprintf("URL %q must use https (set allow_insecure_http for local testing only)", raw)).
			WithApp(cfg.AppKey)
	}
	return nil
}

// validateInstallPath rejects path traversal and install_path values
// that are neither absolute nor "~"-prefixed (spec.md §4.1, §4.7).
func validateInstallPath(cfg *AppConfig) error {
	if cfg.InstallPath == "" {
		return nil
	}
	if !filepath.IsAbs(cfg.InstallPath) && !isHomeRelative(cfg.InstallPath) {
		return apperrors.New(apperrors.Security,
			"install_path must be absolute or ~-prefixed").WithApp(cfg.AppKey)
	}
	clean := filepath.Clean(cfg.InstallPath)
	if (clean != cfg.InstallPath && clean+"/" != cfg.InstallPath) || strings.Contains(cfg.InstallPath, "..") {
		return apperrors.New(apperrors.Security,
			"install_path must not contain path traversal segments").WithApp(cfg.AppKey)
	}
	return nil
}

// isHomeRelative reports whether path is "~" or "~/..." — the spec's
// other accepted form for install_path alongside an absolute path.
func isHomeRelative(path string) bool {
	return path == "~" || strings.HasPrefix(path, "~/")
}

// validateChecksumPolicy enforces that at most one checksum source is
// configured at a time, since priority order (spec.md §4.6: explicit >
// release digest > checksum-file) assumes they're mutually exclusive
// per app, not stacked. expected_checksum is excluded from this check: it
// is never set in an on-disk conf.d file, only injected by the
// custom-checker verdict (spec.md §4.10) as the "explicit argument" that
// always outranks the other two.
func validateChecksumPolicy(cfg *AppConfig) error {
	sources := 0
	if cfg.ChecksumURL != "" {
		sources++
	}
	if cfg.ChecksumFromReleaseDigest {
		sources++
	}
	if sources > 1 {
		return apperrors.New(apperrors.Config,
			"checksum_url and checksum_from_release_digest are mutually exclusive").
			WithApp(cfg.AppKey)
	}
	return nil
}
