// Package customchecker implements C10: the untrusted-subprocess
// protocol for "custom" type apps. packwatch serializes the app's
// configuration to JSON, passes it as the checker function's sole
// argument, and parses a JSON verdict from its stdout. After a success
// verdict the engine re-enters the pipeline at Compare (not Discover),
// carrying the verdict's fields forward exactly as spec.md §4.10
// describes — never a "trust what the script installed" shortcut.
package customchecker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
	"github.com/pthomasgarcia/packwatch/internal/config"
	"github.com/pthomasgarcia/packwatch/internal/install"
)

// verdict is the JSON object the checker function must print to stdout.
type verdict struct {
	Status            string `json:"status"`
	LatestVersion     string `json:"latest_version"`
	Source            string `json:"source"`
	InstallType       string `json:"install_type"`
	DownloadURL       string `json:"download_url"`
	InstallTargetPath string `json:"install_target_path"`
	FlatpakAppID      string `json:"flatpak_app_id"`
	ChecksumURL       string `json:"checksum_url"`
	ExpectedChecksum  string `json:"expected_checksum"`
	GPGKeyID          string `json:"gpg_key_id"`
	GPGFingerprint    string `json:"gpg_fingerprint"`
	ErrorType         string `json:"error_type"`
	ErrorMessage      string `json:"error_message"`
}

// allowedInstallTypes is the closed set a custom checker may hand
// installation back to, deliberately excluding "custom" itself so a
// checker can never re-enter its own protocol (spec.md §4.10).
var allowedInstallTypes = map[string]bool{
	"deb":      true,
	"appimage": true,
	"flatpak":  true,
	"tgz":      true,
}

// Checker invokes a custom_checker_script/custom_checker_func pair and
// mutates the app's config in place with the verdict's fields, so every
// downstream pipeline stage (Download, Verify, Install) sees an AppConfig
// that looks exactly like a built-in type's resolved config.
type Checker struct {
	runner *install.Runner
}

// New returns a Checker that runs scripts through runner.
func New(runner *install.Runner) *Checker {
	return &Checker{runner: runner}
}

// Check runs cfg's custom checker function and applies its verdict to cfg.
// It returns the verdict's latest_version, the value ResolveLatest also
// needs to satisfy pipeline.Resolver.
func (c *Checker) Check(ctx context.Context, cfg *config.AppConfig) (string, error) {
	spec, ok := cfg.AsCustom()
	if !ok {
		return "", apperrors.New(apperrors.Config, "not a custom-checker app").WithApp(cfg.AppKey)
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CustomChecker, err, "marshal effective config").WithApp(cfg.AppKey)
	}

	result, err := c.runner.RunWithStdin(ctx, cfg.AppKey+":custom-checker",
		[]string{spec.Script, spec.Func, string(payload)}, "", nil, bytes.NewReader(payload))
	if err != nil {
		return "", apperrors.Wrap(apperrors.CustomChecker, err, "custom checker script failed").WithApp(cfg.AppKey)
	}

	var v verdict
	if err := json.Unmarshal([]byte(result.Stdout), &v); err != nil {
		return "", apperrors.Wrap(apperrors.CustomChecker, err, "parse custom checker output").WithApp(cfg.AppKey)
	}

	switch v.Status {
	case "no_update":
		return "", apperrors.New(apperrors.CustomChecker, "no update available").WithApp(cfg.AppKey)
	case "error":
		return "", apperrors.New(apperrors.CustomChecker,
			fmt.Sprintf("%s: %s", v.ErrorType, v.ErrorMessage)).WithApp(cfg.AppKey)
	case "success":
		// fall through
	default:
		return "", apperrors.New(apperrors.CustomChecker,
			fmt.Sprintf("checker verdict has unknown status %q", v.Status)).WithApp(cfg.AppKey)
	}

	if v.LatestVersion == "" {
		return "", apperrors.New(apperrors.CustomChecker, "success verdict missing latest_version").WithApp(cfg.AppKey)
	}
	if !allowedInstallTypes[v.InstallType] {
		return "", apperrors.New(apperrors.Config,
			fmt.Sprintf("checker verdict has unsupported install_type %q", v.InstallType)).WithApp(cfg.AppKey)
	}

	applyVerdict(cfg, v)
	return v.LatestVersion, nil
}

// applyVerdict rewrites cfg's type-dispatch and verification fields from
// the verdict, so the rest of the pipeline can treat it like any
// built-in resolved config from this point on.
func applyVerdict(cfg *config.AppConfig, v verdict) {
	switch v.InstallType {
	case "flatpak":
		cfg.Type = config.TypeFlatpak
		if v.FlatpakAppID != "" {
			cfg.FlatpakAppID = v.FlatpakAppID
		}
	case "appimage":
		cfg.Type = config.TypeAppImage
		cfg.InstallStrategy = config.StrategyMoveAppImage
		cfg.DownloadURL = v.DownloadURL
	case "deb", "tgz":
		cfg.Type = config.TypeDirectDownload
		cfg.DownloadURL = v.DownloadURL
	}

	if v.InstallTargetPath != "" {
		cfg.InstallPath = v.InstallTargetPath
	}
	if v.ChecksumURL != "" {
		cfg.ChecksumURL = v.ChecksumURL
	}
	if v.ExpectedChecksum != "" {
		cfg.ExpectedChecksum = v.ExpectedChecksum
	}
	if v.GPGKeyID != "" {
		cfg.GPGKeyID = v.GPGKeyID
	}
	if v.GPGFingerprint != "" {
		cfg.GPGFingerprint = v.GPGFingerprint
	}
}

// ResolveLatest adapts Checker to the pipeline.Resolver interface. The
// pipeline re-enters at Compare with cfg already rewritten by Check: for
// a flatpak verdict there is no real download URL, so the sentinel the
// Downloader/Installer recognize is returned instead of cfg.DownloadURL.
func (c *Checker) ResolveLatest(ctx context.Context, cfg *config.AppConfig) (string, string, error) {
	version, err := c.Check(ctx, cfg)
	if err != nil {
		return "", "", err
	}
	if cfg.Type == config.TypeFlatpak {
		return version, config.FlatpakSentinelURL, nil
	}
	return version, cfg.DownloadURL, nil
}
