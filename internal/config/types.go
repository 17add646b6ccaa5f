// Package config loads and validates per-application configuration (C1).
//
// Each application is declared as one conf.d/*.json file decoded into an
// AppConfig. AppConfig embeds the fields common to every type plus the
// full union of type-conditional fields (JSON has no tagged unions), but
// exposes typed accessors per type so callers never branch on raw field
// presence — the struct itself is the "stringly typed map" the teacher and
// upstream packwatch use on the wire; the accessors are the tagged-variant
// view the design notes (spec.md §9) ask for.
package config

// Type is the closed set of application update mechanisms.
type Type string

const (
	TypeGithubRelease  Type = "github_release"
	TypeDirectDownload Type = "direct_download"
	TypeAppImage       Type = "appimage"
	TypeScript         Type = "script"
	TypeFlatpak        Type = "flatpak"
	TypeCustom         Type = "custom"
)

// FlatpakSentinelURL is the Downloader/Installer sentinel "download URL"
// used for flatpak apps, which have no real HTTP artifact to fetch —
// flatpak manages its own transfer.
const FlatpakSentinelURL = "flatpak://managed"

// InstallStrategy selects one of C7's archive installation algorithms.
type InstallStrategy string

const (
	StrategyMoveBinary       InstallStrategy = "move_binary"
	StrategyCopyRootContents InstallStrategy = "copy_root_contents"
	StrategyCompile          InstallStrategy = "compile"
	StrategyMoveAppImage     InstallStrategy = "move_appimage"
)

// ChecksumAlgorithm is the closed set of supported digest algorithms.
type ChecksumAlgorithm string

const (
	SHA256 ChecksumAlgorithm = "sha256"
	SHA1   ChecksumAlgorithm = "sha1"
	MD5    ChecksumAlgorithm = "md5"
)

// AppConfig is the full on-disk shape of one conf.d/*.json file.
type AppConfig struct {
	// Identity & common policy.
	AppKey  string `json:"app_key"`
	Name    string `json:"name"`
	Type    Type   `json:"type"`
	Enabled bool   `json:"enabled"`

	// github_release
	RepoOwner               string `json:"repo_owner,omitempty"`
	RepoName                string `json:"repo_name,omitempty"`
	FilenamePatternTemplate string `json:"filename_pattern_template,omitempty"`

	// direct_download / appimage / script
	DownloadURL  string `json:"download_url,omitempty"`
	VersionURL   string `json:"version_url,omitempty"`
	VersionRegex string `json:"version_regex,omitempty"`

	// archive installs
	InstallPath string `json:"install_path,omitempty"`
	PackageName string `json:"package_name,omitempty"`

	// flatpak
	FlatpakAppID string `json:"flatpak_app_id,omitempty"`

	// custom
	CustomCheckerScript string `json:"custom_checker_script,omitempty"`
	CustomCheckerFunc   string `json:"custom_checker_func,omitempty"`

	// Verification.
	ChecksumURL               string            `json:"checksum_url,omitempty"`
	ExpectedChecksum          string            `json:"expected_checksum,omitempty"`
	ChecksumAlgorithm         ChecksumAlgorithm `json:"checksum_algorithm,omitempty"`
	ChecksumFromReleaseDigest bool              `json:"checksum_from_release_digest,omitempty"`
	GPGKeyID                  string            `json:"gpg_key_id,omitempty"`
	GPGFingerprint            string            `json:"gpg_fingerprint,omitempty"`
	SigURL                    string            `json:"sig_url,omitempty"`

	// Policy.
	AllowInsecureHTTP bool            `json:"allow_insecure_http,omitempty"`
	InstallStrategy   InstallStrategy `json:"install_strategy,omitempty"`
	BinaryName        string          `json:"binary_name,omitempty"`
	ContentLength     int64           `json:"content_length,omitempty"`
}

// EffectiveChecksumAlgorithm returns the configured algorithm, defaulting
// to sha256 per spec.md §4.6.
func (a *AppConfig) EffectiveChecksumAlgorithm() ChecksumAlgorithm {
	if a.ChecksumAlgorithm == "" {
		return SHA256
	}
	return a.ChecksumAlgorithm
}

// EffectiveSigURL returns the configured sig_url, defaulting to
// "<download_url>.sig" per spec.md §3.
func (a *AppConfig) EffectiveSigURL() string {
	if a.SigURL != "" {
		return a.SigURL
	}
	if a.DownloadURL != "" {
		return a.DownloadURL + ".sig"
	}
	return ""
}

// HasGPGVerification reports whether both fields required to enable
// signature verification (spec.md §4.6) are configured.
func (a *AppConfig) HasGPGVerification() bool {
	return a.GPGKeyID != "" && a.GPGFingerprint != ""
}

// GithubReleaseSpec is the typed view of a github_release AppConfig.
type GithubReleaseSpec struct {
	RepoOwner               string
	RepoName                string
	FilenamePatternTemplate string
}

// AsGithubRelease returns the typed github_release view, or ok=false if
// a.Type is not TypeGithubRelease.
func (a *AppConfig) AsGithubRelease() (GithubReleaseSpec, bool) {
	if a.Type != TypeGithubRelease {
		return GithubReleaseSpec{}, false
	}
	return GithubReleaseSpec{
		RepoOwner:               a.RepoOwner,
		RepoName:                a.RepoName,
		FilenamePatternTemplate: a.FilenamePatternTemplate,
	}, true
}

// DirectDownloadSpec is the typed view of a direct_download AppConfig.
type DirectDownloadSpec struct {
	DownloadURL string
}

// AsDirectDownload returns the typed direct_download view.
func (a *AppConfig) AsDirectDownload() (DirectDownloadSpec, bool) {
	if a.Type != TypeDirectDownload {
		return DirectDownloadSpec{}, false
	}
	return DirectDownloadSpec{DownloadURL: a.DownloadURL}, true
}

// ScriptSpec is the typed view of a script AppConfig.
type ScriptSpec struct {
	VersionURL   string
	VersionRegex string
}

// AsScript returns the typed script view.
func (a *AppConfig) AsScript() (ScriptSpec, bool) {
	if a.Type != TypeScript {
		return ScriptSpec{}, false
	}
	return ScriptSpec{VersionURL: a.VersionURL, VersionRegex: a.VersionRegex}, true
}

// FlatpakSpec is the typed view of a flatpak AppConfig.
type FlatpakSpec struct {
	AppID string
}

// AsFlatpak returns the typed flatpak view.
func (a *AppConfig) AsFlatpak() (FlatpakSpec, bool) {
	if a.Type != TypeFlatpak {
		return FlatpakSpec{}, false
	}
	return FlatpakSpec{AppID: a.FlatpakAppID}, true
}

// CustomSpec is the typed view of a custom AppConfig.
type CustomSpec struct {
	Script string
	Func   string
}

// AsCustom returns the typed custom view.
func (a *AppConfig) AsCustom() (CustomSpec, bool) {
	if a.Type != TypeCustom {
		return CustomSpec{}, false
	}
	return CustomSpec{Script: a.CustomCheckerScript, Func: a.CustomCheckerFunc}, true
}

// requiredFields lists, per type, the AppConfig JSON field names that must
// be non-empty for every loaded app of that type, enabled or not. Used by
// validate.go.
var requiredFields = map[Type][]string{
	TypeGithubRelease:  {"repo_owner", "repo_name", "filename_pattern_template"},
	TypeDirectDownload: {"download_url"},
	TypeAppImage:       {"download_url"},
	TypeScript:         {"version_url", "version_regex"},
	TypeFlatpak:        {"flatpak_app_id"},
	TypeCustom:         {"custom_checker_script", "custom_checker_func"},
}

func (a *AppConfig) fieldValue(name string) string {
	switch name {
	case "repo_owner":
		return a.RepoOwner
	case "repo_name":
		return a.RepoName
	case "filename_pattern_template":
		return a.FilenamePatternTemplate
	case "download_url":
		return a.DownloadURL
	case "version_url":
		return a.VersionURL
	case "version_regex":
		return a.VersionRegex
	case "flatpak_app_id":
		return a.FlatpakAppID
	case "custom_checker_script":
		return a.CustomCheckerScript
	case "custom_checker_func":
		return a.CustomCheckerFunc
	default:
		return ""
	}
}
