package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flanksource/commons/logger"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
	"github.com/pthomasgarcia/packwatch/internal/config"
)

// defaultApps seeds a fresh conf.d with a handful of representative,
// disabled-by-default app configs covering each major Type, mirroring
// the teacher's init command's "minimal configuration with a few common
// tools as examples" approach but one file per app instead of one
// combined deps.yaml.
func defaultApps() []*config.AppConfig {
	return []*config.AppConfig{
		{
			AppKey:                  "firefox",
			Type:                    config.TypeGithubRelease,
			Enabled:                 false,
			RepoOwner:               "mozilla",
			RepoName:                "firefox",
			FilenamePatternTemplate: "firefox-%s.linux-x86_64.tar.xz",
			InstallStrategy:         config.StrategyCopyRootContents,
			InstallPath:             "/opt/firefox",
			BinaryName:              "firefox",
			ChecksumFromReleaseDigest: true,
		},
		{
			AppKey:          "vscode",
			Type:            config.TypeDirectDownload,
			Enabled:         false,
			DownloadURL:     "https://update.code.visualstudio.com/latest/linux-deb-x64/stable",
			VersionURL:      "https://code.visualstudio.com/updates",
			VersionRegex:    `Version (\d+\.\d+\.\d+)`,
			InstallStrategy: config.StrategyCopyRootContents,
			InstallPath:     "/opt/vscode",
			BinaryName:      "code",
		},
		{
			AppKey:          "obsidian",
			Type:            config.TypeAppImage,
			Enabled:         false,
			DownloadURL:     "https://github.com/obsidianmd/obsidian-releases/releases/latest/download/Obsidian.AppImage",
			InstallStrategy: config.StrategyMoveAppImage,
			InstallPath:     "/opt/obsidian/obsidian.AppImage",
		},
		{
			AppKey:       "gimp",
			Type:         config.TypeFlatpak,
			Enabled:      false,
			FlatpakAppID: "org.gimp.GIMP",
		},
	}
}

func runCreateConfig() error {
	if err := os.MkdirAll(confDir, 0o755); err != nil {
		return apperrors.Wrap(apperrors.Config, err, "create conf.d directory")
	}

	var created, skipped int
	for _, cfg := range defaultApps() {
		path := filepath.Join(confDir, cfg.AppKey+".json")
		if _, err := os.Stat(path); err == nil {
			skipped++
			continue
		}

		payload, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return apperrors.Wrap(apperrors.Config, err, "marshal default config for "+cfg.AppKey)
		}
		if err := os.WriteFile(path, payload, 0o644); err != nil {
			return apperrors.Wrap(apperrors.Config, err, "write default config for "+cfg.AppKey)
		}
		created++
	}

	logger.Infof("packwatch: wrote %d default config(s), skipped %d existing", created, skipped)
	fmt.Printf("wrote %d default config(s) to %s (skipped %d existing)\n", created, confDir, skipped)
	return nil
}
