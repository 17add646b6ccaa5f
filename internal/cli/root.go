// Package cli wires every engine collaborator into the cobra CLI surface
// (spec.md §6), following the teacher's cmd/root.go persistent-flag and
// PersistentPreRun pattern but collapsed to packwatch's single-command
// shape: there is no install/list/lock subcommand split, just one
// positional-app-keys invocation that drives the whole pipeline.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
	"github.com/pthomasgarcia/packwatch/internal/config"
	"github.com/pthomasgarcia/packwatch/internal/customchecker"
	"github.com/pthomasgarcia/packwatch/internal/engine"
	"github.com/pthomasgarcia/packwatch/internal/fetch"
	"github.com/pthomasgarcia/packwatch/internal/install"
	"github.com/pthomasgarcia/packwatch/internal/ledger"
	"github.com/pthomasgarcia/packwatch/internal/orchestrator"
	"github.com/pthomasgarcia/packwatch/internal/pipeline"
	"github.com/pthomasgarcia/packwatch/internal/repository"
	"github.com/pthomasgarcia/packwatch/internal/version"
)

var (
	verbose        bool
	dryRun         bool
	cacheDuration  int
	createConfig   bool
	showVersion    bool
	jsonOutput     bool
	listOnly       bool
	confDir        string
	ledgerPath     string
	cacheDir       string
	tmpDir         string
	logDir         string
	networkFile    string
	force          bool
	skipChecksum   bool
	strictChecksum bool
	timeout        time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "packwatch [app-key...]",
	Short: "A Linux desktop application-update engine",
	Long: `packwatch checks, downloads, verifies, and installs updates for a
configured set of desktop applications.

Each application is declared as one conf.d/*.json file. With no
arguments, every enabled application is checked; positional app-key
arguments narrow the run to just those applications.`,
	SilenceUsage: true,
	RunE:         runRoot,
}

func init() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	defaultConfDir := filepath.Join(home, ".config", "packwatch", "conf.d")
	defaultLedgerPath := filepath.Join(home, ".local", "state", "packwatch", "ledger.json")
	defaultCacheDir := filepath.Join(home, ".cache", "packwatch")
	defaultLogDir := filepath.Join(home, ".local", "state", "packwatch", "logs")

	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Raise log verbosity")
	rootCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Disable prompts, installs, and real ledger writes; still simulates a ledger update")
	rootCmd.Flags().IntVar(&cacheDuration, "cache-duration", 300, "Cache freshness window in seconds")
	rootCmd.Flags().BoolVar(&createConfig, "create-config", false, "Write a default set of per-app configs into conf.d, skipping files that already exist")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Print engine version and exit")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print a machine-readable summary on stdout")
	rootCmd.Flags().BoolVar(&listOnly, "list", false, "List configured apps and exit without checking the network")
	rootCmd.Flags().StringVar(&confDir, "config", defaultConfDir, "Directory containing per-app conf.d/*.json files")
	rootCmd.Flags().StringVar(&networkFile, "network-config", "", "Path to network_settings.json (default: <config>/../network_settings.json)")
	rootCmd.Flags().StringVar(&ledgerPath, "ledger", defaultLedgerPath, "Path to the version ledger file")
	rootCmd.Flags().StringVar(&cacheDir, "cache-dir", defaultCacheDir, "Directory for the download cache")
	rootCmd.Flags().StringVar(&tmpDir, "tmp-dir", os.TempDir(), "Directory for per-run staging and extraction")
	rootCmd.Flags().StringVar(&logDir, "log-dir", defaultLogDir, "Directory for per-invocation subprocess logs")
	rootCmd.Flags().BoolVar(&force, "force", false, "Reinstall even if already up to date")
	rootCmd.Flags().BoolVar(&skipChecksum, "skip-checksum", false, "Skip checksum verification (signature verification, if configured, still runs)")
	rootCmd.Flags().BoolVar(&strictChecksum, "strict-checksum", true, "Fail the app on checksum verification failure; if false, log and continue to install")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Timeout for downloads, subprocess installs, and compile steps")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.Debugf("packwatch: verbose logging enabled")
		}
	}
}

// Execute parses flags, runs the command, and returns the process exit
// code the caller should pass to os.Exit.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if code, ok := exitCodeOf(err); ok {
			return code
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return lastExitCode
}

// lastExitCode carries the orchestrator's exit code out of runRoot, since
// cobra's RunE only distinguishes "error" from "no error" and packwatch's
// exit code table (spec.md §6) is richer than that.
var lastExitCode int

func exitCodeOf(err error) (int, bool) {
	if _, ok := apperrors.KindOf(err); ok {
		return apperrors.ExitCode(err), true
	}
	return 0, false
}

func runRoot(cmd *cobra.Command, args []string) error {
	if showVersion {
		fmt.Printf("packwatch version %s\n", version.Get())
		return nil
	}

	if createConfig {
		return runCreateConfig()
	}

	store, err := config.Load(confDir)
	if err != nil {
		logger.Warnf("packwatch: %v", err)
		if store == nil {
			return err
		}
	}

	if listOnly {
		printAppList(store)
		return nil
	}

	netSettingsPath := networkFile
	if netSettingsPath == "" {
		netSettingsPath = filepath.Join(filepath.Dir(confDir), "network_settings.json")
	}
	netSettings, err := config.LoadNetworkSettings(netSettingsPath)
	if err != nil {
		return err
	}
	if cacheDuration > 0 {
		netSettings.CacheTTLSeconds = cacheDuration
	}

	apps, err := selectApps(store, args)
	if err != nil {
		return err
	}
	if len(apps) == 0 {
		logger.Infof("packwatch: nothing to check")
		lastExitCode = 0
		return nil
	}

	p, cleanup, err := buildPipeline(netSettings)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), timeout*time.Duration(len(apps)))
	defer cancel()

	summary := orchestrator.Run(ctx, p, apps)
	printSummary(summary)

	lastExitCode = summary.ExitCode()
	if lastExitCode != 0 {
		logger.Errorf("packwatch: %d app(s) failed", summary.Failed)
	}
	return nil
}

// buildPipeline wires every concrete collaborator into a *pipeline.Pipeline,
// returning a cleanup func that removes the run's temp staging directory.
func buildPipeline(netSettings config.NetworkSettings) (*pipeline.Pipeline, func(), error) {
	if err := os.MkdirAll(tmpDir, 0o700); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.Config, err, "create tmp-dir")
	}
	runDir, err := os.MkdirTemp(tmpDir, "packwatch-run-*")
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.Config, err, "create run directory")
	}
	cleanup := func() { os.RemoveAll(runDir) }

	httpClient := fetch.New(netSettings)
	blobCache := fetch.NewCache(cacheDir, netSettings.CacheTTL())
	repo := repository.New(httpClient)
	runner := install.NewRunner(logDir, timeout)

	led := ledger.New(ledgerPath)
	if err := led.Init(); err != nil {
		cleanup()
		return nil, nil, err
	}

	artifactsDir := filepath.Join(cacheDir, "artifacts")
	downloader := engine.NewDownloader(httpClient, blobCache, artifactsDir)
	verifier := engine.NewVerifier(httpClient, repo, "")
	installer := engine.NewInstaller(runner, runDir)
	checker := customchecker.New(runner)

	resolvers := map[config.Type]pipeline.Resolver{
		config.TypeGithubRelease:  engine.NewGithubResolver(repo),
		config.TypeDirectDownload: engine.NewDirectDownloadResolver(httpClient),
		config.TypeAppImage:       engine.NewDirectDownloadResolver(httpClient),
		config.TypeScript:         engine.NewScriptResolver(httpClient),
		config.TypeFlatpak:        engine.NewFlatpakResolver(runner),
		config.TypeCustom:         checker,
	}

	var effectiveVerifier pipeline.Verifier = verifier
	switch {
	case skipChecksum:
		effectiveVerifier = skippingVerifier{inner: verifier}
	case !strictChecksum:
		effectiveVerifier = lenientVerifier{inner: verifier}
	}

	var effectiveInstaller pipeline.Installer = installer
	if dryRun {
		effectiveInstaller = dryRunInstaller{}
	}

	p := pipeline.New(resolvers, downloader, effectiveVerifier, effectiveInstaller, led, nil)
	p.SetForce(force)
	p.SetDryRun(dryRun)
	return p, cleanup, nil
}

// skippingVerifier honors --skip-checksum by never checking the digest,
// while still running GPG verification when configured — packwatch never
// lets a flag silently disable signature checking too.
type skippingVerifier struct {
	inner *engine.Verifier
}

func (s skippingVerifier) Verify(ctx context.Context, cfg *config.AppConfig, localPath string) error {
	stripped := *cfg
	stripped.ChecksumURL = ""
	stripped.ChecksumFromReleaseDigest = false
	stripped.ExpectedChecksum = ""
	return s.inner.Verify(ctx, &stripped, localPath)
}

// lenientVerifier honors --strict-checksum=false: a checksum failure is
// logged and swallowed rather than failing the app, since some users
// knowingly run against a source with no reliable checksum publication.
// A GPG signature failure still fails the app.
type lenientVerifier struct {
	inner *engine.Verifier
}

func (l lenientVerifier) Verify(ctx context.Context, cfg *config.AppConfig, localPath string) error {
	if err := l.inner.Verify(ctx, cfg, localPath); err != nil {
		if kind, ok := apperrors.KindOf(err); ok && kind == apperrors.GPG {
			return err
		}
		logger.Warnf("packwatch: %s: verification failed, continuing (--strict-checksum=false): %v", cfg.AppKey, err)
	}
	return nil
}

// dryRunInstaller honors --dry-run: the pipeline still runs Discover
// through Verify for real, but Install is a no-op, and the ledger update
// is only logged as simulated, never written.
type dryRunInstaller struct{}

func (dryRunInstaller) Install(ctx context.Context, cfg *config.AppConfig, localPath string) error {
	logger.Infof("packwatch: %s: dry-run, skipping install", cfg.AppKey)
	return nil
}

func selectApps(store *config.Store, args []string) ([]*config.AppConfig, error) {
	if len(args) == 0 {
		return store.List(), nil
	}

	apps := make([]*config.AppConfig, 0, len(args))
	var anyValid bool
	for _, key := range args {
		cfg, err := store.Get(key)
		if err != nil {
			logger.Warnf("packwatch: %v", err)
			continue
		}
		apps = append(apps, cfg)
		anyValid = true
	}
	if !anyValid {
		return nil, apperrors.New(apperrors.CLI, "no valid app keys given")
	}
	return apps, nil
}

func printAppList(store *config.Store) {
	for _, cfg := range store.All() {
		state := "disabled"
		if cfg.Enabled {
			state = "enabled"
		}
		fmt.Printf("%-20s %-16s %s\n", cfg.AppKey, cfg.Type, state)
	}
}

func printSummary(summary orchestrator.Summary) {
	if jsonOutput {
		printJSONSummary(summary)
		return
	}

	for _, r := range summary.Results {
		switch r.Outcome {
		case pipeline.OutcomeUpdated:
			fmt.Printf("%-20s updated %s -> %s\n", r.AppKey, r.PreviousVersion, r.LatestVersion)
		case pipeline.OutcomeUpToDate:
			fmt.Printf("%-20s up to date (%s)\n", r.AppKey, r.PreviousVersion)
		case pipeline.OutcomeSkipped:
			fmt.Printf("%-20s skipped\n", r.AppKey)
		case pipeline.OutcomeFailed:
			fmt.Printf("%-20s FAILED: %v\n", r.AppKey, r.Err)
		}
	}
	fmt.Printf("\nup_to_date=%d updated=%d skipped=%d failed=%d\n",
		summary.UpToDate, summary.Updated, summary.Skipped, summary.Failed)
}

type jsonResult struct {
	AppKey          string `json:"app_key"`
	PreviousVersion string `json:"previous_version,omitempty"`
	LatestVersion   string `json:"latest_version,omitempty"`
	Outcome         string `json:"outcome"`
	Error           string `json:"error,omitempty"`
}

type jsonSummary struct {
	Results  []jsonResult `json:"results"`
	UpToDate int          `json:"up_to_date"`
	Updated  int          `json:"updated"`
	Skipped  int          `json:"skipped"`
	Failed   int          `json:"failed"`
}

func printJSONSummary(summary orchestrator.Summary) {
	out := jsonSummary{
		UpToDate: summary.UpToDate,
		Updated:  summary.Updated,
		Skipped:  summary.Skipped,
		Failed:   summary.Failed,
		Results:  make([]jsonResult, 0, len(summary.Results)),
	}
	for _, r := range summary.Results {
		jr := jsonResult{
			AppKey:          r.AppKey,
			PreviousVersion: r.PreviousVersion,
			LatestVersion:   r.LatestVersion,
			Outcome:         string(r.Outcome),
		}
		if r.Err != nil {
			jr.Error = r.Err.Error()
		}
		out.Results = append(out.Results, jr)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
