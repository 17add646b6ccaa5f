package pipeline

import (
	"context"

	"github.com/flanksource/commons/logger"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
	"github.com/pthomasgarcia/packwatch/internal/config"
	"github.com/pthomasgarcia/packwatch/internal/ledger"
	"github.com/pthomasgarcia/packwatch/internal/verscompare"
)

// Resolver discovers the latest available version for an app and where
// to download it from. Each config.Type gets its own Resolver
// implementation (github release lookup, direct-download version-page
// scrape, flatpak branch query, or a custom-checker re-entry).
type Resolver interface {
	ResolveLatest(ctx context.Context, cfg *config.AppConfig) (version string, downloadURL string, err error)
}

// Downloader fetches rawURL to a local, version-addressed artifact path
// and returns it. version is the already resolved version being
// fetched, which a deterministic artifact store keys on (spec.md §3).
type Downloader interface {
	Download(ctx context.Context, cfg *config.AppConfig, version, rawURL string) (localPath string, err error)
}

// Verifier checks a downloaded artifact's checksum and, if configured,
// GPG signature.
type Verifier interface {
	Verify(ctx context.Context, cfg *config.AppConfig, localPath string) error
}

// Installer applies the artifact's install strategy.
type Installer interface {
	Install(ctx context.Context, cfg *config.AppConfig, localPath string) error
}

// Outcome classifies how a Run ended, independent of any error detail.
type Outcome string

const (
	OutcomeUpToDate Outcome = "up_to_date"
	OutcomeUpdated  Outcome = "updated"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// Result is the final record of one app's pipeline run.
type Result struct {
	AppKey          string
	PreviousVersion string
	LatestVersion   string
	Outcome         Outcome
	Err             error
}

// Pipeline wires together the per-stage collaborators and drives a
// single app through Discover → Compare → Download → Verify → Install,
// firing the six lifecycle hooks around each transition.
type Pipeline struct {
	resolvers  map[config.Type]Resolver
	downloader Downloader
	verifier   Verifier
	installer  Installer
	ledger     *ledger.Ledger
	hooks      *Hooks
	prompter   Prompter
	force      bool
	dryRun     bool
}

// SetForce makes every subsequent Run proceed to Download/Verify/Install
// even when the ledger already has the latest version recorded, matching
// the CLI's --force flag (spec.md §6).
func (p *Pipeline) SetForce(force bool) {
	p.force = force
}

// SetDryRun makes every subsequent Run skip the user prompt and the
// real ledger write, matching the CLI's --dry-run flag (spec.md §4.8
// step 5, §6): the pipeline still runs Discover through Verify for
// real, but neither asks for confirmation nor persists a ledger entry.
func (p *Pipeline) SetDryRun(dryRun bool) {
	p.dryRun = dryRun
}

// SetPrompter overrides the default stdin-backed confirmation prompt,
// mainly for tests driving a scripted answer.
func (p *Pipeline) SetPrompter(prompter Prompter) {
	p.prompter = prompter
}

// New returns a Pipeline. resolvers maps each app type to the Resolver
// that knows how to discover its latest version.
func New(resolvers map[config.Type]Resolver, downloader Downloader, verifier Verifier, installer Installer, led *ledger.Ledger, hooks *Hooks) *Pipeline {
	if hooks == nil {
		hooks = NewHooks()
	}
	return &Pipeline{
		resolvers:  resolvers,
		downloader: downloader,
		verifier:   verifier,
		installer:  installer,
		ledger:     led,
		hooks:      hooks,
		prompter:   NewStdinPrompter(),
	}
}

// Run drives cfg through the full lifecycle and returns its Result. Run
// never returns a Go error itself — every failure is captured in
// Result.Err so the orchestrator (C9) can aggregate across many apps
// without a type switch on error vs success.
func (p *Pipeline) Run(ctx context.Context, cfg *config.AppConfig) Result {
	result := Result{AppKey: cfg.AppKey}

	if prev, ok, err := p.ledger.Get(cfg.AppKey); err == nil && ok {
		result.PreviousVersion = prev.Version
	}

	if err := p.hooks.Fire(ctx, Event{Stage: PreCheck, App: cfg, Result: &result}); err != nil {
		return p.fail(ctx, cfg, result, apperrors.Wrap(apperrors.Dependency, err, "pre_check hook failed"))
	}

	resolver, ok := p.resolvers[cfg.Type]
	if !ok {
		return p.fail(ctx, cfg, result, apperrors.New(apperrors.Config, "no resolver registered for type "+string(cfg.Type)).WithApp(cfg.AppKey))
	}

	latest, downloadURL, err := resolver.ResolveLatest(ctx, cfg)
	if err != nil {
		return p.fail(ctx, cfg, result, err)
	}
	result.LatestVersion = latest

	if err := p.hooks.Fire(ctx, Event{Stage: PostCheck, App: cfg, Result: &result}); err != nil {
		return p.fail(ctx, cfg, result, apperrors.Wrap(apperrors.Dependency, err, "post_check hook failed"))
	}

	if result.PreviousVersion != "" && !p.force {
		newer, err := verscompare.IsNewer(latest, result.PreviousVersion)
		if err != nil {
			return p.fail(ctx, cfg, result, err)
		}
		if !newer {
			result.Outcome = OutcomeUpToDate
			logger.Infof("pipeline: %s is up to date (%s)", cfg.AppKey, result.PreviousVersion)
			return result
		}
	}

	if err := p.hooks.Fire(ctx, Event{Stage: PreInstall, App: cfg, Result: &result}); err != nil {
		return p.fail(ctx, cfg, result, apperrors.Wrap(apperrors.Dependency, err, "pre_install hook failed"))
	}

	localPath, err := p.downloader.Download(ctx, cfg, latest, downloadURL)
	if err != nil {
		return p.fail(ctx, cfg, result, err)
	}

	if err := p.verifier.Verify(ctx, cfg, localPath); err != nil {
		return p.fail(ctx, cfg, result, err)
	}

	if err := p.hooks.Fire(ctx, Event{Stage: PostVerify, App: cfg, Result: &result}); err != nil {
		return p.fail(ctx, cfg, result, apperrors.Wrap(apperrors.Dependency, err, "post_verify hook failed"))
	}

	if !p.dryRun {
		confirmed, err := p.prompter.Confirm(ctx, cfg, result.PreviousVersion, latest)
		if err != nil {
			return p.fail(ctx, cfg, result, apperrors.Wrap(apperrors.Dependency, err, "prompt failed"))
		}
		if !confirmed {
			result.Outcome = OutcomeSkipped
			logger.Infof("pipeline: %s: declined by user, skipping install", cfg.AppKey)
			return result
		}
	}

	if err := p.installer.Install(ctx, cfg, localPath); err != nil {
		return p.fail(ctx, cfg, result, err)
	}

	if p.dryRun {
		logger.Infof("pipeline: %s: dry-run, simulating ledger update to %s (not persisted)", cfg.AppKey, latest)
	} else if err := p.ledger.Set(cfg.AppKey, ledger.Entry{Version: latest}); err != nil {
		return p.fail(ctx, cfg, result, err)
	}

	if err := p.hooks.Fire(ctx, Event{Stage: PostInstall, App: cfg, Result: &result}); err != nil {
		logger.Warnf("pipeline: %s: post_install hook failed (install already succeeded): %v", cfg.AppKey, err)
	}

	result.Outcome = OutcomeUpdated
	logger.Infof("pipeline: %s updated %s -> %s", cfg.AppKey, result.PreviousVersion, latest)
	return result
}

func (p *Pipeline) fail(ctx context.Context, cfg *config.AppConfig, result Result, err error) Result {
	result.Outcome = OutcomeFailed
	result.Err = err
	if kind, ok := apperrors.KindOf(err); ok && apperrors.UserVisible(kind) {
		logger.Errorf("pipeline: %s: %v", cfg.AppKey, err)
	} else {
		logger.Warnf("pipeline: %s: %v", cfg.AppKey, err)
	}
	if hookErr := p.hooks.Fire(ctx, Event{Stage: OnError, App: cfg, Result: &result, Err: err}); hookErr != nil {
		logger.Warnf("pipeline: %s: error hook itself failed: %v", cfg.AppKey, hookErr)
	}
	return result
}
