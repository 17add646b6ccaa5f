package pipeline_test

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pthomasgarcia/packwatch/internal/config"
	"github.com/pthomasgarcia/packwatch/internal/ledger"
	"github.com/pthomasgarcia/packwatch/internal/pipeline"
)

// autoConfirm gives every pipeline built in this suite a "yes" answer
// to the install prompt, so tests can assert on the outcome without a
// real terminal attached to stdin.
func autoConfirm() pipeline.Prompter {
	return pipeline.NewReaderPrompter(strings.NewReader("y\n"), io.Discard)
}

type ginkgoResolver struct {
	version string
	url     string
	err     error
}

func (g ginkgoResolver) ResolveLatest(ctx context.Context, cfg *config.AppConfig) (string, string, error) {
	return g.version, g.url, g.err
}

type ginkgoDownloader struct{ path string }

func (g ginkgoDownloader) Download(ctx context.Context, cfg *config.AppConfig, version, rawURL string) (string, error) {
	return g.path, nil
}

type ginkgoVerifier struct{ err error }

func (g ginkgoVerifier) Verify(ctx context.Context, cfg *config.AppConfig, path string) error {
	return g.err
}

type ginkgoInstaller struct {
	installed []string
	err       error
}

func (g *ginkgoInstaller) Install(ctx context.Context, cfg *config.AppConfig, path string) error {
	if g.err != nil {
		return g.err
	}
	g.installed = append(g.installed, cfg.AppKey)
	return nil
}

var _ = Describe("Pipeline lifecycle transitions", func() {
	var (
		led  *ledger.Ledger
		cfg  *config.AppConfig
		inst *ginkgoInstaller
	)

	BeforeEach(func() {
		dir := GinkgoT().TempDir()
		led = ledger.New(filepath.Join(dir, "ledger.json"))
		Expect(led.Init()).To(Succeed())
		cfg = &config.AppConfig{AppKey: "myapp", Type: config.TypeGithubRelease}
		inst = &ginkgoInstaller{}
	})

	When("no prior version is recorded", func() {
		It("installs unconditionally and records the new version", func() {
			p := pipeline.New(
				map[config.Type]pipeline.Resolver{config.TypeGithubRelease: ginkgoResolver{version: "1.0.0", url: "https://example.com/a"}},
				ginkgoDownloader{path: "/tmp/a"}, ginkgoVerifier{}, inst, led, nil)
			p.SetPrompter(autoConfirm())

			result := p.Run(context.Background(), cfg)

			Expect(result.Outcome).To(Equal(pipeline.OutcomeUpdated))
			Expect(inst.installed).To(ConsistOf("myapp"))

			entry, ok, err := led.Get("myapp")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(entry.Version).To(Equal("1.0.0"))
		})
	})

	When("the installed version is already the latest", func() {
		It("reports up-to-date without touching the installer", func() {
			Expect(led.Set("myapp", ledger.Entry{Version: "1.0.0"})).To(Succeed())

			p := pipeline.New(
				map[config.Type]pipeline.Resolver{config.TypeGithubRelease: ginkgoResolver{version: "1.0.0", url: "https://example.com/a"}},
				ginkgoDownloader{path: "/tmp/a"}, ginkgoVerifier{}, inst, led, nil)

			result := p.Run(context.Background(), cfg)

			Expect(result.Outcome).To(Equal(pipeline.OutcomeUpToDate))
			Expect(inst.installed).To(BeEmpty())
		})
	})

	When("verification fails", func() {
		It("fails the run and never installs", func() {
			p := pipeline.New(
				map[config.Type]pipeline.Resolver{config.TypeGithubRelease: ginkgoResolver{version: "1.0.0", url: "https://example.com/a"}},
				ginkgoDownloader{path: "/tmp/a"}, ginkgoVerifier{err: errBoom{}}, inst, led, nil)

			result := p.Run(context.Background(), cfg)

			Expect(result.Outcome).To(Equal(pipeline.OutcomeFailed))
			Expect(result.Err).To(HaveOccurred())
			Expect(inst.installed).To(BeEmpty())
		})
	})

	When("a pre_install hook rejects the run", func() {
		It("aborts before downloading", func() {
			hooks := pipeline.NewHooks()
			hooks.On(pipeline.PreInstall, func(ctx context.Context, event pipeline.Event) error {
				return errBoom{}
			})

			p := pipeline.New(
				map[config.Type]pipeline.Resolver{config.TypeGithubRelease: ginkgoResolver{version: "1.0.0", url: "https://example.com/a"}},
				ginkgoDownloader{path: "/tmp/a"}, ginkgoVerifier{}, inst, led, hooks)

			result := p.Run(context.Background(), cfg)

			Expect(result.Outcome).To(Equal(pipeline.OutcomeFailed))
			Expect(inst.installed).To(BeEmpty())
		})
	})

	When("the user declines the install prompt", func() {
		It("reports skipped without installing or updating the ledger", func() {
			p := pipeline.New(
				map[config.Type]pipeline.Resolver{config.TypeGithubRelease: ginkgoResolver{version: "1.0.0", url: "https://example.com/a"}},
				ginkgoDownloader{path: "/tmp/a"}, ginkgoVerifier{}, inst, led, nil)
			p.SetPrompter(pipeline.NewReaderPrompter(strings.NewReader("n\n"), io.Discard))

			result := p.Run(context.Background(), cfg)

			Expect(result.Outcome).To(Equal(pipeline.OutcomeSkipped))
			Expect(inst.installed).To(BeEmpty())

			_, ok, err := led.Get("myapp")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	When("running with dry-run enabled", func() {
		It("skips the prompt and never persists the ledger entry", func() {
			p := pipeline.New(
				map[config.Type]pipeline.Resolver{config.TypeGithubRelease: ginkgoResolver{version: "1.0.0", url: "https://example.com/a"}},
				ginkgoDownloader{path: "/tmp/a"}, ginkgoVerifier{}, inst, led, nil)
			p.SetDryRun(true)

			result := p.Run(context.Background(), cfg)

			Expect(result.Outcome).To(Equal(pipeline.OutcomeUpdated))
			Expect(inst.installed).To(ConsistOf("myapp"))

			_, ok, err := led.Get("myapp")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})
})

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
