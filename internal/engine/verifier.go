package engine

import (
	"context"
	"os"
	"path/filepath"

	"github.com/flanksource/commons/logger"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
	"github.com/pthomasgarcia/packwatch/internal/config"
	"github.com/pthomasgarcia/packwatch/internal/fetch"
	"github.com/pthomasgarcia/packwatch/internal/repository"
	"github.com/pthomasgarcia/packwatch/internal/verify"
)

// Verifier resolves the expected checksum by priority order (explicit >
// release digest > checksum-file) and checks it, then optionally checks
// a GPG detached signature, implementing pipeline.Verifier (C6).
type Verifier struct {
	http       *fetch.Client
	repo       *repository.Client
	keyringDir string
}

// NewVerifier returns a Verifier. keyringDir overrides the default
// $HOME/.gnupg location when non-empty (used by tests).
func NewVerifier(httpClient *fetch.Client, repo *repository.Client, keyringDir string) *Verifier {
	return &Verifier{http: httpClient, repo: repo, keyringDir: keyringDir}
}

// Verify implements pipeline.Verifier.
func (v *Verifier) Verify(ctx context.Context, cfg *config.AppConfig, localPath string) error {
	if localPath == "" {
		return nil // flatpak: nothing local to check
	}

	expected, err := v.resolveChecksum(ctx, cfg, localPath)
	if err != nil {
		return err
	}
	if expected.Digest != "" {
		if err := verify.VerifyFile(localPath, expected); err != nil {
			return err
		}
		logger.Infof("verify: %s: checksum OK (%s)", cfg.AppKey, expected.Source)
	}

	if cfg.HasGPGVerification() {
		if err := v.verifySignature(ctx, cfg, localPath); err != nil {
			return err
		}
	}

	return nil
}

func (v *Verifier) resolveChecksum(ctx context.Context, cfg *config.AppConfig, localPath string) (verify.Checksum, error) {
	algo := cfg.EffectiveChecksumAlgorithm()

	// An explicit checksum (set only by a custom-checker verdict, never
	// in an on-disk config) always wins, per spec.md §4.6's priority order.
	if cfg.ExpectedChecksum != "" {
		resolvedAlgo := algo
		if detected, ok := verify.DetectAlgorithm(cfg.ExpectedChecksum); ok {
			resolvedAlgo = detected
		}
		return verify.Checksum{Algorithm: resolvedAlgo, Digest: cfg.ExpectedChecksum, Source: "explicit"}, nil
	}

	if cfg.ChecksumURL != "" && !cfg.ChecksumFromReleaseDigest {
		resp, err := v.http.Get(ctx, cfg.ChecksumURL)
		if err != nil {
			return verify.Checksum{}, err
		}
		defer resp.Body.Close()

		buf := make([]byte, 0, 4096)
		tmp := make([]byte, 4096)
		for {
			n, readErr := resp.Body.Read(tmp)
			buf = append(buf, tmp[:n]...)
			if readErr != nil {
				break
			}
		}

		digest, ok := verify.ParseChecksumFile(string(buf), filepath.Base(localPath))
		if !ok {
			return verify.Checksum{}, apperrors.New(apperrors.Validation, "no matching entry in checksum file").WithApp(cfg.AppKey)
		}
		return verify.Checksum{Algorithm: algo, Digest: digest, Source: "checksum_url"}, nil
	}

	if cfg.ChecksumFromReleaseDigest {
		spec, ok := cfg.AsGithubRelease()
		if !ok {
			return verify.Checksum{}, apperrors.New(apperrors.Config, "checksum_from_release_digest requires type github_release").WithApp(cfg.AppKey)
		}
		tag, err := v.repo.LatestVersion(ctx, spec.RepoOwner, spec.RepoName)
		if err != nil {
			return verify.Checksum{}, err
		}
		release, err := v.repo.FindRelease(ctx, spec.RepoOwner, spec.RepoName, tag)
		if err != nil {
			return verify.Checksum{}, err
		}
		digest, ok := release.AssetDigest(spec.FilenamePatternTemplate)
		if !ok {
			return verify.Checksum{}, apperrors.New(apperrors.Validation, "release asset has no digest").WithApp(cfg.AppKey)
		}
		parsedAlgo, hex, err := verify.ParseReleaseDigest(digest)
		if err != nil {
			return verify.Checksum{}, err
		}
		return verify.Checksum{Algorithm: parsedAlgo, Digest: hex, Source: "release_digest"}, nil
	}

	// No checksum source configured: nothing to verify. This is a
	// policy decision some low-risk app configs may legitimately make
	// (e.g. a GPG-signed artifact with no published checksum file).
	return verify.Checksum{Algorithm: algo}, nil
}

func (v *Verifier) verifySignature(ctx context.Context, cfg *config.AppConfig, localPath string) error {
	sigURL := cfg.EffectiveSigURL()
	resp, err := v.http.Get(ctx, sigURL)
	if err != nil {
		return apperrors.Wrap(apperrors.GPG, err, "fetch detached signature").WithApp(cfg.AppKey)
	}
	defer resp.Body.Close()

	sigPath := localPath + ".sig"
	sigFile, err := os.Create(sigPath)
	if err != nil {
		return apperrors.Wrap(apperrors.GPG, err, "stage signature file").WithApp(cfg.AppKey)
	}
	defer os.Remove(sigPath)

	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := sigFile.Write(buf[:n]); err != nil {
				sigFile.Close()
				return apperrors.Wrap(apperrors.GPG, err, "write signature file").WithApp(cfg.AppKey)
			}
		}
		if readErr != nil {
			break
		}
	}
	sigFile.Close()

	keyringPath := filepath.Join(v.keyringDir, "pubring.gpg")
	if v.keyringDir == "" {
		defaultPath, err := verify.DefaultKeyringPath()
		if err != nil {
			return err
		}
		keyringPath = defaultPath
	}

	keyring, err := verify.LoadKeyring(keyringPath)
	if err != nil {
		return err
	}

	if err := verify.VerifyDetachedSignature(localPath, sigPath, keyring, cfg.GPGFingerprint); err != nil {
		return err
	}
	logger.Infof("verify: %s: GPG signature OK", cfg.AppKey)
	return nil
}
