package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
)

// DefaultKeyringPath returns $HOME/.gnupg/pubring.gpg, the keyring
// packwatch verifies detached signatures against. Verification never
// falls back to running as root with an empty keyring (spec.md §4.6's
// explicit rule): if HOME is unset or the keyring can't be read, the
// caller gets a GPG error, never a silent pass.
func DefaultKeyringPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", apperrors.New(apperrors.GPG, "cannot determine home directory for GPG keyring")
	}
	return filepath.Join(home, ".gnupg", "pubring.gpg"), nil
}

// LoadKeyring parses an on-disk keyring (binary or ASCII-armored) into
// an openpgp.EntityList.
func LoadKeyring(path string) (openpgp.EntityList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.GPG, err, "open GPG keyring")
	}
	defer f.Close()

	entities, err := openpgp.ReadKeyRing(f)
	if err == nil {
		return entities, nil
	}

	// Fall back to armored format.
	if _, seekErr := f.Seek(0, 0); seekErr != nil {
		return nil, apperrors.Wrap(apperrors.GPG, err, "parse GPG keyring")
	}
	block, armorErr := armor.Decode(f)
	if armorErr != nil {
		return nil, apperrors.Wrap(apperrors.GPG, err, "parse GPG keyring")
	}
	entities, err = openpgp.ReadKeyRing(block.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.GPG, err, "parse armored GPG keyring")
	}
	return entities, nil
}

// normalizeFingerprint strips whitespace and uppercases a fingerprint
// string so "AAAA BBBB ..." and "aaaabbbb..." compare equal.
func normalizeFingerprint(fp string) string {
	return strings.ToUpper(strings.ReplaceAll(fp, " ", ""))
}

func fingerprintHex(fp [20]byte) string {
	return strings.ToUpper(fmt.Sprintf("%X", fp))
}

// FindKey returns the entity in keyring whose fingerprint matches
// wantFingerprint (after normalization), or an error if none matches —
// a configured key ID alone is never sufficient to trust a signature,
// the full fingerprint must match.
func FindKey(keyring openpgp.EntityList, wantFingerprint string) (*openpgp.Entity, error) {
	want := normalizeFingerprint(wantFingerprint)
	for _, e := range keyring {
		if e.PrimaryKey == nil {
			continue
		}
		if fingerprintHex(e.PrimaryKey.Fingerprint) == want {
			return e, nil
		}
	}
	return nil, apperrors.New(apperrors.GPG, fmt.Sprintf("fingerprint %s not found in keyring", wantFingerprint))
}

// VerifyDetachedSignature checks that sigPath is a valid detached
// signature of the file at dataPath, produced by the key identified by
// wantFingerprint in keyring. keyring must be non-empty — an empty or
// missing keyring is always a GPG_ERROR, never treated as "nothing to
// check against."
func VerifyDetachedSignature(dataPath, sigPath string, keyring openpgp.EntityList, wantFingerprint string) error {
	if len(keyring) == 0 {
		return apperrors.New(apperrors.GPG, "GPG keyring is empty; refusing to verify")
	}

	signer, err := FindKey(keyring, wantFingerprint)
	if err != nil {
		return err
	}

	dataFile, err := os.Open(dataPath)
	if err != nil {
		return apperrors.Wrap(apperrors.GPG, err, "open artifact for signature verification")
	}
	defer dataFile.Close()

	sigFile, err := os.Open(sigPath)
	if err != nil {
		return apperrors.Wrap(apperrors.GPG, err, "open detached signature")
	}
	defer sigFile.Close()

	trusted := openpgp.EntityList{signer}
	signedBy, err := openpgp.CheckDetachedSignature(trusted, dataFile, sigFile)
	if err != nil {
		if _, seekErr := sigFile.Seek(0, 0); seekErr == nil {
			if _, seekErr := dataFile.Seek(0, 0); seekErr == nil {
				if _, armorErr := openpgp.CheckArmoredDetachedSignature(trusted, dataFile, sigFile); armorErr == nil {
					return nil
				}
			}
		}
		return apperrors.Wrap(apperrors.GPG, err, "detached signature verification failed")
	}
	if signedBy == nil || signedBy.PrimaryKey == nil {
		return apperrors.New(apperrors.GPG, "signature verified against no identifiable key")
	}
	if fingerprintHex(signedBy.PrimaryKey.Fingerprint) != normalizeFingerprint(wantFingerprint) {
		return apperrors.New(apperrors.GPG, "signature was produced by an unexpected key")
	}
	return nil
}
