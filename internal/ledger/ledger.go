// Package ledger persists the last-known-installed version per app key to
// a single JSON file, guarded by an OS advisory lock and written with the
// write-temp-then-rename idiom so a crash mid-write never corrupts it.
package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/flanksource/commons/logger"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
)

// Entry is one app's recorded installation state.
type Entry struct {
	Version     string    `json:"version"`
	InstalledAt time.Time `json:"installed_at"`
	Checksum    string    `json:"checksum,omitempty"`
}

// Ledger is the on-disk record of installed versions, keyed by app_key.
type Ledger struct {
	path    string
	lockTTL time.Duration
}

// New returns a Ledger backed by path. The file need not exist yet; Get
// treats a missing file as an empty ledger and Set creates it on first
// write.
func New(path string) *Ledger {
	return &Ledger{path: path, lockTTL: 10 * time.Second}
}

// Get returns the recorded Entry for appKey, or ok=false if none exists.
// Reads take a shared (best-effort) lock so they never block on another
// reader, only on a writer mid-rename.
func (l *Ledger) Get(appKey string) (Entry, bool, error) {
	data, err := l.readLocked()
	if err != nil {
		return Entry{}, false, err
	}
	entry, ok := data[appKey]
	return entry, ok, nil
}

// All returns every recorded entry, keyed by app_key.
func (l *Ledger) All() (map[string]Entry, error) {
	return l.readLocked()
}

// Set records a new Entry for appKey, acquiring an exclusive lock for the
// duration of the read-modify-write-rename cycle so concurrent packwatch
// invocations never interleave writes (spec.md §4.9).
func (l *Ledger) Set(appKey string, entry Entry) error {
	unlock, err := l.lockExclusive()
	if err != nil {
		return err
	}
	defer unlock()

	data, err := l.readUnlocked()
	if err != nil {
		return err
	}
	if data == nil {
		data = make(map[string]Entry)
	}
	data[appKey] = entry

	return l.writeAtomic(data)
}

// Init ensures the ledger file and its parent directory exist, creating
// an empty ledger if necessary. Safe to call repeatedly.
func (l *Ledger) Init() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return apperrors.Wrap(apperrors.Lock, err, "create ledger directory")
	}
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		return l.writeAtomic(make(map[string]Entry))
	} else if err != nil {
		return apperrors.Wrap(apperrors.Lock, err, "stat ledger file")
	}
	return nil
}

func (l *Ledger) readLocked() (map[string]Entry, error) {
	unlock, err := l.lockShared()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return l.readUnlocked()
}

func (l *Ledger) readUnlocked() (map[string]Entry, error) {
	raw, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return make(map[string]Entry), nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Lock, err, "read ledger")
	}
	if len(raw) == 0 {
		return make(map[string]Entry), nil
	}

	var data map[string]Entry
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, apperrors.Wrap(apperrors.Lock, err, "parse ledger")
	}
	return data, nil
}

// writeAtomic serializes data and writes it via a temp-file-then-rename
// so any reader always sees either the old or the new content, never a
// partial file (grounded on the teacher's atomic config-save idiom).
func (l *Ledger) writeAtomic(data map[string]Entry) error {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return apperrors.Wrap(apperrors.Lock, err, "marshal ledger")
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(apperrors.Lock, err, "create ledger directory")
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return apperrors.Wrap(apperrors.Lock, err, "create temp ledger file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return apperrors.Wrap(apperrors.Lock, err, "write temp ledger file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apperrors.Wrap(apperrors.Lock, err, "sync temp ledger file")
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Wrap(apperrors.Lock, err, "close temp ledger file")
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		logger.Warnf("ledger: failed to chmod temp file: %v", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return apperrors.Wrap(apperrors.Lock, err, "rename ledger into place")
	}
	return nil
}

// lockPath returns the sidecar lock file path for the ledger.
func (l *Ledger) lockPath() string {
	return l.path + ".lock"
}

// lockExclusive acquires an exclusive flock on the ledger's sidecar lock
// file, polling until acquired or lockTTL elapses, per spec.md §4.9's
// "acquire timeout, serialized writers" requirement.
func (l *Ledger) lockExclusive() (func(), error) {
	return l.lockWith(syscall.LOCK_EX)
}

// lockShared acquires a shared (read) flock, best-effort: failing to
// acquire within the TTL degrades to an unlocked read rather than
// blocking a status query forever.
func (l *Ledger) lockShared() (func(), error) {
	unlock, err := l.lockWith(syscall.LOCK_SH)
	if err != nil {
		logger.Debugf("ledger: proceeding with unlocked read: %v", err)
		return func() {}, nil
	}
	return unlock, nil
}

func (l *Ledger) lockWith(how int) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(l.lockPath()), 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.Lock, err, "create lock directory")
	}

	f, err := os.OpenFile(l.lockPath(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Lock, err, "open lock file")
	}

	deadline := time.Now().Add(l.lockTTL)
	for {
		err := syscall.Flock(int(f.Fd()), how|syscall.LOCK_NB)
		if err == nil {
			return func() {
				syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
				f.Close()
			}, nil
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, apperrors.New(apperrors.Lock, "timed out acquiring ledger lock")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Keys returns the sorted app keys currently recorded in the ledger.
func Keys(entries map[string]Entry) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
