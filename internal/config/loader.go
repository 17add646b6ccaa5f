package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/flanksource/commons/logger"
	"github.com/samber/lo"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
)

// Store holds every AppConfig loaded from a conf.d directory, keyed by
// app_key, mirroring the teacher's in-memory deps.yaml registry but
// sourced from one-file-per-app JSON instead of a single YAML document.
type Store struct {
	apps map[string]*AppConfig
	dir  string
}

// Load reads every *.json file directly under dir (conf.d), validates
// each one, and returns a Store. Per spec.md §4.1, the conf.d directory
// itself must exist; individual file errors are collected and returned
// together so one bad app config does not hide others.
func Load(dir string) (*Store, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, apperrors.Wrap(apperrors.Config, err, "read conf.d")
	}
	matches, err := doublestar.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Config, err, "enumerate conf.d")
	}
	sort.Strings(matches)

	store := &Store{apps: make(map[string]*AppConfig, len(matches)), dir: dir}
	var loadErrs []string

	for _, name := range matches {
		full := filepath.Join(dir, name)
		cfg, err := loadOne(full)
		if err != nil {
			loadErrs = append(loadErrs, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		expectedKey := strings.TrimSuffix(strings.ToLower(name), ".json")
		if strings.ToLower(cfg.AppKey) != expectedKey {
			loadErrs = append(loadErrs, fmt.Sprintf(
				"%s: app_key %q does not match filename (expected %q)",
				name, cfg.AppKey, expectedKey))
			continue
		}

		if err := Validate(cfg); err != nil {
			loadErrs = append(loadErrs, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		store.apps[cfg.AppKey] = cfg
	}

	if len(loadErrs) > 0 {
		return store, apperrors.New(apperrors.Config,
			"invalid app configuration(s): "+strings.Join(loadErrs, "; "))
	}
	return store, nil
}

func loadOne(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg AppConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// List returns every enabled app, sorted by app_key.
func (s *Store) List() []*AppConfig {
	keys := make([]string, 0, len(s.apps))
	for k, cfg := range s.apps {
		if cfg.Enabled {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return lo.Map(keys, func(k string, _ int) *AppConfig { return s.apps[k] })
}

// All returns every app regardless of enabled state, sorted by app_key.
func (s *Store) All() []*AppConfig {
	keys := make([]string, 0, len(s.apps))
	for k := range s.apps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return lo.Uniq(lo.Map(keys, func(k string, _ int) *AppConfig { return s.apps[k] }))
}

// Get looks up a single app by key. If absent, the error message suggests
// the closest known key by edit distance, so a typo on the CLI ("packwatch
// fierfox") gets a "did you mean firefox?" nudge instead of a bare miss.
func (s *Store) Get(appKey string) (*AppConfig, error) {
	if cfg, ok := s.apps[appKey]; ok {
		return cfg, nil
	}

	suggestion := s.closestKey(appKey)
	if suggestion != "" {
		logger.Warnf("unknown app key %q; did you mean %q?", appKey, suggestion)
		return nil, apperrors.New(apperrors.Config,
			fmt.Sprintf("unknown app %q (did you mean %q?)", appKey, suggestion))
	}
	return nil, apperrors.New(apperrors.Config, fmt.Sprintf("unknown app %q", appKey))
}

func (s *Store) closestKey(appKey string) string {
	best := ""
	bestDist := -1
	for k := range s.apps {
		d := levenshtein.ComputeDistance(strings.ToLower(appKey), strings.ToLower(k))
		if d <= 3 && (bestDist == -1 || d < bestDist) {
			best, bestDist = k, d
		}
	}
	return best
}
