// Package scanner enumerates candidate log files for a search request.
package scanner

import (
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/logsearch-mcp/internal/debug"
	logerrors "github.com/standardbeagle/logsearch-mcp/internal/errors"
	"github.com/standardbeagle/logsearch-mcp/internal/model"
)

// Scanner turns a FileScanConfig (plus optional global explicit paths) into
// a sorted, de-duplicated list of candidate file paths. It is stateless and
// safe to share across concurrent requests.
type Scanner struct{}

// New returns a Scanner handle. Scanner carries no mutable state, so every
// caller may hold the same value.
func New() *Scanner {
	return &Scanner{}
}

// Scan resolves scanConfig (and any globally configured explicitPaths) into
// the ordered file list described in the scanner's design: each explicit
// path that exists and is a regular file is kept (missing ones are skipped
// silently, and globs are not applied to them), and when RootPath is set it
// is also walked recursively, depth-first, without following symlinks.
func (s *Scanner) Scan(cfg model.FileScanConfig, explicitPaths []string) ([]string, error) {
	var out []string

	if len(explicitPaths) > 0 {
		for _, p := range explicitPaths {
			info, err := fsStat(p)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			out = append(out, p)
		}
	}

	if cfg.RootPath != "" {
		walked, err := s.walk(cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, walked...)
	}

	return dedupSort(out), nil
}

func (s *Scanner) walk(cfg model.FileScanConfig) ([]string, error) {
	includes := cfg.IncludeGlobs
	if len(includes) == 0 {
		includes = model.DefaultIncludeGlobs
	}
	excludes := cfg.ExcludeGlobs

	for _, pat := range includes {
		if !doublestar.ValidatePattern(pat) {
			return nil, logerrors.NewConfigError("include_globs", pat, errInvalidPattern)
		}
	}
	for _, pat := range excludes {
		if !doublestar.ValidatePattern(pat) {
			return nil, logerrors.NewConfigError("exclude_globs", pat, errInvalidPattern)
		}
	}

	var matches []string
	walkErr := filepath.WalkDir(cfg.RootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			debug.LogScan("walk error at %s: %v", path, err)
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if matchesAny(path, excludes) {
			return nil
		}
		if !matchesAny(path, includes) {
			return nil
		}
		matches = append(matches, path)
		return nil
	})
	if walkErr != nil {
		return nil, logerrors.NewFileAccessError(cfg.RootPath, "walk failed", walkErr)
	}
	return matches, nil
}

// matchesAny reports whether path matches any of the given glob patterns,
// trying both the native path form and its forward-slash-normalized form.
func matchesAny(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	normalized := filepath.ToSlash(path)
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, path); ok {
			return true
		}
		if ok, _ := doublestar.Match(pat, normalized); ok {
			return true
		}
	}
	return false
}

func dedupSort(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
