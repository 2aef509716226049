package scan

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

// dirDecisionCacheSize bounds the per-directory ignore-decision cache so
// long-running watch sessions on large vaults don't grow it unbounded.
const dirDecisionCacheSize = 4096

// Scanner discovers indexable files under a vault root.
type Scanner struct {
	extensions     map[string]struct{}
	ignorePatterns []string
	includePaths   []string

	dirDecisions *lru.Cache[string, bool]
	mu           sync.Mutex
}

// New creates a Scanner. Zero-value Options fields fall back to the
// package defaults.
func New(opts Options) (*Scanner, error) {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	extSet := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		extSet[e] = struct{}{}
	}

	patterns := opts.IgnorePatterns
	if len(patterns) == 0 {
		patterns = DefaultIgnorePatterns
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("scan: invalid ignore pattern %q", p)
		}
	}

	cache, err := lru.New[string, bool](dirDecisionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("scan: creating decision cache: %w", err)
	}

	return &Scanner{
		extensions:     extSet,
		ignorePatterns: patterns,
		includePaths:   normalizeIncludePaths(opts.IncludePaths),
		dirDecisions:   cache,
	}, nil
}

// Scan walks root recursively and returns every ScannedFile that survives
// the dotfile rule, the ignore set, the extension filter, and (if set) the
// include_paths whitelist, sorted by (folder_path, filename).
func (s *Scanner) Scan(ctx context.Context, root string) ([]ScannedFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("scan: resolving root: %w", err)
	}

	var out []ScannedFile
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if walkErr != nil {
			return nil
		}
		if p == absRoot {
			return nil
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return nil
		}
		relPosix := filepath.ToSlash(rel)

		if d.IsDir() {
			if s.rejectsDotComponent(d.Name()) || s.isIgnored(relPosix+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if s.rejectsDotComponent(d.Name()) {
			return nil
		}
		if s.isIgnored(relPosix) {
			return nil
		}
		if !s.hasWantedExtension(d.Name()) {
			return nil
		}
		if !s.passesIncludeWhitelist(relPosix) {
			return nil
		}

		folder := posixFolderOf(relPosix)
		out = append(out, ScannedFile{
			FullPath:     p,
			RelativePath: relPosix,
			Filename:     d.Name(),
			FolderPath:   folder,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FolderPath != out[j].FolderPath {
			return out[i].FolderPath < out[j].FolderPath
		}
		return out[i].Filename < out[j].Filename
	})

	return out, nil
}

// rejectsDotComponent reports whether a path component starting with `.`
// should be rejected (the root itself is never passed here).
func (s *Scanner) rejectsDotComponent(name string) bool {
	return strings.HasPrefix(name, ".")
}

func (s *Scanner) hasWantedExtension(name string) bool {
	_, ok := s.extensions[filepath.Ext(name)]
	return ok
}

// isIgnored matches relPath against the configured ignore-set, memoizing
// the decision per path so repeated Scan/Watch passes over an unchanged
// tree don't recompile glob matches.
func (s *Scanner) isIgnored(relPath string) bool {
	s.mu.Lock()
	if v, ok := s.dirDecisions.Get(relPath); ok {
		s.mu.Unlock()
		return v
	}
	s.mu.Unlock()

	ignored := false
	for _, pattern := range s.ignorePatterns {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			ignored = true
			break
		}
	}

	s.mu.Lock()
	s.dirDecisions.Add(relPath, ignored)
	s.mu.Unlock()
	return ignored
}

func (s *Scanner) passesIncludeWhitelist(relPath string) bool {
	if len(s.includePaths) == 0 {
		return true
	}
	for _, prefix := range s.includePaths {
		if strings.HasPrefix(relPath, prefix) {
			return true
		}
	}
	return false
}

func normalizeIncludePaths(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.ToSlash(strings.TrimPrefix(p, "./"))
	}
	return out
}

// posixFolderOf mirrors path.Dir but returns "" instead of "." for
// root-level files, matching ScannedFile.FolderPath's contract.
func posixFolderOf(relPosix string) string {
	dir := path.Dir(relPosix)
	if dir == "." {
		return ""
	}
	return dir
}

// InvalidateCache clears the per-directory ignore-decision cache. Call
// after the ignore set changes (e.g. a config reload).
func (s *Scanner) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirDecisions.Purge()
}
