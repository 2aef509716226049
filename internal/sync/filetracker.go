package sync

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// hashBlockSize is the streaming read size for FileTracker.GetFileState.
const hashBlockSize = 8 * 1024

// FileTracker computes per-file state and classifies it against a registry.
type FileTracker struct{}

// NewFileTracker creates a FileTracker. It is stateless.
func NewFileTracker() *FileTracker {
	return &FileTracker{}
}

// GetFileState streams absPath's content through MD5 in 8 KiB blocks and
// pairs the resulting hash with the file's mtime.
func (t *FileTracker) GetFileState(absPath, relativePath string) (FileState, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return FileState{}, fmt.Errorf("stat %s: %w", relativePath, err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return FileState{}, fmt.Errorf("open %s: %w", relativePath, err)
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, hashBlockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return FileState{}, fmt.Errorf("hash %s: %w", relativePath, err)
	}

	return FileState{
		RelativePath: relativePath,
		Mtime:        float64(info.ModTime().UnixNano()) / 1e9,
		ContentHash:  hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// DetectChanges applies the two-tier mtime-then-hash rule: deleted =
// registry keys absent from current; for each current file, added if
// absent from registry; unchanged if mtime matches (fast path, no hash
// compare); unchanged if content_hash matches despite a touch; modified
// otherwise.
func (t *FileTracker) DetectChanges(current []FileState, registry map[string]RegistryEntry) ChangeSet {
	var set ChangeSet

	currentByPath := make(map[string]FileState, len(current))
	for _, fs := range current {
		currentByPath[fs.RelativePath] = fs
	}

	for path := range registry {
		if _, ok := currentByPath[path]; !ok {
			set.Deleted = append(set.Deleted, path)
		}
	}

	for _, fs := range current {
		entry, known := registry[fs.RelativePath]
		switch {
		case !known:
			set.Added = append(set.Added, fs.RelativePath)
		case fs.Mtime == entry.Mtime:
			set.Unchanged = append(set.Unchanged, fs.RelativePath)
		case fs.ContentHash == entry.ContentHash:
			set.Unchanged = append(set.Unchanged, fs.RelativePath)
		default:
			set.Modified = append(set.Modified, fs.RelativePath)
		}
	}

	return set
}
