package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/vaultrag/vaultrag/internal/chunk"
	"github.com/vaultrag/vaultrag/internal/scan"
	"github.com/vaultrag/vaultrag/internal/store"
)

// sampleSize bounds the vault-change/corruption sample check.
const sampleSize = 5

// lockFileName is the single-writer lock acquired inside the vault's
// .vaultrag directory for the duration of a sync cycle.
const lockFileName = "sync.lock"

// Syncer orchestrates scan → diff → chunk → upsert/delete → registry
// update.
type Syncer struct {
	root     string
	dataDir  string
	scanner  *scan.Scanner
	tracker  *FileTracker
	chunker  chunk.Chunker
	vectors  store.VectorStore
	keywords store.BM25Index // may be nil; HybridSearcher's sparse side
	registry *Registry
}

// NewSyncer wires a Syncer over an already-open Registry. dataDir is the
// vault's .vaultrag directory, used for the single-writer lock file.
func NewSyncer(root, dataDir string, scanner *scan.Scanner, chunker chunk.Chunker, vectors store.VectorStore, keywords store.BM25Index, registry *Registry) *Syncer {
	return &Syncer{
		root:     root,
		dataDir:  dataDir,
		scanner:  scanner,
		tracker:  NewFileTracker(),
		chunker:  chunker,
		vectors:  vectors,
		keywords: keywords,
		registry: registry,
	}
}

// Sync runs one incremental cycle").
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	lock, err := s.acquireLock()
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	result := &SyncResult{}

	scanned, err := s.scanner.Scan(ctx, s.root)
	if err != nil {
		return nil, fmt.Errorf("scan vault: %w", err)
	}

	var current []FileState
	for _, f := range scanned {
		fs, err := s.tracker.GetFileState(f.FullPath, f.RelativePath)
		if err != nil {
			result.Errors = append(result.Errors, SyncError{RelativePath: f.RelativePath, Err: err})
			continue
		}
		current = append(current, fs)
	}

	changes := s.tracker.DetectChanges(current, s.registry.Files())
	result.Unchanged = len(changes.Unchanged)

	byPath := make(map[string]scan.ScannedFile, len(scanned))
	for _, f := range scanned {
		byPath[f.RelativePath] = f
	}
	stateByPath := make(map[string]FileState, len(current))
	for _, fs := range current {
		stateByPath[fs.RelativePath] = fs
	}

	for _, rp := range changes.Deleted {
		if err := s.processDelete(ctx, rp); err != nil {
			result.Errors = append(result.Errors, SyncError{RelativePath: rp, Err: err})
			continue
		}
		result.Deleted++
	}

	for _, rp := range changes.Modified {
		chunks, err := s.processUpsert(ctx, byPath[rp], stateByPath[rp])
		if err != nil {
			result.Errors = append(result.Errors, SyncError{RelativePath: rp, Err: err})
			continue
		}
		result.Modified++
		result.TotalChunks += chunks
	}

	for _, rp := range changes.Added {
		chunks, err := s.processUpsert(ctx, byPath[rp], stateByPath[rp])
		if err != nil {
			result.Errors = append(result.Errors, SyncError{RelativePath: rp, Err: err})
			continue
		}
		result.Added++
		result.TotalChunks += chunks
	}

	if err := s.registry.Save(); err != nil {
		return result, fmt.Errorf("save registry: %w", err)
	}

	return result, nil
}

// FullSync clears the registry (keeping vault_path) and the vector store,
// then runs an incremental sync over the now-empty state").
func (s *Syncer) FullSync(ctx context.Context) (*SyncResult, error) {
	s.registry.Clear()
	if err := s.vectors.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear vector store: %w", err)
	}
	return s.Sync(ctx)
}

// ShouldFullSync implements the vault-change and sampled-corruption
// promotion rule: true if the registry's stored vault_path
// differs from root, if the registry is empty while the vector store still
// holds chunks (a missing or unreadable registry file), or if a sampled
// subset (≤5 entries) of registry paths fail to exist on disk under root.
func (s *Syncer) ShouldFullSync() bool {
	stored := s.registry.GetVaultPath()
	if stored != "" && stored != s.root {
		return true
	}
	if s.registry.Len() == 0 && s.vectors.Count() > 0 {
		return true
	}

	files := s.registry.Files()
	checked := 0
	for rp := range files {
		if checked >= sampleSize {
			break
		}
		checked++
		if _, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(rp))); err != nil {
			return true
		}
	}
	return false
}

// RecordVaultPath stamps the current absolute vault path on the registry.
// Call after a successful Sync/FullSync.
func (s *Syncer) RecordVaultPath() {
	s.registry.SetVaultPath(s.root)
}

func (s *Syncer) processDelete(ctx context.Context, relativePath string) error {
	if err := s.vectors.DeleteByRelativePath(ctx, relativePath); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if s.keywords != nil {
		entry, ok := s.registry.Entry(relativePath)
		if ok {
			ids := make([]string, entry.ChunkCount)
			for i := range ids {
				ids[i] = store.ChunkID(relativePath, i)
			}
			if err := s.keywords.Delete(ctx, ids); err != nil {
				return fmt.Errorf("delete keyword entries: %w", err)
			}
		}
	}
	s.registry.RemoveFileInfo(relativePath)
	return nil
}

func (s *Syncer) processUpsert(ctx context.Context, file scan.ScannedFile, fs FileState) (int, error) {
	content, err := os.ReadFile(file.FullPath)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}

	chunks, err := s.chunker.Chunk(ctx, &chunk.FileInput{
		Source:       file.Filename,
		RelativePath: file.RelativePath,
		Content:      content,
	})
	if err != nil {
		return 0, fmt.Errorf("chunk file: %w", err)
	}

	inputs := make([]store.ChunkInput, len(chunks))
	docs := make([]*store.Document, len(chunks))
	for i, c := range chunks {
		meta := metadataToMap(c.Metadata)
		inputs[i] = store.ChunkInput{Text: c.Text, Metadata: meta}
		docs[i] = &store.Document{ID: store.ChunkID(file.RelativePath, i), Content: c.Text}
	}

	newCount, err := s.vectors.UpsertChunks(ctx, inputs, file.RelativePath)
	if err != nil {
		return 0, fmt.Errorf("upsert chunks: %w", err)
	}

	if s.keywords != nil && len(docs) > 0 {
		if err := s.keywords.Index(ctx, docs); err != nil {
			return 0, fmt.Errorf("index keyword entries: %w", err)
		}
	}

	if entry, ok := s.registry.Entry(file.RelativePath); ok && newCount < entry.ChunkCount {
		if err := s.vectors.DeleteChunksByPrefix(ctx, file.RelativePath, newCount); err != nil {
			return 0, fmt.Errorf("evict straggler chunks: %w", err)
		}
		if s.keywords != nil {
			straggler := make([]string, 0, entry.ChunkCount-newCount)
			for i := newCount; i < entry.ChunkCount; i++ {
				straggler = append(straggler, store.ChunkID(file.RelativePath, i))
			}
			if err := s.keywords.Delete(ctx, straggler); err != nil {
				return 0, fmt.Errorf("evict straggler keyword entries: %w", err)
			}
		}
	}

	s.registry.UpdateFileInfo(file.RelativePath, RegistryEntry{
		ContentHash: fs.ContentHash,
		Mtime:       fs.Mtime,
		ChunkCount:  newCount,
		LastSynced:  time.Now(),
	})

	return newCount, nil
}

func (s *Syncer) acquireLock() (*flock.Flock, error) {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	lock := flock.New(filepath.Join(s.dataDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("sync already in progress (lock held): %s", lock.Path())
	}
	return lock, nil
}

// metadataToMap flattens a chunk.Metadata into the map[string]any shape
// VectorStore.UpsertChunks normalizes, folding in any caller
// supplied Extra fields.
func metadataToMap(m chunk.Metadata) map[string]any {
	out := map[string]any{
		"source":        m.Source,
		"relative_path": m.RelativePath,
		"folder_path":   m.FolderPath,
		"header_path":   m.HeaderPath,
		"headers":       m.Headers,
		"level":         m.Level,
	}
	if len(m.Frontmatter.Tags) > 0 {
		out["tags"] = m.Frontmatter.Tags
	}
	if m.Frontmatter.CreateDate != "" {
		out["create_date"] = m.Frontmatter.CreateDate
	}
	for k, v := range m.Frontmatter.Extra {
		out[k] = v
	}
	for k, v := range m.Extra {
		out[k] = v
	}
	return out
}
