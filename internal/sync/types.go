// Package sync tracks per-file state against a durable registry and
// orchestrates scan → diff → chunk → upsert/delete → registry-update
// cycles over a vault.
package sync

import "time"

// FileState is a file's identity at scan time: the path, its
// modification time, and an MD5 content hash. Immutable within a cycle.
type FileState struct {
	RelativePath string
	Mtime        float64 // seconds since epoch
	ContentHash  string  // MD5 hex, 32 chars
}

// ChangeType classifies a file relative to the registry.
type ChangeType int

const (
	ChangeUnchanged ChangeType = iota
	ChangeAdded
	ChangeModified
	ChangeDeleted
)

func (c ChangeType) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unchanged"
	}
}

// ChangeSet is the result of FileTracker.DetectChanges.
type ChangeSet struct {
	Added     []string
	Modified  []string
	Deleted   []string
	Unchanged []string
}

// RegistryEntry is the per-file record a Registry persists.
// Invariant: ChunkCount equals the number of chunks currently present in the
// vector store for RelativePath.
type RegistryEntry struct {
	ContentHash string    `json:"content_hash"`
	Mtime       float64   `json:"mtime"`
	ChunkCount  int       `json:"chunk_count"`
	LastSynced  time.Time `json:"last_synced"`
}

// SyncError pairs a failed file with the error FileTracker or the Syncer
// hit processing it. Per-file errors never abort a cycle.
type SyncError struct {
	RelativePath string
	Err          error
}

func (e SyncError) Error() string {
	return e.RelativePath + ": " + e.Err.Error()
}

// SyncResult summarizes one sync() or full_sync() cycle.
type SyncResult struct {
	Added       int
	Modified    int
	Deleted     int
	Unchanged   int
	TotalChunks int
	Errors      []SyncError
}
