package scan

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceWindow coalesces bursts of filesystem events (e.g. an
// editor's save-via-rename) into a single ScanEvent per path.
const DefaultDebounceWindow = 200 * time.Millisecond

// ScanEvent feeds the same add/modified/deleted classification the Syncer
// performs on a triggered sync.
type ScanEvent struct {
	Op   ChangeOp
	File ScannedFile
}

// Watch recursively watches root and streams debounced ScanEvents on the
// returned channel until ctx is cancelled, at which point the channel is
// closed. It is an ambient convenience over Scan: callers can react to
// events by re-invoking the identical sync entrypoint they'd use for a
// polled or manually triggered pass.
func (s *Scanner) Watch(ctx context.Context, root string) (<-chan ScanEvent, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := addRecursive(fsw, absRoot); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	out := make(chan ScanEvent, 64)
	deb := newDebouncer(DefaultDebounceWindow)

	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				deb.Stop()
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					deb.Stop()
					return
				}
				s.handleFsnotifyEvent(fsw, absRoot, ev, deb)
			case err, ok := <-fsw.Errors:
				if !ok {
					continue
				}
				slog.Warn("scan: fsnotify error", slog.String("error", err.Error()))
			}
		}
	}()

	go func() {
		defer close(out)
		for batch := range deb.Output() {
			for _, raw := range batch {
				rel, err := filepath.Rel(absRoot, raw.path)
				if err != nil {
					continue
				}
				relPosix := filepath.ToSlash(rel)
				if s.rejectsDotComponent(filepath.Base(relPosix)) || s.isIgnored(relPosix) {
					continue
				}
				if raw.op != OpDelete && !s.hasWantedExtension(raw.path) {
					continue
				}
				if !s.passesIncludeWhitelist(relPosix) {
					continue
				}
				select {
				case out <- ScanEvent{Op: raw.op, File: ScannedFile{
					FullPath:     raw.path,
					RelativePath: relPosix,
					Filename:     filepath.Base(relPosix),
					FolderPath:   posixFolderOf(relPosix),
				}}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (s *Scanner) handleFsnotifyEvent(fsw *fsnotify.Watcher, root string, ev fsnotify.Event, deb *debouncer) {
	switch {
	case ev.Op&fsnotify.Create != 0:
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = addRecursive(fsw, ev.Name)
			return
		}
		deb.add(rawEvent{path: ev.Name, op: OpCreate})
	case ev.Op&fsnotify.Write != 0:
		deb.add(rawEvent{path: ev.Name, op: OpModify})
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		deb.add(rawEvent{path: ev.Name, op: OpDelete})
	}
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() != filepath.Base(root) && len(d.Name()) > 0 && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return fsw.Add(p)
		}
		return nil
	})
}
