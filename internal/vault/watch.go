package vault

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reconcileDelay debounces the sync pass that follows renames.
const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the vault root and re-imports changed
// files until ctx is cancelled.
//
// New directories created at runtime are added to the watch list. Rename
// events trigger a debounced Sync that removes items whose files no longer
// exist and imports files that arrived under a new name.
func (v *Vault) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := v.files.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	v.logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			v.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := v.Sync(ctx); err != nil {
				v.logger.Warn("reconcile: sync failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			v.handle(ctx, w, ev, scheduleReconcile)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			v.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (v *Vault) handle(ctx context.Context, w *fsnotify.Watcher, ev fsnotify.Event, scheduleReconcile func()) {
	root := v.files.Root()
	absPath := ev.Name

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
			if addErr := addDirsRecursive(w, absPath); addErr != nil {
				v.logger.Warn("watcher: add new dir failed",
					slog.String("path", absPath),
					slog.String("error", addErr.Error()))
			}
			// Files may have landed before the directory was watched.
			scheduleReconcile()
			return
		}
	}

	if !strings.HasSuffix(strings.ToLower(absPath), ".md") || strings.HasPrefix(filepath.Base(absPath), ".") {
		return
	}
	rel, relErr := filepath.Rel(root, absPath)
	if relErr != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if err := v.Import(ctx, rel); err != nil {
			v.logger.Warn("watcher: import failed", slog.String("path", rel), slog.String("error", err.Error()))
		}

	case ev.Op&fsnotify.Remove != 0:
		if err := v.Remove(ctx, rel); err != nil {
			v.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		}

	case ev.Op&fsnotify.Rename != 0:
		// fsnotify reports Rename on the old path only; the new path
		// arrives as a Create when it stays inside a watched directory.
		scheduleReconcile()
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
