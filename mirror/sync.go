package mirror

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Sync runs one pass: phase one pushes the local tree to the remote one,
// then phase two pulls whatever the remote tree has that the local tree
// lacks.
//
// Files are compared by size only. Per-entry failures do not stop the
// pass; they are collected in Report.Err. The returned error is non-nil
// only when ctx ends the pass early, in which case the partial report is
// still returned.
//
// A file whose upload failed in phase one is never downloaded over in
// phase two.
func (e *Engine) Sync(ctx context.Context) (*Report, error) {
	start := time.Now()
	t := newTally()

	e.push(ctx, t, "", e.remoteRoot != "/")
	if err := ctx.Err(); err != nil {
		return t.result(), err
	}
	e.pull(ctx, t, "")

	report := t.result()
	e.logger.WithFields(logrus.Fields{
		"uploaded":    report.Uploaded,
		"downloaded":  report.Downloaded,
		"skipped":     report.Skipped,
		"failed":      len(report.Failures()),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("sync_complete")

	return report, ctx.Err()
}

// push reconciles one directory in phase one and recurses into its
// subdirectories. ensure asks for the remote directory to be created first.
func (e *Engine) push(ctx context.Context, t *tally, rel string, ensure bool) {
	if ctx.Err() != nil {
		return
	}

	if ensure {
		if err := e.remote.MakeDir(ctx, e.remotePath(rel)); err != nil {
			e.entryFailed(t, ActionMkdirRemote.String(), rel, err)
			return
		}
		if rel != "" {
			t.count(ActionMkdirRemote)
		}
	}

	local, err := readLocal(e.localPath(rel))
	if err != nil {
		e.entryFailed(t, "read", rel, err)
		return
	}
	entries, err := e.remote.List(ctx, e.remotePath(rel))
	if err != nil {
		e.entryFailed(t, "list", rel, err)
		return
	}

	items := planPush(rel, local, remoteMetas(entries))
	for _, it := range items {
		switch {
		case it.Unmirrored():
			e.entryFailed(t, "compare", it.Path, ErrNotMirrored)
		case it.Conflict():
			e.entryFailed(t, "compare", it.Path, ErrTypeConflict)
		}
	}
	e.runFiles(ctx, t, items, func(ctx context.Context, it Item) error {
		return e.remote.Upload(ctx, e.localPath(it.Path), e.remotePath(it.Path))
	})

	for _, it := range items {
		if it.Local.Dir && !it.Conflict() {
			created := it.Action == ActionMkdirRemote
			e.push(ctx, t, it.Path, created)
		}
	}
}

// pull reconciles one directory in phase two and recurses into its
// subdirectories.
func (e *Engine) pull(ctx context.Context, t *tally, rel string) {
	if ctx.Err() != nil {
		return
	}

	entries, err := e.remote.List(ctx, e.remotePath(rel))
	if err != nil {
		e.entryFailed(t, "list", rel, err)
		return
	}
	local, err := readLocal(e.localPath(rel))
	if err != nil {
		e.entryFailed(t, "read", rel, err)
		return
	}

	items := planPull(rel, local, remoteMetas(entries))
	for i, it := range items {
		if it.Action == ActionDownload && it.Local != nil && t.uploadFailed(it.Path) {
			items[i].Action = ActionSkip
		}
	}
	e.runFiles(ctx, t, items, func(ctx context.Context, it Item) error {
		return e.remote.Download(ctx, e.remotePath(it.Path), e.localPath(it.Path))
	})

	for _, it := range items {
		if !it.Remote.Dir || it.Conflict() || it.Unmirrored() {
			continue
		}
		if it.Action == ActionMkdirLocal {
			if err := os.Mkdir(e.localPath(it.Path), 0o755); err != nil && !os.IsExist(err) {
				e.entryFailed(t, ActionMkdirLocal.String(), it.Path, err)
				continue
			}
			t.count(ActionMkdirLocal)
		}
		e.pull(ctx, t, it.Path)
	}
}

// runFiles applies transfer to every file item whose action is not skip,
// with at most e.concurrency transfers in flight. Failures are recorded,
// never returned, so one failure does not cancel its siblings. Conflicts
// and directories are left to the caller.
func (e *Engine) runFiles(ctx context.Context, t *tally, items []Item, transfer func(context.Context, Item) error) {
	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for _, it := range items {
		isDir := (it.Local != nil && it.Local.Dir) || (it.Remote != nil && it.Remote.Dir)
		if isDir || it.Conflict() || it.Unmirrored() {
			continue
		}
		if it.Action == ActionSkip {
			t.count(ActionSkip)
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			start := time.Now()
			if err := transfer(ctx, it); err != nil {
				e.entryFailed(t, it.Action.String(), it.Path, err)
				return nil
			}
			t.count(it.Action)
			e.logger.WithFields(logrus.Fields{
				"op":          it.Action.String(),
				"path":        it.Path,
				"duration_ms": time.Since(start).Milliseconds(),
			}).Debug("entry_synced")
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) entryFailed(t *tally, op, rel string, err error) {
	e.logger.WithFields(logrus.Fields{
		"op":   op,
		"path": rel,
	}).WithError(err).Warn("sync_entry_failed")
	t.fail(op, rel, err)
}

// SyncFile runs the upload step for a single local path: the remote parent
// directories are created, then the file is uploaded unless the remote copy
// already has the same size. A directory is created remotely and not
// descended into.
func (e *Engine) SyncFile(ctx context.Context, localPath string) error {
	rel, err := e.relPath(localPath)
	if err != nil {
		return err
	}

	info, err := e.lstatInside(rel)
	if err != nil {
		return err
	}

	dirs := remoteAncestors(e.remoteRoot, e.remotePath(rel))
	if info.IsDir() {
		dirs = append(dirs, e.remotePath(rel))
	} else if !info.Mode().IsRegular() {
		return &EntryError{Op: ActionUpload.String(), Path: rel, Err: ErrNotMirrored}
	}
	for _, dir := range dirs {
		if err := e.remote.MakeDir(ctx, dir); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if info.IsDir() {
		return nil
	}

	entries, err := e.remote.List(ctx, path.Dir(e.remotePath(rel)))
	if err != nil {
		return err
	}
	name := path.Base(rel)
	for _, entry := range entries {
		if entry.Name == name && !entry.IsDir() && entry.Size == info.Size() {
			e.logger.WithField("path", rel).Debug("entry_unchanged")
			return nil
		}
	}

	if err := e.remote.Upload(ctx, e.localPath(rel), e.remotePath(rel)); err != nil {
		return err
	}
	e.logger.WithFields(logrus.Fields{
		"op":   ActionUpload.String(),
		"path": rel,
	}).Info("entry_synced")
	return nil
}

// lstatInside describes rel without following symlinks, and refuses a
// path that reaches it through a symlinked directory.
func (e *Engine) lstatInside(rel string) (os.FileInfo, error) {
	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		parent := strings.Join(parts[:i], "/")
		info, err := os.Lstat(e.localPath(parent))
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, &EntryError{Op: ActionUpload.String(), Path: rel, Err: ErrNotMirrored}
		}
	}
	return os.Lstat(e.localPath(rel))
}

// relPath turns a local path into a slash-separated path relative to the
// local root. Relative inputs are taken as relative to the root.
func (e *Engine) relPath(localPath string) (string, error) {
	if !filepath.IsAbs(localPath) {
		localPath = filepath.Join(e.localRoot, localPath)
	}
	rel, err := filepath.Rel(e.localRoot, filepath.Clean(localPath))
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is not inside %s", localPath, e.localRoot)
	}
	return filepath.ToSlash(rel), nil
}

// remoteAncestors returns the directories between root (inclusive unless it
// is "/") and target (exclusive), outermost first.
func remoteAncestors(root, target string) []string {
	var dirs []string
	for dir := path.Dir(target); dir != "/" && dir != "."; dir = path.Dir(dir) {
		dirs = append(dirs, dir)
		if dir == root {
			break
		}
	}
	slices.Reverse(dirs)
	return dirs
}
