package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrPathViolation is matched by every error returned when a requested path
// resolves outside the server root.
var ErrPathViolation = errors.New("ftp: path escapes server root")

// PathViolationError reports a path that resolved outside the server root.
// It matches both ErrPathViolation and fs.ErrPermission.
type PathViolationError struct {
	Path string
}

func (e *PathViolationError) Error() string {
	return fmt.Sprintf("path %q escapes server root", e.Path)
}

func (e *PathViolationError) Is(target error) bool {
	return target == ErrPathViolation || target == fs.ErrPermission
}

// Root is the directory tree every session is confined to.
//
// The root path is canonical (absolute, symlinks resolved) and never
// changes after NewRoot. File operations go through an os.Root handle, so
// the kernel enforces the same boundary the resolver checks.
type Root struct {
	path   string
	handle *os.Root
}

// Location is a resolved path: Logical is what the client sees ("/a/b"),
// Physical is the absolute path on disk.
type Location struct {
	Logical  string
	Physical string
	rel      string
}

// IsRoot reports whether the location is the server root itself.
func (l Location) IsRoot() bool {
	return l.rel == "."
}

// NewRoot opens dir as a server root. dir must exist and be a directory.
func NewRoot(dir string) (*Root, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("root path validation failed: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", dir)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}

	handle, err := os.OpenRoot(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to open root: %w", err)
	}
	return &Root{path: canonical, handle: handle}, nil
}

// Path returns the canonical root directory.
func (r *Root) Path() string {
	return r.path
}

// Close releases the root handle.
func (r *Root) Close() error {
	return r.handle.Close()
}

// Resolve maps requested, interpreted relative to the logical directory
// cwd, to a location inside the root.
//
// A requested path starting with "/" replaces cwd. The joined path is
// canonicalized only as far as it exists, so a not-yet-created leaf (MKD,
// STOR) resolves fine while a symlink or ".." that leaves the root yields a
// *PathViolationError. Paths are never clamped to the root.
func (r *Root) Resolve(cwd, requested string) (Location, error) {
	logical := requested
	if !strings.HasPrefix(requested, "/") {
		logical = cwd + "/" + requested
	}

	candidate := filepath.Join(r.path, filepath.FromSlash(logical))
	if !r.contains(candidate) {
		return Location{}, &PathViolationError{Path: requested}
	}

	physical := candidate
	if canonical, err := canonicalize(candidate); err == nil {
		if !r.contains(canonical) {
			return Location{}, &PathViolationError{Path: requested}
		}
		physical = canonical
	}

	rel, err := filepath.Rel(r.path, physical)
	if err != nil {
		return Location{}, &PathViolationError{Path: requested}
	}

	loc := Location{Physical: physical, rel: rel, Logical: "/"}
	if rel != "." {
		loc.Logical = "/" + filepath.ToSlash(rel)
	}
	return loc, nil
}

func (r *Root) contains(p string) bool {
	rel, err := filepath.Rel(r.path, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// canonicalize resolves symlinks in the longest existing prefix of p and
// re-appends the missing tail.
func canonicalize(p string) (string, error) {
	var tail []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			slices.Reverse(tail)
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}

// Stat returns file information for loc.
func (r *Root) Stat(loc Location) (fs.FileInfo, error) {
	return r.handle.Stat(loc.rel)
}

// MakeDir creates the directory at loc. It fails if anything exists there.
func (r *Root) MakeDir(loc Location) error {
	return r.handle.Mkdir(loc.rel, 0o755)
}

// RemoveDir removes the empty directory at loc. The root itself cannot
// be removed.
func (r *Root) RemoveDir(loc Location) error {
	if loc.IsRoot() {
		return &PathViolationError{Path: loc.Logical}
	}
	info, err := r.handle.Stat(loc.rel)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", loc.Logical)
	}
	return r.handle.Remove(loc.rel)
}

// Open opens the regular file at loc for reading.
func (r *Root) Open(loc Location) (*os.File, error) {
	f, err := r.handle.Open(loc.rel)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s: is a directory", loc.Logical)
	}
	return f, nil
}

// Create creates or truncates the file at loc for writing.
func (r *Root) Create(loc Location) (*os.File, error) {
	return r.handle.OpenFile(loc.rel, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

// ReadDir returns the direct children of the directory at loc, sorted by
// name.
func (r *Root) ReadDir(loc Location) ([]fs.FileInfo, error) {
	f, err := r.handle.Open(loc.rel)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})

	infos := make([]fs.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err == nil {
			infos = append(infos, info)
		}
	}
	return infos, nil
}
