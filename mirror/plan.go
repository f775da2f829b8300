package mirror

import (
	"fmt"
	"os"
	"path"
	"slices"

	"github.com/ventus/ftp"
)

// Action is what a sync pass does with one entry.
type Action int

const (
	ActionSkip Action = iota
	ActionUpload
	ActionDownload
	ActionMkdirLocal
	ActionMkdirRemote
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionUpload:
		return "upload"
	case ActionDownload:
		return "download"
	case ActionMkdirLocal:
		return "mkdir-local"
	case ActionMkdirRemote:
		return "mkdir-remote"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Meta describes one side of an entry. Special marks a local entry that
// exists but is never mirrored: a symlink, device, socket or pipe.
type Meta struct {
	Dir     bool
	Size    int64
	Special bool
}

// Item is one planned step. Local or Remote is nil when the entry is
// absent on that side.
type Item struct {
	Path   string
	Local  *Meta
	Remote *Meta
	Action Action
}

// Conflict reports whether the entry is a file on one side and a directory
// on the other.
func (it Item) Conflict() bool {
	return it.Local != nil && it.Remote != nil && !it.Local.Special && it.Local.Dir != it.Remote.Dir
}

// Unmirrored reports whether the local side is a special entry. Such an
// entry is skipped in both phases, whatever the remote side holds.
func (it Item) Unmirrored() bool {
	return it.Local != nil && it.Local.Special
}

// planPush plans phase one for the directory dir: every local entry is
// compared against its remote counterpart. Entries that exist only
// remotely are left for planPull.
func planPush(dir string, local, remote map[string]Meta) []Item {
	items := make([]Item, 0, len(local))
	for _, name := range sortedNames(local) {
		it := newItem(dir, name, local, remote)
		switch {
		case it.Unmirrored(), it.Conflict():
			it.Action = ActionSkip
		case it.Local.Dir && it.Remote == nil:
			it.Action = ActionMkdirRemote
		case it.Local.Dir:
			it.Action = ActionSkip
		case it.Remote == nil || it.Remote.Size != it.Local.Size:
			it.Action = ActionUpload
		}
		items = append(items, it)
	}
	return items
}

// planPull plans phase two for the directory dir: every remote entry is
// compared against its local counterpart.
func planPull(dir string, local, remote map[string]Meta) []Item {
	items := make([]Item, 0, len(remote))
	for _, name := range sortedNames(remote) {
		it := newItem(dir, name, local, remote)
		switch {
		case it.Unmirrored(), it.Conflict():
			it.Action = ActionSkip
		case it.Remote.Dir && it.Local == nil:
			it.Action = ActionMkdirLocal
		case it.Remote.Dir:
			it.Action = ActionSkip
		case it.Local == nil || it.Local.Size != it.Remote.Size:
			it.Action = ActionDownload
		}
		items = append(items, it)
	}
	return items
}

func newItem(dir, name string, local, remote map[string]Meta) Item {
	it := Item{Path: path.Join(dir, name)}
	if m, ok := local[name]; ok {
		it.Local = &m
	}
	if m, ok := remote[name]; ok {
		it.Remote = &m
	}
	return it
}

func sortedNames(m map[string]Meta) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// readLocal lists the entries directly inside dir. Symlinks and other
// special files are listed as Special so that neither phase writes
// through them.
func readLocal(dir string) (map[string]Meta, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	metas := make(map[string]Meta, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// Removed since ReadDir.
			continue
		}
		switch {
		case info.IsDir():
			metas[entry.Name()] = Meta{Dir: true}
		case info.Mode().IsRegular():
			metas[entry.Name()] = Meta{Size: info.Size()}
		default:
			metas[entry.Name()] = Meta{Special: true}
		}
	}
	return metas, nil
}

func remoteMetas(entries []*ftp.Entry) map[string]Meta {
	metas := make(map[string]Meta, len(entries))
	for _, entry := range entries {
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		m := Meta{Dir: entry.IsDir()}
		if !m.Dir {
			m.Size = entry.Size
		}
		metas[entry.Name] = m
	}
	return metas
}
