package mirror

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventus/ftp"
)

func actions(items []Item) map[string]Action {
	m := make(map[string]Action, len(items))
	for _, it := range items {
		m[it.Path] = it.Action
	}
	return m
}

func TestPlanPush(t *testing.T) {
	t.Parallel()
	local := map[string]Meta{
		"new.txt":   {Size: 3},
		"same.txt":  {Size: 5},
		"grown.txt": {Size: 9},
		"empty.txt": {Size: 0},
		"newdir":    {Dir: true},
		"olddir":    {Dir: true},
		"clash":     {Dir: true},
	}
	remote := map[string]Meta{
		"same.txt":    {Size: 5},
		"grown.txt":   {Size: 4},
		"olddir":      {Dir: true},
		"clash":       {Size: 1},
		"remote-only": {Size: 7},
	}

	items := planPush("sub", local, remote)
	assert.Equal(t, map[string]Action{
		"sub/new.txt":   ActionUpload,
		"sub/same.txt":  ActionSkip,
		"sub/grown.txt": ActionUpload,
		"sub/empty.txt": ActionUpload,
		"sub/newdir":    ActionMkdirRemote,
		"sub/olddir":    ActionSkip,
		"sub/clash":     ActionSkip,
	}, actions(items))

	// Sorted by name, remote-only entries left out.
	require.Len(t, items, 7)
	assert.Equal(t, "sub/clash", items[0].Path)
	assert.True(t, items[0].Conflict())
	assert.Nil(t, items[3].Remote, items[3].Path)
}

func TestPlanPull(t *testing.T) {
	t.Parallel()
	local := map[string]Meta{
		"same.txt":   {Size: 5},
		"short.txt":  {Size: 1},
		"olddir":     {Dir: true},
		"local-only": {Size: 2},
	}
	remote := map[string]Meta{
		"same.txt":  {Size: 5},
		"short.txt": {Size: 10},
		"new.txt":   {Size: 0},
		"olddir":    {Dir: true},
		"newdir":    {Dir: true},
	}

	assert.Equal(t, map[string]Action{
		"same.txt":  ActionSkip,
		"short.txt": ActionDownload,
		"new.txt":   ActionDownload,
		"olddir":    ActionSkip,
		"newdir":    ActionMkdirLocal,
	}, actions(planPull("", local, remote)))
}

func TestActionString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "upload", ActionUpload.String())
	assert.Equal(t, "mkdir-local", ActionMkdirLocal.String())
	assert.Equal(t, "Action(42)", Action(42).String())
}

func TestRemoteMetas(t *testing.T) {
	t.Parallel()
	metas := remoteMetas([]*ftp.Entry{
		{Name: "a.txt", Type: ftp.EntryTypeFile, Size: 42},
		{Name: "b", Type: ftp.EntryTypeDir, Size: 4096},
		{Name: ".", Type: ftp.EntryTypeDir},
	})
	assert.Equal(t, map[string]Meta{
		"a.txt": {Size: 42},
		"b":     {Dir: true},
	}, metas)
}

func TestReadLocal_MarksSymlinksSpecial(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeLocal(t, dir, "f.txt", "hello")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(dir, "f.txt"), filepath.Join(dir, "link")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "d"), filepath.Join(dir, "dirlink")))

	metas, err := readLocal(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]Meta{
		"f.txt":   {Size: 5},
		"d":       {Dir: true},
		"link":    {Special: true},
		"dirlink": {Special: true},
	}, metas)

	_, err = readLocal(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestPlan_SpecialEntriesAreSkipped(t *testing.T) {
	t.Parallel()
	local := map[string]Meta{
		"link.txt": {Special: true},
		"linkdir":  {Special: true},
		"orphan":   {Special: true},
	}
	remote := map[string]Meta{
		"link.txt": {Size: 14},
		"linkdir":  {Dir: true},
	}

	push := planPush("", local, remote)
	assert.Equal(t, map[string]Action{
		"link.txt": ActionSkip,
		"linkdir":  ActionSkip,
		"orphan":   ActionSkip,
	}, actions(push))

	pull := planPull("", local, remote)
	assert.Equal(t, map[string]Action{
		"link.txt": ActionSkip,
		"linkdir":  ActionSkip,
	}, actions(pull))
	for _, it := range pull {
		assert.True(t, it.Unmirrored(), it.Path)
		assert.False(t, it.Conflict(), it.Path)
	}
}

func TestRemoteAncestors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		root, target string
		want         []string
	}{
		{"/", "/a.txt", nil},
		{"/", "/x/y/a.txt", []string{"/x", "/x/y"}},
		{"/backup", "/backup/a.txt", []string{"/backup"}},
		{"/backup", "/backup/x/a.txt", []string{"/backup", "/backup/x"}},
		{"/srv/backup", "/srv/backup/x/a.txt", []string{"/srv/backup", "/srv/backup/x"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, remoteAncestors(tt.root, tt.target), tt.target)
	}
}
