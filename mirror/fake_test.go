package mirror

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ventus/ftp"
)

// fakeRemote is an in-memory remote tree.
type fakeRemote struct {
	mu    sync.Mutex
	dirs  map[string]bool
	files map[string][]byte

	uploads   []string
	downloads []string
	makeDirs  []string

	failUpload map[string]error
	failList   map[string]error

	delay       time.Duration
	inFlight    int
	maxInFlight int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		dirs:       map[string]bool{"/": true},
		files:      make(map[string][]byte),
		failUpload: make(map[string]error),
		failList:   make(map[string]error),
	}
}

func (f *fakeRemote) MakeDir(_ context.Context, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.makeDirs = append(f.makeDirs, dir)
	if _, ok := f.files[dir]; ok {
		return fmt.Errorf("%s is a file", dir)
	}
	if !f.dirs[path.Dir(dir)] {
		return fmt.Errorf("parent of %s missing", dir)
	}
	f.dirs[dir] = true
	return nil
}

func (f *fakeRemote) List(_ context.Context, dir string) ([]*ftp.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failList[dir]; err != nil {
		return nil, err
	}
	if !f.dirs[dir] {
		return nil, &ftp.ProtocolError{Command: "LIST", Response: "Not a directory.", Code: 501}
	}
	var entries []*ftp.Entry
	for d := range f.dirs {
		if d != "/" && path.Dir(d) == dir {
			entries = append(entries, &ftp.Entry{Name: path.Base(d), Type: ftp.EntryTypeDir, Size: 4096})
		}
	}
	for p, data := range f.files {
		if path.Dir(p) == dir {
			entries = append(entries, &ftp.Entry{Name: path.Base(p), Type: ftp.EntryTypeFile, Size: int64(len(data))})
		}
	}
	return entries, nil
}

func (f *fakeRemote) Upload(_ context.Context, localPath, remotePath string) error {
	f.mu.Lock()
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	delay := f.delay
	f.mu.Unlock()

	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--

	if err := f.failUpload[remotePath]; err != nil {
		return err
	}
	if !f.dirs[path.Dir(remotePath)] {
		return fmt.Errorf("parent of %s missing", remotePath)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return ftp.Permanent(err)
	}
	f.files[remotePath] = data
	f.uploads = append(f.uploads, remotePath)
	return nil
}

func (f *fakeRemote) Download(_ context.Context, remotePath, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[remotePath]
	if !ok {
		return fmt.Errorf("%s not found", remotePath)
	}
	f.downloads = append(f.downloads, remotePath)
	return os.WriteFile(localPath, data, 0o644)
}

func (f *fakeRemote) put(p string, data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for d := path.Dir(p); d != "/"; d = path.Dir(d) {
		f.dirs[d] = true
	}
	f.files[p] = []byte(data)
}

func (f *fakeRemote) file(p string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[p]
	return string(data), ok
}

func (f *fakeRemote) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Sorted(slices.Values(f.uploads))
}

func (f *fakeRemote) fileNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Sorted(maps.Keys(f.files))
}

func (f *fakeRemote) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads, f.downloads, f.makeDirs = nil, nil, nil
}

func writeLocal(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readLocalFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}
