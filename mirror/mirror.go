package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ventus/ftp"
)

// Remote is the set of protocol operations the engine needs. *ftp.Remote
// implements it; each call is expected to be retried and isolated on its
// own connection, so the engine may issue calls concurrently.
type Remote interface {
	MakeDir(ctx context.Context, dir string) error
	List(ctx context.Context, dir string) ([]*ftp.Entry, error)
	Upload(ctx context.Context, localPath, remotePath string) error
	Download(ctx context.Context, remotePath, localPath string) error
}

var _ Remote = (*ftp.Remote)(nil)

// DefaultDebounce is how long Watch waits for a path to go quiet before
// syncing it.
const DefaultDebounce = 2 * time.Second

// Engine mirrors a local directory tree against a remote one.
type Engine struct {
	remote     Remote
	localRoot  string
	remoteRoot string

	logger      logrus.FieldLogger
	concurrency int
	debounce    time.Duration
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine) error

// WithLogger sets the logger for per-entry events.
// By default nothing is logged.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		e.logger = logger
		return nil
	}
}

// WithConcurrency sets how many file transfers within one directory may
// run at the same time. Defaults to 1.
func WithConcurrency(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			return fmt.Errorf("concurrency must be at least 1")
		}
		e.concurrency = n
		return nil
	}
}

// WithDebounce sets the quiet period used by Watch and WatchLocal.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) error {
		if d < 0 {
			return fmt.Errorf("debounce cannot be negative")
		}
		e.debounce = d
		return nil
	}
}

// New returns an engine that mirrors localRoot against remoteRoot.
// localRoot must be an existing directory; remoteRoot is a logical path on
// the server and is created on the first Sync if needed.
func New(remote Remote, localRoot, remoteRoot string, options ...Option) (*Engine, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote cannot be nil")
	}

	abs, err := filepath.Abs(localRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve local root: %w", err)
	}
	// Watch events carry canonical paths.
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve local root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local root %s is not a directory", abs)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	e := &Engine{
		remote:      remote,
		localRoot:   abs,
		remoteRoot:  path.Clean("/" + remoteRoot),
		logger:      logger,
		concurrency: 1,
		debounce:    DefaultDebounce,
	}

	for _, opt := range options {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// LocalRoot returns the canonical local root directory.
func (e *Engine) LocalRoot() string {
	return e.localRoot
}

// RemoteRoot returns the remote root directory.
func (e *Engine) RemoteRoot() string {
	return e.remoteRoot
}

// localPath maps a slash-separated relative path to the local tree.
func (e *Engine) localPath(rel string) string {
	return filepath.Join(e.localRoot, filepath.FromSlash(rel))
}

// remotePath maps a slash-separated relative path to the remote tree.
func (e *Engine) remotePath(rel string) string {
	return path.Join(e.remoteRoot, rel)
}
