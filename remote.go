package ftp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Remote runs single operations against a server, each on a fresh control
// connection and each under a RetryPolicy.
//
// Every attempt dials, logs in, performs one operation and quits; nothing
// survives from a failed attempt. Remote is safe for concurrent use since
// no two operations share a connection.
//
// Example:
//
//	remote := ftp.NewRemote("127.0.0.1:2121", "testuser", ftp.DefaultRetryPolicy(),
//	    ftp.WithTimeout(10*time.Second))
//	if err := remote.Upload(ctx, "report.txt", "/reports/report.txt"); err != nil {
//	    log.Fatal(err)
//	}
type Remote struct {
	addr    string
	user    string
	policy  RetryPolicy
	options []Option
	logger  logrus.FieldLogger
}

// NewRemote returns a Remote for addr. options are applied to every
// connection it opens.
func NewRemote(addr, user string, policy RetryPolicy, options ...Option) *Remote {
	logger := policy.Logger
	if logger == nil {
		logger = discardLogger()
	}
	return &Remote{
		addr:    addr,
		user:    user,
		policy:  policy,
		options: options,
		logger:  logger,
	}
}

// Addr returns the server address.
func (r *Remote) Addr() string {
	return r.addr
}

// withClient runs fn on a freshly dialed and logged-in client, retrying
// the whole unit according to the policy.
func (r *Remote) withClient(ctx context.Context, op string, fn func(*Client) error) error {
	return r.policy.Do(ctx, op, func(ctx context.Context) error {
		c, err := DialContext(ctx, r.addr, r.options...)
		if err != nil {
			return err
		}
		// Cancellation closes the connection, which unblocks any I/O.
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()

		if err := c.Login(r.user); err != nil {
			c.Close()
			return err
		}

		if err := fn(c); err != nil {
			c.Close()
			return err
		}
		return c.Quit()
	})
}

// Ping checks that the server is reachable and accepts the login.
func (r *Remote) Ping(ctx context.Context) error {
	return r.withClient(ctx, "ping", func(c *Client) error {
		return c.Noop()
	})
}

// MakeDir creates dir. A directory that already exists is not an error.
func (r *Remote) MakeDir(ctx context.Context, dir string) error {
	return r.withClient(ctx, "mkdir "+dir, func(c *Client) error {
		_, err := c.MakeDir(dir)
		var pe *ProtocolError
		if errors.As(err, &pe) && pe.Code == 550 {
			// 550 covers both "exists" and "missing parent"; only the
			// former leaves a directory we can enter.
			if c.ChangeDir(dir) == nil {
				return nil
			}
		}
		return err
	})
}

// List returns the entries of dir.
func (r *Remote) List(ctx context.Context, dir string) ([]*Entry, error) {
	var entries []*Entry
	err := r.withClient(ctx, "list "+dir, func(c *Client) error {
		var err error
		entries, err = c.List(dir)
		return err
	})
	return entries, err
}

// Upload stores localPath at remotePath. Failing to open the local file
// is not retried.
func (r *Remote) Upload(ctx context.Context, localPath, remotePath string) error {
	return r.withClient(ctx, "upload "+remotePath, func(c *Client) error {
		file, err := os.Open(localPath)
		if err != nil {
			return Permanent(fmt.Errorf("failed to open local file: %w", err))
		}
		defer file.Close()

		return c.Store(remotePath, file)
	})
}

// Download retrieves remotePath into localPath. The data lands in a
// temporary file next to localPath that replaces it only once the
// transfer has completed, so a failed attempt leaves the previous local
// copy untouched.
func (r *Remote) Download(ctx context.Context, remotePath, localPath string) error {
	return r.withClient(ctx, "download "+remotePath, func(c *Client) error {
		tmp, err := os.CreateTemp(filepath.Dir(localPath), "."+filepath.Base(localPath)+".part-*")
		if err != nil {
			return Permanent(fmt.Errorf("failed to create local file: %w", err))
		}
		defer os.Remove(tmp.Name())

		err = c.Retrieve(remotePath, tmp)
		if cerr := tmp.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		if err := os.Chmod(tmp.Name(), 0o644); err != nil {
			return Permanent(err)
		}
		return os.Rename(tmp.Name(), localPath)
	})
}
