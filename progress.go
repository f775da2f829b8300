package ftp

import (
	"context"
	"io"

	"github.com/ventus/ftp/internal/ratelimit"
)

// ProgressFunc receives the remote path of a transfer and the bytes moved
// so far. A retried transfer starts again from zero.
type ProgressFunc func(remotePath string, transferred int64)

// WithProgress reports STOR and RETR progress to fn, which runs on the
// transferring goroutine.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Client) error {
		c.progress = fn
		return nil
	}
}

type countingReader struct {
	r     io.Reader
	path  string
	total int64
	fn    ProgressFunc
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.total += int64(n)
		cr.fn(cr.path, cr.total)
	}
	return n, err
}

// meter applies the bandwidth limit and progress reporting to the source
// side of a transfer.
func (c *Client) meter(r io.Reader, remotePath string) io.Reader {
	r = ratelimit.NewReader(context.Background(), r, c.limiter)
	if c.progress == nil {
		return r
	}
	return &countingReader{r: r, path: remotePath, fn: c.progress}
}
