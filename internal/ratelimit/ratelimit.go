// Package ratelimit throttles data channel transfers to a fixed number of
// bytes per second.
//
// It is shared by the server (per-server limit on every data connection)
// and the client (per-client limit on uploads and downloads).
package ratelimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxChunk bounds a single token request so that one large Read or Write
// never asks the bucket for more than its burst.
const maxChunk = 32 * 1024

// Limiter is a byte-rate token bucket. A nil *Limiter means "unlimited"
// and is accepted everywhere a *Limiter is.
type Limiter struct {
	bucket *rate.Limiter
	burst  int
}

// New creates a limiter allowing bytesPerSecond bytes per second, with a
// burst of one second worth of data (capped at 32 KiB per request).
// It returns nil for bytesPerSecond <= 0.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := int(bytesPerSecond)
	if bytesPerSecond > maxChunk {
		burst = maxChunk
	}
	return &Limiter{
		bucket: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		burst:  burst,
	}
}

// Limit returns the configured rate in bytes per second, or 0 for a nil
// limiter.
func (l *Limiter) Limit() int64 {
	if l == nil {
		return 0
	}
	return int64(l.bucket.Limit())
}

// wait blocks until n bytes worth of tokens are available.
func (l *Limiter) wait(ctx context.Context, n int) error {
	for n > 0 {
		chunk := min(n, l.burst)
		if err := l.bucket.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

type reader struct {
	ctx     context.Context
	r       io.Reader
	limiter *Limiter
}

// NewReader wraps r so that reads are paced by limiter. A nil limiter
// returns r unchanged.
func NewReader(ctx context.Context, r io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &reader{ctx: ctx, r: r, limiter: limiter}
}

func (r *reader) Read(p []byte) (int, error) {
	if len(p) > r.limiter.burst {
		p = p[:r.limiter.burst]
	}
	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.limiter.wait(r.ctx, n); werr != nil && err == nil {
			err = werr
		}
	}
	return n, err
}

type writer struct {
	ctx     context.Context
	w       io.Writer
	limiter *Limiter
}

// NewWriter wraps w so that writes are paced by limiter. A nil limiter
// returns w unchanged.
func NewWriter(ctx context.Context, w io.Writer, limiter *Limiter) io.Writer {
	if limiter == nil {
		return w
	}
	return &writer{ctx: ctx, w: w, limiter: limiter}
}

func (w *writer) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		chunk := min(len(p)-written, w.limiter.burst)
		if err := w.limiter.wait(w.ctx, chunk); err != nil {
			return written, err
		}
		n, err := w.w.Write(p[written : written+chunk])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
