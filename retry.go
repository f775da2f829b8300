package ftp

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy bounds how often an operation is attempted. The delay between
// attempts is fixed.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration

	// Logger receives one warning per failed attempt. Nil means silent.
	Logger logrus.FieldLogger
}

// DefaultRetryPolicy returns three attempts half a second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       500 * time.Millisecond,
	}
}

// Do runs fn until it succeeds, returns a Permanent error, ctx is done, or
// the policy's attempt budget is spent. In the last case the result is a
// *RetryError wrapping the error of the final attempt.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err == nil {
				err = ctxErr
			}
			return &RetryError{Op: op, Attempts: attempt - 1, Err: err}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		if p.Logger != nil {
			p.Logger.WithFields(logrus.Fields{
				"op":      op,
				"attempt": attempt,
				"of":      attempts,
			}).WithError(err).Warn("attempt_failed")
		}

		if attempt < attempts && p.Delay > 0 {
			timer := time.NewTimer(p.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return &RetryError{Op: op, Attempts: attempt, Err: err}
			case <-timer.C:
			}
		}
	}

	return &RetryError{Op: op, Attempts: attempts, Err: err}
}
