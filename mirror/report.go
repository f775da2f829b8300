package mirror

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// ErrTypeConflict is reported for an entry that is a file on one side and
// a directory on the other. Such entries are left alone.
var ErrTypeConflict = errors.New("mirror: file and directory conflict")

// ErrNotMirrored is reported for a local symlink or special file. It is
// never uploaded, and nothing is downloaded over it.
var ErrNotMirrored = errors.New("mirror: not a regular file or directory")

// EntryError is one per-entry failure of a sync pass.
type EntryError struct {
	Op   string // an Action name, "list", "read" or "compare"
	Path string // relative to the roots, slash-separated
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// Report summarises one sync pass.
//
// Skipped counts files that were already in sync, once per phase that
// looked at them. Err is nil when every entry succeeded; otherwise it is a
// *multierror.Error of *EntryError values.
type Report struct {
	Uploaded          int
	Downloaded        int
	Skipped           int
	RemoteDirsCreated int
	LocalDirsCreated  int
	Err               error
}

// Failures returns the per-entry failures of the pass.
func (r *Report) Failures() []*EntryError {
	var merr *multierror.Error
	if !errors.As(r.Err, &merr) {
		return nil
	}
	out := make([]*EntryError, 0, len(merr.Errors))
	for _, err := range merr.Errors {
		var ee *EntryError
		if errors.As(err, &ee) {
			out = append(out, ee)
		}
	}
	return out
}

// tally collects a Report from concurrent transfers.
type tally struct {
	mu            sync.Mutex
	report        Report
	errs          *multierror.Error
	failedUploads map[string]struct{}
}

func newTally() *tally {
	return &tally{failedUploads: make(map[string]struct{})}
}

func (t *tally) count(action Action) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch action {
	case ActionUpload:
		t.report.Uploaded++
	case ActionDownload:
		t.report.Downloaded++
	case ActionSkip:
		t.report.Skipped++
	case ActionMkdirRemote:
		t.report.RemoteDirsCreated++
	case ActionMkdirLocal:
		t.report.LocalDirsCreated++
	}
}

func (t *tally) fail(op, rel string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if op == ActionUpload.String() {
		t.failedUploads[rel] = struct{}{}
	}
	t.errs = multierror.Append(t.errs, &EntryError{Op: op, Path: rel, Err: err})
}

// uploadFailed reports whether phase one failed to push rel.
func (t *tally) uploadFailed(rel string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.failedUploads[rel]
	return ok
}

func (t *tally) result() *Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.report
	r.Err = t.errs.ErrorOrNil()
	return &r
}
