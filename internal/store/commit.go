package store

import "errors"

// CommitError asks a unit of work to commit its changes and then report Err.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string { return e.Err.Error() }

func (e *CommitError) Unwrap() error { return e.Err }

// CommitWith wraps err so that WithinTx keeps the mutations made so far.
// Used for failures that must persist state, such as OTP attempt counters.
func CommitWith(err error) error {
	if err == nil {
		return nil
	}
	return &CommitError{Err: err}
}

// SplitCommit returns the error carried by a CommitError and whether err was one.
func SplitCommit(err error) (error, bool) {
	var ce *CommitError
	if errors.As(err, &ce) {
		return ce.Err, true
	}
	return err, false
}
