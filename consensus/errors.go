package consensus

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRunning = errors.New("engine already running")
	ErrNotRunning     = errors.New("engine is not running")
)

// unrecoverable errors indicate that the consensus engine
// is in a state that is not recoverable. The engine logs the
// error and shuts down.
type errUnrecoverable struct {
	err error
}

// Unrecoverable marks err as fatal to the engine
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return errUnrecoverable{
		err: err,
	}
}

// IsUnrecoverable reports whether any error in err's chain was marked as unrecoverable
func IsUnrecoverable(err error) bool {
	var target errUnrecoverable
	return errors.As(err, &target)
}

func (e errUnrecoverable) Error() string {
	return fmt.Sprintf("unrecoverable error: %v", e.err)
}

func (e errUnrecoverable) Unwrap() error {
	return e.err
}
