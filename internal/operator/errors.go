package operator

import (
	"errors"
	"fmt"
)

// FatalError ends the operator run. The process is expected to exit with a
// non-zero code so that a standby replica can take over leadership.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err or any error it wraps is a *FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

func fatalf(err error, format string, args ...interface{}) *FatalError {
	return &FatalError{Reason: fmt.Sprintf(format, args...), Err: err}
}
