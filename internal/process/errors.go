package process

import (
	"errors"
	"fmt"
)

// LaunchError reports that a service's executable could not be started
// (missing binary, permission denied, bad working directory).
type LaunchError struct {
	Name string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Name, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// IsLaunchErr reports whether err is (or wraps) a LaunchError.
func IsLaunchErr(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}
