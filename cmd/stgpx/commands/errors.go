package commands

import (
	"errors"
	"fmt"
)

const (
	ExitOK = iota
	// login failed, an export failed or something unexpected happened,
	// teardown has run by the time this is returned
	ExitFailure
	// invalid flags or configuration, nothing was started
	ExitUsage
	ExitNoBrowser
)

// ExitError carries the process exit code up to Execute.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: ExitUsage, Err: fmt.Errorf(format, args...)}
}

func failure(err error) error {
	return &ExitError{Code: ExitFailure, Err: err}
}

// exitCode maps an error returned by a command to a process exit code,
// errors cobra produces on its own are usage errors.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitUsage
}
