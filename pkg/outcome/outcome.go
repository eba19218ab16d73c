// Package outcome holds the run-terminating errors surfaced by a sync run.
// Their messages are the stable signal strings reported to the caller.
package outcome

import "errors"

var (
	// ErrLoginFailed means the portal rejected the credentials.
	ErrLoginFailed = errors.New("LOGIN_FAILED")
	// ErrVendorDown means the portal answered with a 5xx or could not be reached.
	ErrVendorDown = errors.New("VENDOR_DOWN")
	// ErrUserActionNeeded means the portal landed on a page we do not know.
	ErrUserActionNeeded = errors.New("USER_ACTION_NEEDED")
)

// Exit codes for the CLI.
const (
	ExitOK               = 0
	ExitError            = 1
	ExitLoginFailed      = 2
	ExitVendorDown       = 3
	ExitUserActionNeeded = 4
)

// ExitCode maps an error returned by a run to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrLoginFailed):
		return ExitLoginFailed
	case errors.Is(err, ErrVendorDown):
		return ExitVendorDown
	case errors.Is(err, ErrUserActionNeeded):
		return ExitUserActionNeeded
	default:
		return ExitError
	}
}

// Signal returns the stable signal string for err, or "" for unclassified errors.
func Signal(err error) string {
	for _, s := range []error{ErrLoginFailed, ErrVendorDown, ErrUserActionNeeded} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return ""
}
