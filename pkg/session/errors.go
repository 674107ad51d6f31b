package session

import (
	"errors"
	"fmt"

	"github.com/unisoc-tools/bfltool/pkg/bslproto"
)

// BootError reports a failure at a named step of the bootstrap state
// machine, carrying the underlying cause for inspection.
type BootError struct {
	Step  string
	Cause error
}

func (e *BootError) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Step, e.Cause)
}

func (e *BootError) Unwrap() error { return e.Cause }

// ClassifyBootError reports whether err is a *BootError, and if so at which
// step and whether the underlying cause was an unexpected response code
// rather than a transport failure.
func ClassifyBootError(err error) (step string, isResponseError bool, ok bool) {
	var be *BootError
	if !errors.As(err, &be) {
		return "", false, false
	}
	return be.Step, bslproto.IsUnexpectedResponse(be.Cause), true
}
