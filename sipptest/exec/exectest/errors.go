package exectest

import "errors"

// ErrNotFound mimics the error os/exec reports for a
// binary missing from PATH.
var ErrNotFound = errors.New(
	`exec: "fake": executable file not found in $PATH`,
)
