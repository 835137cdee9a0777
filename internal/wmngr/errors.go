package wmngr

import errw "github.com/pkg/errors"

// Typed error kinds (§7). Compared with errors.Is by callers.
var (
	ErrTimeout      = errw.New("wmngr: timed out")
	ErrInvalidState = errw.New("wmngr: invalid state")
	ErrNotFound     = errw.New("wmngr: not found")
	ErrIOError      = errw.New("wmngr: io error")
	ErrInvalidArg   = errw.New("wmngr: invalid argument")
)
