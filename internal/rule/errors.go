package rule

import "errors"

// Sentinel errors surfaced on the mailbox RPC. Wrap with
// fmt.Errorf("...: %w", ErrX) for context; callers should use errors.Is.
var (
	// ErrBadJSON covers structural parse failures, missing required
	// fields, and non-numeric threshold values.
	ErrBadJSON = errors.New("BAD_JSON")
	// ErrBadLua covers script compile failure or a missing "main".
	ErrBadLua = errors.New("BAD_LUA")
	// ErrAlreadyExists is returned by Add/Update on a name collision.
	ErrAlreadyExists = errors.New("ALREADY_EXISTS")
	// ErrNotFound is returned by Update/Get when the named rule is absent.
	ErrNotFound = errors.New("NOT_FOUND")
	// ErrNoMatch is returned by Delete/DeleteByElement when nothing matched.
	ErrNoMatch = errors.New("NO_MATCH")
	// ErrInvalidType is returned by List for an unrecognized kind filter.
	ErrInvalidType = errors.New("INVALID_TYPE")
)
