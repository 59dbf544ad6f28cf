package ports

import "errors"

// ErrConflict is returned by repositories when a write hits a uniqueness guarantee,
// e.g. a second active payment for the same order.
var ErrConflict = errors.New("conflicting row already exists")
