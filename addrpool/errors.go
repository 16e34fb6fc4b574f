package addrpool

import "github.com/cockroachdb/errors"

// ErrExhausted indicates that a pool has no run of free super-pages large
// enough for the request.
var ErrExhausted = errors.New("addrpool: no free run large enough")
