package model

import "github.com/oklog/ulid/v2"

// NewID returns a fresh ULID string. Job ids sort by creation time, which
// keeps queue listings and log lines chronological for free.
func NewID() string {
	return ulid.Make().String()
}
