package core

import "github.com/oklog/ulid/v2"

// NewID returns a fresh record id.
func NewID() string {
	return ulid.Make().String()
}
