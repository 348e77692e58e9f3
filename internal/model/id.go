package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string for use as a task or worker-generation identifier.
func NewID() string {
	return ulid.Make().String()
}
