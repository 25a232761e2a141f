package util

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string identifying one submission.
func NewID() string {
	return uuid.NewString()
}
