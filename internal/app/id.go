package app

import "github.com/google/uuid"

// newID produces an external identifier. Isolated here so the ID
// strategy can evolve independently.
func newID() string {
	return uuid.NewString()
}

// validID reports whether s is a well-formed external identifier.
func validID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
