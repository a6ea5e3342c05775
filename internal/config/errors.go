package config

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a service name is already taken.
	ErrAlreadyExists = errors.New("already exists")
)

// isUniqueViolation reports whether err comes from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
