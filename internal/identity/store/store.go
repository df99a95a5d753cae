// Package store defines the registry's persistence boundary and sentinel
// errors shared by its implementations.
package store

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)
