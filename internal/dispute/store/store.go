// Package store persists disputes keyed by the contested order's request ID.
package store

import "errors"

var (
	ErrNotFound  = errors.New("dispute not found")
	ErrDuplicate = errors.New("dispute already exists")
)
