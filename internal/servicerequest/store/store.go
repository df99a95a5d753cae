// Package store provides service request persistence behind a small
// interface: in-memory for tests and single-node runs, Postgres for
// multi-instance deployments.
package store

import "errors"

var (
	ErrNotFound = errors.New("service request not found")
)
