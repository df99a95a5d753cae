// Package domain holds the typed identifiers shared across components. Using
// distinct types for each ID keeps a UserID from ever standing in for a
// request or token ID at compile time.
package domain

import (
	"github.com/google/uuid"

	"geekship/pkg/domerrors"
)

// UserID is the authenticated caller identity supplied by the environment.
// The zero value is the sentinel "no user" (an SR's driver before a winning
// bid is committed).
type UserID uuid.UUID

// NilUserID is the sentinel zero identity.
var NilUserID = UserID(uuid.Nil)

func NewUserID() UserID { return UserID(uuid.New()) }

func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id UserID) String() string { return uuid.UUID(id).String() }

// ParseUserID validates and parses a caller-supplied identifier. Empty, nil,
// or malformed UUIDs fail with CodeInvalidInput.
func ParseUserID(s string) (UserID, error) {
	if s == "" {
		return NilUserID, domerrors.New(domerrors.CodeInvalidInput, "user id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return NilUserID, domerrors.Wrap(err, domerrors.CodeInvalidInput, "malformed user id")
	}
	if u == uuid.Nil {
		return NilUserID, domerrors.New(domerrors.CodeInvalidInput, "user id must not be the zero uuid")
	}
	return UserID(u), nil
}

// RequestID numbers service requests and role requests. Both sequences start
// at zero and are assigned by their owning component, never by callers.
type RequestID uint64

// TokenID numbers driving-license tokens.
type TokenID uint64
