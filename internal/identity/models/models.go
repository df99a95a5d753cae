package models

import (
	"regexp"
	"strings"
	"time"

	"geekship/pkg/domain"
	"geekship/pkg/domerrors"
	"geekship/pkg/geohash"
)

// Role values are fixed; external callers exchange them by number.
type Role uint8

const (
	RoleNone Role = iota
	RoleAdmin
	RoleShipper
	RoleDriver
	RoleReceiver
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleAdmin:
		return "admin"
	case RoleShipper:
		return "shipper"
	case RoleDriver:
		return "driver"
	case RoleReceiver:
		return "receiver"
	}
	return "unknown"
}

// Requestable reports whether users may apply for the role. Admin is
// root-granted only; None is not a role.
func (r Role) Requestable() bool {
	return r == RoleShipper || r == RoleDriver || r == RoleReceiver
}

// User is the registry's aggregate root.
//
// Invariants:
//   - UID is immutable and unique
//   - Roles only ever grows (grants are idempotent, never revoked)
//   - RatingStars stays within [0, 5]
type User struct {
	UID            domain.UserID
	Name           string
	PhoneNumber    string
	ServiceGeoHash string
	Roles          map[Role]bool
	RatingStars    int
	CreatedAt      time.Time
}

// E.164 with ISO country prefix.
var phoneRe = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

const maxStars = 5

// NewUser validates and constructs a registry record. New users start with a
// full rating and no roles.
func NewUser(uid domain.UserID, name, geoHash, phone string, now time.Time) (*User, error) {
	name = strings.TrimSpace(name)
	if uid.IsNil() {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "user id is required")
	}
	if name == "" {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "name cannot be empty")
	}
	if !geohash.Valid(geoHash) {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "malformed service geohash")
	}
	if !phoneRe.MatchString(phone) {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "phone number must include an ISO country prefix")
	}
	return &User{
		UID:            uid,
		Name:           name,
		PhoneNumber:    phone,
		ServiceGeoHash: geoHash,
		Roles:          make(map[Role]bool),
		RatingStars:    maxStars,
		CreatedAt:      now,
	}, nil
}

func (u *User) HasRole(role Role) bool {
	return u.Roles[role]
}

// Grant adds a role idempotently.
func (u *User) Grant(role Role) {
	if u.Roles == nil {
		u.Roles = make(map[Role]bool)
	}
	u.Roles[role] = true
}

// DeductStar lowers the rating by one, floor zero.
func (u *User) DeductStar() {
	if u.RatingStars > 0 {
		u.RatingStars--
	}
}

type RequestStatus uint8

const (
	RequestPending RequestStatus = iota
	RequestApproved
	RequestRejected
)

func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestApproved:
		return "approved"
	case RequestRejected:
		return "rejected"
	}
	return "unknown"
}

// RoleRequest moves Pending -> Approved|Rejected exactly once and is
// immutable afterward.
type RoleRequest struct {
	ID           domain.RequestID
	ApplicantUID domain.UserID
	Role         Role
	Status       RequestStatus
	ApproverUID  domain.UserID
	CreatedAt    time.Time
	ResolvedAt   time.Time
}

// Resolve records the single permitted transition.
func (r *RoleRequest) Resolve(approver domain.UserID, approve bool, now time.Time) error {
	if r.Status != RequestPending {
		return domerrors.New(domerrors.CodeWrongState, "role request is already resolved")
	}
	if approve {
		r.Status = RequestApproved
	} else {
		r.Status = RequestRejected
	}
	r.ApproverUID = approver
	r.ResolvedAt = now
	return nil
}
