// Package service implements the Identity & Role Registry: user records, the
// role-request approval workflow, and the region predicate reads the other
// components gate on.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"geekship/internal/identity/models"
	"geekship/internal/identity/store"
	"geekship/internal/platform/metrics"
	"geekship/pkg/audit"
	"geekship/pkg/domain"
	"geekship/pkg/domerrors"
)

type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUser(ctx context.Context, uid domain.UserID) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	CreateRoleRequest(ctx context.Context, req *models.RoleRequest) (domain.RequestID, error)
	FindRoleRequest(ctx context.Context, id domain.RequestID) (*models.RoleRequest, error)
	UpdateRoleRequest(ctx context.Context, req *models.RoleRequest) error
	HasPendingRoleRequest(ctx context.Context, uid domain.UserID, role models.Role) (bool, error)
	ListRoleRequests(ctx context.Context) ([]*models.RoleRequest, error)
}

// LicenseValidator is the Credential Gate's eligibility predicate. Driver
// role applications are refused without a valid license.
type LicenseValidator interface {
	Validate(ctx context.Context, uid domain.UserID) (bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates registry operations.
type Service struct {
	store    Store
	licenses LicenseValidator
	logger   *slog.Logger
	auditPub AuditPublisher
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(pub AuditPublisher) Option {
	return func(s *Service) { s.auditPub = pub }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock injects time for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st Store, licenses LicenseValidator, opts ...Option) *Service {
	s := &Service{
		store:    st,
		licenses: licenses,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUser registers the caller. The UID is the authenticated identity, so
// re-registration is a duplicate, not an update.
func (s *Service) CreateUser(ctx context.Context, caller domain.UserID, name, geoHash, phone string) (*models.User, error) {
	user, err := models.NewUser(caller, name, geoHash, phone, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, domerrors.New(domerrors.CodeDuplicate, "user is already registered")
		}
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to create user")
	}
	s.emit(ctx, audit.Event{Actor: caller, Action: string(audit.EventUserCreated), Subject: geoHash})
	s.metrics.IncUsersCreated()
	return user, nil
}

// RegisterIfAbsent creates a minimal record when none exists. Used by the
// Service Request Engine to auto-register receivers; idempotent by
// existence check.
func (s *Service) RegisterIfAbsent(ctx context.Context, uid domain.UserID, name, geoHash, phone string) (*models.User, error) {
	existing, err := s.store.FindUser(ctx, uid)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to look up user")
	}
	return s.CreateUser(ctx, uid, name, geoHash, phone)
}

// CreateRoleRequest opens a Pending request for a requestable role.
func (s *Service) CreateRoleRequest(ctx context.Context, caller domain.UserID, role models.Role) (*models.RoleRequest, error) {
	if !role.Requestable() {
		return nil, domerrors.Newf(domerrors.CodeInvalidInput, "role %s cannot be requested", role)
	}
	if _, err := s.getUser(ctx, caller); err != nil {
		return nil, err
	}
	if role == models.RoleDriver {
		valid, err := s.licenses.Validate(ctx, caller)
		if err != nil {
			return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to validate driving license")
		}
		if !valid {
			return nil, domerrors.New(domerrors.CodeUnauthorized, "driver role requires a valid driving license")
		}
	}
	pending, err := s.store.HasPendingRoleRequest(ctx, caller, role)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to check pending requests")
	}
	if pending {
		return nil, domerrors.Newf(domerrors.CodeDuplicate, "an unresolved request for role %s already exists", role)
	}

	req := &models.RoleRequest{
		ApplicantUID: caller,
		Role:         role,
		Status:       models.RequestPending,
		CreatedAt:    s.now(),
	}
	if _, err := s.store.CreateRoleRequest(ctx, req); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, domerrors.Newf(domerrors.CodeDuplicate, "an unresolved request for role %s already exists", role)
		}
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to create role request")
	}
	s.emit(ctx, audit.Event{Actor: caller, Action: string(audit.EventRoleRequested), Detail: role.String()})
	return req, nil
}

// ApproveOrRejectRoleRequest resolves a Pending request exactly once. The
// approver must be an Admin or a non-applicant holder of the requested role;
// community approval lets regional peers vouch for each other without a
// central gatekeeper.
func (s *Service) ApproveOrRejectRoleRequest(ctx context.Context, caller domain.UserID, requestID domain.RequestID, approve bool) (*models.RoleRequest, error) {
	req, err := s.store.FindRoleRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domerrors.New(domerrors.CodeNotFound, "role request not found")
		}
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to load role request")
	}
	if req.ApplicantUID == caller {
		return nil, domerrors.New(domerrors.CodeSelfApproval, "applicants may not resolve their own role request")
	}
	approver, err := s.getUser(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !approver.HasRole(models.RoleAdmin) && !approver.HasRole(req.Role) {
		return nil, domerrors.Newf(domerrors.CodeUnauthorized, "approver must be admin or hold the %s role", req.Role)
	}
	if err := req.Resolve(caller, approve, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateRoleRequest(ctx, req); err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to update role request")
	}

	if approve {
		applicant, err := s.getUser(ctx, req.ApplicantUID)
		if err != nil {
			return nil, err
		}
		applicant.Grant(req.Role)
		if err := s.store.UpdateUser(ctx, applicant); err != nil {
			return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to grant role")
		}
		s.metrics.IncRolesGranted()
	}
	s.emit(ctx, audit.Event{
		Actor:   caller,
		Action:  string(audit.EventRoleRequestResolved),
		Subject: req.ApplicantUID.String(),
		Detail:  req.Status.String(),
	})
	return req, nil
}

// HasRole is a pure read used by the other components' capability checks.
func (s *Service) HasRole(ctx context.Context, uid domain.UserID, role models.Role) (bool, error) {
	user, err := s.store.FindUser(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, domerrors.Wrap(err, domerrors.CodeInternal, "failed to load user")
	}
	return user.HasRole(role), nil
}

func (s *Service) GetUserInfo(ctx context.Context, uid domain.UserID) (*models.User, error) {
	return s.getUser(ctx, uid)
}

func (s *Service) GetUserGeoHash(ctx context.Context, uid domain.UserID) (string, error) {
	user, err := s.getUser(ctx, uid)
	if err != nil {
		return "", err
	}
	return user.ServiceGeoHash, nil
}

func (s *Service) ListRoleRequests(ctx context.Context, caller domain.UserID) ([]*models.RoleRequest, error) {
	if _, err := s.getUser(ctx, caller); err != nil {
		return nil, err
	}
	reqs, err := s.store.ListRoleRequests(ctx)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to list role requests")
	}
	return reqs, nil
}

// DeductStars lowers a user's rating by one star. Wired only to the dispute
// component; there is no public route to it.
func (s *Service) DeductStars(ctx context.Context, uid domain.UserID) error {
	user, err := s.getUser(ctx, uid)
	if err != nil {
		return err
	}
	user.DeductStar()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return domerrors.Wrap(err, domerrors.CodeInternal, "failed to update rating")
	}
	s.emit(ctx, audit.Event{Action: string(audit.EventStarsDeducted), Subject: uid.String()})
	return nil
}

// SeedRootAdmin ensures a deployment has at least one Admin so role requests
// can be resolved on a fresh registry.
func (s *Service) SeedRootAdmin(ctx context.Context, uid domain.UserID, name, geoHash, phone string) error {
	user, err := s.RegisterIfAbsent(ctx, uid, name, geoHash, phone)
	if err != nil {
		return err
	}
	if user.HasRole(models.RoleAdmin) {
		return nil
	}
	user.Grant(models.RoleAdmin)
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return domerrors.Wrap(err, domerrors.CodeInternal, "failed to seed root admin")
	}
	s.logger.InfoContext(ctx, "seeded root admin", "uid", uid)
	return nil
}

func (s *Service) getUser(ctx context.Context, uid domain.UserID) (*models.User, error) {
	user, err := s.store.FindUser(ctx, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domerrors.New(domerrors.CodeNotFound, "user is not registered")
		}
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPub == nil {
		return
	}
	if err := s.auditPub.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
