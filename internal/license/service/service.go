// Package service implements the Credential Gate: paid, time-windowed
// license minting, the Driver eligibility predicate, and owner-only burns.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"geekship/internal/license/models"
	"geekship/internal/license/store"
	"geekship/internal/platform/metrics"
	"geekship/pkg/audit"
	"geekship/pkg/domain"
	"geekship/pkg/domerrors"
)

type Store interface {
	Create(ctx context.Context, token *models.DrivingLicense) (domain.TokenID, error)
	Find(ctx context.Context, id domain.TokenID) (*models.DrivingLicense, error)
	Update(ctx context.Context, token *models.DrivingLicense) error
	ListByOwner(ctx context.Context, owner domain.UserID) ([]*models.DrivingLicense, error)
	CountActiveByOwner(ctx context.Context, owner domain.UserID) (int, error)
}

// AdminChecker gates the mint-window toggle.
type AdminChecker interface {
	IsAdmin(ctx context.Context, uid domain.UserID) (bool, error)
}

// Payments collects the mint fee from the caller's account.
type Payments interface {
	Charge(ctx context.Context, uid domain.UserID, amount uint64) error
}

// ValidationCache memoizes Validate. Optional; nil disables caching.
type ValidationCache interface {
	Get(ctx context.Context, uid domain.UserID) (valid, found bool, err error)
	Set(ctx context.Context, uid domain.UserID, valid bool) error
	Invalidate(ctx context.Context, uid domain.UserID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store     Store
	admins    AdminChecker
	payments  Payments
	cache     ValidationCache
	logger    *slog.Logger
	auditPub  AuditPublisher
	metrics   *metrics.Metrics
	now       func() time.Time
	mintPrice uint64

	mu       sync.RWMutex
	mintOpen bool
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

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithValidationCache(cache ValidationCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithMintOpen sets the initial state of the minting window.
func WithMintOpen(open bool) Option {
	return func(s *Service) { s.mintOpen = open }
}

func New(st Store, admins AdminChecker, payments Payments, mintPrice uint64, opts ...Option) *Service {
	s := &Service{
		store:     st,
		admins:    admins,
		payments:  payments,
		mintPrice: mintPrice,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EditMintWindow toggles the global minting window. Admin only.
func (s *Service) EditMintWindow(ctx context.Context, caller domain.UserID, open bool) error {
	isAdmin, err := s.admins.IsAdmin(ctx, caller)
	if err != nil {
		return domerrors.Wrap(err, domerrors.CodeInternal, "failed to check admin role")
	}
	if !isAdmin {
		return domerrors.New(domerrors.CodeUnauthorized, "only admins may edit the mint window")
	}
	s.mu.Lock()
	s.mintOpen = open
	s.mu.Unlock()
	s.emit(ctx, audit.Event{Actor: caller, Action: string(audit.EventMintWindow)})
	return nil
}

// MintOpen reports the current window state.
func (s *Service) MintOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mintOpen
}

// PublicMint issues one license token to the caller against the fixed mint
// price. A caller may hold several tokens.
func (s *Service) PublicMint(ctx context.Context, caller domain.UserID, name, licenseNumber, ipfsHash string, paid uint64) (*models.DrivingLicense, error) {
	if !s.MintOpen() {
		return nil, domerrors.New(domerrors.CodeWrongState, "minting is closed")
	}
	if paid < s.mintPrice {
		return nil, domerrors.Newf(domerrors.CodeInsufficientPayment, "mint price is %d", s.mintPrice)
	}
	token, err := models.NewDrivingLicense(caller, name, licenseNumber, ipfsHash, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.payments.Charge(ctx, caller, paid); err != nil {
		return nil, err
	}
	if _, err := s.store.Create(ctx, token); err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to mint license")
	}
	s.invalidate(ctx, caller)
	s.emit(ctx, audit.Event{Actor: caller, Action: string(audit.EventLicenseMinted)})
	s.metrics.IncLicensesMinted()
	return token, nil
}

// Validate reports whether uid holds at least one non-burned token. This is
// the predicate the registry and the auction gate on.
func (s *Service) Validate(ctx context.Context, uid domain.UserID) (bool, error) {
	if s.cache != nil {
		valid, found, err := s.cache.Get(ctx, uid)
		if err != nil {
			// Cache trouble is not an eligibility answer; fall through to
			// the store.
			s.logger.WarnContext(ctx, "license cache read failed", "error", err)
		} else if found {
			return valid, nil
		}
	}
	count, err := s.store.CountActiveByOwner(ctx, uid)
	if err != nil {
		return false, domerrors.Wrap(err, domerrors.CodeInternal, "failed to count licenses")
	}
	valid := count > 0
	if s.cache != nil {
		if err := s.cache.Set(ctx, uid, valid); err != nil {
			s.logger.WarnContext(ctx, "license cache write failed", "error", err)
		}
	}
	return valid, nil
}

// Burn irreversibly destroys a token. Owner only; eligibility is recomputed
// over the owner's remaining tokens.
func (s *Service) Burn(ctx context.Context, caller domain.UserID, tokenID domain.TokenID) error {
	token, err := s.store.Find(ctx, tokenID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domerrors.New(domerrors.CodeNotFound, "license token not found")
		}
		return domerrors.Wrap(err, domerrors.CodeInternal, "failed to load license")
	}
	if token.OwnerUID != caller {
		return domerrors.New(domerrors.CodeUnauthorized, "only the owner may burn a license")
	}
	if token.Burned {
		return domerrors.New(domerrors.CodeWrongState, "license is already burned")
	}
	token.Burned = true
	if err := s.store.Update(ctx, token); err != nil {
		return domerrors.Wrap(err, domerrors.CodeInternal, "failed to burn license")
	}
	s.invalidate(ctx, caller)
	s.emit(ctx, audit.Event{Actor: caller, Action: string(audit.EventLicenseBurned)})
	return nil
}

// ListByOwner is a read for the presentation layer.
func (s *Service) ListByOwner(ctx context.Context, owner domain.UserID) ([]*models.DrivingLicense, error) {
	tokens, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to list licenses")
	}
	return tokens, nil
}

func (s *Service) invalidate(ctx context.Context, uid domain.UserID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, uid); err != nil {
		s.logger.WarnContext(ctx, "license cache invalidation failed", "uid", uid, "error", err)
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPub == nil {
		return
	}
	if err := s.auditPub.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
