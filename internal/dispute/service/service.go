// Package service implements dispute resolution: contested deliveries are
// judged by a jury of disinterested drivers from the job's regions, and the
// quorum verdict settles the order's escrow and dents the loser's rating.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"geekship/internal/dispute/models"
	"geekship/internal/dispute/store"
	identitymodels "geekship/internal/identity/models"
	"geekship/internal/ledger"
	"geekship/internal/platform/metrics"
	srmodels "geekship/internal/servicerequest/models"
	"geekship/pkg/audit"
	"geekship/pkg/domain"
	"geekship/pkg/domerrors"
)

type Store interface {
	Create(ctx context.Context, d *models.Dispute) error
	Find(ctx context.Context, id domain.RequestID) (*models.Dispute, error)
	Update(ctx context.Context, d *models.Dispute) error
	ListOpen(ctx context.Context) ([]*models.Dispute, error)
}

// Identity is the slice of the registry the jury checks need, plus the
// rating penalty applied to the losing party.
type Identity interface {
	HasRole(ctx context.Context, uid domain.UserID, role identitymodels.Role) (bool, error)
	GetUserGeoHash(ctx context.Context, uid domain.UserID) (string, error)
	DeductStars(ctx context.Context, uid domain.UserID) error
}

// Engine is the callback into the order lifecycle once a verdict lands.
type Engine interface {
	ResolveDispute(ctx context.Context, srID domain.RequestID, outcome ledger.Outcome) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service runs the voting workflow.
type Service struct {
	store    Store
	identity Identity
	engine   Engine
	// quorum is the vote count that closes a dispute.
	quorum   int
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

func New(st Store, identity Identity, engine Engine, quorum int, opts ...Option) *Service {
	s := &Service{
		store:    st,
		identity: identity,
		engine:   engine,
		quorum:   quorum,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	if s.quorum < 1 {
		s.quorum = 1
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddNewDisputedSR opens a dispute from the engine's snapshot. Only the
// engine calls it; there is no HTTP route to open a dispute directly.
func (s *Service) AddNewDisputedSR(ctx context.Context, snap srmodels.DisputeSnapshot) error {
	d := models.NewDispute(snap.RequestID, snap.Shipper, snap.Driver, snap.Receiver, snap.OriginApproxGeoHash, snap.DestApproxGeoHash, s.now())
	if err := s.store.Create(ctx, d); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domerrors.New(domerrors.CodeDuplicate, "the order is already under dispute")
		}
		return domerrors.Wrap(err, domerrors.CodeInternal, "failed to open dispute")
	}
	s.emit(ctx, audit.Event{Action: string(audit.EventDisputeOpened), RequestID: snap.RequestID, Subject: snap.OriginApproxGeoHash})
	return nil
}

// Vote records one juror's verdict. Jurors must hold the driver role,
// operate in the dispute's region, and hold no stake in the order. The vote
// that reaches quorum resolves the dispute on the spot.
func (s *Service) Vote(ctx context.Context, caller domain.UserID, srID domain.RequestID, forDriver bool) (*models.Dispute, error) {
	d, err := s.getDispute(ctx, srID)
	if err != nil {
		return nil, err
	}
	if d.Resolved {
		return nil, domerrors.New(domerrors.CodeWrongState, "the dispute is already resolved")
	}
	if d.IsParty(caller) {
		return nil, domerrors.New(domerrors.CodeSelfInterest, "order parties may not vote on their own dispute")
	}
	isDriver, err := s.identity.HasRole(ctx, caller, identitymodels.RoleDriver)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to check role")
	}
	if !isDriver {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "only drivers may vote on disputes")
	}
	voterGeo, err := s.identity.GetUserGeoHash(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !d.InRegion(voterGeo) {
		return nil, domerrors.New(domerrors.CodeRegionMismatch, "voter does not serve the dispute region")
	}
	if d.HasVoted(caller) {
		return nil, domerrors.New(domerrors.CodeDuplicate, "the caller has already voted")
	}

	choice := models.VoteForReceiver
	if forDriver {
		choice = models.VoteForDriver
	}
	d.Votes[caller] = choice
	s.emit(ctx, audit.Event{Actor: caller, Action: string(audit.EventDisputeVoteCast), RequestID: d.RequestID})

	if len(d.Votes) >= s.quorum {
		if err := s.resolve(ctx, d); err != nil {
			return nil, err
		}
	}
	if err := s.store.Update(ctx, d); err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to record vote")
	}
	return d, nil
}

// resolve closes the dispute: majority wins, a tie is a draw. The losing
// party of a decided dispute loses a rating star; a draw penalizes nobody.
func (s *Service) resolve(ctx context.Context, d *models.Dispute) error {
	forDriver, forReceiver := d.Tally()
	var (
		outcome ledger.Outcome
		loser   domain.UserID
	)
	switch {
	case forDriver > forReceiver:
		d.Winner = models.WinnerDriver
		outcome = ledger.OutcomeDisputeDriverWin
		loser = d.Receiver
	case forReceiver > forDriver:
		d.Winner = models.WinnerReceiver
		outcome = ledger.OutcomeDisputeReceiverWin
		loser = d.Driver
	default:
		d.Winner = models.WinnerDraw
		outcome = ledger.OutcomeDisputeDraw
	}
	// A WrongState from the engine means the order already settled, which
	// happens when a previous resolution attempt failed to persist the
	// record. The retry continues so the record catches up.
	if err := s.engine.ResolveDispute(ctx, d.RequestID, outcome); err != nil && !domerrors.HasCode(err, domerrors.CodeWrongState) {
		return err
	}
	if !loser.IsNil() {
		if err := s.identity.DeductStars(ctx, loser); err != nil {
			s.logger.WarnContext(ctx, "failed to deduct stars", "uid", loser, "error", err)
		}
	}
	d.Resolved = true
	d.ResolvedAt = s.now()
	s.emit(ctx, audit.Event{Action: string(audit.EventDisputeResolved), RequestID: d.RequestID, Detail: d.Winner.String()})
	s.metrics.IncDisputesResolved()
	return nil
}

func (s *Service) GetDispute(ctx context.Context, srID domain.RequestID) (*models.Dispute, error) {
	return s.getDispute(ctx, srID)
}

// ListOpenInRegion shows a driver the open disputes they are eligible to
// vote on.
func (s *Service) ListOpenInRegion(ctx context.Context, caller domain.UserID) ([]*models.Dispute, error) {
	isDriver, err := s.identity.HasRole(ctx, caller, identitymodels.RoleDriver)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to check role")
	}
	if !isDriver {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "only drivers may list disputes")
	}
	voterGeo, err := s.identity.GetUserGeoHash(ctx, caller)
	if err != nil {
		return nil, err
	}
	open, err := s.store.ListOpen(ctx)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to list disputes")
	}
	out := make([]*models.Dispute, 0, len(open))
	for _, d := range open {
		if d.InRegion(voterGeo) && !d.IsParty(caller) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Service) getDispute(ctx context.Context, srID domain.RequestID) (*models.Dispute, error) {
	d, err := s.store.Find(ctx, srID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domerrors.New(domerrors.CodeNotFound, "dispute not found")
		}
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to load dispute")
	}
	return d, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPub == nil {
		return
	}
	if err := s.auditPub.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
