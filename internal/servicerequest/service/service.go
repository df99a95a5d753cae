// Package service implements the Service Request Engine: the shipper's order
// lifecycle, the descending-price auction that assigns a driver, escrow
// movements, and the settlement that drains escrow on acceptance or dispute.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	identitymodels "geekship/internal/identity/models"
	"geekship/internal/ledger"
	"geekship/internal/platform/metrics"
	"geekship/internal/servicerequest/models"
	"geekship/internal/servicerequest/store"
	"geekship/pkg/audit"
	"geekship/pkg/domain"
	"geekship/pkg/domerrors"
	"geekship/pkg/geohash"
)

type Store interface {
	Create(ctx context.Context, sr *models.ServiceRequest) (domain.RequestID, error)
	Find(ctx context.Context, id domain.RequestID) (*models.ServiceRequest, error)
	Update(ctx context.Context, sr *models.ServiceRequest) error
	List(ctx context.Context) ([]*models.ServiceRequest, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.ServiceRequest, error)
	ListByParticipant(ctx context.Context, uid domain.UserID) ([]*models.ServiceRequest, error)
}

// Identity is the slice of the registry the engine needs: capability checks,
// the region read for bid gating, and receiver auto-registration.
type Identity interface {
	RegisterIfAbsent(ctx context.Context, uid domain.UserID, name, geoHash, phone string) (*identitymodels.User, error)
	HasRole(ctx context.Context, uid domain.UserID, role identitymodels.Role) (bool, error)
	GetUserGeoHash(ctx context.Context, uid domain.UserID) (string, error)
}

// LicenseValidator gates bidding the same way it gates the driver role.
type LicenseValidator interface {
	Validate(ctx context.Context, uid domain.UserID) (bool, error)
}

// Ledger is the escrow surface the engine drives. Every value movement goes
// through it; the engine itself never holds balances.
type Ledger interface {
	Hold(ctx context.Context, uid domain.UserID, srID domain.RequestID, amount uint64) error
	Release(ctx context.Context, srID domain.RequestID, to domain.UserID, amount uint64, key string) error
	Apply(ctx context.Context, srID domain.RequestID, transfers []ledger.Transfer) error
}

// DisputeOpener receives the snapshot when a receiver contests a delivery.
// Bound after construction because dispute resolution also calls back into
// the engine.
type DisputeOpener interface {
	AddNewDisputedSR(ctx context.Context, snap models.DisputeSnapshot) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates the order lifecycle.
type Service struct {
	store         Store
	identity      Identity
	licenses      LicenseValidator
	ledger        Ledger
	policy        ledger.SettlementPolicy
	disputes      DisputeOpener
	logger        *slog.Logger
	auditPub      AuditPublisher
	metrics       *metrics.Metrics
	defaultWindow time.Duration
	now           func() time.Time
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

// WithDefaultAuctionWindow sets the auction duration used when an order is
// created or edited without one.
func WithDefaultAuctionWindow(d time.Duration) Option {
	return func(s *Service) { s.defaultWindow = d }
}

// WithClock injects time for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st Store, identity Identity, licenses LicenseValidator, led Ledger, policy ledger.SettlementPolicy, opts ...Option) *Service {
	s := &Service{
		store:    st,
		identity: identity,
		licenses: licenses,
		ledger:   led,
		policy:   policy,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BindDisputes wires the dispute component in. Called once at startup, after
// both services exist.
func (s *Service) BindDisputes(d DisputeOpener) {
	s.disputes = d
}

// CreateParams carries everything a shipper submits for a new order. The
// receiver fields let an unregistered receiver be enrolled on the spot.
type CreateParams struct {
	Receiver            domain.UserID
	ReceiverName        string
	ReceiverPhone       string
	Description         string
	OriginGeoHash       string
	DestGeoHash         string
	OriginApproxGeoHash string
	DestApproxGeoHash   string
	InsurableValue      uint64
	ServiceFee          uint64
	PickupAt            time.Time
	DeliveryAt          time.Time
	AuctionWindow       time.Duration
}

// CreateNewSR opens a Draft order. The shipper's service fee and insurable
// value are escrowed immediately, so an underfunded order never reaches the
// auction. The receiver is registered with the destination as their service
// region if the registry has never seen them.
func (s *Service) CreateNewSR(ctx context.Context, caller domain.UserID, p CreateParams) (*models.ServiceRequest, error) {
	if err := s.requireRole(ctx, caller, identitymodels.RoleShipper); err != nil {
		return nil, err
	}
	if p.AuctionWindow <= 0 {
		p.AuctionWindow = s.defaultWindow
	}
	sr, err := models.NewServiceRequest(models.Draft{
		Shipper:             caller,
		Receiver:            p.Receiver,
		Description:         p.Description,
		OriginGeoHash:       p.OriginGeoHash,
		DestGeoHash:         p.DestGeoHash,
		OriginApproxGeoHash: p.OriginApproxGeoHash,
		DestApproxGeoHash:   p.DestApproxGeoHash,
		CargoInsurableValue: p.InsurableValue,
		ServiceFee:          p.ServiceFee,
		RequestedPickupAt:   p.PickupAt,
		RequestedDeliveryAt: p.DeliveryAt,
		AuctionWindow:       p.AuctionWindow,
	}, s.now())
	if err != nil {
		return nil, err
	}
	if _, err := s.identity.RegisterIfAbsent(ctx, p.Receiver, p.ReceiverName, p.DestGeoHash, p.ReceiverPhone); err != nil {
		return nil, err
	}
	if _, err := s.store.Create(ctx, sr); err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to create service request")
	}
	if err := s.ledger.Hold(ctx, caller, sr.ID, sr.EscrowTotal()); err != nil {
		// An unfunded draft must not linger; void it.
		sr.Status = models.StatusCancelled
		if uerr := s.store.Update(ctx, sr); uerr != nil {
			s.logger.ErrorContext(ctx, "failed to void unfunded draft", "sr_id", sr.ID, "error", uerr)
		}
		return nil, err
	}
	s.emit(ctx, audit.Event{Actor: caller, Action: string(audit.EventSRCreated), RequestID: sr.ID, Subject: p.OriginGeoHash})
	s.metrics.IncSRsCreated()
	return sr, nil
}

// EditParams mirrors the editable subset of a draft.
type EditParams struct {
	Description         string
	OriginGeoHash       string
	DestGeoHash         string
	OriginApproxGeoHash string
	DestApproxGeoHash   string
	InsurableValue      uint64
	ServiceFee          uint64
	PickupAt            time.Time
	DeliveryAt          time.Time
	AuctionWindow       time.Duration
}

// EditDraftSR rewrites a Draft in place. The escrow is adjusted by the
// difference so the bucket always matches fee plus insurable value.
func (s *Service) EditDraftSR(ctx context.Context, caller domain.UserID, srID domain.RequestID, p EditParams) (*models.ServiceRequest, error) {
	sr, err := s.getSR(ctx, srID)
	if err != nil {
		return nil, err
	}
	if sr.Shipper != caller {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "only the shipper may edit a draft")
	}
	if sr.Status != models.StatusDraft {
		return nil, domerrors.New(domerrors.CodeWrongState, "only drafts can be edited")
	}
	if p.AuctionWindow <= 0 {
		p.AuctionWindow = s.defaultWindow
	}
	edited, err := models.NewServiceRequest(models.Draft{
		Shipper:             sr.Shipper,
		Receiver:            sr.Receiver,
		Description:         p.Description,
		OriginGeoHash:       p.OriginGeoHash,
		DestGeoHash:         p.DestGeoHash,
		OriginApproxGeoHash: p.OriginApproxGeoHash,
		DestApproxGeoHash:   p.DestApproxGeoHash,
		CargoInsurableValue: p.InsurableValue,
		ServiceFee:          p.ServiceFee,
		RequestedPickupAt:   p.PickupAt,
		RequestedDeliveryAt: p.DeliveryAt,
		AuctionWindow:       p.AuctionWindow,
	}, sr.CreatedAt)
	if err != nil {
		return nil, err
	}

	oldTotal := sr.EscrowTotal()
	sr.Description = edited.Description
	sr.OriginGeoHash = edited.OriginGeoHash
	sr.DestGeoHash = edited.DestGeoHash
	sr.OriginApproxGeoHash = edited.OriginApproxGeoHash
	sr.DestApproxGeoHash = edited.DestApproxGeoHash
	sr.CargoInsurableValue = edited.CargoInsurableValue
	sr.ServiceFee = edited.ServiceFee
	sr.RequestedPickupAt = edited.RequestedPickupAt
	sr.RequestedDeliveryAt = edited.RequestedDeliveryAt
	sr.AuctionWindow = edited.AuctionWindow
	sr.EditSeq++
	sr.UpdatedAt = s.now()

	switch newTotal := sr.EscrowTotal(); {
	case newTotal > oldTotal:
		if err := s.ledger.Hold(ctx, caller, sr.ID, newTotal-oldTotal); err != nil {
			return nil, err
		}
	case newTotal < oldTotal:
		key := fmt.Sprintf("sr:%d:edit:%d", sr.ID, sr.EditSeq)
		if err := s.ledger.Release(ctx, sr.ID, caller, oldTotal-newTotal, key); err != nil {
			return nil, err
		}
	}
	if err := s.store.Update(ctx, sr); err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to update service request")
	}
	s.emit(ctx, audit.Event{Actor: caller, Action: string(audit.EventSRUpdated), RequestID: sr.ID})
	return sr, nil
}

// CancelSR withdraws a draft order and returns the shipper's escrow in full.
// Once the order is submitted for auction it can no longer be cancelled, only
// reopened.
func (s *Service) CancelSR(ctx context.Context, caller domain.UserID, srID domain.RequestID) (*models.ServiceRequest, error) {
	sr, err := s.getSR(ctx, srID)
	if err != nil {
		return nil, err
	}
	if sr.Shipper != caller {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "only the shipper may cancel")
	}
	if sr.Status != models.StatusDraft {
		return nil, domerrors.New(domerrors.CodeWrongState, "only draft orders can be cancelled")
	}
	key := fmt.Sprintf("sr:%d:cancel", sr.ID)
	if err := s.ledger.Release(ctx, sr.ID, sr.Shipper, sr.EscrowTotal(), key); err != nil {
		return nil, err
	}
	sr.Status = models.StatusCancelled
	sr.UpdatedAt = s.now()
	if err := s.store.Update(ctx, sr); err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to update service request")
	}
	s.emit(ctx, audit.Event{Actor: caller, Action: string(audit.EventSRCancelled), RequestID: sr.ID})
	return sr, nil
}

// DutchBid places or replaces the standing bid. Bidders must hold the driver
// role, carry a valid license, and serve the pickup or delivery region. A bid is
// accepted only if it does not exceed the service fee and undercuts the
// standing bid strictly; the displaced bidder's collateral is refunded on the
// spot.
func (s *Service) DutchBid(ctx context.Context, caller domain.UserID, srID domain.RequestID, amount uint64) (*models.ServiceRequest, error) {
	sr, err := s.getSR(ctx, srID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !sr.AuctionOpen(now) {
		return nil, domerrors.New(domerrors.CodeWrongState, "the auction is not open for bids")
	}
	if caller == sr.Shipper || caller == sr.Receiver {
		return nil, domerrors.New(domerrors.CodeSelfInterest, "order parties may not bid on their own order")
	}
	if err := s.requireRole(ctx, caller, identitymodels.RoleDriver); err != nil {
		return nil, err
	}
	valid, err := s.licenses.Validate(ctx, caller)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to validate driving license")
	}
	if !valid {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "bidding requires a valid driving license")
	}
	driverGeo, err := s.identity.GetUserGeoHash(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !geohash.RegionsMatch(driverGeo, sr.OriginApproxGeoHash) && !geohash.RegionsMatch(driverGeo, sr.DestApproxGeoHash) {
		return nil, domerrors.New(domerrors.CodeRegionMismatch, "driver serves neither the pickup nor the delivery region")
	}
	if amount > sr.ServiceFee {
		return nil, domerrors.New(domerrors.CodeBidTooHigh, "bid exceeds the service fee ceiling")
	}
	if sr.Bid != nil && amount >= sr.Bid.Amount {
		return nil, domerrors.New(domerrors.CodeBidTooHigh, "bid must undercut the standing bid")
	}

	seq := 1
	if sr.Bid != nil {
		seq = sr.Bid.Seq + 1
		if sr.Bid.Driver == caller {
			// Same driver lowering their own bid keeps their collateral.
			sr.Bid = &models.Bid{Driver: caller, Amount: amount, Seq: seq, PlacedAt: now}
			return s.saveBid(ctx, sr, caller)
		}
		if err := s.refundBid(ctx, sr); err != nil {
			return nil, err
		}
	}
	if err := s.ledger.Hold(ctx, caller, sr.ID, sr.CargoInsurableValue); err != nil {
		return nil, err
	}
	sr.Bid = &models.Bid{Driver: caller, Amount: amount, Seq: seq, PlacedAt: now}
	return s.saveBid(ctx, sr, caller)
}

func (s *Service) saveBid(ctx context.Context, sr *models.ServiceRequest, caller domain.UserID) (*models.ServiceRequest, error) {
	sr.UpdatedAt = s.now()
	if err := s.store.Update(ctx, sr); err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to record bid")
	}
	s.emit(ctx, audit.Event{Actor: caller, Action: string(audit.EventBidPlaced), RequestID: sr.ID, Detail: fmt.Sprintf("%d", sr.Bid.Amount)})
	s.metrics.IncBidsPlaced()
	return sr, nil
}

// refundBid returns the displaced bidder's collateral, keyed by bid sequence
// so a retried displacement refunds once.
func (s *Service) refundBid(ctx context.Context, sr *models.ServiceRequest) error {
	key := fmt.Sprintf("sr:%d:bid:%d:refund", sr.ID, sr.Bid.Seq)
	if err := s.ledger.Release(ctx, sr.ID, sr.Bid.Driver, sr.CargoInsurableValue, key); err != nil {
		return err
	}
	s.emit(ctx, audit.Event{Action: string(audit.EventBidDisplaced), RequestID: sr.ID, Subject: sr.Bid.Driver.String()})
	return nil
}

// DeclareWinner closes the auction in the standing bidder's favor. Only the
// shipper may call it, only once the window has elapsed, and only when a bid
// exists; an empty auction is reopened instead.
func (s *Service) DeclareWinner(ctx context.Context, caller domain.UserID, srID domain.RequestID) (*models.ServiceRequest, error) {
	sr, err := s.getSR(ctx, srID)
	if err != nil {
		return nil, err
	}
	if sr.Shipper != caller {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "only the shipper may declare the winner")
	}
	if sr.Status != models.StatusReadyForAuction {
		return nil, domerrors.New(domerrors.CodeWrongState, "the order is not in auction")
	}
	if s.now().Before(sr.AuctionEndsAt) {
		return nil, domerrors.New(domerrors.CodeWrongState, "the auction window is still open")
	}
	if sr.Bid == nil {
		return nil, domerrors.New(domerrors.CodeWrongState, "no bids were placed; reopen the auction")
	}
	sr.Driver = sr.Bid.Driver
	sr.Status = models.StatusDriverAssigned
	sr.UpdatedAt = s.now()
	if err := s.store.Update(ctx, sr); err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to update service request")
	}
	s.emit(ctx, audit.Event{Actor: caller, Action: string(audit.EventWinnerDeclared), RequestID: sr.ID, Subject: sr.Driver.String()})
	return sr, nil
}

// ReopenAuction restarts the bidding clock on an auction that closed without
// a single bid.
func (s *Service) ReopenAuction(ctx context.Context, caller domain.UserID, srID domain.RequestID) (*models.ServiceRequest, error) {
	sr, err := s.getSR(ctx, srID)
	if err != nil {
		return nil, err
	}
	if sr.Shipper != caller {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "only the shipper may reopen the auction")
	}
	if sr.Status != models.StatusReadyForAuction {
		return nil, domerrors.New(domerrors.CodeWrongState, "the order is not in auction")
	}
	if s.now().Before(sr.AuctionEndsAt) {
		return nil, domerrors.New(domerrors.CodeWrongState, "the auction window is still open")
	}
	if sr.Bid != nil {
		return nil, domerrors.New(domerrors.CodeWrongState, "a standing bid exists; declare the winner instead")
	}
	sr.AuctionEndsAt = s.now().Add(sr.AuctionWindow)
	sr.UpdatedAt = s.now()
	if err := s.store.Update(ctx, sr); err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to update service request")
	}
	s.emit(ctx, audit.Event{Actor: caller, Action: string(audit.EventAuctionReopened), RequestID: sr.ID})
	return sr, nil
}

// statusActor names which party drives a given forward transition.
type statusActor int

const (
	actorShipper statusActor = iota
	actorDriver
	actorReceiver
)

// forwardEdges is the one-step lifecycle table. Receiver acceptance edges
// from Delivered are handled separately because they fan out.
var forwardEdges = map[models.Status]statusActor{
	models.StatusDraft:          actorShipper, // submit to auction
	models.StatusDriverAssigned: actorShipper, // hand the parcel over
	models.StatusReadyForPickup: actorDriver,
	models.StatusParcelPickedUp: actorDriver,
	models.StatusInTransit:      actorDriver,
}

// UpdateSRStatus advances the lifecycle by exactly one step, or applies one
// of the receiver's three acceptance outcomes from Delivered. The wrong
// caller on a legal edge is an authorization failure, not a state one.
func (s *Service) UpdateSRStatus(ctx context.Context, caller domain.UserID, srID domain.RequestID, next models.Status) (*models.ServiceRequest, error) {
	sr, err := s.getSR(ctx, srID)
	if err != nil {
		return nil, err
	}
	if sr.Status == models.StatusDelivered {
		return s.acceptDelivery(ctx, caller, sr, next)
	}
	actor, ok := forwardEdges[sr.Status]
	if !ok || next != sr.Status+1 {
		return nil, domerrors.Newf(domerrors.CodeWrongState, "cannot move from %s to %s", sr.Status, next)
	}
	if err := s.requireActor(caller, sr, actor); err != nil {
		return nil, err
	}
	if sr.Status == models.StatusDraft {
		// Entering the auction starts the bidding clock.
		sr.AuctionEndsAt = s.now().Add(sr.AuctionWindow)
	}
	sr.Status = next
	sr.UpdatedAt = s.now()
	if err := s.store.Update(ctx, sr); err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to update service request")
	}
	s.emit(ctx, audit.Event{Actor: caller, Action: string(audit.EventSRStatusUpdated), RequestID: sr.ID, Detail: sr.Status.String()})
	return sr, nil
}

// acceptDelivery applies the receiver's verdict on a delivered parcel:
// unconditional acceptance settles everything, conditional acceptance holds
// back part of the driver's collateral, and a dispute freezes the order and
// hands a snapshot to the dispute component.
func (s *Service) acceptDelivery(ctx context.Context, caller domain.UserID, sr *models.ServiceRequest, next models.Status) (*models.ServiceRequest, error) {
	switch next {
	case models.StatusConditionallyAccepted, models.StatusUnconditionallyAccepted, models.StatusDispute:
	default:
		return nil, domerrors.Newf(domerrors.CodeWrongState, "cannot move from %s to %s", sr.Status, next)
	}
	if err := s.requireActor(caller, sr, actorReceiver); err != nil {
		return nil, err
	}
	switch next {
	case models.StatusUnconditionallyAccepted:
		if err := s.settle(ctx, sr, ledger.OutcomeUnconditional); err != nil {
			return nil, err
		}
	case models.StatusConditionallyAccepted:
		if err := s.settle(ctx, sr, ledger.OutcomeConditional); err != nil {
			return nil, err
		}
	case models.StatusDispute:
		if s.disputes == nil {
			return nil, domerrors.New(domerrors.CodeInternal, "dispute resolution is not configured")
		}
		snap := models.DisputeSnapshot{
			RequestID:           sr.ID,
			Shipper:             sr.Shipper,
			Driver:              sr.Driver,
			Receiver:            sr.Receiver,
			OriginApproxGeoHash: sr.OriginApproxGeoHash,
			DestApproxGeoHash:   sr.DestApproxGeoHash,
		}
		if err := s.disputes.AddNewDisputedSR(ctx, snap); err != nil {
			return nil, err
		}
		s.emit(ctx, audit.Event{Actor: caller, Action: string(audit.EventDisputeOpened), RequestID: sr.ID})
	}
	sr.Status = next
	sr.UpdatedAt = s.now()
	if err := s.store.Update(ctx, sr); err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to update service request")
	}
	s.emit(ctx, audit.Event{Actor: caller, Action: string(audit.EventSRStatusUpdated), RequestID: sr.ID, Detail: sr.Status.String()})
	return sr, nil
}

// ReleaseHoldback pays the held-back collateral out to the driver once the
// shipper confirms the conditions were met, completing the acceptance.
func (s *Service) ReleaseHoldback(ctx context.Context, caller domain.UserID, srID domain.RequestID) (*models.ServiceRequest, error) {
	sr, err := s.getSR(ctx, srID)
	if err != nil {
		return nil, err
	}
	if sr.Shipper != caller {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "only the shipper may release the holdback")
	}
	if sr.Status != models.StatusConditionallyAccepted {
		return nil, domerrors.New(domerrors.CodeWrongState, "no holdback is pending")
	}
	t := s.policy.HoldbackTransfer(sr.ID, sr.Driver, sr.CargoInsurableValue)
	if err := s.ledger.Apply(ctx, sr.ID, []ledger.Transfer{t}); err != nil {
		return nil, err
	}
	sr.Status = models.StatusUnconditionallyAccepted
	sr.UpdatedAt = s.now()
	if err := s.store.Update(ctx, sr); err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to update service request")
	}
	s.emit(ctx, audit.Event{Actor: caller, Action: string(audit.EventSRStatusUpdated), RequestID: sr.ID, Detail: sr.Status.String()})
	return sr, nil
}

// ResolveDispute applies the dispute verdict: settle escrow per the outcome
// and close the order. Called by the dispute component, never over HTTP.
func (s *Service) ResolveDispute(ctx context.Context, srID domain.RequestID, outcome ledger.Outcome) error {
	sr, err := s.getSR(ctx, srID)
	if err != nil {
		return err
	}
	if sr.Status != models.StatusDispute {
		return domerrors.New(domerrors.CodeWrongState, "the order is not under dispute")
	}
	if err := s.settle(ctx, sr, outcome); err != nil {
		return err
	}
	sr.Status = models.StatusDisputeResolved
	sr.UpdatedAt = s.now()
	if err := s.store.Update(ctx, sr); err != nil {
		return domerrors.Wrap(err, domerrors.CodeInternal, "failed to update service request")
	}
	s.emit(ctx, audit.Event{Action: string(audit.EventSRStatusUpdated), RequestID: sr.ID, Detail: sr.Status.String()})
	return nil
}

// settle drains the order's escrow. The policy splits on the winning bid;
// the fee surplus the shipper over-escrowed above the bid always comes back
// to them, whatever the outcome.
func (s *Service) settle(ctx context.Context, sr *models.ServiceRequest, outcome ledger.Outcome) error {
	who := ledger.Parties{Shipper: sr.Shipper, Driver: sr.Driver, Receiver: sr.Receiver}
	amounts := ledger.Amounts{
		ServiceFee:     sr.Bid.Amount,
		InsurableValue: sr.CargoInsurableValue,
		Collateral:     sr.CargoInsurableValue,
	}
	transfers := s.policy.Settle(sr.ID, outcome, who, amounts)
	if surplus := sr.ServiceFee - sr.Bid.Amount; surplus > 0 {
		transfers = append(transfers, ledger.Transfer{
			To:     sr.Shipper,
			Amount: surplus,
			Key:    fmt.Sprintf("sr:%d:settle:fee-surplus", sr.ID),
		})
	}
	if err := s.ledger.Apply(ctx, sr.ID, transfers); err != nil {
		return err
	}
	s.emit(ctx, audit.Event{Action: string(audit.EventSettlementRun), RequestID: sr.ID, Detail: fmt.Sprintf("outcome=%d", outcome)})
	return nil
}

// GetSR returns one order. Order data is not secret between participants of
// the marketplace, so any registered caller may read it.
func (s *Service) GetSR(ctx context.Context, srID domain.RequestID) (*models.ServiceRequest, error) {
	return s.getSR(ctx, srID)
}

// GetAuctionSRsInDriverRegion lists open auctions whose pickup or delivery
// lies in the calling driver's service region.
func (s *Service) GetAuctionSRsInDriverRegion(ctx context.Context, caller domain.UserID) ([]*models.ServiceRequest, error) {
	if err := s.requireRole(ctx, caller, identitymodels.RoleDriver); err != nil {
		return nil, err
	}
	driverGeo, err := s.identity.GetUserGeoHash(ctx, caller)
	if err != nil {
		return nil, err
	}
	srs, err := s.store.ListByStatus(ctx, models.StatusReadyForAuction)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to list auctions")
	}
	out := make([]*models.ServiceRequest, 0, len(srs))
	for _, sr := range srs {
		if geohash.RegionsMatch(driverGeo, sr.OriginApproxGeoHash) || geohash.RegionsMatch(driverGeo, sr.DestApproxGeoHash) {
			out = append(out, sr)
		}
	}
	return out, nil
}

// GetAllSRs is the admin overview of every order.
func (s *Service) GetAllSRs(ctx context.Context, caller domain.UserID) ([]*models.ServiceRequest, error) {
	if err := s.requireRole(ctx, caller, identitymodels.RoleAdmin); err != nil {
		return nil, err
	}
	srs, err := s.store.List(ctx)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to list service requests")
	}
	return srs, nil
}

// GetMySRs lists every order the caller participates in, in any capacity.
func (s *Service) GetMySRs(ctx context.Context, caller domain.UserID) ([]*models.ServiceRequest, error) {
	srs, err := s.store.ListByParticipant(ctx, caller)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to list service requests")
	}
	return srs, nil
}

func (s *Service) getSR(ctx context.Context, srID domain.RequestID) (*models.ServiceRequest, error) {
	sr, err := s.store.Find(ctx, srID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domerrors.New(domerrors.CodeNotFound, "service request not found")
		}
		return nil, domerrors.Wrap(err, domerrors.CodeInternal, "failed to load service request")
	}
	return sr, nil
}

func (s *Service) requireRole(ctx context.Context, caller domain.UserID, role identitymodels.Role) error {
	ok, err := s.identity.HasRole(ctx, caller, role)
	if err != nil {
		return domerrors.Wrap(err, domerrors.CodeInternal, "failed to check role")
	}
	if !ok {
		return domerrors.Newf(domerrors.CodeUnauthorized, "caller does not hold the %s role", role)
	}
	return nil
}

func (s *Service) requireActor(caller domain.UserID, sr *models.ServiceRequest, actor statusActor) error {
	var want domain.UserID
	var name string
	switch actor {
	case actorShipper:
		want, name = sr.Shipper, "shipper"
	case actorDriver:
		want, name = sr.Driver, "driver"
	case actorReceiver:
		want, name = sr.Receiver, "receiver"
	}
	if want.IsNil() || caller != want {
		return domerrors.Newf(domerrors.CodeUnauthorized, "only the %s may perform this transition", name)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPub == nil {
		return
	}
	if err := s.auditPub.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
