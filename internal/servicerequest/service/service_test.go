package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identitymodels "geekship/internal/identity/models"
	"geekship/internal/ledger"
	"geekship/internal/servicerequest/models"
	"geekship/internal/servicerequest/store"
	"geekship/pkg/domain"
	"geekship/pkg/domerrors"
)

type stubIdentity struct {
	roles      map[domain.UserID][]identitymodels.Role
	geo        map[domain.UserID]string
	registered map[domain.UserID]string
}

func newStubIdentity() *stubIdentity {
	return &stubIdentity{
		roles:      make(map[domain.UserID][]identitymodels.Role),
		geo:        make(map[domain.UserID]string),
		registered: make(map[domain.UserID]string),
	}
}

func (s *stubIdentity) grant(uid domain.UserID, geo string, roles ...identitymodels.Role) {
	s.roles[uid] = roles
	s.geo[uid] = geo
}

func (s *stubIdentity) RegisterIfAbsent(_ context.Context, uid domain.UserID, _, geoHash, _ string) (*identitymodels.User, error) {
	if _, ok := s.geo[uid]; !ok {
		s.geo[uid] = geoHash
		s.registered[uid] = geoHash
	}
	return &identitymodels.User{UID: uid, ServiceGeoHash: s.geo[uid]}, nil
}

func (s *stubIdentity) HasRole(_ context.Context, uid domain.UserID, role identitymodels.Role) (bool, error) {
	for _, r := range s.roles[uid] {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubIdentity) GetUserGeoHash(_ context.Context, uid domain.UserID) (string, error) {
	geo, ok := s.geo[uid]
	if !ok {
		return "", domerrors.New(domerrors.CodeNotFound, "user is not registered")
	}
	return geo, nil
}

type stubLicenses struct {
	valid map[domain.UserID]bool
}

func (s *stubLicenses) Validate(_ context.Context, uid domain.UserID) (bool, error) {
	return s.valid[uid], nil
}

type stubDisputes struct {
	opened []models.DisputeSnapshot
}

func (s *stubDisputes) AddNewDisputedSR(_ context.Context, snap models.DisputeSnapshot) error {
	s.opened = append(s.opened, snap)
	return nil
}

type fixture struct {
	svc      *Service
	led      *ledger.Ledger
	identity *stubIdentity
	licenses *stubLicenses
	disputes *stubDisputes
	now      time.Time

	shipper  domain.UserID
	receiver domain.UserID
	driver   domain.UserID
	driver2  domain.UserID
}

const (
	regionA     = "u4pruydq"
	regionAWide = "u4pru"
	regionB     = "9q8yywe"
	regionBWide = "9q8yy"
	regionC     = "dr5ru7z"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		led:      ledger.New(),
		identity: newStubIdentity(),
		licenses: &stubLicenses{valid: make(map[domain.UserID]bool)},
		disputes: &stubDisputes{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		shipper:  domain.NewUserID(),
		receiver: domain.NewUserID(),
		driver:   domain.NewUserID(),
		driver2:  domain.NewUserID(),
	}
	f.identity.grant(f.shipper, regionA, identitymodels.RoleShipper)
	f.identity.grant(f.driver, regionA, identitymodels.RoleDriver)
	f.identity.grant(f.driver2, regionA, identitymodels.RoleDriver)
	f.licenses.valid[f.driver] = true
	f.licenses.valid[f.driver2] = true

	ctx := context.Background()
	for _, uid := range []domain.UserID{f.shipper, f.driver, f.driver2} {
		f.led.Deposit(ctx, uid, 1000)
	}

	f.svc = New(store.NewMemory(), f.identity, f.licenses, f.led,
		ledger.SettlementPolicy{ConditionalHoldbackPct: 25},
		WithClock(func() time.Time { return f.now }))
	f.svc.BindDisputes(f.disputes)
	return f
}

func (f *fixture) createParams() CreateParams {
	return CreateParams{
		Receiver:            f.receiver,
		ReceiverName:        "Recipient",
		ReceiverPhone:       "+31612345678",
		Description:         "one pallet of books",
		OriginGeoHash:       regionA,
		DestGeoHash:         regionB,
		OriginApproxGeoHash: regionAWide,
		DestApproxGeoHash:   regionBWide,
		InsurableValue:      100,
		ServiceFee:          10,
		PickupAt:            f.now.Add(24 * time.Hour),
		DeliveryAt:          f.now.Add(48 * time.Hour),
		AuctionWindow:       time.Hour,
	}
}

// create drives the order into ReadyForAuction.
func (f *fixture) create(t *testing.T) *models.ServiceRequest {
	t.Helper()
	ctx := context.Background()
	sr, err := f.svc.CreateNewSR(ctx, f.shipper, f.createParams())
	require.NoError(t, err)
	sr, err = f.svc.UpdateSRStatus(ctx, f.shipper, sr.ID, models.StatusReadyForAuction)
	require.NoError(t, err)
	return sr
}

// assign runs the auction with a single bid and declares the winner.
func (f *fixture) assign(t *testing.T, bid uint64) *models.ServiceRequest {
	t.Helper()
	ctx := context.Background()
	sr := f.create(t)
	_, err := f.svc.DutchBid(ctx, f.driver, sr.ID, bid)
	require.NoError(t, err)
	f.now = f.now.Add(2 * time.Hour)
	sr, err = f.svc.DeclareWinner(ctx, f.shipper, sr.ID)
	require.NoError(t, err)
	return sr
}

// deliver walks an assigned order to Delivered.
func (f *fixture) deliver(t *testing.T, sr *models.ServiceRequest) *models.ServiceRequest {
	t.Helper()
	ctx := context.Background()
	steps := []struct {
		caller domain.UserID
		next   models.Status
	}{
		{f.shipper, models.StatusReadyForPickup},
		{f.driver, models.StatusParcelPickedUp},
		{f.driver, models.StatusInTransit},
		{f.driver, models.StatusDelivered},
	}
	var err error
	for _, step := range steps {
		sr, err = f.svc.UpdateSRStatus(ctx, step.caller, sr.ID, step.next)
		require.NoError(t, err)
	}
	return sr
}

func TestCreateNewSR(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sr, err := f.svc.CreateNewSR(ctx, f.shipper, f.createParams())
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, sr.Status)
	assert.Equal(t, uint64(110), f.led.Escrowed(ctx, sr.ID))
	assert.Equal(t, uint64(890), f.led.Balance(ctx, f.shipper))
	// Receiver was unknown to the registry and got enrolled with the
	// destination as their region.
	assert.Equal(t, regionB, f.identity.registered[f.receiver])
}

func TestCreateNewSR_InvalidTimes(t *testing.T) {
	f := newFixture(t)

	p := f.createParams()
	p.PickupAt, p.DeliveryAt = p.DeliveryAt, p.PickupAt
	_, err := f.svc.CreateNewSR(context.Background(), f.shipper, p)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeInvalidInput))

	p = f.createParams()
	p.DeliveryAt = time.Time{}
	_, err = f.svc.CreateNewSR(context.Background(), f.shipper, p)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeInvalidInput))
}

func TestCreateNewSR_DefaultAuctionWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := New(store.NewMemory(), f.identity, f.licenses, f.led,
		ledger.SettlementPolicy{ConditionalHoldbackPct: 25},
		WithDefaultAuctionWindow(4*time.Hour),
		WithClock(func() time.Time { return f.now }))

	p := f.createParams()
	p.AuctionWindow = 0
	sr, err := svc.CreateNewSR(ctx, f.shipper, p)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour, sr.AuctionWindow)
}

func TestCreateNewSR_ApproxNotAPrefix(t *testing.T) {
	f := newFixture(t)

	p := f.createParams()
	p.OriginApproxGeoHash = regionBWide
	_, err := f.svc.CreateNewSR(context.Background(), f.shipper, p)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeInvalidInput))
}

func TestCreateNewSR_NotAShipper(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateNewSR(context.Background(), f.driver, f.createParams())
	assert.True(t, domerrors.HasCode(err, domerrors.CodeUnauthorized))
}

func TestCreateNewSR_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	poor := domain.NewUserID()
	f.identity.grant(poor, regionA, identitymodels.RoleShipper)
	f.led.Deposit(ctx, poor, 5)

	_, err := f.svc.CreateNewSR(ctx, poor, f.createParams())
	assert.True(t, domerrors.HasCode(err, domerrors.CodeInsufficientPayment))
}

func TestEditDraftSR(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sr, err := f.svc.CreateNewSR(ctx, f.shipper, f.createParams())
	require.NoError(t, err)

	edit := EditParams{
		Description:         "two pallets of books",
		OriginGeoHash:       regionA,
		DestGeoHash:         regionB,
		OriginApproxGeoHash: regionAWide,
		DestApproxGeoHash:   regionBWide,
		InsurableValue:      200,
		ServiceFee:          20,
		PickupAt:            f.now.Add(24 * time.Hour),
		DeliveryAt:          f.now.Add(48 * time.Hour),
		AuctionWindow:       time.Hour,
	}
	sr, err = f.svc.EditDraftSR(ctx, f.shipper, sr.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, uint64(220), f.led.Escrowed(ctx, sr.ID))
	assert.Equal(t, uint64(780), f.led.Balance(ctx, f.shipper))

	edit.InsurableValue = 50
	edit.ServiceFee = 10
	sr, err = f.svc.EditDraftSR(ctx, f.shipper, sr.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), f.led.Escrowed(ctx, sr.ID))
	assert.Equal(t, uint64(940), f.led.Balance(ctx, f.shipper))

	_, err = f.svc.EditDraftSR(ctx, f.receiver, sr.ID, edit)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeUnauthorized))

	_, err = f.svc.UpdateSRStatus(ctx, f.shipper, sr.ID, models.StatusReadyForAuction)
	require.NoError(t, err)
	_, err = f.svc.EditDraftSR(ctx, f.shipper, sr.ID, edit)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeWrongState))
}

func TestDutchBid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sr := f.create(t)

	// First bid at 9 is under the 10 ceiling and locks collateral.
	bidSR, err := f.svc.DutchBid(ctx, f.driver, sr.ID, 9)
	require.NoError(t, err)
	require.NotNil(t, bidSR.Bid)
	assert.Equal(t, uint64(9), bidSR.Bid.Amount)
	assert.Equal(t, uint64(900), f.led.Balance(ctx, f.driver))
	assert.Equal(t, uint64(210), f.led.Escrowed(ctx, sr.ID))

	// 11 exceeds the ceiling, 9 fails to undercut.
	_, err = f.svc.DutchBid(ctx, f.driver2, sr.ID, 11)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeBidTooHigh))
	_, err = f.svc.DutchBid(ctx, f.driver2, sr.ID, 9)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeBidTooHigh))

	// 8 displaces the standing bid and refunds its collateral.
	bidSR, err = f.svc.DutchBid(ctx, f.driver2, sr.ID, 8)
	require.NoError(t, err)
	assert.Equal(t, f.driver2, bidSR.Bid.Driver)
	assert.Equal(t, uint64(1000), f.led.Balance(ctx, f.driver))
	assert.Equal(t, uint64(900), f.led.Balance(ctx, f.driver2))
	assert.Equal(t, uint64(210), f.led.Escrowed(ctx, sr.ID))
}

func TestDutchBid_SameDriverLowersOwnBid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sr := f.create(t)

	_, err := f.svc.DutchBid(ctx, f.driver, sr.ID, 9)
	require.NoError(t, err)
	bidSR, err := f.svc.DutchBid(ctx, f.driver, sr.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), bidSR.Bid.Amount)
	// Collateral stays held once; no double charge.
	assert.Equal(t, uint64(900), f.led.Balance(ctx, f.driver))
	assert.Equal(t, uint64(210), f.led.Escrowed(ctx, sr.ID))
}

func TestDutchBid_Gates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sr := f.create(t)

	t.Run("shipper may not bid on own order", func(t *testing.T) {
		_, err := f.svc.DutchBid(ctx, f.shipper, sr.ID, 5)
		assert.True(t, domerrors.HasCode(err, domerrors.CodeSelfInterest))
	})

	t.Run("non-driver is rejected", func(t *testing.T) {
		outsider := domain.NewUserID()
		f.identity.grant(outsider, regionA)
		_, err := f.svc.DutchBid(ctx, outsider, sr.ID, 5)
		assert.True(t, domerrors.HasCode(err, domerrors.CodeUnauthorized))
	})

	t.Run("lapsed license is rejected", func(t *testing.T) {
		f.licenses.valid[f.driver2] = false
		defer func() { f.licenses.valid[f.driver2] = true }()
		_, err := f.svc.DutchBid(ctx, f.driver2, sr.ID, 5)
		assert.True(t, domerrors.HasCode(err, domerrors.CodeUnauthorized))
	})

	t.Run("out-of-region driver is rejected", func(t *testing.T) {
		faraway := domain.NewUserID()
		f.identity.grant(faraway, regionC, identitymodels.RoleDriver)
		f.licenses.valid[faraway] = true
		_, err := f.svc.DutchBid(ctx, faraway, sr.ID, 5)
		assert.True(t, domerrors.HasCode(err, domerrors.CodeRegionMismatch))
	})

	t.Run("delivery-region driver may bid", func(t *testing.T) {
		destSide := domain.NewUserID()
		f.identity.grant(destSide, regionB, identitymodels.RoleDriver)
		f.licenses.valid[destSide] = true
		f.led.Deposit(ctx, destSide, 1000)
		bid, err := f.svc.DutchBid(ctx, destSide, sr.ID, 5)
		require.NoError(t, err)
		assert.Equal(t, destSide, bid.Bid.Driver)
	})

	t.Run("sibling cell inside the approximate region may bid", func(t *testing.T) {
		// regionA is u4pruydq; this driver sits in a different fine cell
		// under the shipper's wider u4pru catchment.
		sibling := domain.NewUserID()
		f.identity.grant(sibling, "u4pru9x", identitymodels.RoleDriver)
		f.licenses.valid[sibling] = true
		f.led.Deposit(ctx, sibling, 1000)
		bid, err := f.svc.DutchBid(ctx, sibling, sr.ID, 4)
		require.NoError(t, err)
		assert.Equal(t, sibling, bid.Bid.Driver)
	})

	t.Run("closed window rejects bids", func(t *testing.T) {
		f.now = f.now.Add(2 * time.Hour)
		_, err := f.svc.DutchBid(ctx, f.driver, sr.ID, 5)
		assert.True(t, domerrors.HasCode(err, domerrors.CodeWrongState))
	})
}

func TestDeclareWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sr := f.create(t)
	_, err := f.svc.DutchBid(ctx, f.driver, sr.ID, 9)
	require.NoError(t, err)

	// The window must elapse first.
	_, err = f.svc.DeclareWinner(ctx, f.shipper, sr.ID)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeWrongState))

	f.now = f.now.Add(2 * time.Hour)
	_, err = f.svc.DeclareWinner(ctx, f.driver, sr.ID)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeUnauthorized))

	won, err := f.svc.DeclareWinner(ctx, f.shipper, sr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDriverAssigned, won.Status)
	assert.Equal(t, f.driver, won.Driver)
}

func TestReopenAuction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sr := f.create(t)
	f.now = f.now.Add(2 * time.Hour)

	// No bids arrived, so there is no winner to declare.
	_, err := f.svc.DeclareWinner(ctx, f.shipper, sr.ID)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeWrongState))

	reopened, err := f.svc.ReopenAuction(ctx, f.shipper, sr.ID)
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(time.Hour), reopened.AuctionEndsAt)

	// The fresh window accepts bids again.
	_, err = f.svc.DutchBid(ctx, f.driver, sr.ID, 9)
	require.NoError(t, err)

	// A standing bid blocks further reopens.
	f.now = f.now.Add(2 * time.Hour)
	_, err = f.svc.ReopenAuction(ctx, f.shipper, sr.ID)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeWrongState))
}

func TestCancelSR(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sr, err := f.svc.CreateNewSR(ctx, f.shipper, f.createParams())
	require.NoError(t, err)

	cancelled, err := f.svc.CancelSR(ctx, f.shipper, sr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	// The full escrow comes back.
	assert.Equal(t, uint64(1000), f.led.Balance(ctx, f.shipper))
	assert.Equal(t, uint64(0), f.led.Escrowed(ctx, sr.ID))

	_, err = f.svc.CancelSR(ctx, f.shipper, sr.ID)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeWrongState))
}

func TestCancelSR_AfterSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sr := f.create(t)

	_, err := f.svc.CancelSR(ctx, sr.Receiver, sr.ID)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeUnauthorized))

	// Once submitted for auction the order can only run its course.
	_, err = f.svc.CancelSR(ctx, f.shipper, sr.ID)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeWrongState))
}

func TestUpdateSRStatus_WrongCaller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sr := f.assign(t, 9)

	// The shipper hands the parcel over, the driver moves it.
	_, err := f.svc.UpdateSRStatus(ctx, f.driver, sr.ID, models.StatusReadyForPickup)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeUnauthorized))

	sr, err = f.svc.UpdateSRStatus(ctx, f.shipper, sr.ID, models.StatusReadyForPickup)
	require.NoError(t, err)
	sr, err = f.svc.UpdateSRStatus(ctx, f.driver, sr.ID, models.StatusParcelPickedUp)
	require.NoError(t, err)
	sr, err = f.svc.UpdateSRStatus(ctx, f.driver, sr.ID, models.StatusInTransit)
	require.NoError(t, err)

	// The receiver may not drive the driver's edge even though the
	// transition itself is legal.
	_, err = f.svc.UpdateSRStatus(ctx, f.receiver, sr.ID, models.StatusDelivered)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeUnauthorized))
}

func TestUpdateSRStatus_NoSkipping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sr := f.assign(t, 9)

	_, err := f.svc.UpdateSRStatus(ctx, f.shipper, sr.ID, models.StatusInTransit)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeWrongState))
	_, err = f.svc.UpdateSRStatus(ctx, f.driver, sr.ID, models.StatusDelivered)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeWrongState))
}

func TestUnconditionalAcceptance_SettlesEscrow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sr := f.deliver(t, f.assign(t, 9))

	sr, err := f.svc.UpdateSRStatus(ctx, f.receiver, sr.ID, models.StatusUnconditionallyAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnconditionallyAccepted, sr.Status)

	// Driver earns the winning bid on top of their returned collateral; the
	// shipper pays exactly the bid; nothing is left in escrow.
	assert.Equal(t, uint64(1009), f.led.Balance(ctx, f.driver))
	assert.Equal(t, uint64(991), f.led.Balance(ctx, f.shipper))
	assert.Equal(t, uint64(0), f.led.Balance(ctx, f.receiver))
	assert.Equal(t, uint64(0), f.led.Escrowed(ctx, sr.ID))
}

func TestConditionalAcceptance_HoldsBackCollateral(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sr := f.deliver(t, f.assign(t, 9))

	sr, err := f.svc.UpdateSRStatus(ctx, f.receiver, sr.ID, models.StatusConditionallyAccepted)
	require.NoError(t, err)

	// A quarter of the 100 collateral stays escrowed.
	assert.Equal(t, uint64(984), f.led.Balance(ctx, f.driver))
	assert.Equal(t, uint64(25), f.led.Escrowed(ctx, sr.ID))

	_, err = f.svc.ReleaseHoldback(ctx, f.receiver, sr.ID)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeUnauthorized))

	sr, err = f.svc.ReleaseHoldback(ctx, f.shipper, sr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnconditionallyAccepted, sr.Status)
	assert.Equal(t, uint64(1009), f.led.Balance(ctx, f.driver))
	assert.Equal(t, uint64(0), f.led.Escrowed(ctx, sr.ID))
}

func TestDispute_HandsOffSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sr := f.deliver(t, f.assign(t, 9))

	sr, err := f.svc.UpdateSRStatus(ctx, f.receiver, sr.ID, models.StatusDispute)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDispute, sr.Status)

	require.Len(t, f.disputes.opened, 1)
	snap := f.disputes.opened[0]
	assert.Equal(t, sr.ID, snap.RequestID)
	assert.Equal(t, f.driver, snap.Driver)
	assert.Equal(t, regionAWide, snap.OriginApproxGeoHash)
	assert.Equal(t, regionBWide, snap.DestApproxGeoHash)

	// Escrow is frozen until the verdict.
	assert.Equal(t, uint64(210), f.led.Escrowed(ctx, sr.ID))
}

func TestResolveDispute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sr := f.deliver(t, f.assign(t, 9))
	_, err := f.svc.UpdateSRStatus(ctx, f.receiver, sr.ID, models.StatusDispute)
	require.NoError(t, err)

	require.NoError(t, f.svc.ResolveDispute(ctx, sr.ID, ledger.OutcomeDisputeReceiverWin))

	got, err := f.svc.GetSR(ctx, sr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisputeResolved, got.Status)

	// The shipper is made whole, the receiver is compensated from the
	// driver's collateral, and the escrow is fully drained.
	assert.Equal(t, uint64(1000), f.led.Balance(ctx, f.shipper))
	assert.Equal(t, uint64(100), f.led.Balance(ctx, f.receiver))
	assert.Equal(t, uint64(900), f.led.Balance(ctx, f.driver))
	assert.Equal(t, uint64(0), f.led.Escrowed(ctx, sr.ID))

	err = f.svc.ResolveDispute(ctx, sr.ID, ledger.OutcomeDisputeReceiverWin)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeWrongState))
}

func TestGetAuctionSRsInDriverRegion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.create(t)

	srs, err := f.svc.GetAuctionSRsInDriverRegion(ctx, f.driver)
	require.NoError(t, err)
	assert.Len(t, srs, 1)

	// The delivery region counts as served too.
	destSide := domain.NewUserID()
	f.identity.grant(destSide, regionB, identitymodels.RoleDriver)
	srs, err = f.svc.GetAuctionSRsInDriverRegion(ctx, destSide)
	require.NoError(t, err)
	assert.Len(t, srs, 1)

	// So does a sibling fine cell inside the shipper's wider catchment.
	sibling := domain.NewUserID()
	f.identity.grant(sibling, "u4pru9x", identitymodels.RoleDriver)
	srs, err = f.svc.GetAuctionSRsInDriverRegion(ctx, sibling)
	require.NoError(t, err)
	assert.Len(t, srs, 1)

	faraway := domain.NewUserID()
	f.identity.grant(faraway, regionC, identitymodels.RoleDriver)
	srs, err = f.svc.GetAuctionSRsInDriverRegion(ctx, faraway)
	require.NoError(t, err)
	assert.Empty(t, srs)
}

func TestGetAllSRs_AdminOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.create(t)

	_, err := f.svc.GetAllSRs(ctx, f.shipper)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeUnauthorized))

	admin := domain.NewUserID()
	f.identity.grant(admin, regionA, identitymodels.RoleAdmin)
	srs, err := f.svc.GetAllSRs(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, srs, 1)
}

func TestGetMySRs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sr := f.assign(t, 9)

	for _, uid := range []domain.UserID{f.shipper, f.receiver, f.driver} {
		srs, err := f.svc.GetMySRs(ctx, uid)
		require.NoError(t, err)
		require.Len(t, srs, 1)
		assert.Equal(t, sr.ID, srs[0].ID)
	}

	srs, err := f.svc.GetMySRs(ctx, f.driver2)
	require.NoError(t, err)
	assert.Empty(t, srs)
}
