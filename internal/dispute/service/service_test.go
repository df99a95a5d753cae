package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geekship/internal/dispute/store"
	identitymodels "geekship/internal/identity/models"
	"geekship/internal/ledger"
	srmodels "geekship/internal/servicerequest/models"
	"geekship/pkg/domain"
	"geekship/pkg/domerrors"
)

type stubIdentity struct {
	drivers  map[domain.UserID]bool
	geo      map[domain.UserID]string
	deducted []domain.UserID
}

func newStubIdentity() *stubIdentity {
	return &stubIdentity{
		drivers: make(map[domain.UserID]bool),
		geo:     make(map[domain.UserID]string),
	}
}

func (s *stubIdentity) HasRole(_ context.Context, uid domain.UserID, role identitymodels.Role) (bool, error) {
	return role == identitymodels.RoleDriver && s.drivers[uid], nil
}

func (s *stubIdentity) GetUserGeoHash(_ context.Context, uid domain.UserID) (string, error) {
	return s.geo[uid], nil
}

func (s *stubIdentity) DeductStars(_ context.Context, uid domain.UserID) error {
	s.deducted = append(s.deducted, uid)
	return nil
}

type stubEngine struct {
	resolved map[domain.RequestID]ledger.Outcome
}

func (s *stubEngine) ResolveDispute(_ context.Context, srID domain.RequestID, outcome ledger.Outcome) error {
	if s.resolved == nil {
		s.resolved = make(map[domain.RequestID]ledger.Outcome)
	}
	if _, ok := s.resolved[srID]; ok {
		return domerrors.New(domerrors.CodeWrongState, "the order is not under dispute")
	}
	s.resolved[srID] = outcome
	return nil
}

const (
	region     = "u4pruydq"
	destRegion = "9q8yywe"
)

type fixture struct {
	svc      *Service
	identity *stubIdentity
	engine   *stubEngine

	shipper  domain.UserID
	driver   domain.UserID
	receiver domain.UserID
	jurors   []domain.UserID
}

func newFixture(t *testing.T, quorum int) *fixture {
	t.Helper()
	f := &fixture{
		identity: newStubIdentity(),
		engine:   &stubEngine{},
		shipper:  domain.NewUserID(),
		driver:   domain.NewUserID(),
		receiver: domain.NewUserID(),
	}
	for i := 0; i < 3; i++ {
		juror := domain.NewUserID()
		f.identity.drivers[juror] = true
		f.identity.geo[juror] = region
		f.jurors = append(f.jurors, juror)
	}
	// The disputed order's driver is a driver too, but a party.
	f.identity.drivers[f.driver] = true
	f.identity.geo[f.driver] = region

	f.svc = New(store.NewMemory(), f.identity, f.engine, quorum,
		WithClock(func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }))
	return f
}

func (f *fixture) open(t *testing.T) domain.RequestID {
	t.Helper()
	snap := srmodels.DisputeSnapshot{
		RequestID:           7,
		Shipper:             f.shipper,
		Driver:              f.driver,
		Receiver:            f.receiver,
		OriginApproxGeoHash: region,
		DestApproxGeoHash:   destRegion,
	}
	require.NoError(t, f.svc.AddNewDisputedSR(context.Background(), snap))
	return snap.RequestID
}

func TestAddNewDisputedSR_Duplicate(t *testing.T) {
	f := newFixture(t, 3)
	id := f.open(t)

	err := f.svc.AddNewDisputedSR(context.Background(), srmodels.DisputeSnapshot{RequestID: id})
	assert.True(t, domerrors.HasCode(err, domerrors.CodeDuplicate))
}

func TestVote_MajorityForDriver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	id := f.open(t)

	_, err := f.svc.Vote(ctx, f.jurors[0], id, true)
	require.NoError(t, err)
	_, err = f.svc.Vote(ctx, f.jurors[1], id, false)
	require.NoError(t, err)
	d, err := f.svc.Vote(ctx, f.jurors[2], id, true)
	require.NoError(t, err)

	// Two of three sided with the driver; the receiver pays the rating
	// price for a rejected claim.
	assert.True(t, d.Resolved)
	assert.Equal(t, "Driver", d.Winner.String())
	assert.Equal(t, ledger.OutcomeDisputeDriverWin, f.engine.resolved[id])
	assert.Equal(t, []domain.UserID{f.receiver}, f.identity.deducted)
}

func TestVote_MajorityForReceiver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	id := f.open(t)

	for _, juror := range f.jurors {
		_, err := f.svc.Vote(ctx, juror, id, false)
		require.NoError(t, err)
	}

	d, err := f.svc.GetDispute(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Receiver", d.Winner.String())
	assert.Equal(t, ledger.OutcomeDisputeReceiverWin, f.engine.resolved[id])
	assert.Equal(t, []domain.UserID{f.driver}, f.identity.deducted)
}

func TestVote_TieIsADraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	id := f.open(t)

	_, err := f.svc.Vote(ctx, f.jurors[0], id, true)
	require.NoError(t, err)
	d, err := f.svc.Vote(ctx, f.jurors[1], id, false)
	require.NoError(t, err)

	assert.True(t, d.Resolved)
	assert.Equal(t, "Draw", d.Winner.String())
	assert.Equal(t, ledger.OutcomeDisputeDraw, f.engine.resolved[id])
	// A draw penalizes nobody.
	assert.Empty(t, f.identity.deducted)
}

func TestVote_Gates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	id := f.open(t)

	t.Run("parties may not vote", func(t *testing.T) {
		_, err := f.svc.Vote(ctx, f.driver, id, true)
		assert.True(t, domerrors.HasCode(err, domerrors.CodeSelfInterest))
		_, err = f.svc.Vote(ctx, f.receiver, id, false)
		assert.True(t, domerrors.HasCode(err, domerrors.CodeSelfInterest))
	})

	t.Run("non-driver is rejected", func(t *testing.T) {
		_, err := f.svc.Vote(ctx, domain.NewUserID(), id, true)
		assert.True(t, domerrors.HasCode(err, domerrors.CodeUnauthorized))
	})

	t.Run("out-of-region driver is rejected", func(t *testing.T) {
		faraway := domain.NewUserID()
		f.identity.drivers[faraway] = true
		f.identity.geo[faraway] = "dr5ru7z"
		_, err := f.svc.Vote(ctx, faraway, id, true)
		assert.True(t, domerrors.HasCode(err, domerrors.CodeRegionMismatch))
	})

	t.Run("delivery-region driver may vote", func(t *testing.T) {
		destSide := domain.NewUserID()
		f.identity.drivers[destSide] = true
		f.identity.geo[destSide] = destRegion
		_, err := f.svc.Vote(ctx, destSide, id, true)
		require.NoError(t, err)
	})

	t.Run("double votes are rejected", func(t *testing.T) {
		_, err := f.svc.Vote(ctx, f.jurors[0], id, true)
		require.NoError(t, err)
		_, err = f.svc.Vote(ctx, f.jurors[0], id, false)
		assert.True(t, domerrors.HasCode(err, domerrors.CodeDuplicate))
	})

	t.Run("resolved dispute accepts no votes", func(t *testing.T) {
		d, err := f.svc.Vote(ctx, f.jurors[1], id, true)
		require.NoError(t, err)
		require.True(t, d.Resolved)

		_, err = f.svc.Vote(ctx, f.jurors[2], id, true)
		assert.True(t, domerrors.HasCode(err, domerrors.CodeWrongState))
	})
}

func TestVote_QuorumAfterOrderAlreadySettled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	id := f.open(t)

	// The order settled on an earlier attempt whose record write was lost;
	// the record must still catch up when quorum is reached again.
	f.engine.resolved = map[domain.RequestID]ledger.Outcome{id: ledger.OutcomeDisputeDriverWin}

	_, err := f.svc.Vote(ctx, f.jurors[0], id, true)
	require.NoError(t, err)
	d, err := f.svc.Vote(ctx, f.jurors[1], id, true)
	require.NoError(t, err)
	assert.True(t, d.Resolved)
	assert.Equal(t, "Driver", d.Winner.String())
}

func TestListOpenInRegion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	f.open(t)

	open, err := f.svc.ListOpenInRegion(ctx, f.jurors[0])
	require.NoError(t, err)
	assert.Len(t, open, 1)

	// Drivers on the delivery side see the dispute too.
	destSide := domain.NewUserID()
	f.identity.drivers[destSide] = true
	f.identity.geo[destSide] = destRegion
	open, err = f.svc.ListOpenInRegion(ctx, destSide)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	// The disputed order's own driver is in region but has a stake.
	open, err = f.svc.ListOpenInRegion(ctx, f.driver)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = f.svc.ListOpenInRegion(ctx, f.shipper)
	assert.True(t, domerrors.HasCode(err, domerrors.CodeUnauthorized))
}
