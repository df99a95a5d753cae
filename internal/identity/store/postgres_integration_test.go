//go:build integration

package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geekship/internal/identity/models"
	"geekship/internal/identity/store"
	"geekship/pkg/domain"
)

// Requires TEST_DATABASE_URL pointing at a database with the schema applied.
func newPostgres(t *testing.T) *store.Postgres {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return store.NewPostgres(pool)
}

func TestPostgres_UserRoundTrip(t *testing.T) {
	ctx := context.Background()
	pg := newPostgres(t)

	user, err := models.NewUser(domain.NewUserID(), "Ada", "u4pruydq", "+31612345678", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, pg.CreateUser(ctx, user))

	assert.ErrorIs(t, pg.CreateUser(ctx, user), store.ErrDuplicate)

	got, err := pg.FindUser(ctx, user.UID)
	require.NoError(t, err)
	assert.Equal(t, user.Name, got.Name)
	assert.Equal(t, 5, got.RatingStars)

	got.Grant(models.RoleShipper)
	got.DeductStar()
	require.NoError(t, pg.UpdateUser(ctx, got))

	got, err = pg.FindUser(ctx, user.UID)
	require.NoError(t, err)
	assert.True(t, got.HasRole(models.RoleShipper))
	assert.Equal(t, 4, got.RatingStars)
}

func TestPostgres_RoleRequestRoundTrip(t *testing.T) {
	ctx := context.Background()
	pg := newPostgres(t)

	applicant, err := models.NewUser(domain.NewUserID(), "Ben", "u4pruydq", "+31612345679", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, pg.CreateUser(ctx, applicant))

	req := &models.RoleRequest{
		ApplicantUID: applicant.UID,
		Role:         models.RoleDriver,
		Status:       models.RequestPending,
		CreatedAt:    time.Now().UTC(),
	}
	id, err := pg.CreateRoleRequest(ctx, req)
	require.NoError(t, err)

	pending, err := pg.HasPendingRoleRequest(ctx, applicant.UID, models.RoleDriver)
	require.NoError(t, err)
	assert.True(t, pending)

	// The partial unique index blocks a second pending request.
	_, err = pg.CreateRoleRequest(ctx, &models.RoleRequest{
		ApplicantUID: applicant.UID,
		Role:         models.RoleDriver,
		Status:       models.RequestPending,
		CreatedAt:    time.Now().UTC(),
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	approver := domain.NewUserID()
	got, err := pg.FindRoleRequest(ctx, id)
	require.NoError(t, err)
	require.NoError(t, got.Resolve(approver, true, time.Now().UTC()))
	require.NoError(t, pg.UpdateRoleRequest(ctx, got))

	got, err = pg.FindRoleRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, got.Status)
	assert.Equal(t, approver, got.ApproverUID)
}
