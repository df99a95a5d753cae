package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"geekship/internal/servicerequest/models"
	"geekship/pkg/domain"
)

// Postgres backs the engine for multi-instance deployments.
//
// Schema:
//
//	CREATE TABLE service_requests (
//	    id bigint GENERATED ALWAYS AS IDENTITY (START WITH 0 MINVALUE 0) PRIMARY KEY,
//	    shipper_uid uuid NOT NULL,
//	    receiver_uid uuid NOT NULL,
//	    description text NOT NULL,
//	    origin_geohash text NOT NULL,
//	    dest_geohash text NOT NULL,
//	    origin_approx_geohash text NOT NULL,
//	    dest_approx_geohash text NOT NULL,
//	    insurable_value bigint NOT NULL,
//	    service_fee bigint NOT NULL,
//	    pickup_at timestamptz NOT NULL,
//	    delivery_at timestamptz NOT NULL,
//	    auction_window_ns bigint NOT NULL,
//	    auction_ends_at timestamptz NOT NULL DEFAULT 'epoch',
//	    status smallint NOT NULL DEFAULT 0,
//	    driver_uid uuid,
//	    bid_driver_uid uuid,
//	    bid_amount bigint,
//	    bid_seq int NOT NULL DEFAULT 0,
//	    bid_placed_at timestamptz,
//	    edit_seq int NOT NULL DEFAULT 0,
//	    created_at timestamptz NOT NULL,
//	    updated_at timestamptz NOT NULL
//	);
//	CREATE INDEX service_requests_status_idx ON service_requests (status);
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

const srColumns = `
	id, shipper_uid, receiver_uid, description, origin_geohash, dest_geohash,
	origin_approx_geohash, dest_approx_geohash,
	insurable_value, service_fee, pickup_at, delivery_at, auction_window_ns,
	auction_ends_at, status,
	COALESCE(driver_uid::text, ''), COALESCE(bid_driver_uid::text, ''),
	COALESCE(bid_amount, 0), bid_seq, COALESCE(bid_placed_at, 'epoch'::timestamptz),
	edit_seq, created_at, updated_at
`

func (p *Postgres) Create(ctx context.Context, sr *models.ServiceRequest) (domain.RequestID, error) {
	query := `
		INSERT INTO service_requests (
			shipper_uid, receiver_uid, description, origin_geohash, dest_geohash,
			origin_approx_geohash, dest_approx_geohash,
			insurable_value, service_fee, pickup_at, delivery_at, auction_window_ns,
			status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`
	var id int64
	err := p.db.QueryRow(ctx, query,
		sr.Shipper.String(), sr.Receiver.String(), sr.Description,
		sr.OriginGeoHash, sr.DestGeoHash,
		sr.OriginApproxGeoHash, sr.DestApproxGeoHash,
		int64(sr.CargoInsurableValue), int64(sr.ServiceFee),
		sr.RequestedPickupAt, sr.RequestedDeliveryAt, int64(sr.AuctionWindow),
		int16(sr.Status), sr.CreatedAt, sr.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	sr.ID = domain.RequestID(id)
	return sr.ID, nil
}

func (p *Postgres) Find(ctx context.Context, id domain.RequestID) (*models.ServiceRequest, error) {
	query := `SELECT ` + srColumns + ` FROM service_requests WHERE id = $1`
	return scanServiceRequest(p.db.QueryRow(ctx, query, int64(id)))
}

func (p *Postgres) Update(ctx context.Context, sr *models.ServiceRequest) error {
	query := `
		UPDATE service_requests SET
			description = $2, origin_geohash = $3, dest_geohash = $4,
			origin_approx_geohash = $5, dest_approx_geohash = $6,
			insurable_value = $7, service_fee = $8, pickup_at = $9, delivery_at = $10,
			auction_window_ns = $11, auction_ends_at = $12, status = $13,
			driver_uid = NULLIF($14, ''), bid_driver_uid = NULLIF($15, ''),
			bid_amount = $16, bid_seq = $17, bid_placed_at = $18, edit_seq = $19,
			updated_at = $20
		WHERE id = $1
	`
	var (
		driver, bidDriver string
		bidAmount         int64
		bidSeq            int
		bidPlacedAt       time.Time
	)
	if !sr.Driver.IsNil() {
		driver = sr.Driver.String()
	}
	if sr.Bid != nil {
		bidDriver = sr.Bid.Driver.String()
		bidAmount = int64(sr.Bid.Amount)
		bidSeq = sr.Bid.Seq
		bidPlacedAt = sr.Bid.PlacedAt
	}
	tag, err := p.db.Exec(ctx, query,
		int64(sr.ID), sr.Description, sr.OriginGeoHash, sr.DestGeoHash,
		sr.OriginApproxGeoHash, sr.DestApproxGeoHash,
		int64(sr.CargoInsurableValue), int64(sr.ServiceFee),
		sr.RequestedPickupAt, sr.RequestedDeliveryAt, int64(sr.AuctionWindow),
		sr.AuctionEndsAt, int16(sr.Status), driver,
		bidDriver, bidAmount, bidSeq, bidPlacedAt, sr.EditSeq, sr.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) List(ctx context.Context) ([]*models.ServiceRequest, error) {
	query := `SELECT ` + srColumns + ` FROM service_requests ORDER BY id`
	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectServiceRequests(rows)
}

func (p *Postgres) ListByStatus(ctx context.Context, status models.Status) ([]*models.ServiceRequest, error) {
	query := `SELECT ` + srColumns + ` FROM service_requests WHERE status = $1 ORDER BY id`
	rows, err := p.db.Query(ctx, query, int16(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectServiceRequests(rows)
}

func (p *Postgres) ListByParticipant(ctx context.Context, uid domain.UserID) ([]*models.ServiceRequest, error) {
	query := `
		SELECT ` + srColumns + `
		FROM service_requests
		WHERE shipper_uid = $1 OR receiver_uid = $1 OR driver_uid = $1
		ORDER BY id
	`
	rows, err := p.db.Query(ctx, query, uid.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectServiceRequests(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanServiceRequest(row rowScanner) (*models.ServiceRequest, error) {
	var (
		sr                 models.ServiceRequest
		id, insurable      int64
		fee, windowNS      int64
		status             int16
		shipper, receiver  string
		driver, bidDriver  string
		bidAmount          int64
		bidSeq             int
		bidPlacedAt        time.Time
	)
	err := row.Scan(&id, &shipper, &receiver, &sr.Description,
		&sr.OriginGeoHash, &sr.DestGeoHash,
		&sr.OriginApproxGeoHash, &sr.DestApproxGeoHash, &insurable, &fee,
		&sr.RequestedPickupAt, &sr.RequestedDeliveryAt, &windowNS,
		&sr.AuctionEndsAt, &status, &driver, &bidDriver,
		&bidAmount, &bidSeq, &bidPlacedAt, &sr.EditSeq, &sr.CreatedAt, &sr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sr.ID = domain.RequestID(id)
	if sr.Shipper, err = domain.ParseUserID(shipper); err != nil {
		return nil, err
	}
	if sr.Receiver, err = domain.ParseUserID(receiver); err != nil {
		return nil, err
	}
	sr.CargoInsurableValue = uint64(insurable)
	sr.ServiceFee = uint64(fee)
	sr.AuctionWindow = time.Duration(windowNS)
	sr.Status = models.Status(status)
	if driver != "" {
		uid, err := domain.ParseUserID(driver)
		if err != nil {
			return nil, err
		}
		sr.Driver = uid
	}
	if bidDriver != "" {
		uid, err := domain.ParseUserID(bidDriver)
		if err != nil {
			return nil, err
		}
		sr.Bid = &models.Bid{Driver: uid, Amount: uint64(bidAmount), Seq: bidSeq, PlacedAt: bidPlacedAt}
	}
	return &sr, nil
}

func collectServiceRequests(rows pgx.Rows) ([]*models.ServiceRequest, error) {
	var out []*models.ServiceRequest
	for rows.Next() {
		sr, err := scanServiceRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}
