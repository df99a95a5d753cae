package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"geekship/internal/identity/models"
	"geekship/pkg/domain"
)

// Postgres backs the registry for multi-instance deployments.
//
// Schema:
//
//	CREATE TABLE users (
//	    uid uuid PRIMARY KEY,
//	    name text NOT NULL,
//	    phone_number text NOT NULL,
//	    service_geohash text NOT NULL,
//	    roles smallint[] NOT NULL DEFAULT '{}',
//	    rating_stars int NOT NULL DEFAULT 5,
//	    created_at timestamptz NOT NULL
//	);
//	CREATE TABLE role_requests (
//	    id bigint GENERATED ALWAYS AS IDENTITY (START WITH 0 MINVALUE 0) PRIMARY KEY,
//	    applicant_uid uuid NOT NULL REFERENCES users(uid),
//	    role smallint NOT NULL,
//	    status smallint NOT NULL DEFAULT 0,
//	    approver_uid uuid,
//	    created_at timestamptz NOT NULL,
//	    resolved_at timestamptz
//	);
//	CREATE UNIQUE INDEX role_requests_pending_uniq
//	    ON role_requests (applicant_uid, role) WHERE status = 0;
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (uid, name, phone_number, service_geohash, roles, rating_stars, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := p.db.Exec(ctx, query,
		user.UID.String(), user.Name, user.PhoneNumber, user.ServiceGeoHash,
		rolesToSlice(user.Roles), user.RatingStars, user.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *Postgres) FindUser(ctx context.Context, uid domain.UserID) (*models.User, error) {
	query := `
		SELECT uid, name, phone_number, service_geohash, roles, rating_stars, created_at
		FROM users WHERE uid = $1
	`
	return scanUser(p.db.QueryRow(ctx, query, uid.String()))
}

func (p *Postgres) UpdateUser(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users SET name = $2, phone_number = $3, service_geohash = $4, roles = $5, rating_stars = $6
		WHERE uid = $1
	`
	tag, err := p.db.Exec(ctx, query,
		user.UID.String(), user.Name, user.PhoneNumber, user.ServiceGeoHash,
		rolesToSlice(user.Roles), user.RatingStars)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateRoleRequest(ctx context.Context, req *models.RoleRequest) (domain.RequestID, error) {
	query := `
		INSERT INTO role_requests (applicant_uid, role, status, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var id int64
	err := p.db.QueryRow(ctx, query,
		req.ApplicantUID.String(), int16(req.Role), int16(req.Status), req.CreatedAt).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, err
	}
	req.ID = domain.RequestID(id)
	return req.ID, nil
}

func (p *Postgres) FindRoleRequest(ctx context.Context, id domain.RequestID) (*models.RoleRequest, error) {
	query := `
		SELECT id, applicant_uid, role, status, COALESCE(approver_uid::text, ''), created_at,
		       COALESCE(resolved_at, 'epoch'::timestamptz)
		FROM role_requests WHERE id = $1
	`
	return scanRoleRequest(p.db.QueryRow(ctx, query, int64(id)))
}

func (p *Postgres) UpdateRoleRequest(ctx context.Context, req *models.RoleRequest) error {
	query := `
		UPDATE role_requests SET status = $2, approver_uid = $3, resolved_at = $4
		WHERE id = $1
	`
	tag, err := p.db.Exec(ctx, query,
		int64(req.ID), int16(req.Status), req.ApproverUID.String(), req.ResolvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) HasPendingRoleRequest(ctx context.Context, uid domain.UserID, role models.Role) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM role_requests
			WHERE applicant_uid = $1 AND role = $2 AND status = 0
		)
	`
	var exists bool
	err := p.db.QueryRow(ctx, query, uid.String(), int16(role)).Scan(&exists)
	return exists, err
}

func (p *Postgres) ListRoleRequests(ctx context.Context) ([]*models.RoleRequest, error) {
	query := `
		SELECT id, applicant_uid, role, status, COALESCE(approver_uid::text, ''), created_at,
		       COALESCE(resolved_at, 'epoch'::timestamptz)
		FROM role_requests ORDER BY id
	`
	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.RoleRequest
	for rows.Next() {
		req, err := scanRoleRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user  models.User
		uid   string
		roles []int16
	)
	err := row.Scan(&uid, &user.Name, &user.PhoneNumber, &user.ServiceGeoHash,
		&roles, &user.RatingStars, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.UID, err = domain.ParseUserID(uid)
	if err != nil {
		return nil, err
	}
	user.Roles = make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		user.Roles[models.Role(r)] = true
	}
	return &user, nil
}

func scanRoleRequest(row rowScanner) (*models.RoleRequest, error) {
	var (
		req      models.RoleRequest
		id       int64
		uid      string
		approver string
		role     int16
		status   int16
	)
	err := row.Scan(&id, &uid, &role, &status, &approver, &req.CreatedAt, &req.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	req.ID = domain.RequestID(id)
	req.Role = models.Role(role)
	req.Status = models.RequestStatus(status)
	req.ApplicantUID, err = domain.ParseUserID(uid)
	if err != nil {
		return nil, err
	}
	if approver != "" {
		req.ApproverUID, err = domain.ParseUserID(approver)
		if err != nil {
			return nil, err
		}
	}
	return &req, nil
}

func rolesToSlice(roles map[models.Role]bool) []int16 {
	out := make([]int16, 0, len(roles))
	for role, ok := range roles {
		if ok {
			out = append(out, int16(role))
		}
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
