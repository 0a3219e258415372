package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parishdesk/parishdesk/internal/platform/db"
	"github.com/parishdesk/parishdesk/internal/shared"
)

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

// WithTx runs fn against a transaction-bound repository. Uses
// RepeatableRead so the bulk import observes a consistent aggregate.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) GetParish(ctx context.Context, id int64) (Parish, error) {
	var p Parish
	err := r.db.QueryRow(ctx, `SELECT id, name, city, is_active, created_at, updated_at FROM parishes WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.City, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Parish{}, fmt.Errorf("directory: parish %d: %w", id, shared.ErrNotFound)
		}
		return Parish{}, err
	}
	return p, nil
}

const wardColumns = `id, parish_id, name, total_families, total_members, is_active, created_at, updated_at`

func scanWard(row pgx.Row) (Ward, error) {
	var w Ward
	err := row.Scan(&w.ID, &w.ParishID, &w.Name, &w.TotalFamilies, &w.TotalMembers, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (r *repository) GetWard(ctx context.Context, id int64) (Ward, error) {
	w, err := scanWard(r.db.QueryRow(ctx, `SELECT `+wardColumns+` FROM wards WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ward{}, fmt.Errorf("directory: ward %d: %w", id, shared.ErrNotFound)
		}
		return Ward{}, err
	}
	return w, nil
}

func (r *repository) EnsureWard(ctx context.Context, parishID int64, name string) (Ward, error) {
	w, err := scanWard(r.db.QueryRow(ctx, `SELECT `+wardColumns+` FROM wards WHERE parish_id = $1 AND name = $2`, parishID, name))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Ward{}, err
	}
	w, err = scanWard(r.db.QueryRow(ctx, `
		INSERT INTO wards (parish_id, name, total_families, total_members, is_active, created_at, updated_at)
		VALUES ($1, $2, 0, 0, TRUE, NOW(), NOW())
		RETURNING `+wardColumns, parishID, name))
	if err != nil {
		return Ward{}, fmt.Errorf("directory: ensure ward: %w", err)
	}
	return w, nil
}

func (r *repository) RecountWard(ctx context.Context, wardID int64) (Ward, error) {
	w, err := scanWard(r.db.QueryRow(ctx, `
		UPDATE wards SET
			total_families = (SELECT COUNT(*) FROM families WHERE ward_id = wards.id),
			total_members  = (SELECT COUNT(*) FROM parishioners WHERE ward_id = wards.id AND is_active),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+wardColumns, wardID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ward{}, fmt.Errorf("directory: ward %d: %w", wardID, shared.ErrNotFound)
		}
		return Ward{}, fmt.Errorf("directory: recount ward: %w", err)
	}
	return w, nil
}

func (r *repository) GetFamily(ctx context.Context, id int64) (Family, error) {
	var f Family
	err := r.db.QueryRow(ctx, `SELECT id, ward_id, name, head_name, created_by, created_at FROM families WHERE id = $1`, id).
		Scan(&f.ID, &f.WardID, &f.Name, &f.HeadName, &f.CreatedBy, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Family{}, fmt.Errorf("directory: family %d: %w", id, shared.ErrNotFound)
		}
		return Family{}, err
	}
	return f, nil
}

func (r *repository) CreateFamily(ctx context.Context, family Family) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO families (ward_id, name, head_name, created_by, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id`,
		family.WardID, family.Name, family.HeadName, family.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, mapFKError("directory: create family", err)
	}
	return id, nil
}

func (r *repository) CreateParishioner(ctx context.Context, p Parishioner) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO parishioners (account_id, parish_id, ward_id, family_id, first_name, last_name, phone, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, NOW(), NOW())
		RETURNING id`,
		p.AccountID, p.ParishID, p.WardID, p.FamilyID, p.FirstName, p.LastName, p.Phone, p.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, mapFKError("directory: create parishioner", err)
	}
	return id, nil
}

func (r *repository) GetParishioner(ctx context.Context, id int64) (Parishioner, error) {
	var p Parishioner
	err := r.db.QueryRow(ctx, `
		SELECT id, account_id, parish_id, ward_id, family_id, first_name, last_name, phone, is_active, created_by, created_at, updated_at
		FROM parishioners WHERE id = $1`, id).
		Scan(&p.ID, &p.AccountID, &p.ParishID, &p.WardID, &p.FamilyID, &p.FirstName, &p.LastName, &p.Phone, &p.IsActive, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Parishioner{}, fmt.Errorf("directory: parishioner %d: %w", id, shared.ErrNotFound)
		}
		return Parishioner{}, err
	}
	return p, nil
}

func (r *repository) DeleteParishioner(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM parishioners WHERE id = $1`, id)
	return err
}

func (r *repository) CreateAdminProfile(ctx context.Context, profile AdminProfile) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO parish_admins (account_id, parish_id, title, created_by, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id`,
		profile.AccountID, profile.ParishID, profile.Title, profile.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, mapFKError("directory: create admin profile", err)
	}
	return id, nil
}

func (r *repository) DeleteAdminProfile(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM parish_admins WHERE id = $1`, id)
	return err
}

func mapFKError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("%s: %w", op, shared.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
