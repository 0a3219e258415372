package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parishdesk/parishdesk/internal/directory"
	"github.com/parishdesk/parishdesk/internal/platform/db"
	"github.com/parishdesk/parishdesk/internal/shared"
)

// ImportTx exposes the writes of one family import inside a single
// database transaction. Unlike the single-principal saga, account, role
// edge and profile rows here share one atomic boundary, so any hard
// failure rolls the whole batch back.
type ImportTx interface {
	EnsureWard(ctx context.Context, parishID int64, name string) (directory.Ward, error)
	GetWard(ctx context.Context, id int64) (directory.Ward, error)
	InsertFamily(ctx context.Context, family directory.Family) (int64, error)
	InsertAccount(ctx context.Context, email, name, passwordHash string, tenantID int64) (int64, error)
	BindRole(ctx context.Context, userID, roleID int64, assignedBy *int64) error
	InsertMember(ctx context.Context, member directory.Parishioner) (int64, error)
	RecountWard(ctx context.Context, wardID int64) (directory.Ward, error)
}

// ImportStore opens the transaction boundary for a family import.
type ImportStore interface {
	WithinTx(ctx context.Context, fn func(context.Context, ImportTx) error) error
}

type importStore struct {
	pool *pgxpool.Pool
}

// NewImportStore constructs the PostgreSQL backed import store.
func NewImportStore(pool *pgxpool.Pool) ImportStore {
	return &importStore{pool: pool}
}

func (s *importStore) WithinTx(ctx context.Context, fn func(context.Context, ImportTx) error) error {
	return db.WithTxOptions(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		return fn(ctx, &importTx{tx: tx})
	})
}

type importTx struct {
	tx pgx.Tx
}

const importWardColumns = `id, parish_id, name, total_families, total_members, is_active, created_at, updated_at`

func (t *importTx) scanWard(row pgx.Row) (directory.Ward, error) {
	var w directory.Ward
	err := row.Scan(&w.ID, &w.ParishID, &w.Name, &w.TotalFamilies, &w.TotalMembers, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (t *importTx) GetWard(ctx context.Context, id int64) (directory.Ward, error) {
	w, err := t.scanWard(t.tx.QueryRow(ctx, `SELECT `+importWardColumns+` FROM wards WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return directory.Ward{}, fmt.Errorf("provision: ward %d: %w", id, shared.ErrNotFound)
		}
		return directory.Ward{}, err
	}
	return w, nil
}

func (t *importTx) EnsureWard(ctx context.Context, parishID int64, name string) (directory.Ward, error) {
	w, err := t.scanWard(t.tx.QueryRow(ctx, `SELECT `+importWardColumns+` FROM wards WHERE parish_id = $1 AND name = $2`, parishID, name))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return directory.Ward{}, err
	}
	return t.scanWard(t.tx.QueryRow(ctx, `
		INSERT INTO wards (parish_id, name, total_families, total_members, is_active, created_at, updated_at)
		VALUES ($1, $2, 0, 0, TRUE, NOW(), NOW())
		RETURNING `+importWardColumns, parishID, name))
}

func (t *importTx) InsertFamily(ctx context.Context, family directory.Family) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO families (ward_id, name, head_name, created_by, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id`,
		family.WardID, family.Name, family.HeadName, family.CreatedBy,
	).Scan(&id)
	return id, importPgError("provision: insert family", err)
}

func (t *importTx) InsertAccount(ctx context.Context, email, name, passwordHash string, tenantID int64) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO accounts (email, name, password_hash, tenant_id, is_tenant_admin, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, TRUE, NOW(), NOW())
		RETURNING id`,
		email, name, passwordHash, tenantID,
	).Scan(&id)
	return id, importPgError("provision: insert member account", err)
}

func (t *importTx) BindRole(ctx context.Context, userID, roleID int64, assignedBy *int64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, assigned_by, status, assigned_at)
		VALUES ($1, $2, $3, 'ACTIVE', NOW())`,
		userID, roleID, assignedBy)
	return importPgError("provision: bind member role", err)
}

func (t *importTx) InsertMember(ctx context.Context, member directory.Parishioner) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO parishioners (account_id, parish_id, ward_id, family_id, first_name, last_name, phone, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, NOW(), NOW())
		RETURNING id`,
		member.AccountID, member.ParishID, member.WardID, member.FamilyID, member.FirstName, member.LastName, member.Phone, member.CreatedBy,
	).Scan(&id)
	return id, importPgError("provision: insert member", err)
}

func (t *importTx) RecountWard(ctx context.Context, wardID int64) (directory.Ward, error) {
	w, err := t.scanWard(t.tx.QueryRow(ctx, `
		UPDATE wards SET
			total_families = (SELECT COUNT(*) FROM families WHERE ward_id = wards.id),
			total_members  = (SELECT COUNT(*) FROM parishioners WHERE ward_id = wards.id AND is_active),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+importWardColumns, wardID))
	if err != nil {
		return directory.Ward{}, fmt.Errorf("provision: recount ward: %w", err)
	}
	return w, nil
}

func importPgError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", op, shared.ErrDuplicate)
		case "23503":
			return fmt.Errorf("%s: %w", op, shared.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
