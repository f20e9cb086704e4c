package totem

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"classroll/internal/model"
	"classroll/internal/store"
)

const totemColumns = `id, name, location, room_id, is_active, last_seen_at, created_at`

// Repository persists totems in Postgres. Only the hash of an API key is
// ever stored.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTotem(row rowScanner) (*model.Totem, error) {
	var t model.Totem
	err := row.Scan(&t.ID, &t.Name, &t.Location, &t.RoomID, &t.Active, &t.LastSeenAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) Insert(ctx context.Context, t model.Totem, keyHash string) (*model.Totem, error) {
	saved, err := scanTotem(r.db.QueryRowContext(ctx, `
		INSERT INTO totems (id, name, location, room_id, api_key_hash, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+totemColumns,
		t.ID, t.Name, t.Location, t.RoomID, keyHash, t.Active))
	if store.IsForeignKeyViolation(err) {
		return nil, ErrUnknownRoom
	}
	return saved, err
}

func (r *Repository) Get(ctx context.Context, id string) (*model.Totem, error) {
	return scanTotem(r.db.QueryRowContext(ctx, `SELECT `+totemColumns+` FROM totems WHERE id = $1`, id))
}

func (r *Repository) ByKeyHash(ctx context.Context, keyHash string) (*model.Totem, error) {
	return scanTotem(r.db.QueryRowContext(ctx, `SELECT `+totemColumns+` FROM totems WHERE api_key_hash = $1`, keyHash))
}

func (r *Repository) List(ctx context.Context) ([]model.Totem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+totemColumns+` FROM totems ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.Totem
	for rows.Next() {
		t, err := scanTotem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}
	return res, rows.Err()
}

func (r *Repository) SetActive(ctx context.Context, id string, active bool) (*model.Totem, error) {
	return scanTotem(r.db.QueryRowContext(ctx, `
		UPDATE totems SET is_active = $2 WHERE id = $1
		RETURNING `+totemColumns, id, active))
}

func (r *Repository) SetKeyHash(ctx context.Context, id, keyHash string) (*model.Totem, error) {
	return scanTotem(r.db.QueryRowContext(ctx, `
		UPDATE totems SET api_key_hash = $2 WHERE id = $1
		RETURNING `+totemColumns, id, keyHash))
}

func (r *Repository) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE totems SET last_seen_at = $2 WHERE id = $1`, id, at)
	return err
}
