package targets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/common"
	"github.com/dmitrijs2005/loadgate/internal/dbx"
	"github.com/dmitrijs2005/loadgate/internal/server/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

const targetColumns = `id, user_id, host, token, verified_at, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(row rowScanner) (*models.Target, error) {
	t := &models.Target{}
	var verifiedAt sql.NullTime
	if err := row.Scan(&t.ID, &t.UserID, &t.Host, &t.Token, &verifiedAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		t.VerifiedAt = &verifiedAt.Time
	}
	return t, nil
}

func wrapRowErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	return fmt.Errorf("db error: %w", err)
}

func (r *PostgresRepository) Create(ctx context.Context, target *models.Target) (*models.Target, error) {
	query :=
		`INSERT INTO targets (user_id, host, token)
		 VALUES ($1, $2, $3)
		 RETURNING ` + targetColumns

	created, err := scanTarget(r.db.QueryRowContext(ctx, query, target.UserID, target.Host, target.Token))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("target already registered: %w", common.ErrConflict)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM targets WHERE id = $1`

	t, err := scanTarget(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrapRowErr(err)
	}
	return t, nil
}

func (r *PostgresRepository) FindVerified(ctx context.Context, userID int64, host string) (*models.Target, error) {
	query :=
		`SELECT ` + targetColumns + ` FROM targets
		 WHERE user_id = $1 AND host = $2 AND verified_at IS NOT NULL`

	t, err := scanTarget(r.db.QueryRowContext(ctx, query, userID, host))
	if err != nil {
		return nil, wrapRowErr(err)
	}
	return t, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM targets WHERE user_id = $1 ORDER BY host`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, id int64, at time.Time) (*models.Target, error) {
	query := `UPDATE targets SET verified_at = $2 WHERE id = $1 RETURNING ` + targetColumns

	t, err := scanTarget(r.db.QueryRowContext(ctx, query, id, at))
	if err != nil {
		return nil, wrapRowErr(err)
	}
	return t, nil
}
