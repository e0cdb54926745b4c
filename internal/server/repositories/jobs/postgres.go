package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/common"
	"github.com/dmitrijs2005/loadgate/internal/dbx"
	"github.com/dmitrijs2005/loadgate/internal/server/models"
)

const jobColumns = `id, user_id, target, port, duration, job_type, status, params, external_id, started_at, expires_at, completed_at, error_message, created_at`

// effectiveStatus mirrors models.Job.EffectiveStatus in SQL; $2 is "now".
const effectiveStatus = `CASE WHEN status = 'running' AND expires_at <= $2 THEN 'completed' ELSE status END`

// DB is what the repository needs: plain queries plus transactions.
// *sql.DB satisfies it.
type DB interface {
	dbx.DBTX
	dbx.Beginner
}

type PostgresRepository struct {
	db DB
}

func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	job := &models.Job{}
	var (
		port         sql.NullInt64
		status       string
		params       []byte
		externalID   sql.NullString
		completedAt  sql.NullTime
		errorMessage sql.NullString
	)

	err := row.Scan(&job.ID, &job.UserID, &job.Target, &port, &job.Duration, &job.JobType, &status,
		&params, &externalID, &job.StartedAt, &job.ExpiresAt, &completedAt, &errorMessage, &job.CreatedAt)
	if err != nil {
		return nil, err
	}

	job.Status = models.JobStatus(status)
	if port.Valid {
		p := int(port.Int64)
		job.Port = &p
	}
	if len(params) > 0 {
		job.Params = params
	}
	if externalID.Valid {
		job.ExternalID = &externalID.String
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	if errorMessage.Valid {
		job.ErrorMessage = &errorMessage.String
	}
	return job, nil
}

func countLive(ctx context.Context, db dbx.DBTX, userID int64, now time.Time) (int, error) {
	query :=
		`SELECT COUNT(*) FROM jobs
		 WHERE user_id = $1 AND status = 'running' AND expires_at > $2`

	var n int
	if err := db.QueryRowContext(ctx, query, userID, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) CountLive(ctx context.Context, userID int64, now time.Time) (int, error) {
	return countLive(ctx, r.db, userID, now)
}

// CreateWithinLimit serializes inserts per owner with a transaction-scoped
// advisory lock, recounts live jobs and inserts only below max.
func (r *PostgresRepository) CreateWithinLimit(ctx context.Context, job *models.Job, max int, now time.Time) (*models.Job, error) {
	var created *models.Job

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, job.UserID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		n, err := countLive(ctx, tx, job.UserID, now)
		if err != nil {
			return err
		}
		if n >= max {
			return ErrLimitReached
		}

		query :=
			`INSERT INTO jobs (user_id, target, port, duration, job_type, status, params, external_id, started_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING ` + jobColumns

		var params any
		if len(job.Params) > 0 {
			params = string(job.Params)
		}

		created, err = scanJob(tx.QueryRowContext(ctx, query,
			job.UserID, job.Target, job.Port, job.Duration, job.JobType, string(job.Status),
			params, job.ExternalID, job.StartedAt, job.ExpiresAt))
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return job, nil
}

func (r *PostgresRepository) MarkStopped(ctx context.Context, id int64, completedAt time.Time, note *string) (*models.Job, error) {
	query :=
		`UPDATE jobs SET status = 'stopped', completed_at = $2, error_message = COALESCE($3, error_message)
		 WHERE id = $1 AND status = 'running' AND expires_at > $2
		 RETURNING ` + jobColumns

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id, completedAt, note))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return job, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID int64, now time.Time, filter ListFilter) ([]*models.Job, error) {
	var status any
	if filter.Status != nil {
		status = string(*filter.Status)
	}

	query :=
		`SELECT ` + jobColumns + ` FROM jobs
		 WHERE user_id = $1 AND ($3::text IS NULL OR ` + effectiveStatus + ` = $3)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $4 OFFSET $5`

	rows, err := r.db.QueryContext(ctx, query, userID, now, status, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) CompleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query :=
		`UPDATE jobs SET status = 'completed', completed_at = expires_at
		 WHERE status = 'running' AND expires_at <= $1`

	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
