package db

import (
	"context"
	"time"

	"matchpass/internal/types"
)

// Lease rows are reclaimed only once expired, so a slow run keeps its window.
const acquireJobLockSQL = `
INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
   SET worker_id = EXCLUDED.worker_id, locked_at = EXCLUDED.locked_at, expires_at = EXCLUDED.expires_at
 WHERE job_locks.expires_at < $3`

const releaseJobLockSQL = `DELETE FROM job_locks WHERE id = $1 AND worker_id = $2`

// JobLockRepository leases maintenance windows such as
// "topup_daily_credits:2026-05-14T09" to one worker at a time.
type JobLockRepository struct {
	db  DBTX
	now func() time.Time
}

func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Acquire reports false, without error, while another worker's lease is live.
// expires_at is computed here because Go durations are not PG intervals.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID, workerID string, ttl time.Duration) (bool, error) {
	now := r.now()
	tag, err := r.db.Exec(ctx, acquireJobLockSQL, lockID, workerID, now, now.Add(ttl))
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release drops workerID's lease so the window can be retried before it
// expires. A lease already reclaimed by another worker is left alone.
func (r *JobLockRepository) Release(ctx context.Context, lockID, workerID string) error {
	if _, err := r.db.Exec(ctx, releaseJobLockSQL, lockID, workerID); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release job lock", err)
	}
	return nil
}

const (
	startJobRunSQL = `
INSERT INTO job_runs (job_type, started_at, status)
VALUES ($1, NOW(), 'running')
RETURNING id`

	finishJobRunSQL = `
UPDATE job_runs
   SET finished_at = NOW(), status = $2, items_count = $3, error = $4
 WHERE id = $1`
)

// maxRunErrorLen bounds the error text kept per run.
const maxRunErrorLen = 2000

// JobRunRepository keeps the job_runs history that operators read to see
// when top-ups and expiry reports last ran.
type JobRunRepository struct {
	db DBTX
}

func NewJobRunRepository(db DBTX) *JobRunRepository {
	return &JobRunRepository{db: db}
}

func (r *JobRunRepository) Start(ctx context.Context, jobType string) (int64, error) {
	var id int64
	if err := r.db.QueryRow(ctx, startJobRunSQL, jobType).Scan(&id); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job run", err)
	}
	return id, nil
}

// Finish closes run id with status "success" or "failed". jobErr, when set,
// is stored truncated.
func (r *JobRunRepository) Finish(ctx context.Context, id int64, status string, items int, jobErr error) error {
	var msg *string
	if jobErr != nil {
		s := jobErr.Error()
		if len(s) > maxRunErrorLen {
			s = s[:maxRunErrorLen]
		}
		msg = &s
	}

	tag, err := r.db.Exec(ctx, finishJobRunSQL, id, status, items, msg)
	switch {
	case err != nil:
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job run", err)
	case tag.RowsAffected() == 0:
		return types.NewAppError(types.ErrCodeInternalUnexpected, "job run not found", nil)
	}
	return nil
}
