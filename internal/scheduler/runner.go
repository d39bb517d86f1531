package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"matchpass/internal/types"
)

// LockTTL covers the longest expected run with margin.
const LockTTL = 15 * time.Minute

// Job run statuses stored in job_runs.status.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// LedgerTasks is implemented by *ledger.Maintenance.
type LedgerTasks interface {
	TopUpDaily(ctx context.Context) (int, error)
	ReportExpiredGrants(ctx context.Context) (int, error)
}

// JobLocker abstracts the distributed lock.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID string, workerID string) error
}

// JobHistorian abstracts the job history recording.
type JobHistorian interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, err error) error
}

// Runner executes maintenance payloads at most once per task per hour.
type Runner struct {
	Tasks      LedgerTasks
	JobLock    JobLocker
	JobHistory JobHistorian
	WorkerID   string
	Clock      types.Clock
	Logger     *slog.Logger
}

// Result summarizes one invocation.
type Result struct {
	Task    TaskType `json:"task"`
	Skipped bool     `json:"skipped"`
	Items   int      `json:"items"`
	LockID  string   `json:"lock_id"`
}

// Run processes one payload:
//  1. Validate the task.
//  2. Acquire the lock "task:YYYY-MM-DDTHH". A held lock is a skip, not an error.
//  3. Record the run start in job_runs. History failures do not block the task.
//  4. Dispatch, then record the outcome. A failed task releases its lock so
//     the same hour can be retried.
func (r *Runner) Run(ctx context.Context, payload MaintenancePayload) (Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := r.Clock
	if clock == nil {
		clock = types.RealClock{}
	}

	task := payload.Task
	res := Result{Task: task}
	if !knownTask(task) {
		return res, types.NewAppError(types.ErrCodeValidationInvalidBody,
			fmt.Sprintf("unknown maintenance task %q", task), nil)
	}

	now := clock.Now()
	res.LockID = fmt.Sprintf("%s:%s", task, now.Truncate(time.Hour).Format("2006-01-02T15"))
	logger = logger.With("task", string(task), "lock_id", res.LockID, "worker_id", r.WorkerID)

	acquired, err := r.JobLock.Acquire(ctx, res.LockID, r.WorkerID, LockTTL)
	if err != nil {
		return res, fmt.Errorf("acquiring job lock %s: %w", res.LockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock held for this hour, skipping",
			"retry_after", now.Truncate(time.Hour).Add(time.Hour))
		res.Skipped = true
		return res, nil
	}

	jobID, err := r.JobHistory.Start(ctx, string(task))
	if err != nil {
		logger.ErrorContext(ctx, "failed to start job history", "error", err)
		jobID = 0
	}

	items, execErr := r.dispatch(ctx, task)
	res.Items = items

	status := StatusSuccess
	if execErr != nil {
		status = StatusFailed
	}
	if jobID != 0 {
		if err := r.JobHistory.Finish(ctx, jobID, status, items, execErr); err != nil {
			logger.ErrorContext(ctx, "failed to finish job history", "job_id", jobID, "error", err)
		}
	}

	if execErr != nil {
		logger.ErrorContext(ctx, "maintenance task failed", "error", execErr)
		if err := r.JobLock.Release(context.WithoutCancel(ctx), res.LockID, r.WorkerID); err != nil {
			logger.ErrorContext(ctx, "failed to release job lock", "error", err)
		}
		return res, fmt.Errorf("task %s failed: %w", task, execErr)
	}

	logger.InfoContext(ctx, "maintenance task complete", "items", items)
	return res, nil
}

func (r *Runner) dispatch(ctx context.Context, task TaskType) (int, error) {
	switch task {
	case TaskTopUpDailyCredits:
		return r.Tasks.TopUpDaily(ctx)
	case TaskReportGrantExpiry:
		return r.Tasks.ReportExpiredGrants(ctx)
	}
	return 0, fmt.Errorf("no dispatch for task %q", task)
}

func knownTask(t TaskType) bool {
	for _, k := range Tasks() {
		if k == t {
			return true
		}
	}
	return false
}
