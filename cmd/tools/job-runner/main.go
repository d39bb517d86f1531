// Package main implements the job-runner CLI for invoking ledger maintenance
// tasks directly, bypassing the Lambda shim.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --task=topup_daily_credits
//	go run ./cmd/tools/job-runner --task=report_grant_expiry --reference-time=2026-01-15T02:00:00Z
//	go run ./cmd/tools/job-runner --dry-run --task=topup_daily_credits
//	go run ./cmd/tools/job-runner --list
//
// DATABASE_URL is read from the environment or a .env file. The run takes the
// same hourly job lock as the maintenance Lambda, so a manual run and a
// scheduled run in the same window do not both execute.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"matchpass/internal/db"
	"matchpass/internal/ledger"
	"matchpass/internal/scheduler"
	"matchpass/internal/types"
)

var taskDescriptions = map[scheduler.TaskType]string{
	scheduler.TaskTopUpDailyCredits: "Raise non-premium credit balances to the daily cap (once per UTC day)",
	scheduler.TaskReportGrantExpiry: "Count unlock grants that lapsed in the trailing 24h",
}

const defaultDailyCap = 5

// fixedClock pins both the lock window and the task's notion of "today".
type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func main() {
	taskFlag := flag.String("task", "", "Task type to execute (e.g., topup_daily_credits)")
	refTimeFlag := flag.String("reference-time", "", "Override reference time (RFC3339, e.g., 2026-01-15T02:00:00Z)")
	listFlag := flag.Bool("list", false, "List all available task types and exit")
	dryRunFlag := flag.Bool("dry-run", false, "Print the JSON payload without executing")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Invoke ledger maintenance tasks directly, bypassing Lambda.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nUse --list to see all available task types.\n")
	}
	flag.Parse()

	if *listFlag {
		printAvailableTasks(os.Stderr)
		return
	}

	payload, clock, err := parseArgs(*taskFlag, *refTimeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		printAvailableTasks(os.Stderr)
		os.Exit(1)
	}

	if *dryRunFlag {
		if err := printPayload(os.Stdout, payload); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file loaded (this is fine in production)", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := executeTask(ctx, payload, clock, logger)
	if err != nil {
		logger.Error("task execution failed", "task", string(payload.Task), "error", err)
		os.Exit(1)
	}

	logger.Info("task execution finished",
		"task", string(result.Task),
		"skipped", result.Skipped,
		"items", result.Items,
		"lock_id", result.LockID,
	)
}

// parseArgs validates the task name and reference time.
func parseArgs(task, refTime string) (scheduler.MaintenancePayload, types.Clock, error) {
	if task == "" {
		return scheduler.MaintenancePayload{}, nil, fmt.Errorf("--task is required")
	}
	taskType := scheduler.TaskType(task)
	if _, ok := taskDescriptions[taskType]; !ok {
		return scheduler.MaintenancePayload{}, nil, fmt.Errorf("unknown task type %q", task)
	}

	var clock types.Clock = types.RealClock{}
	if refTime != "" {
		t, err := time.Parse(time.RFC3339, refTime)
		if err != nil {
			return scheduler.MaintenancePayload{}, nil, fmt.Errorf("invalid --reference-time %q: expected RFC3339: %w", refTime, err)
		}
		clock = fixedClock{t: t.UTC()}
	}
	return scheduler.MaintenancePayload{Task: taskType}, clock, nil
}

// dailyCapFromEnv mirrors LEDGER_DAILY_FREE_CAP without loading the full
// worker configuration.
func dailyCapFromEnv() (int, error) {
	raw := os.Getenv("LEDGER_DAILY_FREE_CAP")
	if raw == "" {
		return defaultDailyCap, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("LEDGER_DAILY_FREE_CAP must be a non-negative integer, got %q", raw)
	}
	return n, nil
}

// executeTask wires the same Runner the maintenance Lambda builds, against a
// local pool. Metrics go nowhere; counts are logged.
func executeTask(ctx context.Context, payload scheduler.MaintenancePayload, clock types.Clock, logger *slog.Logger) (scheduler.Result, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return scheduler.Result{}, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	dailyCap, err := dailyCapFromEnv()
	if err != nil {
		return scheduler.Result{}, err
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("creating database pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return scheduler.Result{}, fmt.Errorf("pinging database: %w", err)
	}
	logger.Info("database connection established")

	runner := &scheduler.Runner{
		Tasks:      ledger.NewMaintenance(db.NewMaintenanceStore(pool), dailyCap, clock, types.NoopMetrics{}, logger),
		JobLock:    db.NewJobLockRepository(pool),
		JobHistory: db.NewJobRunRepository(pool),
		WorkerID:   "job-runner-" + uuid.NewString(),
		Clock:      clock,
		Logger:     logger,
	}
	return runner.Run(ctx, payload)
}

func printAvailableTasks(w io.Writer) {
	fmt.Fprintf(w, "Available task types:\n\n")
	for _, t := range scheduler.Tasks() {
		fmt.Fprintf(w, "  %-22s %s\n", string(t), taskDescriptions[t])
	}
	fmt.Fprintln(w)
}

// printPayload writes the payload as it would be sent by EventBridge.
func printPayload(w io.Writer, payload scheduler.MaintenancePayload) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
