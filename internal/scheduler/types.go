// Package scheduler runs the periodic ledger tasks. EventBridge (or the local
// job runner) sends a MaintenancePayload; Runner takes a per-window job lock,
// records the run in job_runs and dispatches to the matching task.
package scheduler

// TaskType identifies which maintenance task a payload invokes.
type TaskType string

const (
	// TaskTopUpDailyCredits raises non-premium balances to the daily cap.
	TaskTopUpDailyCredits TaskType = "topup_daily_credits"
	// TaskReportGrantExpiry publishes the count of grants that lapsed in the
	// last completed hour.
	TaskReportGrantExpiry TaskType = "report_grant_expiry"
)

// Tasks lists every TaskType the runner accepts.
func Tasks() []TaskType {
	return []TaskType{TaskTopUpDailyCredits, TaskReportGrantExpiry}
}

// MaintenancePayload is the JSON payload sent by the EventBridge rule:
//
//	{"task": "topup_daily_credits"}
type MaintenancePayload struct {
	Task TaskType `json:"task"`
}
