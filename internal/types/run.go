package types

import "time"

// Capture run states.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// CaptureRun is the status of one capture run started through the control API.
type CaptureRun struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	StoreURL   string     `json:"store_url"`
	Items      int        `json:"items"`
	Clicked    int        `json:"clicked"`
	Dropped    int64      `json:"dropped"`
	OutputFile string     `json:"output_file,omitempty"`
	ErrorCode  string     `json:"error_code,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
