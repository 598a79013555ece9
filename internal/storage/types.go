package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

const defaultMaxRuns = 10000

// Config configures storage.
//
// Driver values:
//   - "file": append-only JSON lines next to Path
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty, "none", "off" or "disabled", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// MaxRuns bounds the sqlite history. 0 means the default.
	MaxRuns int
}

// RunRecord is one finished task run.
type RunRecord struct {
	RunID    string        `json:"run_id"`
	TaskID   string        `json:"task_id"`
	Due      time.Time     `json:"due"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
}
