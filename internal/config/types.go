package config

// Config is the on-disk configuration of taskschedd. It is read from JSON or
// YAML (see Manager.Parse) with unknown fields rejected.
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Dispatcher DispatcherConfig `json:"dispatcher"`

	// Storage enables run history. If omitted, history is not recorded.
	Storage *StorageConfig `json:"storage,omitempty"`
	Status  StatusConfig   `json:"status,omitempty"`

	Tasks []TaskConfig `json:"tasks,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DispatcherConfig tunes the task dispatcher.
//
// All durations are Go duration strings (e.g. "500ms", "1s").
//
// Defaults (when fields are omitted/zero):
//   - tolerance: "1s"
//   - loop_backoff: "250ms"
type DispatcherConfig struct {
	// Tolerance is how early a task may run relative to its due time.
	Tolerance string `json:"tolerance,omitempty"`
	// LoopBackoff spaces out worker iterations after an internal failure.
	LoopBackoff string `json:"loop_backoff,omitempty"`
	// StallAfter fails the systemd watchdog while one task runs longer
	// than this. Empty disables the check.
	StallAfter string `json:"stall_after,omitempty"`
}

// StorageConfig controls the run history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./taskschedd.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// TaskConfig declares a recurring task registered at startup.
//
// Schedule accepts anything schedule.Parse does: cron ("*/5 * * * *",
// "@hourly"), Go durations ("55m") or HH:MM intervals ("02:30").
// StartAfter delays the first run of interval tasks; cron tasks always start
// at their next trigger.
type TaskConfig struct {
	ID         string `json:"id"`
	Schedule   string `json:"schedule"`
	StartAfter string `json:"start_after,omitempty"`
	Message    string `json:"message,omitempty"`
	Disabled   bool   `json:"disabled,omitempty"`
}

// StatusConfig controls the optional read-only HTTP status server.
//
// Security note:
//   - Prefer binding to localhost (default "127.0.0.1:6060").
//   - A non-loopback address needs a token or an explicit allow_insecure.
type StatusConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout string `json:"read_timeout,omitempty"`
	IdleTimeout string `json:"idle_timeout,omitempty"`
}
