package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"taskschedd/internal/task/schedule"
)

const (
	DefaultTolerance   = time.Second
	DefaultLoopBackoff = 250 * time.Millisecond

	// DefaultStartAfter is the delay before the first run of an interval
	// task that does not set start_after.
	DefaultStartAfter = 10 * time.Second
)

var ErrDuplicateTask = errors.New("duplicate task id")

// Validate checks durations, schedules and task ids. It does not touch the
// file system.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if _, err := ParseDurationField("dispatcher.tolerance", cfg.Dispatcher.Tolerance); err != nil {
		return err
	}
	if _, err := ParseDurationField("dispatcher.stall_after", cfg.Dispatcher.StallAfter); err != nil {
		return err
	}
	if _, err := ParseDurationField("dispatcher.loop_backoff", cfg.Dispatcher.LoopBackoff); err != nil {
		return err
	}
	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none", "off", "disabled", "file", "sqlite":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", st.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			return err
		}
	}

	if _, err := ParseDurationField("status.read_timeout", cfg.Status.ReadTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("status.idle_timeout", cfg.Status.IdleTimeout); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(cfg.Tasks))
	for i, tc := range cfg.Tasks {
		path := fmt.Sprintf("tasks[%d]", i)
		id := strings.TrimSpace(tc.ID)
		if id == "" {
			return fmt.Errorf("%s.id: required", path)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%s.id: %w: %q", path, ErrDuplicateTask, id)
		}
		seen[id] = struct{}{}
		if _, err := schedule.Parse(tc.Schedule); err != nil {
			return fmt.Errorf("%s.schedule: %w", path, err)
		}
		if _, err := ParseDurationField(path+".start_after", tc.StartAfter); err != nil {
			return err
		}
	}
	return nil
}

// EffectiveTolerance returns the effective dispatcher tolerance.
func (c DispatcherConfig) EffectiveTolerance() time.Duration {
	d, err := ParseDurationOrDefault("dispatcher.tolerance", c.Tolerance, DefaultTolerance)
	if err != nil {
		return DefaultTolerance
	}
	return d
}

// EffectiveStallAfter returns the stall threshold, or 0 when unset.
func (c DispatcherConfig) EffectiveStallAfter() time.Duration {
	d, err := ParseDurationOrDefault("dispatcher.stall_after", c.StallAfter, 0)
	if err != nil {
		return 0
	}
	return d
}

// EffectiveLoopBackoff returns the effective loop backoff.
func (c DispatcherConfig) EffectiveLoopBackoff() time.Duration {
	d, err := ParseDurationOrDefault("dispatcher.loop_backoff", c.LoopBackoff, DefaultLoopBackoff)
	if err != nil {
		return DefaultLoopBackoff
	}
	return d
}

// FirstDelay returns the delay before the first run of an interval task.
// An explicit "0s" runs the task right away.
func (tc TaskConfig) FirstDelay() time.Duration {
	if strings.TrimSpace(tc.StartAfter) == "" {
		return DefaultStartAfter
	}
	d, err := ParseDurationField("start_after", tc.StartAfter)
	if err != nil {
		return DefaultStartAfter
	}
	return d
}

// ParseDurationField parses a non-negative Go duration. Empty means zero.
// path names the field in errors.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
