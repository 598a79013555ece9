package config

import (
	"sort"
	"strings"

	logx "taskschedd/pkg/logx"
)

// TaskChanges lists task ids that differ between two configs.
type TaskChanges struct {
	Added   []string
	Changed []string
	Removed []string
}

func (c TaskChanges) Empty() bool {
	return len(c.Added) == 0 && len(c.Changed) == 0 && len(c.Removed) == 0
}

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) structured attrs for logging, and (3) the task ids that were added,
// changed or removed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, TaskChanges) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Dispatcher.Tolerance) != strings.TrimSpace(newCfg.Dispatcher.Tolerance) ||
		strings.TrimSpace(oldCfg.Dispatcher.LoopBackoff) != strings.TrimSpace(newCfg.Dispatcher.LoopBackoff) ||
		strings.TrimSpace(oldCfg.Dispatcher.StallAfter) != strings.TrimSpace(newCfg.Dispatcher.StallAfter) {
		changed = append(changed, "dispatcher")
		attrs = append(attrs,
			logx.Duration("dispatcher.tolerance", newCfg.Dispatcher.EffectiveTolerance()),
			logx.Duration("dispatcher.loop_backoff", newCfg.Dispatcher.EffectiveLoopBackoff()),
			logx.Duration("dispatcher.stall_after", newCfg.Dispatcher.EffectiveStallAfter()),
		)
	}

	oldSt, newSt := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oldSt != newSt {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newSt.Driver),
			logx.String("storage.path", newSt.Path),
		)
	}

	// Never log the token itself.
	if oldCfg.Status != newCfg.Status {
		changed = append(changed, "status")
		attrs = append(attrs,
			logx.Bool("status.enabled", newCfg.Status.Enabled),
			logx.String("status.addr", strings.TrimSpace(newCfg.Status.Addr)),
			logx.Bool("status.token_set", strings.TrimSpace(newCfg.Status.Token) != ""),
		)
	}

	tasks := diffTasks(oldCfg.Tasks, newCfg.Tasks)
	if !tasks.Empty() {
		changed = append(changed, "tasks")
		attrs = append(attrs,
			logx.Int("tasks.added", len(tasks.Added)),
			logx.Int("tasks.changed", len(tasks.Changed)),
			logx.Int("tasks.removed", len(tasks.Removed)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, tasks
}

func derefStorage(st *StorageConfig) StorageConfig {
	if st == nil {
		return StorageConfig{}
	}
	return *st
}

func diffTasks(oldL, newL []TaskConfig) TaskChanges {
	oldM := make(map[string]uint64, len(oldL))
	for _, tc := range oldL {
		oldM[strings.TrimSpace(tc.ID)] = hashTask(tc)
	}
	newM := make(map[string]uint64, len(newL))
	for _, tc := range newL {
		newM[strings.TrimSpace(tc.ID)] = hashTask(tc)
	}

	var out TaskChanges
	for id, h := range newM {
		oh, ok := oldM[id]
		switch {
		case !ok:
			out.Added = append(out.Added, id)
		case oh != h:
			out.Changed = append(out.Changed, id)
		}
	}
	for id := range oldM {
		if _, ok := newM[id]; !ok {
			out.Removed = append(out.Removed, id)
		}
	}
	sort.Strings(out.Added)
	sort.Strings(out.Changed)
	sort.Strings(out.Removed)
	return out
}
