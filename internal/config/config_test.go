package config

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const sampleYAML = `
logging:
  level: debug
  console: true
dispatcher:
  tolerance: 500ms
storage:
  driver: sqlite
  path: ./runs.db
  busy_timeout: 3s
tasks:
  - id: clock
    schedule: 1m
    message: tick
  - id: nightly
    schedule: "0 3 * * *"
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestDecodeYAMLAndJSON(t *testing.T) {
	t.Parallel()

	y, err := Decode("cfg.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if y.Logging.Level != "debug" || !y.Logging.Console {
		t.Fatalf("logging = %+v", y.Logging)
	}
	if got := y.Dispatcher.EffectiveTolerance(); got != 500*time.Millisecond {
		t.Fatalf("tolerance = %v", got)
	}
	if got := y.Dispatcher.EffectiveLoopBackoff(); got != DefaultLoopBackoff {
		t.Fatalf("loop backoff = %v", got)
	}
	if y.Storage == nil || y.Storage.Driver != "sqlite" || y.Storage.BusyTimeout != "3s" {
		t.Fatalf("storage = %+v", y.Storage)
	}
	if len(y.Tasks) != 2 || y.Tasks[1].Schedule != "0 3 * * *" {
		t.Fatalf("tasks = %+v", y.Tasks)
	}

	j, err := Decode("cfg.json", []byte(`{"dispatcher":{"tolerance":"2s"},"tasks":[{"id":"a","schedule":"@hourly"}]}`))
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if j.Dispatcher.EffectiveTolerance() != 2*time.Second || j.Storage != nil || len(j.Tasks) != 1 {
		t.Fatalf("json cfg = %+v", j)
	}

	empty, err := Decode("empty.yml", nil)
	if err != nil {
		t.Fatalf("empty yaml: %v", err)
	}
	if empty.Dispatcher.EffectiveTolerance() != DefaultTolerance {
		t.Fatalf("default tolerance = %v", empty.Dispatcher.EffectiveTolerance())
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, file, body string
	}{
		{"unknown json field", "c.json", `{"dispatcher":{"tolerence":"1s"}}`},
		{"unknown yaml field", "c.yaml", "scheduler:\n  enabled: true\n"},
		{"trailing data", "c.json", `{} {}`},
		{"broken yaml", "c.yml", "tasks: [\n"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tc.file, []byte(tc.body)); err == nil {
				t.Fatalf("Decode(%q) succeeded", tc.body)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	ok := &Config{Tasks: []TaskConfig{{ID: "a", Schedule: "10s"}, {ID: "b", Schedule: "@daily", StartAfter: "0s"}}}
	if err := Validate(ok); err != nil {
		t.Fatalf("Validate(ok): %v", err)
	}

	cases := []struct {
		name string
		cfg  *Config
		want string
	}{
		{"nil", nil, "nil"},
		{"bad tolerance", &Config{Dispatcher: DispatcherConfig{Tolerance: "soon"}}, "dispatcher.tolerance"},
		{"negative backoff", &Config{Dispatcher: DispatcherConfig{LoopBackoff: "-1s"}}, "dispatcher.loop_backoff"},
		{"unknown driver", &Config{Storage: &StorageConfig{Driver: "redis"}}, "storage.driver"},
		{"missing id", &Config{Tasks: []TaskConfig{{Schedule: "1m"}}}, "tasks[0].id"},
		{"bad schedule", &Config{Tasks: []TaskConfig{{ID: "x", Schedule: "often"}}}, "tasks[0].schedule"},
		{"bad stall_after", &Config{Dispatcher: DispatcherConfig{StallAfter: "-1m"}}, "dispatcher.stall_after"},
		{"bad status timeout", &Config{Status: StatusConfig{ReadTimeout: "5"}}, "status.read_timeout"},
		{"bad start_after", &Config{Tasks: []TaskConfig{{ID: "x", Schedule: "1m", StartAfter: "later"}}}, "start_after"},
	}
	for _, tc := range cases {
		err := Validate(tc.cfg)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err = %v, want mention of %q", tc.name, err, tc.want)
		}
	}

	dup := &Config{Tasks: []TaskConfig{{ID: "a", Schedule: "1m"}, {ID: " a ", Schedule: "2m"}}}
	if err := Validate(dup); !errors.Is(err, ErrDuplicateTask) {
		t.Fatalf("duplicate ids: err = %v", err)
	}
}

func TestTaskFirstDelay(t *testing.T) {
	t.Parallel()
	cases := map[string]time.Duration{
		"":     DefaultStartAfter,
		"0s":   0,
		"90s":  90 * time.Second,
		"nope": DefaultStartAfter,
	}
	for in, want := range cases {
		if got := (TaskConfig{StartAfter: in}).FirstDelay(); got != want {
			t.Fatalf("FirstDelay(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{
		Tasks: []TaskConfig{
			{ID: "keep", Schedule: "1m"},
			{ID: "edit", Schedule: "1m"},
			{ID: "drop", Schedule: "1m"},
		},
	}
	newCfg := &Config{
		Logging: LoggingConfig{Level: "debug"},
		Tasks: []TaskConfig{
			{ID: "keep", Schedule: "1m"},
			{ID: "edit", Schedule: "2m"},
			{ID: "new", Schedule: "@hourly"},
		},
	}

	sections, attrs, tasks := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(sections, ",") != "logging,tasks" {
		t.Fatalf("sections = %v", sections)
	}
	if len(attrs) == 0 {
		t.Fatal("expected log attrs")
	}
	if strings.Join(tasks.Added, ",") != "new" ||
		strings.Join(tasks.Changed, ",") != "edit" ||
		strings.Join(tasks.Removed, ",") != "drop" {
		t.Fatalf("tasks = %+v", tasks)
	}

	sections, _, tasks = SummarizeConfigChange(newCfg, newCfg)
	if len(sections) != 0 || !tasks.Empty() {
		t.Fatalf("identical configs: sections=%v tasks=%+v", sections, tasks)
	}

	withToken := &Config{Status: StatusConfig{Enabled: true, Token: "s3cret"}}
	sections, attrs, _ = SummarizeConfigChange(&Config{}, withToken)
	if strings.Join(sections, ",") != "status" {
		t.Fatalf("sections = %v", sections)
	}
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	ev := zl.Info()
	for _, f := range attrs {
		f(ev)
	}
	ev.Send()
	if strings.Contains(buf.String(), "s3cret") || !strings.Contains(buf.String(), `"status.token_set":true`) {
		t.Fatalf("status attrs = %s", buf.String())
	}
}

func TestManagerLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	m := NewManager(writeFile(t, dir, "good.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get() does not return the committed config")
	}

	bad := NewManager(writeFile(t, dir, "bad.yaml", "tasks:\n  - id: x\n    schedule: sometimes\n"))
	if _, err := bad.Load(); err == nil {
		t.Fatal("Load accepted an invalid schedule")
	}
	if bad.Get() != nil {
		t.Fatal("invalid config was committed")
	}

	missing := NewManager(filepath.Join(dir, "missing.json"))
	if _, err := missing.Load(); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: err = %v", err)
	}
}

func TestManagerPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.json")
	ch := m.Subscribe(1)
	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second)
	if got := <-ch; got != second {
		t.Fatal("slow subscriber did not receive the newest config")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed by Unsubscribe")
	}
	m.Unsubscribe(ch)
}

func TestManagerWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "taskschedd.yaml", sampleYAML)

	m := NewManager(path)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	updates := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("Watch did not return after cancel")
		}
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(200 * time.Millisecond)

	// An invalid edit is rejected and never published.
	writeFile(t, dir, "taskschedd.yaml", "dispatcher:\n  tolerance: whenever\n")
	time.Sleep(200 * time.Millisecond)
	select {
	case cfg := <-updates:
		t.Fatalf("invalid config published: %+v", cfg)
	default:
	}

	writeFile(t, dir, "taskschedd.yaml", sampleYAML+"  - id: added\n    schedule: 5m\n")
	select {
	case cfg := <-updates:
		if len(cfg.Tasks) != 3 || cfg.Tasks[2].ID != "added" {
			t.Fatalf("reloaded tasks = %+v", cfg.Tasks)
		}
		if m.Get() != cfg {
			t.Fatal("reloaded config not committed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after file change")
	}
}
