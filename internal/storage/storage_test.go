package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "taskschedd/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " Off ", "disabled"} {
		st, err := Open(Config{Driver: driver}, logx.Logger{})
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("file driver without path accepted")
	}
}

func sampleRun(task string, i int, ok bool) RunRecord {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	r := RunRecord{
		RunID:    fmt.Sprintf("run-%s-%d", task, i),
		TaskID:   task,
		Due:      base.Add(time.Duration(i) * time.Minute),
		Started:  base.Add(time.Duration(i)*time.Minute + 3*time.Millisecond),
		Duration: 42 * time.Millisecond,
		OK:       ok,
	}
	if !ok {
		r.Error = "boom"
	}
	return r
}

func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := st.AppendRun(ctx, sampleRun("a", i, i%2 == 0)); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
		if err := st.AppendRun(ctx, sampleRun("b", i, true)); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}

	all, err := st.RecentRuns(ctx, "", 3)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(all) != 3 || all[0].RunID != "run-b-4" || all[1].RunID != "run-a-4" {
		t.Fatalf("recent runs = %+v", all)
	}

	a, err := st.RecentRuns(ctx, "a", 10)
	if err != nil {
		t.Fatalf("RecentRuns(a): %v", err)
	}
	if len(a) != 5 {
		t.Fatalf("got %d runs for a, want 5", len(a))
	}
	got, want := a[1], sampleRun("a", 3, false)
	if got.RunID != want.RunID || got.OK || got.Error != "boom" ||
		got.Duration != want.Duration || !got.Due.Equal(want.Due) || !got.Started.Equal(want.Started) {
		t.Fatalf("run = %+v, want %+v", got, want)
	}

	if none, err := st.RecentRuns(ctx, "a", 0); err != nil || len(none) != 0 {
		t.Fatalf("limit 0 = %v, %v", none, err)
	}
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "hist", "taskschedd.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	exerciseStore(t, st)
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// History survives a reopen.
	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	runs, err := st.RecentRuns(context.Background(), "b", 1)
	if err != nil || len(runs) != 1 || runs[0].RunID != "run-b-4" {
		t.Fatalf("after reopen = %+v, %v", runs, err)
	}
}

func TestFileStoreCompacts(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs")
	st, err := Open(Config{Driver: "file", Path: path, MaxRuns: 4}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < 9; i++ {
		if err := st.AppendRun(ctx, sampleRun("c", i, true)); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}
	runs, _ := st.RecentRuns(ctx, "", 100)
	if len(runs) != 4 || runs[0].RunID != "run-c-8" || runs[3].RunID != "run-c-5" {
		t.Fatalf("runs = %+v", runs)
	}

	b, err := os.ReadFile(path + ".runs.jsonl")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := 0
	for _, c := range b {
		if c == '\n' {
			lines++
		}
	}
	if lines >= 8 {
		t.Fatalf("file has %d lines; expected compaction", lines)
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: 2 * time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	exerciseStore(t, st)
}

func TestSQLitePrune(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs.db")
	st, err := openSQLite(Config{Path: path, MaxRuns: 3}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	s := st.(*sqliteStore)

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		if err := s.AppendRun(ctx, sampleRun("p", i, true)); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}
	if err := s.prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}
	runs, err := s.RecentRuns(ctx, "p", 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 3 || runs[2].RunID != "run-p-3" {
		t.Fatalf("runs after prune = %+v", runs)
	}
}
