package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "taskschedd/pkg/logx"
)

// fileStore keeps run history in <prefix>.runs.jsonl (append-only JSON Lines).
//
// The newest maxRuns records are mirrored in memory for queries. Once the
// file holds about twice that many lines it is compacted down to the mirror.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	path    string
	f       *os.File
	runs    []RunRecord // oldest first, at most maxRuns
	maxRuns int
	lines   int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	runsPath := filepath.Join(dir, base) + ".runs.jsonl"

	maxRuns := cfg.MaxRuns
	if maxRuns <= 0 {
		maxRuns = defaultMaxRuns
	}
	s := &fileStore{log: log, path: runsPath, maxRuns: maxRuns}

	if err := s.replay(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	f, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.f = f
	log.Debug("run history opened", logx.String("path", runsPath), logx.Int("runs", len(s.runs)))
	return s, nil
}

// replay loads existing records. Malformed lines are skipped.
func (s *fileStore) replay() error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		s.lines++
		var r RunRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.TaskID == "" {
			continue
		}
		s.keep(r)
	}
	return sc.Err()
}

func (s *fileStore) keep(r RunRecord) {
	s.runs = append(s.runs, r)
	if over := len(s.runs) - s.maxRuns; over > 0 {
		s.runs = append(s.runs[:0], s.runs[over:]...)
	}
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("run history file closed")
	}
	if err := json.NewEncoder(s.f).Encode(r); err != nil {
		return err
	}
	s.keep(r)
	s.lines++
	if s.lines >= 2*s.maxRuns {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("run history compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentRuns(ctx context.Context, taskID string, limit int) ([]RunRecord, error) {
	_ = ctx
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RunRecord, 0, min(limit, len(s.runs)))
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if taskID == "" || s.runs[i].TaskID == taskID {
			out = append(out, s.runs[i])
		}
	}
	return out, nil
}

// compactLocked rewrites the file with the in-memory records only.
func (s *fileStore) compactLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := writeRuns(f, s.runs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = s.f.Close()
	s.f = nil

	// Reopen even if the rename failed so appends keep working.
	renameErr := os.Rename(tmp, s.path)
	nf, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.f = nf
	if renameErr != nil {
		return renameErr
	}
	s.lines = len(s.runs)
	return nil
}

func writeRuns(w io.Writer, runs []RunRecord) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, r := range runs {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return bw.Flush()
}
