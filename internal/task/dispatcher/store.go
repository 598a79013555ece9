package dispatcher

import (
	"slices"
	"sort"
	"time"
)

// taskStore keeps tasks sorted ascending by due time. Tasks with equal due
// times keep insertion order.
//
// Not safe for concurrent use; the dispatcher serializes every call under its
// mutex.
type taskStore struct {
	tasks []*Task
}

// upper returns the index of the first task due strictly after due.
func (s *taskStore) upper(due time.Time) int {
	return sort.Search(len(s.tasks), func(i int) bool {
		return s.tasks[i].Due.After(due)
	})
}

// lower returns the index of the first task not due before due.
func (s *taskStore) lower(due time.Time) int {
	return sort.Search(len(s.tasks), func(i int) bool {
		return !s.tasks[i].Due.Before(due)
	})
}

func (s *taskStore) insert(t *Task) {
	s.tasks = slices.Insert(s.tasks, s.upper(t.Due), t)
}

// indexOf locates t by binary search on its due time, then by identity within
// the band of tasks sharing that due time.
func (s *taskStore) indexOf(t *Task) int {
	for i := s.lower(t.Due); i < len(s.tasks) && s.tasks[i].Due.Equal(t.Due); i++ {
		if s.tasks[i] == t {
			return i
		}
	}
	return -1
}

func (s *taskStore) contains(t *Task) bool {
	return s.indexOf(t) >= 0
}

func (s *taskStore) remove(t *Task) bool {
	i := s.indexOf(t)
	if i < 0 {
		return false
	}
	s.tasks = slices.Delete(s.tasks, i, i+1)
	return true
}

// removeByID removes the first task (in due order) with the given id.
func (s *taskStore) removeByID(id string) (*Task, bool) {
	for i, t := range s.tasks {
		if t.ID == id {
			s.tasks = slices.Delete(s.tasks, i, i+1)
			return t, true
		}
	}
	return nil, false
}

func (s *taskStore) peek() *Task {
	if len(s.tasks) == 0 {
		return nil
	}
	return s.tasks[0]
}

func (s *taskStore) len() int { return len(s.tasks) }

func (s *taskStore) clear() {
	clear(s.tasks)
	s.tasks = s.tasks[:0]
}

// each calls fn for every task in due order until fn returns false.
func (s *taskStore) each(fn func(*Task) bool) {
	for _, t := range s.tasks {
		if !fn(t) {
			return
		}
	}
}
