package recovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aromatch/aromatch-api/internal/store"
)

// memoryStore is an in-memory implementation of the task, dead-letter and
// error-log stores, used to test the recovery layer without a database.
// The move and replay operations are atomic under a single mutex, matching
// the transactional contract of the real stores.
type memoryStore struct {
	mu      sync.Mutex
	tasks   map[uuid.UUID]*store.TaskRecord
	letters map[uuid.UUID]*store.DeadLetterRecord
	logs    []*store.ErrorLogRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		tasks:   make(map[uuid.UUID]*store.TaskRecord),
		letters: make(map[uuid.UUID]*store.DeadLetterRecord),
	}
}

func (s *memoryStore) FetchTask(_ context.Context, id uuid.UUID) (*store.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memoryStore) InsertTask(_ context.Context, rec *store.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[rec.ID]; ok {
		return store.ErrDuplicate
	}
	cp := *rec
	s.tasks[rec.ID] = &cp
	return nil
}

func (s *memoryStore) DeleteTask(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *memoryStore) UpdateTaskStatus(_ context.Context, id uuid.UUID, status string, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[id]
	if !ok {
		return nil
	}
	rec.Status = status
	rec.ErrorMessage = errorMsg
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memoryStore) ListTasksByStatus(_ context.Context, status string, olderThan time.Duration) ([]*store.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var out []*store.TaskRecord
	for _, rec := range s.tasks {
		if rec.Status != status {
			continue
		}
		if olderThan > 0 && !rec.UpdatedAt.Before(cutoff) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memoryStore) MoveToDeadLetter(_ context.Context, entry *store.DeadLetterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[entry.TaskID]; !ok {
		return store.ErrTaskNotFound
	}
	cp := *entry
	s.letters[entry.ID] = &cp
	delete(s.tasks, entry.TaskID)
	return nil
}

func (s *memoryStore) ReplayDeadLetter(_ context.Context, entryID uuid.UUID, newTask *store.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.letters[entryID]; !ok {
		return store.ErrDeadLetterNotFound
	}
	cp := *newTask
	s.tasks[newTask.ID] = &cp
	delete(s.letters, entryID)
	return nil
}

func (s *memoryStore) FetchDeadLetter(_ context.Context, id uuid.UUID) (*store.DeadLetterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.letters[id]
	if !ok {
		return nil, store.ErrDeadLetterNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memoryStore) ListDeadLetters(_ context.Context) ([]*store.DeadLetterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*store.DeadLetterRecord, 0, len(s.letters))
	for _, rec := range s.letters {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MovedAt.After(out[j].MovedAt) })
	return out, nil
}

func (s *memoryStore) DeleteDeadLettersBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, rec := range s.letters {
		if rec.MovedAt.Before(cutoff) {
			delete(s.letters, id)
			removed++
		}
	}
	return removed, nil
}

func (s *memoryStore) CountDeadLetters(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.letters)), nil
}

func (s *memoryStore) InsertErrorLog(_ context.Context, rec *store.ErrorLogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.logs = append(s.logs, &cp)
	return nil
}

func (s *memoryStore) ListErrorLogs(_ context.Context, category string, from, to time.Time) ([]*store.ErrorLogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*store.ErrorLogRecord
	for _, rec := range s.logs {
		if category != "" && rec.Category != category {
			continue
		}
		if rec.CreatedAt.Before(from) || !rec.CreatedAt.Before(to) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) errorLogCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}
