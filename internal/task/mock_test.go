package task

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aromatch/aromatch-api/internal/events"
	"github.com/aromatch/aromatch-api/internal/recovery"
	"github.com/aromatch/aromatch-api/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockTask is a configurable Task implementation for runner tests.
type mockTask struct {
	id        uuid.UUID
	taskType  string
	payload   []byte
	resource  string
	ExecuteFn func(ctx context.Context) error
}

func newMockTask() *mockTask {
	return &mockTask{
		id:       uuid.New(),
		taskType: "mock_task",
		payload:  []byte(`{}`),
		ExecuteFn: func(ctx context.Context) error {
			return nil
		},
	}
}

func (t *mockTask) ID() uuid.UUID  { return t.id }
func (t *mockTask) Type() string   { return t.taskType }
func (t *mockTask) Payload() []byte { return t.payload }
func (t *mockTask) Status() string { return store.TaskStatusPending }

func (t *mockTask) Execute(ctx context.Context) error {
	return t.ExecuteFn(ctx)
}

func (t *mockTask) Resource() string { return t.resource }

// memStore is an in-memory task and dead-letter store for runner tests.
type memStore struct {
	mu       sync.Mutex
	tasks    map[uuid.UUID]*store.TaskRecord
	letters  map[uuid.UUID]*store.DeadLetterRecord
	insertFn func(ctx context.Context, rec *store.TaskRecord) error
}

func newMemStore() *memStore {
	return &memStore{
		tasks:   make(map[uuid.UUID]*store.TaskRecord),
		letters: make(map[uuid.UUID]*store.DeadLetterRecord),
	}
}

func (s *memStore) FetchTask(_ context.Context, id uuid.UUID) (*store.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) InsertTask(ctx context.Context, rec *store.TaskRecord) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.tasks[rec.ID] = &cp
	return nil
}

func (s *memStore) DeleteTask(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *memStore) UpdateTaskStatus(_ context.Context, id uuid.UUID, status string, errorMsg string) error {
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

func (s *memStore) ListTasksByStatus(_ context.Context, status string, olderThan time.Duration) ([]*store.TaskRecord, error) {
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

func (s *memStore) MoveToDeadLetter(_ context.Context, entry *store.DeadLetterRecord) error {
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

func (s *memStore) ReplayDeadLetter(_ context.Context, entryID uuid.UUID, newTask *store.TaskRecord) error {
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

func (s *memStore) FetchDeadLetter(_ context.Context, id uuid.UUID) (*store.DeadLetterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.letters[id]
	if !ok {
		return nil, store.ErrDeadLetterNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) ListDeadLetters(_ context.Context) ([]*store.DeadLetterRecord, error) {
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

func (s *memStore) DeleteDeadLettersBefore(_ context.Context, cutoff time.Time) (int64, error) {
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

func (s *memStore) CountDeadLetters(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.letters)), nil
}

func (s *memStore) taskStatus(id uuid.UUID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[id]
	if !ok {
		return "", false
	}
	return rec.Status, true
}

// newTestRecoveryManager builds a real recovery manager over the store
// with delays small enough for tests.
func newTestRecoveryManager(t *testing.T, ms *memStore) *recovery.Manager {
	t.Helper()

	logger := testLogger()
	policy := recovery.NewRecoveryPolicy(recovery.DefaultPolicyConfig(),
		events.NewInMemoryAlertEmitter(logger), nil, logger)

	cfg := recovery.DefaultManagerConfig()
	cfg.Retry.MaxRetries = 2
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.JitterFactor = 0
	cfg.Breaker.Timeout = 0
	cfg.Breaker.FailureThreshold = 100

	return recovery.NewManager(cfg, ms, ms, policy, logger)
}
