package pending

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. It is the default for
// tests and single-process development; it does not survive restarts.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func recordKey(correlationID string, requestedAt int64) string {
	return correlationID + ":" + strconv.FormatInt(requestedAt, 10)
}

func (s *MemoryStore) Insert(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(rec.CorrelationID, rec.RequestedAt)
	if _, exists := s.records[key]; exists {
		return ErrDuplicateKey
	}
	cp := *rec
	cp.Status = StatusPending
	s.records[key] = &cp
	return nil
}

func (s *MemoryStore) Resolve(_ context.Context, correlationID string, requestedAt int64, res Resolution) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[recordKey(correlationID, requestedAt)]
	if !ok || rec.Status != StatusPending {
		return false, nil
	}
	rec.Status = res.Decision
	rec.Decision = res.Decision
	rec.Feedback = res.Feedback
	rec.ResolvedAt = res.ResolvedAt
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, correlationID string, requestedAt int64) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[recordKey(correlationID, requestedAt)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ListPending(_ context.Context, sessionID string) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Record
	for _, rec := range s.records {
		if rec.SessionID == sessionID && rec.Status == StatusPending {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, rec := range s.records {
		if rec.Status != StatusPending && rec.ResolvedAt.Before(before) {
			delete(s.records, key)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
