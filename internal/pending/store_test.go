package pending

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// storeFactories lets the same contract tests run against every
// implementation that can be exercised without external services.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "pending.db"))
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
	}
}

func testRecord(correlationID string, requestedAt int64) *Record {
	return &Record{
		CorrelationID:    correlationID,
		RequestedAt:      requestedAt,
		SessionID:        "sess-1",
		ToolName:         "update_document",
		ToolInput:        []byte(`{"doctype":"Sales Order","fields":{"grand_total":100}}`),
		Operation:        "update",
		DocType:          "Sales Order",
		RiskLevel:        "high",
		RiskScore:        1.0,
		OperationPreview: "update Sales Order SO-0001",
		Reasoning:        "update operation (base risk 0.4); touches sensitive field \"grand_total\" (+0.4)",
		ExpiresAt:        time.Now().Add(5 * time.Minute),
	}
}

func TestStore_ResolveExactlyOnce(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()
			ctx := context.Background()

			rec := testRecord("corr-1", 1700000000000)
			if err := s.Insert(ctx, rec); err != nil {
				t.Fatal(err)
			}

			res := Resolution{Decision: StatusApproved, Feedback: "ok", ResolvedAt: time.Now()}
			won, err := s.Resolve(ctx, "corr-1", 1700000000000, res)
			if err != nil {
				t.Fatal(err)
			}
			if !won {
				t.Fatal("first resolve should win")
			}

			won, err = s.Resolve(ctx, "corr-1", 1700000000000, Resolution{Decision: StatusRejected, ResolvedAt: time.Now()})
			if err != nil {
				t.Fatal(err)
			}
			if won {
				t.Fatal("second resolve must be a no-op")
			}

			got, err := s.Get(ctx, "corr-1", 1700000000000)
			if err != nil {
				t.Fatal(err)
			}
			if got.Status != StatusApproved || got.Decision != StatusApproved {
				t.Fatalf("first writer's decision must stand, got %s/%s", got.Status, got.Decision)
			}
			if got.Feedback != "ok" {
				t.Fatalf("expected feedback preserved, got %q", got.Feedback)
			}
		})
	}
}

func TestStore_ResolveUnknownKey(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()

			won, err := s.Resolve(context.Background(), "nope", 1, Resolution{Decision: StatusRejected, ResolvedAt: time.Now()})
			if err != nil {
				t.Fatal(err)
			}
			if won {
				t.Fatal("resolving an unknown key must report a miss")
			}
		})
	}
}

func TestStore_DuplicateInsert(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()
			ctx := context.Background()

			if err := s.Insert(ctx, testRecord("corr-1", 42)); err != nil {
				t.Fatal(err)
			}
			if err := s.Insert(ctx, testRecord("corr-1", 42)); err != ErrDuplicateKey {
				t.Fatalf("expected ErrDuplicateKey, got %v", err)
			}
			// Same correlation ID, different timestamp is a distinct key.
			if err := s.Insert(ctx, testRecord("corr-1", 43)); err != nil {
				t.Fatalf("distinct timestamp should insert: %v", err)
			}
		})
	}
}

func TestStore_ListPendingBySession(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()
			ctx := context.Background()

			a := testRecord("corr-a", 1)
			b := testRecord("corr-b", 2)
			other := testRecord("corr-c", 3)
			other.SessionID = "sess-2"

			for _, rec := range []*Record{a, b, other} {
				if err := s.Insert(ctx, rec); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := s.Resolve(ctx, "corr-b", 2, Resolution{Decision: StatusRejected, ResolvedAt: time.Now()}); err != nil {
				t.Fatal(err)
			}

			got, err := s.ListPending(ctx, "sess-1")
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[0].CorrelationID != "corr-a" {
				t.Fatalf("expected only corr-a pending for sess-1, got %+v", got)
			}
		})
	}
}

func TestStore_DeleteExpired(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			defer s.Close()
			ctx := context.Background()

			old := testRecord("corr-old", 1)
			live := testRecord("corr-live", 2)
			stillPending := testRecord("corr-pending", 3)
			for _, rec := range []*Record{old, live, stillPending} {
				if err := s.Insert(ctx, rec); err != nil {
					t.Fatal(err)
				}
			}

			longAgo := time.Now().Add(-time.Hour)
			if _, err := s.Resolve(ctx, "corr-old", 1, Resolution{Decision: StatusRejected, ResolvedAt: longAgo}); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Resolve(ctx, "corr-live", 2, Resolution{Decision: StatusApproved, ResolvedAt: time.Now()}); err != nil {
				t.Fatal(err)
			}

			n, err := s.DeleteExpired(ctx, time.Now().Add(-time.Minute))
			if err != nil {
				t.Fatal(err)
			}
			if n != 1 {
				t.Fatalf("expected 1 reaped record, got %d", n)
			}

			// Pending records are never reaped.
			got, err := s.Get(ctx, "corr-pending", 3)
			if err != nil {
				t.Fatal(err)
			}
			if got == nil || got.Status != StatusPending {
				t.Fatal("pending record must survive the reaper")
			}
		})
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ctx, testRecord("corr-1", 99)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "corr-1", 99)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Status != StatusPending {
		t.Fatal("pending approval must survive a restart")
	}
	if got.ToolName != "update_document" {
		t.Fatalf("unexpected tool name %q", got.ToolName)
	}
}
