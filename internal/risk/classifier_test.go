package risk

import (
	"strings"
	"testing"
)

func TestClassify_DeleteDraftSingle(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	a := c.Classify(Input{
		Operation:     "delete",
		DocType:       "Sales Order",
		DocumentState: "draft",
		Count:         1,
	})
	if a.Score != 0.9 {
		t.Fatalf("expected score 0.9, got %f", a.Score)
	}
	if a.Level != LevelHigh {
		t.Fatalf("expected high, got %s", a.Level)
	}
	if !a.RequiresApproval {
		t.Fatal("expected approval required for high risk")
	}
}

func TestClassify_CreateLowSensitivityBoundary(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	a := c.Classify(Input{
		Operation:     "create",
		Fields:        []string{"notes"},
		DocumentState: "draft",
		Count:         1,
	})
	if a.Score != 0.3 {
		t.Fatalf("expected score 0.3, got %f", a.Score)
	}
	// The low threshold is inclusive: exactly 0.3 is medium.
	if a.Level != LevelMedium {
		t.Fatalf("expected medium at boundary, got %s", a.Level)
	}
}

func TestClassify_ClampsAboveOne(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	a := c.Classify(Input{
		Operation:     "update",
		Fields:        []string{"grand_total"},
		DocumentState: "submitted",
		Count:         1,
	})
	// 0.4 base + 0.4 field + 0.3 state = 1.1, clamped.
	if a.Score != 1.0 {
		t.Fatalf("expected clamped score 1.0, got %f", a.Score)
	}
	if a.Level != LevelHigh {
		t.Fatalf("expected high, got %s", a.Level)
	}
}

func TestClassify_UnknownOperationDefault(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	a := c.Classify(Input{Operation: "frobnicate", Count: 1})
	if a.Score != 0.5 {
		t.Fatalf("expected default 0.5 for unknown operation, got %f", a.Score)
	}
	if a.Level != LevelMedium {
		t.Fatalf("expected medium, got %s", a.Level)
	}
	if !strings.Contains(a.Reasoning, "unknown operation") {
		t.Fatalf("reasoning should mention unknown operation: %q", a.Reasoning)
	}
}

func TestClassify_FieldSensitivityTakesMax(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	a := c.Classify(Input{
		Operation: "update",
		Fields:    []string{"notes", "status", "grand_total"},
		Count:     1,
	})
	if a.Factors.FieldSensitivity != 0.4 {
		t.Fatalf("expected max sensitivity 0.4, got %f", a.Factors.FieldSensitivity)
	}
}

func TestClassify_BulkScope(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	small := c.Classify(Input{Operation: "bulk_update", Count: 5})
	if small.Factors.OperationScope != 0.1 {
		t.Fatalf("expected +0.1 for small bulk, got %f", small.Factors.OperationScope)
	}
	if small.Factors.BulkCount != 5 {
		t.Fatalf("expected bulk count 5, got %d", small.Factors.BulkCount)
	}

	large := c.Classify(Input{Operation: "bulk_update", Count: 25})
	if large.Factors.OperationScope != 0.3 {
		t.Fatalf("expected +0.3 above bulk threshold, got %f", large.Factors.OperationScope)
	}

	single := c.Classify(Input{Operation: "bulk_update", Count: 1})
	if single.Factors.OperationScope != 0 {
		t.Fatalf("expected 0 for single scope, got %f", single.Factors.OperationScope)
	}
	if single.Factors.BulkCount != 0 {
		t.Fatalf("bulk count should be omitted for single scope, got %d", single.Factors.BulkCount)
	}
}

func TestClassify_OverridesMergeByKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SensitivityOverrides = map[string]Sensitivity{
		"notes": SensitivityHigh, // raise a default-low field
	}
	c := NewClassifier(cfg)

	raised := c.Classify(Input{Operation: "update", Fields: []string{"notes"}, Count: 1})
	if raised.Factors.FieldSensitivity != 0.4 {
		t.Fatalf("override should raise notes to high, got %f", raised.Factors.FieldSensitivity)
	}

	// Default table stays in effect for fields the override table does not name.
	untouched := c.Classify(Input{Operation: "update", Fields: []string{"grand_total"}, Count: 1})
	if untouched.Factors.FieldSensitivity != 0.4 {
		t.Fatalf("default table should still cover grand_total, got %f", untouched.Factors.FieldSensitivity)
	}
}

func TestClassify_ScoreAlwaysInRange(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	ops := []string{"create", "update", "submit", "cancel", "delete", "bulk_update", "workflow", "bogus"}
	states := []string{"draft", "submitted", "cancelled", ""}
	fieldSets := [][]string{nil, {"notes"}, {"status"}, {"grand_total"}, {"grand_total", "status"}}
	counts := []int{0, 1, 5, 100}

	for _, op := range ops {
		for _, st := range states {
			for _, fs := range fieldSets {
				for _, n := range counts {
					a := c.Classify(Input{Operation: op, DocumentState: st, Fields: fs, Count: n})
					if a.Score < 0 || a.Score > 1 {
						t.Fatalf("score %f out of range for op=%s state=%s fields=%v count=%d", a.Score, op, st, fs, n)
					}
				}
			}
		}
	}
}

func TestClassify_LevelMonotoneInScore(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	rank := map[Level]int{LevelLow: 0, LevelMedium: 1, LevelHigh: 2}

	// Walk score space via increasing document counts and sensitivities;
	// the derived level must never decrease as the score grows.
	prevScore := -1.0
	prevRank := -1
	inputs := []Input{
		{Operation: "create", Count: 1},
		{Operation: "create", Fields: []string{"status"}, Count: 1},
		{Operation: "update", Fields: []string{"status"}, Count: 1},
		{Operation: "update", Fields: []string{"grand_total"}, Count: 1},
		{Operation: "submit", Fields: []string{"grand_total"}, Count: 1},
		{Operation: "delete", Fields: []string{"grand_total"}, DocumentState: "submitted", Count: 100},
	}
	for _, in := range inputs {
		a := c.Classify(in)
		if a.Score < prevScore {
			t.Fatalf("test inputs must be ordered by score: %f < %f", a.Score, prevScore)
		}
		if rank[a.Level] < prevRank {
			t.Fatalf("level decreased while score increased: %s at %f", a.Level, a.Score)
		}
		prevScore = a.Score
		prevRank = rank[a.Level]
	}
}

func TestClassify_RequiresApprovalIffNotLow(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	low := c.Classify(Input{Operation: "create", Count: 1})
	if low.Level != LevelLow || low.RequiresApproval {
		t.Fatalf("create with no factors should be low/no-approval, got %s/%v", low.Level, low.RequiresApproval)
	}

	high := c.Classify(Input{Operation: "delete", Count: 1})
	if !high.RequiresApproval {
		t.Fatal("high risk must require approval")
	}
}

func TestClassify_ReasoningOrder(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	a := c.Classify(Input{
		Operation:     "update",
		Fields:        []string{"grand_total"},
		DocumentState: "submitted",
		Count:         25,
	})
	opIdx := strings.Index(a.Reasoning, "update operation")
	fieldIdx := strings.Index(a.Reasoning, "grand_total")
	stateIdx := strings.Index(a.Reasoning, "submitted")
	bulkIdx := strings.Index(a.Reasoning, "bulk operation")
	if opIdx < 0 || fieldIdx < 0 || stateIdx < 0 || bulkIdx < 0 {
		t.Fatalf("reasoning missing a factor: %q", a.Reasoning)
	}
	if !(opIdx < fieldIdx && fieldIdx < stateIdx && stateIdx < bulkIdx) {
		t.Fatalf("reasoning factors out of order: %q", a.Reasoning)
	}
}

func TestConfig_Validate(t *testing.T) {
	bad := Config{LowThreshold: 0.8, HighThreshold: 0.4}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for inverted thresholds")
	}

	badSens := DefaultConfig()
	badSens.SensitivityOverrides = map[string]Sensitivity{"x": "extreme"}
	if err := badSens.Validate(); err == nil {
		t.Fatal("expected error for invalid sensitivity")
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}
