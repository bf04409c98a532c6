// Package risk scores proposed document operations before execution.
// Scoring is additive over four factors (operation type, field
// sensitivity, document state, operation scope), clamped to [0,1], and
// mapped to a level through configurable thresholds.
package risk

import (
	"fmt"
	"strings"
)

// Level is the risk classification derived from a numeric score.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Sensitivity classifies how dangerous it is to touch a field.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// Input describes one proposed operation to classify.
type Input struct {
	Operation     string   // create, update, submit, cancel, delete, bulk_update, workflow
	DocType       string   // target document type, informational only
	Fields        []string // fields touched by the operation
	DocumentState string   // draft, submitted, cancelled
	Count         int      // number of documents affected; <=1 means single
}

// Factors breaks the final score into its additive contributions.
type Factors struct {
	FieldSensitivity float64 `json:"field_sensitivity"`
	DocumentState    float64 `json:"document_state"`
	OperationScope   float64 `json:"operation_scope"`
	BulkCount        int     `json:"bulk_count,omitempty"`
}

// Assessment is the classifier's verdict for a single operation.
type Assessment struct {
	Level            Level   `json:"level"`
	Score            float64 `json:"score"`
	Factors          Factors `json:"factors"`
	RequiresApproval bool    `json:"requires_approval"`
	Reasoning        string  `json:"reasoning"`
}

// Classifier computes risk assessments. It is pure and safe for
// concurrent use once constructed.
type Classifier struct {
	cfg         Config
	sensitivity map[string]Sensitivity
}

// NewClassifier creates a classifier with the given config. Zero-value
// thresholds are replaced by defaults, and the field sensitivity table
// is the default table with per-field overrides merged on top.
func NewClassifier(cfg Config) *Classifier {
	cfg.applyDefaults()

	// Merge overrides by individual field key; the default table stays
	// in effect for every field the override table does not name.
	table := make(map[string]Sensitivity, len(defaultFieldSensitivity)+len(cfg.SensitivityOverrides))
	for field, s := range defaultFieldSensitivity {
		table[field] = s
	}
	for field, s := range cfg.SensitivityOverrides {
		table[field] = s
	}

	return &Classifier{cfg: cfg, sensitivity: table}
}

// Classify scores the input and returns a complete assessment.
// It never fails for well-formed input.
func (c *Classifier) Classify(in Input) Assessment {
	base, known := operationBaseScores[in.Operation]
	if !known {
		base = unknownOperationScore
	}

	fieldScore, topField := c.fieldContribution(in.Fields)
	stateScore := documentStateScores[in.DocumentState]
	scopeScore, bulk := c.scopeContribution(in.Count)

	score := clamp01(base + fieldScore + stateScore + scopeScore)
	level := c.levelFor(score)

	factors := Factors{
		FieldSensitivity: fieldScore,
		DocumentState:    stateScore,
		OperationScope:   scopeScore,
	}
	if bulk {
		factors.BulkCount = in.Count
	}

	return Assessment{
		Level:            level,
		Score:            score,
		Factors:          factors,
		RequiresApproval: level != LevelLow,
		Reasoning:        c.buildReasoning(in, base, known, topField, fieldScore, bulk),
	}
}

// fieldContribution returns the score for the most sensitive touched
// field along with that field's name.
func (c *Classifier) fieldContribution(fields []string) (float64, string) {
	best := 0.0
	bestField := ""
	for _, f := range fields {
		s, ok := c.sensitivity[f]
		if !ok {
			s = SensitivityLow
		}
		v := sensitivityScores[s]
		if v > best {
			best = v
			bestField = f
		}
	}
	return best, bestField
}

func (c *Classifier) scopeContribution(count int) (float64, bool) {
	if count <= 1 {
		return 0, false
	}
	if count <= c.cfg.BulkThreshold {
		return bulkSmallScore, true
	}
	return bulkLargeScore, true
}

func (c *Classifier) levelFor(score float64) Level {
	switch {
	case score >= c.cfg.HighThreshold:
		return LevelHigh
	case score >= c.cfg.LowThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// buildReasoning assembles the human-readable explanation in fixed
// order: operation semantics, field sensitivity, document state, scope.
func (c *Classifier) buildReasoning(in Input, base float64, known bool, topField string, fieldScore float64, bulk bool) string {
	parts := make([]string, 0, 4)

	if known {
		parts = append(parts, fmt.Sprintf("%s operation (base risk %.1f)", in.Operation, base))
	} else {
		parts = append(parts, fmt.Sprintf("unknown operation %q (default risk %.1f)", in.Operation, base))
	}

	if fieldScore > 0 {
		parts = append(parts, fmt.Sprintf("touches sensitive field %q (+%.1f)", topField, fieldScore))
	} else if len(in.Fields) > 0 {
		parts = append(parts, "no sensitive fields touched")
	}

	switch in.DocumentState {
	case "submitted":
		parts = append(parts, "document is submitted (+0.3)")
	case "cancelled":
		parts = append(parts, "document is cancelled (+0.2)")
	}

	if bulk {
		if in.Count <= c.cfg.BulkThreshold {
			parts = append(parts, fmt.Sprintf("bulk operation on %d documents (+%.1f)", in.Count, bulkSmallScore))
		} else {
			parts = append(parts, fmt.Sprintf("bulk operation on %d documents exceeds threshold of %d (+%.1f)", in.Count, c.cfg.BulkThreshold, bulkLargeScore))
		}
	}

	return strings.Join(parts, "; ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
