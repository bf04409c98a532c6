package risk

// Base score per operation type. Unregistered operations fall back to
// unknownOperationScore.
var operationBaseScores = map[string]float64{
	"create":      0.3,
	"update":      0.4,
	"submit":      0.7,
	"cancel":      0.8,
	"delete":      0.9,
	"bulk_update": 0.6,
	"workflow":    0.7,
}

const unknownOperationScore = 0.5

// Additive contribution per sensitivity class.
var sensitivityScores = map[Sensitivity]float64{
	SensitivityLow:    0,
	SensitivityMedium: 0.2,
	SensitivityHigh:   0.4,
}

// Additive contribution per document state. Draft contributes nothing.
var documentStateScores = map[string]float64{
	"draft":     0,
	"submitted": 0.3,
	"cancelled": 0.2,
}

const (
	bulkSmallScore = 0.1
	bulkLargeScore = 0.3
)

// defaultFieldSensitivity classifies common ERP document fields. Fields
// not listed here are treated as low sensitivity. Deployments override
// individual entries via Config.SensitivityOverrides.
var defaultFieldSensitivity = map[string]Sensitivity{
	// Financial fields
	"grand_total":   SensitivityHigh,
	"total":         SensitivityHigh,
	"rate":          SensitivityHigh,
	"amount":        SensitivityHigh,
	"price":         SensitivityHigh,
	"paid_amount":   SensitivityHigh,
	"outstanding":   SensitivityHigh,
	"exchange_rate": SensitivityHigh,
	"tax_rate":      SensitivityHigh,
	"discount":      SensitivityMedium,
	"credit_limit":  SensitivityHigh,
	"bank_account":  SensitivityHigh,

	// Workflow and lifecycle fields
	"status":         SensitivityMedium,
	"workflow_state": SensitivityMedium,
	"docstatus":      SensitivityHigh,

	// Relational fields
	"customer": SensitivityMedium,
	"supplier": SensitivityMedium,
	"item":     SensitivityMedium,
	"quantity": SensitivityMedium,
	"qty":      SensitivityMedium,

	// Informational fields
	"notes":       SensitivityLow,
	"description": SensitivityLow,
	"remarks":     SensitivityLow,
	"subject":     SensitivityLow,
}
