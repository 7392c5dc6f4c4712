package migration

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/andrfilipenk/new-sub004/schema"
)

// AutoApproveThreshold is the highest risk score an error-free
// migration may carry and still skip explicit confirmation.
const AutoApproveThreshold = 40

// ValidationResult is the validator's verdict on one migration.
type ValidationResult struct {
	RiskScore   int              `json:"risk_score"`
	RiskLevel   schema.RiskLevel `json:"risk_level"`
	AutoApprove bool             `json:"auto_approve"`
	Errors      []string         `json:"errors,omitempty"`
	Warnings    []string         `json:"warnings,omitempty"`
}

// Valid reports whether the migration may be applied at all.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Validator gates migrations before execution.
type Validator struct {
	logger *zap.SugaredLogger
}

// NewValidator creates a validator. logger may be nil.
func NewValidator(logger *zap.SugaredLogger) *Validator {
	return &Validator{logger: logger}
}

// Validate checks structure, reversibility and risk. hasBackup states
// whether a backup covering this run exists; destructive changes
// without one are an error, not a warning.
func (v *Validator) Validate(m *Migration, hasBackup bool) *ValidationResult {
	result := &ValidationResult{RiskScore: m.RiskScore()}
	result.RiskLevel = schema.LevelForScore(result.RiskScore)

	if len(m.UpSQL) == 0 {
		result.Errors = append(result.Errors, "migration defines no forward operations")
	}
	if !m.Reversible() {
		result.Warnings = append(result.Warnings, "migration is not fully reversible; revert will be refused")
	}
	if m.HasDestructive() && !hasBackup {
		result.Errors = append(result.Errors,
			fmt.Sprintf("%d destructive change(s) without a backup", len(destructive(m))))
	}

	result.AutoApprove = result.Valid() && result.RiskScore <= AutoApproveThreshold

	if v.logger != nil {
		v.logger.Infow("Validated migration",
			"migration", m.Name,
			"risk_score", result.RiskScore,
			"risk_level", result.RiskLevel,
			"auto_approve", result.AutoApprove,
			"errors", len(result.Errors),
			"warnings", len(result.Warnings),
		)
	}
	return result
}

func destructive(m *Migration) []*schema.SchemaDifference {
	var out []*schema.SchemaDifference
	for _, d := range m.Differences {
		if d.IsDestructive() {
			out = append(out, d)
		}
	}
	return out
}
