package schema

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/andrfilipenk/new-sub004/eav/types"
)

// Metadata supplies entity type definitions to the analyzer. The
// registry in package eav satisfies it.
type Metadata interface {
	Get(ctx context.Context, code string) (*types.EntityType, error)
	Codes(ctx context.Context) ([]string, error)
}

// AnalysisReport is the outcome of analyzing one entity type.
type AnalysisReport struct {
	TypeCode        string         `json:"entity_type"`
	Differences     *DifferenceSet `json:"differences"`
	RiskScore       int            `json:"risk_score"`
	RiskLevel       RiskLevel      `json:"risk_level"`
	Recommendations []string       `json:"recommendations,omitempty"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// InSync reports whether nothing diverged.
func (r *AnalysisReport) InSync() bool {
	return r.Differences.Empty()
}

// Analyzer produces analysis reports from live schema comparisons.
type Analyzer struct {
	metadata   Metadata
	comparator *Comparator
	logger     *zap.SugaredLogger
}

// NewAnalyzer creates an analyzer. logger may be nil.
func NewAnalyzer(metadata Metadata, comparator *Comparator, logger *zap.SugaredLogger) *Analyzer {
	return &Analyzer{metadata: metadata, comparator: comparator, logger: logger}
}

// Analyze compares one entity type against the live schema.
func (a *Analyzer) Analyze(ctx context.Context, typeCode string) (*AnalysisReport, error) {
	et, err := a.metadata.Get(ctx, typeCode)
	if err != nil {
		return nil, err
	}

	set, err := a.comparator.Compare(ctx, et)
	if err != nil {
		return nil, err
	}
	set.SortByRisk()

	score := set.AggregateRisk()
	report := &AnalysisReport{
		TypeCode:        typeCode,
		Differences:     set,
		RiskScore:       score,
		RiskLevel:       LevelForScore(score),
		Recommendations: recommend(set),
		GeneratedAt:     time.Now().UTC(),
	}
	if a.logger != nil {
		a.logger.Infow("Schema analysis complete",
			"entity_type", typeCode,
			"differences", len(set.Differences),
			"risk_score", score,
			"risk_level", report.RiskLevel,
		)
	}
	return report, nil
}

// AnalyzeAll analyzes every registered entity type.
func (a *Analyzer) AnalyzeAll(ctx context.Context) ([]*AnalysisReport, error) {
	codes, err := a.metadata.Codes(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]*AnalysisReport, 0, len(codes))
	for _, code := range codes {
		report, err := a.Analyze(ctx, code)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func recommend(set *DifferenceSet) []string {
	if set.Empty() {
		return []string{"schema matches the declared metadata, nothing to do"}
	}

	var out []string
	if destructive := set.Destructive(); len(destructive) > 0 {
		out = append(out, fmt.Sprintf("create a backup before syncing: %d destructive change(s) pending", len(destructive)))
		out = append(out, "use the full strategy (additive will skip destructive changes)")
	} else {
		out = append(out, "all pending changes are additive and safe to apply")
	}
	for _, d := range set.Differences {
		if d.Type == DiffTypeMismatch {
			out = append(out, fmt.Sprintf("column %s.%s needs a type change; existing values will be reinterpreted", d.Table, d.Column))
		}
	}
	return out
}
