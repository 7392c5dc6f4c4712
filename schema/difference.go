// Package schema compares declared entity type metadata against the
// live database schema and scores the risk of reconciling them.
package schema

import "sort"

// DifferenceType classifies what diverged.
type DifferenceType string

const (
	DiffMissingTable       DifferenceType = "missing_table"
	DiffMissingColumn      DifferenceType = "missing_column"
	DiffMissingIndex       DifferenceType = "missing_index"
	DiffTypeMismatch       DifferenceType = "type_mismatch"
	DiffOrphanedTable      DifferenceType = "orphaned_table"
	DiffOrphanedColumn     DifferenceType = "orphaned_column"
	DiffConstraintMismatch DifferenceType = "constraint_mismatch"
	DiffDefaultMismatch    DifferenceType = "default_mismatch"
)

// Severity grades how bad leaving a difference unresolved is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Action is the reconciliation operation a difference calls for.
type Action string

const (
	ActionAdd      Action = "add"
	ActionModify   Action = "modify"
	ActionDrop     Action = "drop"
	ActionRecreate Action = "recreate"
)

var severityBase = map[Severity]int{
	SeverityCritical: 40,
	SeverityHigh:     30,
	SeverityMedium:   20,
	SeverityLow:      10,
	SeverityInfo:     0,
}

var actionModifier = map[Action]int{
	ActionAdd:      0,
	ActionModify:   15,
	ActionDrop:     30,
	ActionRecreate: 40,
}

// SchemaDifference is one divergence between declared metadata and the
// live schema. Transient: discarded once a migration decision is made.
type SchemaDifference struct {
	TypeCode    string            `json:"entity_type"`
	Type        DifferenceType    `json:"type"`
	Severity    Severity          `json:"severity"`
	Action      Action            `json:"action"`
	Description string            `json:"description"`
	Table       string            `json:"table,omitempty"`
	Column      string            `json:"column,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// RiskScore derives the difference's risk from its severity and action,
// clamped to 0..100.
func (d *SchemaDifference) RiskScore() int {
	return clampRisk(severityBase[d.Severity] + actionModifier[d.Action])
}

// IsDestructive reports whether resolving the difference discards data.
func (d *SchemaDifference) IsDestructive() bool {
	return d.Action == ActionDrop || d.Action == ActionRecreate
}

// DifferenceSet is the ordered result of comparing one entity type.
type DifferenceSet struct {
	TypeCode    string              `json:"entity_type"`
	Differences []*SchemaDifference `json:"differences"`
}

// Add appends a difference.
func (s *DifferenceSet) Add(d *SchemaDifference) {
	d.TypeCode = s.TypeCode
	s.Differences = append(s.Differences, d)
}

// Empty reports whether declared and live schema agree.
func (s *DifferenceSet) Empty() bool {
	return len(s.Differences) == 0
}

// AggregateRisk sums the member scores, clamped to 0..100.
func (s *DifferenceSet) AggregateRisk() int {
	total := 0
	for _, d := range s.Differences {
		total += d.RiskScore()
	}
	return clampRisk(total)
}

// HasDestructive reports whether any member discards data.
func (s *DifferenceSet) HasDestructive() bool {
	for _, d := range s.Differences {
		if d.IsDestructive() {
			return true
		}
	}
	return false
}

// Destructive returns the members that discard data.
func (s *DifferenceSet) Destructive() []*SchemaDifference {
	var out []*SchemaDifference
	for _, d := range s.Differences {
		if d.IsDestructive() {
			out = append(out, d)
		}
	}
	return out
}

// SortByRisk orders differences from riskiest to safest, stable for
// equal scores.
func (s *DifferenceSet) SortByRisk() {
	sort.SliceStable(s.Differences, func(i, j int) bool {
		return s.Differences[i].RiskScore() > s.Differences[j].RiskScore()
	})
}

// RiskLevel bands a 0..100 risk score.
type RiskLevel string

const (
	RiskSafe      RiskLevel = "safe"
	RiskLow       RiskLevel = "low"
	RiskMedium    RiskLevel = "medium"
	RiskHigh      RiskLevel = "high"
	RiskDangerous RiskLevel = "dangerous"
)

// LevelForScore maps a risk score to its band.
func LevelForScore(score int) RiskLevel {
	switch {
	case score <= 20:
		return RiskSafe
	case score <= 40:
		return RiskLow
	case score <= 70:
		return RiskMedium
	case score <= 90:
		return RiskHigh
	default:
		return RiskDangerous
	}
}

func clampRisk(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
