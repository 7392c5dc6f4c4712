// Package query plans SQL joins across the per-backend-type value tables.
//
// Relational engines degrade non-linearly past some join count, so the
// optimizer builds one join per required attribute only up to a
// configurable budget; attributes past the budget fall back to correlated
// subqueries, trading per-row subquery cost for join-count safety.
package query

import (
	"strconv"

	"github.com/andrfilipenk/new-sub004/eav/types"
)

// DefaultMaxJoins is the join budget used when none is configured.
const DefaultMaxJoins = 10

// Join describes one LEFT JOIN against a value table.
type Join struct {
	Alias       string
	Table       string
	AttributeID int64
	Code        string
}

// BatchJoin folds several attributes of one backend type into a single
// join using attribute_id IN (...), reducing join count.
type BatchJoin struct {
	Alias        string
	Table        string
	AttributeIDs []int64
}

// Plan is the result of join optimization. Remaining holds the attributes
// that exceeded the budget and must be read through correlated subqueries.
type Plan struct {
	Joins       []Join
	UseSubquery bool
	Remaining   []*types.Attribute
}

// JoinFor returns the join planned for an attribute code, if any.
func (p *Plan) JoinFor(code string) (Join, bool) {
	for _, j := range p.Joins {
		if j.Code == code {
			return j, true
		}
	}
	return Join{}, false
}

// Optimizer plans joins under a budget. TablePrefix names the value
// tables (<prefix>_<backend_type>).
type Optimizer struct {
	MaxJoins    int
	TablePrefix string
}

// NewOptimizer creates an optimizer with the given join budget; budgets
// below 1 fall back to DefaultMaxJoins.
func NewOptimizer(maxJoins int, tablePrefix string) *Optimizer {
	if maxJoins < 1 {
		maxJoins = DefaultMaxJoins
	}
	return &Optimizer{MaxJoins: maxJoins, TablePrefix: tablePrefix}
}

// OptimizeJoins orders the required attributes (filtered ones first, then
// the rest, declaration order preserved within each group) and assigns
// joins up to MaxJoins. The excess lands in Remaining with UseSubquery set.
func (o *Optimizer) OptimizeJoins(attrs []*types.Attribute, filters []types.Filter) *Plan {
	ordered := prioritize(attrs, filters)

	plan := &Plan{}
	for i, attr := range ordered {
		if i < o.MaxJoins {
			plan.Joins = append(plan.Joins, Join{
				Alias:       joinAlias(len(plan.Joins)),
				Table:       attr.Backend.ValueTable(o.TablePrefix),
				AttributeID: attr.AttributeID,
				Code:        attr.Code,
			})
			continue
		}
		plan.Remaining = append(plan.Remaining, attr)
	}
	plan.UseSubquery = len(plan.Remaining) > 0
	return plan
}

// EstimateJoinCount returns the number of joins OptimizeJoins would plan.
// Side-effect-free, usable for planning without executing.
func (o *Optimizer) EstimateJoinCount(attrs []*types.Attribute, filters []types.Filter) int {
	if len(attrs) < o.MaxJoins {
		return len(attrs)
	}
	return o.MaxJoins
}

// OptimizeBatchJoins groups attributes by backend type into one join per
// value table. Useful when many attributes of the same backend type are
// selected and per-attribute joins would blow the budget.
func (o *Optimizer) OptimizeBatchJoins(attrs []*types.Attribute) []BatchJoin {
	var joins []BatchJoin
	index := make(map[types.BackendType]int)

	for _, attr := range attrs {
		i, ok := index[attr.Backend]
		if !ok {
			index[attr.Backend] = len(joins)
			joins = append(joins, BatchJoin{
				Alias: joinAlias(len(joins)),
				Table: attr.Backend.ValueTable(o.TablePrefix),
			})
			i = len(joins) - 1
		}
		joins[i].AttributeIDs = append(joins[i].AttributeIDs, attr.AttributeID)
	}
	return joins
}

// prioritize returns attrs with filter-referenced attributes first,
// preserving declaration order inside each group.
func prioritize(attrs []*types.Attribute, filters []types.Filter) []*types.Attribute {
	filtered := types.FilteredCodes(filters)

	ordered := make([]*types.Attribute, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := filtered[attr.Code]; ok {
			ordered = append(ordered, attr)
		}
	}
	for _, attr := range attrs {
		if _, ok := filtered[attr.Code]; !ok {
			ordered = append(ordered, attr)
		}
	}
	return ordered
}

func joinAlias(i int) string {
	return "v" + strconv.Itoa(i)
}
