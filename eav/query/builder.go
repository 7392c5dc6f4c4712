package query

import (
	"strings"

	"github.com/andrfilipenk/new-sub004/eav/types"
	"github.com/andrfilipenk/new-sub004/errors"
)

// Builder assembles entity id SELECT and COUNT statements from a join
// plan, filters and sorts. Filter values must already be in storage form.
type Builder struct {
	prefix string
}

// NewBuilder creates a builder for value tables named <prefix>_<backend_type>.
func NewBuilder(prefix string) *Builder {
	return &Builder{prefix: prefix}
}

// clauseBuilder accumulates WHERE clauses and bind parameters.
type clauseBuilder struct {
	whereClauses []string
	args         []any
}

func (cb *clauseBuilder) addClause(clause string, args ...any) {
	cb.whereClauses = append(cb.whereClauses, clause)
	cb.args = append(cb.args, args...)
}

func (cb *clauseBuilder) build() string {
	return strings.Join(cb.whereClauses, " AND ")
}

// SelectIDs builds a statement returning matching entity ids in order.
func (b *Builder) SelectIDs(et *types.EntityType, plan *Plan, filters []types.Filter, sorts []types.Sort, limit, offset int) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT DISTINCT e.entity_id FROM ")
	sb.WriteString(et.EntityTable)
	sb.WriteString(" e")

	joinArgs := b.writeJoins(&sb, plan)

	cb := &clauseBuilder{}
	cb.addClause("e.entity_type_id = ?", et.TypeID)
	if err := b.buildFilterClauses(cb, et, plan, filters); err != nil {
		return "", nil, err
	}

	sb.WriteString(" WHERE ")
	sb.WriteString(cb.build())

	orderBy, orderArgs, err := b.buildOrderBy(et, plan, sorts)
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(orderBy)

	args := append(joinArgs, cb.args...)
	args = append(args, orderArgs...)

	if limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, limit)
		if offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, offset)
		}
	}

	return sb.String(), args, nil
}

// Count builds a statement counting matching entities.
func (b *Builder) Count(et *types.EntityType, plan *Plan, filters []types.Filter) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(DISTINCT e.entity_id) FROM ")
	sb.WriteString(et.EntityTable)
	sb.WriteString(" e")

	joinArgs := b.writeJoins(&sb, plan)

	cb := &clauseBuilder{}
	cb.addClause("e.entity_type_id = ?", et.TypeID)
	if err := b.buildFilterClauses(cb, et, plan, filters); err != nil {
		return "", nil, err
	}

	sb.WriteString(" WHERE ")
	sb.WriteString(cb.build())

	return sb.String(), append(joinArgs, cb.args...), nil
}

func (b *Builder) writeJoins(sb *strings.Builder, plan *Plan) []any {
	var args []any
	for _, j := range plan.Joins {
		sb.WriteString(" LEFT JOIN ")
		sb.WriteString(j.Table)
		sb.WriteString(" ")
		sb.WriteString(j.Alias)
		sb.WriteString(" ON ")
		sb.WriteString(j.Alias)
		sb.WriteString(".entity_id = e.entity_id AND ")
		sb.WriteString(j.Alias)
		sb.WriteString(".attribute_id = ?")
		args = append(args, j.AttributeID)
	}
	return args
}

func (b *Builder) buildFilterClauses(cb *clauseBuilder, et *types.EntityType, plan *Plan, filters []types.Filter) error {
	for _, f := range filters {
		expr, exprArgs, err := b.valueExpr(et, plan, f.Code)
		if err != nil {
			return err
		}

		switch f.Op {
		case types.OpEq, types.OpNeq, types.OpGt, types.OpGte, types.OpLt, types.OpLte:
			cb.addClause(expr+" "+string(f.Op)+" ?", append(exprArgs, f.Value)...)
		case types.OpLike:
			cb.addClause(expr+" LIKE ?", append(exprArgs, f.Value)...)
		case types.OpIn:
			vals, ok := f.Value.([]any)
			if !ok {
				return errors.Newf("IN filter on %q requires a []any value, got %T", f.Code, f.Value)
			}
			if len(vals) == 0 {
				return errors.Newf("IN filter on %q requires at least one value", f.Code)
			}
			marks := strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")
			cb.addClause(expr+" IN ("+marks+")", append(exprArgs, vals...)...)
		default:
			return errors.Newf("unsupported filter operator %q on %q", f.Op, f.Code)
		}
	}
	return nil
}

// valueExpr returns the SQL expression reading an attribute's value:
// the join alias column when the plan joined it, else a correlated
// subquery against its value table.
func (b *Builder) valueExpr(et *types.EntityType, plan *Plan, code string) (string, []any, error) {
	if j, ok := plan.JoinFor(code); ok {
		return j.Alias + ".value", nil, nil
	}

	attr, ok := et.Attribute(code)
	if !ok {
		return "", nil, errors.Newf("unknown attribute %q on entity type %q", code, et.Code)
	}
	expr := "(SELECT value FROM " + attr.Backend.ValueTable(b.prefix) +
		" WHERE entity_id = e.entity_id AND attribute_id = ? LIMIT 1)"
	return expr, []any{attr.AttributeID}, nil
}

func (b *Builder) buildOrderBy(et *types.EntityType, plan *Plan, sorts []types.Sort) (string, []any, error) {
	if len(sorts) == 0 {
		return " ORDER BY e.entity_id", nil, nil
	}

	var parts []string
	var args []any
	for _, s := range sorts {
		expr, exprArgs, err := b.valueExpr(et, plan, s.Code)
		if err != nil {
			return "", nil, err
		}
		dir := " ASC"
		if s.Desc {
			dir = " DESC"
		}
		parts = append(parts, expr+dir)
		args = append(args, exprArgs...)
	}
	return " ORDER BY " + strings.Join(parts, ", "), args, nil
}
