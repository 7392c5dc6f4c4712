package types

// FilterOp is a comparison operator usable in entity queries.
type FilterOp string

const (
	OpEq   FilterOp = "="
	OpNeq  FilterOp = "!="
	OpGt   FilterOp = ">"
	OpGte  FilterOp = ">="
	OpLt   FilterOp = "<"
	OpLte  FilterOp = "<="
	OpLike FilterOp = "LIKE"
	OpIn   FilterOp = "IN"
)

// Filter constrains an attribute in a find/count query.
type Filter struct {
	Code  string
	Op    FilterOp
	Value any
}

// Eq is shorthand for an equality filter.
func Eq(code string, value any) Filter {
	return Filter{Code: code, Op: OpEq, Value: value}
}

// Sort orders query results by an attribute.
type Sort struct {
	Code string
	Desc bool
}

// FilteredCodes returns the set of attribute codes referenced by filters.
func FilteredCodes(filters []Filter) map[string]struct{} {
	codes := make(map[string]struct{}, len(filters))
	for _, f := range filters {
		codes[f.Code] = struct{}{}
	}
	return codes
}
