// Package types defines the EAV metadata model: entity types, attributes,
// entities with dirty tracking, and query filters.
package types

import (
	"github.com/andrfilipenk/new-sub004/errors"
)

// BackendType is the physical storage category of an attribute's value.
// Each backend type is backed by its own value table and is immutable
// after an attribute is created.
type BackendType string

const (
	BackendVarchar  BackendType = "varchar"
	BackendInt      BackendType = "int"
	BackendDecimal  BackendType = "decimal"
	BackendText     BackendType = "text"
	BackendDatetime BackendType = "datetime"
)

// AllBackendTypes lists every backend type in value-table order.
var AllBackendTypes = []BackendType{
	BackendVarchar,
	BackendInt,
	BackendDecimal,
	BackendText,
	BackendDatetime,
}

// ParseBackendType validates a backend type string at configuration load
// time. Unknown backend types are rejected here, never at write time.
func ParseBackendType(s string) (BackendType, error) {
	switch BackendType(s) {
	case BackendVarchar, BackendInt, BackendDecimal, BackendText, BackendDatetime:
		return BackendType(s), nil
	default:
		return "", errors.NewConfigurationError(s, "unknown backend type (want varchar, int, decimal, text or datetime)")
	}
}

// ValueTable returns the value table name for this backend type with the
// given prefix, e.g. "eav_value" -> "eav_value_decimal".
func (b BackendType) ValueTable(prefix string) string {
	return prefix + "_" + string(b)
}

// ColumnType returns the SQL column type used to store values of this
// backend type.
func (b BackendType) ColumnType() string {
	switch b {
	case BackendInt:
		return "INTEGER"
	case BackendDecimal:
		// NUMERIC affinity so stored values compare numerically.
		return "NUMERIC"
	default:
		return "TEXT"
	}
}
