// Package values converts between in-memory attribute values and their
// per-backend-type storage representation, validating type compatibility
// before anything is written.
package values

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/andrfilipenk/new-sub004/eav/types"
	"github.com/andrfilipenk/new-sub004/errors"
)

// DatetimeLayout is the canonical storage form for datetime values (UTC).
const DatetimeLayout = "2006-01-02 15:04:05"

// DecimalPrecision is the fixed number of fractional digits stored for
// decimal values.
const DecimalPrecision = 4

// VarcharMaxLen caps varchar values; longer strings belong in text.
const VarcharMaxLen = 255

// Transformer validates and converts attribute values per backend type.
// The zero value is ready to use.
type Transformer struct{}

// NewTransformer returns a Transformer.
func NewTransformer() *Transformer {
	return &Transformer{}
}

// Validate reports whether v is representable under the backend type.
// Nil is always valid (nulls pass through). A non-numeric value for int
// or decimal is a validation failure, never a silent cast.
func (t *Transformer) Validate(backend types.BackendType, v any) error {
	if v == nil {
		return nil
	}
	_, err := t.ToStorage(backend, v)
	return err
}

// ToStorage converts v to its storage string form for the backend type.
// Callers must not pass nil; null handling is the storage layer's job.
func (t *Transformer) ToStorage(backend types.BackendType, v any) (string, error) {
	switch backend {
	case types.BackendVarchar:
		s, err := toString(v)
		if err != nil {
			return "", err
		}
		if utf8.RuneCountInString(s) > VarcharMaxLen {
			return "", errors.Newf("varchar value exceeds %d characters (got %d)", VarcharMaxLen, utf8.RuneCountInString(s))
		}
		return s, nil

	case types.BackendText:
		return toString(v)

	case types.BackendInt:
		n, err := toInt64(v)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil

	case types.BackendDecimal:
		f, err := toFloat64(v)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(f, 'f', DecimalPrecision, 64), nil

	case types.BackendDatetime:
		ts, err := toTime(v)
		if err != nil {
			return "", err
		}
		return ts.UTC().Format(DatetimeLayout), nil

	default:
		return "", errors.Newf("unknown backend type %q", backend)
	}
}

// ToQueryArg converts v to a bind parameter for filter comparisons:
// int64 for int, float64 (rounded to storage precision) for decimal,
// the storage string otherwise. Numeric backends must bind numbers so
// SQLite compares by value, not by storage class.
func (t *Transformer) ToQueryArg(backend types.BackendType, v any) (any, error) {
	switch backend {
	case types.BackendInt:
		return toInt64(v)
	case types.BackendDecimal:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		rounded, err := strconv.ParseFloat(strconv.FormatFloat(f, 'f', DecimalPrecision, 64), 64)
		if err != nil {
			return nil, errors.Wrap(err, "round decimal query arg")
		}
		return rounded, nil
	default:
		return t.ToStorage(backend, v)
	}
}

// FromStorage converts a stored string back to its semantic value:
// string for varchar/text, int64 for int, float64 for decimal, time.Time
// (UTC) for datetime.
func (t *Transformer) FromStorage(backend types.BackendType, s string) (any, error) {
	switch backend {
	case types.BackendVarchar, types.BackendText:
		return s, nil

	case types.BackendInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "stored int value %q is corrupt", s)
		}
		return n, nil

	case types.BackendDecimal:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "stored decimal value %q is corrupt", s)
		}
		return f, nil

	case types.BackendDatetime:
		ts, err := time.ParseInLocation(DatetimeLayout, s, time.UTC)
		if err != nil {
			return nil, errors.Wrapf(err, "stored datetime value %q is corrupt", s)
		}
		return ts, nil

	default:
		return nil, errors.Newf("unknown backend type %q", backend)
	}
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		return "", errors.Newf("value of type %T is not a string", v)
	}
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		// JSON decoding yields float64; accept only exact integers.
		n := int64(x)
		if float64(n) != x {
			return 0, errors.Newf("value %v is not an integer", x)
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, errors.Newf("value %q is not a valid integer", x)
		}
		return n, nil
	default:
		return 0, errors.Newf("value of type %T is not an integer", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, errors.Newf("value %q is not a valid decimal", x)
		}
		return f, nil
	default:
		return 0, errors.Newf("value of type %T is not a decimal", v)
	}
}

func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range []string{DatetimeLayout, time.RFC3339, "2006-01-02"} {
			if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, errors.Newf("value %q is not a valid datetime", x)
	default:
		return time.Time{}, errors.Newf("value of type %T is not a datetime", v)
	}
}
