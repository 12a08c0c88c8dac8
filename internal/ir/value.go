package ir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value is a sealed interface representing a single SQLite cell.
// Only Null, Int, Real, and String implement this.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Null represents SQL NULL.
// Using an explicit type ensures every cell satisfies the sealed interface.
type Null struct{}

func (Null) irValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Int represents an INTEGER cell.
type Int int64

func (Int) irValue() {}

// Real represents a REAL cell.
// Places stores a handful of frecency values as REAL on some profiles.
type Real float64

func (Real) irValue() {}

// String represents a TEXT cell. BLOB cells are read as String too.
type String string

func (String) irValue() {}

// IsNull reports whether v is SQL NULL. A nil interface counts as NULL.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Equal compares two values exactly.
// NULL equals NULL; values of different kinds are never equal, so Int(1) != Real(1).
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch av := a.(type) {
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Real:
		bv, ok := b.(Real)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	default:
		return false
	}
}

// FromSQL converts a value produced by database/sql scanning into a Value.
func FromSQL(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case int64:
		return Int(x), nil
	case int:
		return Int(int64(x)), nil
	case float64:
		return Real(x), nil
	case bool:
		if x {
			return Int(1), nil
		}
		return Int(0), nil
	case string:
		return String(x), nil
	case []byte:
		return String(string(x)), nil
	default:
		return nil, fmt.Errorf("unsupported sql value type %T", v)
	}
}

// Param converts a Value into a database/sql query argument.
func Param(v Value) any {
	switch x := v.(type) {
	case nil, Null:
		return nil
	case Int:
		return int64(x)
	case Real:
		return float64(x)
	case String:
		return string(x)
	default:
		return nil
	}
}

// Parse interprets a command-line literal.
// "null" (any case) is NULL, integers become Int, anything else is a String.
// Quote a literal with double quotes to force a String ("\"42\"").
func Parse(s string) Value {
	if strings.EqualFold(s, "null") {
		return Null{}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(n)
	}
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		if unq, err := strconv.Unquote(s); err == nil {
			return String(unq)
		}
	}
	return String(s)
}

// FromAny converts a decoded YAML or JSON scalar into a Value.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint64:
		return Int(int64(x)), nil
	case float64:
		if x == float64(int64(x)) {
			return Int(int64(x)), nil
		}
		return Real(x), nil
	case bool:
		if x {
			return Int(1), nil
		}
		return Int(0), nil
	case string:
		return String(x), nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", x, err)
		}
		return Real(f), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// Format renders a value for human-readable output.
func Format(v Value) string {
	switch x := v.(type) {
	case nil, Null:
		return "NULL"
	case Int:
		return strconv.FormatInt(int64(x), 10)
	case Real:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	case String:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
