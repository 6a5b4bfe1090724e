package table

import (
	"fmt"
	"math"

	"github.com/apache/arrow/go/v11/arrow"
)

// Type is the logical type of a result column.
type Type int

const (
	Null Type = iota
	Bool
	Int64
	Float64
	String
)

var typeNames = []string{"null", "bool", "int64", "float64", "string"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", int(t))
}

func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if name == s {
			return Type(i), nil
		}
	}
	return Null, fmt.Errorf("unknown column type %q", s)
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	typ, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = typ
	return nil
}

// Varlen reports whether values of t have variable width.
func (t Type) Varlen() bool {
	return t == String
}

// Null columns are stored as all-null int64 arrays.
func (t Type) arrowType() arrow.DataType {
	switch t {
	case Bool:
		return arrow.FixedWidthTypes.Boolean
	case Float64:
		return arrow.PrimitiveTypes.Float64
	case String:
		return arrow.BinaryTypes.String
	}
	return arrow.PrimitiveTypes.Int64
}

// TypeOf returns the column type of a Go value as accepted by New.
func TypeOf(v any) Type {
	switch v.(type) {
	case bool:
		return Bool
	case int, int32, int64, uint32, uint64:
		return Int64
	case float32, float64:
		return Float64
	case string:
		return String
	}
	return Null
}

// Coerce converts v to the canonical Go representation of t: bool, int64,
// float64 or string. Nil stays nil.
func Coerce(t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case Null:
		return nil, nil
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case Int64:
		switch v := v.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case uint32:
			return int64(v), nil
		case uint64:
			if v <= math.MaxInt64 {
				return int64(v), nil
			}
		case float64:
			if v == math.Trunc(v) {
				return int64(v), nil
			}
		}
	case Float64:
		switch v := v.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("cannot use %v (%T) as %s", v, v, t)
}
