package script

import (
	"math"
	"strconv"
)

// ValueKind tags the variant held by a Value
type ValueKind int

const (
	KindFloat ValueKind = iota
	KindBool
	KindString
	KindColor
)

func (k ValueKind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindColor:
		return "color"
	default:
		return "unknown"
	}
}

// Value is the result of evaluating an expression
type Value struct {
	Kind  ValueKind
	num   float64
	flag  bool
	str   string
	color Color
}

func FloatValue(v float64) Value { return Value{Kind: KindFloat, num: v} }
func BoolValue(v bool) Value     { return Value{Kind: KindBool, flag: v} }
func StringValue(v string) Value { return Value{Kind: KindString, str: v} }
func ColorValue(c Color) Value   { return Value{Kind: KindColor, color: c} }

// AsFloat coerces the value: bools become 1/0, strings parse or become 0, colors their packed bits
func (v Value) AsFloat() float64 {
	switch v.Kind {
	case KindFloat:
		return v.num
	case KindBool:
		if v.flag {
			return 1
		}
		return 0
	case KindString:
		f, err := strconv.ParseFloat(v.str, 64)
		if err != nil {
			return 0
		}
		return f
	case KindColor:
		return float64(v.color)
	}
	return 0
}

// AsBool coerces the value: zero and NaN are false, strings are true when non-empty
func (v Value) AsBool() bool {
	switch v.Kind {
	case KindFloat:
		return v.num != 0 && !math.IsNaN(v.num)
	case KindBool:
		return v.flag
	case KindString:
		return v.str != ""
	case KindColor:
		return true
	}
	return false
}

// AsString coerces the value to text
func (v Value) AsString() string {
	switch v.Kind {
	case KindFloat:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindString:
		return v.str
	case KindColor:
		return v.color.Hex()
	}
	return ""
}

// AsColor coerces the value: floats are read as packed ARGB, strings are parsed
func (v Value) AsColor() (Color, bool) {
	switch v.Kind {
	case KindColor:
		return v.color, true
	case KindString:
		c, err := ParseColor(v.str)
		return c, err == nil
	case KindFloat:
		if math.IsNaN(v.num) || v.num < 0 || v.num > math.MaxUint32 {
			return 0, false
		}
		return Color(uint32(v.num)), true
	}
	return 0, false
}

// equal compares two values, falling back to numeric comparison for mixed kinds
func (v Value) equal(o Value) bool {
	if v.Kind == o.Kind {
		switch v.Kind {
		case KindString:
			return v.str == o.str
		case KindColor:
			return v.color == o.color
		case KindBool:
			return v.flag == o.flag
		}
	}
	return v.AsFloat() == o.AsFloat()
}
