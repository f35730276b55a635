package script

import (
	"math"
)

func (in *Interpreter) eval(e Expr) (Value, error) {
	switch e := e.(type) {
	case *NumberLiteral:
		return FloatValue(e.Value), nil
	case *StringLiteral:
		return StringValue(e.Value), nil
	case *BoolLiteral:
		return BoolValue(e.Value), nil
	case *ColorLiteral:
		return ColorValue(e.Value), nil
	case *Identifier:
		return in.lookup(e.Name), nil
	case *UnaryExpr:
		return in.evalUnary(e)
	case *BinaryExpr:
		return in.evalBinary(e)
	case *TernaryExpr:
		cond, err := in.eval(e.Cond)
		if err != nil {
			return Value{}, err
		}
		if cond.AsBool() {
			return in.eval(e.IfTrue)
		}
		return in.eval(e.IfFalse)
	case *CallExpr:
		return in.call(e)
	}
	return FloatValue(0), nil
}

// lookup resolves an identifier: bar built-ins, then constants, then user series.
// Unresolved names evaluate to 0.
func (in *Interpreter) lookup(name string) Value {
	switch name {
	case "bar_index":
		return FloatValue(float64(in.barCount - 1 - in.currentBar))
	case "time":
		return FloatValue(float64(in.buffer.At(in.currentBar).Timestamp.UnixMilli()))
	}

	if s, ok := in.builtinSeries[name]; ok {
		return FloatValue(s[in.currentBar])
	}
	if v, ok := in.constants[name]; ok {
		return v
	}
	if s, ok := in.series[name]; ok {
		return FloatValue(s[in.currentBar])
	}

	if !in.warned[name] {
		in.warned[name] = true
		in.logger.Warn().Str("identifier", name).Msg("Unresolved identifier evaluates to 0")
	}
	return FloatValue(0)
}

func (in *Interpreter) evalUnary(e *UnaryExpr) (Value, error) {
	v, err := in.eval(e.Operand)
	if err != nil {
		return Value{}, err
	}
	switch e.Op {
	case TokenMinus:
		return FloatValue(-v.AsFloat()), nil
	case TokenNot:
		return BoolValue(!v.AsBool()), nil
	}
	return v, nil
}

func (in *Interpreter) evalBinary(e *BinaryExpr) (Value, error) {
	left, err := in.eval(e.Left)
	if err != nil {
		return Value{}, err
	}

	// and / or short-circuit
	switch e.Op {
	case TokenAnd:
		if !left.AsBool() {
			return BoolValue(false), nil
		}
		right, err := in.eval(e.Right)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(right.AsBool()), nil
	case TokenOr:
		if left.AsBool() {
			return BoolValue(true), nil
		}
		right, err := in.eval(e.Right)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(right.AsBool()), nil
	}

	right, err := in.eval(e.Right)
	if err != nil {
		return Value{}, err
	}

	switch e.Op {
	case TokenEqual:
		return BoolValue(left.equal(right)), nil
	case TokenNotEqual:
		return BoolValue(!left.equal(right)), nil
	case TokenPlus:
		if left.Kind == KindString || right.Kind == KindString {
			return StringValue(left.AsString() + right.AsString()), nil
		}
	}

	return arithmetic(e.Op, left.AsFloat(), right.AsFloat()), nil
}

// arithmetic applies a numeric operator. Division and modulo by zero yield 0.
func arithmetic(op TokenType, a, b float64) Value {
	switch op {
	case TokenPlus:
		return FloatValue(a + b)
	case TokenMinus:
		return FloatValue(a - b)
	case TokenStar:
		return FloatValue(a * b)
	case TokenSlash:
		if b == 0 {
			return FloatValue(0)
		}
		return FloatValue(a / b)
	case TokenPercent:
		if b == 0 {
			return FloatValue(0)
		}
		return FloatValue(math.Mod(a, b))
	case TokenGreater:
		return BoolValue(a > b)
	case TokenGreaterEqual:
		return BoolValue(a >= b)
	case TokenLess:
		return BoolValue(a < b)
	case TokenLessEqual:
		return BoolValue(a <= b)
	}
	return FloatValue(0)
}

// newConstantTable builds the fixed identifier table. Style, shape, location and
// direction constants evaluate to their lower-case names.
func newConstantTable() map[string]Value {
	c := map[string]Value{
		"na":             FloatValue(math.NaN()),
		"strategy.long":  StringValue("long"),
		"strategy.short": StringValue("short"),
		"dashed":         StringValue("dashed"),
		"dotted":         StringValue("dotted"),
		"solid":          StringValue("solid"),

		"hline.style_dashed": StringValue("dashed"),
		"hline.style_dotted": StringValue("dotted"),
		"hline.style_solid":  StringValue("solid"),

		"location.abovebar": StringValue("abovebar"),
		"location.belowbar": StringValue("belowbar"),
		"location.absolute": StringValue("absolute"),

		"shape.xcross":    StringValue("cross"),
		"shape.labelup":   StringValue("arrowup"),
		"shape.labeldown": StringValue("arrowdown"),

		"math.pi": FloatValue(math.Pi),
		"math.e":  FloatValue(math.E),
	}
	for _, name := range shapeStyleNames {
		c["shape."+name] = StringValue(name)
	}
	for name, color := range namedColors {
		c["color."+name] = ColorValue(color)
	}
	return c
}
