package script

import (
	"fmt"
	"math"
	"strings"
)

type builtinFunc func(in *Interpreter, call *CallExpr) (Value, error)

// shapeOffset places abovebar/belowbar markers slightly away from the candle
const shapeOffset = 0.002

// newBuiltinTable builds the call dispatch table. Indicator functions are reachable
// both bare and under the ta. namespace.
func newBuiltinTable() map[string]builtinFunc {
	table := map[string]builtinFunc{
		// Declarations are handled before the sweep
		"indicator": noop,
		"strategy":  noop,

		// Outputs
		"plot":           (*Interpreter).plot,
		"hline":          (*Interpreter).hline,
		"bgcolor":        (*Interpreter).bgcolor,
		"plotshape":      (*Interpreter).plotshape,
		"alertcondition": (*Interpreter).alertcondition,
		"strategy.entry": (*Interpreter).strategyEntry,
		"strategy.close": (*Interpreter).strategyClose,

		// Inputs
		"input":       (*Interpreter).input,
		"input.int":   (*Interpreter).inputInt,
		"input.float": (*Interpreter).inputFloat,
		"input.bool":  (*Interpreter).inputBool,

		// Utility
		"nz":         (*Interpreter).nz,
		"na":         (*Interpreter).na,
		"math.abs":   mathFunc(math.Abs),
		"math.floor": mathFunc(math.Floor),
		"math.ceil":  mathFunc(math.Ceil),
		"math.exp":   mathFunc(math.Exp),
		"math.sqrt": mathFunc(func(x float64) float64 {
			if x < 0 {
				return 0
			}
			return math.Sqrt(x)
		}),
		"math.log": mathFunc(func(x float64) float64 {
			if x <= 0 {
				return 0
			}
			return math.Log(x)
		}),
		"math.pow":   (*Interpreter).mathPow,
		"math.round": (*Interpreter).mathRound,
		"math.max":   (*Interpreter).mathMax,
		"math.min":   (*Interpreter).mathMin,
		"color.new":  (*Interpreter).colorNew,
		"color.rgb":  (*Interpreter).colorRGB,
	}

	indicators := map[string]builtinFunc{
		"sma":        (*Interpreter).taSma,
		"ema":        (*Interpreter).taEma,
		"rsi":        (*Interpreter).taRsi,
		"stdev":      (*Interpreter).taStdev,
		"highest":    (*Interpreter).taHighest,
		"lowest":     (*Interpreter).taLowest,
		"crossover":  (*Interpreter).taCrossover,
		"crossunder": (*Interpreter).taCrossunder,
		"wma":        (*Interpreter).taWma,
		"change":     (*Interpreter).taChange,
	}
	for name, fn := range indicators {
		table[name] = fn
		table["ta."+name] = fn
	}

	return table
}

// UnknownCalls lists every call in program that names no builtin, in source order.
// Execute fails on the first of these it reaches; this reports them all up front.
func UnknownCalls(program *Program) []*UnknownFunctionError {
	table := newBuiltinTable()
	var unknown []*UnknownFunctionError
	Walk(program, func(n Node) {
		c, ok := n.(*CallExpr)
		if !ok {
			return
		}
		if _, ok := table[c.Name]; !ok {
			unknown = append(unknown, unknownFunction(c))
		}
	})
	return unknown
}

func (in *Interpreter) call(c *CallExpr) (Value, error) {
	fn, ok := in.builtins[c.Name]
	if !ok {
		return Value{}, unknownFunction(c)
	}
	return fn(in, c)
}

func noop(in *Interpreter, c *CallExpr) (Value, error) {
	return FloatValue(0), nil
}

// Argument helpers. Missing arguments fall back to defaults.

func (in *Interpreter) argValue(c *CallExpr, index int, name string) (Value, bool, error) {
	e := c.Arg(index, name)
	if e == nil {
		return Value{}, false, nil
	}
	v, err := in.eval(e)
	return v, err == nil, err
}

func (in *Interpreter) argFloat(c *CallExpr, index int, name string, def float64) (float64, error) {
	v, ok, err := in.argValue(c, index, name)
	if err != nil || !ok {
		return def, err
	}
	return v.AsFloat(), nil
}

func (in *Interpreter) argBool(c *CallExpr, index int, name string, def bool) (bool, error) {
	v, ok, err := in.argValue(c, index, name)
	if err != nil || !ok {
		return def, err
	}
	return v.AsBool(), nil
}

func (in *Interpreter) argString(c *CallExpr, index int, name string, def string) (string, error) {
	v, ok, err := in.argValue(c, index, name)
	if err != nil || !ok {
		return def, err
	}
	return v.AsString(), nil
}

// argColor returns the color argument; ok is false when it is missing or not a color (na)
func (in *Interpreter) argColor(c *CallExpr, index int, name string) (Color, bool, error) {
	v, ok, err := in.argValue(c, index, name)
	if err != nil || !ok {
		return 0, false, err
	}
	color, ok := v.AsColor()
	return color, ok, nil
}

func (in *Interpreter) argLength(c *CallExpr, index int, def int) (int, error) {
	f, err := in.argFloat(c, index, "length", float64(def))
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) {
		return 0, nil
	}
	return int(f), nil
}

// seriesArg resolves an indicator source. A bare series identifier is used directly;
// any other expression is evaluated into a temp series memoized by node, filled up to
// the current bar. The returned key identifies the source for indicator memory.
func (in *Interpreter) seriesArg(c *CallExpr, index int, name string) ([]float64, string, error) {
	e := c.Arg(index, name)
	if e == nil {
		return in.builtinSeries["close"], "close", nil
	}

	if id, ok := e.(*Identifier); ok {
		if s, ok := in.builtinSeries[id.Name]; ok {
			return s, id.Name, nil
		}
		if s, ok := in.series[id.Name]; ok {
			return s, id.Name, nil
		}
		if !in.isFixedIdentifier(id.Name) {
			return in.userSeries(id.Name), id.Name, nil
		}
	}

	ls, ok := in.temps[e.ID()]
	if !ok {
		ls = newLazySeries(in.barCount)
		in.temps[e.ID()] = ls
	}

	current := in.currentBar
	err := ls.fill(current, func(bar int) (float64, error) {
		in.currentBar = bar
		v, err := in.eval(e)
		return v.AsFloat(), err
	})
	in.currentBar = current
	if err != nil {
		return nil, "", err
	}
	return ls.values, fmt.Sprintf("expr#%d", e.ID()), nil
}

func (in *Interpreter) isFixedIdentifier(name string) bool {
	if name == "bar_index" || name == "time" {
		return true
	}
	_, ok := in.constants[name]
	return ok
}

// Indicators

func (in *Interpreter) taSma(c *CallExpr) (Value, error) {
	return in.windowed(c, 0, Sma)
}

func (in *Interpreter) taStdev(c *CallExpr) (Value, error) {
	return in.windowed(c, 0, Stdev)
}

func (in *Interpreter) taWma(c *CallExpr) (Value, error) {
	return in.windowed(c, 0, Wma)
}

func (in *Interpreter) taRsi(c *CallExpr) (Value, error) {
	return in.windowed(c, 14, Rsi)
}

func (in *Interpreter) taChange(c *CallExpr) (Value, error) {
	return in.windowed(c, 1, Change)
}

func (in *Interpreter) taHighest(c *CallExpr) (Value, error) {
	return in.extreme(c, "high", Highest)
}

func (in *Interpreter) taLowest(c *CallExpr) (Value, error) {
	return in.extreme(c, "low", Lowest)
}

func (in *Interpreter) windowed(c *CallExpr, defLength int, fn func([]float64, int, int) float64) (Value, error) {
	src, _, err := in.seriesArg(c, 0, "source")
	if err != nil {
		return Value{}, err
	}
	length, err := in.argLength(c, 1, defLength)
	if err != nil {
		return Value{}, err
	}
	return FloatValue(fn(src, in.currentBar, length)), nil
}

// extreme supports both highest(source, length) and highest(length) over high/low
func (in *Interpreter) extreme(c *CallExpr, defSource string, fn func([]float64, int, int) float64) (Value, error) {
	if len(c.Args) == 1 && c.Named["source"] == nil && c.Named["length"] == nil {
		length, err := in.argFloat(c, 0, "", 0)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(fn(in.builtinSeries[defSource], in.currentBar, int(length))), nil
	}
	return in.windowed(c, 0, fn)
}

func (in *Interpreter) taEma(c *CallExpr) (Value, error) {
	src, key, err := in.seriesArg(c, 0, "source")
	if err != nil {
		return Value{}, err
	}
	length, err := in.argLength(c, 1, 0)
	if err != nil {
		return Value{}, err
	}

	memKey := fmt.Sprintf("%s:%d", key, length)
	mem, ok := in.emas[memKey]
	if !ok {
		mem = newLazySeries(in.barCount)
		in.emas[memKey] = mem
	}

	_ = mem.fill(in.currentBar, func(bar int) (float64, error) {
		prev := NoValue
		if bar+1 < in.barCount {
			prev = mem.values[bar+1]
		}
		return Ema(src, bar, length, prev), nil
	})
	return FloatValue(mem.values[in.currentBar]), nil
}

func (in *Interpreter) taCrossover(c *CallExpr) (Value, error) {
	return in.cross(c, Crossover)
}

func (in *Interpreter) taCrossunder(c *CallExpr) (Value, error) {
	return in.cross(c, Crossunder)
}

func (in *Interpreter) cross(c *CallExpr, fn func(a, b []float64, bar int) bool) (Value, error) {
	a, _, err := in.seriesArg(c, 0, "source1")
	if err != nil {
		return Value{}, err
	}
	b, _, err := in.seriesArg(c, 1, "source2")
	if err != nil {
		return Value{}, err
	}
	return BoolValue(fn(a, b, in.currentBar)), nil
}

// Outputs

func (in *Interpreter) isOldestBar() bool {
	return in.currentBar == in.barCount-1
}

func (in *Interpreter) plot(c *CallExpr) (Value, error) {
	v, _, err := in.argValue(c, 0, "series")
	if err != nil {
		return Value{}, err
	}
	value := v.AsFloat()

	title, err := in.callSiteTitle(c, 1, in.plotTitles, "Plot")
	if err != nil {
		return Value{}, err
	}
	color, hasColor, err := in.argColor(c, 2, "color")
	if err != nil {
		return Value{}, err
	}

	p := in.out.Plot(title)
	if p == nil {
		width, err := in.argFloat(c, 3, "linewidth", 1)
		if err != nil {
			return Value{}, err
		}
		p = &Plot{
			Title:  title,
			Values: make(PlotValues, in.barCount),
			Color:  defaultPlotColor,
			Width:  int(width),
		}
		for i := range p.Values {
			p.Values[i] = math.NaN()
		}
		in.out.Plots = append(in.out.Plots, p)
	}
	if hasColor {
		p.Color = color
	}
	p.Values[in.currentBar] = value

	return FloatValue(value), nil
}

// callSiteTitle evaluates a title argument, or names an untitled call site "<prefix> N"
func (in *Interpreter) callSiteTitle(c *CallExpr, index int, sites map[NodeID]string, prefix string) (string, error) {
	if e := c.Arg(index, "title"); e != nil {
		v, err := in.eval(e)
		if err != nil {
			return "", err
		}
		return v.AsString(), nil
	}
	if title, ok := sites[c.ID()]; ok {
		return title, nil
	}
	title := fmt.Sprintf("%s %d", prefix, len(sites)+1)
	sites[c.ID()] = title
	return title, nil
}

func (in *Interpreter) hline(c *CallExpr) (Value, error) {
	price, err := in.argFloat(c, 0, "price", 0)
	if err != nil {
		return Value{}, err
	}
	if !in.isOldestBar() {
		return FloatValue(price), nil
	}

	title, err := in.argString(c, 1, "title", "")
	if err != nil {
		return Value{}, err
	}
	color, ok, err := in.argColor(c, 2, "color")
	if err != nil {
		return Value{}, err
	}
	if !ok {
		color = namedColors["gray"]
	}
	styleName, err := in.argString(c, 3, "linestyle", "dashed")
	if err != nil {
		return Value{}, err
	}
	style, ok := ParseHLineStyle(styleName)
	if !ok {
		style = HLineDashed
	}

	in.out.HLines = append(in.out.HLines, HLine{Price: price, Title: title, Color: color, Style: style})
	return FloatValue(price), nil
}

func (in *Interpreter) bgcolor(c *CallExpr) (Value, error) {
	color, ok, err := in.argColor(c, 0, "color")
	if err != nil {
		return Value{}, err
	}
	if ok && color.A() != 0 {
		in.out.Backgrounds = append(in.out.Backgrounds, Background{BarIndex: in.currentBar, Color: color})
	}
	return FloatValue(0), nil
}

func (in *Interpreter) plotshape(c *CallExpr) (Value, error) {
	cond, err := in.argBool(c, 0, "series", false)
	if err != nil {
		return Value{}, err
	}
	if !cond {
		return BoolValue(false), nil
	}

	styleName, err := in.argString(c, 2, "style", "circle")
	if err != nil {
		return Value{}, err
	}
	style, ok := ParseShapeStyle(styleName)
	if !ok {
		style = ShapeCircle
	}
	location, err := in.argString(c, 3, "location", "")
	if err != nil {
		return Value{}, err
	}
	color, ok, err := in.argColor(c, 4, "color")
	if err != nil {
		return Value{}, err
	}
	if !ok {
		color = defaultPlotColor
	}

	var price float64
	switch strings.ToLower(location) {
	case "abovebar":
		high := in.builtinSeries["high"][in.currentBar]
		price = high + math.Abs(high)*shapeOffset
	case "belowbar":
		low := in.builtinSeries["low"][in.currentBar]
		price = low - math.Abs(low)*shapeOffset
	default:
		price = in.builtinSeries["close"][in.currentBar]
	}

	in.out.Shapes = append(in.out.Shapes, Shape{BarIndex: in.currentBar, Price: price, Style: style, Color: color})
	return BoolValue(true), nil
}

func (in *Interpreter) alertcondition(c *CallExpr) (Value, error) {
	cond, err := in.argBool(c, 0, "condition", false)
	if err != nil {
		return Value{}, err
	}
	title, err := in.argString(c, 1, "title", "Alert")
	if err != nil {
		return Value{}, err
	}

	// alerts register on the oldest bar only; later bars update known alerts
	a := in.out.Alert(title)
	if a == nil {
		if !in.isOldestBar() {
			return BoolValue(cond), nil
		}
		message, err := in.argString(c, 2, "message", "")
		if err != nil {
			return Value{}, err
		}
		a = &Alert{Title: title, Message: message, Triggered: make([]bool, in.barCount)}
		in.out.Alerts = append(in.out.Alerts, a)
	}
	a.Triggered[in.currentBar] = cond
	return BoolValue(cond), nil
}

func (in *Interpreter) strategyEntry(c *CallExpr) (Value, error) {
	when, err := in.argBool(c, -1, "when", true)
	if err != nil || !when {
		return BoolValue(false), err
	}
	id, err := in.argString(c, 0, "id", "")
	if err != nil {
		return Value{}, err
	}
	dir, err := in.argString(c, 1, "direction", "long")
	if err != nil {
		return Value{}, err
	}

	direction := DirectionLong
	if strings.EqualFold(dir, "short") {
		direction = DirectionShort
	}
	in.out.Signals = append(in.out.Signals, Signal{BarIndex: in.currentBar, ID: id, Direction: direction})
	return BoolValue(true), nil
}

func (in *Interpreter) strategyClose(c *CallExpr) (Value, error) {
	when, err := in.argBool(c, -1, "when", true)
	if err != nil || !when {
		return BoolValue(false), err
	}
	id, err := in.argString(c, 0, "id", "")
	if err != nil {
		return Value{}, err
	}
	in.out.Signals = append(in.out.Signals, Signal{BarIndex: in.currentBar, ID: id, Direction: DirectionClose})
	return BoolValue(true), nil
}

// Inputs

type inputKind int

const (
	inputAny inputKind = iota
	inputInt
	inputFloat
	inputBool
)

func (in *Interpreter) input(c *CallExpr) (Value, error)      { return in.resolveInput(c, inputAny) }
func (in *Interpreter) inputInt(c *CallExpr) (Value, error)   { return in.resolveInput(c, inputInt) }
func (in *Interpreter) inputFloat(c *CallExpr) (Value, error) { return in.resolveInput(c, inputFloat) }
func (in *Interpreter) inputBool(c *CallExpr) (Value, error)  { return in.resolveInput(c, inputBool) }

// resolveInput registers the input on first evaluation and returns the same value on
// every later bar. A caller override for the title wins over the literal default.
func (in *Interpreter) resolveInput(c *CallExpr, kind inputKind) (Value, error) {
	title, err := in.callSiteTitle(c, 1, in.inputTitles, "Input")
	if err != nil {
		return Value{}, err
	}
	if v, ok := in.inputs[title]; ok {
		return v, nil
	}

	def, _, err := in.argValue(c, 0, "defval")
	if err != nil {
		return Value{}, err
	}
	if kind == inputAny && def.Kind == KindBool {
		kind = inputBool
	}

	defFloat := def.AsFloat()
	value := defFloat
	if override, ok := in.inputValues[title]; ok {
		value = override
	}

	var v Value
	switch kind {
	case inputInt:
		value = math.Trunc(value)
		v = FloatValue(value)
	case inputBool:
		if value != 0 && !math.IsNaN(value) {
			value = 1
		} else {
			value = 0
		}
		v = BoolValue(value == 1)
	default:
		v = FloatValue(value)
	}

	in.inputs[title] = v
	in.out.Inputs = append(in.out.Inputs, Input{Name: title, Default: defFloat, Value: value})
	return v, nil
}

// Utility

func mathFunc(fn func(float64) float64) builtinFunc {
	return func(in *Interpreter, c *CallExpr) (Value, error) {
		x, err := in.argFloat(c, 0, "number", 0)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(fn(x)), nil
	}
}

func (in *Interpreter) mathPow(c *CallExpr) (Value, error) {
	base, err := in.argFloat(c, 0, "base", 0)
	if err != nil {
		return Value{}, err
	}
	exp, err := in.argFloat(c, 1, "exponent", 1)
	if err != nil {
		return Value{}, err
	}
	r := math.Pow(base, exp)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return FloatValue(0), nil
	}
	return FloatValue(r), nil
}

func (in *Interpreter) mathRound(c *CallExpr) (Value, error) {
	x, err := in.argFloat(c, 0, "number", 0)
	if err != nil {
		return Value{}, err
	}
	precision, err := in.argFloat(c, 1, "precision", 0)
	if err != nil {
		return Value{}, err
	}
	multiplier := math.Pow(10, math.Trunc(precision))
	return FloatValue(math.Round(x*multiplier) / multiplier), nil
}

func (in *Interpreter) mathMax(c *CallExpr) (Value, error) {
	return in.fold(c, math.Max)
}

func (in *Interpreter) mathMin(c *CallExpr) (Value, error) {
	return in.fold(c, math.Min)
}

func (in *Interpreter) fold(c *CallExpr, fn func(a, b float64) float64) (Value, error) {
	if len(c.Args) == 0 {
		return FloatValue(0), nil
	}
	var acc float64
	for i, e := range c.Args {
		v, err := in.eval(e)
		if err != nil {
			return Value{}, err
		}
		if i == 0 {
			acc = v.AsFloat()
			continue
		}
		acc = fn(acc, v.AsFloat())
	}
	return FloatValue(acc), nil
}

func (in *Interpreter) nz(c *CallExpr) (Value, error) {
	v, _, err := in.argValue(c, 0, "source")
	if err != nil {
		return Value{}, err
	}
	if v.Kind == KindFloat && math.IsNaN(v.num) {
		repl, err := in.argFloat(c, 1, "replacement", 0)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(repl), nil
	}
	return v, nil
}

func (in *Interpreter) na(c *CallExpr) (Value, error) {
	v, ok, err := in.argValue(c, 0, "x")
	if err != nil {
		return Value{}, err
	}
	return BoolValue(!ok || (v.Kind == KindFloat && math.IsNaN(v.num))), nil
}

// transpToAlpha maps a 0..100 transparency to an alpha channel
func transpToAlpha(transp float64) uint8 {
	if math.IsNaN(transp) {
		transp = 0
	}
	transp = math.Max(0, math.Min(100, transp))
	return uint8(math.Round(255 * (1 - transp/100)))
}

func (in *Interpreter) colorNew(c *CallExpr) (Value, error) {
	color, ok, err := in.argColor(c, 0, "color")
	if err != nil {
		return Value{}, err
	}
	if !ok {
		return FloatValue(math.NaN()), nil
	}
	transp, err := in.argFloat(c, 1, "transp", 0)
	if err != nil {
		return Value{}, err
	}
	return ColorValue(color.WithAlpha(transpToAlpha(transp))), nil
}

func (in *Interpreter) colorRGB(c *CallExpr) (Value, error) {
	var channels [3]uint8
	for i, name := range []string{"red", "green", "blue"} {
		f, err := in.argFloat(c, i, name, 0)
		if err != nil {
			return Value{}, err
		}
		channels[i] = uint8(math.Max(0, math.Min(255, f)))
	}
	transp, err := in.argFloat(c, 3, "transp", 0)
	if err != nil {
		return Value{}, err
	}
	return ColorValue(RGBA(channels[0], channels[1], channels[2], transpToAlpha(transp))), nil
}
