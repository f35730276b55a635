package script

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/arijanluiken/chartscript/pkg/bars"
)

// Interpreter executes a Program over a bar buffer. It is single-use per Execute call
// and not safe for concurrent use; the Program itself is read-only and may be shared.
type Interpreter struct {
	program *Program
	buffer  bars.Buffer
	logger  zerolog.Logger

	builtins  map[string]builtinFunc
	constants map[string]Value

	inputValues map[string]float64

	// per-run state, rebuilt by Execute
	barCount      int
	currentBar    int
	builtinSeries map[string][]float64
	series        map[string][]float64
	temps         map[NodeID]*lazySeries
	emas          map[string]*lazySeries
	inputs        map[string]Value
	plotTitles    map[NodeID]string
	inputTitles   map[NodeID]string
	warned        map[string]bool
	out           *Output
}

// NewInterpreter creates an interpreter for program over buffer
func NewInterpreter(program *Program, buffer bars.Buffer, logger zerolog.Logger) *Interpreter {
	if program == nil {
		program = &Program{}
	}
	return &Interpreter{
		program:     program,
		buffer:      buffer,
		logger:      logger,
		builtins:    newBuiltinTable(),
		constants:   newConstantTable(),
		inputValues: make(map[string]float64),
	}
}

// SetInputValues seeds input() overrides keyed by input title
func (in *Interpreter) SetInputValues(values map[string]float64) {
	in.inputValues = make(map[string]float64, len(values))
	for k, v := range values {
		in.inputValues[k] = v
	}
}

// Execute evaluates every statement once per bar, oldest to newest. An empty buffer
// yields an Output whose Error is ErrNoData. An unknown function aborts the run.
func (in *Interpreter) Execute() (*Output, error) {
	started := time.Now()

	n := 0
	if in.buffer != nil {
		n = in.buffer.Count()
	}
	in.reset(n)

	if n == 0 {
		in.out.Error = ErrNoData
		in.logger.Debug().Msg("Script run skipped: no candle data")
		return in.out, nil
	}

	in.loadBuiltinSeries()

	in.currentBar = n - 1
	if err := in.applyDeclaration(); err != nil {
		return nil, err
	}

	for bar := n - 1; bar >= 0; bar-- {
		in.currentBar = bar
		if err := in.execBlock(in.program.Statements); err != nil {
			in.logger.Debug().Err(err).Int("bar", bar).Msg("Script run aborted")
			return nil, err
		}
	}

	in.logger.Debug().
		Str("title", in.out.Title).
		Int("bars", n).
		Int("plots", len(in.out.Plots)).
		Int("signals", len(in.out.Signals)).
		Dur("elapsed", time.Since(started)).
		Msg("Script executed")

	return in.out, nil
}

func (in *Interpreter) reset(n int) {
	in.barCount = n
	in.currentBar = 0
	in.builtinSeries = make(map[string][]float64)
	in.series = make(map[string][]float64)
	in.temps = make(map[NodeID]*lazySeries)
	in.emas = make(map[string]*lazySeries)
	in.inputs = make(map[string]Value)
	in.plotTitles = make(map[NodeID]string)
	in.inputTitles = make(map[NodeID]string)
	in.warned = make(map[string]bool)
	in.out = newOutput(n)
}

func (in *Interpreter) loadBuiltinSeries() {
	n := in.barCount
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	volume := make([]float64, n)
	hl2 := make([]float64, n)
	hlc3 := make([]float64, n)
	ohlc4 := make([]float64, n)

	for i := 0; i < n; i++ {
		b := in.buffer.At(i)
		open[i] = b.Open
		high[i] = b.High
		low[i] = b.Low
		closes[i] = b.Close
		volume[i] = b.Volume
		hl2[i] = (b.High + b.Low) / 2
		hlc3[i] = (b.High + b.Low + b.Close) / 3
		ohlc4[i] = (b.Open + b.High + b.Low + b.Close) / 4
	}

	in.builtinSeries["open"] = open
	in.builtinSeries["high"] = high
	in.builtinSeries["low"] = low
	in.builtinSeries["close"] = closes
	in.builtinSeries["volume"] = volume
	in.builtinSeries["hl2"] = hl2
	in.builtinSeries["hlc3"] = hlc3
	in.builtinSeries["ohlc4"] = ohlc4
}

// applyDeclaration reads title and overlay from indicator(...) / strategy(...)
func (in *Interpreter) applyDeclaration() error {
	decl := in.program.Declaration
	if decl == nil {
		return nil
	}

	if e := decl.Arg(0, "title"); e != nil {
		v, err := in.eval(e)
		if err != nil {
			return err
		}
		in.out.Title = v.AsString()
	}
	if e := decl.Arg(-1, "overlay"); e != nil {
		v, err := in.eval(e)
		if err != nil {
			return err
		}
		in.out.IsOverlay = v.AsBool()
	}
	return nil
}

// Statements

func (in *Interpreter) execBlock(stmts []Stmt) error {
	for _, stmt := range stmts {
		if err := in.exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (in *Interpreter) exec(stmt Stmt) error {
	switch s := stmt.(type) {
	case *AssignmentStmt:
		v, err := in.eval(s.Value)
		if err != nil {
			return err
		}
		in.userSeries(s.Name)[in.currentBar] = v.AsFloat()
		return nil

	case *ExpressionStmt:
		_, err := in.eval(s.Expr)
		return err

	case *IfStmt:
		cond, err := in.eval(s.Cond)
		if err != nil {
			return err
		}
		if cond.AsBool() {
			return in.execBlock(s.Then)
		}
		return in.execBlock(s.Else)
	}
	return nil
}

// userSeries returns the named user series, creating it on first reference
func (in *Interpreter) userSeries(name string) []float64 {
	s, ok := in.series[name]
	if !ok {
		if _, shadowed := in.builtinSeries[name]; shadowed && !in.warned["assign:"+name] {
			in.warned["assign:"+name] = true
			in.logger.Warn().Str("name", name).Msg("Variable shadows a built-in series; reads resolve to the built-in")
		}
		s = make([]float64, in.barCount)
		in.series[name] = s
	}
	return s
}

// Series returns a copy of a user or built-in series after Execute, newest first
func (in *Interpreter) Series(name string) ([]float64, bool) {
	s, ok := in.builtinSeries[name]
	if !ok {
		s, ok = in.series[name]
	}
	if !ok {
		return nil, false
	}
	return append([]float64(nil), s...), true
}

// lazySeries is a per-bar cache filled from the oldest bar toward the newest.
// done is the oldest bar not yet computed plus one, so bars [done, n) are valid.
type lazySeries struct {
	values []float64
	done   int
}

func newLazySeries(n int) *lazySeries {
	values := make([]float64, n)
	for i := range values {
		values[i] = math.NaN()
	}
	return &lazySeries{values: values, done: n}
}

// fill computes every missing bar from the oldest pending one down to bar
func (ls *lazySeries) fill(bar int, compute func(bar int) (float64, error)) error {
	for ls.done > bar {
		next := ls.done - 1
		v, err := compute(next)
		if err != nil {
			return err
		}
		ls.values[next] = v
		ls.done = next
	}
	return nil
}
