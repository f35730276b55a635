package script

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Output is the result of one Execute call, consumed by renderers.
// Per-bar slices are newest-first and exactly BarCount long.
type Output struct {
	Title       string       `json:"title"`
	IsOverlay   bool         `json:"is_overlay"`
	Error       string       `json:"error,omitempty"`
	BarCount    int          `json:"bar_count"`
	Inputs      []Input      `json:"inputs"`
	Plots       []*Plot      `json:"plots"`
	HLines      []HLine      `json:"hlines"`
	Backgrounds []Background `json:"backgrounds"`
	Shapes      []Shape      `json:"shapes"`
	Alerts      []*Alert     `json:"alerts"`
	Signals     []Signal     `json:"signals"`
}

func newOutput(barCount int) *Output {
	return &Output{
		IsOverlay:   true,
		BarCount:    barCount,
		Inputs:      []Input{},
		Plots:       []*Plot{},
		HLines:      []HLine{},
		Backgrounds: []Background{},
		Shapes:      []Shape{},
		Alerts:      []*Alert{},
		Signals:     []Signal{},
	}
}

// Input is a user-tunable value declared with input()
type Input struct {
	Name    string  `json:"name"`
	Default float64 `json:"default"`
	Value   float64 `json:"value"`
}

// Plot is a named line series. NaN entries mean "no point".
type Plot struct {
	Title  string     `json:"title"`
	Values PlotValues `json:"values"`
	Color  Color      `json:"color"`
	Width  int        `json:"width"`
}

// PlotValues encodes NaN as JSON null
type PlotValues []float64

func (v PlotValues) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(formatFloat(f))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// formatFloat renders f as a JSON number, or null when JSON cannot represent it
func formatFloat(f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null")
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64)
}

func (v *PlotValues) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(PlotValues, len(raw))
	for i, f := range raw {
		if f == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *f
		}
	}
	*v = out
	return nil
}

// HLine is a horizontal price level
type HLine struct {
	Price float64    `json:"price"`
	Title string     `json:"title"`
	Color Color      `json:"color"`
	Style HLineStyle `json:"style"`
}

// Background colors one bar
type Background struct {
	BarIndex int   `json:"bar_index"`
	Color    Color `json:"color"`
}

// Shape is a marker drawn at one bar
type Shape struct {
	BarIndex int        `json:"bar_index"`
	Price    float64    `json:"price"`
	Style    ShapeStyle `json:"style"`
	Color    Color      `json:"color"`
}

// Alert is a named condition with its per-bar trigger state
type Alert struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	Triggered []bool `json:"triggered"`
}

// Signal is a strategy entry or exit event
type Signal struct {
	BarIndex  int       `json:"bar_index"`
	ID        string    `json:"id"`
	Direction Direction `json:"direction"`
}

// jsonFloat is a float64 that encodes NaN and ±Inf as null and decodes null as NaN
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	return formatFloat(float64(f)), nil
}

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = jsonFloat(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

// Input, HLine and Shape carry script-computed prices that may be na or overflow.
// Their JSON forms swap those fields for jsonFloat.

type inputJSON struct {
	Name    string    `json:"name"`
	Default jsonFloat `json:"default"`
	Value   jsonFloat `json:"value"`
}

func (in Input) MarshalJSON() ([]byte, error) {
	return json.Marshal(inputJSON{Name: in.Name, Default: jsonFloat(in.Default), Value: jsonFloat(in.Value)})
}

func (in *Input) UnmarshalJSON(data []byte) error {
	var raw inputJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*in = Input{Name: raw.Name, Default: float64(raw.Default), Value: float64(raw.Value)}
	return nil
}

type hlineJSON struct {
	Price jsonFloat  `json:"price"`
	Title string     `json:"title"`
	Color Color      `json:"color"`
	Style HLineStyle `json:"style"`
}

func (h HLine) MarshalJSON() ([]byte, error) {
	return json.Marshal(hlineJSON{Price: jsonFloat(h.Price), Title: h.Title, Color: h.Color, Style: h.Style})
}

func (h *HLine) UnmarshalJSON(data []byte) error {
	var raw hlineJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*h = HLine{Price: float64(raw.Price), Title: raw.Title, Color: raw.Color, Style: raw.Style}
	return nil
}

type shapeJSON struct {
	BarIndex int        `json:"bar_index"`
	Price    jsonFloat  `json:"price"`
	Style    ShapeStyle `json:"style"`
	Color    Color      `json:"color"`
}

func (s Shape) MarshalJSON() ([]byte, error) {
	return json.Marshal(shapeJSON{BarIndex: s.BarIndex, Price: jsonFloat(s.Price), Style: s.Style, Color: s.Color})
}

func (s *Shape) UnmarshalJSON(data []byte) error {
	var raw shapeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Shape{BarIndex: raw.BarIndex, Price: float64(raw.Price), Style: raw.Style, Color: raw.Color}
	return nil
}

// Plot returns the plot with the given title, or nil
func (o *Output) Plot(title string) *Plot {
	for _, p := range o.Plots {
		if p.Title == title {
			return p
		}
	}
	return nil
}

// Alert returns the alert with the given title, or nil
func (o *Output) Alert(title string) *Alert {
	for _, a := range o.Alerts {
		if a.Title == title {
			return a
		}
	}
	return nil
}

// Input returns the input with the given name
func (o *Output) Input(name string) (Input, bool) {
	for _, in := range o.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return Input{}, false
}

// Enumerations

type HLineStyle int

const (
	HLineSolid HLineStyle = iota
	HLineDashed
	HLineDotted
)

var hlineStyleNames = []string{"solid", "dashed", "dotted"}

type ShapeStyle int

const (
	ShapeTriangleUp ShapeStyle = iota
	ShapeTriangleDown
	ShapeArrowUp
	ShapeArrowDown
	ShapeCircle
	ShapeCross
	ShapeDiamond
)

var shapeStyleNames = []string{"triangleup", "triangledown", "arrowup", "arrowdown", "circle", "cross", "diamond"}

type Direction int

const (
	DirectionLong Direction = iota
	DirectionShort
	DirectionClose
)

var directionNames = []string{"long", "short", "close"}

func (s HLineStyle) String() string { return enumName(hlineStyleNames, int(s)) }
func (s ShapeStyle) String() string { return enumName(shapeStyleNames, int(s)) }
func (d Direction) String() string  { return enumName(directionNames, int(d)) }

func (s HLineStyle) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s ShapeStyle) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (d Direction) MarshalText() ([]byte, error)  { return []byte(d.String()), nil }

func (s *HLineStyle) UnmarshalText(text []byte) error {
	i, err := enumIndex(hlineStyleNames, string(text))
	*s = HLineStyle(i)
	return err
}

func (s *ShapeStyle) UnmarshalText(text []byte) error {
	i, err := enumIndex(shapeStyleNames, string(text))
	*s = ShapeStyle(i)
	return err
}

func (d *Direction) UnmarshalText(text []byte) error {
	i, err := enumIndex(directionNames, string(text))
	*d = Direction(i)
	return err
}

// ParseHLineStyle accepts "dashed", "dotted", "solid" and their hline.style_ forms
func ParseHLineStyle(name string) (HLineStyle, bool) {
	i, err := enumIndex(hlineStyleNames, strings.TrimPrefix(name, "style_"))
	return HLineStyle(i), err == nil
}

// ParseShapeStyle accepts the lower-case shape names
func ParseShapeStyle(name string) (ShapeStyle, bool) {
	i, err := enumIndex(shapeStyleNames, strings.ToLower(name))
	return ShapeStyle(i), err == nil
}

func enumName(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return "unknown"
	}
	return names[i]
}

func enumIndex(names []string, name string) (int, error) {
	for i, n := range names {
		if n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown value %q", name)
}
