package script

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestPlotValuesJSON(t *testing.T) {
	values := PlotValues{1.5, math.NaN(), 3}

	data, err := json.Marshal(values)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "[1.5,null,3]" {
		t.Errorf("expected [1.5,null,3], got %s", data)
	}

	var decoded PlotValues
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded) != 3 || decoded[0] != 1.5 || !math.IsNaN(decoded[1]) || decoded[2] != 3 {
		t.Errorf("unexpected decoded values %v", decoded)
	}
}

func TestOutputJSON(t *testing.T) {
	out := newOutput(2)
	out.Title = "Test"
	out.Plots = append(out.Plots, &Plot{Title: "P", Values: PlotValues{1, math.NaN()}, Color: defaultPlotColor, Width: 1})
	out.HLines = append(out.HLines, HLine{Price: 70, Style: HLineDashed, Color: namedColors["gray"]})
	out.Shapes = append(out.Shapes, Shape{BarIndex: 0, Price: 10, Style: ShapeTriangleUp, Color: namedColors["green"]})
	out.Signals = append(out.Signals, Signal{BarIndex: 1, ID: "L", Direction: DirectionShort})

	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	text := string(data)

	for _, want := range []string{
		`"title":"Test"`,
		`"is_overlay":true`,
		`"values":[1,null]`,
		`"style":"dashed"`,
		`"style":"triangleup"`,
		`"direction":"short"`,
		`"color":"#2196F3FF"`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %s in %s", want, text)
		}
	}
	if strings.Contains(text, `"error"`) {
		t.Errorf("expected error to be omitted, got %s", text)
	}

	var decoded Output
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Signals[0].Direction != DirectionShort {
		t.Errorf("expected short signal, got %s", decoded.Signals[0].Direction)
	}
	if decoded.HLines[0].Style != HLineDashed {
		t.Errorf("expected dashed hline, got %s", decoded.HLines[0].Style)
	}
}

func TestParseStyles(t *testing.T) {
	if s, ok := ParseHLineStyle("style_dotted"); !ok || s != HLineDotted {
		t.Errorf("expected dotted, got %s", s)
	}
	if _, ok := ParseHLineStyle("wavy"); ok {
		t.Error("expected unknown hline style to fail")
	}
	if s, ok := ParseShapeStyle("Diamond"); !ok || s != ShapeDiamond {
		t.Errorf("expected diamond, got %s", s)
	}
}

func TestOutputJSONNonFiniteValues(t *testing.T) {
	source := "hline(na, \"H\")\nx = input(na, \"X\")\nhline(math.exp(1000), \"I\")\nplotshape(true, \"S\", location=\"abovebar\")\n"
	out, _ := execute(t, source, newestFirst(3, 2, 1))
	out.Shapes[0].Price = math.Inf(-1)

	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	encoded := string(data)
	for _, want := range []string{
		`{"price":null,"title":"H"`,
		`{"price":null,"title":"I"`,
		`{"name":"X","default":null,"value":null}`,
		`"price":null,"style":"circle"`,
	} {
		if !strings.Contains(encoded, want) {
			t.Errorf("expected %s in %s", want, encoded)
		}
	}

	var decoded Output
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.HLines) != 2 || !math.IsNaN(decoded.HLines[0].Price) {
		t.Errorf("expected na hline price to decode as NaN, got %+v", decoded.HLines)
	}
	if in, ok := decoded.Input("X"); !ok || !math.IsNaN(in.Default) {
		t.Errorf("expected na input default to decode as NaN, got %+v", in)
	}
	if decoded.Shapes[0].BarIndex != out.Shapes[0].BarIndex || !math.IsNaN(decoded.Shapes[0].Price) {
		t.Errorf("expected shape to round-trip with null price, got %+v", decoded.Shapes[0])
	}
}
