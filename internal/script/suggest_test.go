package script

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSuggest(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"missing letter", "crossovr", "crossover"},
		{"extra letter", "smaa", "sma"},
		{"namespaced typo", "ta.emma", "ta.ema"},
		{"nothing close", "zzzzzz", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Suggest(tt.input); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestBuiltinNames(t *testing.T) {
	names := BuiltinNames()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("expected sorted unique names, got %q before %q", names[i-1], names[i])
		}
	}

	names[0] = "mutated"
	if BuiltinNames()[0] == "mutated" {
		t.Error("expected BuiltinNames to return a copy")
	}
}

func TestUnknownFunctionSuggestion(t *testing.T) {
	program := mustCompile(t, "x = smaa(close, 3)\n")
	_, err := NewInterpreter(program, newestFirst(1, 2, 3), zerolog.Nop()).Execute()

	var unknownErr *UnknownFunctionError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("expected *UnknownFunctionError, got %v", err)
	}
	if unknownErr.Suggestion != "sma" {
		t.Errorf("expected suggestion sma, got %q", unknownErr.Suggestion)
	}
	if !strings.Contains(err.Error(), `did you mean "sma"?`) {
		t.Errorf("expected suggestion in message, got %q", err.Error())
	}
}
