package script

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Color is a packed ARGB color: A<<24 | R<<16 | G<<8 | B
type Color uint32

// RGBA packs the four channels into a Color
func RGBA(r, g, b, a uint8) Color {
	return Color(uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

func (c Color) A() uint8 { return uint8(c >> 24) }
func (c Color) R() uint8 { return uint8(c >> 16) }
func (c Color) G() uint8 { return uint8(c >> 8) }
func (c Color) B() uint8 { return uint8(c) }

// WithAlpha returns the color with its alpha channel replaced
func (c Color) WithAlpha(a uint8) Color {
	return RGBA(c.R(), c.G(), c.B(), a)
}

// Hex formats the color as #RRGGBBAA
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X%02X", c.R(), c.G(), c.B(), c.A())
}

func (c Color) String() string {
	return c.Hex()
}

// ParseColor parses #RRGGBB (opaque) or #RRGGBBAA
func ParseColor(text string) (Color, error) {
	hex := strings.TrimPrefix(text, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return 0, fmt.Errorf("invalid color %q: expected 6 or 8 hex digits", text)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q: %w", text, err)
	}

	if len(hex) == 6 {
		return Color(0xFF000000 | uint32(v)), nil
	}
	// RRGGBBAA -> AARRGGBB
	rgb := uint32(v >> 8)
	a := uint32(v & 0xFF)
	return Color(a<<24 | rgb), nil
}

// MarshalJSON encodes the color as a #RRGGBBAA string
func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Hex())
}

// UnmarshalJSON decodes a #RRGGBB or #RRGGBBAA string
func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Named colors reachable as color.<name>
var namedColors = map[string]Color{
	"aqua":    RGBA(0x00, 0xBC, 0xD4, 0xFF),
	"black":   RGBA(0x36, 0x3A, 0x45, 0xFF),
	"blue":    RGBA(0x21, 0x96, 0xF3, 0xFF),
	"fuchsia": RGBA(0xE0, 0x40, 0xFB, 0xFF),
	"gray":    RGBA(0x78, 0x7B, 0x86, 0xFF),
	"green":   RGBA(0x4C, 0xAF, 0x50, 0xFF),
	"lime":    RGBA(0x00, 0xE6, 0x76, 0xFF),
	"maroon":  RGBA(0x88, 0x0E, 0x4F, 0xFF),
	"navy":    RGBA(0x31, 0x1B, 0x92, 0xFF),
	"olive":   RGBA(0x80, 0x80, 0x00, 0xFF),
	"orange":  RGBA(0xFF, 0x98, 0x00, 0xFF),
	"purple":  RGBA(0x9C, 0x27, 0xB0, 0xFF),
	"red":     RGBA(0xF2, 0x36, 0x45, 0xFF),
	"silver":  RGBA(0xB2, 0xB5, 0xBE, 0xFF),
	"teal":    RGBA(0x00, 0x89, 0x7B, 0xFF),
	"white":   RGBA(0xFF, 0xFF, 0xFF, 0xFF),
	"yellow":  RGBA(0xFF, 0xEB, 0x3B, 0xFF),
}

// defaultPlotColor is used when plot() is called without a color
var defaultPlotColor = namedColors["blue"]
