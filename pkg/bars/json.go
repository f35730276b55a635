package bars

import (
	"fmt"
	"sort"
	"time"

	"github.com/tidwall/gjson"
)

// ParseJSON decodes a JSON array of bars and returns them oldest first.
// Each element is either an object with timestamp, open, high, low, close and volume
// fields, or an exchange kline array [start, open, high, low, close, volume]. Numbers
// may be sent as JSON strings. Timestamps are RFC 3339 strings or Unix milliseconds.
func ParseJSON(data []byte) ([]Bar, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid bar JSON")
	}

	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("bars must be a JSON array")
	}

	var out []Bar
	var parseErr error
	root.ForEach(func(key, value gjson.Result) bool {
		b, err := parseBar(value)
		if err != nil {
			parseErr = fmt.Errorf("bar %d: %w", key.Int(), err)
			return false
		}
		out = append(out, b)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func parseBar(v gjson.Result) (Bar, error) {
	switch {
	case v.IsArray():
		fields := v.Array()
		if len(fields) < 5 {
			return Bar{}, fmt.Errorf("kline needs at least 5 fields, got %d", len(fields))
		}
		ts, err := parseTimestamp(fields[0])
		if err != nil {
			return Bar{}, err
		}
		b := Bar{
			Timestamp: ts,
			Open:      fields[1].Float(),
			High:      fields[2].Float(),
			Low:       fields[3].Float(),
			Close:     fields[4].Float(),
		}
		if len(fields) > 5 {
			b.Volume = fields[5].Float()
		}
		return b, nil

	case v.IsObject():
		tsField := v.Get("timestamp")
		if !tsField.Exists() {
			tsField = v.Get("time")
		}
		ts, err := parseTimestamp(tsField)
		if err != nil {
			return Bar{}, err
		}
		if !v.Get("close").Exists() {
			return Bar{}, fmt.Errorf("missing close")
		}
		return Bar{
			Timestamp: ts,
			Open:      v.Get("open").Float(),
			High:      v.Get("high").Float(),
			Low:       v.Get("low").Float(),
			Close:     v.Get("close").Float(),
			Volume:    v.Get("volume").Float(),
		}, nil

	default:
		return Bar{}, fmt.Errorf("expected object or array, got %s", v.Type)
	}
}

func parseTimestamp(v gjson.Result) (time.Time, error) {
	switch v.Type {
	case gjson.Number:
		return time.UnixMilli(v.Int()).UTC(), nil
	case gjson.String:
		if t, err := time.Parse(time.RFC3339, v.Str); err == nil {
			return t, nil
		}
		// Exchanges send millisecond starts as strings
		ms := v.Int()
		if ms == 0 {
			return time.Time{}, fmt.Errorf("invalid timestamp %q", v.Str)
		}
		return time.UnixMilli(ms).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
}
