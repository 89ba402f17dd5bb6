package logscan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	MessageKey   = "msg"
	LogKey       = "log"
	LevelKey     = "level"
	TimestampKey = "ts"
)

// zone-less layouts are read as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Record is one structured line of an agent log.
type Record struct {
	Message   string
	Level     string
	Log       string
	Timestamp time.Time
	Fields    map[string]any
}

// Text returns the value of a text field, msg and log included.
func (r Record) Text(key string) (string, bool) {
	switch key {
	case "", MessageKey:
		return r.Message, r.Message != ""
	case LogKey:
		return r.Log, r.Log != ""
	}
	return r.String(key)
}

// String returns a field as a string. Numbers keep their JSON spelling.
func (r Record) String(key string) (string, bool) {
	v, ok := r.Fields[key]
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	default:
		return "", false
	}
}

// Parse decodes a JSON log line. It reports false for anything that is not a
// JSON object with a usable ts field.
func Parse(line string) (Record, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return Record{}, false
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(line)))
	dec.UseNumber()
	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil {
		return Record{}, false
	}

	ts, err := ParseTimestamp(fields[TimestampKey])
	if err != nil {
		return Record{}, false
	}

	r := Record{Timestamp: ts, Fields: fields}
	r.Message, _ = fields[MessageKey].(string)
	r.Level, _ = fields[LevelKey].(string)
	r.Log, _ = fields[LogKey].(string)
	return r, true
}

// ParseTimestamp normalizes epoch seconds (integer or fractional) and ISO-8601
// strings to a time.Time.
func ParseTimestamp(v any) (time.Time, error) {
	switch ts := v.(type) {
	case json.Number:
		if n, err := ts.Int64(); err == nil {
			return time.Unix(n, 0), nil
		}
		f, err := ts.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid epoch timestamp %q: %w", ts, err)
		}
		return fromFloat(f), nil
	case float64:
		return fromFloat(ts), nil
	case int64:
		return time.Unix(ts, 0), nil
	case int:
		return time.Unix(int64(ts), 0), nil
	case string:
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, ts); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q", ts)
	case nil:
		return time.Time{}, fmt.Errorf("missing timestamp")
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func fromFloat(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9)))
}
