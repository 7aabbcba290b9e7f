package recordstore

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the naive UTC datetime format records carry.
const TimeLayout = "2006-01-02 15:04:05"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts the record layout and RFC 3339. Naive values are UTC.
func ParseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{TimeLayout, "2006-01-02T15:04:05", time.RFC3339Nano} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Record is one row as a field map. Relational fields hold either a bare id
// or an [id, display name] pair; unset values may come back as false.
type Record map[string]any

func (r Record) ID() int64 { return r.Int("id") }

func (r Record) Int(field string) int64 {
	id, _ := toInt(r[field])
	return id
}

func (r Record) Float(field string) float64 {
	switch v := r[field].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}

func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

func (r Record) Bool(field string) bool {
	switch v := r[field].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// Ref returns the id and display name of a relational field.
func (r Record) Ref(field string) (int64, string) {
	if pair, ok := r[field].([]any); ok {
		if len(pair) == 0 {
			return 0, ""
		}
		id, _ := toInt(pair[0])
		name := ""
		if len(pair) > 1 {
			name, _ = pair[1].(string)
		}
		return id, name
	}
	return r.Int(field), ""
}

// Time parses a datetime field. Missing or unparsable values report false.
func (r Record) Time(field string) (time.Time, bool) {
	switch v := r[field].(type) {
	case string:
		return ParseTime(v)
	case time.Time:
		return v.UTC(), !v.IsZero()
	}
	return time.Time{}, false
}

func (r Record) IDs(field string) []int64 {
	switch v := r[field].(type) {
	case []int64:
		return append([]int64(nil), v...)
	case []any:
		out := make([]int64, 0, len(v))
		for _, raw := range v {
			if id, ok := toInt(raw); ok {
				out = append(out, id)
			}
		}
		return out
	}
	return nil
}

// Only keeps the named fields plus id. An empty list keeps everything.
func (r Record) Only(fields []string) Record {
	if len(fields) == 0 {
		return r
	}
	out := Record{"id": r["id"]}
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		} else {
			out[f] = false
		}
	}
	return out
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	case []any:
		if len(n) > 0 {
			return toInt(n[0])
		}
	}
	return 0, false
}

// scalarText renders a domain value the way jsonb ->> renders it.
func scalarText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case nil:
		return ""
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func listText(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []int64:
		out := make([]string, len(x))
		for i, id := range x {
			out[i] = strconv.FormatInt(id, 10)
		}
		return out
	case []any:
		out := make([]string, len(x))
		for i, item := range x {
			out[i] = scalarText(item)
		}
		return out
	}
	return []string{scalarText(v)}
}
