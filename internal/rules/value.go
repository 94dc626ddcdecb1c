package rules

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Value is a rule operand. It keeps the literal it was given and whether it
// arrived as a JSON number so it round-trips unchanged. The zero Value is
// unset and fails validation.
type Value struct {
	raw     string
	numeric bool
	set     bool
}

func StringValue(s string) Value {
	return Value{raw: s, set: true}
}

func NumberValue(f float64) Value {
	return Value{raw: strconv.FormatFloat(f, 'f', -1, 64), numeric: true, set: true}
}

// IsSet is false when the operand was never given.
func (v Value) IsSet() bool {
	return v.set
}

func (v Value) String() string {
	return v.raw
}

// Number reports the operand as a float when it is a JSON number or a
// string holding one.
func (v Value) Number() (float64, bool) {
	return parseNumber(v.raw)
}

// Time parses either RFC3339 or a plain YYYY-MM-DD date (UTC midnight).
func (v Value) Time() (time.Time, bool) {
	if v.numeric {
		return time.Time{}, false
	}
	return parseTime(v.raw)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.numeric {
		return []byte(v.raw), nil
	}
	return json.Marshal(v.raw)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return invalid("value is required")
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return invalid("malformed value")
		}
		*v = StringValue(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return invalid("malformed value")
		}
		*v = Value{raw: n.String(), numeric: true, set: true}
		return nil
	}
	return invalid("value must be a string or a number")
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
