package rules

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is anything the evaluator can read fields from. A false second
// result means the field is absent on this record.
type Record interface {
	RuleValue(f Field) (any, bool)
}

// Predicate is a validated tree ready to be matched many times.
type Predicate struct {
	tree Tree
}

// Compile validates t once so Match can run per record without rechecking.
func Compile(t Tree) (*Predicate, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Predicate{tree: t}, nil
}

// Match applies the tree to r. No conditions means every record matches.
func (p *Predicate) Match(r Record) bool {
	conds := p.tree.Conditions
	if len(conds) == 0 {
		return true
	}

	if p.tree.combinator() == Or {
		for _, c := range conds {
			if c.match(r) {
				return true
			}
		}
		return false
	}

	for _, c := range conds {
		if !c.match(r) {
			return false
		}
	}
	return true
}

func (p *Predicate) Tree() Tree {
	return p.tree
}

// Evaluate is Compile followed by Match.
func Evaluate(t Tree, r Record) (bool, error) {
	p, err := Compile(t)
	if err != nil {
		return false, err
	}
	return p.Match(r), nil
}

func (c Condition) match(r Record) bool {
	raw, ok := r.RuleValue(c.Field)
	if !ok || raw == nil {
		return c.Operator == OpNotEqual
	}

	switch c.Operator {
	case OpContains:
		return strings.Contains(strings.ToLower(stringOf(raw)), strings.ToLower(c.Value.String()))
	case OpEqual:
		return c.equal(raw)
	case OpNotEqual:
		return !c.equal(raw)
	}

	cmp, ok := c.compare(raw)
	if !ok {
		return false
	}
	switch c.Operator {
	case OpGreater:
		return cmp > 0
	case OpLess:
		return cmp < 0
	case OpGreaterEqual:
		return cmp >= 0
	case OpLessEqual:
		return cmp <= 0
	}
	return false
}

// compare orders the record value against the operand. The second result is
// false when either side cannot be coerced.
func (c Condition) compare(raw any) (int, bool) {
	if c.Field.Kind() == KindTime {
		ft, ok := timeOf(raw)
		if !ok {
			return 0, false
		}
		vt, ok := c.Value.Time()
		if !ok {
			return 0, false
		}
		return ft.Compare(vt), true
	}

	fn, ok := numberOf(raw)
	if !ok {
		return 0, false
	}
	vn, ok := c.Value.Number()
	if !ok {
		return 0, false
	}
	switch {
	case fn < vn:
		return -1, true
	case fn > vn:
		return 1, true
	}
	return 0, true
}

func (c Condition) equal(raw any) bool {
	if fn, ok := numberOf(raw); ok {
		if vn, ok := c.Value.Number(); ok {
			return fn == vn
		}
	}
	if c.Field.Kind() == KindTime {
		if ft, ok := timeOf(raw); ok {
			if vt, ok := c.Value.Time(); ok {
				return ft.Equal(vt)
			}
		}
	}
	return stringOf(raw) == c.Value.String()
}

func numberOf(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		return parseNumber(n)
	}
	return 0, false
}

func timeOf(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		return parseTime(t)
	}
	return time.Time{}, false
}

func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case time.Time:
		return s.UTC().Format(time.RFC3339)
	}
	return ""
}
