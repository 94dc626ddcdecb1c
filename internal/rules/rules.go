// Package rules evaluates flat audience rule trees against customer records.
// The operator and field sets are closed: anything outside them is rejected
// while decoding, before a tree can reach the evaluator.
package rules

import (
	"encoding/json"
	"errors"
	"strings"
)

type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpContains     Operator = "contains"
)

var operators = map[Operator]struct{}{
	OpGreater: {}, OpLess: {}, OpGreaterEqual: {}, OpLessEqual: {},
	OpEqual: {}, OpNotEqual: {}, OpContains: {},
}

func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.TrimSpace(s))
	if _, ok := operators[op]; !ok {
		return "", invalid("unsupported operator %q", s)
	}
	return op, nil
}

// IsOrdering reports whether the operator compares magnitudes.
func (o Operator) IsOrdering() bool {
	switch o {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		return true
	}
	return false
}

func (o *Operator) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return invalid("operator must be a string")
	}
	op, err := ParseOperator(s)
	if err != nil {
		return err
	}
	*o = op
	return nil
}

type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindTime
)

type Field string

const (
	FieldName         Field = "name"
	FieldEmail        Field = "email"
	FieldPhone        Field = "phone"
	FieldTotalSpend   Field = "totalSpend"
	FieldVisits       Field = "visits"
	FieldLastActivity Field = "lastActivity"
)

var fields = map[Field]Kind{
	FieldName:         KindString,
	FieldEmail:        KindString,
	FieldPhone:        KindString,
	FieldTotalSpend:   KindNumber,
	FieldVisits:       KindNumber,
	FieldLastActivity: KindTime,
}

func ParseField(s string) (Field, error) {
	f := Field(strings.TrimSpace(s))
	if _, ok := fields[f]; !ok {
		return "", invalid("unsupported field %q", s)
	}
	return f, nil
}

func (f Field) Kind() Kind {
	return fields[f]
}

func (f *Field) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return invalid("field must be a string")
	}
	parsed, err := ParseField(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

type Combinator string

const (
	And Combinator = "AND"
	Or  Combinator = "OR"
)

func ParseCombinator(s string) (Combinator, error) {
	switch Combinator(strings.ToUpper(strings.TrimSpace(s))) {
	case "", And:
		return And, nil
	case Or:
		return Or, nil
	}
	return "", invalid("unsupported combinator %q", s)
}

func (c *Combinator) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return invalid("condition must be a string")
	}
	parsed, err := ParseCombinator(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

type Condition struct {
	Field    Field    `json:"field"`
	Operator Operator `json:"operator"`
	Value    Value    `json:"value"`
}

// Tree is a flat list of conditions joined by one combinator. An empty
// combinator means AND.
type Tree struct {
	Conditions []Condition `json:"conditions"`
	Combinator Combinator  `json:"condition,omitempty"`
}

func (t Tree) combinator() Combinator {
	c, err := ParseCombinator(string(t.Combinator))
	if err != nil {
		return And
	}
	return c
}

// Validate checks what decoding alone cannot: trees built in code, and
// values that must be comparable as numbers or times.
func (t Tree) Validate() error {
	if _, err := ParseCombinator(string(t.Combinator)); err != nil {
		return err
	}
	for i, c := range t.Conditions {
		if err := c.validate(); err != nil {
			return atIndex(err, i)
		}
	}
	return nil
}

func (c Condition) validate() error {
	if _, err := ParseField(string(c.Field)); err != nil {
		return err
	}
	if _, err := ParseOperator(string(c.Operator)); err != nil {
		return err
	}
	if !c.Value.IsSet() {
		return invalid("condition on %s is missing a value", c.Field)
	}
	if c.Operator == OpContains && strings.TrimSpace(c.Value.String()) == "" {
		return invalid("operator contains on %s needs a non-empty value", c.Field)
	}
	if !c.Operator.IsOrdering() {
		return nil
	}
	if c.Field.Kind() == KindTime {
		if _, ok := c.Value.Time(); !ok {
			return invalid("operator %s on %s needs a date value, got %q", c.Operator, c.Field, c.Value.String())
		}
		return nil
	}
	if _, ok := c.Value.Number(); !ok {
		return invalid("operator %s needs a numeric value, got %q", c.Operator, c.Value.String())
	}
	return nil
}

// ParseTree decodes and validates a JSON rule tree.
func ParseTree(b []byte) (Tree, error) {
	var t Tree
	if err := json.Unmarshal(b, &t); err != nil {
		var re *RuleError
		if errors.As(err, &re) {
			return Tree{}, re
		}
		return Tree{}, invalid("malformed rule tree: %v", err)
	}
	if err := t.Validate(); err != nil {
		return Tree{}, err
	}
	return t, nil
}
