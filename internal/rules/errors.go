package rules

import (
	"errors"
	"fmt"
)

// ErrInvalidRule is the kind every rule validation failure unwraps to.
var ErrInvalidRule = errors.New("invalid rule")

// RuleError reports which condition was rejected and why. Index is -1 when
// the problem is with the tree itself.
type RuleError struct {
	Index  int
	Reason string
}

func (e *RuleError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid rule: %s", e.Reason)
	}
	return fmt.Sprintf("invalid rule: condition %d: %s", e.Index, e.Reason)
}

func (e *RuleError) Unwrap() error {
	return ErrInvalidRule
}

func invalid(format string, args ...any) *RuleError {
	return &RuleError{Index: -1, Reason: fmt.Sprintf(format, args...)}
}

func atIndex(err error, i int) error {
	var re *RuleError
	if errors.As(err, &re) && re.Index < 0 {
		return &RuleError{Index: i, Reason: re.Reason}
	}
	return err
}
