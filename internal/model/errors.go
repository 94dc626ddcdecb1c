package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidReceipt     = errors.New("invalid receipt")
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrCustomerReferenced = errors.New("customer is referenced by orders or deliveries")
	ErrAIUnavailable      = errors.New("ai collaborator unavailable")
	ErrPartialDispatch    = errors.New("partial dispatch failure")
)

// StateError rejects an operation that the entity's current status does
// not allow.
type StateError struct {
	Entity  string
	ID      string
	Current string
	Action  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s: cannot %s in status %s", e.Entity, e.ID, e.Action, e.Current)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// AIError wraps whatever the collaborator returned. It matches both
// ErrAIUnavailable and the underlying cause.
type AIError struct {
	Op  string
	Err error
}

func (e *AIError) Error() string {
	return fmt.Sprintf("ai %s: %v", e.Op, e.Err)
}

func (e *AIError) Unwrap() []error {
	return []error{ErrAIUnavailable, e.Err}
}

// PartialDispatchError lists the recipients that could not be dispatched
// while the activation itself succeeded.
type PartialDispatchError struct {
	CampaignID string
	Failures   []DispatchFailure
}

func (e *PartialDispatchError) Error() string {
	reasons := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		reasons = append(reasons, f.CustomerID.String()+": "+f.Reason)
	}
	return fmt.Sprintf("campaign %s: %d dispatch failures (%s)", e.CampaignID, len(e.Failures), strings.Join(reasons, "; "))
}

func (e *PartialDispatchError) Unwrap() error {
	return ErrPartialDispatch
}
