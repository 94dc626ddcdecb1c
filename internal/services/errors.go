package services

import (
	"errors"

	"github.com/nimasrn/crm-campaigns/internal/model"
)

func isStateError(err error) bool {
	var se *model.StateError
	return errors.As(err, &se)
}

func stateError(c *model.Campaign, action string) error {
	return &model.StateError{
		Entity:  "campaign",
		ID:      c.ID.String(),
		Current: string(c.Status),
		Action:  action,
	}
}
