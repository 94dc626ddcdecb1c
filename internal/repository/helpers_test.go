package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/internal/rules"
	"github.com/nimasrn/crm-campaigns/internal/testutil"
	"github.com/nimasrn/crm-campaigns/pkg/pg"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *pg.DB {
	return testutil.OpenDB(t, AutoMigrate)
}

func seedCustomer(t *testing.T, repo *CustomerRepository, name, email string, spend float64) *model.Customer {
	t.Helper()
	c, err := repo.Create(context.Background(), &model.Customer{
		Name:         name,
		Email:        email,
		TotalSpend:   spend,
		LastActivity: time.Now(),
	})
	require.NoError(t, err)
	return c
}

func seedCampaign(t *testing.T, repo *CampaignRepository) *model.Campaign {
	t.Helper()
	c, err := repo.Create(context.Background(), &model.Campaign{
		Name:    "Spring",
		Message: "Hello {{name}}, spring is here",
		Rules: rules.Tree{Conditions: []rules.Condition{
			{Field: rules.FieldTotalSpend, Operator: rules.OpGreater, Value: rules.NumberValue(100)},
		}},
		CreatedBy: "tester",
	})
	require.NoError(t, err)
	return c
}

func seedRecord(t *testing.T, repo *DeliveryRecordRepository, campaignID, customerID uuid.UUID) *model.DeliveryRecord {
	t.Helper()
	d, err := repo.Create(context.Background(), &model.DeliveryRecord{
		CampaignID: campaignID,
		CustomerID: customerID,
		Recipient:  "someone@example.com",
		Message:    "Hello",
	})
	require.NoError(t, err)
	return d
}
