package repository

import (
	"errors"

	"github.com/nimasrn/crm-campaigns/internal/model"
	"gorm.io/gorm"
)

// Entities lists every table the repositories own, in dependency order.
func Entities() []any {
	return []any{
		&CustomerEntity{},
		&OrderEntity{},
		&CampaignEntity{},
		&CampaignAudienceEntity{},
		&DeliveryRecordEntity{},
	}
}

// AutoMigrate creates the schema through gorm. Production uses the goose
// migrations; tests use this against sqlite.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Entities()...)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ErrNotFound
	}
	return err
}
