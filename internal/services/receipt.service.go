package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/pkg/logger"
	"github.com/nimasrn/crm-campaigns/pkg/prom"
)

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type DeliveryRecordRepository interface {
	Create(ctx context.Context, d *model.DeliveryRecord) (*model.DeliveryRecord, error)
	Get(ctx context.Context, id uuid.UUID) (*model.DeliveryRecord, error)
	Resolve(ctx context.Context, id uuid.UUID, status model.DeliveryStatus, reason string, at time.Time) (bool, error)
	CountByStatus(ctx context.Context, campaignID uuid.UUID) (map[model.DeliveryStatus]int, error)
}

type DeliveryCounter interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	IncrementDelivered(ctx context.Context, id uuid.UUID, status model.DeliveryStatus) error
	SetDelivered(ctx context.Context, id uuid.UUID, stats model.DeliveryStats) error
}

// ReceiptService applies vendor outcomes to the communication log and keeps
// the campaign counter cache in step with it.
type ReceiptService struct {
	tx         Transactor
	deliveries DeliveryRecordRepository
	campaigns  DeliveryCounter
	now        func() time.Time
}

func NewReceiptService(tx Transactor, deliveries DeliveryRecordRepository, campaigns DeliveryCounter) *ReceiptService {
	return &ReceiptService{
		tx:         tx,
		deliveries: deliveries,
		campaigns:  campaigns,
		now:        time.Now,
	}
}

// ProcessReceipt resolves a pending record and bumps the matching counter in
// one transaction. A receipt repeating the recorded outcome is a duplicate.
// One contradicting it is rejected with a StateError; corrections are not
// applied.
func (s *ReceiptService) ProcessReceipt(ctx context.Context, r model.Receipt) (model.ReceiptOutcome, error) {
	r.Normalize()
	if err := r.Validate(); err != nil {
		return "", err
	}

	var outcome model.ReceiptOutcome
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		applied, err := s.deliveries.Resolve(ctx, r.DeliveryID, r.Status, r.FailureReason, s.now().UTC())
		if err != nil {
			return fmt.Errorf("resolve delivery: %w", err)
		}

		record, err := s.deliveries.Get(ctx, r.DeliveryID)
		if err != nil {
			return err
		}

		if !applied {
			if record.Status == r.Status {
				outcome = model.ReceiptDuplicate
				return nil
			}
			return &model.StateError{
				Entity:  "delivery",
				ID:      r.DeliveryID.String(),
				Current: string(record.Status),
				Action:  "record a " + string(r.Status) + " receipt",
			}
		}

		if err := s.campaigns.IncrementDelivered(ctx, record.CampaignID, r.Status); err != nil {
			return fmt.Errorf("increment delivery counter: %w", err)
		}
		outcome = model.ReceiptApplied
		return nil
	})
	if err != nil {
		if isStateError(err) {
			logger.Warn("conflicting receipt rejected", "delivery_id", r.DeliveryID, "status", r.Status, "error", err)
		}
		return "", err
	}

	if outcome == model.ReceiptDuplicate {
		prom.DuplicateReceipt()
		logger.Debug("duplicate receipt ignored", "delivery_id", r.DeliveryID, "status", r.Status)
	}
	return outcome, nil
}

// Stats counts the delivery log. The counts are authoritative; when the
// cached counters on the campaign disagree Stats also writes, rebuilding the
// cache through Reconcile. A failed rebuild is logged and does not fail the
// read.
func (s *ReceiptService) Stats(ctx context.Context, campaignID uuid.UUID) (model.CampaignStats, error) {
	campaign, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return model.CampaignStats{}, err
	}
	counts, err := s.deliveries.CountByStatus(ctx, campaignID)
	if err != nil {
		return model.CampaignStats{}, err
	}

	stats := model.CampaignStats{
		CampaignID:   campaign.ID,
		Status:       campaign.Status,
		AudienceSize: campaign.AudienceSize,
		Sent:         counts[model.DeliveryStatusSent],
		Failed:       counts[model.DeliveryStatusFailed],
		Pending:      counts[model.DeliveryStatusPending],
	}
	stats.Total = stats.Sent + stats.Failed + stats.Pending
	if resolved := stats.Sent + stats.Failed; resolved > 0 {
		stats.SuccessRate = float64(stats.Sent) / float64(resolved)
	}

	live := model.DeliveryStats{Sent: stats.Sent, Failed: stats.Failed}
	if campaign.DeliveryStats != live {
		logger.Warn("delivery counter cache drifted, rebuilding",
			"campaign_id", campaignID,
			"cached_sent", campaign.DeliveryStats.Sent,
			"cached_failed", campaign.DeliveryStats.Failed,
			"sent", live.Sent,
			"failed", live.Failed)
		if _, err := s.Reconcile(ctx, campaignID); err != nil {
			logger.Error("failed to rebuild delivery counters", "campaign_id", campaignID, "error", err)
		}
	}
	return stats, nil
}

// Reconcile rewrites the counter cache from the delivery log. The campaign
// row is locked before counting so a receipt committing meanwhile either is
// in the count or increments after the rewrite.
func (s *ReceiptService) Reconcile(ctx context.Context, campaignID uuid.UUID) (model.DeliveryStats, error) {
	var live model.DeliveryStats
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.campaigns.GetForUpdate(ctx, campaignID); err != nil {
			return err
		}
		counts, err := s.deliveries.CountByStatus(ctx, campaignID)
		if err != nil {
			return err
		}
		live = model.DeliveryStats{Sent: counts[model.DeliveryStatusSent], Failed: counts[model.DeliveryStatusFailed]}
		return s.campaigns.SetDelivered(ctx, campaignID, live)
	})
	return live, err
}
