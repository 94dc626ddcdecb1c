package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/internal/rules"
	"github.com/nimasrn/crm-campaigns/pkg/logger"
	"github.com/nimasrn/crm-campaigns/pkg/prom"
)

type AudienceResolver interface {
	Resolve(ctx context.Context, tree rules.Tree) ([]*model.Customer, error)
	Count(ctx context.Context, tree rules.Tree) (int, error)
}

type ActivationStore interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	Activate(ctx context.Context, id uuid.UUID, audience []uuid.UUID, at time.Time) (bool, error)
}

// Enqueuer hands a work item to the delivery worker.
type Enqueuer interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

type ReceiptRecorder interface {
	ProcessReceipt(ctx context.Context, r model.Receipt) (model.ReceiptOutcome, error)
}

// DispatchService activates a draft campaign: it freezes the audience, writes
// one pending delivery record per member and queues the rendered messages.
type DispatchService struct {
	tx         Transactor
	campaigns  ActivationStore
	deliveries DeliveryRecordRepository
	audience   AudienceResolver
	queue      Enqueuer
	receipts   ReceiptRecorder
	now        func() time.Time
}

func NewDispatchService(tx Transactor, campaigns ActivationStore, deliveries DeliveryRecordRepository, audience AudienceResolver, queue Enqueuer, receipts ReceiptRecorder) *DispatchService {
	return &DispatchService{
		tx:         tx,
		campaigns:  campaigns,
		deliveries: deliveries,
		audience:   audience,
		queue:      queue,
		receipts:   receipts,
		now:        time.Now,
	}
}

// Activate returns once every record is written and every work item is
// queued. Per-recipient failures are collected in the result and do not fail
// the activation; result.Err() reports them.
func (s *DispatchService) Activate(ctx context.Context, campaignID uuid.UUID) (*model.ActivationResult, error) {
	campaign, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignStatusDraft {
		return nil, stateError(campaign, "activate")
	}

	members, err := s.audience.Resolve(ctx, campaign.Rules)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(members))
	for i, c := range members {
		ids[i] = c.ID
	}

	activatedAt := s.now().UTC()
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		ok, err := s.campaigns.Activate(ctx, campaignID, ids, activatedAt)
		if err != nil {
			return err
		}
		if !ok {
			// lost the race to another activation or a cancel
			current, err := s.campaigns.Get(ctx, campaignID)
			if err != nil {
				return err
			}
			return stateError(current, "activate")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	prom.CampaignActivated(len(ids))
	logger.Info("campaign activated", "campaign_id", campaignID, "audience_size", len(ids))

	result := &model.ActivationResult{CampaignID: campaignID, AudienceSize: len(ids)}
	records := make([]*model.DeliveryRecord, 0, len(members))
	for _, customer := range members {
		pending := model.DeliveryRecord{
			CampaignID: campaignID,
			CustomerID: customer.ID,
			Recipient:  customer.Recipient(),
			Message:    model.Render(campaign.Message, customer),
			Status:     model.DeliveryStatusPending,
		}
		record, err := s.deliveries.Create(ctx, &pending)
		if err != nil {
			logger.Error("failed to create delivery record", "campaign_id", campaignID, "customer_id", customer.ID, "error", err)
			failure := model.DispatchFailure{
				CustomerID: customer.ID,
				Stage:      model.DispatchStageRecord,
				Reason:     err.Error(),
			}
			if id, ok := s.failUnwritten(ctx, pending, err); ok {
				failure.DeliveryID = &id
			}
			result.Failures = append(result.Failures, failure)
			continue
		}
		result.Created++
		records = append(records, record)
	}

	for _, record := range records {
		if err := s.enqueue(ctx, record); err != nil {
			id := record.ID
			result.Failures = append(result.Failures, model.DispatchFailure{
				CustomerID: record.CustomerID,
				DeliveryID: &id,
				Stage:      model.DispatchStageEnqueue,
				Reason:     err.Error(),
			})
			continue
		}
		result.Dispatched++
	}

	if len(result.Failures) > 0 {
		logger.Warn("campaign dispatched with failures", "campaign_id", campaignID, "created", result.Created, "dispatched", result.Dispatched, "failures", len(result.Failures))
	}
	return result, nil
}

// failUnwritten writes a second attempt at a record whose first insert failed
// and fails it at once, so every audience member still ends with a terminal
// record. It reports false when even that write did not land.
func (s *DispatchService) failUnwritten(ctx context.Context, pending model.DeliveryRecord, cause error) (uuid.UUID, bool) {
	record, err := s.deliveries.Create(ctx, &pending)
	if err != nil {
		logger.Error("failed to write failed delivery record", "campaign_id", pending.CampaignID, "customer_id", pending.CustomerID, "error", err)
		return uuid.Nil, false
	}
	if _, err := s.receipts.ProcessReceipt(ctx, model.Receipt{
		DeliveryID:    record.ID,
		Status:        model.DeliveryStatusFailed,
		FailureReason: "record creation failed: " + cause.Error(),
	}); err != nil {
		logger.Error("failed to record creation failure", "delivery_id", record.ID, "error", err)
	}
	return record.ID, true
}

// enqueue queues one record. When the queue refuses it the record is failed
// right away so the campaign can still resolve.
func (s *DispatchService) enqueue(ctx context.Context, record *model.DeliveryRecord) error {
	item := model.DeliveryWorkItem{
		DeliveryID: record.ID,
		CampaignID: record.CampaignID,
		Recipient:  record.Recipient,
		Message:    record.Message,
		EnqueuedAt: s.now().UTC(),
	}
	meta := map[string]string{"campaign_id": record.CampaignID.String()}
	if _, err := s.queue.PublishJSON(ctx, item, meta); err != nil {
		logger.Error("failed to queue delivery", "delivery_id", record.ID, "error", err)
		if _, rerr := s.receipts.ProcessReceipt(ctx, model.Receipt{
			DeliveryID:    record.ID,
			Status:        model.DeliveryStatusFailed,
			FailureReason: "dispatch failed: " + err.Error(),
		}); rerr != nil {
			logger.Error("failed to record dispatch failure", "delivery_id", record.ID, "error", rerr)
		}
		return err
	}
	return nil
}
