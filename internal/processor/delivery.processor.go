package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gateway "github.com/nimasrn/crm-campaigns/internal/gateways"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/internal/queue"
	"github.com/nimasrn/crm-campaigns/pkg/logger"
	"github.com/nimasrn/crm-campaigns/pkg/prom"
)

// FailedAfterRetriesReason is recorded on deliveries the worker gave up on.
const FailedAfterRetriesReason = "delivery failed after retries"

// ReceiptProcessor applies a terminal delivery outcome to the
// communication log.
type ReceiptProcessor interface {
	ProcessReceipt(ctx context.Context, receipt model.Receipt) (model.ReceiptOutcome, error)
}

// DeliveryProcessor sends queued work items through the vendor and turns the
// vendor's answer into a receipt.
type DeliveryProcessor struct {
	sender      gateway.Sender
	receipts    ReceiptProcessor
	idempotency *IdempotencyService
}

func NewDeliveryProcessor(sender gateway.Sender, receipts ReceiptProcessor, idempotency *IdempotencyService) *DeliveryProcessor {
	return &DeliveryProcessor{
		sender:      sender,
		receipts:    receipts,
		idempotency: idempotency,
	}
}

func (p *DeliveryProcessor) GetType() string {
	return "delivery"
}

func (p *DeliveryProcessor) Process(ctx context.Context, msg *queue.Message) error {
	var item model.DeliveryWorkItem
	if err := json.Unmarshal(msg.Data, &item); err != nil {
		// left pending so it ends up in the dead letter stream
		logger.Error("failed to decode work item", "queue_id", msg.ID, "error", err)
		return fmt.Errorf("decode work item: %w", err)
	}
	deliveryID := item.DeliveryID.String()

	procCtx, err := p.idempotency.AcquireProcessingLock(ctx, deliveryID)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyProcessed):
		logger.Info("delivery already sent, replaying outcome", "delivery_id", deliveryID)
		return p.replay(ctx, deliveryID)
	case errors.Is(err, ErrMaxRetriesExceeded):
		logger.Error("delivery retries exhausted", "delivery_id", deliveryID)
		p.fail(ctx, item, FailedAfterRetriesReason)
		return nil
	case errors.Is(err, ErrLockAcquireFailed):
		return fmt.Errorf("delivery %s is locked by another worker: %w", deliveryID, err)
	default:
		return err
	}
	defer func() {
		_ = p.idempotency.ReleaseLock(ctx, procCtx)
	}()

	logger.Debug("sending delivery",
		"delivery_id", deliveryID,
		"campaign_id", item.CampaignID,
		"retry_count", procCtx.RetryCount,
		"is_retry", procCtx.IsRetry)

	resp, err := p.sender.Send(ctx, &gateway.SendRequest{
		DeliveryID: deliveryID,
		CampaignID: item.CampaignID.String(),
		Recipient:  item.Recipient,
		Message:    item.Message,
	})
	if err != nil {
		if markErr := p.idempotency.MarkFailure(ctx, procCtx, err); markErr != nil {
			logger.Error("failed to mark failure", "delivery_id", deliveryID, "error", markErr)
		}
		return err
	}

	receipt := toReceipt(item, resp)
	outcome, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	// from here on the vendor has the message; a retry must never send again
	if err := p.idempotency.MarkSuccess(ctx, procCtx, outcome); err != nil {
		logger.Error("failed to mark success", "delivery_id", deliveryID, "error", err)
	}

	prom.DeliveryOutcome(string(receipt.Status), sinceEnqueued(item))
	return p.apply(ctx, receipt)
}

// HandleDeadLetter fails the delivery of a work item the queue gave up on,
// unless the vendor already answered for it.
func (p *DeliveryProcessor) HandleDeadLetter(ctx context.Context, msg *queue.Message) {
	var item model.DeliveryWorkItem
	if err := json.Unmarshal(msg.Data, &item); err != nil {
		logger.Error("dead letter without a decodable work item", "queue_id", msg.ID, "error", err)
		return
	}

	processed, err := p.idempotency.IsProcessed(ctx, item.DeliveryID.String())
	if err != nil {
		logger.Warn("failed to check processed marker for dead letter", "delivery_id", item.DeliveryID, "error", err)
	}
	if processed {
		if err := p.replay(ctx, item.DeliveryID.String()); err != nil {
			logger.Error("failed to replay outcome for dead letter", "delivery_id", item.DeliveryID, "error", err)
		}
		return
	}
	p.fail(ctx, item, FailedAfterRetriesReason)
}

func (p *DeliveryProcessor) replay(ctx context.Context, deliveryID string) error {
	raw, err := p.idempotency.Outcome(ctx, deliveryID)
	if err != nil {
		return err
	}
	var receipt model.Receipt
	if len(raw) == 0 || json.Unmarshal(raw, &receipt) != nil {
		return nil
	}
	return p.apply(ctx, receipt)
}

func (p *DeliveryProcessor) fail(ctx context.Context, item model.DeliveryWorkItem, reason string) {
	receipt := model.Receipt{
		DeliveryID:    item.DeliveryID,
		Status:        model.DeliveryStatusFailed,
		FailureReason: reason,
	}
	prom.DeliveryOutcome(string(receipt.Status), sinceEnqueued(item))
	if err := p.apply(ctx, receipt); err != nil {
		logger.Error("failed to record failed delivery", "delivery_id", item.DeliveryID, "error", err)
	}
}

// apply hands receipt to the receipt processor. Outcomes that cannot change
// on retry are logged and swallowed; anything else is returned so the work
// item is redelivered and replayed.
func (p *DeliveryProcessor) apply(ctx context.Context, receipt model.Receipt) error {
	outcome, err := p.receipts.ProcessReceipt(ctx, receipt)
	switch {
	case err == nil:
		logger.Debug("receipt applied", "delivery_id", receipt.DeliveryID, "status", receipt.Status, "outcome", outcome)
		return nil
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrInvalidState), errors.Is(err, model.ErrInvalidReceipt):
		logger.Warn("receipt not applied", "delivery_id", receipt.DeliveryID, "status", receipt.Status, "error", err)
		return nil
	default:
		return fmt.Errorf("apply receipt for %s: %w", receipt.DeliveryID, err)
	}
}

func toReceipt(item model.DeliveryWorkItem, resp *gateway.SendResponse) model.Receipt {
	receipt := model.Receipt{DeliveryID: item.DeliveryID, Status: model.DeliveryStatusSent}
	if resp.Status != gateway.VendorSent {
		receipt.Status = model.DeliveryStatusFailed
		receipt.FailureReason = resp.FailureReason
	}
	receipt.Normalize()
	return receipt
}

func sinceEnqueued(item model.DeliveryWorkItem) float64 {
	if item.EnqueuedAt.IsZero() {
		return 0
	}
	return time.Since(item.EnqueuedAt).Seconds()
}
