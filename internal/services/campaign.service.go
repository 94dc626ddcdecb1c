package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/auth"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/internal/rules"
	"github.com/nimasrn/crm-campaigns/pkg/logger"
)

type CampaignRepository interface {
	Create(ctx context.Context, c *model.Campaign) (*model.Campaign, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	List(ctx context.Context, p model.ListParams) ([]*model.Campaign, int64, error)
	UpdateDraft(ctx context.Context, id uuid.UUID, c *model.Campaign) (bool, error)
	Transition(ctx context.Context, id uuid.UUID, from []model.CampaignStatus, next model.CampaignStatus, extra map[string]any) (bool, error)
	Audience(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

type Activator interface {
	Activate(ctx context.Context, campaignID uuid.UUID) (*model.ActivationResult, error)
}

type StatsReader interface {
	Stats(ctx context.Context, campaignID uuid.UUID) (model.CampaignStats, error)
}

type DeliveryLister interface {
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, p model.ListParams) ([]*model.DeliveryRecord, int64, error)
}

// CampaignService owns the campaign lifecycle: draft, active, then completed
// or cancelled. Status changes are compare-and-set on the current status.
type CampaignService struct {
	campaigns CampaignRepository
	audience  AudienceResolver
	activator Activator
	stats     StatsReader
	records   DeliveryLister
	now       func() time.Time
}

func NewCampaignService(campaigns CampaignRepository, audience AudienceResolver, activator Activator, stats StatsReader, records DeliveryLister) *CampaignService {
	return &CampaignService{
		campaigns: campaigns,
		audience:  audience,
		activator: activator,
		stats:     stats,
		records:   records,
		now:       time.Now,
	}
}

func (s *CampaignService) Create(ctx context.Context, req model.CampaignCreateRequest) (*model.Campaign, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	createdBy := ""
	if p, ok := auth.FromContext(ctx); ok {
		createdBy = p.ID
	}

	campaign, err := s.campaigns.Create(ctx, &model.Campaign{
		Name:        req.Name,
		Description: req.Description,
		Rules:       req.Rules,
		Message:     req.Message,
		Status:      model.CampaignStatusDraft,
		CreatedBy:   createdBy,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("campaign created", "campaign_id", campaign.ID, "created_by", createdBy)
	return campaign, nil
}

// Get returns the campaign with its frozen audience once activated.
func (s *CampaignService) Get(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	campaign, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignStatusDraft {
		if campaign.Audience, err = s.campaigns.Audience(ctx, id); err != nil {
			return nil, err
		}
	}
	return campaign, nil
}

func (s *CampaignService) List(ctx context.Context, p model.ListParams) ([]*model.Campaign, int64, error) {
	return s.campaigns.List(ctx, p)
}

// Preview counts the customers tree currently matches.
func (s *CampaignService) Preview(ctx context.Context, tree rules.Tree) (int, error) {
	return s.audience.Count(ctx, tree)
}

func (s *CampaignService) Activate(ctx context.Context, id uuid.UUID) (*model.ActivationResult, error) {
	return s.activator.Activate(ctx, id)
}

func (s *CampaignService) Stats(ctx context.Context, id uuid.UUID) (model.CampaignStats, error) {
	return s.stats.Stats(ctx, id)
}

// Deliveries pages through the campaign's delivery log in creation order.
func (s *CampaignService) Deliveries(ctx context.Context, id uuid.UUID, p model.ListParams) ([]*model.DeliveryRecord, int64, error) {
	if _, err := s.campaigns.Get(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.records.ListByCampaign(ctx, id, p)
}

// UpdateDraft edits name, description, rules or message. Only drafts can be
// edited.
func (s *CampaignService) UpdateDraft(ctx context.Context, id uuid.UUID, req model.CampaignUpdateRequest) (*model.Campaign, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	campaign, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignStatusDraft {
		return nil, stateError(campaign, "edit")
	}

	if req.Name != nil {
		campaign.Name = *req.Name
	}
	if req.Description != nil {
		campaign.Description = *req.Description
	}
	if req.Rules != nil {
		campaign.Rules = *req.Rules
	}
	if req.Message != nil {
		campaign.Message = *req.Message
	}

	ok, err := s.campaigns.UpdateDraft(ctx, id, campaign)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.conflict(ctx, id, "edit")
	}
	return s.campaigns.Get(ctx, id)
}

// Complete closes an active campaign once every audience member has a
// terminal delivery record.
func (s *CampaignService) Complete(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	stats, err := s.stats.Stats(ctx, id)
	if err != nil {
		return nil, err
	}
	if stats.Status != model.CampaignStatusActive {
		return nil, &model.StateError{Entity: "campaign", ID: id.String(), Current: string(stats.Status), Action: "complete"}
	}
	if !stats.Resolved() {
		return nil, &model.StateError{
			Entity:  "campaign",
			ID:      id.String(),
			Current: string(stats.Status),
			Action:  "complete with unresolved deliveries",
		}
	}

	ok, err := s.campaigns.Transition(ctx, id,
		[]model.CampaignStatus{model.CampaignStatusActive},
		model.CampaignStatusCompleted,
		map[string]any{"completed_at": s.now().UTC()},
	)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.conflict(ctx, id, "complete")
	}
	logger.Info("campaign completed", "campaign_id", id, "sent", stats.Sent, "failed", stats.Failed)
	return s.Get(ctx, id)
}

// Cancel stops a draft or active campaign. Deliveries already queued may still
// resolve afterwards.
func (s *CampaignService) Cancel(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	ok, err := s.campaigns.Transition(ctx, id,
		[]model.CampaignStatus{model.CampaignStatusDraft, model.CampaignStatusActive},
		model.CampaignStatusCancelled,
		nil,
	)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.conflict(ctx, id, "cancel")
	}
	logger.Info("campaign cancelled", "campaign_id", id)
	return s.Get(ctx, id)
}

// conflict explains a failed compare-and-set: the campaign is gone or in the
// wrong status.
func (s *CampaignService) conflict(ctx context.Context, id uuid.UUID, action string) error {
	current, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return err
	}
	return stateError(current, action)
}
