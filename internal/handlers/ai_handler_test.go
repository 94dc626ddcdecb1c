package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/internal/rules"
	"github.com/nimasrn/crm-campaigns/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockAIService struct {
	mock.Mock
}

func (m *MockAIService) SuggestRules(ctx context.Context, description string) (*services.RuleSuggestion, error) {
	args := m.Called(ctx, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.RuleSuggestion), args.Error(1)
}

func (m *MockAIService) GenerateMessage(ctx context.Context, goal string) (*services.GeneratedMessage, error) {
	args := m.Called(ctx, goal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.GeneratedMessage), args.Error(1)
}

func TestAIHandler_ConvertRules(t *testing.T) {
	t.Run("collaborator down is 503", func(t *testing.T) {
		svc := new(MockAIService)
		handler := NewAIHandler(svc)
		svc.On("SuggestRules", mock.Anything, "loyal shoppers").
			Return(nil, &model.AIError{Op: "suggest rules", Err: errors.New("quota exceeded")})

		ctx := setupTestContext("POST", "/api/ai/convert-rules", []byte(`{"description":"loyal shoppers"}`))
		handler.ConvertRules(ctx)

		assert.Equal(t, 503, ctx.Response.StatusCode())
		assert.NotContains(t, errorBody(t, ctx).Error, "quota")
	})

	t.Run("unusable output is 422", func(t *testing.T) {
		svc := new(MockAIService)
		handler := NewAIHandler(svc)
		svc.On("SuggestRules", mock.Anything, "loyal shoppers").
			Return(nil, &rules.RuleError{Index: -1, Reason: "model output contains no JSON object"})

		ctx := setupTestContext("POST", "/api/ai/convert-rules", []byte(`{"description":"loyal shoppers"}`))
		handler.ConvertRules(ctx)

		assert.Equal(t, 422, ctx.Response.StatusCode())
	})
}

func TestAIHandler_GenerateMessage(t *testing.T) {
	svc := new(MockAIService)
	handler := NewAIHandler(svc)
	svc.On("GenerateMessage", mock.Anything, "spring sale").
		Return(&services.GeneratedMessage{Goal: "spring sale", Message: services.FallbackMessage, Fallback: true}, nil)

	ctx := setupTestContext("POST", "/api/ai/generate-message", []byte(`{"goal":"spring sale"}`))
	handler.GenerateMessage(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	var got services.GeneratedMessage
	decodeBody(t, ctx, &got)
	assert.True(t, got.Fallback)
	svc.AssertExpectations(t)
}
