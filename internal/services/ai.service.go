package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nimasrn/crm-campaigns/internal/ai"
	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/internal/rules"
	"github.com/nimasrn/crm-campaigns/pkg/logger"
)

const minGeneratedMessageLength = 120

// FallbackMessage is used whenever the model cannot produce usable copy.
const FallbackMessage = "Hello " + model.NamePlaceholder + ", thank you for being a valued customer! " +
	"We're excited to offer you exclusive access to our special Spring Sale promotion. " +
	"Enjoy significant discounts on our most popular products and services, designed specifically for loyal customers like you. " +
	"Don't miss this limited-time opportunity - visit our website or contact us today to learn more! [Link]"

const rulesPrompt = `Convert the customer segment description below into a JSON rules object for a CRM.
The object has "conditions", an array of {"field", "operator", "value"}, and "condition", either "AND" or "OR".

Fields: name, email, phone, totalSpend, visits, lastActivity
Operators: >, <, >=, <=, =, !=, contains

Example description: "Customers who spent more than $1000 and visited less than 3 times"
Example output:
{"conditions":[{"field":"totalSpend","operator":">","value":1000},{"field":"visits","operator":"<","value":3}],"condition":"AND"}

Description: %q

Return only the JSON object.`

const messagePrompt = `Write a marketing message for an SMS or email campaign.

Campaign goal: %q

Requirements:
- Include the customer name placeholder exactly as %s
- Between 250 and 450 characters
- Specific, persuasive and personal, with a clear call to action
- Use [Link] where a link would go%s

Return only the message text.`

const premiumHint = "\n- The audience are high-value customers, so make it feel exclusive"

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

type RuleSuggestion struct {
	Description string     `json:"description"`
	Rules       rules.Tree `json:"rules"`
}

type GeneratedMessage struct {
	Goal     string `json:"goal"`
	Message  string `json:"message"`
	Fallback bool   `json:"fallback"`
}

// AIService drafts audience rules and campaign copy. Nothing it returns is
// persisted; callers feed the output into the normal campaign endpoints.
type AIService struct {
	client ai.Client
}

// NewAIService accepts a nil client; every call then reports the collaborator
// as unavailable.
func NewAIService(client ai.Client) *AIService {
	return &AIService{client: client}
}

func (s *AIService) SuggestRules(ctx context.Context, description string) (*RuleSuggestion, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, &model.ValidationError{Field: "description", Reason: "is required"}
	}

	text, err := s.generate(ctx, fmt.Sprintf(rulesPrompt, description))
	if err != nil {
		return nil, &model.AIError{Op: "suggest rules", Err: err}
	}

	raw := jsonObject.FindString(text)
	if raw == "" {
		return nil, &rules.RuleError{Index: -1, Reason: "model output contains no JSON object"}
	}
	tree, err := rules.ParseTree([]byte(raw))
	if err != nil {
		logger.Warn("model returned an unusable rule tree", "error", err)
		return nil, err
	}
	if len(tree.Conditions) == 0 {
		return nil, &rules.RuleError{Index: -1, Reason: "model output has no conditions"}
	}

	return &RuleSuggestion{Description: description, Rules: tree}, nil
}

// GenerateMessage never fails on collaborator trouble: it falls back to a
// fixed template and says so.
func (s *AIService) GenerateMessage(ctx context.Context, goal string) (*GeneratedMessage, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, &model.ValidationError{Field: "goal", Reason: "is required"}
	}

	hint := ""
	lower := strings.ToLower(goal)
	if strings.Contains(lower, "high value") || strings.Contains(lower, "total spend") {
		hint = premiumHint
	}

	text, err := s.generate(ctx, fmt.Sprintf(messagePrompt, goal, model.NamePlaceholder, hint))
	if err == nil {
		text = strings.TrimSpace(text)
		err = checkGenerated(text)
	}
	if err != nil {
		logger.Warn("using fallback campaign message", "error", err)
		return &GeneratedMessage{Goal: goal, Message: FallbackMessage, Fallback: true}, nil
	}
	return &GeneratedMessage{Goal: goal, Message: text}, nil
}

func (s *AIService) generate(ctx context.Context, prompt string) (string, error) {
	if s.client == nil {
		return "", ai.ErrNotConfigured
	}
	return s.client.Generate(ctx, prompt)
}

var (
	errMessageTooShort    = errors.New("generated message is too short")
	errMissingPlaceholder = errors.New("generated message has no name placeholder")
)

func checkGenerated(text string) error {
	if utf8.RuneCountInString(text) < minGeneratedMessageLength {
		return errMessageTooShort
	}
	if !strings.Contains(text, model.NamePlaceholder) {
		return errMissingPlaceholder
	}
	return nil
}
