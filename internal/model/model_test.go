package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-campaigns/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_ReplacesEveryPlaceholder(t *testing.T) {
	c := &Customer{Name: "Alice"}
	assert.Equal(t, "Hi Alice, bye Alice", Render("Hi {{name}}, bye {{name}}", c))
	assert.Equal(t, "no placeholder", Render("no placeholder", c))
}

func TestCustomer_Recipient(t *testing.T) {
	assert.Equal(t, "+100", (&Customer{Phone: "+100", Email: "a@x.io"}).Recipient())
	assert.Equal(t, "a@x.io", (&Customer{Email: "a@x.io"}).Recipient())
}

func TestCustomer_RuleValue(t *testing.T) {
	c := &Customer{Name: "A", Email: "a@x.io", TotalSpend: 10, Visits: 2}

	_, ok := c.RuleValue(rules.FieldPhone)
	assert.False(t, ok)
	_, ok = c.RuleValue(rules.FieldLastActivity)
	assert.False(t, ok)

	v, ok := c.RuleValue(rules.FieldVisits)
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	c.LastActivity = time.Now()
	_, ok = c.RuleValue(rules.FieldLastActivity)
	assert.True(t, ok)
}

func TestCustomerCreateRequest(t *testing.T) {
	req := CustomerCreateRequest{Name: "  Bob ", Email: " Bob@Example.COM "}
	req.Normalize()
	assert.Equal(t, "Bob", req.Name)
	assert.Equal(t, "bob@example.com", req.Email)
	assert.NoError(t, req.Validate())

	bad := CustomerCreateRequest{Name: "x", Email: "not-an-email"}
	assert.ErrorIs(t, bad.Validate(), ErrValidation)
	assert.ErrorIs(t, CustomerCreateRequest{Email: "a@b.c"}.Validate(), ErrValidation)
}

func TestCampaignCreateRequest_Validate(t *testing.T) {
	ok := CampaignCreateRequest{Name: "Spring", Message: "Hello {{name}}, welcome back!"}
	assert.NoError(t, ok.Validate())

	short := ok
	short.Message = "hi"
	assert.ErrorIs(t, short.Validate(), ErrValidation)

	long := ok
	long.Message = strings.Repeat("a", 5001)
	assert.ErrorIs(t, long.Validate(), ErrValidation)

	noName := ok
	noName.Name = ""
	assert.ErrorIs(t, noName.Validate(), ErrValidation)

	badRule := ok
	badRule.Rules = rules.Tree{Conditions: []rules.Condition{{Field: "age", Operator: rules.OpEqual, Value: rules.NumberValue(1)}}}
	assert.ErrorIs(t, badRule.Validate(), rules.ErrInvalidRule)
}

func TestReceipt_NormalizeAndValidate(t *testing.T) {
	id := uuid.New()

	r := Receipt{DeliveryID: id, Status: DeliveryStatusSent, FailureReason: "ignored"}
	r.Normalize()
	assert.Empty(t, r.FailureReason)
	assert.NoError(t, r.Validate())

	f := Receipt{DeliveryID: id, Status: DeliveryStatusFailed}
	f.Normalize()
	assert.Equal(t, defaultFailureReason, f.FailureReason)

	p := Receipt{DeliveryID: id, Status: DeliveryStatusPending}
	assert.ErrorIs(t, p.Validate(), ErrInvalidReceipt)

	assert.ErrorIs(t, Receipt{Status: DeliveryStatusSent}.Validate(), ErrValidation)
}

func TestActivationResult_Err(t *testing.T) {
	res := &ActivationResult{CampaignID: uuid.New()}
	assert.NoError(t, res.Err())

	res.Failures = append(res.Failures, DispatchFailure{CustomerID: uuid.New(), Stage: DispatchStageEnqueue, Reason: "queue down"})
	err := res.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialDispatch)
	var pe *PartialDispatchError
	require.ErrorAs(t, err, &pe)
	assert.Len(t, pe.Failures, 1)
}

func TestErrorKinds(t *testing.T) {
	var err error = &StateError{Entity: "campaign", ID: "1", Current: "active", Action: "activate"}
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Contains(t, err.Error(), "cannot activate in status active")

	cause := errors.New("timeout")
	err = &AIError{Op: "generate", Err: cause}
	assert.ErrorIs(t, err, ErrAIUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestListParams_Normalized(t *testing.T) {
	assert.Equal(t, ListParams{Limit: DefaultListLimit}, ListParams{}.Normalized())
	assert.Equal(t, ListParams{Limit: MaxListLimit, Offset: 0}, ListParams{Limit: 10_000, Offset: -5}.Normalized())
}
