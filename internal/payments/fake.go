package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/gogift-backend/pkg/enums"
)

// FakeGateway is an in-memory Gateway used by tests and local runs without
// provider credentials. Outcomes are scripted per reference.
type FakeGateway struct {
	mu        sync.Mutex
	intents   map[string]IntentRequest
	outcomes  map[string]Outcome
	payments  map[string]string
	expired   []string
	CreateErr error
	QueryErr  error
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		intents:  make(map[string]IntentRequest),
		outcomes: make(map[string]Outcome),
		payments: make(map[string]string),
	}
}

func (f *FakeGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return Intent{}, f.CreateErr
	}
	ref := "fake_" + uuid.NewString()
	f.intents[ref] = req
	return Intent{
		Reference:   ref,
		RedirectURL: "https://pay.example.test/" + ref,
		ExpiresAt:   req.ExpiresAt,
	}, nil
}

func (f *FakeGateway) QueryStatus(ctx context.Context, reference string) (Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.QueryErr != nil {
		return Outcome{}, f.QueryErr
	}
	req, ok := f.intents[reference]
	if !ok {
		return Outcome{}, fmt.Errorf("unknown reference %s", reference)
	}
	if outcome, ok := f.outcomes[reference]; ok {
		return outcome, nil
	}
	return Outcome{Status: enums.PaymentOutcomePending, OrderID: req.OrderID, Amount: req.Total}, nil
}

func (f *FakeGateway) ExpireIntent(ctx context.Context, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, reference)
	return nil
}

func (f *FakeGateway) ReferenceForPayment(ctx context.Context, paymentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref, ok := f.payments[paymentID]
	if !ok {
		return "", fmt.Errorf("unknown payment %s", paymentID)
	}
	return ref, nil
}

func (f *FakeGateway) ParseNotification(payload []byte, signature string) (Notification, error) {
	return nil, fmt.Errorf("fake gateway does not accept callbacks")
}

// SetOutcome scripts the next QueryStatus answer for reference. A zero
// OrderID or Amount is filled from the original intent.
func (f *FakeGateway) SetOutcome(reference string, outcome Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req, ok := f.intents[reference]; ok {
		if outcome.OrderID == uuid.Nil {
			outcome.OrderID = req.OrderID
		}
		if outcome.Amount.IsZero() {
			outcome.Amount = req.Total
		}
	}
	if outcome.PaymentID != "" {
		f.payments[outcome.PaymentID] = reference
	}
	f.outcomes[reference] = outcome
}

// Intent returns the request recorded for reference.
func (f *FakeGateway) Intent(reference string) (IntentRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.intents[reference]
	return req, ok
}

// Expired lists references passed to ExpireIntent.
func (f *FakeGateway) Expired() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.expired...)
}
