package webhooks

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gogift-backend/internal/orders"
	"github.com/angelmondragon/gogift-backend/internal/payments"
	"github.com/angelmondragon/gogift-backend/pkg/db/models"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
)

type stubSettler struct {
	orders    map[string]models.Order
	settled   []payments.Outcome
	orphans   []uuid.UUID
	orphanErr error
	settleFn  func(orderID uuid.UUID, outcome payments.Outcome) (orders.Result, error)
}

func (s *stubSettler) ReportOrphanedPayment(_ context.Context, orderID uuid.UUID, _ payments.Outcome) error {
	s.orphans = append(s.orphans, orderID)
	return s.orphanErr
}

func (s *stubSettler) Settle(ctx context.Context, orderID uuid.UUID, outcome payments.Outcome) (orders.Result, error) {
	s.settled = append(s.settled, outcome)
	if s.settleFn != nil {
		return s.settleFn(orderID, outcome)
	}
	target, _ := outcome.Status.TargetStatus()
	return orders.Result{OrderID: orderID, Status: target, Changed: true}, nil
}

func (s *stubSettler) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	order, ok := s.orders[reference]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order for payment reference")
	}
	return &order, nil
}

func newPendingIntent(t *testing.T, gw *payments.FakeGateway, settler *stubSettler) (string, uuid.UUID) {
	t.Helper()
	orderID := uuid.New()
	intent, err := gw.CreateIntent(context.Background(), payments.IntentRequest{OrderID: orderID, Total: decimal.RequireFromString("52.50")})
	require.NoError(t, err)
	settler.orders[intent.Reference] = models.Order{ID: orderID, Status: enums.OrderStatusPending}
	return intent.Reference, orderID
}

func newService(t *testing.T, gw *payments.FakeGateway, settler *stubSettler) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Gateway: gw, Orders: settler})
	require.NoError(t, err)
	return svc
}

func TestHandlePaymentNotificationSettlesFromGatewayState(t *testing.T) {
	gw := payments.NewFakeGateway()
	settler := &stubSettler{orders: map[string]models.Order{}}
	ref, orderID := newPendingIntent(t, gw, settler)
	gw.SetOutcome(ref, payments.Outcome{Status: enums.PaymentOutcomeApproved, PaymentID: "pi_1"})

	res, err := newService(t, gw, settler).HandleNotification(context.Background(), payments.PaymentNotification{EventID: "evt_1", Reference: ref})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, enums.OrderStatusApproved, res.Status)
	require.Len(t, settler.settled, 1)
	assert.Equal(t, orderID, settler.settled[0].OrderID)
	assert.True(t, settler.settled[0].Amount.Equal(decimal.RequireFromString("52.50")))
}

func TestHandlePaymentNotificationPendingIsNoop(t *testing.T) {
	gw := payments.NewFakeGateway()
	settler := &stubSettler{orders: map[string]models.Order{}}
	ref, _ := newPendingIntent(t, gw, settler)

	res, err := newService(t, gw, settler).HandleNotification(context.Background(), payments.PaymentNotification{EventID: "evt_1", Reference: ref})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, settler.settled)
}

func TestHandleChargeNotificationResolvesReference(t *testing.T) {
	gw := payments.NewFakeGateway()
	settler := &stubSettler{orders: map[string]models.Order{}}
	ref, orderID := newPendingIntent(t, gw, settler)
	gw.SetOutcome(ref, payments.Outcome{Status: enums.PaymentOutcomeChargedBack, PaymentID: "pi_9"})

	res, err := newService(t, gw, settler).HandleNotification(context.Background(), payments.ChargeNotification{EventID: "evt_2", PaymentIntentID: "pi_9"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, orderID, res.OrderID)
	assert.Equal(t, enums.OrderStatusRefunded, res.Status)
}

func TestHandleNotificationFailures(t *testing.T) {
	t.Run("gateway down", func(t *testing.T) {
		gw := payments.NewFakeGateway()
		settler := &stubSettler{orders: map[string]models.Order{}}
		ref, _ := newPendingIntent(t, gw, settler)
		gw.QueryErr = errors.New("timeout")

		_, err := newService(t, gw, settler).HandleNotification(context.Background(), payments.PaymentNotification{EventID: "e", Reference: ref})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayUnavailable))
	})

	t.Run("unknown payment", func(t *testing.T) {
		gw := payments.NewFakeGateway()
		settler := &stubSettler{orders: map[string]models.Order{}}
		_, err := newService(t, gw, settler).HandleNotification(context.Background(), payments.ChargeNotification{EventID: "e", PaymentIntentID: "pi_missing"})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayUnavailable))
	})

	t.Run("order missing", func(t *testing.T) {
		gw := payments.NewFakeGateway()
		settler := &stubSettler{orders: map[string]models.Order{}}
		ref, _ := newPendingIntent(t, gw, settler)
		delete(settler.orders, ref)
		gw.SetOutcome(ref, payments.Outcome{Status: enums.PaymentOutcomeRejected})

		_, err := newService(t, gw, settler).HandleNotification(context.Background(), payments.PaymentNotification{EventID: "e", Reference: ref})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	})

	t.Run("missing reference", func(t *testing.T) {
		svc := newService(t, payments.NewFakeGateway(), &stubSettler{})
		_, err := svc.HandleNotification(context.Background(), payments.PaymentNotification{EventID: "e"})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	})
}

func TestHandleIgnoredNotification(t *testing.T) {
	settler := &stubSettler{}
	res, err := newService(t, payments.NewFakeGateway(), settler).HandleNotification(context.Background(), payments.IgnoredNotification{EventID: "evt", Type: "customer.created"})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, settler.settled)
}

func TestHandleNotificationAfterTerminalState(t *testing.T) {
	gw := payments.NewFakeGateway()
	settler := &stubSettler{orders: map[string]models.Order{}}
	ref, orderID := newPendingIntent(t, gw, settler)
	gw.SetOutcome(ref, payments.Outcome{Status: enums.PaymentOutcomeApproved})
	settler.settleFn = func(id uuid.UUID, _ payments.Outcome) (orders.Result, error) {
		return orders.Result{OrderID: id, Status: enums.OrderStatusExpired}, nil
	}

	res, err := newService(t, gw, settler).HandleNotification(context.Background(), payments.PaymentNotification{EventID: "e", Reference: ref})
	require.NoError(t, err)
	assert.Equal(t, orderID, res.OrderID)
	assert.False(t, res.Changed)
	assert.Equal(t, enums.OrderStatusExpired, res.Status)
	assert.Equal(t, []uuid.UUID{orderID}, settler.orphans)
}

func TestHandleNotificationOrphanReporting(t *testing.T) {
	cases := []struct {
		name    string
		outcome enums.PaymentOutcome
		status  enums.OrderStatus
		changed bool
		orphan  bool
	}{
		{name: "approval after rejection", outcome: enums.PaymentOutcomeApproved, status: enums.OrderStatusRejected, orphan: true},
		{name: "approval downgraded on amount", outcome: enums.PaymentOutcomeApproved, status: enums.OrderStatusRejected, changed: true, orphan: true},
		{name: "duplicate approval", outcome: enums.PaymentOutcomeApproved, status: enums.OrderStatusApproved},
		{name: "approval after refund", outcome: enums.PaymentOutcomeApproved, status: enums.OrderStatusRefunded},
		{name: "late rejection", outcome: enums.PaymentOutcomeRejected, status: enums.OrderStatusExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := payments.NewFakeGateway()
			settler := &stubSettler{orders: map[string]models.Order{}}
			ref, _ := newPendingIntent(t, gw, settler)
			gw.SetOutcome(ref, payments.Outcome{Status: tc.outcome, PaymentID: "pi_1"})
			settler.settleFn = func(id uuid.UUID, _ payments.Outcome) (orders.Result, error) {
				return orders.Result{OrderID: id, Status: tc.status, Changed: tc.changed}, nil
			}

			_, err := newService(t, gw, settler).HandleNotification(context.Background(), payments.PaymentNotification{EventID: "e", Reference: ref})
			require.NoError(t, err)
			assert.Equal(t, tc.orphan, len(settler.orphans) == 1)
		})
	}
}

func TestHandleNotificationOrphanReportFailure(t *testing.T) {
	gw := payments.NewFakeGateway()
	settler := &stubSettler{orders: map[string]models.Order{}, orphanErr: errors.New("outbox down")}
	ref, _ := newPendingIntent(t, gw, settler)
	gw.SetOutcome(ref, payments.Outcome{Status: enums.PaymentOutcomeApproved})
	settler.settleFn = func(id uuid.UUID, _ payments.Outcome) (orders.Result, error) {
		return orders.Result{OrderID: id, Status: enums.OrderStatusExpired}, nil
	}

	_, err := newService(t, gw, settler).HandleNotification(context.Background(), payments.PaymentNotification{EventID: "e", Reference: ref})
	assert.Error(t, err)
}
