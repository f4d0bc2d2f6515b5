package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gogift-backend/internal/checkout"
	"github.com/angelmondragon/gogift-backend/internal/codepool"
	"github.com/angelmondragon/gogift-backend/internal/inventory"
	"github.com/angelmondragon/gogift-backend/internal/notifications"
	"github.com/angelmondragon/gogift-backend/internal/orders"
	"github.com/angelmondragon/gogift-backend/internal/payments"
	"github.com/angelmondragon/gogift-backend/pkg/db"
	"github.com/angelmondragon/gogift-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gogift-backend/pkg/db/models"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	"github.com/angelmondragon/gogift-backend/pkg/logger"
	"github.com/angelmondragon/gogift-backend/pkg/outbox"
)

type sweepFixture struct {
	client   *db.Client
	gateway  *payments.FakeGateway
	checkout *checkout.Service
	orders   *orders.Service
	job      *expirationJob
	now      time.Time
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	client := dbtest.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), logger.Nop())
	notifier, err := notifications.NewService(emitter, logger.Nop())
	require.NoError(t, err)
	ledger := inventory.NewLedger(0)
	gw := payments.NewFakeGateway()
	ordersRepo := orders.NewRepository(client.DB())

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Tx:            client,
		Repo:          checkout.NewRepository(client.DB()),
		Orders:        ordersRepo,
		Inventory:     ledger,
		Gateway:       gw,
		Outbox:        emitter,
		Notifications: notifier,
		Logger:        logger.Nop(),
		Options:       checkout.Options{FeeRate: decimal.RequireFromString("0.05"), PaymentExpiry: 5 * time.Minute},
	})
	require.NoError(t, err)

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:          ordersRepo,
		Tx:            client,
		Outbox:        emitter,
		Inventory:     ledger,
		Codes:         codepool.NewManager(codepool.Options{}),
		Notifications: notifier,
		Logger:        logger.Nop(),
	})
	require.NoError(t, err)

	job, err := NewExpirationJob(ExpirationJobParams{
		Logger:         logger.Nop(),
		Orders:         ordersSvc,
		Gateway:        gw,
		PendingTimeout: 5 * time.Minute,
		GiveUpAfter:    30 * time.Minute,
		BatchSize:      10,
	})
	require.NoError(t, err)

	f := &sweepFixture{
		client:   client,
		gateway:  gw,
		checkout: checkoutSvc,
		orders:   ordersSvc,
		job:      job.(*expirationJob),
		now:      time.Now().UTC(),
	}
	f.job.now = func() time.Time { return f.now }
	return f
}

// place checks out qty units of a fresh listing and backdates the order by age.
func (f *sweepFixture) place(t *testing.T, available, qty int, age time.Duration) (models.Listing, *checkout.Result) {
	t.Helper()
	listing := models.Listing{
		EnterpriseID: uuid.New(),
		Title:        "Cinema ticket",
		UnitPrice:    decimal.RequireFromString("20.00"),
		SellerAmount: decimal.RequireFromString("18.00"),
		AvailableQty: available,
		CodeMode:     enums.CodeModeGenerateOnDemand,
		Active:       true,
	}
	require.NoError(t, f.client.DB().Create(&listing).Error)

	res, err := f.checkout.Execute(context.Background(), checkout.Request{
		Buyer: checkout.Buyer{UserID: uuid.New(), Email: "buyer@example.com"},
		Lines: []checkout.LineRequest{{ListingID: listing.ID, Quantity: qty}},
	})
	require.NoError(t, err)
	require.NoError(t, f.client.DB().Model(&models.Order{}).
		Where("id = ?", res.OrderID).
		Update("created_at", f.now.Add(-age)).Error)
	return listing, res
}

func (f *sweepFixture) order(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.client.DB().First(&order, "id = ?", id).Error)
	return order
}

func (f *sweepFixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var listing models.Listing
	require.NoError(t, f.client.DB().First(&listing, "id = ?", id).Error)
	return listing.AvailableQty
}

func TestSweepExpiresRejectedPaymentAndRestoresStock(t *testing.T) {
	f := newSweepFixture(t)
	listing, res := f.place(t, 10, 3, 6*time.Minute)
	require.Equal(t, 7, f.stock(t, listing.ID))
	f.gateway.SetOutcome(res.PaymentReference, payments.Outcome{Status: enums.PaymentOutcomeRejected})

	require.NoError(t, f.job.Run(context.Background()))

	order := f.order(t, res.OrderID)
	assert.Equal(t, enums.OrderStatusExpired, order.Status)
	require.NotNil(t, order.StatusDetail)
	assert.Equal(t, "rejected", *order.StatusDetail)
	assert.Equal(t, 10, f.stock(t, listing.ID))
	assert.Contains(t, f.gateway.Expired(), res.PaymentReference)
}

func TestSweepApprovesLatePayment(t *testing.T) {
	f := newSweepFixture(t)
	listing, res := f.place(t, 10, 2, 6*time.Minute)
	f.gateway.SetOutcome(res.PaymentReference, payments.Outcome{Status: enums.PaymentOutcomeApproved, PaymentID: "pi_late"})

	require.NoError(t, f.job.Run(context.Background()))

	assert.Equal(t, enums.OrderStatusApproved, f.order(t, res.OrderID).Status)
	assert.Equal(t, 8, f.stock(t, listing.ID))
	var codes int64
	require.NoError(t, f.client.DB().Model(&models.GiftCode{}).Count(&codes).Error)
	assert.EqualValues(t, 2, codes)
	assert.Empty(t, f.gateway.Expired())
}

func TestSweepPendingAnswerExpiresWithTimeoutDetail(t *testing.T) {
	f := newSweepFixture(t)
	listing, res := f.place(t, 4, 4, 6*time.Minute)

	require.NoError(t, f.job.Run(context.Background()))

	order := f.order(t, res.OrderID)
	assert.Equal(t, enums.OrderStatusExpired, order.Status)
	require.NotNil(t, order.StatusDetail)
	assert.Equal(t, DetailPaymentTimeout, *order.StatusDetail)
	assert.Equal(t, 4, f.stock(t, listing.ID))
}

func TestSweepLeavesYoungOrdersAlone(t *testing.T) {
	f := newSweepFixture(t)
	listing, res := f.place(t, 5, 1, time.Minute)
	f.gateway.SetOutcome(res.PaymentReference, payments.Outcome{Status: enums.PaymentOutcomeRejected})

	require.NoError(t, f.job.Run(context.Background()))

	assert.Equal(t, enums.OrderStatusPending, f.order(t, res.OrderID).Status)
	assert.Equal(t, 4, f.stock(t, listing.ID))
}

func TestSweepGatewayFailureRetriesThenGivesUp(t *testing.T) {
	f := newSweepFixture(t)
	listing, res := f.place(t, 5, 2, 6*time.Minute)
	f.gateway.QueryErr = errors.New("gateway timeout")

	require.NoError(t, f.job.Run(context.Background()))
	assert.Equal(t, enums.OrderStatusPending, f.order(t, res.OrderID).Status)

	f.now = f.now.Add(30 * time.Minute)
	require.NoError(t, f.job.Run(context.Background()))

	order := f.order(t, res.OrderID)
	assert.Equal(t, enums.OrderStatusExpired, order.Status)
	require.NotNil(t, order.StatusDetail)
	assert.Equal(t, DetailGatewayUnreachable, *order.StatusDetail)
	assert.Equal(t, 5, f.stock(t, listing.ID))
}

func TestSweepIsIdempotentWithWebhook(t *testing.T) {
	f := newSweepFixture(t)
	listing, res := f.place(t, 5, 2, 6*time.Minute)
	f.gateway.SetOutcome(res.PaymentReference, payments.Outcome{Status: enums.PaymentOutcomeCancelled})

	settled, err := f.orders.Settle(context.Background(), res.OrderID, payments.Outcome{Status: enums.PaymentOutcomeCancelled})
	require.NoError(t, err)
	require.True(t, settled.Changed)

	require.NoError(t, f.job.Run(context.Background()))
	assert.Equal(t, enums.OrderStatusRejected, f.order(t, res.OrderID).Status)
	assert.Equal(t, 5, f.stock(t, listing.ID), "stock is released exactly once")
}

type stubPending struct {
	rows    []models.Order
	settled map[uuid.UUID]payments.Outcome
	failFor uuid.UUID
}

func (s *stubPending) PendingBefore(context.Context, time.Time, int) ([]models.Order, error) {
	return s.rows, nil
}

func (s *stubPending) Settle(_ context.Context, id uuid.UUID, outcome payments.Outcome) (orders.Result, error) {
	if id == s.failFor {
		return orders.Result{}, errors.New("db down")
	}
	s.settled[id] = outcome
	return orders.Result{OrderID: id, Changed: true}, nil
}

func TestSweepCombinesErrorsAndContinues(t *testing.T) {
	failing, missingRef := uuid.New(), uuid.New()
	stub := &stubPending{
		rows:    []models.Order{{ID: failing}, {ID: missingRef}},
		settled: map[uuid.UUID]payments.Outcome{},
		failFor: failing,
	}
	job, err := NewExpirationJob(ExpirationJobParams{Logger: logger.Nop(), Orders: stub, Gateway: payments.NewFakeGateway()})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), failing.String())
	require.Contains(t, stub.settled, missingRef)
	assert.Equal(t, enums.PaymentOutcomeExpired, stub.settled[missingRef].Status)
	assert.Equal(t, DetailMissingReference, stub.settled[missingRef].Detail)
}

func TestNewExpirationJobDefaults(t *testing.T) {
	job, err := NewExpirationJob(ExpirationJobParams{Logger: logger.Nop(), Orders: &stubPending{}, Gateway: payments.NewFakeGateway(), PendingTimeout: time.Hour})
	require.NoError(t, err)
	j := job.(*expirationJob)
	assert.Equal(t, time.Hour, j.giveUpAfter)
	assert.Equal(t, defaultBatchSize, j.batchSize)

	_, err = NewExpirationJob(ExpirationJobParams{Logger: logger.Nop()})
	assert.Error(t, err)
}

// racingGateway fails ExpireIntent. When payWith is set the buyer completes
// payment just before the expire call reaches the gateway.
type racingGateway struct {
	*payments.FakeGateway
	payWith *payments.Outcome
}

func (g *racingGateway) ExpireIntent(_ context.Context, reference string) error {
	if g.payWith != nil {
		g.SetOutcome(reference, *g.payWith)
	}
	return errors.New("checkout session is not open")
}

func TestSweepExpireFailureSettlesPaymentThatLanded(t *testing.T) {
	f := newSweepFixture(t)
	listing, res := f.place(t, 5, 2, 6*time.Minute)
	f.job.gateway = &racingGateway{
		FakeGateway: f.gateway,
		payWith:     &payments.Outcome{Status: enums.PaymentOutcomeApproved, PaymentID: "pi_race"},
	}

	require.NoError(t, f.job.Run(context.Background()))

	assert.Equal(t, enums.OrderStatusApproved, f.order(t, res.OrderID).Status)
	assert.Equal(t, 3, f.stock(t, listing.ID))
	var codes int64
	require.NoError(t, f.client.DB().Model(&models.GiftCode{}).Count(&codes).Error)
	assert.EqualValues(t, 2, codes)

	again, err := f.orders.Settle(context.Background(), res.OrderID, payments.Outcome{Status: enums.PaymentOutcomeApproved, PaymentID: "pi_race"})
	require.NoError(t, err)
	assert.False(t, again.Changed)
}

func TestSweepExpireFailureKeepsUnpaidOrderPending(t *testing.T) {
	f := newSweepFixture(t)
	listing, res := f.place(t, 5, 2, 6*time.Minute)
	f.job.gateway = &racingGateway{FakeGateway: f.gateway}

	require.NoError(t, f.job.Run(context.Background()))

	assert.Equal(t, enums.OrderStatusPending, f.order(t, res.OrderID).Status)
	assert.Equal(t, 3, f.stock(t, listing.ID))
}

func TestSweepExpireFailureClosesWhenGatewaySessionEnded(t *testing.T) {
	f := newSweepFixture(t)
	listing, res := f.place(t, 5, 2, 6*time.Minute)
	f.gateway.SetOutcome(res.PaymentReference, payments.Outcome{Status: enums.PaymentOutcomeCancelled})
	f.job.gateway = &racingGateway{FakeGateway: f.gateway}

	require.NoError(t, f.job.Run(context.Background()))

	order := f.order(t, res.OrderID)
	assert.Equal(t, enums.OrderStatusExpired, order.Status)
	require.NotNil(t, order.StatusDetail)
	assert.Equal(t, string(enums.PaymentOutcomeCancelled), *order.StatusDetail)
	assert.Equal(t, 5, f.stock(t, listing.ID))
}
