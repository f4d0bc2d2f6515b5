package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/gogift-backend/internal/orders"
	"github.com/angelmondragon/gogift-backend/internal/payments"
	"github.com/angelmondragon/gogift-backend/pkg/db/models"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	"github.com/angelmondragon/gogift-backend/pkg/logger"
)

const (
	defaultPendingTimeout = 5 * time.Minute
	defaultGiveUpAfter    = 30 * time.Minute
	defaultBatchSize      = 100

	// Status details recorded on orders the sweep closes.
	DetailPaymentTimeout     = "payment_timeout"
	DetailGatewayUnreachable = "gateway_unreachable"
	DetailMissingReference   = "missing_payment_reference"
)

type pendingOrders interface {
	PendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	Settle(ctx context.Context, orderID uuid.UUID, outcome payments.Outcome) (orders.Result, error)
}

type gatewayStatus interface {
	QueryStatus(ctx context.Context, reference string) (payments.Outcome, error)
	ExpireIntent(ctx context.Context, reference string) error
}

// ExpirationJobParams configure the pending order sweep.
type ExpirationJobParams struct {
	Logger         *logger.Logger
	Orders         pendingOrders
	Gateway        gatewayStatus
	PendingTimeout time.Duration
	GiveUpAfter    time.Duration
	BatchSize      int
	GatewayTimeout time.Duration
}

type expirationJob struct {
	logg           *logger.Logger
	orders         pendingOrders
	gateway        gatewayStatus
	pendingTimeout time.Duration
	giveUpAfter    time.Duration
	batchSize      int
	gatewayTimeout time.Duration
	now            func() time.Time
}

// NewExpirationJob builds the job that resolves orders stuck in PENDING. The
// gateway is asked first so a payment that landed without a callback is
// still approved.
func NewExpirationJob(params ExpirationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	job := &expirationJob{
		logg:           params.Logger,
		orders:         params.Orders,
		gateway:        params.Gateway,
		pendingTimeout: params.PendingTimeout,
		giveUpAfter:    params.GiveUpAfter,
		batchSize:      params.BatchSize,
		gatewayTimeout: params.GatewayTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
	if job.pendingTimeout <= 0 {
		job.pendingTimeout = defaultPendingTimeout
	}
	if job.giveUpAfter < job.pendingTimeout {
		job.giveUpAfter = defaultGiveUpAfter
		if job.giveUpAfter < job.pendingTimeout {
			job.giveUpAfter = job.pendingTimeout
		}
	}
	if job.batchSize <= 0 {
		job.batchSize = defaultBatchSize
	}
	return job, nil
}

func (j *expirationJob) Name() string { return "order-expiration" }

type sweepStats struct {
	scanned  int
	settled  int
	skipped  int
	failures int
}

func (j *expirationJob) Run(ctx context.Context) error {
	now := j.now()
	pending, err := j.orders.PendingBefore(ctx, now.Add(-j.pendingTimeout), j.batchSize)
	if err != nil {
		return fmt.Errorf("query pending orders: %w", err)
	}

	var (
		stats sweepStats
		errs  error
	)
	for _, order := range pending {
		stats.scanned++
		changed, skipped, err := j.reconcile(ctx, order, now)
		switch {
		case err != nil:
			stats.failures++
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
		case skipped:
			stats.skipped++
		case changed:
			stats.settled++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":  stats.scanned,
		"settled":  stats.settled,
		"skipped":  stats.skipped,
		"failures": stats.failures,
	})
	j.logg.Info(logCtx, "pending order sweep complete")
	return errs
}

func (j *expirationJob) reconcile(ctx context.Context, order models.Order, now time.Time) (changed, skipped bool, err error) {
	ctx = j.logg.WithOrderID(ctx, order.ID.String())

	reference := ""
	if order.PaymentReference != nil {
		reference = *order.PaymentReference
	}
	if reference == "" {
		return j.settle(ctx, order.ID, payments.Outcome{Status: enums.PaymentOutcomeExpired, Detail: DetailMissingReference})
	}

	outcome, err := j.queryStatus(ctx, reference)
	if err != nil {
		if now.Sub(order.CreatedAt) < j.giveUpAfter {
			j.logg.Warn(j.logg.WithField(ctx, "error", err.Error()), "gateway status unavailable; retrying next cycle")
			return false, true, nil
		}
		return j.closeIntent(ctx, order.ID, reference, DetailGatewayUnreachable)
	}

	if paid(outcome.Status) {
		return j.settle(ctx, order.ID, withOrder(outcome, order.ID))
	}
	detail := DetailPaymentTimeout
	if outcome.Status != enums.PaymentOutcomePending && outcome.Status != "" {
		detail = string(outcome.Status)
	}
	return j.closeIntent(ctx, order.ID, reference, detail)
}

// closeIntent expires the order only once the hosted payment page is closed.
// A failed expire call means the buyer may have paid in the meantime, so the
// gateway is asked again and the order stays pending unless the answer is
// final.
func (j *expirationJob) closeIntent(ctx context.Context, orderID uuid.UUID, reference, detail string) (bool, bool, error) {
	expireErr := j.expireIntent(ctx, reference)
	if expireErr == nil {
		return j.settle(ctx, orderID, payments.Outcome{Status: enums.PaymentOutcomeExpired, Detail: detail})
	}
	ctx = j.logg.WithField(ctx, "error", expireErr.Error())

	outcome, err := j.queryStatus(ctx, reference)
	switch {
	case err != nil:
		j.logg.Warn(ctx, "expire payment intent failed and status unavailable; retrying next cycle")
		return false, true, nil
	case paid(outcome.Status):
		j.logg.Warn(ctx, "payment landed while expiring intent")
		return j.settle(ctx, orderID, withOrder(outcome, orderID))
	case outcome.Status == enums.PaymentOutcomePending || outcome.Status == "":
		j.logg.Warn(ctx, "expire payment intent failed; retrying next cycle")
		return false, true, nil
	default:
		return j.settle(ctx, orderID, payments.Outcome{Status: enums.PaymentOutcomeExpired, Detail: string(outcome.Status)})
	}
}

func paid(status enums.PaymentOutcome) bool {
	switch status {
	case enums.PaymentOutcomeApproved, enums.PaymentOutcomeRefunded, enums.PaymentOutcomeChargedBack:
		return true
	}
	return false
}

func withOrder(outcome payments.Outcome, orderID uuid.UUID) payments.Outcome {
	if outcome.OrderID == uuid.Nil {
		outcome.OrderID = orderID
	}
	return outcome
}

func (j *expirationJob) settle(ctx context.Context, orderID uuid.UUID, outcome payments.Outcome) (bool, bool, error) {
	res, err := j.orders.Settle(ctx, orderID, outcome)
	if err != nil {
		return false, false, err
	}
	return res.Changed, false, nil
}

func (j *expirationJob) queryStatus(ctx context.Context, reference string) (payments.Outcome, error) {
	if j.gatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.gatewayTimeout)
		defer cancel()
	}
	return j.gateway.QueryStatus(ctx, reference)
}

func (j *expirationJob) expireIntent(ctx context.Context, reference string) error {
	if j.gatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.gatewayTimeout)
		defer cancel()
	}
	return j.gateway.ExpireIntent(ctx, reference)
}
