package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gogift-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gogift-backend/pkg/db/models"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	"github.com/angelmondragon/gogift-backend/pkg/logger"
	"github.com/angelmondragon/gogift-backend/pkg/outbox"
	"github.com/angelmondragon/gogift-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, logger.Nop())
	ctx := context.Background()
	orderID := uuid.New()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          payloads.OrderSettledEvent{OrderID: orderID, Status: enums.OrderStatusApproved},
		})
	}))

	var rows []models.OutboxEvent
	require.NoError(t, client.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, orderID, rows[0].AggregateID)

	var env outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &env))
	require.Equal(t, 1, env.Version)
	require.NotEmpty(t, env.EventID)

	var data payloads.OrderSettledEvent
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, enums.OrderStatusApproved, data.Status)
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	client := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := svc.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCodeRedeemed,
			AggregateType: enums.AggregateGiftCode,
			AggregateID:   uuid.New(),
			Data:          map[string]string{"k": "v"},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitRejectsUnknownEventType(t *testing.T) {
	client := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	err := svc.Emit(context.Background(), client.DB(), outbox.DomainEvent{EventType: "mystery"})
	require.Error(t, err)
}

func TestPublishBookkeeping(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	db := client.DB()

	fresh := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	failing := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(db, fresh))
	require.NoError(t, repo.Insert(db, failing))

	var rows []models.OutboxEvent
	require.NoError(t, db.Order("created_at").Find(&rows).Error)
	require.Len(t, rows, 2)

	require.NoError(t, repo.MarkPublishedTx(db, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(db, rows[1].ID, errors.New("broker down")))

	pending, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].AttemptCount)
	require.NotNil(t, pending[0].LastError)

	require.NoError(t, repo.MarkTerminalTx(db, rows[1].ID, errors.New("give up"), 3))
	pending, err = repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestDeleteSettledBefore(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	db := client.DB()

	insert := func() models.OutboxEvent {
		row := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderSettled, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
		require.NoError(t, repo.Insert(db, row))
		return row
	}
	published, parked, retrying := insert(), insert(), insert()
	require.NoError(t, repo.MarkPublishedTx(db, published.ID))
	require.NoError(t, repo.MarkTerminalTx(db, parked.ID, errors.New("bad payload"), 10))
	require.NoError(t, repo.MarkFailedTx(db, retrying.ID, errors.New("broker down")))

	deleted, err := repo.DeleteSettledBefore(context.Background(), db, time.Now().UTC().Add(time.Minute), 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	var left []models.OutboxEvent
	require.NoError(t, db.Find(&left).Error)
	require.Len(t, left, 1)
	require.Equal(t, retrying.ID, left[0].ID)
}

func TestDLQRepositoryTruncatesAndFinds(t *testing.T) {
	client := dbtest.Open(t)
	dlq := outbox.NewDLQRepository(client.DB())
	eventID := uuid.New()
	long := make([]byte, 4096)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)

	require.NoError(t, dlq.InsertTx(client.DB(), models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &msg,
	}))

	found, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Len(t, *found.ErrorMessage, 1024)

	missing, err := dlq.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)

	list, err := dlq.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
