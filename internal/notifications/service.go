package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gogift-backend/pkg/enums"
	"github.com/angelmondragon/gogift-backend/pkg/logger"
	"github.com/angelmondragon/gogift-backend/pkg/outbox"
	"github.com/angelmondragon/gogift-backend/pkg/outbox/payloads"
)

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Message is one templated notification request.
type Message struct {
	Template   Template
	Recipients []string
	Subject    string
	Data       map[string]any
	OrderID    *uuid.UUID
	Actor      *outbox.ActorRef
}

// Service queues notification requests on the outbox. Delivery is owned by
// the external templated-notification service.
type Service struct {
	outbox emitter
	logg   *logger.Logger
}

// NewService wires notification dependencies.
func NewService(outbox emitter, logg *logger.Logger) (*Service, error) {
	if outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{outbox: outbox, logg: logg}, nil
}

// Enqueue writes msg inside a savepoint of tx. A failed enqueue rolls back
// only the savepoint; the error is logged and never reaches the caller.
func (s *Service) Enqueue(ctx context.Context, tx *gorm.DB, msg Message) {
	logCtx := s.logg.WithField(ctx, "template", msg.Template.String())
	if msg.OrderID != nil {
		logCtx = s.logg.WithOrderID(logCtx, msg.OrderID.String())
	}

	if err := s.enqueue(ctx, tx, msg); err != nil {
		s.logg.Error(logCtx, "notification enqueue failed", err)
		return
	}
	s.logg.Debug(logCtx, "notification enqueued")
}

// EnqueueAll queues every message, continuing past individual failures.
func (s *Service) EnqueueAll(ctx context.Context, tx *gorm.DB, msgs []Message) {
	for _, msg := range msgs {
		s.Enqueue(ctx, tx, msg)
	}
}

func (s *Service) enqueue(ctx context.Context, tx *gorm.DB, msg Message) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if !msg.Template.IsValid() {
		return fmt.Errorf("unknown notification template %q", msg.Template)
	}
	recipients := compactRecipients(msg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("notification %s has no recipients", msg.Template)
	}

	subject := msg.Subject
	if subject == "" {
		subject = msg.Template.DefaultSubject()
	}

	aggregateID := uuid.New()
	if msg.OrderID != nil {
		aggregateID = *msg.OrderID
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   aggregateID,
		Actor:         msg.Actor,
		Data: payloads.NotificationRequestedEvent{
			Template:   msg.Template.String(),
			Recipients: recipients,
			Subject:    subject,
			Data:       msg.Data,
			OrderID:    msg.OrderID,
		},
	}

	return tx.Transaction(func(sp *gorm.DB) error {
		return s.outbox.Emit(ctx, sp, event)
	})
}

func compactRecipients(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, r := range in {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
