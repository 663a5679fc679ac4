package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/librisforge/libris-backend/pkg/db/models"
	"github.com/librisforge/libris-backend/pkg/enums"
	"github.com/librisforge/libris-backend/pkg/logger"
	"github.com/librisforge/libris-backend/pkg/outbox"
	"github.com/librisforge/libris-backend/pkg/outbox/payloads"
)

// Materializer turns circulation events into member-facing notification
// rows. The outbox worker feeds it events in publish order; events that
// carry no member audience are skipped.
type Materializer struct {
	repo Repository
	logg *logger.Logger
}

// NewMaterializer builds a notification materializer.
func NewMaterializer(repo Repository, logg *logger.Logger) (*Materializer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Materializer{repo: repo, logg: logg}, nil
}

// Handle writes the notification row for one outbox event. Unknown event
// types are skipped, not failed, so new events never wedge the worker.
func (m *Materializer) Handle(ctx context.Context, event models.OutboxEvent) error {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return fmt.Errorf("decode envelope for event %s: %w", event.ID, err)
	}

	notification, err := m.build(event.EventType, envelope.Data)
	if err != nil {
		return err
	}
	if notification == nil {
		logCtx := m.logg.WithFields(ctx, map[string]any{
			"event_id":   event.ID.String(),
			"event_type": event.EventType,
		})
		m.logg.Info(logCtx, "no notification for event type")
		return nil
	}

	notification.ID = uuid.New()
	if err := m.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("create notification for event %s: %w", event.ID, err)
	}
	return nil
}

func (m *Materializer) build(eventType enums.OutboxEventType, data json.RawMessage) (*models.Notification, error) {
	switch eventType {
	case enums.EventLoanCreated:
		var p payloads.LoanCreatedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse loan created payload: %w", err)
		}
		return &models.Notification{
			MemberID: p.MemberID,
			Type:     enums.NotificationTypeBorrowReceipt,
			Title:    "Checkout confirmed",
			Message:  fmt.Sprintf("You borrowed %d copy(ies). Return by %s.", p.CopiesLent, p.DueDate),
		}, nil
	case enums.EventLoanReturned:
		var p payloads.LoanReturnedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse loan returned payload: %w", err)
		}
		message := "Return received. No fine due."
		if !p.FineAmount.IsZero() {
			message = fmt.Sprintf("Return received %d day(s) late. Fine due: %s.", p.OverdueDays, p.FineAmount)
		}
		return &models.Notification{
			MemberID: p.MemberID,
			Type:     enums.NotificationTypeReturnReceipt,
			Title:    "Return received",
			Message:  message,
		}, nil
	case enums.EventCopyAvailable:
		var p payloads.CopyAvailableEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse copy available payload: %w", err)
		}
		return &models.Notification{
			MemberID: p.MemberID,
			Type:     enums.NotificationTypeCopyAvailable,
			Title:    "Your reserved book is ready",
			Message:  "A copy you reserved is being held for you. Check it out before the claim window closes.",
		}, nil
	case enums.EventLoanOverdue:
		var p payloads.LoanOverdueEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse loan overdue payload: %w", err)
		}
		return &models.Notification{
			MemberID: p.MemberID,
			Type:     enums.NotificationTypeOverdue,
			Title:    "Loan overdue",
			Message:  fmt.Sprintf("Your loan was due on %s and is %d day(s) overdue.", p.DueDate, p.OverdueDays),
		}, nil
	case enums.EventReservationExpired:
		var p payloads.ReservationExpiredEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse reservation expired payload: %w", err)
		}
		return &models.Notification{
			MemberID: p.MemberID,
			Type:     enums.NotificationTypeReservation,
			Title:    "Reservation expired",
			Message:  "Your held copy was released because the claim window closed.",
		}, nil
	default:
		return nil, nil
	}
}
