package notifications

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/librisforge/libris-backend/pkg/db/models"
	"github.com/librisforge/libris-backend/pkg/enums"
	"github.com/librisforge/libris-backend/pkg/logger"
	"github.com/librisforge/libris-backend/pkg/outbox"
	"github.com/librisforge/libris-backend/pkg/outbox/payloads"
	"github.com/librisforge/libris-backend/pkg/types"
)

func outboxEvent(t *testing.T, eventType enums.OutboxEventType, data any) models.OutboxEvent {
	t.Helper()

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)

	return models.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   envelope,
	}
}

func newMaterializer(t *testing.T) (*Materializer, Repository) {
	t.Helper()

	repo := NewRepository(setupNotificationsDB(t))
	logg := logger.New(logger.Options{ServiceName: "materializer-test", Output: io.Discard})
	m, err := NewMaterializer(repo, logg)
	require.NoError(t, err)
	return m, repo
}

func listAll(t *testing.T, repo Repository, memberID uuid.UUID) []models.Notification {
	t.Helper()

	rows, _, err := repo.List(context.Background(), listNotificationsParams{MemberID: memberID, Limit: 50})
	require.NoError(t, err)
	return rows
}

func TestHandleLoanReturnedWithFine(t *testing.T) {
	m, repo := newMaterializer(t)
	memberID := uuid.New()

	event := outboxEvent(t, enums.EventLoanReturned, payloads.LoanReturnedEvent{
		LoanID:       uuid.New(),
		BookID:       uuid.New(),
		MemberID:     memberID,
		CopiesLent:   1,
		ReturnedDate: types.NewDate(2024, 1, 10),
		FineAmount:   decimal.RequireFromString("20.00"),
		OverdueDays:  2,
	})
	require.NoError(t, m.Handle(context.Background(), event))

	rows := listAll(t, repo, memberID)
	require.Len(t, rows, 1)
	require.Equal(t, enums.NotificationTypeReturnReceipt, rows[0].Type)
	require.Contains(t, rows[0].Message, "2 day(s) late")
	require.Contains(t, rows[0].Message, "20")
}

func TestHandleLoanReturnedWithoutFine(t *testing.T) {
	m, repo := newMaterializer(t)
	memberID := uuid.New()

	event := outboxEvent(t, enums.EventLoanReturned, payloads.LoanReturnedEvent{
		LoanID:       uuid.New(),
		BookID:       uuid.New(),
		MemberID:     memberID,
		CopiesLent:   1,
		ReturnedDate: types.NewDate(2024, 1, 5),
		FineAmount:   decimal.Zero,
	})
	require.NoError(t, m.Handle(context.Background(), event))

	rows := listAll(t, repo, memberID)
	require.Len(t, rows, 1)
	require.Contains(t, rows[0].Message, "No fine due")
}

func TestHandleCopyAvailable(t *testing.T) {
	m, repo := newMaterializer(t)
	memberID := uuid.New()

	event := outboxEvent(t, enums.EventCopyAvailable, payloads.CopyAvailableEvent{
		BookID:        uuid.New(),
		MemberID:      memberID,
		ReservationID: uuid.New(),
	})
	require.NoError(t, m.Handle(context.Background(), event))

	rows := listAll(t, repo, memberID)
	require.Len(t, rows, 1)
	require.Equal(t, enums.NotificationTypeCopyAvailable, rows[0].Type)
}

func TestHandleOverdueAndExpired(t *testing.T) {
	m, repo := newMaterializer(t)
	memberID := uuid.New()

	overdue := outboxEvent(t, enums.EventLoanOverdue, payloads.LoanOverdueEvent{
		LoanID:      uuid.New(),
		BookID:      uuid.New(),
		MemberID:    memberID,
		DueDate:     types.NewDate(2024, 1, 8),
		OverdueDays: 3,
	})
	require.NoError(t, m.Handle(context.Background(), overdue))

	expired := outboxEvent(t, enums.EventReservationExpired, payloads.ReservationExpiredEvent{
		ReservationID: uuid.New(),
		BookID:        uuid.New(),
		MemberID:      memberID,
	})
	require.NoError(t, m.Handle(context.Background(), expired))

	rows := listAll(t, repo, memberID)
	require.Len(t, rows, 2)
}

func TestHandleUnknownEventTypeIsSkipped(t *testing.T) {
	m, repo := newMaterializer(t)

	event := outboxEvent(t, enums.OutboxEventType("something_else"), map[string]string{"k": "v"})
	require.NoError(t, m.Handle(context.Background(), event))

	require.Empty(t, listAll(t, repo, uuid.New()))
}

func TestHandleMalformedEnvelope(t *testing.T) {
	m, _ := newMaterializer(t)

	event := models.OutboxEvent{
		ID:        uuid.New(),
		EventType: enums.EventCopyAvailable,
		Payload:   json.RawMessage(`{not json`),
	}
	require.Error(t, m.Handle(context.Background(), event))
}
