package outbox

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/librisforge/libris-backend/pkg/db/models"
	"github.com/librisforge/libris-backend/pkg/enums"
)

func newOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}))
	return conn
}

func insertOutboxEvent(t *testing.T, conn *gorm.DB, createdAt time.Time, attempts int) models.OutboxEvent {
	t.Helper()

	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventLoanCreated,
		AggregateType: enums.AggregateLoan,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		CreatedAt:     createdAt,
		AttemptCount:  attempts,
	}
	require.NoError(t, conn.Create(&event).Error)
	return event
}

func TestFetchUnpublishedExcludesExhaustedRows(t *testing.T) {
	conn := newOutboxTestDB(t)
	repo := NewRepository(conn)
	base := time.Now().UTC().Add(-time.Hour)

	insertOutboxEvent(t, conn, base, 3)
	fresh := insertOutboxEvent(t, conn, base.Add(time.Minute), 0)

	rows, err := repo.FetchUnpublished(1, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, fresh.ID, rows[0].ID, "an exhausted row must not crowd fresh events out of the batch")
}

func TestFetchUnpublishedExcludesPublishedRows(t *testing.T) {
	conn := newOutboxTestDB(t)
	repo := NewRepository(conn)
	base := time.Now().UTC().Add(-time.Hour)

	done := insertOutboxEvent(t, conn, base, 0)
	require.NoError(t, repo.MarkPublished(done.ID))
	pending := insertOutboxEvent(t, conn, base.Add(time.Minute), 1)

	rows, err := repo.FetchUnpublished(10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, pending.ID, rows[0].ID)
}
