package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/librisforge/libris-backend/pkg/config"
	"github.com/librisforge/libris-backend/pkg/db/models"
	"github.com/librisforge/libris-backend/pkg/enums"
	"github.com/librisforge/libris-backend/pkg/logger"
	"github.com/librisforge/libris-backend/pkg/outbox"
)

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	fetchErr  error
}

func (r *fakeRepo) FetchUnpublished(limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	var rows []models.OutboxEvent
	for _, event := range r.events {
		if event.AttemptCount >= maxAttempts {
			continue
		}
		rows = append(rows, event)
		if len(rows) == limit {
			break
		}
	}
	return rows, nil
}

func (r *fakeRepo) MarkPublished(id uuid.UUID) error {
	r.published = append(r.published, id)
	return nil
}

func (r *fakeRepo) MarkFailed(id uuid.UUID, err error) error {
	r.failed = append(r.failed, id)
	return nil
}

type fakeHandler struct {
	errs    []error
	handled []uuid.UUID
}

func (h *fakeHandler) Handle(ctx context.Context, event models.OutboxEvent) error {
	h.handled = append(h.handled, event.ID)
	if len(h.errs) > 0 {
		err := h.errs[0]
		h.errs = h.errs[1:]
		return err
	}
	return nil
}

type fakePinger struct{}

func (fakePinger) Ping(context.Context) error { return nil }

func newTestService(t *testing.T, repo outboxRepository, handlers ...eventHandler) *Service {
	t.Helper()
	cfg := &config.Config{Outbox: config.OutboxConfig{BatchSize: 10, PollInterval: time.Millisecond, MaxAttempts: 3}}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         fakePinger{},
		Repository: repo,
		Handlers:   handlers,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func testEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{}`),
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventLoanCreated,
		AggregateType: enums.AggregateLoan,
		AggregateID:   uuid.New(),
		Payload:       raw,
		AttemptCount:  attempts,
	}
}

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	first := testEvent(t, 0)
	second := testEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	handler := &fakeHandler{errs: []error{errors.New("transient")}}
	svc := newTestService(t, repo, handler)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != first.ID {
		t.Fatalf("unexpected failed rows %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != second.ID {
		t.Fatalf("unexpected published rows %v", repo.published)
	}
}

func TestProcessBatchSkipsExhaustedEvents(t *testing.T) {
	exhausted := testEvent(t, 3)
	repo := &fakeRepo{events: []models.OutboxEvent{exhausted}}
	handler := &fakeHandler{}
	svc := newTestService(t, repo, handler)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if processed {
		t.Fatal("exhausted events should not count as processed")
	}
	if len(handler.handled) != 0 {
		t.Fatalf("handler should not see exhausted events, saw %v", handler.handled)
	}
}

func TestProcessBatchDeliversFreshEventsBehindExhaustedRows(t *testing.T) {
	exhausted := testEvent(t, 3)
	fresh := testEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{exhausted, fresh}}
	handler := &fakeHandler{}
	svc := newTestService(t, repo, handler)
	svc.batchSize = 1

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatal("the fresh event should be fetched and delivered")
	}
	if len(handler.handled) != 1 || handler.handled[0] != fresh.ID {
		t.Fatalf("expected the fresh event delivered, saw %v", handler.handled)
	}
	if len(repo.published) != 1 || repo.published[0] != fresh.ID {
		t.Fatalf("expected the fresh event marked published, got %v", repo.published)
	}
}

func TestProcessBatchFansOutToAllHandlers(t *testing.T) {
	event := testEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	first := &fakeHandler{}
	second := &fakeHandler{}
	svc := newTestService(t, repo, first, second)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(first.handled) != 1 || len(second.handled) != 1 {
		t.Fatalf("expected both handlers to run, got %d and %d", len(first.handled), len(second.handled))
	}
	if len(repo.published) != 1 {
		t.Fatalf("expected event marked published, got %v", repo.published)
	}
}

func TestProcessBatchEmptyQueue(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(t, repo, &fakeHandler{})

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if processed {
		t.Fatal("empty queue should not report processed")
	}
}

func TestNewServiceRequiresHandlers(t *testing.T) {
	cfg := &config.Config{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	if _, err := NewService(ServiceParams{Config: cfg, Logger: logg, DB: fakePinger{}, Repository: &fakeRepo{}}); err == nil {
		t.Fatal("expected error without handlers")
	}
}
