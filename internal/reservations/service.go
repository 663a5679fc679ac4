package reservations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/librisforge/libris-backend/pkg/db"
	"github.com/librisforge/libris-backend/pkg/db/models"
	"github.com/librisforge/libris-backend/pkg/enums"
	pkgerrors "github.com/librisforge/libris-backend/pkg/errors"
)

// Service maintains the per-book FIFO reservation queue. Entries move
// waiting -> fulfilled when a freed copy is earmarked for them, and
// resolve by claim, withdrawal, or claim-window expiry.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Enqueue(ctx context.Context, bookID, memberID uuid.UUID, now time.Time) (*models.Reservation, error)
	Cancel(ctx context.Context, reservationID uuid.UUID, now time.Time) (*models.Reservation, error)
	FulfillNext(ctx context.Context, bookID uuid.UUID, now time.Time, claimWindow time.Duration) (*models.Reservation, error)
	ClaimFulfilled(ctx context.Context, bookID, memberID uuid.UUID, now time.Time) (*models.Reservation, error)
	ExpireFulfilled(ctx context.Context, reservationID uuid.UUID, now time.Time) (bool, error)
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error)
	Get(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
	QueueForBook(ctx context.Context, bookID uuid.UUID) ([]models.Reservation, error)
}

const enqueuePositionRetries = 3

type service struct {
	repo Repository
}

// NewService wires a reservation service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

// Enqueue appends a member to the tail of a book's queue. A member holds
// at most one active entry per book.
func (s *service) Enqueue(ctx context.Context, bookID, memberID uuid.UUID, now time.Time) (*models.Reservation, error) {
	if bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id is required")
	}
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id is required")
	}

	existing, err := s.repo.FindActiveByMemberAndBook(ctx, bookID, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check active reservation")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeDuplicateReservation, "member already holds an active reservation for this book")
	}

	// Two concurrent enqueues can derive the same position; the unique
	// index on (book_id, position) rejects the loser, which re-derives.
	for attempt := 0; attempt < enqueuePositionRetries; attempt++ {
		position, err := s.repo.NextPosition(ctx, bookID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign queue position")
		}

		record := &models.Reservation{
			ID:         uuid.New(),
			BookID:     bookID,
			MemberID:   memberID,
			ReservedAt: now,
			Position:   position,
			Status:     enums.ReservationStatusWaiting,
		}
		err = s.repo.Create(ctx, record)
		if err == nil {
			return record, nil
		}
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reservation")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "could not assign a queue position")
}

// Cancel withdraws a waiting entry. Entries that already resolved, and
// fulfilled entries awaiting a claim, report a state conflict instead.
func (s *service) Cancel(ctx context.Context, reservationID uuid.UUID, now time.Time) (*models.Reservation, error) {
	if reservationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}

	record, err := s.repo.FindByID(ctx, reservationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}

	ok, err := s.repo.MarkCancelled(ctx, reservationID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel reservation")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("reservation is %s and can no longer be withdrawn", record.Status))
	}

	return s.mustReload(ctx, reservationID)
}

// FulfillNext pops the head of a book's queue and earmarks a copy for
// it, stamping the claim deadline. Returns nil when the queue is empty.
func (s *service) FulfillNext(ctx context.Context, bookID uuid.UUID, now time.Time, claimWindow time.Duration) (*models.Reservation, error) {
	if bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id is required")
	}

	for {
		head, err := s.repo.HeadWaiting(ctx, bookID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load queue head")
		}
		if head == nil {
			return nil, nil
		}

		ok, err := s.repo.MarkFulfilled(ctx, head.ID, now, now.Add(claimWindow))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fulfill reservation")
		}
		if !ok {
			// The head resolved under us; take the new head.
			continue
		}

		return s.mustReload(ctx, head.ID)
	}
}

// ClaimFulfilled consumes the member's fulfilled entry for a book, if
// one exists. Returns nil when the member holds none.
func (s *service) ClaimFulfilled(ctx context.Context, bookID, memberID uuid.UUID, now time.Time) (*models.Reservation, error) {
	record, err := s.repo.FindFulfilledByMemberAndBook(ctx, bookID, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load fulfilled reservation")
	}
	if record == nil {
		return nil, nil
	}

	ok, err := s.repo.MarkClaimed(ctx, record.ID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim reservation")
	}
	if !ok {
		return nil, nil
	}
	return record, nil
}

// ExpireFulfilled cancels a fulfilled entry whose claim window lapsed.
func (s *service) ExpireFulfilled(ctx context.Context, reservationID uuid.UUID, now time.Time) (bool, error) {
	ok, err := s.repo.MarkExpired(ctx, reservationID, now)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire reservation")
	}
	return ok, nil
}

func (s *service) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error) {
	records, err := s.repo.ListFulfilledExpiredBefore(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired reservations")
	}
	return records, nil
}

func (s *service) Get(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	if reservationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}
	record, err := s.repo.FindByID(ctx, reservationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
	}
	return record, nil
}

func (s *service) QueueForBook(ctx context.Context, bookID uuid.UUID) ([]models.Reservation, error) {
	if bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id is required")
	}
	records, err := s.repo.ListWaitingByBook(ctx, bookID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list queue")
	}
	return records, nil
}

func (s *service) mustReload(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload reservation")
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reservation vanished mid-update")
	}
	return record, nil
}
