package circulation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/librisforge/libris-backend/internal/fines"
	"github.com/librisforge/libris-backend/internal/inventory"
	"github.com/librisforge/libris-backend/internal/loans"
	"github.com/librisforge/libris-backend/internal/reservations"
	"github.com/librisforge/libris-backend/pkg/config"
	"github.com/librisforge/libris-backend/pkg/db/models"
	"github.com/librisforge/libris-backend/pkg/enums"
	pkgerrors "github.com/librisforge/libris-backend/pkg/errors"
	"github.com/librisforge/libris-backend/pkg/outbox"
	"github.com/librisforge/libris-backend/pkg/outbox/payloads"
	"github.com/librisforge/libris-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

// Service is the single entry point for circulation. Each operation runs
// in one transaction so inventory, loans, queue entries, and their
// events commit or roll back together.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*models.Loan, error)
	Return(ctx context.Context, input ReturnInput) (*ReturnResult, error)
	Reserve(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error)
	CancelReservation(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
	ComputeFine(ctx context.Context, loanID uuid.UUID, asOf types.Date) (*FineResult, error)
	MemberLoans(ctx context.Context, memberID uuid.UUID, asOf types.Date) ([]LoanView, error)
	MemberFines(ctx context.Context, memberID uuid.UUID, asOf types.Date) (*MemberFinesSummary, error)
	ExpireReservations(ctx context.Context, now time.Time, limit int) (int, error)
	EmitOverdueEvents(ctx context.Context, asOf types.Date, limit int) (int, error)
}

type service struct {
	loans        loans.Repository
	inventory    inventory.Service
	reservations reservations.Service
	tx           txRunner
	outbox       outboxPublisher
	cfg          config.CirculationConfig
	now          func() time.Time
}

// NewService builds the circulation façade with the required collaborators.
func NewService(
	loanRepo loans.Repository,
	inventorySvc inventory.Service,
	reservationSvc reservations.Service,
	tx txRunner,
	publisher outboxPublisher,
	cfg config.CirculationConfig,
) (Service, error) {
	if loanRepo == nil {
		return nil, fmt.Errorf("loan repository required")
	}
	if inventorySvc == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if reservationSvc == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		loans:        loanRepo,
		inventory:    inventorySvc,
		reservations: reservationSvc,
		tx:           tx,
		outbox:       publisher,
		cfg:          cfg,
		now:          time.Now,
	}, nil
}

// Checkout lends copies of a book to a member. A fulfilled reservation
// held by the member covers one copy; the rest come out of the free
// pool, and too few free copies fails the whole operation.
func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*models.Loan, error) {
	if input.BookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id is required")
	}
	if input.MemberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id is required")
	}
	if input.Copies < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "copies must be at least 1")
	}
	if input.Copies > s.cfg.MaxCopiesPerCheckout {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("at most %d copies per checkout", s.cfg.MaxCopiesPerCheckout))
	}

	now := s.now().UTC()
	issued := input.IssuedDate
	if issued.IsZero() {
		issued = types.DateOf(now)
	}
	due := input.DueDate
	if due.IsZero() {
		due = issued.AddDays(s.cfg.LoanPeriodDays)
	}
	if !due.After(issued) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "due date must be after issued date")
	}

	var loan *models.Loan
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		invSvc := s.inventory.WithTx(tx)
		resSvc := s.reservations.WithTx(tx)
		loanRepo := s.loans.WithTx(tx)

		fromPool := input.Copies
		claimed, err := resSvc.ClaimFulfilled(ctx, input.BookID, input.MemberID, now)
		if err != nil {
			return err
		}
		if claimed != nil {
			// The earmarked copy never went back to the pool.
			fromPool--
		}
		if fromPool > 0 {
			if err := invSvc.Reserve(ctx, input.BookID, fromPool); err != nil {
				return err
			}
		}

		loan = &models.Loan{
			ID:         uuid.New(),
			BookID:     input.BookID,
			MemberID:   input.MemberID,
			CopiesLent: input.Copies,
			IssuedDate: issued,
			DueDate:    due,
			FinePerDay: s.cfg.FineRate(),
			Status:     enums.LoanStatusBorrowed,
		}
		if err := loanRepo.Create(ctx, loan); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create loan")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLoanCreated,
			AggregateType: enums.AggregateLoan,
			AggregateID:   loan.ID,
			Actor:         memberActor(input.MemberID),
			Data: payloads.LoanCreatedEvent{
				LoanID:     loan.ID,
				BookID:     loan.BookID,
				MemberID:   loan.MemberID,
				CopiesLent: loan.CopiesLent,
				IssuedDate: loan.IssuedDate,
				DueDate:    loan.DueDate,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Return closes a loan, computes the fine at the captured per-day rate,
// and hands freed copies to waiting reservations before releasing the
// remainder to the pool.
func (s *service) Return(ctx context.Context, input ReturnInput) (*ReturnResult, error) {
	if input.LoanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id is required")
	}

	now := s.now().UTC()
	returned := input.ReturnedDate
	if returned.IsZero() {
		returned = types.DateOf(now)
	}

	var result *ReturnResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		invSvc := s.inventory.WithTx(tx)
		resSvc := s.reservations.WithTx(tx)
		loanRepo := s.loans.WithTx(tx)

		loan, err := loanRepo.FindByID(ctx, input.LoanID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan")
		}
		if loan == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
		}
		if returned.Before(loan.IssuedDate) {
			return pkgerrors.New(pkgerrors.CodeValidation, "returned date precedes issue date")
		}

		ok, err := loanRepo.MarkReturned(ctx, loan.ID, returned)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark loan returned")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "loan is already returned")
		}
		loan.Status = enums.LoanStatusReturned
		loan.ReturnedDate = &returned

		// Freed copies go to the queue head first. Earmarked copies
		// stay out of the free pool until claimed or expired.
		var fulfilled []models.Reservation
		for i := 0; i < loan.CopiesLent; i++ {
			reservation, err := resSvc.FulfillNext(ctx, loan.BookID, now, s.cfg.ClaimWindow())
			if err != nil {
				return err
			}
			if reservation == nil {
				break
			}
			fulfilled = append(fulfilled, *reservation)

			err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventCopyAvailable,
				AggregateType: enums.AggregateReservation,
				AggregateID:   reservation.ID,
				Data: payloads.CopyAvailableEvent{
					BookID:        reservation.BookID,
					MemberID:      reservation.MemberID,
					ReservationID: reservation.ID,
				},
				OccurredAt: now,
			})
			if err != nil {
				return err
			}
		}

		if free := loan.CopiesLent - len(fulfilled); free > 0 {
			if err := invSvc.Release(ctx, loan.BookID, free); err != nil {
				return err
			}
		}

		amount := fines.Amount(loan.DueDate, returned, loan.FinePerDay)
		overdueDays := fines.OverdueDays(loan.DueDate, returned)

		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLoanReturned,
			AggregateType: enums.AggregateLoan,
			AggregateID:   loan.ID,
			Actor:         memberActor(loan.MemberID),
			Data: payloads.LoanReturnedEvent{
				LoanID:       loan.ID,
				BookID:       loan.BookID,
				MemberID:     loan.MemberID,
				CopiesLent:   loan.CopiesLent,
				ReturnedDate: returned,
				FineAmount:   amount,
				OverdueDays:  overdueDays,
			},
			OccurredAt: now,
		})
		if err != nil {
			return err
		}

		result = &ReturnResult{
			Loan:                  loan,
			FineAmount:            amount,
			OverdueDays:           overdueDays,
			FulfilledReservations: fulfilled,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reserve queues a member for a fully lent-out book. Books with free
// copies reject the reservation; the member should check out instead.
func (s *service) Reserve(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error) {
	if bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id is required")
	}
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id is required")
	}

	now := s.now().UTC()

	var record *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		invSvc := s.inventory.WithTx(tx)
		resSvc := s.reservations.WithTx(tx)

		pool, err := invSvc.Get(ctx, bookID)
		if err != nil {
			return err
		}
		if pool.AvailableCopies > 0 {
			return pkgerrors.New(pkgerrors.CodeAlreadyAvailable,
				fmt.Sprintf("%d copies are available; check out instead", pool.AvailableCopies))
		}

		record, err = resSvc.Enqueue(ctx, bookID, memberID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// CancelReservation withdraws a waiting reservation.
func (s *service) CancelReservation(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	now := s.now().UTC()

	var record *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		record, err = s.reservations.WithTx(tx).Cancel(ctx, reservationID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ComputeFine evaluates a loan's fine as of the given date without
// mutating anything. Overdue is derived from the due date, never stored.
func (s *service) ComputeFine(ctx context.Context, loanID uuid.UUID, asOf types.Date) (*FineResult, error) {
	if loanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id is required")
	}
	if asOf.IsZero() {
		asOf = types.DateOf(s.now().UTC())
	}

	loan, err := s.loans.FindByID(ctx, loanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan")
	}
	if loan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
	}

	return buildFineResult(loan, asOf), nil
}

// MemberLoans lists a member's loans with derived overdue state and
// accrued fines as of the given date.
func (s *service) MemberLoans(ctx context.Context, memberID uuid.UUID, asOf types.Date) ([]LoanView, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id is required")
	}
	if asOf.IsZero() {
		asOf = types.DateOf(s.now().UTC())
	}

	records, err := s.loans.ListByMember(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list loans")
	}

	views := make([]LoanView, 0, len(records))
	for i := range records {
		views = append(views, buildLoanView(&records[i], asOf))
	}
	return views, nil
}

// MemberFines totals the fines a member owes across all loans.
func (s *service) MemberFines(ctx context.Context, memberID uuid.UUID, asOf types.Date) (*MemberFinesSummary, error) {
	views, err := s.MemberLoans(ctx, memberID, asOf)
	if err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = types.DateOf(s.now().UTC())
	}

	summary := &MemberFinesSummary{MemberID: memberID, AsOf: asOf}
	for _, view := range views {
		if view.FineAmount.IsZero() {
			continue
		}
		summary.Loans = append(summary.Loans, view)
		summary.TotalAmount = summary.TotalAmount.Add(view.FineAmount)
	}
	return summary, nil
}

// ExpireReservations sweeps fulfilled reservations whose claim window
// lapsed. Each freed earmark moves to the next waiting member, or back
// to the pool when the queue is empty. Returns the number expired.
func (s *service) ExpireReservations(ctx context.Context, now time.Time, limit int) (int, error) {
	if now.IsZero() {
		now = s.now().UTC()
	}

	stale, err := s.reservations.ListExpired(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range stale {
		reservation := stale[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			invSvc := s.inventory.WithTx(tx)
			resSvc := s.reservations.WithTx(tx)

			ok, err := resSvc.ExpireFulfilled(ctx, reservation.ID, now)
			if err != nil {
				return err
			}
			if !ok {
				// Claimed between the sweep read and this transaction.
				return nil
			}
			expired++

			err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventReservationExpired,
				AggregateType: enums.AggregateReservation,
				AggregateID:   reservation.ID,
				Data: payloads.ReservationExpiredEvent{
					ReservationID: reservation.ID,
					BookID:        reservation.BookID,
					MemberID:      reservation.MemberID,
				},
				OccurredAt: now,
			})
			if err != nil {
				return err
			}

			next, err := resSvc.FulfillNext(ctx, reservation.BookID, now, s.cfg.ClaimWindow())
			if err != nil {
				return err
			}
			if next != nil {
				return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventCopyAvailable,
					AggregateType: enums.AggregateReservation,
					AggregateID:   next.ID,
					Data: payloads.CopyAvailableEvent{
						BookID:        next.BookID,
						MemberID:      next.MemberID,
						ReservationID: next.ID,
					},
					OccurredAt: now,
				})
			}
			return invSvc.Release(ctx, reservation.BookID, 1)
		})
		if err != nil {
			return expired, err
		}
	}
	return expired, nil
}

// EmitOverdueEvents publishes one overdue event per open late loan.
// The outbox dedupe index keeps repeated sweeps from double-emitting.
func (s *service) EmitOverdueEvents(ctx context.Context, asOf types.Date, limit int) (int, error) {
	if asOf.IsZero() {
		asOf = types.DateOf(s.now().UTC())
	}

	late, err := s.loans.ListOverdue(ctx, asOf, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue loans")
	}

	emitted := 0
	for i := range late {
		loan := late[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			wrote, err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventLoanOverdue,
				AggregateType: enums.AggregateLoan,
				AggregateID:   loan.ID,
				Data: payloads.LoanOverdueEvent{
					LoanID:      loan.ID,
					BookID:      loan.BookID,
					MemberID:    loan.MemberID,
					DueDate:     loan.DueDate,
					OverdueDays: fines.OverdueDays(loan.DueDate, asOf),
				},
				OccurredAt: s.now().UTC(),
			})
			if err != nil {
				return err
			}
			if wrote {
				emitted++
			}
			return nil
		})
		if err != nil {
			return emitted, err
		}
	}
	return emitted, nil
}

func memberActor(memberID uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{MemberID: memberID, Role: "member"}
}
