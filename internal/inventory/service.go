package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/librisforge/libris-backend/pkg/db"
	"github.com/librisforge/libris-backend/pkg/db/models"
	pkgerrors "github.com/librisforge/libris-backend/pkg/errors"
)

// Service exposes the copy ledger: how many copies of each book exist
// and how many are currently free to lend.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Get(ctx context.Context, bookID uuid.UUID) (*models.BookInventory, error)
	SetTotal(ctx context.Context, bookID uuid.UUID, total int) (*models.BookInventory, error)
	AddCopies(ctx context.Context, bookID uuid.UUID, qty int) (*models.BookInventory, error)
	Reserve(ctx context.Context, bookID uuid.UUID, qty int) error
	Release(ctx context.Context, bookID uuid.UUID, qty int) error
}

type service struct {
	repo Repository
}

// NewService wires an inventory service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) Get(ctx context.Context, bookID uuid.UUID) (*models.BookInventory, error) {
	if bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id is required")
	}
	record, err := s.repo.Get(ctx, bookID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
	}
	return record, nil
}

// SetTotal registers a book or resizes its copy pool. Available copies
// move by the same delta as the total; shrinking below the number of
// copies currently out clamps available at zero rather than failing,
// so outstanding loans stay representable.
func (s *service) SetTotal(ctx context.Context, bookID uuid.UUID, total int) (*models.BookInventory, error) {
	if bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id is required")
	}
	if total < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total copies must not be negative")
	}

	return s.mutate(ctx, bookID, total, func() (bool, error) {
		return s.repo.ResizeTotal(ctx, bookID, total)
	})
}

// AddCopies grows a book's pool by qty, creating the ledger row when the
// book has never been stocked.
func (s *service) AddCopies(ctx context.Context, bookID uuid.UUID, qty int) (*models.BookInventory, error) {
	if bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id is required")
	}
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	return s.mutate(ctx, bookID, qty, func() (bool, error) {
		return s.repo.GrowCopies(ctx, bookID, qty)
	})
}

// mutate applies a guarded ledger update, inserting the row with initial
// counters on the first stock of a book. A create losing to a concurrent
// insert falls back to the update.
func (s *service) mutate(ctx context.Context, bookID uuid.UUID, initial int, update func() (bool, error)) (*models.BookInventory, error) {
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := update()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update inventory")
		}
		if ok {
			return s.mustReload(ctx, bookID)
		}

		record := &models.BookInventory{
			BookID:          bookID,
			TotalCopies:     initial,
			AvailableCopies: initial,
		}
		err = s.repo.Create(ctx, record)
		if err == nil {
			return record, nil
		}
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create inventory")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "inventory row unreachable")
}

func (s *service) mustReload(ctx context.Context, bookID uuid.UUID) (*models.BookInventory, error) {
	record, err := s.repo.Get(ctx, bookID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "inventory row vanished mid-update")
	}
	return record, nil
}

// Reserve takes qty copies out of the free pool for lending.
func (s *service) Reserve(ctx context.Context, bookID uuid.UUID, qty int) error {
	if bookID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "book id is required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	ok, err := s.repo.ReserveCopies(ctx, bookID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve copies")
	}
	if ok {
		return nil
	}

	record, err := s.repo.Get(ctx, bookID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
	}
	if record == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientCopies,
		fmt.Sprintf("only %d of %d copies available", record.AvailableCopies, record.TotalCopies))
}

// Release returns qty copies to the free pool. Releasing more copies
// than the pool can hold indicates corrupted bookkeeping, so the call
// fails instead of clamping.
func (s *service) Release(ctx context.Context, bookID uuid.UUID, qty int) error {
	if bookID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "book id is required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	ok, err := s.repo.ReleaseCopies(ctx, bookID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release copies")
	}
	if ok {
		return nil
	}

	record, err := s.repo.Get(ctx, bookID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
	}
	if record == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
	}
	return pkgerrors.New(pkgerrors.CodeInvariantViolation,
		fmt.Sprintf("release of %d copies would exceed total of %d", qty, record.TotalCopies))
}
