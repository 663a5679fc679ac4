package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/librisforge/libris-backend/pkg/db/models"
)

// Repository manages persistence for per-book copy counts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, bookID uuid.UUID) (*models.BookInventory, error)
	Create(ctx context.Context, record *models.BookInventory) error
	ResizeTotal(ctx context.Context, bookID uuid.UUID, total int) (bool, error)
	GrowCopies(ctx context.Context, bookID uuid.UUID, qty int) (bool, error)
	ReserveCopies(ctx context.Context, bookID uuid.UUID, qty int) (bool, error)
	ReleaseCopies(ctx context.Context, bookID uuid.UUID, qty int) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, bookID uuid.UUID) (*models.BookInventory, error) {
	var record models.BookInventory
	err := r.db.WithContext(ctx).
		Where("book_id = ?", bookID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) Create(ctx context.Context, record *models.BookInventory) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// ResizeTotal sets a book's total and moves available by the same delta,
// clamped to [0, total], in one statement so a concurrent checkout's
// decrement is never overwritten. Expressions read the pre-update row.
func (r *repository) ResizeTotal(ctx context.Context, bookID uuid.UUID, total int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE book_inventory
		SET available_copies = CASE
				WHEN available_copies + (? - total_copies) < 0 THEN 0
				WHEN available_copies + (? - total_copies) > ? THEN ?
				ELSE available_copies + (? - total_copies)
			END,
			total_copies = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE book_id = ?
	`, total, total, total, total, total, total, bookID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GrowCopies adds qty to both counters in one statement.
func (r *repository) GrowCopies(ctx context.Context, bookID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE book_inventory
		SET total_copies = total_copies + ?,
			available_copies = available_copies + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE book_id = ?
	`, qty, qty, bookID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReserveCopies decrements available copies when at least qty are free.
// The guard in the WHERE clause makes concurrent reservations safe; a
// false return means the book either does not exist or has too few copies.
func (r *repository) ReserveCopies(ctx context.Context, bookID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE book_inventory
		SET available_copies = available_copies - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE book_id = ? AND available_copies >= ?
	`, qty, bookID, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReleaseCopies increments available copies without exceeding the total.
// A false return means the book does not exist or the release would push
// available past total.
func (r *repository) ReleaseCopies(ctx context.Context, bookID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE book_inventory
		SET available_copies = available_copies + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE book_id = ? AND available_copies + ? <= total_copies
	`, qty, bookID, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
