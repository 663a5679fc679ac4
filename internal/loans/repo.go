package loans

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/librisforge/libris-backend/pkg/db/models"
	"github.com/librisforge/libris-backend/pkg/enums"
	"github.com/librisforge/libris-backend/pkg/types"
)

// Repository manages persistence for loan records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, loan *models.Loan) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	MarkReturned(ctx context.Context, id uuid.UUID, returnedDate types.Date) (bool, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Loan, error)
	ListOpenByMemberAndBook(ctx context.Context, memberID, bookID uuid.UUID) ([]models.Loan, error)
	ListOverdue(ctx context.Context, asOf types.Date, limit int) ([]models.Loan, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a loan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).Create(loan).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&loan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &loan, nil
}

// MarkReturned closes an open loan. The status guard makes the call
// idempotent-safe: a second return attempt affects no rows.
func (r *repository) MarkReturned(ctx context.Context, id uuid.UUID, returnedDate types.Date) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ? AND status = ?", id, enums.LoanStatusBorrowed).
		Updates(map[string]any{
			"status":        enums.LoanStatusReturned,
			"returned_date": returnedDate,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Loan, error) {
	var records []models.Loan
	err := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) ListOpenByMemberAndBook(ctx context.Context, memberID, bookID uuid.UUID) ([]models.Loan, error) {
	var records []models.Loan
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND book_id = ? AND status = ?", memberID, bookID, enums.LoanStatusBorrowed).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListOverdue returns open loans whose due date has passed as of the
// given date. Overdue is derived at read time, never stored.
func (r *repository) ListOverdue(ctx context.Context, asOf types.Date, limit int) ([]models.Loan, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND due_date < ?", enums.LoanStatusBorrowed, asOf).
		Order("due_date ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var records []models.Loan
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
