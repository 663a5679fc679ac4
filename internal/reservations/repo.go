package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/librisforge/libris-backend/pkg/db/models"
	"github.com/librisforge/libris-backend/pkg/enums"
)

// Repository manages persistence for reservation queue entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	FindActiveByMemberAndBook(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error)
	FindFulfilledByMemberAndBook(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error)
	HeadWaiting(ctx context.Context, bookID uuid.UUID) (*models.Reservation, error)
	NextPosition(ctx context.Context, bookID uuid.UUID) (int64, error)
	MarkFulfilled(ctx context.Context, id uuid.UUID, at time.Time, claimDeadline time.Time) (bool, error)
	MarkClaimed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListWaitingByBook(ctx context.Context, bookID uuid.UUID) ([]models.Reservation, error)
	ListFulfilledExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reservation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.Reservation) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var record models.Reservation
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindActiveByMemberAndBook(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error) {
	return r.findOne(ctx, "book_id = ? AND member_id = ? AND status IN ?",
		bookID, memberID, []enums.ReservationStatus{enums.ReservationStatusWaiting, enums.ReservationStatusFulfilled})
}

func (r *repository) FindFulfilledByMemberAndBook(ctx context.Context, bookID, memberID uuid.UUID) (*models.Reservation, error) {
	return r.findOne(ctx, "book_id = ? AND member_id = ? AND status = ?",
		bookID, memberID, enums.ReservationStatusFulfilled)
}

// HeadWaiting returns the oldest waiting entry for a book. Positions are
// assigned monotonically at enqueue time, so position order is arrival order.
func (r *repository) HeadWaiting(ctx context.Context, bookID uuid.UUID) (*models.Reservation, error) {
	var record models.Reservation
	err := r.db.WithContext(ctx).
		Where("book_id = ? AND status = ?", bookID, enums.ReservationStatusWaiting).
		Order("position ASC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) NextPosition(ctx context.Context, bookID uuid.UUID) (int64, error) {
	var max int64
	err := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("book_id = ?", bookID).
		Select("COALESCE(MAX(position), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (r *repository) MarkFulfilled(ctx context.Context, id uuid.UUID, at time.Time, claimDeadline time.Time) (bool, error) {
	return r.guardedUpdate(ctx,
		"id = ? AND status = ?", []any{id, enums.ReservationStatusWaiting},
		map[string]any{
			"status":         enums.ReservationStatusFulfilled,
			"fulfilled_at":   at,
			"claim_deadline": claimDeadline,
			"updated_at":     at,
		})
}

// MarkClaimed resolves a fulfilled entry whose member checked the book
// out. Claimed entries land in the cancelled status with claimed_at set,
// which distinguishes them from withdrawals and expiries.
func (r *repository) MarkClaimed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.guardedUpdate(ctx,
		"id = ? AND status = ?", []any{id, enums.ReservationStatusFulfilled},
		map[string]any{
			"status":     enums.ReservationStatusCancelled,
			"claimed_at": at,
			"updated_at": at,
		})
}

// MarkCancelled withdraws a waiting entry. Fulfilled entries resolve via
// claim or expiry only.
func (r *repository) MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.guardedUpdate(ctx,
		"id = ? AND status = ?", []any{id, enums.ReservationStatusWaiting},
		map[string]any{
			"status":       enums.ReservationStatusCancelled,
			"cancelled_at": at,
			"updated_at":   at,
		})
}

// MarkExpired cancels a fulfilled entry whose claim window lapsed.
func (r *repository) MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.guardedUpdate(ctx,
		"id = ? AND status = ?", []any{id, enums.ReservationStatusFulfilled},
		map[string]any{
			"status":       enums.ReservationStatusCancelled,
			"cancelled_at": at,
			"updated_at":   at,
		})
}

func (r *repository) ListWaitingByBook(ctx context.Context, bookID uuid.UUID) ([]models.Reservation, error) {
	var records []models.Reservation
	err := r.db.WithContext(ctx).
		Where("book_id = ? AND status = ?", bookID, enums.ReservationStatusWaiting).
		Order("position ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) ListFulfilledExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND claim_deadline IS NOT NULL AND claim_deadline < ?", enums.ReservationStatusFulfilled, cutoff).
		Order("claim_deadline ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var records []models.Reservation
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) findOne(ctx context.Context, query string, args ...any) (*models.Reservation, error) {
	var record models.Reservation
	err := r.db.WithContext(ctx).
		Where(query, args...).
		Order("position ASC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) guardedUpdate(ctx context.Context, query string, args []any, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where(query, args...).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
