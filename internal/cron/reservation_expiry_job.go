package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/librisforge/libris-backend/pkg/logger"
)

const defaultExpiryBatch = 100

type reservationExpirer interface {
	ExpireReservations(ctx context.Context, now time.Time, limit int) (int, error)
}

type ReservationExpiryJobParams struct {
	Logger      *logger.Logger
	Circulation reservationExpirer
	BatchSize   int
}

// NewReservationExpiryJob sweeps fulfilled reservations whose claim
// window has lapsed.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Circulation == nil {
		return nil, fmt.Errorf("circulation service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &reservationExpiryJob{
		logg:  params.Logger,
		circ:  params.Circulation,
		batch: batch,
		now:   time.Now,
	}, nil
}

type reservationExpiryJob struct {
	logg  *logger.Logger
	circ  reservationExpirer
	batch int
	now   func() time.Time
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	expired, err := j.circ.ExpireReservations(ctx, now, j.batch)
	if err != nil {
		return fmt.Errorf("reservation expiry: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"as_of":   now,
		"expired": expired,
	})
	j.logg.Info(logCtx, "reservation expiry sweep complete")
	return nil
}
