package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/librisforge/libris-backend/pkg/logger"
	"github.com/librisforge/libris-backend/pkg/types"
)

const defaultOverdueBatch = 500

type overdueEmitter interface {
	EmitOverdueEvents(ctx context.Context, asOf types.Date, limit int) (int, error)
}

type OverdueLoanJobParams struct {
	Logger      *logger.Logger
	Circulation overdueEmitter
	BatchSize   int
}

// NewOverdueLoanJob publishes overdue events for open loans past their
// due date. Emission dedupes per loan, so the sweep is safe to repeat.
func NewOverdueLoanJob(params OverdueLoanJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Circulation == nil {
		return nil, fmt.Errorf("circulation service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultOverdueBatch
	}
	return &overdueLoanJob{
		logg:  params.Logger,
		circ:  params.Circulation,
		batch: batch,
		now:   time.Now,
	}, nil
}

type overdueLoanJob struct {
	logg  *logger.Logger
	circ  overdueEmitter
	batch int
	now   func() time.Time
}

func (j *overdueLoanJob) Name() string { return "overdue-loans" }

func (j *overdueLoanJob) Run(ctx context.Context) error {
	asOf := types.DateOf(j.now().UTC())
	emitted, err := j.circ.EmitOverdueEvents(ctx, asOf, j.batch)
	if err != nil {
		return fmt.Errorf("overdue loan sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"as_of":   asOf.String(),
		"emitted": emitted,
	})
	j.logg.Info(logCtx, "overdue loan sweep complete")
	return nil
}
