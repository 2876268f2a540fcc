package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/drinkrun-backend/pkg/logger"
)

// The sweep grace keeps the cron safety net behind the in-process poller so
// a healthy poller always resolves an attempt first.
const sweepGrace = time.Minute

type timedOutSweeper interface {
	SweepTimedOut(ctx context.Context, olderThan time.Duration) (int, error)
}

// PaymentTimeoutJobParams configure the stale payment attempt sweep.
type PaymentTimeoutJobParams struct {
	Logger     *logger.Logger
	Payments   timedOutSweeper
	PollBudget time.Duration
}

// NewPaymentTimeoutJob builds the cron job that fails payment attempts whose
// poll timers were lost to a crashed instance.
func NewPaymentTimeoutJob(params PaymentTimeoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments sweeper required")
	}
	budget := params.PollBudget
	if budget <= 0 {
		budget = 5 * time.Minute
	}
	return &paymentTimeoutJob{
		logg:     params.Logger,
		payments: params.Payments,
		budget:   budget,
	}, nil
}

type paymentTimeoutJob struct {
	logg     *logger.Logger
	payments timedOutSweeper
	budget   time.Duration
}

func (j *paymentTimeoutJob) Name() string { return "payment-timeout" }

func (j *paymentTimeoutJob) Run(ctx context.Context) error {
	swept, err := j.payments.SweepTimedOut(ctx, j.budget+sweepGrace)
	if err != nil {
		return fmt.Errorf("sweep timed out attempts: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": swept})
	j.logg.Info(logCtx, "payment timeout sweep complete")
	return nil
}
