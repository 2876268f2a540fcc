package payments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/drinkrun-backend/pkg/config"
	"github.com/angelmondragon/drinkrun-backend/pkg/logger"
)

// Poller runs the gateway-status fallback for pending push attempts. Each
// tracked attempt gets its own goroutine that polls on an interval until the
// attempt resolves or the poll budget expires; webhooks usually win the race
// and cancel the timer through the service.
type Poller struct {
	service  Service
	logg     *logger.Logger
	interval time.Duration
	budget   time.Duration

	mu       sync.Mutex
	attempts map[uuid.UUID]context.CancelFunc
	wg       sync.WaitGroup
	baseCtx  context.Context
	cancel   context.CancelFunc
}

// PollerParams configure the poller.
type PollerParams struct {
	Service  Service
	Logger   *logger.Logger
	Payments config.PaymentsConfig
}

// NewPoller builds a poller; call Start before tracking attempts.
func NewPoller(params PollerParams) (*Poller, error) {
	if params.Service == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	interval := params.Payments.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	budget := params.Payments.PollTimeout
	if budget <= 0 {
		budget = 5 * time.Minute
	}
	return &Poller{
		service:  params.Service,
		logg:     params.Logger,
		interval: interval,
		budget:   budget,
		attempts: make(map[uuid.UUID]context.CancelFunc),
	}, nil
}

// Start binds the poller to its lifetime context.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.baseCtx != nil {
		return
	}
	p.baseCtx, p.cancel = context.WithCancel(ctx)
}

// Track begins polling an attempt. Tracking an attempt twice is a no-op.
func (p *Poller) Track(attemptID uuid.UUID) {
	p.mu.Lock()
	if p.baseCtx == nil {
		p.mu.Unlock()
		p.logg.Warn(context.Background(), "poller not started; attempt will rely on the timeout sweep")
		return
	}
	if _, exists := p.attempts[attemptID]; exists {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(p.baseCtx)
	p.attempts[attemptID] = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	go p.pollLoop(ctx, attemptID)
}

// Cancel stops polling an attempt. Safe to call for untracked attempts.
func (p *Poller) Cancel(attemptID uuid.UUID) {
	p.mu.Lock()
	cancel, exists := p.attempts[attemptID]
	if exists {
		delete(p.attempts, attemptID)
	}
	p.mu.Unlock()
	if exists {
		cancel()
	}
}

// Stop cancels every in-flight poll loop and waits for them to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.attempts = make(map[uuid.UUID]context.CancelFunc)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) pollLoop(ctx context.Context, attemptID uuid.UUID) {
	defer p.wg.Done()
	defer p.Cancel(attemptID)

	logCtx := p.logg.WithTransactionID(ctx, attemptID.String())
	deadline := time.NewTimer(p.budget)
	defer deadline.Stop()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			// The budget ran out without a terminal gateway answer.
			if err := p.service.FailTimedOut(context.WithoutCancel(ctx), attemptID); err != nil {
				p.logg.Error(logCtx, "failed to time out payment attempt", err)
			}
			return
		case <-ticker.C:
			attempt, err := p.service.PollOnce(ctx, attemptID)
			if err != nil {
				p.logg.Warn(p.logg.WithField(logCtx, "error", err.Error()), "gateway status poll failed")
				continue
			}
			if attempt != nil && attempt.Status.IsResolved() {
				return
			}
		}
	}
}
