package wallets

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/drinkrun-backend/pkg/db/models"
	"github.com/angelmondragon/drinkrun-backend/pkg/logger"
	"github.com/angelmondragon/drinkrun-backend/pkg/metrics"
)

// Service exposes wallet reads and the reconcile pass. Balances are only
// credited by ledger commits; recompute is a pure aggregation over completed
// transactions, so it runs outside the order lock.
type Service interface {
	Find(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	Recompute(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
	ReconcileAll(ctx context.Context) error
}

type service struct {
	repo    Repository
	logg    *logger.Logger
	metrics *metrics.PaymentMetrics
}

// ServiceParams configure the wallets service.
type ServiceParams struct {
	Repo    Repository
	Logger  *logger.Logger
	Metrics *metrics.PaymentMetrics
}

// NewService wires a wallets service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("wallets repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repo,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

func (s *service) Find(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	return s.repo.FindByID(ctx, walletID)
}

// Recompute derives the balance from completed transactions and writes it
// back when the cached value drifted.
func (s *service) Recompute(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	wallet, err := s.repo.FindByID(ctx, walletID)
	if err != nil {
		return decimal.Zero, err
	}

	derived, err := s.repo.SumCompleted(ctx, *wallet)
	if err != nil {
		return decimal.Zero, err
	}

	if wallet.Balance.Equal(derived) {
		return derived, nil
	}

	fields := map[string]any{
		"wallet_id": wallet.ID.String(),
		"cached":    wallet.Balance.String(),
		"derived":   derived.String(),
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), "wallet balance drifted; repairing")
	if s.metrics != nil {
		s.metrics.IncWalletRepair()
	}

	if err := s.repo.SetBalance(ctx, walletID, derived); err != nil {
		return decimal.Zero, err
	}
	return derived, nil
}

// ReconcileAll recomputes every wallet, collecting failures rather than
// stopping at the first one.
func (s *service) ReconcileAll(ctx context.Context) error {
	wallets, err := s.repo.List(ctx)
	if err != nil {
		return err
	}

	var errs error
	for _, wallet := range wallets {
		if _, err := s.Recompute(ctx, wallet.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("wallet %s: %w", wallet.ID, err))
		}
	}
	return errs
}
