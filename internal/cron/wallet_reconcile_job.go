package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/drinkrun-backend/pkg/logger"
)

type walletReconciler interface {
	ReconcileAll(ctx context.Context) error
}

// WalletReconcileJobParams configure the wallet balance reconcile sweep.
type WalletReconcileJobParams struct {
	Logger  *logger.Logger
	Wallets walletReconciler
}

// NewWalletReconcileJob builds the cron job that recomputes cached wallet
// balances from the completed transaction rows.
func NewWalletReconcileJob(params WalletReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallets service required")
	}
	return &walletReconcileJob{
		logg:    params.Logger,
		wallets: params.Wallets,
	}, nil
}

type walletReconcileJob struct {
	logg    *logger.Logger
	wallets walletReconciler
}

func (j *walletReconcileJob) Name() string { return "wallet-reconcile" }

func (j *walletReconcileJob) Run(ctx context.Context) error {
	if err := j.wallets.ReconcileAll(ctx); err != nil {
		return fmt.Errorf("reconcile wallets: %w", err)
	}
	j.logg.Info(ctx, "wallet reconcile sweep complete")
	return nil
}
