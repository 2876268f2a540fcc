package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics tracks payment resolution paths and ledger anomalies.
type PaymentMetrics struct {
	resolved      *prometheus.CounterVec
	pollAttempts  prometheus.Counter
	amountAlerts  prometheus.Counter
	walletRepairs prometheus.Counter
}

// NewPaymentMetrics registers payment counters on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	resolved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_resolved_total",
		Help: "Payment attempts resolved, labeled by source (webhook, poll, manual) and outcome.",
	}, []string{"source", "outcome"})
	pollAttempts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_poll_attempts_total",
		Help: "Gateway status poll attempts.",
	})
	amountAlerts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_amount_mismatch_total",
		Help: "Confirmed payments whose amount differed from the order total.",
	})
	walletRepairs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wallet_balance_repairs_total",
		Help: "Wallet balances corrected by the reconcile sweep.",
	})
	reg.MustRegister(resolved, pollAttempts, amountAlerts, walletRepairs)
	return &PaymentMetrics{
		resolved:      resolved,
		pollAttempts:  pollAttempts,
		amountAlerts:  amountAlerts,
		walletRepairs: walletRepairs,
	}
}

// IncResolved counts a resolved payment attempt.
func (p *PaymentMetrics) IncResolved(source, outcome string) {
	if p == nil || p.resolved == nil {
		return
	}
	p.resolved.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

// IncPollAttempt counts one gateway status poll.
func (p *PaymentMetrics) IncPollAttempt() {
	if p == nil || p.pollAttempts == nil {
		return
	}
	p.pollAttempts.Inc()
}

// IncAmountMismatch counts an amount-mismatch alert.
func (p *PaymentMetrics) IncAmountMismatch() {
	if p == nil || p.amountAlerts == nil {
		return
	}
	p.amountAlerts.Inc()
}

// IncWalletRepair counts a corrected wallet balance.
func (p *PaymentMetrics) IncWalletRepair() {
	if p == nil || p.walletRepairs == nil {
		return
	}
	p.walletRepairs.Inc()
}
