package enums

import "fmt"

// TransactionType maps to the transaction_type_enum enum in Postgres.
type TransactionType string

const (
	TransactionTypePayment         TransactionType = "payment"
	TransactionTypeTip             TransactionType = "tip"
	TransactionTypeDeliveryPay     TransactionType = "delivery_pay"
	TransactionTypeCashSettlement  TransactionType = "cash_settlement"
	TransactionTypeDriverPay       TransactionType = "driver_pay"
	TransactionTypeRefund          TransactionType = "refund"
	TransactionTypeChargeback      TransactionType = "chargeback"
	TransactionTypeWithdrawal      TransactionType = "withdrawal"
	TransactionTypePayout          TransactionType = "payout"
	TransactionTypeManualPayout    TransactionType = "manual_payout"
	TransactionTypeReversal        TransactionType = "reversal"
	TransactionTypeAdjustmentDebit TransactionType = "adjustment_debit"
)

var validTransactionTypes = []TransactionType{
	TransactionTypePayment,
	TransactionTypeTip,
	TransactionTypeDeliveryPay,
	TransactionTypeCashSettlement,
	TransactionTypeDriverPay,
	TransactionTypeRefund,
	TransactionTypeChargeback,
	TransactionTypeWithdrawal,
	TransactionTypePayout,
	TransactionTypeManualPayout,
	TransactionTypeReversal,
	TransactionTypeAdjustmentDebit,
}

// TransactionCategory classifies a transaction as money in or money out.
type TransactionCategory string

const (
	TransactionCategoryCredit TransactionCategory = "credit"
	TransactionCategoryDebit  TransactionCategory = "debit"
)

// debitTransactionTypes is the canonical debit set. Callers must not
// re-derive this classification; Category is the single lookup.
var debitTransactionTypes = map[TransactionType]struct{}{
	TransactionTypeRefund:          {},
	TransactionTypeChargeback:      {},
	TransactionTypeWithdrawal:      {},
	TransactionTypePayout:          {},
	TransactionTypeDriverPay:       {},
	TransactionTypeCashSettlement:  {},
	TransactionTypeManualPayout:    {},
	TransactionTypeReversal:        {},
	TransactionTypeAdjustmentDebit: {},
}

var transactionTypeLabels = map[TransactionType]string{
	TransactionTypePayment:         "Order payment",
	TransactionTypeTip:             "Driver tip",
	TransactionTypeDeliveryPay:     "Delivery fee",
	TransactionTypeCashSettlement:  "Cash settlement",
	TransactionTypeDriverPay:       "Driver pay",
	TransactionTypeRefund:          "Refund",
	TransactionTypeChargeback:      "Chargeback",
	TransactionTypeWithdrawal:      "Withdrawal",
	TransactionTypePayout:          "Payout",
	TransactionTypeManualPayout:    "Manual payout",
	TransactionTypeReversal:        "Reversal",
	TransactionTypeAdjustmentDebit: "Adjustment (debit)",
}

// IsValid reports whether the value matches the canonical transaction type enum.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// Category returns the credit/debit classification for the type.
func (t TransactionType) Category() TransactionCategory {
	if _, ok := debitTransactionTypes[t]; ok {
		return TransactionCategoryDebit
	}
	return TransactionCategoryCredit
}

// Label returns the display label for the type so callers render it as data.
func (t TransactionType) Label() string {
	if label, ok := transactionTypeLabels[t]; ok {
		return label
	}
	return string(t)
}

// IsPaymentCredit reports whether a completed row of this type marks the
// order as paid.
func (t TransactionType) IsPaymentCredit() bool {
	return t == TransactionTypePayment
}

// ParseTransactionType converts raw input into TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
