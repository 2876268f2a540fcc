package enums

import "fmt"

// PaymentType maps to the payment_type_enum enum in Postgres.
type PaymentType string

const (
	PaymentTypePayNow        PaymentType = "pay_now"
	PaymentTypePayOnDelivery PaymentType = "pay_on_delivery"
)

var validPaymentTypes = []PaymentType{
	PaymentTypePayNow,
	PaymentTypePayOnDelivery,
}

// IsValid reports whether the value matches the canonical payment type enum.
func (t PaymentType) IsValid() bool {
	for _, candidate := range validPaymentTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParsePaymentType converts raw input into PaymentType.
func ParsePaymentType(value string) (PaymentType, error) {
	for _, candidate := range validPaymentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment type %q", value)
}
