package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/drinkrun-backend/pkg/config"
)

// Setting keys the core reads. Administration of the rows is out of scope.
const (
	KeyDeliveryFee          = "delivery_fee"
	KeyDeliveryFeeAlcohol   = "delivery_fee_alcohol"
	KeyTestDeliveryFee      = "test_delivery_fee"
	KeyTestMode             = "test_mode"
	KeyDriverPayPerDelivery = "driver_pay_per_delivery"
	KeyDriverDeliveryPay    = "driver_delivery_pay"
)

// Values is the typed projection of the settings rows the engine consults.
type Values struct {
	DeliveryFee          decimal.Decimal
	DeliveryFeeAlcohol   decimal.Decimal
	TestDeliveryFee      decimal.Decimal
	TestMode             bool
	DriverPayPerDelivery bool
	DriverDeliveryPay    decimal.Decimal
}

// DeliveryFeeFor returns the configured fee for the order's alcohol category,
// honoring test mode.
func (v Values) DeliveryFeeFor(hasAlcohol bool) decimal.Decimal {
	if v.TestMode {
		return v.TestDeliveryFee
	}
	if hasAlcohol {
		return v.DeliveryFeeAlcohol
	}
	return v.DeliveryFee
}

// Service loads settings rows into Values, falling back to config defaults
// for missing rows.
type Service interface {
	Load(ctx context.Context) (*Values, error)
}

type service struct {
	repo     Repository
	defaults config.FeesConfig
}

// NewService wires a settings service with the provided repository.
func NewService(repo Repository, defaults config.FeesConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settings repository required")
	}
	return &service{repo: repo, defaults: defaults}, nil
}

func (s *service) Load(ctx context.Context) (*Values, error) {
	rows, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]string, len(rows))
	for _, row := range rows {
		byKey[row.Key] = row.Value
	}

	values := &Values{
		DeliveryFee:        mustDecimal(s.defaults.DeliveryFee),
		DeliveryFeeAlcohol: mustDecimal(s.defaults.DeliveryFeeAlcohol),
		TestDeliveryFee:    mustDecimal(s.defaults.TestDeliveryFee),
		DriverDeliveryPay:  mustDecimal(s.defaults.DriverDeliveryPay),
	}

	if raw, ok := byKey[KeyDeliveryFee]; ok {
		if fee, err := decimal.NewFromString(raw); err == nil {
			values.DeliveryFee = fee
		}
	}
	if raw, ok := byKey[KeyDeliveryFeeAlcohol]; ok {
		if fee, err := decimal.NewFromString(raw); err == nil {
			values.DeliveryFeeAlcohol = fee
		}
	}
	if raw, ok := byKey[KeyTestDeliveryFee]; ok {
		if fee, err := decimal.NewFromString(raw); err == nil {
			values.TestDeliveryFee = fee
		}
	}
	if raw, ok := byKey[KeyDriverDeliveryPay]; ok {
		if pay, err := decimal.NewFromString(raw); err == nil {
			values.DriverDeliveryPay = pay
		}
	}
	values.TestMode = parseBool(byKey[KeyTestMode])
	values.DriverPayPerDelivery = parseBool(byKey[KeyDriverPayPerDelivery])

	return values, nil
}

func parseBool(raw string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return value
}

func mustDecimal(raw string) decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return value
}
