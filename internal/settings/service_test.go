package settings

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/drinkrun-backend/pkg/config"
	"github.com/angelmondragon/drinkrun-backend/pkg/db/models"
)

type stubSettingsRepo struct {
	rows []models.Setting
}

func (s *stubSettingsRepo) FindAll(ctx context.Context) ([]models.Setting, error) {
	return s.rows, nil
}

func testDefaults() config.FeesConfig {
	return config.FeesConfig{
		DeliveryFee:        "20",
		DeliveryFeeAlcohol: "30",
		TestDeliveryFee:    "1",
		DriverDeliveryPay:  "12",
	}
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	svc, err := NewService(&stubSettingsRepo{}, testDefaults())
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}

	values, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if !values.DeliveryFee.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected default fee 20 got %s", values.DeliveryFee)
	}
	if !values.DeliveryFeeAlcohol.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected default alcohol fee 30 got %s", values.DeliveryFeeAlcohol)
	}
	if values.TestMode || values.DriverPayPerDelivery {
		t.Fatal("boolean flags default to off")
	}
}

func TestLoadRowsOverrideDefaults(t *testing.T) {
	repo := &stubSettingsRepo{rows: []models.Setting{
		{Key: KeyDeliveryFee, Value: "25.50"},
		{Key: KeyDriverPayPerDelivery, Value: "true"},
		{Key: KeyDriverDeliveryPay, Value: "15"},
		{Key: KeyTestMode, Value: "false"},
	}}
	svc, err := NewService(repo, testDefaults())
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}

	values, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if !values.DeliveryFee.Equal(decimal.RequireFromString("25.50")) {
		t.Fatalf("expected row fee 25.50 got %s", values.DeliveryFee)
	}
	if !values.DriverPayPerDelivery {
		t.Fatal("expected driver pay flag on")
	}
	if !values.DriverDeliveryPay.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected driver pay 15 got %s", values.DriverDeliveryPay)
	}
	// Alcohol fee has no row and keeps the default.
	if !values.DeliveryFeeAlcohol.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected default alcohol fee got %s", values.DeliveryFeeAlcohol)
	}
}

func TestLoadIgnoresMalformedRows(t *testing.T) {
	repo := &stubSettingsRepo{rows: []models.Setting{
		{Key: KeyDeliveryFee, Value: "not-a-number"},
		{Key: KeyTestMode, Value: "maybe"},
	}}
	svc, err := NewService(repo, testDefaults())
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}

	values, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if !values.DeliveryFee.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("malformed row must keep the default, got %s", values.DeliveryFee)
	}
	if values.TestMode {
		t.Fatal("malformed boolean must read as false")
	}
}

func TestDeliveryFeeFor(t *testing.T) {
	values := Values{
		DeliveryFee:        decimal.NewFromInt(20),
		DeliveryFeeAlcohol: decimal.NewFromInt(30),
		TestDeliveryFee:    decimal.NewFromInt(1),
	}

	if !values.DeliveryFeeFor(false).Equal(decimal.NewFromInt(20)) {
		t.Fatal("non-alcohol orders use the base fee")
	}
	if !values.DeliveryFeeFor(true).Equal(decimal.NewFromInt(30)) {
		t.Fatal("alcohol orders use the alcohol fee")
	}

	values.TestMode = true
	if !values.DeliveryFeeFor(true).Equal(decimal.NewFromInt(1)) {
		t.Fatal("test mode overrides both fees")
	}
}
