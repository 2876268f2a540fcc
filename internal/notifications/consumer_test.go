package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/drinkrun-backend/pkg/enums"
	"github.com/angelmondragon/drinkrun-backend/pkg/logger"
	"github.com/angelmondragon/drinkrun-backend/pkg/outbox"
	"github.com/angelmondragon/drinkrun-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/drinkrun-backend/pkg/outbox/payloads"
)

type sentSMS struct {
	phone   string
	message string
}

type stubSMS struct {
	sent []sentSMS
	err  error
}

func (s *stubSMS) Send(ctx context.Context, phone, message string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentSMS{phone: phone, message: message})
	return nil
}

type stubIdempotencyStore struct {
	keys     map[string]struct{}
	setNXErr error
}

func newStubIdempotencyStore() *stubIdempotencyStore {
	return &stubIdempotencyStore{keys: make(map[string]struct{})}
}

func (s *stubIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.setNXErr != nil {
		return false, s.setNXErr
	}
	if _, exists := s.keys[key]; exists {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

func (s *stubIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

func (s *stubIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "dr:idempotency:" + scope + ":" + id
}

type consumerFixture struct {
	consumer *Consumer
	sms      *stubSMS
	store    *stubIdempotencyStore
}

func newConsumerFixture(t *testing.T) *consumerFixture {
	t.Helper()
	store := newStubIdempotencyStore()
	manager, err := idempotency.NewManager(store, time.Hour)
	if err != nil {
		t.Fatalf("manager constructor failed: %v", err)
	}
	sms := &stubSMS{}
	return &consumerFixture{
		consumer: &Consumer{
			sms:         sms,
			idempotency: manager,
			logg:        logger.New(logger.Options{ServiceName: "test"}),
		},
		sms:   sms,
		store: store,
	}
}

func receiptMessage(t *testing.T, payload payloads.PaymentConfirmedEvent) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &pubsub.Message{
		ID:         uuid.NewString(),
		Data:       envelope,
		Attributes: map[string]string{"event_type": string(enums.EventPaymentConfirmed)},
	}
}

func confirmedPayload() payloads.PaymentConfirmedEvent {
	return payloads.PaymentConfirmedEvent{
		OrderID:       uuid.New(),
		TransactionID: uuid.New(),
		Amount:        decimal.NewFromInt(25),
		PaymentMethod: enums.PaymentMethodMobileMoney,
		ReceiptNumber: "RCT100",
		CustomerPhone: "254700000001",
		ConfirmedAt:   time.Now(),
	}
}

func TestProcessSendsReceipt(t *testing.T) {
	fix := newConsumerFixture(t)
	payload := confirmedPayload()

	result := fix.consumer.process(context.Background(), receiptMessage(t, payload))
	if !result.ack {
		t.Fatal("expected ack")
	}
	if len(fix.sms.sent) != 1 {
		t.Fatalf("expected 1 sms got %d", len(fix.sms.sent))
	}
	if fix.sms.sent[0].phone != payload.CustomerPhone {
		t.Fatalf("expected sms to %s got %s", payload.CustomerPhone, fix.sms.sent[0].phone)
	}
	if !strings.Contains(fix.sms.sent[0].message, "RCT100") {
		t.Fatalf("expected receipt number in message got %q", fix.sms.sent[0].message)
	}
}

func TestProcessSkipsNonPaymentEvents(t *testing.T) {
	fix := newConsumerFixture(t)
	msg := &pubsub.Message{
		ID:         uuid.NewString(),
		Attributes: map[string]string{"event_type": string(enums.EventOrderUpdated)},
	}

	result := fix.consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatal("non-payment events must be acked and skipped")
	}
	if len(fix.sms.sent) != 0 {
		t.Fatal("non-payment events must not send sms")
	}
}

func TestProcessDuplicateEventIsAckedOnce(t *testing.T) {
	fix := newConsumerFixture(t)
	msg := receiptMessage(t, confirmedPayload())

	first := fix.consumer.process(context.Background(), msg)
	second := fix.consumer.process(context.Background(), msg)
	if !first.ack || !second.ack {
		t.Fatal("both deliveries must be acked")
	}
	if len(fix.sms.sent) != 1 {
		t.Fatalf("duplicate delivery must not resend, got %d sms", len(fix.sms.sent))
	}
}

func TestProcessMalformedEnvelopeIsAcked(t *testing.T) {
	fix := newConsumerFixture(t)
	msg := &pubsub.Message{
		ID:         uuid.NewString(),
		Data:       []byte("not json"),
		Attributes: map[string]string{"event_type": string(enums.EventPaymentConfirmed)},
	}

	result := fix.consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatal("poison messages must be acked, not redelivered forever")
	}
}

func TestProcessSendFailureNacksAndClearsMarker(t *testing.T) {
	fix := newConsumerFixture(t)
	fix.sms.err = errors.New("provider down")
	msg := receiptMessage(t, confirmedPayload())

	result := fix.consumer.process(context.Background(), msg)
	if !result.nack {
		t.Fatal("send failure must nack for redelivery")
	}
	if len(fix.store.keys) != 0 {
		t.Fatal("failed send must clear the idempotency marker so the retry can run")
	}

	// Redelivery after the provider recovers succeeds.
	fix.sms.err = nil
	result = fix.consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatal("redelivery must succeed")
	}
	if len(fix.sms.sent) != 1 {
		t.Fatalf("expected 1 sms after retry got %d", len(fix.sms.sent))
	}
}

func TestProcessIdempotencyStoreOutageNacks(t *testing.T) {
	fix := newConsumerFixture(t)
	fix.store.setNXErr = errors.New("redis down")

	result := fix.consumer.process(context.Background(), receiptMessage(t, confirmedPayload()))
	if !result.nack {
		t.Fatal("idempotency outage must nack for redelivery")
	}
	if len(fix.sms.sent) != 0 {
		t.Fatal("no sms may be sent when the guard is unavailable")
	}
}

func TestProcessNoPhoneSkipsSend(t *testing.T) {
	fix := newConsumerFixture(t)
	payload := confirmedPayload()
	payload.CustomerPhone = ""

	result := fix.consumer.process(context.Background(), receiptMessage(t, payload))
	if !result.ack {
		t.Fatal("orders without a phone must still ack")
	}
	if len(fix.sms.sent) != 0 {
		t.Fatal("no phone on file, no sms")
	}
}

func TestBuildReceiptMessage(t *testing.T) {
	orderID := uuid.MustParse("0d9aa2df-3b18-4b60-9cf5-01aa52c9f1a1")
	payload := payloads.PaymentConfirmedEvent{
		OrderID:       orderID,
		Amount:        decimal.NewFromFloat(125.5),
		ReceiptNumber: "RCT200",
	}
	got := BuildReceiptMessage(payload)
	want := "DrinkRun: payment of 125.50 received for order 0d9aa2df. Receipt RCT200."
	if got != want {
		t.Fatalf("expected %q got %q", want, got)
	}

	payload.ReceiptNumber = ""
	got = BuildReceiptMessage(payload)
	want = "DrinkRun: payment of 125.50 received for order 0d9aa2df."
	if got != want {
		t.Fatalf("expected %q got %q", want, got)
	}
}

func TestNewConsumerValidation(t *testing.T) {
	manager, err := idempotency.NewManager(newStubIdempotencyStore(), time.Hour)
	if err != nil {
		t.Fatalf("manager constructor failed: %v", err)
	}
	if _, err := NewConsumer(nil, nil, manager, logger.New(logger.Options{ServiceName: "test"})); err == nil {
		t.Fatal("expected error for missing sms client")
	}
	if _, err := NewConsumer(&stubSMS{}, nil, manager, logger.New(logger.Options{ServiceName: "test"})); err == nil {
		t.Fatal("expected error for missing subscription")
	}
}
