package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/drinkrun-backend/pkg/enums"
	"github.com/angelmondragon/drinkrun-backend/pkg/logger"
	"github.com/angelmondragon/drinkrun-backend/pkg/outbox"
	"github.com/angelmondragon/drinkrun-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/drinkrun-backend/pkg/outbox/payloads"
)

const receiptConsumer = "payment-receipts"

type smsSender interface {
	Send(ctx context.Context, phone, message string) error
}

// Consumer watches the notification stream and texts customers a receipt
// when their payment is confirmed.
type Consumer struct {
	sms          smsSender
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a payment receipt consumer.
func NewConsumer(sms smsSender, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if sms == nil {
		return nil, fmt.Errorf("sms client required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		sms:          sms,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	if eventType != string(enums.EventPaymentConfirmed) {
		c.logg.Info(logCtx, "skipping non-payment event")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, receiptConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	var payload payloads.PaymentConfirmedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		_ = c.idempotency.Delete(ctx, receiptConsumer, eventID)
		return processResult{nack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"order_id":       payload.OrderID.String(),
		"transaction_id": payload.TransactionID.String(),
	})

	if err := c.sendReceipt(ctx, payload, logCtx); err != nil {
		c.logg.Error(logCtx, "receipt delivery failed", err)
		_ = c.idempotency.Delete(ctx, receiptConsumer, eventID)
		return processResult{nack: true}
	}

	return processResult{ack: true}
}

func (c *Consumer) sendReceipt(ctx context.Context, payload payloads.PaymentConfirmedEvent, logCtx context.Context) error {
	if payload.CustomerPhone == "" {
		// Walk-in POS orders have no phone on file.
		c.logg.Info(logCtx, "no customer phone; receipt skipped")
		return nil
	}
	message := BuildReceiptMessage(payload)
	if err := c.sms.Send(ctx, payload.CustomerPhone, message); err != nil {
		return err
	}
	c.logg.Info(logCtx, "payment receipt sent")
	return nil
}

// BuildReceiptMessage renders the customer-facing confirmation text.
func BuildReceiptMessage(payload payloads.PaymentConfirmedEvent) string {
	message := fmt.Sprintf("DrinkRun: payment of %s received for order %s.",
		payload.Amount.StringFixed(2), shortOrderRef(payload.OrderID))
	if payload.ReceiptNumber != "" {
		message = fmt.Sprintf("%s Receipt %s.", message, payload.ReceiptNumber)
	}
	return message
}

// shortOrderRef keeps SMS bodies inside a single segment.
func shortOrderRef(orderID uuid.UUID) string {
	s := orderID.String()
	return s[:8]
}
