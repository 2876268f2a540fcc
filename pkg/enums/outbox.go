package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type_enum enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder       OutboxAggregateType = "order"
	AggregateTransaction OutboxAggregateType = "transaction"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateTransaction,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type_enum enum in Postgres. The values
// double as the real-time event names consumed by the admin dashboard and
// driver app.
type OutboxEventType string

const (
	EventNewOrder            OutboxEventType = "new-order"
	EventOrderUpdated        OutboxEventType = "order-updated"
	EventOrderStatusUpdated  OutboxEventType = "order-status-updated"
	EventPaymentConfirmed    OutboxEventType = "payment-confirmed"
	EventDriverOrderResponse OutboxEventType = "driver-order-response"
)

var validOutboxEventTypes = []OutboxEventType{
	EventNewOrder,
	EventOrderUpdated,
	EventOrderStatusUpdated,
	EventPaymentConfirmed,
	EventDriverOrderResponse,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
