package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

// EventDescriptor ties an event type to the aggregate that emits it, the
// topic it is published on and the Go type of its payload.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row or message that will never decode, so
// callers dead-letter it instead of retrying.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func fatalf(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		PayloadFactory: func() any { return new(T) },
	}
}

// NewEventRegistry registers every domain event on the configured topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, errors.New("domain topic is required")
	}

	descriptors := []EventDescriptor{
		describe[payloads.OrderPaidEvent](enums.EventOrderPaid, enums.AggregateOrder),
		describe[payloads.PaymentFailedEvent](enums.EventPaymentFailed, enums.AggregatePayment),
		describe[payloads.InvoiceGeneratedEvent](enums.EventInvoiceGenerated, enums.AggregateInvoice),
		describe[payloads.ProductReviewedEvent](enums.EventProductReviewed, enums.AggregateProduct),
		describe[payloads.NotificationRequestedEvent](enums.EventNotificationRequested, enums.AggregateNotification),
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		desc.Topic = cfg.DomainTopic
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve checks an outbox row against its descriptor and decodes the
// typed payload ready for publishing.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, err := r.lookup(event.EventType)
	if err != nil {
		return nil, err
	}
	if desc.AggregateType != event.AggregateType {
		return nil, fatalf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, fatalf("missing aggregate_id")
	}
	return r.open(desc, event.Payload)
}

// DecodeMessage decodes a delivered message body. The event type travels
// in the message attributes.
func (r *EventRegistry) DecodeMessage(eventType enums.OutboxEventType, data []byte) (*ResolvedEvent, error) {
	desc, err := r.lookup(eventType)
	if err != nil {
		return nil, err
	}
	return r.open(desc, data)
}

func (r *EventRegistry) lookup(eventType enums.OutboxEventType) (EventDescriptor, error) {
	desc, ok := r.entries[eventType]
	if !ok {
		return EventDescriptor{}, fatalf("unsupported event type %s", eventType)
	}
	return desc, nil
}

func (r *EventRegistry) open(desc EventDescriptor, raw []byte) (*ResolvedEvent, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fatalf("decode envelope: %w", err)
	}
	if envelope.Version != outbox.CurrentVersion {
		return nil, fatalf("unsupported %s version %d", desc.EventType, envelope.Version)
	}

	payload := desc.PayloadFactory()
	switch err := envelope.Decode(payload); {
	case errors.Is(err, outbox.ErrEmptyPayload):
		return nil, fatalf("payload missing for %s", desc.EventType)
	case err != nil:
		return nil, fatalf("decode %s payload: %w", desc.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
