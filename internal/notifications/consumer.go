package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/registry"
)

// ConsumerName scopes the consumer's idempotency claims.
const ConsumerName = "notifications"

type batchWriter interface {
	CreateBatch(ctx context.Context, notifications []models.Notification) error
}

type recipientLookup interface {
	IDsByRoles(ctx context.Context, roles []enums.Role) ([]uuid.UUID, error)
}

type eventDecoder interface {
	DecodeMessage(eventType enums.OutboxEventType, data []byte) (*registry.ResolvedEvent, error)
}

// EventGuard claims event ids so redeliveries are handled once.
type EventGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// ConsumerParams wires the notifications consumer.
type ConsumerParams struct {
	Repo         batchWriter
	Recipients   recipientLookup
	Registry     eventDecoder
	Subscription *pubsub.Subscriber
	Idempotency  EventGuard
	Logger       *logger.Logger
}

// Consumer turns domain events into per-user notification rows.
type Consumer struct {
	repo         batchWriter
	recipients   recipientLookup
	registry     eventDecoder
	subscription *pubsub.Subscriber
	idempotency  EventGuard
	logg         *logger.Logger
}

// NewConsumer builds the notifications consumer.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Recipients == nil {
		return nil, fmt.Errorf("recipient lookup required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("event registry required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         params.Repo,
		recipients:   params.Recipients,
		registry:     params.Registry,
		subscription: params.Subscription,
		idempotency:  params.Idempotency,
		logg:         params.Logger,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("domain subscription required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		ctx = c.logg.WithFields(ctx, map[string]any{
			"message_id": msg.ID,
			"event_type": msg.Attributes["event_type"],
		})
		if err := c.Handle(ctx, msg.Attributes["event_type"], msg.Data); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Handle processes one delivery. A nil return means the message should be
// acked; malformed or unknown events are logged and acked.
func (c *Consumer) Handle(ctx context.Context, eventType string, data []byte) error {
	resolved, err := c.registry.DecodeMessage(enums.OutboxEventType(eventType), data)
	if err != nil {
		var nonRetryable registry.NonRetryableError
		if errors.As(err, &nonRetryable) {
			c.logg.Warn(ctx, fmt.Sprintf("dropping undecodable event: %v", err))
			return nil
		}
		c.logg.Error(ctx, "failed to decode event", err)
		return err
	}

	eventID := resolved.Envelope.EventID
	ctx = c.logg.WithField(ctx, "event_id", eventID)

	claimed, err := c.idempotency.Claim(ctx, eventID)
	if err != nil {
		c.logg.Error(ctx, "idempotency check failed", err)
		return err
	}
	if !claimed {
		c.logg.Info(ctx, "event already processed")
		return nil
	}

	rows, err := c.build(ctx, resolved.Payload)
	if err == nil && len(rows) > 0 {
		err = c.repo.CreateBatch(ctx, rows)
	}
	if err != nil {
		c.logg.Error(ctx, "notification handling failed", err)
		if releaseErr := c.idempotency.Release(ctx, eventID); releaseErr != nil {
			c.logg.Error(ctx, "failed to release idempotency marker", releaseErr)
		}
		return err
	}

	ctx = c.logg.WithField(ctx, "recipients", len(rows))
	c.logg.Info(ctx, "notifications created")
	return nil
}

func (c *Consumer) build(ctx context.Context, payload any) ([]models.Notification, error) {
	switch p := payload.(type) {
	case *payloads.OrderPaidEvent:
		link := fmt.Sprintf("/orders/%s", p.OrderID)
		amount := fmt.Sprintf("%s %s", p.Amount.StringFixed(2), p.Currency)
		return []models.Notification{
			notice(p.BuyerID, enums.NotificationTypeOrderPaid, "Payment received",
				fmt.Sprintf("Your payment of %s for order %s was completed.", amount, p.OrderNumber), &link),
			notice(p.SellerID, enums.NotificationTypeOrderPaid, "New paid order",
				fmt.Sprintf("Order %s was paid (%s).", p.OrderNumber, amount), &link),
		}, nil
	case *payloads.PaymentFailedEvent:
		link := fmt.Sprintf("/orders/%s", p.OrderID)
		message := fmt.Sprintf("Payment for order %s did not go through.", p.OrderNumber)
		if reason := strings.TrimSpace(p.Reason); reason != "" {
			message = fmt.Sprintf("%s Reason: %s", message, reason)
		}
		return []models.Notification{
			notice(p.BuyerID, enums.NotificationTypePaymentFailed, "Payment failed", message, &link),
		}, nil
	case *payloads.InvoiceGeneratedEvent:
		link := fmt.Sprintf("/invoices/%s", p.InvoiceID)
		message := fmt.Sprintf("Invoice %s for order %s is ready to download.", p.InvoiceNumber, p.OrderNumber)
		return []models.Notification{
			notice(p.BuyerID, enums.NotificationTypeInvoiceReady, "Invoice ready", message, &link),
			notice(p.SellerID, enums.NotificationTypeInvoiceReady, "Invoice ready", message, &link),
		}, nil
	case *payloads.ProductReviewedEvent:
		link := fmt.Sprintf("/seller/products/%s", p.ProductID)
		title := "Product approved"
		message := fmt.Sprintf("%s is now listed in the catalog.", p.ProductName)
		if p.Status == enums.ApprovalRejected {
			title = "Product rejected"
			message = fmt.Sprintf("%s was not approved.", p.ProductName)
			if p.Reason != nil && strings.TrimSpace(*p.Reason) != "" {
				message = fmt.Sprintf("%s Reason: %s", message, strings.TrimSpace(*p.Reason))
			}
		}
		return []models.Notification{
			notice(p.SellerID, enums.NotificationTypeProductReviewed, title, message, &link),
		}, nil
	case *payloads.NotificationRequestedEvent:
		recipients, err := c.resolveRecipients(ctx, p)
		if err != nil {
			return nil, err
		}
		kind := p.Type
		if kind == "" {
			kind = enums.NotificationTypeAnnouncement
		}
		rows := make([]models.Notification, 0, len(recipients))
		for _, id := range recipients {
			rows = append(rows, notice(id, kind, p.Title, p.Message, p.Link))
		}
		return rows, nil
	default:
		c.logg.Info(ctx, "event not handled")
		return nil, nil
	}
}

func (c *Consumer) resolveRecipients(ctx context.Context, p *payloads.NotificationRequestedEvent) ([]uuid.UUID, error) {
	if len(p.Recipients) > 0 {
		return dedupe(p.Recipients), nil
	}
	ids, err := c.recipients.IDsByRoles(ctx, audienceRoles(p.Audience))
	if err != nil {
		return nil, fmt.Errorf("resolve audience %s: %w", p.Audience, err)
	}
	return ids, nil
}

// audienceRoles mirrors Audience.Includes: admins see every audience.
func audienceRoles(audience enums.Audience) []enums.Role {
	switch audience {
	case enums.AudienceCustomer:
		return []enums.Role{enums.RoleCustomer, enums.RoleAdmin}
	case enums.AudienceSeller:
		return []enums.Role{enums.RoleSeller, enums.RoleAdmin}
	default:
		return []enums.Role{enums.RoleCustomer, enums.RoleSeller, enums.RoleAdmin}
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func notice(userID uuid.UUID, kind enums.NotificationType, title, message string, link *string) models.Notification {
	return models.Notification{
		UserID:  userID,
		Type:    kind,
		Title:   strings.TrimSpace(title),
		Message: strings.TrimSpace(message),
		Link:    link,
	}
}
