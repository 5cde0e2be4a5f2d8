package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/bazaar-backend/pkg/db/types"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/square"
)

// Bank statuses that mean the customer's bank approved the charge.
var successStatuses = map[string]struct{}{
	"success":   {},
	"approved":  {},
	"completed": {},
	"paid":      {},
}

var errAlreadyCompleted = errors.New("payment already completed")

// CompleteInput is the bank callback relayed by the storefront.
type CompleteInput struct {
	TransactionID string          `json:"transactionId" validate:"required,max=128"`
	PaymentID     string          `json:"paymentId" validate:"required,max=128"`
	Status        string          `json:"status" validate:"required,max=64"`
	BankResponse  json.RawMessage `json:"bankResponse" validate:"required"`
}

// CompleteResult reports the final payment state.
type CompleteResult struct {
	PaymentID        uuid.UUID           `json:"paymentId"`
	OrderID          uuid.UUID           `json:"orderId"`
	Status           enums.PaymentStatus `json:"status"`
	ReceiptURL       string              `json:"receiptUrl,omitempty"`
	AlreadyCompleted bool                `json:"alreadyCompleted"`
}

type gateway interface {
	CapturePayment(ctx context.Context, paymentID, orderReference string) (*square.PaymentResult, error)
}

type ServiceParams struct {
	Repo    *Repository
	Orders  orders.Repository
	Tx      db.TxRunner
	Gateway gateway
	Outbox  outbox.Emitter
	Metrics *metrics.DomainMetrics
	Logger  *logger.Logger
}

// Service completes payments reported by the bank callback.
type Service struct {
	repo    *Repository
	orders  orders.Repository
	tx      db.TxRunner
	gateway gateway
	outbox  outbox.Emitter
	metrics *metrics.DomainMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("payments repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:    params.Repo,
		orders:  params.Orders,
		tx:      params.Tx,
		gateway: params.Gateway,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     time.Now,
	}, nil
}

// Complete validates the callback, captures the payment with the gateway and
// marks the payment completed and the order paid in one transaction. A
// declined payment is persisted as failed before the error is returned.
func (s *Service) Complete(ctx context.Context, actor auth.Actor, input CompleteInput) (*CompleteResult, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	payment, err := s.repo.FindByTransactionID(ctx, strings.TrimSpace(input.TransactionID))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order.BuyerID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"payment_id": payment.ID.String(),
		"order_id":   order.ID.String(),
	})

	switch payment.Status {
	case enums.PaymentStatusCompleted:
		s.metrics.PaymentOutcome("duplicate")
		return s.result(payment, "", true), nil
	case enums.PaymentStatusFailed:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment already failed")
	}

	gatewayID := strings.TrimSpace(input.PaymentID)
	bankResponse := dbtypes.JSON(input.BankResponse)
	if err := s.ensureUnclaimed(ctx, payment.ID, gatewayID); err != nil {
		return nil, err
	}

	if !IsSuccessStatus(input.Status) {
		reason := "bank reported status " + strings.TrimSpace(input.Status)
		if err := s.fail(ctx, payment, order, gatewayID, bankResponse, reason); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment declined").
			WithDetails(map[string]any{"status": input.Status})
	}

	captured, err := s.gateway.CapturePayment(ctx, gatewayID, order.OrderNumber)
	if err != nil {
		if errors.Is(err, square.ErrPaymentDeclined) {
			if failErr := s.fail(ctx, payment, order, gatewayID, bankResponse, "gateway declined payment"); failErr != nil {
				return nil, failErr
			}
			return nil, err
		}
		s.metrics.PaymentOutcome("gateway_error")
		return nil, pkgerrors.Ensure(err, pkgerrors.CodeDependency, "capture payment")
	}
	if mismatch := amountMismatch(payment, captured); mismatch != "" {
		if err := s.fail(ctx, payment, order, gatewayID, bankResponse, mismatch); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment amount does not match order")
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Complete(ctx, payment.ID, gatewayID, bankResponse, now)
		if err != nil {
			return err
		}
		if !ok {
			return errAlreadyCompleted
		}
		if err := s.orders.WithTx(tx).MarkPaid(ctx, order.ID, now); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.ActorFrom(actor),
			Data: payloads.OrderPaidEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				PaymentID:   payment.ID,
				BuyerID:     order.BuyerID,
				SellerID:    order.SellerID,
				Amount:      payment.Amount,
				Currency:    payment.Currency,
			},
		})
	})
	if err != nil {
		if errors.Is(err, errAlreadyCompleted) {
			return s.reloadSettled(ctx, payment.ID)
		}
		if db.IsUniqueViolation(err, "") {
			s.metrics.PaymentOutcome("reused")
			return nil, gatewayPaymentReused()
		}
		s.metrics.PaymentOutcome("error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment completion")
	}

	s.metrics.PaymentOutcome("completed")
	s.logg.Info(ctx, "payment completed")
	payment.Status = enums.PaymentStatusCompleted
	return s.result(payment, captured.ReceiptURL, false), nil
}

// ensureUnclaimed rejects a gateway payment already recorded on a different
// payment row.
func (s *Service) ensureUnclaimed(ctx context.Context, paymentID uuid.UUID, gatewayID string) error {
	owner, err := s.repo.FindByGatewayPaymentID(ctx, gatewayID)
	switch {
	case db.IsNotFound(err):
		return nil
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check gateway payment")
	case owner.ID != paymentID:
		s.metrics.PaymentOutcome("reused")
		s.logg.Warn(s.logg.WithField(ctx, "gateway_payment_id", gatewayID), "gateway payment already used")
		return gatewayPaymentReused()
	}
	return nil
}

// reloadSettled handles a concurrent request that settled the payment first.
func (s *Service) reloadSettled(ctx context.Context, id uuid.UUID) (*CompleteResult, error) {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment")
	}
	if current.Status == enums.PaymentStatusCompleted {
		s.metrics.PaymentOutcome("duplicate")
		return s.result(current, "", true), nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment already failed")
}

func (s *Service) fail(ctx context.Context, payment *models.Payment, order *models.Order, gatewayID string, bankResponse dbtypes.JSON, reason string) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Fail(ctx, payment.ID, gatewayID, bankResponse, reason)
		if err != nil || !ok {
			return err
		}
		if err := s.orders.WithTx(tx).MarkPaymentFailed(ctx, order.ID); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentFailedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				PaymentID:   payment.ID,
				BuyerID:     order.BuyerID,
				Reason:      reason,
			},
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return gatewayPaymentReused()
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment failure")
	}
	s.metrics.PaymentOutcome("failed")
	s.logg.Warn(s.logg.WithField(ctx, "reason", reason), "payment failed")
	return nil
}

func gatewayPaymentReused() error {
	return pkgerrors.New(pkgerrors.CodeConflict, "gateway payment already settles another order")
}

func (s *Service) result(payment *models.Payment, receiptURL string, duplicate bool) *CompleteResult {
	return &CompleteResult{
		PaymentID:        payment.ID,
		OrderID:          payment.OrderID,
		Status:           payment.Status,
		ReceiptURL:       receiptURL,
		AlreadyCompleted: duplicate,
	}
}

// IsSuccessStatus reports whether a bank status string means approval.
func IsSuccessStatus(status string) bool {
	_, ok := successStatuses[strings.ToLower(strings.TrimSpace(status))]
	return ok
}

func validateInput(input CompleteInput) error {
	missing := []string{}
	if strings.TrimSpace(input.TransactionID) == "" {
		missing = append(missing, "transactionId")
	}
	if strings.TrimSpace(input.PaymentID) == "" {
		missing = append(missing, "paymentId")
	}
	if strings.TrimSpace(input.Status) == "" {
		missing = append(missing, "status")
	}
	trimmed := bytes.TrimSpace(input.BankResponse)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		missing = append(missing, "bankResponse")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "missing required fields").
			WithDetails(map[string]any{"fields": missing})
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return pkgerrors.New(pkgerrors.CodeValidation, "bankResponse must be a JSON object")
	}
	return nil
}

func amountMismatch(payment *models.Payment, captured *square.PaymentResult) string {
	if captured == nil {
		return ""
	}
	expected := payment.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if captured.AmountCents != expected {
		return fmt.Sprintf("captured %d cents, expected %d", captured.AmountCents, expected)
	}
	if captured.Currency != "" && !strings.EqualFold(captured.Currency, payment.Currency) {
		return fmt.Sprintf("captured currency %s, expected %s", captured.Currency, payment.Currency)
	}
	return ""
}
