package square

import (
	"context"
	"errors"
	"strings"

	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// Square payment statuses.
const (
	StatusApproved  = "APPROVED"
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusCanceled  = "CANCELED"
	StatusFailed    = "FAILED"
)

var (
	// ErrPaymentDeclined marks a payment the gateway will never complete.
	ErrPaymentDeclined = errors.New("payment declined by gateway")
	// ErrReferenceMismatch marks a payment taken for some other order.
	ErrReferenceMismatch = errors.New("payment reference does not match order")
)

// PaymentResult is the gateway view of a payment after capture.
type PaymentResult struct {
	PaymentID   string
	Status      string
	AmountCents int64
	Currency    string
	ReceiptURL  string
	LocationID  string
	ReferenceID string
}

// CapturePayment loads the payment and completes it when it is still only
// approved. The payment's reference_id must equal orderReference, otherwise
// nothing is completed and ErrReferenceMismatch is returned. Already
// completed payments are returned as is. Canceled and failed payments return
// ErrPaymentDeclined alongside the result.
func (c *Client) CapturePayment(ctx context.Context, paymentID, orderReference string) (*PaymentResult, error) {
	if c == nil || c.payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}

	payment, err := c.getPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if c.locationID != "" && stringValue(payment.GetLocationID()) != "" && stringValue(payment.GetLocationID()) != c.locationID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment belongs to a different location")
	}
	if ref := strings.TrimSpace(stringValue(payment.GetReferenceID())); ref == "" || ref != strings.TrimSpace(orderReference) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, ErrReferenceMismatch, "payment was not taken for this order").
			WithDetails(map[string]any{"referenceId": ref})
	}

	switch status := stringValue(payment.GetStatus()); status {
	case StatusCompleted:
		return resultFromPayment(payment), nil
	case StatusApproved:
		completed, err := c.completePayment(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		result := resultFromPayment(completed)
		if result.Status != StatusCompleted {
			return result, pkgerrors.New(pkgerrors.CodeDependency, "payment was not completed by gateway").
				WithDetails(map[string]any{"status": result.Status})
		}
		return result, nil
	case StatusCanceled, StatusFailed:
		return resultFromPayment(payment), pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrPaymentDeclined, "payment was declined").
			WithDetails(map[string]any{"status": status})
	default:
		return resultFromPayment(payment), pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not ready to complete").
			WithDetails(map[string]any{"status": status})
	}
}

func (c *Client) getPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	payment, err := c.call(ctx, "get_payment", paymentID, func() (*sq.Payment, error) {
		resp, err := c.payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: paymentID})
		if err != nil {
			return nil, err
		}
		return resp.GetPayment(), nil
	})
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found at gateway")
	}
	return payment, nil
}

func (c *Client) completePayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	payment, err := c.call(ctx, "complete_payment", paymentID, func() (*sq.Payment, error) {
		resp, err := c.payments.Complete(ctx, &sq.CompletePaymentRequest{PaymentID: paymentID})
		if err != nil {
			return nil, err
		}
		return resp.GetPayment(), nil
	})
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway returned no payment")
	}
	return payment, nil
}

func resultFromPayment(p *sq.Payment) *PaymentResult {
	if p == nil {
		return &PaymentResult{}
	}
	out := &PaymentResult{
		PaymentID:   stringValue(p.GetID()),
		Status:      stringValue(p.GetStatus()),
		ReceiptURL:  stringValue(p.GetReceiptURL()),
		LocationID:  stringValue(p.GetLocationID()),
		ReferenceID: stringValue(p.GetReferenceID()),
	}
	if money := p.GetAmountMoney(); money != nil {
		if amount := money.GetAmount(); amount != nil {
			out.AmountCents = *amount
		}
		if currency := money.GetCurrency(); currency != nil {
			out.Currency = string(*currency)
		}
	}
	return out
}
