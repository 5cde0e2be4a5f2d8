package payments

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/square"
)

type fakeGateway struct {
	captureFn  func(ctx context.Context, paymentID string) (*square.PaymentResult, error)
	calls      int
	references []string
}

func (f *fakeGateway) CapturePayment(ctx context.Context, paymentID, orderReference string) (*square.PaymentResult, error) {
	f.calls++
	f.references = append(f.references, orderReference)
	return f.captureFn(ctx, paymentID)
}

type fixture struct {
	svc     *Service
	client  *db.Client
	gateway *fakeGateway
	order   models.Order
	payment models.Payment
	buyer   auth.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	buyer := auth.Actor{UserID: uuid.New(), Role: enums.RoleCustomer}
	order := dbtest.SeedOrder(t, client.DB(), buyer.UserID, uuid.New(),
		dbtest.Item{Name: "mug", UnitPrice: "10.00", Quantity: 2},
	)
	payment := models.Payment{
		OrderID:       order.ID,
		TransactionID: "txn-" + order.ID.String()[:8],
		Status:        enums.PaymentStatusPending,
		Amount:        order.Total,
		Currency:      order.Currency,
	}
	require.NoError(t, client.DB().Create(&payment).Error)

	gw := &fakeGateway{captureFn: func(_ context.Context, paymentID string) (*square.PaymentResult, error) {
		return &square.PaymentResult{
			PaymentID:   paymentID,
			Status:      square.StatusCompleted,
			AmountCents: order.Total.Mul(decimal.NewFromInt(100)).IntPart(),
			Currency:    "USD",
			ReceiptURL:  "https://squareup.test/receipt/1",
		}, nil
	}}

	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(client.DB()),
		Orders:  orders.NewRepository(client.DB()),
		Tx:      client,
		Gateway: gw,
		Outbox:  outbox.NewService(outbox.NewRepository(client.DB()), nil),
		Logger:  logger.New(logger.Options{ServiceName: "payments-test"}),
	})
	require.NoError(t, err)
	return &fixture{svc: svc, client: client, gateway: gw, order: order, payment: payment, buyer: buyer}
}

func (f *fixture) input(status string) CompleteInput {
	return CompleteInput{
		TransactionID: f.payment.TransactionID,
		PaymentID:     "sq-payment-1",
		Status:        status,
		BankResponse:  json.RawMessage(`{"authCode":"A1"}`),
	}
}

func (f *fixture) reload(t *testing.T) (models.Payment, models.Order) {
	t.Helper()
	var payment models.Payment
	require.NoError(t, f.client.DB().First(&payment, "id = ?", f.payment.ID).Error)
	var order models.Order
	require.NoError(t, f.client.DB().First(&order, "id = ?", f.order.ID).Error)
	return payment, order
}

func eventTypes(t *testing.T, client *db.Client) []enums.OutboxEventType {
	t.Helper()
	var events []models.OutboxEvent
	require.NoError(t, client.DB().Order("created_at ASC").Find(&events).Error)
	out := make([]enums.OutboxEventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}

func TestCompleteMarksOrderPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Complete(ctx, f.buyer, f.input("APPROVED"))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, res.Status)
	assert.False(t, res.AlreadyCompleted)
	assert.Equal(t, "https://squareup.test/receipt/1", res.ReceiptURL)

	payment, order := f.reload(t)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	require.NotNil(t, payment.GatewayPaymentID)
	assert.Equal(t, "sq-payment-1", *payment.GatewayPaymentID)
	assert.JSONEq(t, `{"authCode":"A1"}`, string(payment.BankResponse))
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	assert.NotNil(t, order.PaidAt)
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderPaid}, eventTypes(t, f.client))
	assert.Equal(t, []string{f.order.OrderNumber}, f.gateway.references)
}

func TestCompleteTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Complete(ctx, f.buyer, f.input("success"))
	require.NoError(t, err)

	res, err := f.svc.Complete(ctx, f.buyer, f.input("success"))
	require.NoError(t, err)
	assert.True(t, res.AlreadyCompleted)
	assert.Equal(t, 1, f.gateway.calls)
	assert.Len(t, eventTypes(t, f.client), 1)
}

func TestCompleteValidatesInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Complete(ctx, f.buyer, CompleteInput{Status: "success"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"transactionId", "paymentId", "bankResponse"}, details["fields"])

	in := f.input("success")
	in.BankResponse = json.RawMessage(`[1,2]`)
	_, err = f.svc.Complete(ctx, f.buyer, in)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	in = f.input("success")
	in.TransactionID = "missing"
	_, err = f.svc.Complete(ctx, f.buyer, in)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	_, err = f.svc.Complete(ctx, auth.Actor{UserID: uuid.New(), Role: enums.RoleCustomer}, f.input("success"))
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))
	assert.Zero(t, f.gateway.calls)
}

func TestBankDeclineMarksFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Complete(ctx, f.buyer, f.input("DECLINED"))
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
	assert.Zero(t, f.gateway.calls)

	payment, order := f.reload(t)
	assert.Equal(t, enums.PaymentStatusFailed, payment.Status)
	require.NotNil(t, payment.FailureReason)
	assert.Contains(t, *payment.FailureReason, "DECLINED")
	assert.Equal(t, enums.OrderStatusPaymentFailed, order.Status)
	assert.Equal(t, []enums.OutboxEventType{enums.EventPaymentFailed}, eventTypes(t, f.client))

	_, err = f.svc.Complete(ctx, f.buyer, f.input("success"))
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}

func TestGatewayDeclineMarksFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.captureFn = func(context.Context, string) (*square.PaymentResult, error) {
		return &square.PaymentResult{Status: square.StatusFailed},
			pkgerrors.Wrap(pkgerrors.CodeStateConflict, square.ErrPaymentDeclined, "payment was declined")
	}

	_, err := f.svc.Complete(ctx, f.buyer, f.input("success"))
	assert.ErrorIs(t, err, square.ErrPaymentDeclined)

	payment, order := f.reload(t)
	assert.Equal(t, enums.PaymentStatusFailed, payment.Status)
	assert.Equal(t, enums.OrderStatusPaymentFailed, order.Status)
}

func TestGatewayOutageLeavesPaymentPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.captureFn = func(context.Context, string) (*square.PaymentResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square unavailable")
	}

	_, err := f.svc.Complete(ctx, f.buyer, f.input("success"))
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))

	payment, order := f.reload(t)
	assert.Equal(t, enums.PaymentStatusPending, payment.Status)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Empty(t, eventTypes(t, f.client))
}

func TestAmountMismatchFailsPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.captureFn = func(_ context.Context, id string) (*square.PaymentResult, error) {
		return &square.PaymentResult{PaymentID: id, Status: square.StatusCompleted, AmountCents: 1, Currency: "USD"}, nil
	}

	_, err := f.svc.Complete(ctx, f.buyer, f.input("success"))
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
	payment, _ := f.reload(t)
	assert.Equal(t, enums.PaymentStatusFailed, payment.Status)
}

func TestCompleteRejectsGatewayPaymentUsedByAnotherOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Complete(ctx, f.buyer, f.input("success"))
	require.NoError(t, err)

	second := dbtest.SeedOrder(t, f.client.DB(), f.buyer.UserID, f.order.SellerID,
		dbtest.Item{Name: "mug", UnitPrice: "10.00", Quantity: 2},
	)
	require.True(t, second.Total.Equal(f.order.Total))
	secondPayment := models.Payment{
		OrderID:       second.ID,
		TransactionID: "txn-second",
		Status:        enums.PaymentStatusPending,
		Amount:        second.Total,
		Currency:      second.Currency,
	}
	require.NoError(t, f.client.DB().Create(&secondPayment).Error)

	in := f.input("success")
	in.TransactionID = secondPayment.TransactionID
	_, err = f.svc.Complete(ctx, f.buyer, in)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
	assert.Equal(t, 1, f.gateway.calls)

	var stored models.Payment
	require.NoError(t, f.client.DB().First(&stored, "id = ?", secondPayment.ID).Error)
	assert.Equal(t, enums.PaymentStatusPending, stored.Status)
	assert.Nil(t, stored.GatewayPaymentID)
	var order models.Order
	require.NoError(t, f.client.DB().First(&order, "id = ?", second.ID).Error)
	assert.Equal(t, enums.OrderStatusPending, order.Status)

	in.Status = "DECLINED"
	_, err = f.svc.Complete(ctx, f.buyer, in)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderPaid}, eventTypes(t, f.client))
}

func TestForeignReferenceLeavesPaymentPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.captureFn = func(context.Context, string) (*square.PaymentResult, error) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, square.ErrReferenceMismatch, "payment was not taken for this order")
	}

	_, err := f.svc.Complete(ctx, f.buyer, f.input("success"))
	assert.ErrorIs(t, err, square.ErrReferenceMismatch)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))

	payment, order := f.reload(t)
	assert.Equal(t, enums.PaymentStatusPending, payment.Status)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Empty(t, eventTypes(t, f.client))
}

func TestIsSuccessStatus(t *testing.T) {
	for _, s := range []string{"success", "APPROVED", " Completed ", "paid"} {
		assert.True(t, IsSuccessStatus(s), s)
	}
	for _, s := range []string{"", "declined", "pending", "error"} {
		assert.False(t, IsSuccessStatus(s), s)
	}
}
