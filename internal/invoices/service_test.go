package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/profiles"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/invoicing"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
)

type fakeProvider struct {
	t        *testing.T
	requests []invoicing.Request
	err      error
	once     bool
}

func (f *fakeProvider) Create(_ context.Context, req invoicing.Request) (*invoicing.Document, error) {
	if f.once && len(f.requests) > 0 {
		f.t.Errorf("invoice provider called again for %s", req.OrderReference)
	}
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &invoicing.Document{InvoiceNumber: fmt.Sprintf("INV-%04d", len(f.requests)), PDF: []byte("%PDF-1.7")}, nil
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryStore) Upload(_ context.Context, bucket, object, _ string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+object] = data
	return nil
}

func (m *memoryStore) DeleteObject(_ context.Context, bucket, object string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+object)
	return nil
}

type stubSigner struct{}

func (stubSigner) SignedReadURL(bucket, object string, ttl time.Duration) (string, error) {
	return "https://storage.googleapis.com/" + bucket + "/" + object + "?ttl=" + ttl.String(), nil
}

type mapLocker struct {
	held      map[string]bool
	beforeSet func()
}

func (m *mapLocker) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if hook := m.beforeSet; hook != nil {
		m.beforeSet = nil
		hook()
	}
	if m.held[key] {
		return false, nil
	}
	m.held[key] = true
	return true, nil
}

func (m *mapLocker) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.held, k)
	}
	return nil
}

func (m *mapLocker) LockKey(name string) string { return "bz:lock:" + name }

type fixture struct {
	svc      *Service
	client   *db.Client
	provider *fakeProvider
	store    *memoryStore
	locker   *mapLocker
	order    models.Order
	seller   auth.Actor
	buyer    auth.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	buyer := dbtest.SeedProfile(t, client.DB(), enums.RoleCustomer)
	seller := dbtest.SeedProfile(t, client.DB(), enums.RoleSeller)
	five := "5"
	order := dbtest.SeedOrder(t, client.DB(), buyer.ID, seller.ID,
		dbtest.Item{Name: "mug", UnitPrice: "10.00", Quantity: 2},
		dbtest.Item{Name: "book", UnitPrice: "20.00", Quantity: 1, TaxRate: &five},
		dbtest.Item{Name: "pen", UnitPrice: "1.50", Quantity: 4},
	)
	markPaid(t, client, &order)

	f := &fixture{
		client:   client,
		provider: &fakeProvider{t: t},
		store:    &memoryStore{objects: map[string][]byte{}},
		locker:   &mapLocker{held: map[string]bool{}},
		order:    order,
		seller:   auth.Actor{UserID: seller.ID, Role: enums.RoleSeller},
		buyer:    auth.Actor{UserID: buyer.ID, Role: enums.RoleCustomer},
	}
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(client.DB()),
		Orders:   orders.NewRepository(client.DB()),
		Profiles: profiles.NewRepository(client.DB()),
		Tx:       client,
		Provider: f.provider,
		Store:    f.store,
		Signer:   stubSigner{},
		Locker:   f.locker,
		Outbox:   outbox.NewService(outbox.NewRepository(client.DB()), nil),
		Logger:   logger.New(logger.Options{ServiceName: "invoices-test"}),
		Invoice:  config.InvoiceConfig{DefaultTax: "18", StoragePath: "invoices"},
		GCS:      config.GCSConfig{BucketName: "bazaar-media", InvoiceBucket: "bazaar-invoices", ShortURLExpiry: time.Hour},
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func markPaid(t *testing.T, client *db.Client, order *models.Order) {
	t.Helper()
	require.NoError(t, client.DB().Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("status", enums.OrderStatusPaid).Error)
	order.Status = enums.OrderStatusPaid
}

func TestGenerateProducesOneLinePerItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Generate(ctx, f.seller, f.order.ID)
	require.NoError(t, err)
	assert.False(t, res.AlreadyGenerated)
	assert.Equal(t, "INV-0001", res.Invoice.InvoiceNumber)

	require.Len(t, f.provider.requests, 1)
	req := f.provider.requests[0]
	require.Len(t, req.Lines, 3)
	rates := map[string]string{}
	for _, line := range req.Lines {
		rates[line.Description] = line.TaxRate.String()
	}
	assert.Equal(t, map[string]string{"mug": "18", "book": "5", "pen": "18"}, rates)
	assert.Equal(t, "46", req.Subtotal.String())
	assert.Equal(t, "5.68", req.TaxTotal.String())
	assert.NotEmpty(t, req.Buyer.Email)

	var stored []invoicing.Line
	require.NoError(t, json.Unmarshal(res.Invoice.Lines, &stored))
	assert.Len(t, stored, 3)

	key := "bazaar-invoices/invoices/" + f.order.OrderNumber + "/INV-0001.pdf"
	assert.Equal(t, []byte("%PDF-1.7"), f.store.objects[key])

	var order models.Order
	require.NoError(t, f.client.DB().First(&order, "id = ?", f.order.ID).Error)
	assert.Equal(t, enums.InvoiceStatusGenerated, order.InvoiceStatus)
	require.NotNil(t, order.InvoiceID)
	assert.Equal(t, res.Invoice.ID, *order.InvoiceID)

	var events []models.OutboxEvent
	require.NoError(t, f.client.DB().Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventInvoiceGenerated, events[0].EventType)
	assert.Empty(t, f.locker.held)
}

func TestGenerateTwiceReturnsExisting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.Generate(ctx, f.seller, f.order.ID)
	require.NoError(t, err)

	second, err := f.svc.Generate(ctx, auth.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}, f.order.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyGenerated)
	assert.Equal(t, first.Invoice.ID, second.Invoice.ID)
	assert.Len(t, f.provider.requests, 1)

	var count int64
	require.NoError(t, f.client.DB().Model(&models.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGenerateChecksAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Generate(ctx, f.buyer, f.order.ID)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	_, err = f.svc.Generate(ctx, f.seller, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
	assert.Empty(t, f.provider.requests)
}

func TestGenerateRejectsWhileLocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.locker.held["bz:lock:invoice:generate:"+f.order.ID.String()] = true

	_, err := f.svc.Generate(ctx, f.seller, f.order.ID)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
	assert.Empty(t, f.provider.requests)
}

func TestGenerateRequiresSettledOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, status := range []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusPaymentFailed,
		enums.OrderStatusCanceled,
	} {
		order := dbtest.SeedOrder(t, f.client.DB(), f.buyer.UserID, f.seller.UserID,
			dbtest.Item{Name: "mug", UnitPrice: "10.00", Quantity: 1},
		)
		require.NoError(t, f.client.DB().Model(&models.Order{}).
			Where("id = ?", order.ID).
			Update("status", status).Error)

		_, err := f.svc.Generate(ctx, f.seller, order.ID)
		require.Error(t, err, status)
		assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err), status)
	}
	assert.Empty(t, f.provider.requests)
	assert.Empty(t, f.store.objects)

	for _, status := range []enums.OrderStatus{enums.OrderStatusShipped, enums.OrderStatusDelivered} {
		order := dbtest.SeedOrder(t, f.client.DB(), f.buyer.UserID, f.seller.UserID,
			dbtest.Item{Name: "mug", UnitPrice: "10.00", Quantity: 1},
		)
		require.NoError(t, f.client.DB().Model(&models.Order{}).
			Where("id = ?", order.ID).
			Update("status", status).Error)

		res, err := f.svc.Generate(ctx, f.seller, order.ID)
		require.NoError(t, err, status)
		assert.False(t, res.AlreadyGenerated)
	}
}

func TestGenerateRechecksAfterLocking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.provider.once = true

	var inner *GenerateResult
	f.locker.beforeSet = func() {
		res, err := f.svc.Generate(ctx, f.seller, f.order.ID)
		require.NoError(t, err)
		inner = res
	}

	outer, err := f.svc.Generate(ctx, f.seller, f.order.ID)
	require.NoError(t, err)
	require.NotNil(t, inner)
	assert.False(t, inner.AlreadyGenerated)
	assert.True(t, outer.AlreadyGenerated)
	assert.Equal(t, inner.Invoice.ID, outer.Invoice.ID)
	assert.Len(t, f.provider.requests, 1)
	assert.Empty(t, f.locker.held)
}

func TestProviderFailureMarksOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.provider.err = errors.New("connection refused")

	_, err := f.svc.Generate(ctx, f.seller, f.order.ID)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))

	var order models.Order
	require.NoError(t, f.client.DB().First(&order, "id = ?", f.order.ID).Error)
	assert.Equal(t, enums.InvoiceStatusFailed, order.InvoiceStatus)
	assert.Nil(t, order.InvoiceID)
	assert.Empty(t, f.store.objects)
}

func TestGenerateWithoutItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	empty := dbtest.SeedOrder(t, f.client.DB(), f.buyer.UserID, f.seller.UserID)
	markPaid(t, f.client, &empty)

	_, err := f.svc.Generate(ctx, f.seller, empty.ID)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}

func TestDownloadSignsForParties(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.svc.Generate(ctx, f.seller, f.order.ID)
	require.NoError(t, err)

	link, err := f.svc.Download(ctx, f.buyer, res.Invoice.ID)
	require.NoError(t, err)
	assert.Contains(t, link.URL, "bazaar-invoices/invoices/"+f.order.OrderNumber+"/INV-0001.pdf")
	assert.Contains(t, link.URL, "ttl=1h0m0s")

	_, err = f.svc.Download(ctx, auth.Actor{UserID: uuid.New(), Role: enums.RoleCustomer}, res.Invoice.ID)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	_, err = f.svc.Download(ctx, f.buyer, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}
