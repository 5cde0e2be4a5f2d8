package invoices

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/invoicing"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/storage/gcs"
)

const (
	pdfContentType  = "application/pdf"
	generateLockTTL = 2 * time.Minute
	issuedStatus    = "issued"
)

type provider interface {
	Create(ctx context.Context, req invoicing.Request) (*invoicing.Document, error)
}

type profileLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

type locker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(name string) string
}

type ServiceParams struct {
	Repo     *Repository
	Orders   orders.Repository
	Profiles profileLookup
	Tx       db.TxRunner
	Provider provider
	Store    gcs.ObjectStore
	Signer   gcs.Signer
	Locker   locker
	Outbox   outbox.Emitter
	Metrics  *metrics.DomainMetrics
	Logger   *logger.Logger
	Invoice  config.InvoiceConfig
	GCS      config.GCSConfig
}

// Service generates invoices for paid orders and hands out download links.
type Service struct {
	repo        *Repository
	orders      orders.Repository
	profiles    profileLookup
	tx          db.TxRunner
	provider    provider
	store       gcs.ObjectStore
	signer      gcs.Signer
	locker      locker
	outbox      outbox.Emitter
	metrics     *metrics.DomainMetrics
	logg        *logger.Logger
	taxRate     decimal.Decimal
	prefix      string
	bucket      string
	downloadTTL time.Duration
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("invoice repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Provider == nil:
		return nil, fmt.Errorf("invoice provider required")
	case params.Store == nil:
		return nil, fmt.Errorf("object store required")
	case params.Signer == nil:
		return nil, fmt.Errorf("url signer required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	bucket := params.GCS.InvoiceBucketName()
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("invoice bucket required")
	}
	prefix := strings.Trim(strings.TrimSpace(params.Invoice.StoragePath), "/")
	if prefix == "" {
		prefix = "invoices"
	}
	ttl := params.GCS.ShortURLExpiry
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		repo:        params.Repo,
		orders:      params.Orders,
		profiles:    params.Profiles,
		tx:          params.Tx,
		provider:    params.Provider,
		store:       params.Store,
		signer:      params.Signer,
		locker:      params.Locker,
		outbox:      params.Outbox,
		metrics:     params.Metrics,
		logg:        params.Logger,
		taxRate:     ParseTaxRate(params.Invoice.DefaultTax),
		prefix:      prefix,
		bucket:      bucket,
		downloadTTL: ttl,
		now:         time.Now,
	}, nil
}

// GenerateResult wraps the invoice and whether it existed before the call.
type GenerateResult struct {
	Invoice          *models.Invoice `json:"invoice"`
	AlreadyGenerated bool            `json:"alreadyGenerated"`
}

// Generate creates the invoice for a paid, shipped or delivered order. Calling
// it again for the same order returns the stored invoice instead of creating
// a second one.
func (s *Service) Generate(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*GenerateResult, error) {
	order, err := s.orders.FindWithItems(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !actor.IsAdmin() && order.SellerID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller or an admin can invoice this order")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"order_id": order.ID.String(), "order_number": order.OrderNumber})

	if res, err := s.alreadyGenerated(ctx, order.ID); res != nil || err != nil {
		return res, err
	}
	if !invoiceable(order.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only paid orders can be invoiced").
			WithDetails(map[string]any{"status": order.Status})
	}

	release, err := s.lock(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if res, err := s.alreadyGenerated(ctx, order.ID); res != nil || err != nil {
		return res, err
	}

	if len(order.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no items to invoice")
	}

	lines, totals := BuildLines(order.Items, s.taxRate)
	issuedAt := s.now().UTC()
	doc, err := s.provider.Create(ctx, invoicing.Request{
		OrderReference: order.OrderNumber,
		Currency:       order.Currency,
		IssuedAt:       issuedAt,
		Buyer:          s.party(ctx, order.BuyerID),
		Seller:         s.party(ctx, order.SellerID),
		Lines:          lines,
		Subtotal:       totals.Subtotal,
		TaxTotal:       totals.TaxTotal,
		Total:          totals.Total,
	})
	if err != nil {
		s.markFailed(ctx, order.ID, err)
		return nil, pkgerrors.Ensure(err, pkgerrors.CodeDependency, "invoice service failed")
	}

	key := path.Join(s.prefix, order.OrderNumber, doc.InvoiceNumber+".pdf")
	if err := s.store.Upload(ctx, s.bucket, key, pdfContentType, bytes.NewReader(doc.PDF)); err != nil {
		s.markFailed(ctx, order.ID, err)
		return nil, pkgerrors.Ensure(err, pkgerrors.CodeDependency, "store invoice pdf")
	}

	encodedLines, err := json.Marshal(lines)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode invoice lines")
	}
	invoice := &models.Invoice{
		OrderID:       order.ID,
		InvoiceNumber: doc.InvoiceNumber,
		Status:        issuedStatus,
		Currency:      order.Currency,
		Subtotal:      totals.Subtotal,
		TaxTotal:      totals.TaxTotal,
		Total:         totals.Total,
		StorageKey:    key,
		Lines:         encodedLines,
		IssuedAt:      issuedAt,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, invoice); err != nil {
			return err
		}
		if err := s.orders.WithTx(tx).SetInvoice(ctx, order.ID, invoice.ID); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceGenerated,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   invoice.ID,
			Actor:         outbox.ActorFrom(actor),
			Data: payloads.InvoiceGeneratedEvent{
				InvoiceID:     invoice.ID,
				InvoiceNumber: invoice.InvoiceNumber,
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				BuyerID:       order.BuyerID,
				SellerID:      order.SellerID,
				Total:         invoice.Total,
				Currency:      invoice.Currency,
			},
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			existing, findErr := s.repo.FindByOrderID(ctx, order.ID)
			if findErr == nil {
				if existing.StorageKey != key {
					s.discard(ctx, key)
				}
				s.metrics.InvoiceOutcome("duplicate")
				return &GenerateResult{Invoice: existing, AlreadyGenerated: true}, nil
			}
		}
		s.metrics.InvoiceOutcome("error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist invoice")
	}

	s.metrics.InvoiceOutcome("generated")
	s.logg.Info(s.logg.WithField(ctx, "invoice_number", invoice.InvoiceNumber), "invoice generated")
	return &GenerateResult{Invoice: invoice}, nil
}

// DownloadLink is a short lived signed URL to the invoice PDF.
type DownloadLink struct {
	InvoiceID     uuid.UUID `json:"invoiceId"`
	InvoiceNumber string    `json:"invoiceNumber"`
	URL           string    `json:"url"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Download signs the stored PDF for the buyer, the seller or an admin.
func (s *Service) Download(ctx context.Context, actor auth.Actor, invoiceID uuid.UUID) (*DownloadLink, error) {
	invoice, err := s.repo.FindByID(ctx, invoiceID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice")
	}
	order, err := s.orders.FindByID(ctx, invoice.OrderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !orders.CanView(actor, order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "invoice belongs to another user")
	}

	url, err := s.signer.SignedReadURL(s.bucket, invoice.StorageKey, s.downloadTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign invoice url")
	}
	return &DownloadLink{
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		URL:           url,
		ExpiresAt:     s.now().UTC().Add(s.downloadTTL),
	}, nil
}

// alreadyGenerated returns the stored invoice for the order, or nil when
// there is none yet.
func (s *Service) alreadyGenerated(ctx context.Context, orderID uuid.UUID) (*GenerateResult, error) {
	invoice, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice")
	}
	s.metrics.InvoiceOutcome("duplicate")
	return &GenerateResult{Invoice: invoice, AlreadyGenerated: true}, nil
}

func invoiceable(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusPaid, enums.OrderStatusShipped, enums.OrderStatusDelivered:
		return true
	}
	return false
}

// lock serializes generation per order across API replicas. Redis outages
// fall back to the unique order_id constraint.
func (s *Service) lock(ctx context.Context, orderID uuid.UUID) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	key := s.locker.LockKey("invoice:generate:" + orderID.String())
	ok, err := s.locker.SetNX(ctx, key, "1", generateLockTTL)
	if err != nil {
		s.logg.Warn(ctx, "invoice lock unavailable")
		return noop, nil
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "invoice generation already in progress")
	}
	return func() {
		if err := s.locker.Del(context.WithoutCancel(ctx), key); err != nil {
			s.logg.Warn(ctx, "failed to release invoice lock")
		}
	}, nil
}

func (s *Service) party(ctx context.Context, id uuid.UUID) invoicing.Party {
	p := invoicing.Party{ID: id.String()}
	if s.profiles == nil {
		return p
	}
	profile, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		if !db.IsNotFound(err) {
			s.logg.Warn(s.logg.WithField(ctx, "profile_id", id.String()), "invoice party lookup failed")
		}
		return p
	}
	p.Name = profile.FullName
	p.Email = profile.Email
	return p
}

func (s *Service) markFailed(ctx context.Context, orderID uuid.UUID, cause error) {
	s.metrics.InvoiceOutcome("failed")
	s.logg.Error(ctx, "invoice generation failed", cause)
	if err := s.orders.SetInvoiceStatus(context.WithoutCancel(ctx), orderID, enums.InvoiceStatusFailed); err != nil {
		s.logg.Error(ctx, "failed to mark invoice status", err)
	}
}

func (s *Service) discard(ctx context.Context, key string) {
	if err := s.store.DeleteObject(context.WithoutCancel(ctx), s.bucket, key); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "storage_key", key), "failed to remove orphaned invoice pdf")
	}
}
