package invoicing

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

const (
	responseBodyReadLimit int64 = 1024
	maxPDFBytes           int64 = 20 << 20
)

var (
	errServiceURLRequired = errors.New("invoice service url is required")
)

// Client talks to the external invoice service that assigns invoice numbers
// and renders PDFs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds the invoice service client.
func NewClient(cfg config.InvoiceConfig, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.ServiceURL), "/")
	if base == "" {
		return nil, errServiceURLRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	client := &Client{
		baseURL:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Party identifies the buyer or seller printed on the invoice.
type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Line is one computed invoice line. Amounts are already rounded.
type Line struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TaxRate     decimal.Decimal `json:"taxRate"`
	Net         decimal.Decimal `json:"net"`
	Tax         decimal.Decimal `json:"tax"`
	Gross       decimal.Decimal `json:"gross"`
}

// Request is the payload posted to the invoice service.
type Request struct {
	OrderReference string          `json:"orderReference"`
	Currency       string          `json:"currency"`
	IssuedAt       time.Time       `json:"issuedAt"`
	Buyer          Party           `json:"buyer"`
	Seller         Party           `json:"seller"`
	Lines          []Line          `json:"lines"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxTotal       decimal.Decimal `json:"taxTotal"`
	Total          decimal.Decimal `json:"total"`
}

// Document is the service's answer: the assigned number and the rendered PDF.
type Document struct {
	InvoiceNumber string
	PDF           []byte
}

// Create asks the service for an invoice number and PDF. The order reference
// doubles as the idempotency key so a retried call returns the same number.
func (c *Client) Create(ctx context.Context, req Request) (*Document, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "invoice service not configured")
	}
	if strings.TrimSpace(req.OrderReference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference is required")
	}
	if len(req.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice requires at least one line")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal invoice request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoices", bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build invoice request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.OrderReference)
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute invoice request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "invoice request failed")
	}

	var apiResp struct {
		InvoiceNumber string `json:"invoiceNumber"`
		PDFBase64     string `json:"pdfBase64"`
		PDFURL        string `json:"pdfUrl"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPDFBytes*2)).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode invoice response")
	}
	if strings.TrimSpace(apiResp.InvoiceNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "invoice service returned no invoice number")
	}

	doc := &Document{InvoiceNumber: strings.TrimSpace(apiResp.InvoiceNumber)}
	switch {
	case apiResp.PDFBase64 != "":
		pdf, err := base64.StdEncoding.DecodeString(apiResp.PDFBase64)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode invoice pdf")
		}
		doc.PDF = pdf
	case apiResp.PDFURL != "":
		pdf, err := c.download(ctx, apiResp.PDFURL)
		if err != nil {
			return nil, err
		}
		doc.PDF = pdf
	default:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "invoice service returned no pdf")
	}
	return doc, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build invoice pdf request")
	}
	if strings.HasPrefix(url, c.baseURL) {
		c.authorize(httpReq)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "download invoice pdf")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d", resp.StatusCode), "invoice pdf download failed")
	}
	pdf, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read invoice pdf")
	}
	if int64(len(pdf)) > maxPDFBytes {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "invoice pdf exceeds size limit")
	}
	return pdf, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
