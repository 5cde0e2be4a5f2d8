package invoicing

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func testRequest() Request {
	return Request{
		OrderReference: "ORD-1001",
		Currency:       "USD",
		IssuedAt:       time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Buyer:          Party{ID: "buyer-1", Email: "ana@example.com"},
		Seller:         Party{ID: "seller-1"},
		Lines: []Line{{
			Description: "Mug",
			Quantity:    2,
			UnitPrice:   decimal.RequireFromString("10.00"),
			TaxRate:     decimal.RequireFromString("18"),
			Net:         decimal.RequireFromString("20.00"),
			Tax:         decimal.RequireFromString("3.60"),
			Gross:       decimal.RequireFromString("23.60"),
		}},
		Subtotal: decimal.RequireFromString("20.00"),
		TaxTotal: decimal.RequireFromString("3.60"),
		Total:    decimal.RequireFromString("23.60"),
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient(config.InvoiceConfig{ServiceURL: "http://invoices.test/v1/", APIKey: "secret"}, WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestCreateSendsPayloadAndDecodesPDF(t *testing.T) {
	pdf := []byte("%PDF-1.7 test")
	var captured *http.Request
	var body map[string]any

	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		raw, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return jsonResponse(http.StatusCreated, `{"invoiceNumber":" INV-2026-0001 ","pdfBase64":"`+base64.StdEncoding.EncodeToString(pdf)+`"}`), nil
	})

	doc, err := client.Create(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if captured.URL.String() != "http://invoices.test/v1/invoices" {
		t.Fatalf("unexpected url %s", captured.URL)
	}
	if captured.Header.Get("Authorization") != "Bearer secret" {
		t.Fatalf("missing auth header")
	}
	if captured.Header.Get("Idempotency-Key") != "ORD-1001" {
		t.Fatalf("missing idempotency key")
	}
	lines := body["lines"].([]any)
	if len(lines) != 1 || lines[0].(map[string]any)["taxRate"] != "18" {
		t.Fatalf("unexpected lines %v", body["lines"])
	}
	if doc.InvoiceNumber != "INV-2026-0001" || string(doc.PDF) != string(pdf) {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestCreateDownloadsPDFURL(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		calls++
		if req.Method == http.MethodGet {
			if req.Header.Get("Authorization") != "Bearer secret" {
				t.Fatalf("pdf download on service host should be authorized")
			}
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("%PDF")), Header: http.Header{}}, nil
		}
		return jsonResponse(http.StatusOK, `{"invoiceNumber":"INV-9","pdfUrl":"http://invoices.test/v1/files/INV-9.pdf"}`), nil
	})

	doc, err := client.Create(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if calls != 2 || string(doc.PDF) != "%PDF" {
		t.Fatalf("unexpected calls=%d doc=%+v", calls, doc)
	}
}

func TestCreateMapsFailuresToDependency(t *testing.T) {
	cases := map[string]roundTripFunc{
		"server error": func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusBadGateway, `upstream down`), nil
		},
		"missing number": func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"pdfBase64":"JVBERg=="}`), nil
		},
		"missing pdf": func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"invoiceNumber":"INV-1"}`), nil
		},
		"bad json": func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{`), nil
		},
	}
	for name, rt := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newTestClient(t, rt).Create(context.Background(), testRequest())
			if pkgerrors.CodeOf(err) != pkgerrors.CodeDependency {
				t.Fatalf("expected dependency error, got %v", err)
			}
		})
	}
}

func TestCreateValidatesRequest(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	req := testRequest()
	req.Lines = nil
	if _, err := client.Create(context.Background(), req); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := NewClient(config.InvoiceConfig{}); err == nil {
		t.Fatal("expected error without service url")
	}
}
