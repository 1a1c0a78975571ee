package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billfold/internal/config"
	invoicedomain "github.com/smallbiznis/billfold/internal/invoice/domain"
	"github.com/smallbiznis/billfold/internal/invoice/render"
	"github.com/smallbiznis/billfold/internal/observability"
	obsmetrics "github.com/smallbiznis/billfold/internal/observability/metrics"
	providerdomain "github.com/smallbiznis/billfold/internal/paymentprovider/domain"
	"github.com/smallbiznis/billfold/internal/webhook"
	"go.uber.org/zap"
)

const testToken = "tok_test_123"

type fakeService struct {
	invoices []invoicedomain.Invoice

	listReq      *invoicedomain.ListRequest
	reserved     *invoicedomain.Invoice
	reserveErr   error
	subscription *providerdomain.Subscription
	subscribeErr error
	lastOpts     providerdomain.SubscriptionOptions
}

func (f *fakeService) ApplyTax(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return nil, nil
}

func (f *fakeService) ProcessPayment(ctx context.Context, eventID, id string) (*invoicedomain.Invoice, error) {
	return nil, nil
}

func (f *fakeService) ProcessRefund(ctx context.Context, eventID, id string) (*invoicedomain.Invoice, error) {
	return nil, nil
}

func (f *fakeService) ProcessCreditNote(ctx context.Context, eventID, id string) (*invoicedomain.Invoice, error) {
	return nil, nil
}

func (f *fakeService) CreateSubscription(ctx context.Context, opts providerdomain.SubscriptionOptions) (*providerdomain.Subscription, error) {
	f.lastOpts = opts
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	return f.subscription, nil
}

func (f *fakeService) List(ctx context.Context, req invoicedomain.ListRequest) ([]invoicedomain.Invoice, error) {
	f.listReq = &req
	return f.invoices, nil
}

func (f *fakeService) GetByNumber(ctx context.Context, number string) (*invoicedomain.Invoice, error) {
	for i := range f.invoices {
		if f.invoices[i].Number != nil && *f.invoices[i].Number == number {
			return &f.invoices[i], nil
		}
	}
	return nil, invoicedomain.ErrNotFound
}

func (f *fakeService) Reserve(ctx context.Context) (*invoicedomain.Invoice, error) {
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	return f.reserved, nil
}

func finalizedInvoice(t *testing.T, number string) invoicedomain.Invoice {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return invoicedomain.Invoice{
		ID:                    node.Generate(),
		Number:                &number,
		Year:                  2026,
		SequenceNumber:        1,
		FinalizedAt:           &now,
		Subtotal:              1000,
		SubtotalAfterDiscount: 1000,
		VATAmount:             210,
		VATRate:               decimal.NewFromInt(21),
		Total:                 1210,
		Currency:              "eur",
		CustomerEmail:         "ada@example.com",
		CustomerName:          "Ada Lovelace",
		CustomerCountryCode:   "BE",
		CreatedAt:             now,
	}
}

func newTestServer(t *testing.T, svc invoicedomain.Service) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	httpMetrics, err := obsmetrics.NewHTTPMetrics()
	if err != nil {
		t.Fatalf("http metrics: %v", err)
	}
	engine := NewEngine(observability.Config{}, httpMetrics)

	cfg := config.Config{
		APIToken: testToken,
		Stripe:   config.StripeConfig{WebhookSecret: "whsec_test"},
		Billing: config.BillingConfig{
			SellerName:    "Billfold BV",
			SellerAddress: "1 Canal Street, Amsterdam",
		},
	}

	dispatcher := webhook.NewDispatcher(webhook.Params{
		Cfg:     cfg.Stripe,
		Service: svc,
		Log:     zap.NewNop(),
	})
	renderer := render.NewRenderer(render.Params{Cfg: cfg.Billing, Log: zap.NewNop()})

	return NewServer(ServerParams{
		Gin:        engine,
		Cfg:        cfg,
		InvoiceSvc: svc,
		Dispatcher: dispatcher,
		Renderer:   renderer,
	})
}

func doRequest(srv *Server, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeService{})
	w := doRequest(srv, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAPIRejectsMissingToken(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	w := doRequest(srv, http.MethodGet, "/api/invoices", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	w = doRequest(srv, http.MethodGet, "/api/invoices", "tok_wrong", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", w.Code)
	}
}

func TestListInvoices(t *testing.T) {
	svc := &fakeService{invoices: []invoicedomain.Invoice{finalizedInvoice(t, "2026.1")}}
	srv := newTestServer(t, svc)

	w := doRequest(srv, http.MethodGet, "/api/invoices?accounting_id=acc_9&finalized_after=2026-01-01T00:00:00Z", testToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Invoices []invoiceResponse `json:"invoices"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Invoices) != 1 {
		t.Fatalf("expected 1 invoice, got %d", len(resp.Invoices))
	}
	if got := resp.Invoices[0].Total; got != 1210 {
		t.Fatalf("expected total 1210, got %d", got)
	}
	if svc.listReq == nil || svc.listReq.AccountingID == nil || *svc.listReq.AccountingID != "acc_9" {
		t.Fatalf("accounting filter not forwarded: %+v", svc.listReq)
	}
	if svc.listReq.FinalizedAfter == nil {
		t.Fatal("finalized_after filter not forwarded")
	}
}

func TestListInvoicesRejectsBadTimestamp(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	w := doRequest(srv, http.MethodGet, "/api/invoices?finalized_before=yesterday", testToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetInvoiceByNumber(t *testing.T) {
	svc := &fakeService{invoices: []invoicedomain.Invoice{finalizedInvoice(t, "2026.1")}}
	srv := newTestServer(t, svc)

	w := doRequest(srv, http.MethodGet, "/api/invoices/2026.1", testToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp invoiceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Number == nil || *resp.Number != "2026.1" {
		t.Fatalf("unexpected number: %v", resp.Number)
	}

	w = doRequest(srv, http.MethodGet, "/api/invoices/2026.999", testToken, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetInvoicePDF(t *testing.T) {
	svc := &fakeService{invoices: []invoicedomain.Invoice{finalizedInvoice(t, "2026.1")}}
	srv := newTestServer(t, svc)

	w := doRequest(srv, http.MethodGet, "/api/invoices/2026.1/pdf", testToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", ct)
	}
	if !strings.HasPrefix(w.Body.String(), "%PDF") {
		t.Fatal("response is not a PDF document")
	}
}

func TestReserveNumber(t *testing.T) {
	reserved := finalizedInvoice(t, "2026.4")
	now := reserved.CreatedAt
	reserved.ReservedAt = &now
	svc := &fakeService{reserved: &reserved}
	srv := newTestServer(t, svc)

	w := doRequest(srv, http.MethodPost, "/api/invoices/reservations", testToken, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp invoiceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Number == nil || *resp.Number != "2026.4" {
		t.Fatalf("unexpected number: %v", resp.Number)
	}
	if resp.ReservedAt == nil {
		t.Fatal("expected reserved_at to be set")
	}
}

func TestReserveMapsSequenceExhaustion(t *testing.T) {
	svc := &fakeService{reserveErr: fmt.Errorf("allocate: %w", invoicedomain.ErrSequenceExhausted)}
	srv := newTestServer(t, svc)

	w := doRequest(srv, http.MethodPost, "/api/invoices/reservations", testToken, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestCreateSubscription(t *testing.T) {
	svc := &fakeService{subscription: &providerdomain.Subscription{
		ID:         "sub_1",
		CustomerID: "cus_1",
		PriceID:    "price_1",
	}}
	srv := newTestServer(t, svc)

	body := []byte(`{"customer_id":"cus_1","price_id":"price_1","trial_days":14}`)
	w := doRequest(srv, http.MethodPost, "/api/subscriptions", testToken, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if svc.lastOpts.TrialDays != 14 {
		t.Fatalf("expected trial days forwarded, got %d", svc.lastOpts.TrialDays)
	}

	var resp subscriptionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "sub_1" {
		t.Fatalf("unexpected subscription id %q", resp.ID)
	}
}

func TestCreateSubscriptionValidation(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	body := []byte(`{"price_id":"price_1"}`)
	w := doRequest(srv, http.MethodPost, "/api/subscriptions", testToken, body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error.Type != "validation_error" {
		t.Fatalf("unexpected error type %q", resp.Error.Type)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	w := doRequest(srv, http.MethodPost, "/webhooks/stripe", "", []byte(`{}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}
