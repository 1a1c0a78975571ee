package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/smallbiznis/billfold/internal/config"
	invoicedomain "github.com/smallbiznis/billfold/internal/invoice/domain"
	providerdomain "github.com/smallbiznis/billfold/internal/paymentprovider/domain"
	stripeapi "github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

const testSecret = "whsec_test_secret"

type call struct {
	method  string
	eventID string
	object  string
}

type fakeService struct {
	calls []call
	err   error
}

func (s *fakeService) ApplyTax(_ context.Context, id string) (*invoicedomain.Invoice, error) {
	s.calls = append(s.calls, call{method: "ApplyTax", object: id})
	return nil, s.err
}

func (s *fakeService) ProcessPayment(_ context.Context, eventID, id string) (*invoicedomain.Invoice, error) {
	s.calls = append(s.calls, call{method: "ProcessPayment", eventID: eventID, object: id})
	return nil, s.err
}

func (s *fakeService) ProcessRefund(_ context.Context, eventID, id string) (*invoicedomain.Invoice, error) {
	s.calls = append(s.calls, call{method: "ProcessRefund", eventID: eventID, object: id})
	return nil, s.err
}

func (s *fakeService) ProcessCreditNote(_ context.Context, eventID, id string) (*invoicedomain.Invoice, error) {
	s.calls = append(s.calls, call{method: "ProcessCreditNote", eventID: eventID, object: id})
	return nil, s.err
}

func (s *fakeService) CreateSubscription(_ context.Context, _ providerdomain.SubscriptionOptions) (*providerdomain.Subscription, error) {
	return nil, s.err
}

func (s *fakeService) List(_ context.Context, _ invoicedomain.ListRequest) ([]invoicedomain.Invoice, error) {
	return nil, nil
}

func (s *fakeService) GetByNumber(_ context.Context, _ string) (*invoicedomain.Invoice, error) {
	return nil, invoicedomain.ErrNotFound
}

func (s *fakeService) Reserve(_ context.Context) (*invoicedomain.Invoice, error) {
	return nil, nil
}

func newDispatcher(svc *fakeService) *Dispatcher {
	return NewDispatcher(Params{
		Cfg:     config.StripeConfig{WebhookSecret: testSecret},
		Service: svc,
		Log:     zap.NewNop(),
	})
}

func sign(t *testing.T, payload []byte) string {
	t.Helper()

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(eventID, eventType, objectJSON string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"type":%q,"api_version":%q,"data":{"object":%s}}`,
		eventID, eventType, stripeapi.APIVersion, objectJSON,
	))
}

func TestHandleInvoiceCreated(t *testing.T) {
	svc := &fakeService{}
	d := newDispatcher(svc)

	payload := eventPayload("evt_1", "invoice.created", `{"id":"in_1"}`)
	if err := d.Handle(context.Background(), payload, sign(t, payload)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(svc.calls) != 1 || svc.calls[0].method != "ApplyTax" || svc.calls[0].object != "in_1" {
		t.Fatalf("unexpected calls: %+v", svc.calls)
	}
}

func TestHandlePaymentSucceeded(t *testing.T) {
	svc := &fakeService{}
	d := newDispatcher(svc)

	payload := eventPayload("evt_2", "invoice.payment_succeeded", `{"id":"in_1"}`)
	if err := d.Handle(context.Background(), payload, sign(t, payload)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got := svc.calls[0]
	if got.method != "ProcessPayment" || got.eventID != "evt_2" || got.object != "in_1" {
		t.Fatalf("unexpected call: %+v", got)
	}
}

func TestHandleChargeRefunded(t *testing.T) {
	svc := &fakeService{}
	d := newDispatcher(svc)

	payload := eventPayload("evt_3", "charge.refunded", `{"id":"ch_1","invoice":"in_1"}`)
	if err := d.Handle(context.Background(), payload, sign(t, payload)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got := svc.calls[0]
	if got.method != "ProcessRefund" || got.eventID != "evt_3" || got.object != "in_1" {
		t.Fatalf("unexpected call: %+v", got)
	}
}

func TestHandleChargeRefundedWithoutInvoice(t *testing.T) {
	svc := &fakeService{}
	d := newDispatcher(svc)

	payload := eventPayload("evt_3", "charge.refunded", `{"id":"ch_1"}`)
	if err := d.Handle(context.Background(), payload, sign(t, payload)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(svc.calls) != 0 {
		t.Fatalf("one-off charge refund must not reach the service: %+v", svc.calls)
	}
}

func TestHandleCreditNoteCreated(t *testing.T) {
	svc := &fakeService{}
	d := newDispatcher(svc)

	payload := eventPayload("evt_4", "credit_note.created", `{"id":"cn_1","invoice":"in_1"}`)
	if err := d.Handle(context.Background(), payload, sign(t, payload)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got := svc.calls[0]
	if got.method != "ProcessCreditNote" || got.eventID != "evt_4" || got.object != "cn_1" {
		t.Fatalf("unexpected call: %+v", got)
	}
}

func TestHandleIgnoresUnknownEventTypes(t *testing.T) {
	svc := &fakeService{}
	d := newDispatcher(svc)

	payload := eventPayload("evt_5", "customer.updated", `{"id":"cus_1"}`)
	if err := d.Handle(context.Background(), payload, sign(t, payload)); err != nil {
		t.Fatalf("unknown event type must be acknowledged: %v", err)
	}
	if len(svc.calls) != 0 {
		t.Fatalf("unknown event type must not reach the service: %+v", svc.calls)
	}
}

func TestHandleRejectsBadSignature(t *testing.T) {
	svc := &fakeService{}
	d := newDispatcher(svc)

	payload := eventPayload("evt_6", "invoice.created", `{"id":"in_1"}`)
	err := d.Handle(context.Background(), payload, "t=1,v1=deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if len(svc.calls) != 0 {
		t.Fatalf("forged delivery must not reach the service: %+v", svc.calls)
	}
}

func TestHandlePropagatesServiceErrors(t *testing.T) {
	svc := &fakeService{err: invoicedomain.ErrOrphanRefund}
	d := newDispatcher(svc)

	payload := eventPayload("evt_7", "charge.refunded", `{"id":"ch_1","invoice":"in_zzz"}`)
	err := d.Handle(context.Background(), payload, sign(t, payload))
	if !errors.Is(err, invoicedomain.ErrOrphanRefund) {
		t.Fatalf("expected orphan refund to surface for retry, got %v", err)
	}
}
