package vies

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-retryablehttp"
	vatdomain "github.com/smallbiznis/billfold/internal/vat/domain"
	"go.uber.org/zap"
)

const validResponse = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
<soap:Body>
<checkVatResponse xmlns="urn:ec.europa.eu:taxud:vies:services:checkVat:types">
<countryCode>LU</countryCode>
<vatNumber>21416127</vatNumber>
<valid>true</valid>
<name>AMAZON EUROPE CORE S.A R.L.</name>
<address>38, AVENUE JOHN F. KENNEDY L-1855 LUXEMBOURG</address>
</checkVatResponse>
</soap:Body>
</soap:Envelope>`

const unavailableResponse = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
<soap:Body>
<soap:Fault>
<faultcode>soap:Server</faultcode>
<faultstring>MS_UNAVAILABLE</faultstring>
</soap:Fault>
</soap:Body>
</soap:Envelope>`

const invalidResponse = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
<soap:Body>
<checkVatResponse xmlns="urn:ec.europa.eu:taxud:vies:services:checkVat:types">
<valid>false</valid>
</checkVatResponse>
</soap:Body>
</soap:Envelope>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.Logger = nil

	return &Client{http: rc, endpoint: srv.URL, log: zap.NewNop()}
}

func TestLookupValid(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(validResponse))
	})

	info, err := client.Lookup(context.Background(), "LU21416127", "")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if info.Name != "AMAZON EUROPE CORE S.A R.L." {
		t.Fatalf("unexpected name %q", info.Name)
	}
	if info.Address == "" {
		t.Fatal("expected address")
	}
}

func TestLookupMemberStateDown(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(unavailableResponse))
	})

	_, err := client.Lookup(context.Background(), "LU21416127", "")
	if !errors.Is(err, vatdomain.ErrRegistryUnavailable) {
		t.Fatalf("expected ErrRegistryUnavailable, got %v", err)
	}
}

func TestLookupInvalidNumber(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(invalidResponse))
	})

	_, err := client.Lookup(context.Background(), "LU21416128", "")
	if !errors.Is(err, vatdomain.ErrInvalidVATNumber) {
		t.Fatalf("expected ErrInvalidVATNumber, got %v", err)
	}

	if _, err := client.Lookup(context.Background(), "LU", ""); !errors.Is(err, vatdomain.ErrInvalidVATNumber) {
		t.Fatalf("expected ErrInvalidVATNumber for short input, got %v", err)
	}
}

func TestLookupServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Lookup(context.Background(), "LU21416127", "BE0123456789")
	if !errors.Is(err, vatdomain.ErrRegistryUnavailable) {
		t.Fatalf("expected ErrRegistryUnavailable, got %v", err)
	}
}
