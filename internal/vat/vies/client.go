// Package vies implements the EU VAT registry lookup (VIES checkVat service).
package vies

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	vatdomain "github.com/smallbiznis/billfold/internal/vat/domain"
	"go.uber.org/zap"
)

const defaultEndpoint = "https://ec.europa.eu/taxation_customs/vies/services/checkVatService"

// Fault strings VIES uses when a member state's backend is down. These are
// deferrable, not terminal.
var unavailableFaults = map[string]struct{}{
	"SERVICE_UNAVAILABLE": {},
	"MS_UNAVAILABLE":      {},
	"TIMEOUT":             {},
	"SERVER_BUSY":         {},
	"GLOBAL_MAX_CONCURRENT_REQ": {},
	"MS_MAX_CONCURRENT_REQ":     {},
}

type Client struct {
	http     *retryablehttp.Client
	endpoint string
	log      *zap.Logger
}

func NewClient(log *zap.Logger) vatdomain.RegistryLookup {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.HTTPClient.Timeout = 15 * time.Second
	client.Logger = nil

	return &Client{
		http:     client,
		endpoint: defaultEndpoint,
		log:      log.Named("vat.vies"),
	}
}

func (c *Client) Lookup(ctx context.Context, vatNumber, requesterVATNumber string) (vatdomain.RegistryInfo, error) {
	country, number, err := splitVATNumber(vatNumber)
	if err != nil {
		return vatdomain.RegistryInfo{}, err
	}

	envelope := buildEnvelope(country, number, requesterVATNumber)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBufferString(envelope))
	if err != nil {
		return vatdomain.RegistryInfo{}, err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return vatdomain.RegistryInfo{}, fmt.Errorf("%w: %v", vatdomain.ErrRegistryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return vatdomain.RegistryInfo{}, fmt.Errorf("%w: status %d", vatdomain.ErrRegistryUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return vatdomain.RegistryInfo{}, fmt.Errorf("%w: %v", vatdomain.ErrRegistryUnavailable, err)
	}

	return parseResponse(body)
}

func splitVATNumber(vatNumber string) (country, number string, err error) {
	vatNumber = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(vatNumber), " ", ""))
	if len(vatNumber) < 3 {
		return "", "", vatdomain.ErrInvalidVATNumber
	}
	return vatNumber[:2], vatNumber[2:], nil
}

func buildEnvelope(country, number, requester string) string {
	var b strings.Builder
	b.WriteString(`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:urn="urn:ec.europa.eu:taxud:vies:services:checkVat:types">`)
	b.WriteString(`<soapenv:Body>`)
	if requester != "" {
		reqCountry, reqNumber, err := splitVATNumber(requester)
		if err == nil {
			b.WriteString(`<urn:checkVatApprox>`)
			writeElem(&b, "urn:countryCode", country)
			writeElem(&b, "urn:vatNumber", number)
			writeElem(&b, "urn:requesterCountryCode", reqCountry)
			writeElem(&b, "urn:requesterVatNumber", reqNumber)
			b.WriteString(`</urn:checkVatApprox>`)
			b.WriteString(`</soapenv:Body></soapenv:Envelope>`)
			return b.String()
		}
	}
	b.WriteString(`<urn:checkVat>`)
	writeElem(&b, "urn:countryCode", country)
	writeElem(&b, "urn:vatNumber", number)
	b.WriteString(`</urn:checkVat>`)
	b.WriteString(`</soapenv:Body></soapenv:Envelope>`)
	return b.String()
}

func writeElem(b *strings.Builder, name, value string) {
	b.WriteString("<" + name + ">")
	_ = xml.EscapeText(b, []byte(value))
	b.WriteString("</" + name + ">")
}

// parseResponse scans the SOAP body by local element name so it handles
// both checkVatResponse and checkVatApproxResponse payloads.
func parseResponse(body []byte) (vatdomain.RegistryInfo, error) {
	fields := map[string]string{}

	decoder := xml.NewDecoder(bytes.NewReader(body))
	var current string
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return vatdomain.RegistryInfo{}, fmt.Errorf("%w: malformed response", vatdomain.ErrRegistryUnavailable)
		}
		switch t := token.(type) {
		case xml.StartElement:
			current = t.Name.Local
		case xml.CharData:
			if current != "" {
				fields[current] += string(t)
			}
		case xml.EndElement:
			current = ""
		}
	}

	if fault := strings.TrimSpace(fields["faultstring"]); fault != "" {
		if _, ok := unavailableFaults[fault]; ok {
			return vatdomain.RegistryInfo{}, fmt.Errorf("%w: %s", vatdomain.ErrRegistryUnavailable, fault)
		}
		return vatdomain.RegistryInfo{}, vatdomain.ErrInvalidVATNumber
	}

	if strings.TrimSpace(fields["valid"]) != "true" {
		return vatdomain.RegistryInfo{}, vatdomain.ErrInvalidVATNumber
	}

	name := strings.TrimSpace(fields["traderName"])
	if name == "" {
		name = strings.TrimSpace(fields["name"])
	}
	address := strings.TrimSpace(fields["traderAddress"])
	if address == "" {
		address = strings.TrimSpace(fields["address"])
	}

	return vatdomain.RegistryInfo{
		Name:              name,
		Address:           address,
		RequestIdentifier: strings.TrimSpace(fields["requestIdentifier"]),
	}, nil
}
