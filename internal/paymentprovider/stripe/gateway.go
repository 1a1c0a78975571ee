// Package stripe implements the payment provider gateway on the Stripe API.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billfold/internal/config"
	providerdomain "github.com/smallbiznis/billfold/internal/paymentprovider/domain"
	stripeapi "github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

// Metadata key marking the tax line this system attached to an invoice.
const vatLineMetadataKey = "billfold_vat"

type Gateway struct {
	client *stripeapi.Client
	log    *zap.Logger
}

func NewGateway(cfg config.StripeConfig, log *zap.Logger) providerdomain.Gateway {
	return &Gateway{
		client: stripeapi.NewClient(cfg.SecretKey, nil),
		log:    log.Named("provider.stripe"),
	}
}

func (g *Gateway) RetrieveInvoice(ctx context.Context, id string) (*providerdomain.Invoice, error) {
	inv, err := g.client.V1Invoices.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, mapError(err)
	}
	return mapInvoice(inv), nil
}

func (g *Gateway) LatestInvoice(ctx context.Context, customerID string) (*providerdomain.Invoice, error) {
	params := &stripeapi.InvoiceListParams{
		Customer: stripeapi.String(customerID),
	}
	params.Limit = stripeapi.Int64(1)

	iter := g.client.V1Invoices.List(ctx, params)
	for inv, err := range iter {
		if err != nil {
			return nil, mapError(err)
		}
		return mapInvoice(inv), nil
	}
	return nil, providerdomain.ErrNotFound
}

func (g *Gateway) RetrieveCharge(ctx context.Context, id string) (*providerdomain.Charge, error) {
	ch, err := g.client.V1Charges.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, mapError(err)
	}

	out := &providerdomain.Charge{ID: ch.ID}
	if ch.PaymentMethodDetails != nil && ch.PaymentMethodDetails.Card != nil {
		card := ch.PaymentMethodDetails.Card
		out.CardBrand = string(card.Brand)
		out.CardLast4 = card.Last4
		out.CardCountry = card.Country
	}
	return out, nil
}

func (g *Gateway) RetrieveCustomer(ctx context.Context, id string) (*providerdomain.Customer, error) {
	cust, err := g.client.V1Customers.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, mapError(err)
	}
	return mapCustomer(cust), nil
}

func (g *Gateway) RetrieveCreditNote(ctx context.Context, id string) (*providerdomain.CreditNote, error) {
	cn, err := g.client.V1CreditNotes.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, mapError(err)
	}

	out := &providerdomain.CreditNote{
		ID:       cn.ID,
		Total:    cn.Total,
		Currency: string(cn.Currency),
	}
	if cn.Invoice != nil {
		out.InvoiceID = cn.Invoice.ID
	}
	if cn.Lines != nil {
		for _, line := range cn.Lines.Data {
			out.Lines = append(out.Lines, providerdomain.Line{
				ID:          line.ID,
				Amount:      line.Amount,
				Description: line.Description,
			})
		}
	}
	return out, nil
}

func (g *Gateway) RetrievePrice(ctx context.Context, id string) (*providerdomain.Price, error) {
	price, err := g.client.V1Prices.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, mapError(err)
	}

	out := &providerdomain.Price{
		ID:       price.ID,
		Amount:   price.UnitAmount,
		Currency: string(price.Currency),
	}
	if price.Recurring != nil {
		out.Interval = string(price.Recurring.Interval)
	}
	return out, nil
}

func (g *Gateway) AddVATLine(ctx context.Context, customerID, invoiceID string, amount int64, rate decimal.Decimal, currency string) error {
	params := &stripeapi.InvoiceItemCreateParams{
		Customer:    stripeapi.String(customerID),
		Amount:      stripeapi.Int64(amount),
		Currency:    stripeapi.String(strings.ToLower(currency)),
		Description: stripeapi.String(fmt.Sprintf("VAT (%s%%)", rate.String())),
		Metadata: map[string]string{
			vatLineMetadataKey: "true",
			"vat_rate":         rate.String(),
		},
	}
	if invoiceID != "" {
		params.Invoice = stripeapi.String(invoiceID)
	}

	if _, err := g.client.V1InvoiceItems.Create(ctx, params); err != nil {
		return mapError(err)
	}
	return nil
}

func (g *Gateway) CreateSubscription(ctx context.Context, opts providerdomain.SubscriptionOptions) (*providerdomain.Subscription, error) {
	params := &stripeapi.SubscriptionCreateParams{
		Customer: stripeapi.String(opts.CustomerID),
		Items: []*stripeapi.SubscriptionCreateItemParams{
			{Price: stripeapi.String(opts.PriceID)},
		},
	}
	if opts.TrialDays > 0 {
		params.TrialPeriodDays = stripeapi.Int64(opts.TrialDays)
	}

	sub, err := g.client.V1Subscriptions.Create(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}

	out := &providerdomain.Subscription{ID: sub.ID, PriceID: opts.PriceID}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	return out, nil
}

func mapInvoice(inv *stripeapi.Invoice) *providerdomain.Invoice {
	out := &providerdomain.Invoice{
		ID:       inv.ID,
		Subtotal: inv.Subtotal,
		Total:    inv.Total,
		Currency: string(inv.Currency),
		Paid:     inv.Status == stripeapi.InvoiceStatusPaid,
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
		out.SubscriptionID = inv.Parent.SubscriptionDetails.Subscription.ID
	}
	if inv.Payments != nil {
		for _, payment := range inv.Payments.Data {
			if payment.Payment != nil && payment.Payment.Charge != nil {
				out.ChargeID = payment.Payment.Charge.ID
				break
			}
		}
	}
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			out.Lines = append(out.Lines, providerdomain.Line{
				ID:          line.ID,
				Amount:      line.Amount,
				Currency:    string(line.Currency),
				Description: line.Description,
				VAT:         line.Metadata[vatLineMetadataKey] == "true",
			})
			if out.Interval == "" && line.Period != nil {
				out.Interval = intervalFromPeriod(line.Period.Start, line.Period.End)
			}
		}
	}
	for _, discount := range inv.Discounts {
		if discount == nil || discount.Coupon == nil {
			continue
		}
		coupon := discount.Coupon
		out.Coupon = &providerdomain.Coupon{
			ID:         coupon.ID,
			PercentOff: decimal.NewFromFloat(coupon.PercentOff),
			AmountOff:  coupon.AmountOff,
			Currency:   string(coupon.Currency),
		}
		break
	}
	return out
}

func mapCustomer(cust *stripeapi.Customer) *providerdomain.Customer {
	meta := cust.Metadata
	out := &providerdomain.Customer{
		ID:            cust.ID,
		Email:         cust.Email,
		Name:          firstNonEmpty(meta["name"], cust.Name),
		CompanyName:   meta["company_name"],
		CountryCode:   strings.ToUpper(strings.TrimSpace(meta["country_code"])),
		Address:       meta["address"],
		VATNumber:     strings.TrimSpace(meta["vat_number"]),
		VATRegistered: meta["vat_registered"] == "true",
		AccountingID:  meta["accounting_id"],
	}

	// Fall back to the VAT number's country prefix, then the billing
	// address, when the explicit metadata is absent.
	if out.CountryCode == "" && len(out.VATNumber) >= 2 {
		out.CountryCode = strings.ToUpper(out.VATNumber[:2])
	}
	if out.CountryCode == "" && cust.Address != nil {
		out.CountryCode = strings.ToUpper(cust.Address.Country)
	}
	return out
}

func mapError(err error) error {
	var stripeErr *stripeapi.Error
	if !errors.As(err, &stripeErr) {
		return err
	}
	switch {
	case stripeErr.HTTPStatusCode == 404:
		return fmt.Errorf("%w: %s", providerdomain.ErrNotFound, stripeErr.Code)
	case stripeErr.Type == stripeapi.ErrorTypeInvalidRequest:
		// Editing a settled invoice is the only invalid-request case the
		// lifecycle triggers; the provider rejects it once the invoice
		// is immutable.
		return fmt.Errorf("%w: %s", providerdomain.ErrInvoiceImmutable, stripeErr.Msg)
	default:
		return err
	}
}

// intervalFromPeriod classifies a service period by its length. The
// invoice object itself does not carry the plan interval.
func intervalFromPeriod(start, end int64) string {
	days := (end - start) / 86400
	switch {
	case days >= 360:
		return "year"
	case days >= 28:
		return "month"
	case days >= 6:
		return "week"
	case days >= 1:
		return "day"
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
