// Package render produces the PDF representation of a finalized document.
package render

import (
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	marotoconfig "github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billfold/internal/config"
	invoicedomain "github.com/smallbiznis/billfold/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg config.BillingConfig
	Log *zap.Logger
}

type Renderer struct {
	cfg config.BillingConfig
	log *zap.Logger
}

func NewRenderer(p Params) *Renderer {
	return &Renderer{cfg: p.Cfg, log: p.Log.Named("invoice.render")}
}

// Render lays out one finalized invoice or credit note. Reserved
// placeholders carry no financial content and cannot be rendered.
func (r *Renderer) Render(inv *invoicedomain.Invoice) ([]byte, error) {
	if !inv.Finalized() {
		return nil, fmt.Errorf("cannot render a draft document")
	}
	if inv.Reserved() {
		return nil, fmt.Errorf("cannot render a reserved placeholder")
	}

	cfg := marotoconfig.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	title := "Invoice"
	if inv.CreditNote {
		title = "Credit note"
	}
	m.AddRow(12,
		text.NewCol(12, title, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	meta := []string{
		"Number: " + deref(inv.Number),
		"Date of issue: " + inv.FinalizedAt.Format("2006-01-02"),
	}
	if inv.CreditNote && inv.ReferenceNumber != nil {
		meta = append(meta, "Credit for invoice: "+*inv.ReferenceNumber)
	}
	metaCol := col.New(6)
	for i, line := range meta {
		metaCol.Add(text.New(line, props.Text{Top: float64(i * 4)}))
	}
	m.AddRow(18, metaCol, col.New(6))

	m.AddRow(36,
		addressCol("Seller",
			r.cfg.SellerName,
			r.cfg.SellerAddress,
			vatLabel(r.cfg.SellerVATNumber),
			r.cfg.SellerEmail,
		),
		addressCol("Bill to",
			customerDisplayName(inv),
			inv.CustomerAddress,
			vatLabel(inv.CustomerVATNumber),
			inv.CustomerEmail,
		),
		registryCol(inv),
	)

	m.AddRow(8,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		text.NewCol(8, lineDescription(inv), props.Text{Size: 9}),
		text.NewCol(4, money(inv.Subtotal, inv.Currency), props.Text{Size: 9, Align: align.Right}),
	)

	totals := []struct {
		label  string
		amount int64
		bold   bool
	}{
		{"Subtotal", inv.Subtotal, false},
		{"Discount", -inv.DiscountAmount, false},
		{"Subtotal after discount", inv.SubtotalAfterDiscount, false},
		{fmt.Sprintf("VAT (%s%%)", inv.VATRate.String()), inv.VATAmount, false},
		{"Total", inv.Total, true},
	}
	for _, row := range totals {
		if row.label == "Discount" && inv.DiscountAmount == 0 {
			continue
		}
		style := fontstyle.Normal
		if row.bold {
			style = fontstyle.Bold
		}
		m.AddRow(7,
			col.New(6),
			text.NewCol(3, row.label, props.Text{Size: 9, Style: style}),
			text.NewCol(3, money(row.amount, inv.Currency), props.Text{Size: 9, Style: style, Align: align.Right}),
		)
	}

	if inv.CustomerVATRegistered && inv.VATAmount == 0 {
		m.AddRow(10,
			text.NewCol(12, "VAT reverse-charged to the recipient.", props.Text{Size: 8, Top: 3}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	r.log.Debug("document rendered",
		zap.String("number", deref(inv.Number)),
		zap.Bool("credit_note", inv.CreditNote))
	return doc.GetBytes(), nil
}

func addressCol(heading string, lines ...string) core.Col {
	c := col.New(4).Add(text.New(heading, props.Text{Style: fontstyle.Bold}))
	top := 5.0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		c.Add(text.New(line, props.Text{Top: top, Size: 9}))
		top += 4
	}
	return c
}

func registryCol(inv *invoicedomain.Invoice) core.Col {
	if inv.ViesCompanyName == "" && inv.ViesRequestIdentifier == "" {
		return col.New(4)
	}
	return addressCol("VAT registry",
		inv.ViesCompanyName,
		inv.ViesAddress,
		"Consultation: "+inv.ViesRequestIdentifier,
	)
}

func customerDisplayName(inv *invoicedomain.Invoice) string {
	if strings.TrimSpace(inv.CustomerCompanyName) != "" {
		return inv.CustomerCompanyName
	}
	return inv.CustomerName
}

func lineDescription(inv *invoicedomain.Invoice) string {
	if inv.CreditNote {
		return "Credited services"
	}
	if inv.Interval != "" {
		return fmt.Sprintf("Subscription (%sly)", inv.Interval)
	}
	return "Services"
}

func vatLabel(vatNumber string) string {
	if strings.TrimSpace(vatNumber) == "" {
		return ""
	}
	return "VAT " + vatNumber
}

func money(cents int64, currency string) string {
	amount := decimal.New(cents, -2).StringFixed(2)
	if currency == "" {
		return amount
	}
	return amount + " " + strings.ToUpper(currency)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
