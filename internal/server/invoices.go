package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/billfold/internal/invoice/domain"
)

type invoiceResponse struct {
	ID                    string     `json:"id"`
	Number                *string    `json:"number"`
	CreditNote            bool       `json:"credit_note"`
	ReferenceNumber       *string    `json:"reference_number,omitempty"`
	FinalizedAt           *time.Time `json:"finalized_at"`
	ReservedAt            *time.Time `json:"reserved_at,omitempty"`
	PDFGeneratedAt        *time.Time `json:"pdf_generated_at,omitempty"`
	Subtotal              int64      `json:"subtotal"`
	DiscountAmount        int64      `json:"discount_amount"`
	SubtotalAfterDiscount int64      `json:"subtotal_after_discount"`
	VATAmount             int64      `json:"vat_amount"`
	VATRate               string     `json:"vat_rate"`
	Total                 int64      `json:"total"`
	Currency              string     `json:"currency"`
	Interval              string     `json:"interval,omitempty"`
	CustomerEmail         string     `json:"customer_email"`
	CustomerName          string     `json:"customer_name"`
	CustomerCompanyName   string     `json:"customer_company_name,omitempty"`
	CustomerCountryCode   string     `json:"customer_country_code"`
	CustomerVATRegistered bool       `json:"customer_vat_registered"`
	CustomerVATNumber     string     `json:"customer_vat_number,omitempty"`
	CustomerAccountingID  string     `json:"customer_accounting_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

func toInvoiceResponse(inv *invoicedomain.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:                    inv.ID.String(),
		Number:                inv.Number,
		CreditNote:            inv.CreditNote,
		ReferenceNumber:       inv.ReferenceNumber,
		FinalizedAt:           inv.FinalizedAt,
		ReservedAt:            inv.ReservedAt,
		PDFGeneratedAt:        inv.PDFGeneratedAt,
		Subtotal:              inv.Subtotal,
		DiscountAmount:        inv.DiscountAmount,
		SubtotalAfterDiscount: inv.SubtotalAfterDiscount,
		VATAmount:             inv.VATAmount,
		VATRate:               inv.VATRate.String(),
		Total:                 inv.Total,
		Currency:              inv.Currency,
		Interval:              inv.Interval,
		CustomerEmail:         inv.CustomerEmail,
		CustomerName:          inv.CustomerName,
		CustomerCompanyName:   inv.CustomerCompanyName,
		CustomerCountryCode:   inv.CustomerCountryCode,
		CustomerVATRegistered: inv.CustomerVATRegistered,
		CustomerVATNumber:     inv.CustomerVATNumber,
		CustomerAccountingID:  inv.CustomerAccountingID,
		CreatedAt:             inv.CreatedAt,
	}
}

// ListInvoices returns documents newest first, optionally filtered by
// accounting id and finalization window.
func (s *Server) ListInvoices(c *gin.Context) {
	var req invoicedomain.ListRequest

	if v := strings.TrimSpace(c.Query("accounting_id")); v != "" {
		req.AccountingID = &v
	}
	if v := strings.TrimSpace(c.Query("finalized_before")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			AbortWithError(c, newValidationError("finalized_before", "must be RFC 3339"))
			return
		}
		req.FinalizedBefore = &t
	}
	if v := strings.TrimSpace(c.Query("finalized_after")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			AbortWithError(c, newValidationError("finalized_after", "must be RFC 3339"))
			return
		}
		req.FinalizedAfter = &t
	}

	invoices, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]invoiceResponse, 0, len(invoices))
	for i := range invoices {
		out = append(out, toInvoiceResponse(&invoices[i]))
	}
	c.JSON(http.StatusOK, gin.H{"invoices": out})
}

func (s *Server) GetInvoiceByNumber(c *gin.Context) {
	number := strings.TrimSpace(c.Param("number"))
	if number == "" {
		AbortWithError(c, newValidationError("number", "is required"))
		return
	}

	inv, err := s.invoiceSvc.GetByNumber(c.Request.Context(), number)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toInvoiceResponse(inv))
}

// GetInvoicePDF renders the document on demand.
func (s *Server) GetInvoicePDF(c *gin.Context) {
	number := strings.TrimSpace(c.Param("number"))
	if number == "" {
		AbortWithError(c, newValidationError("number", "is required"))
		return
	}

	inv, err := s.invoiceSvc.GetByNumber(c.Request.Context(), number)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.renderer.Render(inv)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+number+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}

// ReserveNumber consumes the next sequence number with an empty
// placeholder document.
func (s *Server) ReserveNumber(c *gin.Context) {
	inv, err := s.invoiceSvc.Reserve(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toInvoiceResponse(inv))
}
