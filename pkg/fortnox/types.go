package fortnox

import (
	"strings"

	"github.com/linqan85-spec/spendo-sub000/pkg/reconcile"
	"github.com/linqan85-spec/spendo-sub000/pkg/upstream"
)

// SupplierInvoice is one row of the /supplierinvoices collection
type SupplierInvoice struct {
	GivenNumber   upstream.FlexString `json:"GivenNumber"`
	InvoiceNumber upstream.FlexString `json:"InvoiceNumber"`
	SupplierName  string              `json:"SupplierName"`
	Total         upstream.Amount     `json:"Total"`
	VAT           upstream.Amount     `json:"VAT"`
	Currency      string              `json:"Currency"`
	InvoiceDate   string              `json:"InvoiceDate"`
}

// Invoice maps the Fortnox row onto the provider-neutral invoice
func (s SupplierInvoice) Invoice() reconcile.Invoice {
	reference := s.InvoiceNumber.String()
	if reference == "" {
		reference = s.GivenNumber.String()
	}

	return reconcile.Invoice{
		Number:         s.GivenNumber.String(),
		FallbackNumber: s.InvoiceNumber.String(),
		Reference:      reference,
		SupplierName:   strings.TrimSpace(s.SupplierName),
		Total:          s.Total.OrZero(),
		VAT:            s.VAT.NullDecimal,
		Currency:       strings.TrimSpace(s.Currency),
		Date:           upstream.ParseDate(s.InvoiceDate),
	}
}
