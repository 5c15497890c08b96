package scanning

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// FallbackSupplier is the supplier name carried by every fallback record
const FallbackSupplier = "Fournisseur Exemple SARL"

var fallbackNumberRe = regexp.MustCompile(`^INV-\d{8}-001$`)

// DefaultRecord returns the synthetic invoice used when extraction is
// inconclusive. The result depends only on the calendar date of at.
func DefaultRecord(at time.Time) Extraction {
	year, month, day := at.Date()
	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	due := AddMonth(date)
	number := fmt.Sprintf("INV-%s-001", date.Format("20060102"))
	supplier := FallbackSupplier

	return Extraction{
		InvoiceNumber: &number,
		Supplier:      &supplier,
		InvoiceDate:   &date,
		DueDate:       &due,
		TotalAmount:   decimal.NewNullDecimal(decimal.RequireFromString("1250.50")),
		TaxAmount:     decimal.NewNullDecimal(decimal.RequireFromString("250.10")),
		Items: []LineItem{
			{
				Description: "Service de consultation",
				Quantity:    decimal.NewFromInt(5),
				UnitPrice:   decimal.RequireFromString("200.00"),
				TotalPrice:  decimal.RequireFromString("1000.00"),
			},
			{
				Description: "Frais administratifs",
				Quantity:    decimal.NewFromInt(1),
				UnitPrice:   decimal.RequireFromString("250.50"),
				TotalPrice:  decimal.RequireFromString("250.50"),
			},
		},
	}
}

// IsFallbackNumber reports whether an invoice number has the shape of a
// fallback record's number. Such invoices hold demo data and need review.
func IsFallbackNumber(number string) bool {
	return fallbackNumberRe.MatchString(number)
}
