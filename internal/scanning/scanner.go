package scanning

import (
	"context"
	"image"
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one invoice line as read from the text
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// Extraction contains the fields recovered from an invoice. Every field is
// optional; an absent field needs a fallback or a manual correction and
// must never be read as zero.
type Extraction struct {
	InvoiceNumber *string             `json:"invoice_number"`
	Supplier      *string             `json:"supplier"`
	InvoiceDate   *time.Time          `json:"invoice_date"`
	DueDate       *time.Time          `json:"due_date"`
	TotalAmount   decimal.NullDecimal `json:"total_amount"`
	TaxAmount     decimal.NullDecimal `json:"tax_amount"`
	Items         []LineItem          `json:"items"`
}

// Missing returns the names of the fields that were not recovered
func (e Extraction) Missing() []string {
	var missing []string
	if e.InvoiceNumber == nil {
		missing = append(missing, "invoice_number")
	}
	if e.Supplier == nil {
		missing = append(missing, "supplier")
	}
	if e.InvoiceDate == nil {
		missing = append(missing, "invoice_date")
	}
	if e.DueDate == nil {
		missing = append(missing, "due_date")
	}
	if !e.TotalAmount.Valid {
		missing = append(missing, "total_amount")
	}
	if !e.TaxAmount.Valid {
		missing = append(missing, "tax_amount")
	}
	return missing
}

//go:generate mockgen -destination=mocks/mock_recognizer.go -package=mocks -source=scanner.go Recognizer

// Recognizer turns a preprocessed invoice image into raw text
type Recognizer interface {
	// Recognize runs text recognition on the image
	Recognize(ctx context.Context, img image.Image) (string, error)
	// Close releases the recognizer's resources
	Close() error
}
