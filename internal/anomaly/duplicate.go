package anomaly

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-audit/internal/ledger"
)

var (
	nearAmountLow  = decimal.RequireFromString("0.95")
	nearAmountHigh = decimal.RequireFromString("1.05")
)

// DuplicateDetector flags invoices that repeat an earlier invoice from the
// same supplier
type DuplicateDetector struct {
	detector
}

// NewDuplicateDetector creates a DuplicateDetector with default ID
// generator and time source
func NewDuplicateDetector(store Store, logger *slog.Logger) *DuplicateDetector {
	return NewDuplicateDetectorWithDeps(store, &uuidGenerator{}, &defaultTimeSource{}, logger)
}

// NewDuplicateDetectorWithDeps creates a DuplicateDetector with custom
// dependencies for testing
func NewDuplicateDetectorWithDeps(store Store, idGen IDGenerator, timeSrc TimeSource, logger *slog.Logger) *DuplicateDetector {
	return &DuplicateDetector{detector: newDetector(store, idGen, timeSrc, logger)}
}

// Check reports whether the persisted invoice duplicates another one. An
// invoice with the same number and supplier is an exact duplicate; failing
// that, an invoice from the same supplier whose total lies within 5% of
// this one is a likely duplicate. At most one anomaly is created per call.
func (d *DuplicateDetector) Check(ctx context.Context, invoice *ledger.Invoice) (bool, error) {
	var found bool
	err := d.store.Atomically(ctx, func(tx ledger.Tx) error {
		others, err := tx.InvoicesBySupplier(invoice.Supplier)
		if err != nil {
			return fmt.Errorf("loading invoices from %q: %w", invoice.Supplier, err)
		}

		description, ok := duplicateOf(invoice, others)
		if !ok {
			return nil
		}

		a := d.newAnomaly(ledger.AnomalyDuplicateInvoice, description)
		a.RelatedInvoiceID = &invoice.ID
		if err := tx.SaveAnomaly(a); err != nil {
			return fmt.Errorf("saving anomaly: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("checking invoice %s for duplicates: %w", invoice.ID, err)
	}

	if found {
		d.logger.Info("Duplicate invoice detected",
			"invoice_id", invoice.ID,
			"invoice_number", invoice.InvoiceNumber,
			"supplier", invoice.Supplier,
		)
	}
	return found, nil
}

// duplicateOf looks for a match among the supplier's other invoices and
// returns the anomaly description. Exact matches win over near amounts.
func duplicateOf(invoice *ledger.Invoice, others []*ledger.Invoice) (string, bool) {
	for _, other := range others {
		if other.ID == invoice.ID {
			continue
		}
		if other.InvoiceNumber == invoice.InvoiceNumber && other.Supplier == invoice.Supplier {
			return fmt.Sprintf("Potential duplicate invoice: %s from %s", invoice.InvoiceNumber, invoice.Supplier), true
		}
	}

	if !invoice.TotalAmount.Valid {
		return "", false
	}
	total := invoice.TotalAmount.Decimal
	low, high := total.Mul(nearAmountLow), total.Mul(nearAmountHigh)
	for _, other := range others {
		if other.ID == invoice.ID || other.Supplier != invoice.Supplier || !other.TotalAmount.Valid {
			continue
		}
		amount := other.TotalAmount.Decimal
		if amount.GreaterThanOrEqual(low) && amount.LessThanOrEqual(high) {
			return fmt.Sprintf("Invoice with similar amount (%s) from %s", total.StringFixed(2), invoice.Supplier), true
		}
	}
	return "", false
}
