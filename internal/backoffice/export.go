package backoffice

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

var exportHeader = []string{
	"Numéro de facture",
	"Fournisseur",
	"Date de facture",
	"Date d'échéance",
	"Montant total",
	"Montant TVA",
	"Statut",
}

// ExportInvoicesCSV writes every invoice as one CSV row. Absent dates and
// amounts are written as empty cells.
func (s *Service) ExportInvoicesCSV(w io.Writer) error {
	invoices, err := s.db.ListInvoices()
	if err != nil {
		return fmt.Errorf("listing invoices: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, inv := range invoices {
		row := []string{
			inv.InvoiceNumber,
			inv.Supplier,
			formatDate(inv.InvoiceDate),
			formatDate(inv.DueDate),
			formatAmount(inv.TotalAmount),
			formatAmount(inv.TaxAmount),
			string(inv.Status),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row for invoice %s: %w", inv.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}
	return nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(reportDateLayout)
}

func formatAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}
