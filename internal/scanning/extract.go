package scanning

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	invoiceNumberRe = regexp.MustCompile(`(?i)facture[:\s]*([A-Z0-9-]+)`)
	supplierRe      = regexp.MustCompile(`(?i)fournisseur[:\s]*([^\n]+)`)
	dateRe          = regexp.MustCompile(`(?i)date[:\s]*(\d{1,2})[/-](\d{1,2})[/-](\d{4}|\d{2})\b`)
	totalRe         = regexp.MustCompile(`(?i)total[:\s]*([0-9.,]+)`)
	taxRe           = regexp.MustCompile(`(?i)tva[:\s]*([0-9.,]+)`)
	itemLineRe      = regexp.MustCompile(`^\s*(\d+)\s+(.+?)\s+(\d+(?:[.,]\d+)?)\s+(\d+(?:[.,]\d+)?)\s*$`)
)

// Extract pulls invoice fields out of recognized text. It never fails: a
// field that cannot be found or parsed is left absent and the remaining
// fields are still extracted. Matching is case-insensitive and the first
// occurrence in the text wins.
func Extract(text string) Extraction {
	var e Extraction

	if m := invoiceNumberRe.FindStringSubmatch(text); m != nil {
		e.InvoiceNumber = &m[1]
	}

	if m := supplierRe.FindStringSubmatch(text); m != nil {
		if supplier := strings.TrimSpace(m[1]); supplier != "" {
			e.Supplier = &supplier
		}
	}

	if m := dateRe.FindStringSubmatch(text); m != nil {
		if d, err := parseDate(m[1], m[2], m[3]); err == nil {
			due := AddMonth(d)
			e.InvoiceDate = &d
			e.DueDate = &due
		}
	}

	if m := totalRe.FindStringSubmatch(text); m != nil {
		if v, err := parseAmount(m[1]); err == nil {
			e.TotalAmount = decimal.NewNullDecimal(v)
		}
	}

	if m := taxRe.FindStringSubmatch(text); m != nil {
		if v, err := parseAmount(m[1]); err == nil {
			e.TaxAmount = decimal.NewNullDecimal(v)
		}
	}

	e.Items = extractItems(text)

	return e
}

// extractItems converts every "<qty> <description> <unit> <total>" line. A
// line that does not convert is skipped.
func extractItems(text string) []LineItem {
	items := make([]LineItem, 0)
	for _, line := range strings.Split(text, "\n") {
		m := itemLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item, err := parseItem(m[1], m[2], m[3], m[4])
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items
}

func parseItem(qty, desc, unit, total string) (LineItem, error) {
	quantity, err := decimal.NewFromString(qty)
	if err != nil {
		return LineItem{}, fmt.Errorf("parsing quantity %q: %w", qty, err)
	}
	unitPrice, err := parseAmount(unit)
	if err != nil {
		return LineItem{}, err
	}
	totalPrice, err := parseAmount(total)
	if err != nil {
		return LineItem{}, err
	}
	return LineItem{
		Description: strings.TrimSpace(desc),
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TotalPrice:  totalPrice,
	}, nil
}

// parseAmount reads a number written with a comma or a period as decimal
// separator ("1200,50", "240.10"). Thousands separators are not supported.
func parseAmount(s string) (decimal.Decimal, error) {
	normalized := strings.ReplaceAll(strings.TrimRight(s, ".,"), ",", ".")
	if normalized == "" || strings.Count(normalized, ".") > 1 {
		return decimal.Decimal{}, fmt.Errorf("malformed amount %q", s)
	}
	v, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return v, nil
}

// parseDate builds a calendar date from day, month and year tokens. Two
// digit years are read as 20YY.
func parseDate(dayStr, monthStr, yearStr string) (time.Time, error) {
	if len(yearStr) == 2 {
		yearStr = "20" + yearStr
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing day: %w", err)
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing month: %w", err)
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing year: %w", err)
	}

	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 31/02 into March; reject instead
	if d.Day() != day || int(d.Month()) != month || d.Year() != year {
		return time.Time{}, fmt.Errorf("invalid date %s/%s/%s", dayStr, monthStr, yearStr)
	}
	return d, nil
}

// AddMonth returns the same day of the following calendar month. December
// rolls into January of the next year, and a day that does not exist in the
// target month is clamped to its last day (31 January -> 28/29 February).
func AddMonth(d time.Time) time.Time {
	year, month, day := d.Date()
	first := time.Date(year, month+1, 1, 0, 0, 0, 0, d.Location())
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, d.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
