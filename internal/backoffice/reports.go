package backoffice

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-audit/internal/ledger"
)

const reportDateLayout = "2006-01-02"

// GenerateIncomeStatement totals income and expense transactions dated
// between start and end, both days included, and stores the result
func (s *Service) GenerateIncomeStatement(start, end time.Time) (*ledger.Report, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidInput,
			end.Format(reportDateLayout), start.Format(reportDateLayout))
	}

	income, err := s.sumTransactions(ledger.TransactionIncome, start, end)
	if err != nil {
		return nil, err
	}
	expenses, err := s.sumTransactions(ledger.TransactionExpense, start, end)
	if err != nil {
		return nil, err
	}

	report := &ledger.Report{
		ID:            s.idGenerator.Generate(),
		Title:         fmt.Sprintf("Income Statement: %s to %s", start.Format(reportDateLayout), end.Format(reportDateLayout)),
		Type:          ledger.ReportIncomeStatement,
		StartDate:     start,
		EndDate:       end,
		TotalIncome:   income,
		TotalExpenses: expenses,
		NetProfit:     income.Sub(expenses),
		CreatedAt:     s.timeSource.Now(),
	}
	if err := s.db.SaveReport(report); err != nil {
		return nil, fmt.Errorf("saving report: %w", err)
	}
	return report, nil
}

func (s *Service) sumTransactions(t ledger.TransactionType, start, end time.Time) (decimal.Decimal, error) {
	transactions, err := s.db.ListTransactions(ledger.TransactionFilter{Type: t})
	if err != nil {
		return decimal.Zero, fmt.Errorf("listing %s transactions: %w", t, err)
	}

	total := decimal.Zero
	next := end.AddDate(0, 0, 1)
	for _, tr := range transactions {
		if tr.Date.Before(start) || !tr.Date.Before(next) {
			continue
		}
		total = total.Add(tr.Amount)
	}
	return total, nil
}

// ListReports returns all generated reports
func (s *Service) ListReports() ([]*ledger.Report, error) {
	reports, err := s.db.ListReports()
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return reports, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
