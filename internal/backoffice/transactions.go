package backoffice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-audit/internal/ledger"
)

// NewTransaction holds the fields a caller provides for a transaction
type NewTransaction struct {
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	Type        ledger.TransactionType
	Status      ledger.TransactionStatus

	// BankAccountID is optional; when set it must name an existing account
	BankAccountID string
}

func validStatus(s ledger.TransactionStatus) bool {
	switch s {
	case ledger.TransactionPending, ledger.TransactionCompleted, ledger.TransactionFailed, ledger.TransactionReconciled:
		return true
	}
	return false
}

// CreateTransaction records a transaction and checks it for an unusual
// amount. The returned bool is true when an anomaly was raised.
func (s *Service) CreateTransaction(ctx context.Context, in NewTransaction) (*ledger.Transaction, bool, error) {
	if !in.Type.Valid() {
		return nil, false, fmt.Errorf("%w: unknown transaction type %q", ErrInvalidInput, in.Type)
	}
	if in.Status == "" {
		in.Status = ledger.TransactionPending
	}
	if !validStatus(in.Status) {
		return nil, false, fmt.Errorf("%w: unknown transaction status %q", ErrInvalidInput, in.Status)
	}

	var bankAccountID *string
	if in.BankAccountID != "" {
		_, err := s.db.GetBankAccount(in.BankAccountID)
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, false, fmt.Errorf("%w: unknown bank account %q", ErrInvalidInput, in.BankAccountID)
		}
		if err != nil {
			return nil, false, fmt.Errorf("getting bank account: %w", err)
		}
		bankAccountID = &in.BankAccountID
	}

	now := s.timeSource.Now()
	if in.Date.IsZero() {
		in.Date = now
	}

	transaction := &ledger.Transaction{
		ID:            s.idGenerator.Generate(),
		Date:          in.Date,
		Amount:        in.Amount,
		Description:   in.Description,
		Type:          in.Type,
		Status:        in.Status,
		BankAccountID: bankAccountID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.SaveTransaction(transaction); err != nil {
		return nil, false, fmt.Errorf("saving transaction: %w", err)
	}

	unusual, err := s.outliers.Check(ctx, transaction)
	if err != nil {
		return nil, false, fmt.Errorf("checking for outliers: %w", err)
	}
	return transaction, unusual, nil
}

// GetTransaction retrieves a transaction by ID
func (s *Service) GetTransaction(id string) (*ledger.Transaction, error) {
	transaction, err := s.db.GetTransaction(id)
	if err != nil {
		return nil, fmt.Errorf("getting transaction: %w", err)
	}
	return transaction, nil
}

// ListTransactions returns the transactions matching the filter
func (s *Service) ListTransactions(filter ledger.TransactionFilter) ([]*ledger.Transaction, error) {
	transactions, err := s.db.ListTransactions(filter)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return transactions, nil
}

// Reconciliation is the outcome of matching a transaction with an invoice.
// When the amounts differ nothing is linked and Warning says why.
type Reconciliation struct {
	Transaction       *ledger.Transaction `json:"transaction"`
	Reconciled        bool                `json:"reconciled"`
	Warning           string              `json:"warning,omitempty"`
	TransactionAmount decimal.Decimal     `json:"transaction_amount"`
	InvoiceAmount     decimal.NullDecimal `json:"invoice_amount"`
}

// ReconcileTransaction links a transaction to the invoice it pays when
// both carry the same amount
func (s *Service) ReconcileTransaction(transactionID, invoiceID string) (*Reconciliation, error) {
	if transactionID == "" || invoiceID == "" {
		return nil, fmt.Errorf("%w: both transaction_id and invoice_id are required", ErrInvalidInput)
	}

	transaction, err := s.db.GetTransaction(transactionID)
	if err != nil {
		return nil, fmt.Errorf("getting transaction: %w", err)
	}
	invoice, err := s.db.GetInvoice(invoiceID)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}

	result := &Reconciliation{
		Transaction:       transaction,
		TransactionAmount: transaction.Amount,
		InvoiceAmount:     invoice.TotalAmount,
	}
	if !invoice.TotalAmount.Valid || !transaction.Amount.Equal(invoice.TotalAmount.Decimal) {
		result.Warning = "Transaction amount and invoice amount do not match"
		return result, nil
	}

	transaction.RelatedInvoiceID = &invoice.ID
	transaction.Status = ledger.TransactionReconciled
	transaction.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveTransaction(transaction); err != nil {
		return nil, fmt.Errorf("saving transaction: %w", err)
	}

	s.logger.Info("Transaction reconciled", "transaction_id", transaction.ID, "invoice_id", invoice.ID)
	result.Reconciled = true
	return result, nil
}
