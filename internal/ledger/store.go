package ledger

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// DB defines the interface for database operations
type DB interface {
	// SaveInvoice creates or replaces an invoice together with its items
	SaveInvoice(invoice *Invoice) error

	// GetInvoice retrieves an invoice by ID
	GetInvoice(id string) (*Invoice, error)

	// ListInvoices returns all invoices, newest invoice date first
	ListInvoices() ([]*Invoice, error)

	// DeleteInvoice removes an invoice and its items
	DeleteInvoice(id string) error

	// SaveBankAccount creates or replaces a bank account
	SaveBankAccount(account *BankAccount) error

	// GetBankAccount retrieves a bank account by ID
	GetBankAccount(id string) (*BankAccount, error)

	// ListBankAccounts returns all bank accounts ordered by name
	ListBankAccounts() ([]*BankAccount, error)

	// SaveTransaction creates or replaces a transaction
	SaveTransaction(transaction *Transaction) error

	// GetTransaction retrieves a transaction by ID
	GetTransaction(id string) (*Transaction, error)

	// ListTransactions returns the transactions matching the filter
	ListTransactions(filter TransactionFilter) ([]*Transaction, error)

	// SaveAnomaly creates or replaces an anomaly
	SaveAnomaly(anomaly *Anomaly) error

	// GetAnomaly retrieves an anomaly by ID
	GetAnomaly(id string) (*Anomaly, error)

	// ListAnomalies returns the anomalies matching the filter, newest first
	ListAnomalies(filter AnomalyFilter) ([]*Anomaly, error)

	// SaveReport stores a generated report
	SaveReport(report *Report) error

	// ListReports returns all reports, newest first
	ListReports() ([]*Report, error)

	// Atomically runs fn inside a single read-write transaction
	Atomically(ctx context.Context, fn func(tx Tx) error) error

	// Close closes the database connection
	Close() error
}

// Tx is the view of the historical population the detectors work on.
// Reads and writes made through one Tx commit or roll back together.
type Tx interface {
	// InvoicesBySupplier returns every invoice from the supplier
	InvoicesBySupplier(supplier string) ([]*Invoice, error)

	// TransactionAmounts returns the amount of every transaction of the type
	TransactionAmounts(t TransactionType) ([]decimal.Decimal, error)

	// SaveAnomaly stores a new anomaly
	SaveAnomaly(anomaly *Anomaly) error
}

// TransactionFilter narrows ListTransactions. Zero values match everything.
type TransactionFilter struct {
	Type          TransactionType
	Status        TransactionStatus
	BankAccountID string
}

func (f TransactionFilter) match(t *Transaction) bool {
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.BankAccountID != "" && (t.BankAccountID == nil || *t.BankAccountID != f.BankAccountID) {
		return false
	}
	return true
}

// AnomalyFilter narrows ListAnomalies. Zero values match everything.
type AnomalyFilter struct {
	Type                 AnomalyType
	Status               AnomalyStatus
	RelatedInvoiceID     string
	RelatedTransactionID string
}

func (f AnomalyFilter) match(a *Anomaly) bool {
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.RelatedInvoiceID != "" && (a.RelatedInvoiceID == nil || *a.RelatedInvoiceID != f.RelatedInvoiceID) {
		return false
	}
	if f.RelatedTransactionID != "" && (a.RelatedTransactionID == nil || *a.RelatedTransactionID != f.RelatedTransactionID) {
		return false
	}
	return true
}

// StringList is a list of strings stored as a JSON array in SQL columns
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, fmt.Errorf("marshaling string list: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (l *StringList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("scanning string list: unsupported type %T", src)
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("unmarshaling string list: %w", err)
	}
	*l = out
	return nil
}
