package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the review state of an invoice
type InvoiceStatus string

const (
	InvoicePending    InvoiceStatus = "pending"
	InvoiceProcessing InvoiceStatus = "processing"
	InvoiceValidated  InvoiceStatus = "validated"
	InvoiceError      InvoiceStatus = "error"
)

// InvoiceSource records where the invoice fields came from
type InvoiceSource string

const (
	SourceExtracted InvoiceSource = "extracted"
	SourceFallback  InvoiceSource = "fallback"
	SourceManual    InvoiceSource = "manual"
)

// Invoice represents an invoice created from an OCR extraction
type Invoice struct {
	ID            string              `json:"id" gorm:"primaryKey;size:36"`
	InvoiceNumber string              `json:"invoice_number" gorm:"size:50;index"`
	Supplier      string              `json:"supplier" gorm:"size:100;index"`
	InvoiceDate   *time.Time          `json:"invoice_date"`
	DueDate       *time.Time          `json:"due_date"`
	TotalAmount   decimal.NullDecimal `json:"total_amount" gorm:"type:numeric(10,2)"`
	TaxAmount     decimal.NullDecimal `json:"tax_amount" gorm:"type:numeric(10,2)"`
	Status        InvoiceStatus       `json:"status" gorm:"size:20"`
	Source        InvoiceSource       `json:"source" gorm:"size:20"`
	NeedsReview   bool                `json:"needs_review"`
	MissingFields StringList          `json:"missing_fields,omitempty" gorm:"type:text"`
	Filename      string              `json:"filename"`
	ContentType   string              `json:"content_type"`
	Items         []LineItem          `json:"items" gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// LineItem is a single line of an invoice. Quantity x UnitPrice is not
// checked against TotalPrice; the values are stored as read.
type LineItem struct {
	ID          uint            `json:"-" gorm:"primaryKey"`
	InvoiceID   string          `json:"-" gorm:"size:36;index"`
	Description string          `json:"description" gorm:"size:255"`
	Quantity    decimal.Decimal `json:"quantity" gorm:"type:numeric(10,2)"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:numeric(10,2)"`
	TotalPrice  decimal.Decimal `json:"total_price" gorm:"type:numeric(10,2)"`
}

// TransactionType is the category the outlier statistics are grouped by
type TransactionType string

const (
	TransactionIncome   TransactionType = "income"
	TransactionExpense  TransactionType = "expense"
	TransactionTransfer TransactionType = "transfer"
)

// Valid reports whether t is one of the known transaction types
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionIncome, TransactionExpense, TransactionTransfer:
		return true
	}
	return false
}

// TransactionStatus is the settlement state of a transaction
type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionCompleted  TransactionStatus = "completed"
	TransactionFailed     TransactionStatus = "failed"
	TransactionReconciled TransactionStatus = "reconciled"
)

// BankAccount is an account transactions are booked against
type BankAccount struct {
	ID             string          `json:"id" gorm:"primaryKey;size:36"`
	AccountName    string          `json:"account_name" gorm:"size:100"`
	AccountNumber  string          `json:"account_number" gorm:"size:50"`
	BankName       string          `json:"bank_name" gorm:"size:100"`
	CurrentBalance decimal.Decimal `json:"current_balance" gorm:"type:numeric(15,2)"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Transaction represents a bank movement
type Transaction struct {
	ID               string            `json:"id" gorm:"primaryKey;size:36"`
	Date             time.Time         `json:"transaction_date" gorm:"column:transaction_date"`
	Amount           decimal.Decimal   `json:"amount" gorm:"type:numeric(15,2)"`
	Description      string            `json:"description" gorm:"size:255"`
	Type             TransactionType   `json:"transaction_type" gorm:"column:transaction_type;size:20;index"`
	Status           TransactionStatus `json:"status" gorm:"size:20"`
	BankAccountID    *string           `json:"bank_account,omitempty" gorm:"size:36;index"`
	RelatedInvoiceID *string           `json:"related_invoice,omitempty" gorm:"size:36"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// AnomalyType classifies a detected anomaly
type AnomalyType string

const (
	AnomalyDuplicateInvoice   AnomalyType = "duplicate_invoice"
	AnomalyAmountMismatch     AnomalyType = "amount_mismatch"
	AnomalyMissingData        AnomalyType = "missing_data"
	AnomalyUnusualTransaction AnomalyType = "unusual_transaction"
)

// AnomalyStatus is the triage state of an anomaly
type AnomalyStatus string

const (
	AnomalyNew           AnomalyStatus = "new"
	AnomalyInvestigating AnomalyStatus = "investigating"
	AnomalyResolved      AnomalyStatus = "resolved"
	AnomalyFalsePositive AnomalyStatus = "false_positive"
)

// Anomaly is raised by the detectors
type Anomaly struct {
	ID                   string        `json:"id" gorm:"primaryKey;size:36"`
	Type                 AnomalyType   `json:"anomaly_type" gorm:"size:30;index"`
	Description          string        `json:"description" gorm:"type:text"`
	Status               AnomalyStatus `json:"status" gorm:"size:20;index"`
	RelatedInvoiceID     *string       `json:"related_invoice,omitempty" gorm:"size:36"`
	RelatedTransactionID *string       `json:"related_transaction,omitempty" gorm:"size:36"`
	DetectedAt           time.Time     `json:"detected_at"`
	ResolvedAt           *time.Time    `json:"resolved_at,omitempty"`
}

// ReportType names the kind of generated report
type ReportType string

const (
	ReportIncomeStatement ReportType = "income_statement"
	ReportBalanceSheet    ReportType = "balance_sheet"
	ReportCashFlow        ReportType = "cash_flow"
	ReportTax             ReportType = "tax_report"
	ReportCustom          ReportType = "custom"
)

// Report holds the figures of a generated report
type Report struct {
	ID            string          `json:"id" gorm:"primaryKey;size:36"`
	Title         string          `json:"title" gorm:"size:100"`
	Type          ReportType      `json:"report_type" gorm:"size:30"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
	TotalIncome   decimal.Decimal `json:"total_income" gorm:"type:numeric(15,2)"`
	TotalExpenses decimal.Decimal `json:"total_expenses" gorm:"type:numeric(15,2)"`
	NetProfit     decimal.Decimal `json:"net_profit" gorm:"type:numeric(15,2)"`
	CreatedAt     time.Time       `json:"created_at"`
}
