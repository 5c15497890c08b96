package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormDB implements the DB interface on top of a SQL database
type GormDB struct {
	db *gorm.DB
}

// OpenPostgres connects to postgres with the given DSN
func OpenPostgres(dsn string) (*GormDB, error) {
	return NewGormDB(postgres.Open(dsn))
}

// OpenSQLite opens (or creates) a sqlite database file
func OpenSQLite(path string) (*GormDB, error) {
	return NewGormDB(sqlite.Open(path))
}

// NewGormDB opens the dialector and migrates the schema
func NewGormDB(dialector gorm.Dialector) (*GormDB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", dialector.Name(), err)
	}

	if err := db.AutoMigrate(
		&Invoice{},
		&LineItem{},
		&Transaction{},
		&Anomaly{},
		&Report{},
		&BankAccount{},
	); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &GormDB{db: db}, nil
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return err
}

// SaveInvoice saves an invoice and replaces its items
func (g *GormDB) SaveInvoice(invoice *Invoice) error {
	return g.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&LineItem{}).Error; err != nil {
			return fmt.Errorf("clearing line items: %w", err)
		}
		for i := range invoice.Items {
			invoice.Items[i].ID = 0
			invoice.Items[i].InvoiceID = invoice.ID
		}
		if err := tx.Save(invoice).Error; err != nil {
			return fmt.Errorf("saving invoice: %w", err)
		}
		return nil
	})
}

// GetInvoice retrieves an invoice by ID
func (g *GormDB) GetInvoice(id string) (*Invoice, error) {
	var invoice Invoice
	if err := g.db.Preload("Items").First(&invoice, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "invoices", id)
	}
	return &invoice, nil
}

// ListInvoices returns all invoices
func (g *GormDB) ListInvoices() ([]*Invoice, error) {
	invoices := make([]*Invoice, 0)
	if err := g.db.Preload("Items").Find(&invoices).Error; err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	sortInvoices(invoices)
	return invoices, nil
}

// DeleteInvoice removes an invoice and its items
func (g *GormDB) DeleteInvoice(id string) error {
	return g.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", id).Delete(&LineItem{}).Error; err != nil {
			return fmt.Errorf("deleting line items: %w", err)
		}
		res := tx.Delete(&Invoice{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("deleting invoice: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("invoices %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// SaveBankAccount saves a bank account
func (g *GormDB) SaveBankAccount(account *BankAccount) error {
	return g.db.Save(account).Error
}

// GetBankAccount retrieves a bank account by ID
func (g *GormDB) GetBankAccount(id string) (*BankAccount, error) {
	var account BankAccount
	if err := g.db.First(&account, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "bank_accounts", id)
	}
	return &account, nil
}

// ListBankAccounts returns all bank accounts ordered by name
func (g *GormDB) ListBankAccounts() ([]*BankAccount, error) {
	accounts := make([]*BankAccount, 0)
	if err := g.db.Order("account_name").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("listing bank accounts: %w", err)
	}
	return accounts, nil
}

// SaveTransaction saves a transaction
func (g *GormDB) SaveTransaction(transaction *Transaction) error {
	return g.db.Save(transaction).Error
}

// GetTransaction retrieves a transaction by ID
func (g *GormDB) GetTransaction(id string) (*Transaction, error) {
	var transaction Transaction
	if err := g.db.First(&transaction, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "transactions", id)
	}
	return &transaction, nil
}

// ListTransactions returns the transactions matching filter
func (g *GormDB) ListTransactions(filter TransactionFilter) ([]*Transaction, error) {
	q := g.db.Order("transaction_date desc")
	if filter.Type != "" {
		q = q.Where("transaction_type = ?", filter.Type)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.BankAccountID != "" {
		q = q.Where("bank_account_id = ?", filter.BankAccountID)
	}
	transactions := make([]*Transaction, 0)
	if err := q.Find(&transactions).Error; err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return transactions, nil
}

// SaveAnomaly saves an anomaly
func (g *GormDB) SaveAnomaly(anomaly *Anomaly) error {
	return g.db.Save(anomaly).Error
}

// GetAnomaly retrieves an anomaly by ID
func (g *GormDB) GetAnomaly(id string) (*Anomaly, error) {
	var anomaly Anomaly
	if err := g.db.First(&anomaly, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "anomalies", id)
	}
	return &anomaly, nil
}

// ListAnomalies returns the anomalies matching filter
func (g *GormDB) ListAnomalies(filter AnomalyFilter) ([]*Anomaly, error) {
	q := g.db.Order("detected_at desc")
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.RelatedInvoiceID != "" {
		q = q.Where("related_invoice_id = ?", filter.RelatedInvoiceID)
	}
	if filter.RelatedTransactionID != "" {
		q = q.Where("related_transaction_id = ?", filter.RelatedTransactionID)
	}
	anomalies := make([]*Anomaly, 0)
	if err := q.Find(&anomalies).Error; err != nil {
		return nil, fmt.Errorf("listing anomalies: %w", err)
	}
	return anomalies, nil
}

// SaveReport saves a report
func (g *GormDB) SaveReport(report *Report) error {
	return g.db.Save(report).Error
}

// ListReports returns all reports
func (g *GormDB) ListReports() ([]*Report, error) {
	reports := make([]*Report, 0)
	if err := g.db.Order("created_at desc").Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return reports, nil
}

// Atomically runs fn in one SQL transaction. On postgres the rows read
// through the Tx are locked FOR UPDATE until commit.
func (g *GormDB) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := g.db.Dialector.Name() == "postgres"
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{tx: tx, lock: lock})
	})
}

// Close closes the underlying connection pool
func (g *GormDB) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return fmt.Errorf("getting sql db: %w", err)
	}
	return sqlDB.Close()
}

type gormTx struct {
	tx   *gorm.DB
	lock bool
}

func (t *gormTx) query() *gorm.DB {
	if t.lock {
		return t.tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return t.tx
}

func (t *gormTx) InvoicesBySupplier(supplier string) ([]*Invoice, error) {
	invoices := make([]*Invoice, 0)
	if err := t.query().Where("supplier = ?", supplier).Find(&invoices).Error; err != nil {
		return nil, fmt.Errorf("querying invoices by supplier: %w", err)
	}
	return invoices, nil
}

func (t *gormTx) TransactionAmounts(txType TransactionType) ([]decimal.Decimal, error) {
	amounts := make([]decimal.Decimal, 0)
	err := t.query().Model(&Transaction{}).
		Where("transaction_type = ?", txType).
		Pluck("amount", &amounts).Error
	if err != nil {
		return nil, fmt.Errorf("querying transaction amounts: %w", err)
	}
	return amounts, nil
}

func (t *gormTx) SaveAnomaly(anomaly *Anomaly) error {
	return t.tx.Create(anomaly).Error
}
