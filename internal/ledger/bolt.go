package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"
)

const (
	invoiceBucket     = "invoices"
	transactionBucket = "transactions"
	anomalyBucket     = "anomalies"
	reportBucket      = "reports"
	bankAccountBucket = "bank_accounts"
)

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{invoiceBucket, transactionBucket, anomalyBucket, reportBucket, bankAccountBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func put(tx *bbolt.Tx, bucket, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s record: %w", bucket, err)
	}
	return tx.Bucket([]byte(bucket)).Put([]byte(id), data)
}

func get[T any](tx *bbolt.Tx, bucket, id string) (*T, error) {
	data := tx.Bucket([]byte(bucket)).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%s %s: %w", bucket, id, ErrNotFound)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshaling %s record: %w", bucket, err)
	}
	return &v, nil
}

func each[T any](tx *bbolt.Tx, bucket string, fn func(*T)) error {
	return tx.Bucket([]byte(bucket)).ForEach(func(k, v []byte) error {
		var rec T
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("unmarshaling %s record: %w", bucket, err)
		}
		fn(&rec)
		return nil
	})
}

// SaveInvoice saves an invoice to the database
func (b *BoltDB) SaveInvoice(invoice *Invoice) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, invoiceBucket, invoice.ID, invoice)
	})
}

// GetInvoice retrieves an invoice by ID
func (b *BoltDB) GetInvoice(id string) (*Invoice, error) {
	var invoice *Invoice
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		invoice, err = get[Invoice](tx, invoiceBucket, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// ListInvoices returns all invoices
func (b *BoltDB) ListInvoices() ([]*Invoice, error) {
	invoices := make([]*Invoice, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return each(tx, invoiceBucket, func(inv *Invoice) {
			invoices = append(invoices, inv)
		})
	})
	if err != nil {
		return nil, err
	}
	sortInvoices(invoices)
	return invoices, nil
}

// DeleteInvoice removes an invoice from the database
func (b *BoltDB) DeleteInvoice(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(invoiceBucket))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%s %s: %w", invoiceBucket, id, ErrNotFound)
		}
		return bucket.Delete([]byte(id))
	})
}

// SaveBankAccount saves a bank account to the database
func (b *BoltDB) SaveBankAccount(account *BankAccount) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, bankAccountBucket, account.ID, account)
	})
}

// GetBankAccount retrieves a bank account by ID
func (b *BoltDB) GetBankAccount(id string) (*BankAccount, error) {
	var account *BankAccount
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		account, err = get[BankAccount](tx, bankAccountBucket, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// ListBankAccounts returns all bank accounts ordered by name
func (b *BoltDB) ListBankAccounts() ([]*BankAccount, error) {
	accounts := make([]*BankAccount, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return each(tx, bankAccountBucket, func(a *BankAccount) {
			accounts = append(accounts, a)
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].AccountName < accounts[j].AccountName
	})
	return accounts, nil
}

// SaveTransaction saves a transaction to the database
func (b *BoltDB) SaveTransaction(transaction *Transaction) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, transactionBucket, transaction.ID, transaction)
	})
}

// GetTransaction retrieves a transaction by ID
func (b *BoltDB) GetTransaction(id string) (*Transaction, error) {
	var transaction *Transaction
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		transaction, err = get[Transaction](tx, transactionBucket, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return transaction, nil
}

// ListTransactions returns the transactions matching filter
func (b *BoltDB) ListTransactions(filter TransactionFilter) ([]*Transaction, error) {
	transactions := make([]*Transaction, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return each(tx, transactionBucket, func(t *Transaction) {
			if filter.match(t) {
				transactions = append(transactions, t)
			}
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].Date.After(transactions[j].Date)
	})
	return transactions, nil
}

// SaveAnomaly saves an anomaly to the database
func (b *BoltDB) SaveAnomaly(anomaly *Anomaly) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, anomalyBucket, anomaly.ID, anomaly)
	})
}

// GetAnomaly retrieves an anomaly by ID
func (b *BoltDB) GetAnomaly(id string) (*Anomaly, error) {
	var anomaly *Anomaly
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		anomaly, err = get[Anomaly](tx, anomalyBucket, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return anomaly, nil
}

// ListAnomalies returns the anomalies matching filter
func (b *BoltDB) ListAnomalies(filter AnomalyFilter) ([]*Anomaly, error) {
	anomalies := make([]*Anomaly, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return each(tx, anomalyBucket, func(a *Anomaly) {
			if filter.match(a) {
				anomalies = append(anomalies, a)
			}
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(anomalies, func(i, j int) bool {
		return anomalies[i].DetectedAt.After(anomalies[j].DetectedAt)
	})
	return anomalies, nil
}

// SaveReport saves a report to the database
func (b *BoltDB) SaveReport(report *Report) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, reportBucket, report.ID, report)
	})
}

// ListReports returns all reports
func (b *BoltDB) ListReports() ([]*Report, error) {
	reports := make([]*Report, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return each(tx, reportBucket, func(r *Report) {
			reports = append(reports, r)
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	return reports, nil
}

// Atomically runs fn in one read-write bolt transaction. Bolt allows a single
// writer at a time, so concurrent callers are serialized.
func (b *BoltDB) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) InvoicesBySupplier(supplier string) ([]*Invoice, error) {
	invoices := make([]*Invoice, 0)
	err := each(t.tx, invoiceBucket, func(inv *Invoice) {
		if inv.Supplier == supplier {
			invoices = append(invoices, inv)
		}
	})
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (t *boltTx) TransactionAmounts(txType TransactionType) ([]decimal.Decimal, error) {
	amounts := make([]decimal.Decimal, 0)
	err := each(t.tx, transactionBucket, func(tr *Transaction) {
		if tr.Type == txType {
			amounts = append(amounts, tr.Amount)
		}
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

func (t *boltTx) SaveAnomaly(anomaly *Anomaly) error {
	return put(t.tx, anomalyBucket, anomaly.ID, anomaly)
}

// sortInvoices orders invoices by invoice date, newest first; undated last
func sortInvoices(invoices []*Invoice) {
	sort.SliceStable(invoices, func(i, j int) bool {
		a, b := invoices[i].InvoiceDate, invoices[j].InvoiceDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
