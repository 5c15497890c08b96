package backoffice

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-audit/internal/ledger"
)

// NewBankAccount holds the fields a caller provides for a bank account
type NewBankAccount struct {
	AccountName    string
	AccountNumber  string
	BankName       string
	CurrentBalance decimal.Decimal
}

// CreateBankAccount records a bank account. Name, number and bank are required.
func (s *Service) CreateBankAccount(in NewBankAccount) (*ledger.BankAccount, error) {
	account := &ledger.BankAccount{
		ID:             s.idGenerator.Generate(),
		AccountName:    strings.TrimSpace(in.AccountName),
		AccountNumber:  strings.TrimSpace(in.AccountNumber),
		BankName:       strings.TrimSpace(in.BankName),
		CurrentBalance: in.CurrentBalance,
		CreatedAt:      s.timeSource.Now(),
	}
	if account.AccountName == "" || account.AccountNumber == "" || account.BankName == "" {
		return nil, fmt.Errorf("%w: account name, number and bank are required", ErrInvalidInput)
	}

	if err := s.db.SaveBankAccount(account); err != nil {
		return nil, fmt.Errorf("saving bank account: %w", err)
	}
	return account, nil
}

// GetBankAccount retrieves a bank account by ID
func (s *Service) GetBankAccount(id string) (*ledger.BankAccount, error) {
	account, err := s.db.GetBankAccount(id)
	if err != nil {
		return nil, fmt.Errorf("getting bank account: %w", err)
	}
	return account, nil
}

// ListBankAccounts returns all bank accounts
func (s *Service) ListBankAccounts() ([]*ledger.BankAccount, error) {
	accounts, err := s.db.ListBankAccounts()
	if err != nil {
		return nil, fmt.Errorf("listing bank accounts: %w", err)
	}
	return accounts, nil
}
