package models

import "github.com/shopspring/decimal"

// IntegrationID identifies where a piece of data came from or goes to.
type IntegrationID string

const (
	IntegrationPlaid     IntegrationID = "plaid"
	IntegrationMx        IntegrationID = "mx"
	IntegrationFinicity  IntegrationID = "finicity"
	IntegrationGoogle    IntegrationID = "google"
	IntegrationCSVImport IntegrationID = "csv-import"
	IntegrationCSVExport IntegrationID = "csv-export"
)

// AccountType controls how the orchestrator fetches a configured account.
type AccountType string

const (
	AccountTypeTransactional AccountType = "transactional"
	AccountTypeInvestment    AccountType = "investment"
	AccountTypeDisabled      AccountType = "disabled"
)

// Account is the normalized representation of one financial account,
// provider-agnostic. Transactions and holdings are owned by containment;
// they carry the account id but never a back-pointer.
type Account struct {
	Integration IntegrationID
	AccountType AccountType

	// Unique identifier within a fetch cycle per provider.
	AccountID string
	// Masked account number, e.g. "1947".
	Mask string

	Institution string
	// Display name, e.g. "Sapphire Reserve Credit Card".
	Account string
	// Provider account type/subtype, e.g. "credit card", "401k".
	Type string

	Current   decimal.NullDecimal
	Available decimal.NullDecimal
	Limit     decimal.NullDecimal
	Currency  string

	Transactions []Transaction
	Holdings     []Holding
}

// Row projects the account balances into sink property names.
func (a Account) Row() map[string]any {
	return map[string]any{
		"integration": string(a.Integration),
		"accountId":   a.AccountID,
		"mask":        a.Mask,
		"institution": a.Institution,
		"account":     a.Account,
		"type":        a.Type,
		"current":     nullDecimalValue(a.Current),
		"available":   nullDecimalValue(a.Available),
		"limit":       nullDecimalValue(a.Limit),
		"currency":    a.Currency,
	}
}

func nullDecimalValue(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}
