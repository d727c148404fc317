package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one ledger entry. The amount sign convention is whatever
// the provider uses; it is passed through unmodified.
type Transaction struct {
	Integration IntegrationID

	TransactionID        string
	PendingTransactionID string
	AccountID            string

	Date     time.Time
	Amount   decimal.Decimal
	Name     string
	Category string
	Type     string
	Currency string
	Pending  bool

	// Location extension fields (Plaid).
	Address    string
	City       string
	State      string
	PostalCode string
	Country    string
	Latitude   float64
	Longitude  float64

	// Investment extension fields.
	SecurityID   string
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	Fees         decimal.Decimal
	Ticker       string
	SecurityName string
	SecurityType string

	// Display copies stamped from the owning account at mapping time.
	Institution string
	Account     string
}

// Row projects the transaction into sink property names. Date stays a
// time.Time so sinks can apply their configured date layout.
func (t Transaction) Row() map[string]any {
	return map[string]any{
		"integration":          string(t.Integration),
		"transactionId":        t.TransactionID,
		"pendingTransactionId": t.PendingTransactionID,
		"accountId":            t.AccountID,
		"date":                 t.Date,
		"amount":               t.Amount.InexactFloat64(),
		"name":                 t.Name,
		"category":             t.Category,
		"type":                 t.Type,
		"currency":             t.Currency,
		"pending":              t.Pending,
		"address":              t.Address,
		"city":                 t.City,
		"state":                t.State,
		"postal_code":          t.PostalCode,
		"country":              t.Country,
		"latitude":             t.Latitude,
		"longitude":            t.Longitude,
		"securityId":           t.SecurityID,
		"quantity":             t.Quantity.InexactFloat64(),
		"price":                t.Price.InexactFloat64(),
		"fees":                 t.Fees.InexactFloat64(),
		"ticker":               t.Ticker,
		"securityName":         t.SecurityName,
		"securityType":         t.SecurityType,
		"institution":          t.Institution,
		"account":              t.Account,
	}
}
