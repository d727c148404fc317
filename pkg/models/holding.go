package models

import "github.com/shopspring/decimal"

// Holding is an investment position snapshot. Holdings are recomputed in
// full on each fetch; only the sink keeps history.
type Holding struct {
	Integration IntegrationID

	AccountID  string
	SecurityID string

	Quantity         decimal.Decimal
	CostBasis        decimal.Decimal
	InstitutionPrice decimal.Decimal
	InstitutionValue decimal.Decimal
	Currency         string

	Ticker       string
	SecurityName string
	Type         string

	Institution string
	Account     string
}

// Row projects the holding into sink property names.
func (h Holding) Row() map[string]any {
	return map[string]any{
		"integration":      string(h.Integration),
		"accountId":        h.AccountID,
		"securityId":       h.SecurityID,
		"quantity":         h.Quantity.InexactFloat64(),
		"costBasis":        h.CostBasis.InexactFloat64(),
		"institutionPrice": h.InstitutionPrice.InexactFloat64(),
		"institutionValue": h.InstitutionValue.InexactFloat64(),
		"currency":         h.Currency,
		"ticker":           h.Ticker,
		"securityName":     h.SecurityName,
		"type":             h.Type,
		"institution":      h.Institution,
		"account":          h.Account,
	}
}
