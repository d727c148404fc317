package plaid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mintabledev/mintable/pkg/config"
	"github.com/mintabledev/mintable/pkg/models"
)

func mapAccount(account accountBase, accountType models.AccountType) models.Account {
	subtype := account.Subtype
	if subtype == "" {
		subtype = account.Type
	}
	currency := account.Balances.ISOCurrencyCode
	if currency == "" {
		currency = account.Balances.UnofficialCurrencyCode
	}

	return models.Account{
		Integration: models.IntegrationPlaid,
		AccountType: accountType,
		AccountID:   account.AccountID,
		Mask:        account.Mask,
		Institution: account.Name,
		Account:     account.OfficialName,
		Type:        subtype,
		Current:     account.Balances.Current,
		Available:   account.Balances.Available,
		Limit:       account.Balances.Limit,
		Currency:    currency,
	}
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("plaid: parsing date %q: %w", s, err)
	}
	return t, nil
}

// attach distributes transactions to their owning sub-account and stamps
// the display fields on each one.
func attach(accounts []models.Account, transactions []models.Transaction) []models.Account {
	for i := range accounts {
		for _, tx := range transactions {
			if tx.AccountID != accounts[i].AccountID {
				continue
			}
			tx.Institution = accounts[i].Institution
			tx.Account = accounts[i].Account
			accounts[i].Transactions = append(accounts[i].Transactions, tx)
		}
	}
	return accounts
}

// FetchAccount is the default transactional fetch.
func (c *Client) FetchAccount(ctx context.Context, accountConfig config.AccountConfig, startDate, endDate time.Time) ([]models.Account, error) {
	return c.FetchAccountWithTransactions(ctx, accountConfig, startDate, endDate)
}

// FetchAccountWithTransactions returns the item's sub-accounts with their
// transactions for the date range.
func (c *Client) FetchAccountWithTransactions(ctx context.Context, accountConfig config.AccountConfig, startDate, endDate time.Time) ([]models.Account, error) {
	data, err := c.fetchPagedTransactions(ctx, accountConfig.Token, startDate, endDate)
	if err != nil {
		return nil, err
	}

	accounts := make([]models.Account, 0, len(data.Accounts))
	for _, account := range data.Accounts {
		accounts = append(accounts, mapAccount(account, accountConfig.Type))
	}

	transactions := make([]models.Transaction, 0, len(data.Transactions))
	for _, tx := range data.Transactions {
		currency := tx.ISOCurrencyCode
		if currency == "" {
			currency = tx.UnofficialCurrencyCode
		}
		date, err := parseDate(tx.Date)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, models.Transaction{
			Integration:          models.IntegrationPlaid,
			TransactionID:        tx.TransactionID,
			PendingTransactionID: tx.PendingTransactionID,
			AccountID:            tx.AccountID,
			Date:                 date,
			Amount:               tx.Amount,
			Name:                 tx.Name,
			Category:             strings.Join(tx.Category, " - "),
			Type:                 tx.TransactionType,
			Currency:             currency,
			Pending:              tx.Pending,
			Address:              tx.Location.Address,
			City:                 tx.Location.City,
			State:                tx.Location.Region,
			PostalCode:           tx.Location.PostalCode,
			Country:              tx.Location.Country,
			Latitude:             tx.Location.Lat,
			Longitude:            tx.Location.Lon,
		})
	}

	accounts = attach(accounts, transactions)
	c.logger.Info("fetched plaid account", "account", accountConfig.ID,
		"subAccounts", len(accounts), "transactions", len(transactions))
	return accounts, nil
}

// FetchAccountWithInvestmentTransactions returns the item's sub-accounts
// with their investment transactions. Entries without a resolvable ticker
// are dropped.
func (c *Client) FetchAccountWithInvestmentTransactions(ctx context.Context, accountConfig config.AccountConfig, startDate, endDate time.Time) ([]models.Account, error) {
	data, err := c.fetchPagedInvestmentTransactions(ctx, accountConfig.Token, startDate, endDate)
	if err != nil {
		return nil, err
	}

	securities := make(map[string]security, len(data.Securities))
	for _, s := range data.Securities {
		securities[s.SecurityID] = s
	}

	accounts := make([]models.Account, 0, len(data.Accounts))
	for _, account := range data.Accounts {
		accounts = append(accounts, mapAccount(account, accountConfig.Type))
	}

	var transactions []models.Transaction
	for _, tx := range data.InvestmentTransactions {
		sec, ok := securities[tx.SecurityID]
		if !ok || sec.TickerSymbol == "" {
			continue
		}
		date, err := parseDate(tx.Date)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, models.Transaction{
			Integration:   models.IntegrationPlaid,
			TransactionID: tx.InvestmentTransactionID,
			AccountID:     tx.AccountID,
			SecurityID:    tx.SecurityID,
			Date:          date,
			Amount:        tx.Amount,
			Name:          tx.Name,
			Quantity:      tx.Quantity.Abs(),
			Price:         tx.Price,
			Fees:          tx.Fees,
			Type:          titleCase(tx.Type),
			Currency:      tx.ISOCurrencyCode,
			Ticker:        sec.TickerSymbol,
			SecurityName:  sec.Name,
			SecurityType:  sec.Type,
		})
	}

	accounts = attach(accounts, transactions)
	c.logger.Info("fetched plaid investment transactions", "account", accountConfig.ID,
		"subAccounts", len(accounts), "transactions", len(transactions))
	return accounts, nil
}

// FetchAccountWithHoldings returns the item's sub-accounts with their
// current holdings.
func (c *Client) FetchAccountWithHoldings(ctx context.Context, accountConfig config.AccountConfig) ([]models.Account, error) {
	data, err := c.fetchHoldings(ctx, accountConfig.Token)
	if err != nil {
		return nil, err
	}

	securities := make(map[string]security, len(data.Securities))
	for _, s := range data.Securities {
		securities[s.SecurityID] = s
	}

	accounts := make([]models.Account, 0, len(data.Accounts))
	for _, account := range data.Accounts {
		accounts = append(accounts, mapAccount(account, accountConfig.Type))
	}

	holdings := make([]models.Holding, 0, len(data.Holdings))
	for _, h := range data.Holdings {
		sec := securities[h.SecurityID]
		holdings = append(holdings, models.Holding{
			Integration:      models.IntegrationPlaid,
			AccountID:        h.AccountID,
			SecurityID:       h.SecurityID,
			Quantity:         h.Quantity,
			CostBasis:        h.CostBasis,
			InstitutionPrice: h.InstitutionPrice,
			InstitutionValue: h.InstitutionValue,
			Currency:         h.ISOCurrencyCode,
			Ticker:           sec.TickerSymbol,
			SecurityName:     sec.Name,
			Type:             sec.Type,
		})
	}

	for i := range accounts {
		for _, h := range holdings {
			if h.AccountID != accounts[i].AccountID {
				continue
			}
			h.Institution = accounts[i].Institution
			h.Account = accounts[i].Account
			accounts[i].Holdings = append(accounts[i].Holdings, h)
		}
	}

	c.logger.Info("fetched plaid holdings", "account", accountConfig.ID,
		"subAccounts", len(accounts), "holdings", len(holdings))
	return accounts, nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
