// Package mx is a thin REST client for the MX Platform API. All data for
// the configured user GUID is pulled in one pass; transactions reference
// their owning account by GUID.
package mx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/mintabledev/mintable/pkg/config"
	"github.com/mintabledev/mintable/pkg/models"
)

const (
	developmentURL = "https://int-api.mx.com"
	productionURL  = "https://api.mx.com"

	acceptHeader = "application/vnd.mx.api.v1+json"
	dateLayout   = "2006-01-02"

	accountsPerPage     = 10
	transactionsPerPage = 500
)

// Client talks to the MX Platform API for one configured integration.
type Client struct {
	cfg        config.MxConfig
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// New builds a Client for the configured environment.
func New(cfg *config.MxConfig, logger *log.Logger) *Client {
	baseURL := developmentURL
	if cfg.Environment == "production" {
		baseURL = productionURL
	}

	return &Client{
		cfg:        *cfg,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.Credentials.ClientID, c.cfg.Credentials.APIKey)
	req.Header.Set("Accept", acceptHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mx: %s returned status %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

type pagination struct {
	CurrentPage  int `json:"current_page"`
	PerPage      int `json:"per_page"`
	TotalEntries int `json:"total_entries"`
	TotalPages   int `json:"total_pages"`
}

type account struct {
	GUID             string              `json:"guid"`
	AccountNumber    string              `json:"account_number"`
	InstitutionCode  string              `json:"institution_code"`
	Name             string              `json:"name"`
	Type             string              `json:"type"`
	Subtype          string              `json:"subtype"`
	Balance          decimal.NullDecimal `json:"balance"`
	AvailableBalance decimal.NullDecimal `json:"available_balance"`
	CreditLimit      decimal.NullDecimal `json:"credit_limit"`
	CurrencyCode     string              `json:"currency_code"`
}

type accountsResponse struct {
	Accounts   []account  `json:"accounts"`
	Pagination pagination `json:"pagination"`
}

type transaction struct {
	GUID         string          `json:"guid"`
	AccountGUID  string          `json:"account_guid"`
	Date         string          `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	CurrencyCode string          `json:"currency_code"`
	Latitude     float64         `json:"latitude"`
	Longitude    float64         `json:"longitude"`
}

type transactionsResponse struct {
	Transactions []transaction `json:"transactions"`
	Pagination   pagination    `json:"pagination"`
}

// fetchPagedAccounts walks the page-numbered account listing until the
// reported total is accumulated.
func (c *Client) fetchPagedAccounts(ctx context.Context) ([]account, error) {
	path := "/users/" + c.cfg.UserGUID + "/accounts"

	page := 1
	query := url.Values{
		"page":             {strconv.Itoa(page)},
		"records_per_page": {strconv.Itoa(accountsPerPage)},
	}

	var first accountsResponse
	if err := c.get(ctx, path, query, &first); err != nil {
		return nil, err
	}

	accounts := first.Accounts
	for len(accounts) < first.Pagination.TotalEntries {
		page++
		query.Set("page", strconv.Itoa(page))

		var next accountsResponse
		if err := c.get(ctx, path, query, &next); err != nil {
			return nil, err
		}
		if len(next.Accounts) == 0 {
			return nil, fmt.Errorf("mx: empty accounts page %d (total %d)", page, first.Pagination.TotalEntries)
		}
		accounts = append(accounts, next.Accounts...)
	}
	return accounts, nil
}

func (c *Client) fetchPagedTransactions(ctx context.Context, startDate, endDate time.Time) ([]transaction, error) {
	path := "/users/" + c.cfg.UserGUID + "/transactions"

	page := 1
	query := url.Values{
		"from_date":        {startDate.Format(dateLayout)},
		"to_date":          {endDate.Format(dateLayout)},
		"page":             {strconv.Itoa(page)},
		"records_per_page": {strconv.Itoa(transactionsPerPage)},
	}

	var first transactionsResponse
	if err := c.get(ctx, path, query, &first); err != nil {
		return nil, err
	}

	transactions := first.Transactions
	for len(transactions) < first.Pagination.TotalEntries {
		page++
		query.Set("page", strconv.Itoa(page))

		var next transactionsResponse
		if err := c.get(ctx, path, query, &next); err != nil {
			return nil, err
		}
		if len(next.Transactions) == 0 {
			return nil, fmt.Errorf("mx: empty transactions page %d (total %d)", page, first.Pagination.TotalEntries)
		}
		transactions = append(transactions, next.Transactions...)
	}
	return transactions, nil
}

// FetchAccount returns every account under the configured user GUID with
// the date range's transactions. Transactions keep their account GUID
// linkage but are carried on the first account, matching how the sink
// flattens them anyway.
func (c *Client) FetchAccount(ctx context.Context, accountConfig config.AccountConfig, startDate, endDate time.Time) ([]models.Account, error) {
	if startDate.Before(time.Now().AddDate(0, -5, 0)) {
		c.logger.Warn("transaction history older than 6 months may not be available for some institutions")
	}

	rawAccounts, err := c.fetchPagedAccounts(ctx)
	if err != nil {
		return nil, err
	}

	accounts := make([]models.Account, 0, len(rawAccounts))
	for _, a := range rawAccounts {
		subtype := a.Subtype
		if subtype == "" {
			subtype = a.Type
		}
		accounts = append(accounts, models.Account{
			Integration: models.IntegrationMx,
			AccountType: accountConfig.Type,
			AccountID:   a.GUID,
			Mask:        a.AccountNumber,
			Institution: a.InstitutionCode,
			Account:     a.Name,
			Type:        subtype,
			Current:     a.Balance,
			Available:   a.AvailableBalance,
			Limit:       a.CreditLimit,
			Currency:    a.CurrencyCode,
		})
	}

	rawTransactions, err := c.fetchPagedTransactions(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}

	transactions := make([]models.Transaction, 0, len(rawTransactions))
	for _, tx := range rawTransactions {
		date, err := time.Parse(dateLayout, tx.Date)
		if err != nil {
			return nil, fmt.Errorf("mx: parsing transaction %s date %q: %w", tx.GUID, tx.Date, err)
		}
		transactions = append(transactions, models.Transaction{
			Integration:   models.IntegrationMx,
			TransactionID: tx.GUID,
			AccountID:     tx.AccountGUID,
			Date:          date,
			Amount:        tx.Amount,
			Name:          tx.Description,
			Category:      tx.Category,
			Type:          tx.Type,
			Currency:      tx.CurrencyCode,
			Latitude:      tx.Latitude,
			Longitude:     tx.Longitude,
			Pending:       tx.Status == "PENDING",
		})
	}

	if len(accounts) > 0 {
		accounts[0].Transactions = transactions
	}

	c.logger.Info("fetched mx accounts", "account", accountConfig.ID,
		"subAccounts", len(accounts), "transactions", len(transactions))
	return accounts, nil
}
