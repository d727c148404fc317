// Package plaid is a thin REST client for the Plaid API. It fetches
// accounts, transactions, investment transactions and holdings and maps
// them into the normalized account model.
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/mintabledev/mintable/pkg/config"
)

const (
	sandboxURL     = "https://sandbox.plaid.com"
	developmentURL = "https://development.plaid.com"
	productionURL  = "https://production.plaid.com"

	apiVersion = "2020-09-14"
	dateLayout = "2006-01-02"
)

// Client talks to the Plaid API for one configured integration.
type Client struct {
	creds      config.PlaidCredentials
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// New builds a Client for the configured environment.
func New(cfg *config.PlaidConfig, logger *log.Logger) *Client {
	baseURL := sandboxURL
	switch cfg.Environment {
	case "development":
		baseURL = developmentURL
	case "production":
		baseURL = productionURL
	}

	return &Client{
		creds:      cfg.Credentials,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type apiError struct {
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("plaid: %s/%s: %s", e.ErrorType, e.ErrorCode, e.ErrorMessage)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PLAID-CLIENT-ID", c.creds.ClientID)
	req.Header.Set("PLAID-SECRET", c.creds.Secret)
	req.Header.Set("Plaid-Version", apiVersion)

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
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.ErrorCode != "" {
			return &apiErr
		}
		return fmt.Errorf("plaid: %s returned status %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// Wire types, named after the Plaid JSON fields they decode.

type accountBalances struct {
	Available              decimal.NullDecimal `json:"available"`
	Current                decimal.NullDecimal `json:"current"`
	Limit                  decimal.NullDecimal `json:"limit"`
	ISOCurrencyCode        string              `json:"iso_currency_code"`
	UnofficialCurrencyCode string              `json:"unofficial_currency_code"`
}

type accountBase struct {
	AccountID    string          `json:"account_id"`
	Mask         string          `json:"mask"`
	Name         string          `json:"name"`
	OfficialName string          `json:"official_name"`
	Type         string          `json:"type"`
	Subtype      string          `json:"subtype"`
	Balances     accountBalances `json:"balances"`
}

type location struct {
	Address    string  `json:"address"`
	City       string  `json:"city"`
	Region     string  `json:"region"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

type transaction struct {
	TransactionID          string          `json:"transaction_id"`
	PendingTransactionID   string          `json:"pending_transaction_id"`
	AccountID              string          `json:"account_id"`
	Name                   string          `json:"name"`
	Date                   string          `json:"date"`
	Amount                 decimal.Decimal `json:"amount"`
	Category               []string        `json:"category"`
	TransactionType        string          `json:"transaction_type"`
	ISOCurrencyCode        string          `json:"iso_currency_code"`
	UnofficialCurrencyCode string          `json:"unofficial_currency_code"`
	Location               location        `json:"location"`
	Pending                bool            `json:"pending"`
}

type security struct {
	SecurityID   string `json:"security_id"`
	TickerSymbol string `json:"ticker_symbol"`
	Name         string `json:"name"`
	Type         string `json:"type"`
}

type investmentTransaction struct {
	InvestmentTransactionID string          `json:"investment_transaction_id"`
	AccountID               string          `json:"account_id"`
	SecurityID              string          `json:"security_id"`
	Date                    string          `json:"date"`
	Name                    string          `json:"name"`
	Quantity                decimal.Decimal `json:"quantity"`
	Amount                  decimal.Decimal `json:"amount"`
	Price                   decimal.Decimal `json:"price"`
	Fees                    decimal.Decimal `json:"fees"`
	Type                    string          `json:"type"`
	Subtype                 string          `json:"subtype"`
	ISOCurrencyCode         string          `json:"iso_currency_code"`
}

type holding struct {
	AccountID        string          `json:"account_id"`
	SecurityID       string          `json:"security_id"`
	CostBasis        decimal.Decimal `json:"cost_basis"`
	InstitutionPrice decimal.Decimal `json:"institution_price"`
	InstitutionValue decimal.Decimal `json:"institution_value"`
	ISOCurrencyCode  string          `json:"iso_currency_code"`
	Quantity         decimal.Decimal `json:"quantity"`
}

type requestOptions struct {
	Offset int `json:"offset"`
}

type transactionsGetRequest struct {
	AccessToken string          `json:"access_token"`
	StartDate   string          `json:"start_date"`
	EndDate     string          `json:"end_date"`
	Options     *requestOptions `json:"options,omitempty"`
}

type transactionsGetResponse struct {
	Accounts          []accountBase `json:"accounts"`
	Transactions      []transaction `json:"transactions"`
	TotalTransactions int           `json:"total_transactions"`
}

type investmentsTransactionsGetResponse struct {
	Accounts                    []accountBase           `json:"accounts"`
	InvestmentTransactions      []investmentTransaction `json:"investment_transactions"`
	Securities                  []security              `json:"securities"`
	TotalInvestmentTransactions int                     `json:"total_investment_transactions"`
}

type holdingsGetRequest struct {
	AccessToken string `json:"access_token"`
}

type holdingsGetResponse struct {
	Accounts   []accountBase `json:"accounts"`
	Holdings   []holding     `json:"holdings"`
	Securities []security    `json:"securities"`
}

// fetchPagedTransactions accumulates transaction pages until the reported
// total is reached. The offset is derived from items already fetched; an
// empty page before the total is reached is an error rather than a spin.
func (c *Client) fetchPagedTransactions(ctx context.Context, token string, startDate, endDate time.Time) (*transactionsGetResponse, error) {
	req := transactionsGetRequest{
		AccessToken: token,
		StartDate:   startDate.Format(dateLayout),
		EndDate:     endDate.Format(dateLayout),
	}

	var first transactionsGetResponse
	if err := c.post(ctx, "/transactions/get", req, &first); err != nil {
		return nil, err
	}

	transactions := first.Transactions
	for len(transactions) < first.TotalTransactions {
		req.Options = &requestOptions{Offset: len(transactions)}

		var page transactionsGetResponse
		if err := c.post(ctx, "/transactions/get", req, &page); err != nil {
			return nil, err
		}
		if len(page.Transactions) == 0 {
			return nil, fmt.Errorf("plaid: empty transactions page at offset %d (total %d)", len(transactions), first.TotalTransactions)
		}
		transactions = append(transactions, page.Transactions...)
	}

	first.Transactions = transactions
	return &first, nil
}

func (c *Client) fetchPagedInvestmentTransactions(ctx context.Context, token string, startDate, endDate time.Time) (*investmentsTransactionsGetResponse, error) {
	req := transactionsGetRequest{
		AccessToken: token,
		StartDate:   startDate.Format(dateLayout),
		EndDate:     endDate.Format(dateLayout),
	}

	var first investmentsTransactionsGetResponse
	if err := c.post(ctx, "/investments/transactions/get", req, &first); err != nil {
		return nil, err
	}

	transactions := first.InvestmentTransactions
	securities := first.Securities
	for len(transactions) < first.TotalInvestmentTransactions {
		req.Options = &requestOptions{Offset: len(transactions)}

		var page investmentsTransactionsGetResponse
		if err := c.post(ctx, "/investments/transactions/get", req, &page); err != nil {
			return nil, err
		}
		if len(page.InvestmentTransactions) == 0 {
			return nil, fmt.Errorf("plaid: empty investment transactions page at offset %d (total %d)", len(transactions), first.TotalInvestmentTransactions)
		}
		transactions = append(transactions, page.InvestmentTransactions...)
		securities = append(securities, page.Securities...)
	}

	first.InvestmentTransactions = transactions
	first.Securities = securities
	return &first, nil
}

func (c *Client) fetchHoldings(ctx context.Context, token string) (*holdingsGetResponse, error) {
	var resp holdingsGetResponse
	if err := c.post(ctx, "/investments/holdings/get", holdingsGetRequest{AccessToken: token}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
