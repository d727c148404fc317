// Package finicity is a thin REST client for the Finicity aggregation
// API. Requests authenticate with a partner token obtained once per run.
package finicity

import (
	"bytes"
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
	productionURL = "https://api.finicity.com"

	authenticationPath = "/aggregation/v2/partners/authentication"
	customersPath      = "/aggregation/v1/customers"
	transactionsPath   = "/aggregation/v4/customers"

	transactionsPerPage = 1000
)

// Client talks to the Finicity API for one configured integration.
type Client struct {
	cfg        config.FinicityConfig
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger

	appToken string
}

// New builds a Client. The partner token is fetched lazily on first use.
func New(cfg *config.FinicityConfig, logger *log.Logger) *Client {
	return &Client{
		cfg:        *cfg,
		baseURL:    productionURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Finicity-App-Key", c.cfg.Credentials.AppKey)
	if c.appToken != "" {
		req.Header.Set("Finicity-App-Token", c.appToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("finicity: %s returned status %d", path, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding %s response: %w", path, err)
		}
	}
	return nil
}

type authenticationRequest struct {
	PartnerID     string `json:"partnerId"`
	PartnerSecret string `json:"partnerSecret"`
}

type authenticationResponse struct {
	Token string `json:"token"`
}

// authenticate exchanges partner credentials for an app token. Tokens are
// valid well past the length of a fetch run, so one per run is enough.
func (c *Client) authenticate(ctx context.Context) error {
	if c.appToken != "" {
		return nil
	}

	var resp authenticationResponse
	err := c.do(ctx, http.MethodPost, authenticationPath, nil, authenticationRequest{
		PartnerID:     c.cfg.Credentials.PartnerID,
		PartnerSecret: c.cfg.Credentials.Secret,
	}, &resp)
	if err != nil {
		return fmt.Errorf("finicity authentication: %w", err)
	}
	if resp.Token == "" {
		return fmt.Errorf("finicity authentication: empty token")
	}

	c.appToken = resp.Token
	return nil
}

type account struct {
	ID                   string              `json:"id"`
	AccountNumberDisplay string              `json:"accountNumberDisplay"`
	Name                 string              `json:"name"`
	Type                 string              `json:"type"`
	Balance              decimal.NullDecimal `json:"balance"`
	InstitutionID        string              `json:"institutionId"`
	Currency             string              `json:"currency"`
}

type accountsResponse struct {
	Accounts []account `json:"accounts"`
}

type categorization struct {
	Category string `json:"category"`
}

type transaction struct {
	ID             int64           `json:"id"`
	AccountID      int64           `json:"accountId"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	PostedDate     int64           `json:"postedDate"`
	Status         string          `json:"status"`
	Type           string          `json:"type"`
	Categorization categorization  `json:"categorization"`
}

type transactionsResponse struct {
	Found        int           `json:"found"`
	Displaying   int           `json:"displaying"`
	Transactions []transaction `json:"transactions"`
}

// fetchPagedTransactions walks the start/limit-indexed transaction listing
// for one account until the reported found count is accumulated.
func (c *Client) fetchPagedTransactions(ctx context.Context, accountID string, startDate, endDate time.Time) ([]transaction, error) {
	path := fmt.Sprintf("%s/%s/accounts/%s/transactions", transactionsPath, c.cfg.CustomerID, accountID)

	query := url.Values{
		"fromDate": {strconv.FormatInt(startDate.Unix(), 10)},
		"toDate":   {strconv.FormatInt(endDate.Unix(), 10)},
		"start":    {"1"},
		"limit":    {strconv.Itoa(transactionsPerPage)},
	}

	var first transactionsResponse
	if err := c.do(ctx, http.MethodGet, path, query, nil, &first); err != nil {
		return nil, err
	}

	transactions := first.Transactions
	for len(transactions) < first.Found {
		query.Set("start", strconv.Itoa(len(transactions)+1))

		var next transactionsResponse
		if err := c.do(ctx, http.MethodGet, path, query, nil, &next); err != nil {
			return nil, err
		}
		if len(next.Transactions) == 0 {
			return nil, fmt.Errorf("finicity: empty transactions page at start %d (found %d)", len(transactions)+1, first.Found)
		}
		transactions = append(transactions, next.Transactions...)
	}
	return transactions, nil
}

// FetchAccount returns every account under the configured customer with
// the date range's transactions.
func (c *Client) FetchAccount(ctx context.Context, accountConfig config.AccountConfig, startDate, endDate time.Time) ([]models.Account, error) {
	if err := c.authenticate(ctx); err != nil {
		return nil, err
	}

	var listed accountsResponse
	path := customersPath + "/" + c.cfg.CustomerID + "/accounts"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &listed); err != nil {
		return nil, err
	}

	accounts := make([]models.Account, 0, len(listed.Accounts))
	total := 0
	for _, a := range listed.Accounts {
		mapped := models.Account{
			Integration: models.IntegrationFinicity,
			AccountType: accountConfig.Type,
			AccountID:   a.ID,
			Mask:        a.AccountNumberDisplay,
			Institution: a.InstitutionID,
			Account:     a.Name,
			Type:        a.Type,
			Current:     a.Balance,
			Currency:    a.Currency,
		}

		rawTransactions, err := c.fetchPagedTransactions(ctx, a.ID, startDate, endDate)
		if err != nil {
			return nil, err
		}
		for _, tx := range rawTransactions {
			mapped.Transactions = append(mapped.Transactions, models.Transaction{
				Integration:   models.IntegrationFinicity,
				TransactionID: strconv.FormatInt(tx.ID, 10),
				AccountID:     strconv.FormatInt(tx.AccountID, 10),
				Date:          time.Unix(tx.PostedDate, 0).UTC(),
				Amount:        tx.Amount,
				Name:          tx.Description,
				Category:      tx.Categorization.Category,
				Type:          tx.Type,
				Pending:       tx.Status == "pending",
				Institution:   mapped.Institution,
				Account:       mapped.Account,
			})
		}
		total += len(mapped.Transactions)
		accounts = append(accounts, mapped)
	}

	c.logger.Info("fetched finicity accounts", "account", accountConfig.ID,
		"subAccounts", len(accounts), "transactions", total)
	return accounts, nil
}
