package mx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintabledev/mintable/pkg/config"
	"github.com/mintabledev/mintable/pkg/models"
)

func testClient(server *httptest.Server) *Client {
	return &Client{
		cfg: config.MxConfig{
			Credentials: config.MxCredentials{ClientID: "client", APIKey: "key"},
			UserGUID:    "USR-1",
		},
		baseURL:    server.URL,
		httpClient: server.Client(),
		logger:     log.New(io.Discard),
	}
}

// mxHandler serves a fixed number of accounts and transactions with
// page-numbered pagination.
func mxHandler(t *testing.T, totalAccounts, totalTransactions int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "key", pass)
		assert.Equal(t, acceptHeader, r.Header.Get("Accept"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("records_per_page"))
		require.GreaterOrEqual(t, page, 1)
		require.Greater(t, perPage, 0)
		offset := (page - 1) * perPage

		switch r.URL.Path {
		case "/users/USR-1/accounts":
			resp := accountsResponse{
				Pagination: pagination{CurrentPage: page, PerPage: perPage, TotalEntries: totalAccounts},
			}
			for i := offset; i < totalAccounts && i < offset+perPage; i++ {
				resp.Accounts = append(resp.Accounts, account{
					GUID:            fmt.Sprintf("ACT-%d", i),
					Name:            fmt.Sprintf("Account %d", i),
					InstitutionCode: "chase",
					Type:            "CHECKING",
				})
			}
			require.NoError(t, json.NewEncoder(w).Encode(resp))

		case "/users/USR-1/transactions":
			assert.NotEmpty(t, r.URL.Query().Get("from_date"))
			assert.NotEmpty(t, r.URL.Query().Get("to_date"))
			resp := transactionsResponse{
				Pagination: pagination{CurrentPage: page, PerPage: perPage, TotalEntries: totalTransactions},
			}
			for i := offset; i < totalTransactions && i < offset+perPage; i++ {
				resp.Transactions = append(resp.Transactions, transaction{
					GUID:        fmt.Sprintf("TRN-%d", i),
					AccountGUID: "ACT-0",
					Date:        "2025-06-15",
					Description: fmt.Sprintf("purchase %d", i),
					Status:      "POSTED",
				})
			}
			require.NoError(t, json.NewEncoder(w).Encode(resp))

		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestFetchAccountPaginatesAccounts(t *testing.T) {
	// 23 accounts at 10 per page forces three account pages.
	server := httptest.NewServer(mxHandler(t, 23, 1))
	defer server.Close()

	c := testClient(server)
	accounts, err := c.FetchAccount(context.Background(), config.AccountConfig{ID: "mx"},
		time.Now().AddDate(0, -1, 0), time.Now())
	require.NoError(t, err)

	require.Len(t, accounts, 23)
	seen := make(map[string]bool)
	for _, a := range accounts {
		assert.False(t, seen[a.AccountID], "duplicate account %s", a.AccountID)
		seen[a.AccountID] = true
		assert.Equal(t, models.IntegrationMx, a.Integration)
	}
}

func TestFetchAccountCarriesTransactionsOnFirstAccount(t *testing.T) {
	server := httptest.NewServer(mxHandler(t, 2, 3))
	defer server.Close()

	c := testClient(server)
	accounts, err := c.FetchAccount(context.Background(), config.AccountConfig{ID: "mx"},
		time.Now().AddDate(0, -1, 0), time.Now())
	require.NoError(t, err)

	require.Len(t, accounts, 2)
	assert.Len(t, accounts[0].Transactions, 3)
	assert.Empty(t, accounts[1].Transactions)

	tx := accounts[0].Transactions[0]
	assert.Equal(t, "TRN-0", tx.TransactionID)
	assert.Equal(t, "ACT-0", tx.AccountID)
	assert.False(t, tx.Pending)
}

func TestFetchAccountMalformedDate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/USR-1/accounts":
			require.NoError(t, json.NewEncoder(w).Encode(accountsResponse{
				Accounts:   []account{{GUID: "ACT-0"}},
				Pagination: pagination{TotalEntries: 1},
			}))
		case "/users/USR-1/transactions":
			require.NoError(t, json.NewEncoder(w).Encode(transactionsResponse{
				Transactions: []transaction{{GUID: "TRN-0", Date: "June 15"}},
				Pagination:   pagination{TotalEntries: 1},
			}))
		}
	}))
	defer server.Close()

	c := testClient(server)
	_, err := c.FetchAccount(context.Background(), config.AccountConfig{ID: "mx"},
		time.Now().AddDate(0, -1, 0), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `parsing transaction TRN-0 date "June 15"`)
}

func TestFetchAccountEmptyPageBeforeTotal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := accountsResponse{
			Pagination: pagination{TotalEntries: 50},
		}
		if r.URL.Query().Get("page") == "1" {
			resp.Accounts = []account{{GUID: "ACT-0"}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	c := testClient(server)
	_, err := c.FetchAccount(context.Background(), config.AccountConfig{ID: "mx"},
		time.Now().AddDate(0, -1, 0), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty accounts page")
}

func TestFetchAccountErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := testClient(server)
	_, err := c.FetchAccount(context.Background(), config.AccountConfig{ID: "mx"},
		time.Now().AddDate(0, -1, 0), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
