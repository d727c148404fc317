package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintabledev/mintable/pkg/models"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mintable.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
integrations:
  plaid:
    environment: sandbox
    credentials:
      clientId: plaid-client
      secret: plaid-secret
  google:
    credentials:
      clientId: google-client
    documentIds:
      - doc-1
accounts:
  - id: checking
    integration: plaid
    token: access-token
  - id: old-card
    integration: plaid
    type: disabled
balances:
  integration: google
transactions:
  integration: google
  startDate: "2025-01-01"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.Integrations.Plaid)
	assert.Equal(t, "sandbox", cfg.Integrations.Plaid.Environment)
	assert.Equal(t, "plaid-client", cfg.Integrations.Plaid.Credentials.ClientID)

	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, models.IntegrationPlaid, cfg.Accounts[0].Integration)
	// Untyped accounts default to transactional.
	assert.Equal(t, models.AccountTypeTransactional, cfg.Accounts[0].Type)
	assert.Equal(t, models.AccountTypeDisabled, cfg.Accounts[1].Type)

	assert.Equal(t, models.IntegrationGoogle, cfg.Balances.Integration)
	assert.Equal(t, "2025-01-01", cfg.Transactions.StartDate)

	// Defaults fill in unset properties and google formats.
	assert.Equal(t, DefaultBalanceProperties, cfg.Balances.Properties)
	assert.Equal(t, DefaultTransactionProperties, cfg.Transactions.Properties)
	assert.Equal(t, "2006.01.02", cfg.Integrations.Google.DateFormat)
	assert.Equal(t, "2006.01", cfg.Integrations.Google.MonthFormat)
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("PLAID_SECRET", "from-env")
	t.Setenv("PLAID_TOKEN", "token-from-env")

	path := writeConfig(t, `
integrations:
  plaid:
    credentials:
      clientId: plaid-client
      secret: $PLAID_SECRET
accounts:
  - id: checking
    integration: plaid
    token: ${PLAID_TOKEN}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Integrations.Plaid.Credentials.Secret)
	assert.Equal(t, "token-from-env", cfg.Accounts[0].Token)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mintable.yaml")

	original := Default()
	original.Accounts = []AccountConfig{{
		ID:          "bank",
		Integration: models.IntegrationCSVImport,
		Type:        models.AccountTypeTransactional,
		Paths:       []string{"statements/*.csv"},
		Transformer: map[string]string{"Amount": "amount", "Date": "date"},
	}}
	require.NoError(t, Save(path, original))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original.Balances, loaded.Balances)
	assert.Equal(t, original.Transactions, loaded.Transactions)
	require.Len(t, loaded.Accounts, 1)
	assert.Equal(t, original.Accounts[0], loaded.Accounts[0])
}

func TestMigrateLegacy(t *testing.T) {
	legacy := []byte(`{
  "integrations": {
    "plaid": {
      "environment": "sandbox",
      "credentials": {"clientId": "plaid-client", "secret": "plaid-secret"}
    }
  },
  "accounts": {
    "savings": {"integration": "plaid", "token": "token-b"},
    "checking": {"integration": "plaid", "token": "token-a"}
  },
  "balances": {"integration": "csv-export"},
  "transactions": {"integration": "csv-export"}
}`)

	cfg, err := MigrateLegacy(legacy)
	require.NoError(t, err)

	// Map keys become ids, ordered for stable output.
	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, "checking", cfg.Accounts[0].ID)
	assert.Equal(t, "token-a", cfg.Accounts[0].Token)
	assert.Equal(t, "savings", cfg.Accounts[1].ID)

	assert.Equal(t, models.AccountTypeTransactional, cfg.Accounts[0].Type)
	assert.Equal(t, models.IntegrationCSVExport, cfg.Balances.Integration)
	assert.Equal(t, DefaultBalanceProperties, cfg.Balances.Properties)
}

func TestMigrateLegacyBadJSON(t *testing.T) {
	_, err := MigrateLegacy([]byte("not json"))
	require.Error(t, err)
}

func TestMigrateFile(t *testing.T) {
	dir := t.TempDir()
	legacyPath := filepath.Join(dir, "mintable.json")
	outPath := filepath.Join(dir, "mintable.yaml")
	require.NoError(t, os.WriteFile(legacyPath, []byte(`{
  "accounts": {"checking": {"integration": "plaid", "token": "token-a"}}
}`), 0o600))

	cfg, err := MigrateFile(legacyPath, outPath)
	require.NoError(t, err)
	require.Len(t, cfg.Accounts, 1)

	loaded, err := Load(outPath)
	require.NoError(t, err)
	assert.Equal(t, "checking", loaded.Accounts[0].ID)
	assert.Equal(t, "token-a", loaded.Accounts[0].Token)
}
