package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mintabledev/mintable/pkg/models"
)

// Config is the top-level mintable configuration. It is read once per CLI
// invocation; setup flows return an updated copy which the caller persists
// with Save.
type Config struct {
	Integrations IntegrationsConfig `yaml:"integrations" mapstructure:"integrations"`
	Accounts     []AccountConfig    `yaml:"accounts" mapstructure:"accounts"`

	Balances               BalanceConfig               `yaml:"balances" mapstructure:"balances"`
	Transactions           TransactionConfig           `yaml:"transactions" mapstructure:"transactions"`
	InvestmentTransactions InvestmentTransactionConfig `yaml:"investmentTransactions" mapstructure:"investmentTransactions"`
	Holdings               HoldingConfig               `yaml:"holdings" mapstructure:"holdings"`
}

// IntegrationsConfig holds per-provider credentials and settings. A nil
// entry means the integration is not configured.
type IntegrationsConfig struct {
	Plaid     *PlaidConfig     `yaml:"plaid,omitempty" mapstructure:"plaid"`
	Mx        *MxConfig        `yaml:"mx,omitempty" mapstructure:"mx"`
	Finicity  *FinicityConfig  `yaml:"finicity,omitempty" mapstructure:"finicity"`
	Google    *GoogleConfig    `yaml:"google,omitempty" mapstructure:"google"`
	CSVExport *CSVExportConfig `yaml:"csv-export,omitempty" mapstructure:"csv-export"`
}

type PlaidCredentials struct {
	ClientID string `yaml:"clientId" mapstructure:"clientId"`
	Secret   string `yaml:"secret" mapstructure:"secret"`
}

type PlaidConfig struct {
	// "sandbox", "development" or "production".
	Environment string           `yaml:"environment" mapstructure:"environment"`
	Credentials PlaidCredentials `yaml:"credentials" mapstructure:"credentials"`
}

type MxCredentials struct {
	ClientID string `yaml:"clientId" mapstructure:"clientId"`
	APIKey   string `yaml:"apiKey" mapstructure:"apiKey"`
}

type MxConfig struct {
	// "development" or "production".
	Environment string        `yaml:"environment" mapstructure:"environment"`
	Credentials MxCredentials `yaml:"credentials" mapstructure:"credentials"`
	UserGUID    string        `yaml:"userGuid" mapstructure:"userGuid"`
}

type FinicityCredentials struct {
	PartnerID string `yaml:"partnerId" mapstructure:"partnerId"`
	AppKey    string `yaml:"appKey" mapstructure:"appKey"`
	Secret    string `yaml:"secret" mapstructure:"secret"`
}

type FinicityConfig struct {
	Environment string              `yaml:"environment" mapstructure:"environment"`
	Credentials FinicityCredentials `yaml:"credentials" mapstructure:"credentials"`
	CustomerID  string              `yaml:"customerId" mapstructure:"customerId"`
}

type GoogleCredentials struct {
	ClientID     string `yaml:"clientId" mapstructure:"clientId"`
	ClientSecret string `yaml:"clientSecret" mapstructure:"clientSecret"`
	RedirectURI  string `yaml:"redirectUri" mapstructure:"redirectUri"`
	AccessToken  string `yaml:"accessToken" mapstructure:"accessToken"`
	RefreshToken string `yaml:"refreshToken" mapstructure:"refreshToken"`
}

// TemplateConfig names a pre-formatted tab cloned when creating new
// monthly or account tabs.
type TemplateConfig struct {
	SheetTitle string `yaml:"sheetTitle" mapstructure:"sheetTitle"`
	DocumentID string `yaml:"documentId" mapstructure:"documentId"`
}

type GoogleConfig struct {
	Credentials GoogleCredentials `yaml:"credentials" mapstructure:"credentials"`

	// One or more spreadsheet document IDs. The first is the primary
	// (transactions + balances); the second, when present, receives
	// investment transactions and holdings.
	DocumentIDs []string `yaml:"documentIds" mapstructure:"documentIds"`

	// Go time layouts. Defaults: "2006.01.02" for date cells,
	// "2006.01" for monthly tab titles.
	DateFormat  string `yaml:"dateFormat,omitempty" mapstructure:"dateFormat"`
	MonthFormat string `yaml:"monthFormat,omitempty" mapstructure:"monthFormat"`

	Template *TemplateConfig `yaml:"template,omitempty" mapstructure:"template"`

	// Post-sync maintenance: reorder tabs newest-first and re-apply
	// header formatting.
	SortSheets   bool `yaml:"sortSheets,omitempty" mapstructure:"sortSheets"`
	FormatSheets bool `yaml:"formatSheets,omitempty" mapstructure:"formatSheets"`
}

type CSVExportConfig struct {
	Directory string `yaml:"directory" mapstructure:"directory"`

	// Go time layouts. Defaults: "2006-01-02" for date cells, "2006.01"
	// for monthly file names.
	DateFormat  string `yaml:"dateFormat,omitempty" mapstructure:"dateFormat"`
	MonthFormat string `yaml:"monthFormat,omitempty" mapstructure:"monthFormat"`
}

// AccountConfig describes one account entry. Provider-specific fields are
// flattened; only the fields relevant to the configured integration are set.
type AccountConfig struct {
	ID          string               `yaml:"id" mapstructure:"id"`
	Integration models.IntegrationID `yaml:"integration" mapstructure:"integration"`
	Type        models.AccountType   `yaml:"type,omitempty" mapstructure:"type"`

	// Plaid: per-item access token.
	Token string `yaml:"token,omitempty" mapstructure:"token"`

	// CSV import.
	Paths        []string          `yaml:"paths,omitempty" mapstructure:"paths"`
	Transformer  map[string]string `yaml:"transformer,omitempty" mapstructure:"transformer"`
	DateFormat   string            `yaml:"dateFormat,omitempty" mapstructure:"dateFormat"`
	NegateValues bool              `yaml:"negateValues,omitempty" mapstructure:"negateValues"`
}

type BalanceConfig struct {
	Integration models.IntegrationID `yaml:"integration" mapstructure:"integration"`
	Properties  []string             `yaml:"properties,omitempty" mapstructure:"properties"`
}

type TransactionConfig struct {
	Integration models.IntegrationID `yaml:"integration" mapstructure:"integration"`
	Properties  []string             `yaml:"properties,omitempty" mapstructure:"properties"`

	// ISO dates (2006-01-02). Empty start defaults to the beginning of
	// the month two months back; empty end defaults to today.
	StartDate string `yaml:"startDate,omitempty" mapstructure:"startDate"`
	EndDate   string `yaml:"endDate,omitempty" mapstructure:"endDate"`
}

type InvestmentTransactionConfig struct {
	Properties []string `yaml:"properties,omitempty" mapstructure:"properties"`
}

type HoldingConfig struct {
	Properties []string `yaml:"properties,omitempty" mapstructure:"properties"`
}

// Default column selections, matching the property names emitted by the
// model Row projections.
var (
	DefaultBalanceProperties = []string{
		"institution", "account", "type", "current", "available", "limit", "currency",
	}
	DefaultTransactionProperties = []string{
		"date", "amount", "name", "account", "institution", "category", "pending",
	}
	DefaultInvestmentTransactionProperties = []string{
		"date", "amount", "name", "quantity", "price", "fees", "ticker", "type",
	}
	DefaultHoldingProperties = []string{
		"institution", "account", "ticker", "securityName", "quantity",
		"institutionPrice", "institutionValue", "costBasis",
	}
)

// Load reads the configuration. When path is empty it searches for a file
// named "mintable" (yaml or json) in the working directory and
// ~/.mintable. Credential fields may reference environment variables with
// $VAR / ${VAR} syntax.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mintable")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".mintable"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Decode the located file directly: viper lowercases map keys, which
	// would mangle case-sensitive transformer column names.
	data, err := os.ReadFile(v.ConfigFileUsed())
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", v.ConfigFileUsed(), err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", v.ConfigFileUsed(), err)
	}

	cfg.applyDefaults()
	cfg.expandEnv()
	return &cfg, nil
}

// Save writes the configuration as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a config scaffold for a fresh setup.
func Default() *Config {
	return &Config{
		Integrations: IntegrationsConfig{
			CSVExport: &CSVExportConfig{Directory: "export"},
		},
		Balances: BalanceConfig{
			Integration: models.IntegrationCSVExport,
			Properties:  DefaultBalanceProperties,
		},
		Transactions: TransactionConfig{
			Integration: models.IntegrationCSVExport,
			Properties:  DefaultTransactionProperties,
		},
		InvestmentTransactions: InvestmentTransactionConfig{
			Properties: DefaultInvestmentTransactionProperties,
		},
		Holdings: HoldingConfig{Properties: DefaultHoldingProperties},
	}
}

func (c *Config) applyDefaults() {
	if len(c.Balances.Properties) == 0 {
		c.Balances.Properties = DefaultBalanceProperties
	}
	if len(c.Transactions.Properties) == 0 {
		c.Transactions.Properties = DefaultTransactionProperties
	}
	if len(c.InvestmentTransactions.Properties) == 0 {
		c.InvestmentTransactions.Properties = DefaultInvestmentTransactionProperties
	}
	if len(c.Holdings.Properties) == 0 {
		c.Holdings.Properties = DefaultHoldingProperties
	}
	for i := range c.Accounts {
		if c.Accounts[i].Type == "" {
			c.Accounts[i].Type = models.AccountTypeTransactional
		}
	}
	if g := c.Integrations.Google; g != nil {
		if g.DateFormat == "" {
			g.DateFormat = "2006.01.02"
		}
		if g.MonthFormat == "" {
			g.MonthFormat = "2006.01"
		}
	}
	if e := c.Integrations.CSVExport; e != nil {
		if e.DateFormat == "" {
			e.DateFormat = "2006-01-02"
		}
		if e.MonthFormat == "" {
			e.MonthFormat = "2006.01"
		}
	}
}

func (c *Config) expandEnv() {
	if p := c.Integrations.Plaid; p != nil {
		p.Credentials.ClientID = os.ExpandEnv(p.Credentials.ClientID)
		p.Credentials.Secret = os.ExpandEnv(p.Credentials.Secret)
	}
	if m := c.Integrations.Mx; m != nil {
		m.Credentials.ClientID = os.ExpandEnv(m.Credentials.ClientID)
		m.Credentials.APIKey = os.ExpandEnv(m.Credentials.APIKey)
	}
	if f := c.Integrations.Finicity; f != nil {
		f.Credentials.PartnerID = os.ExpandEnv(f.Credentials.PartnerID)
		f.Credentials.AppKey = os.ExpandEnv(f.Credentials.AppKey)
		f.Credentials.Secret = os.ExpandEnv(f.Credentials.Secret)
	}
	if g := c.Integrations.Google; g != nil {
		g.Credentials.ClientID = os.ExpandEnv(g.Credentials.ClientID)
		g.Credentials.ClientSecret = os.ExpandEnv(g.Credentials.ClientSecret)
		g.Credentials.AccessToken = os.ExpandEnv(g.Credentials.AccessToken)
		g.Credentials.RefreshToken = os.ExpandEnv(g.Credentials.RefreshToken)
	}
	for i := range c.Accounts {
		c.Accounts[i].Token = os.ExpandEnv(c.Accounts[i].Token)
	}
}
