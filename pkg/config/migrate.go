package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// legacyConfig is the old JSON layout, where accounts were keyed by id
// instead of listed.
type legacyConfig struct {
	Integrations           IntegrationsConfig          `json:"integrations"`
	Accounts               map[string]AccountConfig    `json:"accounts"`
	Balances               BalanceConfig               `json:"balances"`
	Transactions           TransactionConfig           `json:"transactions"`
	InvestmentTransactions InvestmentTransactionConfig `json:"investmentTransactions"`
	Holdings               HoldingConfig               `json:"holdings"`
}

// MigrateLegacy converts an old JSON config into the current layout.
// Account entries keep their map key as the id when the entry itself has
// none; the resulting list is ordered by id for stable output.
func MigrateLegacy(data []byte) (*Config, error) {
	var legacy legacyConfig
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("parsing legacy config: %w", err)
	}

	cfg := Config{
		Integrations:           legacy.Integrations,
		Balances:               legacy.Balances,
		Transactions:           legacy.Transactions,
		InvestmentTransactions: legacy.InvestmentTransactions,
		Holdings:               legacy.Holdings,
	}

	ids := make([]string, 0, len(legacy.Accounts))
	for id := range legacy.Accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		account := legacy.Accounts[id]
		if account.ID == "" {
			account.ID = id
		}
		cfg.Accounts = append(cfg.Accounts, account)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// MigrateFile reads a legacy JSON config and writes it back in the current
// format at outPath.
func MigrateFile(legacyPath, outPath string) (*Config, error) {
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		return nil, fmt.Errorf("reading legacy config: %w", err)
	}
	cfg, err := MigrateLegacy(data)
	if err != nil {
		return nil, err
	}
	if err := Save(outPath, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
