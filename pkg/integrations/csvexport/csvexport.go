// Package csvexport writes normalized accounts to local CSV files, one
// balances file and one transactions file per calendar month.
package csvexport

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mintabledev/mintable/pkg/config"
	"github.com/mintabledev/mintable/pkg/models"
)

// Integration exports accounts to the configured directory.
type Integration struct {
	cfg       *config.Config
	exportCfg *config.CSVExportConfig
	logger    *log.Logger
}

// New returns a CSV export integration.
func New(cfg *config.Config, logger *log.Logger) (*Integration, error) {
	exportCfg := cfg.Integrations.CSVExport
	if exportCfg == nil {
		return nil, fmt.Errorf("csv-export integration is not configured")
	}
	if exportCfg.Directory == "" {
		return nil, fmt.Errorf("csv-export integration has no directory")
	}
	if exportCfg.DateFormat == "" {
		exportCfg.DateFormat = "2006-01-02"
	}
	if exportCfg.MonthFormat == "" {
		exportCfg.MonthFormat = "2006.01"
	}
	return &Integration{cfg: cfg, exportCfg: exportCfg, logger: logger}, nil
}

func (e *Integration) cellString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format(e.exportCfg.DateFormat)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func (e *Integration) writeFile(name string, columns []string, rows []map[string]any) error {
	if err := os.MkdirAll(e.exportCfg.Directory, 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	path := filepath.Join(e.exportCfg.Directory, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("writing %s header: %w", path, err)
	}
	for _, row := range rows {
		record := make([]string, len(columns))
		for i, column := range columns {
			record[i] = e.cellString(row[column])
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}

	e.logger.Info("wrote export file", "path", path, "rows", len(rows))
	return nil
}

// UpdateBalances writes one balances.csv snapshot.
func (e *Integration) UpdateBalances(accounts []models.Account) error {
	rows := make([]map[string]any, 0, len(accounts))
	for _, account := range accounts {
		rows = append(rows, account.Row())
	}
	return e.writeFile("balances.csv", e.cfg.Balances.Properties, rows)
}

// UpdateTransactions writes one <month>.csv per calendar month, rows
// sorted by date ascending.
func (e *Integration) UpdateTransactions(accounts []models.Account) error {
	var transactions []models.Transaction
	for _, account := range accounts {
		if account.AccountType == models.AccountTypeDisabled {
			continue
		}
		transactions = append(transactions, account.Transactions...)
	}
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].Date.Before(transactions[j].Date)
	})

	buckets := make(map[time.Time][]map[string]any)
	var months []time.Time
	for _, tx := range transactions {
		month := time.Date(tx.Date.Year(), tx.Date.Month(), 1, 0, 0, 0, 0, time.UTC)
		if _, ok := buckets[month]; !ok {
			months = append(months, month)
		}
		buckets[month] = append(buckets[month], tx.Row())
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	for _, month := range months {
		name := month.Format(e.exportCfg.MonthFormat) + ".csv"
		if err := e.writeFile(name, e.cfg.Transactions.Properties, buckets[month]); err != nil {
			return err
		}
	}
	return nil
}
