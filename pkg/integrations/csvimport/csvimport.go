// Package csvimport reads transactions from local CSV files using a
// configured column-to-field transformer.
package csvimport

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/mintabledev/mintable/pkg/config"
	"github.com/mintabledev/mintable/pkg/models"
)

// Integration reads configured CSV files into normalized accounts.
type Integration struct {
	logger *log.Logger
}

// New returns a CSV import integration.
func New(logger *log.Logger) *Integration {
	return &Integration{logger: logger}
}

// FetchAccount reads every file matching the account's path globs and maps
// rows through the configured transformer. One normalized account is
// returned per config entry; rows outside [startDate, endDate] are
// dropped.
func (i *Integration) FetchAccount(ctx context.Context, accountConfig config.AccountConfig, startDate, endDate time.Time) ([]models.Account, error) {
	if len(accountConfig.Transformer) == 0 {
		return nil, fmt.Errorf("csv-import %s: no transformer configured", accountConfig.ID)
	}
	dateFormat := accountConfig.DateFormat
	if dateFormat == "" {
		dateFormat = "2006-01-02"
	}

	account := models.Account{
		Integration: models.IntegrationCSVImport,
		AccountType: accountConfig.Type,
		AccountID:   accountConfig.ID,
		Account:     accountConfig.ID,
	}

	for _, pattern := range accountConfig.Paths {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("csv-import %s: bad path pattern %q: %w", accountConfig.ID, pattern, err)
		}
		if len(matches) == 0 {
			i.logger.Warn("no files matched import path", "account", accountConfig.ID, "pattern", pattern)
		}

		for _, path := range matches {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			transactions, err := i.parseFile(path, accountConfig, dateFormat)
			if err != nil {
				return nil, err
			}
			for _, tx := range transactions {
				if tx.Date.Before(startDate) || tx.Date.After(endDate) {
					continue
				}
				account.Transactions = append(account.Transactions, tx)
			}
		}
	}

	i.logger.Info("imported csv transactions", "account", accountConfig.ID,
		"transactions", len(account.Transactions))
	return []models.Account{account}, nil
}

func (i *Integration) parseFile(path string, accountConfig config.AccountConfig, dateFormat string) ([]models.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv-import %s: %w", accountConfig.ID, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv-import %s: reading %s: %w", accountConfig.ID, path, err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	// Column indices for the transformer's input columns.
	header := records[0]
	indices := make(map[string]int, len(header))
	for idx, name := range header {
		indices[strings.TrimSpace(name)] = idx
	}

	var transactions []models.Transaction
	for rowNum, record := range records[1:] {
		tx := models.Transaction{
			Integration: models.IntegrationCSVImport,
			AccountID:   accountConfig.ID,
			Account:     accountConfig.ID,
		}

		for column, field := range accountConfig.Transformer {
			idx, ok := indices[column]
			if !ok || idx >= len(record) {
				continue
			}
			value := strings.TrimSpace(record[idx])
			if err := setField(&tx, field, value, dateFormat); err != nil {
				return nil, fmt.Errorf("csv-import %s: %s row %d: %w", accountConfig.ID, filepath.Base(path), rowNum+2, err)
			}
		}

		if accountConfig.NegateValues {
			tx.Amount = tx.Amount.Neg()
		}
		if tx.TransactionID == "" {
			tx.TransactionID = transactionID(tx.Date, tx.Name, tx.Amount, rowNum)
		}
		transactions = append(transactions, tx)
	}
	return transactions, nil
}

func setField(tx *models.Transaction, field, value, dateFormat string) error {
	switch field {
	case "date":
		date, err := time.Parse(dateFormat, value)
		if err != nil {
			return fmt.Errorf("parsing date %q: %w", value, err)
		}
		tx.Date = date
	case "amount":
		amount, err := decimal.NewFromString(strings.ReplaceAll(value, ",", ""))
		if err != nil {
			return fmt.Errorf("parsing amount %q: %w", value, err)
		}
		tx.Amount = amount
	case "name":
		tx.Name = value
	case "category":
		tx.Category = value
	case "type":
		tx.Type = value
	case "currency":
		tx.Currency = value
	case "pending":
		tx.Pending = strings.EqualFold(value, "true") || strings.EqualFold(value, "pending")
	case "accountId":
		tx.AccountID = value
	case "transactionId":
		tx.TransactionID = value
	case "institution":
		tx.Institution = value
	case "account":
		tx.Account = value
	default:
		return fmt.Errorf("unknown transformer field %q", field)
	}
	return nil
}

// transactionID derives a stable id from the row contents so re-imports of
// the same file produce the same ids.
func transactionID(date time.Time, name string, amount decimal.Decimal, row int) string {
	input := fmt.Sprintf("%s|%s|%s|%s",
		date.Format("2006-01-02"),
		strings.ToLower(strings.TrimSpace(name)),
		amount.String(),
		strconv.Itoa(row))
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", hash)[:16]
}
