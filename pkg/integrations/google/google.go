// Package google syncs normalized accounts into a Google Sheets document.
// Tab sync is full-overwrite: the written range exactly reflects the input
// rows. Balance history is the one append-only surface.
package google

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	googleauth "golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/mintabledev/mintable/pkg/config"
	"github.com/mintabledev/mintable/pkg/models"
)

const (
	balancesSheetTitle    = "Balances"
	historySheetTitle     = "History"
	investmentsSheetTitle = "Investments"

	// Rows 1-2 of the history sheet are reserved for the account id
	// header and a legacy name row.
	historyRowOffset = 3

	historyDateLayout = "01/02/2006"
)

// Client writes normalized accounts into the configured spreadsheet
// document(s).
type Client struct {
	cfg       *config.Config
	googleCfg *config.GoogleConfig
	backend   backend
	logger    *log.Logger
	now       func() time.Time
}

// New builds a Client backed by the Sheets v4 API, authenticating with the
// stored OAuth2 refresh token.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Client, error) {
	googleCfg := cfg.Integrations.Google
	if googleCfg == nil {
		return nil, fmt.Errorf("google integration is not configured")
	}
	if len(googleCfg.DocumentIDs) == 0 {
		return nil, fmt.Errorf("google integration has no document ids")
	}

	oauthCfg := &oauth2.Config{
		ClientID:     googleCfg.Credentials.ClientID,
		ClientSecret: googleCfg.Credentials.ClientSecret,
		RedirectURL:  googleCfg.Credentials.RedirectURI,
		Endpoint:     googleauth.Endpoint,
		Scopes:       []string{sheets.SpreadsheetsScope},
	}
	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{
		AccessToken:  googleCfg.Credentials.AccessToken,
		RefreshToken: googleCfg.Credentials.RefreshToken,
		TokenType:    "Bearer",
	})

	service, err := sheets.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("building sheets service: %w", err)
	}

	return &Client{
		cfg:       cfg,
		googleCfg: googleCfg,
		backend:   &sheetsBackend{service: service},
		logger:    logger,
		now:       time.Now,
	}, nil
}

// newWithBackend wires a Client to an arbitrary backend and clock.
func newWithBackend(cfg *config.Config, b backend, logger *log.Logger, now func() time.Time) *Client {
	return &Client{
		cfg:       cfg,
		googleCfg: cfg.Integrations.Google,
		backend:   b,
		logger:    logger,
		now:       now,
	}
}

func (c *Client) primaryDocumentID() string {
	return c.googleCfg.DocumentIDs[0]
}

// investmentDocumentID returns the secondary document when configured,
// falling back to the primary.
func (c *Client) investmentDocumentID() string {
	if len(c.googleCfg.DocumentIDs) > 1 {
		return c.googleCfg.DocumentIDs[1]
	}
	return c.googleCfg.DocumentIDs[0]
}

// ensureSheet creates the titled tab when absent, cloning the configured
// template when requested.
func (c *Client) ensureSheet(ctx context.Context, documentID, title string, useTemplate bool) error {
	titles, err := c.backend.SheetTitles(ctx, documentID)
	if err != nil {
		return err
	}
	for _, t := range titles {
		if t == title {
			return nil
		}
	}

	template := c.googleCfg.Template
	if useTemplate && template != nil {
		sourceDocumentID := template.DocumentID
		if sourceDocumentID == "" {
			sourceDocumentID = documentID
		}
		copiedTitle, err := c.backend.CopySheet(ctx, sourceDocumentID, template.SheetTitle, documentID)
		if err != nil {
			return err
		}
		if err := c.backend.RenameSheet(ctx, documentID, copiedTitle, title); err != nil {
			return err
		}
		c.logger.Info("created sheet from template", "sheet", title, "template", template.SheetTitle)
		return nil
	}

	if err := c.backend.AddSheet(ctx, documentID, title); err != nil {
		return err
	}
	c.logger.Info("created sheet", "sheet", title)
	return nil
}

// rowValues projects a row map onto the column order, substituting the
// empty cell for missing fields and formatting date columns with the
// configured layout.
func (c *Client) rowValues(row map[string]any, columns []string) []any {
	values := make([]any, len(columns))
	for i, column := range columns {
		value, ok := row[column]
		if !ok || value == nil {
			values[i] = ""
			continue
		}
		if column == "date" {
			if date, isTime := value.(time.Time); isTime {
				values[i] = date.Format(c.googleCfg.DateFormat)
				continue
			}
		}
		values[i] = value
	}
	return values
}

// UpdateSheet overwrites the titled tab with a header row plus one row per
// entry. The previous contents of the written columns (or the whole sheet)
// are cleared first, so a shrinking dataset leaves no stale trailing rows.
func (c *Client) UpdateSheet(ctx context.Context, title string, rows []map[string]any, columns []string, useTemplate, clearEntireSheet bool, documentID string) error {
	if documentID == "" {
		documentID = c.primaryDocumentID()
	}

	if err := c.ensureSheet(ctx, documentID, title, useTemplate); err != nil {
		return err
	}

	if len(columns) == 0 {
		if len(rows) == 0 {
			return fmt.Errorf("updating sheet %q: no rows and no columns", title)
		}
		for key := range rows[0] {
			columns = append(columns, key)
		}
		sort.Strings(columns)
	}

	endLetter := ColumnLetter(len(columns) - 1)

	clearRange := fmt.Sprintf("%s!A1:%s", title, endLetter)
	if clearEntireSheet {
		clearRange = title
	}
	if err := c.backend.ClearRanges(ctx, documentID, []string{clearRange}); err != nil {
		return err
	}

	data := make([][]any, 0, len(rows)+1)
	header := make([]any, len(columns))
	for i, column := range columns {
		header[i] = column
	}
	data = append(data, header)
	for _, row := range rows {
		data = append(data, c.rowValues(row, columns))
	}

	writeRange := fmt.Sprintf("%s!A1:%s%d", title, endLetter, len(rows)+1)
	if err := c.backend.UpdateRanges(ctx, documentID, []ValueRange{{Range: writeRange, Values: data}}); err != nil {
		return err
	}

	c.logger.Info("updated sheet", "sheet", title, "rows", len(rows), "columns", len(columns))
	return nil
}

// BalanceHistory appends one row of current balances per calendar day.
// Columns grow to accommodate new accounts and never shrink; a second
// invocation on the same day is a no-op.
func (c *Client) BalanceHistory(ctx context.Context, title string, accounts []models.Account) error {
	documentID := c.primaryDocumentID()
	today := c.now().Format(historyDateLayout)

	titles, err := c.backend.SheetTitles(ctx, documentID)
	if err != nil {
		return err
	}
	exists := false
	for _, t := range titles {
		if t == title {
			exists = true
			break
		}
	}
	if !exists {
		if err := c.ensureSheet(ctx, documentID, title, false); err != nil {
			return err
		}
		err := c.backend.UpdateRanges(ctx, documentID, []ValueRange{
			{Range: title + "!A1", Values: [][]any{{"Date"}}},
		})
		if err != nil {
			return err
		}
	}

	// At most one snapshot per calendar day.
	dateColumn, err := c.backend.GetValues(ctx, documentID, title+"!A:A")
	if err != nil {
		return err
	}
	if len(dateColumn) > 0 {
		lastRow := dateColumn[len(dateColumn)-1]
		if len(lastRow) > 0 && fmt.Sprint(lastRow[0]) == today {
			c.logger.Info("balance history already recorded today", "sheet", title)
			return nil
		}
	}

	headerRows, err := c.backend.GetValues(ctx, documentID, title+"!1:1")
	if err != nil {
		return err
	}
	header := []any{"Date"}
	if len(headerRows) > 0 && len(headerRows[0]) > 0 {
		header = headerRows[0]
	}

	known := make(map[string]bool, len(header))
	for _, cell := range header {
		known[fmt.Sprint(cell)] = true
	}

	var missing []any
	for _, account := range accounts {
		if !known[account.AccountID] {
			missing = append(missing, account.AccountID)
			known[account.AccountID] = true
		}
	}
	if len(missing) > 0 {
		start := ColumnLetter(len(header))
		end := ColumnLetter(len(header) + len(missing) - 1)
		err := c.backend.UpdateRanges(ctx, documentID, []ValueRange{
			{Range: fmt.Sprintf("%s!%s1:%s1", title, start, end), Values: [][]any{missing}},
		})
		if err != nil {
			return err
		}
		header = append(header, missing...)
	}

	balances := make(map[string]any, len(accounts))
	for _, account := range accounts {
		if account.Current.Valid {
			balances[account.AccountID] = account.Current.Decimal.InexactFloat64()
		}
	}

	row := make([]any, len(header))
	row[0] = today
	for i := 1; i < len(header); i++ {
		value, ok := balances[fmt.Sprint(header[i])]
		if !ok {
			value = ""
		}
		row[i] = value
	}

	endLetter := ColumnLetter(len(row) - 1)
	existing, err := c.backend.GetValues(ctx, documentID, fmt.Sprintf("%s!A%d:%s", title, historyRowOffset, endLetter))
	if err != nil {
		return err
	}
	nextRow := len(existing) + historyRowOffset

	err = c.backend.UpdateRanges(ctx, documentID, []ValueRange{
		{Range: fmt.Sprintf("%s!A%d:%s%d", title, nextRow, endLetter, nextRow), Values: [][]any{row}},
	})
	if err != nil {
		return err
	}

	c.logger.Info("recorded balance history", "sheet", title, "date", today, "accounts", len(header)-1)
	return nil
}

// UpdateTransactions writes the given account type's transactions, one tab
// per calendar month, sorted by date ascending.
func (c *Client) UpdateTransactions(ctx context.Context, accounts []models.Account, accountType models.AccountType) error {
	var filtered []models.Account
	for _, account := range accounts {
		if account.AccountType == accountType {
			filtered = append(filtered, account)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	properties := c.cfg.Transactions.Properties
	documentID := c.primaryDocumentID()
	if accountType == models.AccountTypeInvestment {
		properties = c.cfg.InvestmentTransactions.Properties
		documentID = c.investmentDocumentID()
	}

	var transactions []models.Transaction
	for _, account := range filtered {
		transactions = append(transactions, account.Transactions...)
	}
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].Date.Before(transactions[j].Date)
	})

	// Bucket by start of month; months iterate in ascending order so tab
	// creation is deterministic.
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
		title := month.Format(c.googleCfg.MonthFormat)
		if err := c.UpdateSheet(ctx, title, buckets[month], properties, true, false, documentID); err != nil {
			return fmt.Errorf("updating month %s: %w", title, err)
		}
	}
	return nil
}

// UpdateHoldings writes all holdings into a single Investments tab.
func (c *Client) UpdateHoldings(ctx context.Context, accounts []models.Account) error {
	var rows []map[string]any
	for _, account := range accounts {
		for _, holding := range account.Holdings {
			rows = append(rows, holding.Row())
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return c.UpdateSheet(ctx, investmentsSheetTitle, rows, c.cfg.Holdings.Properties, true, false, c.investmentDocumentID())
}

// UpdateBalances writes the Balances tab into every configured document
// and records the daily history snapshot.
func (c *Client) UpdateBalances(ctx context.Context, accounts []models.Account) error {
	rows := make([]map[string]any, 0, len(accounts))
	for _, account := range accounts {
		rows = append(rows, account.Row())
	}

	for _, documentID := range c.googleCfg.DocumentIDs {
		if err := c.UpdateSheet(ctx, balancesSheetTitle, rows, c.cfg.Balances.Properties, false, false, documentID); err != nil {
			return err
		}
	}

	return c.BalanceHistory(ctx, historySheetTitle, accounts)
}

// SortSheets reorders tabs by reverse title, newest monthly tab first.
func (c *Client) SortSheets(ctx context.Context, documentID string) error {
	if documentID == "" {
		documentID = c.primaryDocumentID()
	}
	titles, err := c.backend.SheetTitles(ctx, documentID)
	if err != nil {
		return err
	}
	return c.backend.ReorderSheets(ctx, documentID, reverseTitleOrder(titles))
}

// FormatSheets re-applies header formatting across every tab.
func (c *Client) FormatSheets(ctx context.Context, documentID string) error {
	if documentID == "" {
		documentID = c.primaryDocumentID()
	}
	return c.backend.FormatHeaders(ctx, documentID)
}
