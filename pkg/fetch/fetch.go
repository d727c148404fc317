// Package fetch orchestrates one fetch-and-sync run: every configured
// account is pulled from its provider, the results are concatenated, and
// the balance and transaction sinks are written once each.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mintabledev/mintable/pkg/config"
	"github.com/mintabledev/mintable/pkg/integrations/csvexport"
	"github.com/mintabledev/mintable/pkg/integrations/csvimport"
	"github.com/mintabledev/mintable/pkg/integrations/finicity"
	"github.com/mintabledev/mintable/pkg/integrations/google"
	"github.com/mintabledev/mintable/pkg/integrations/mx"
	"github.com/mintabledev/mintable/pkg/integrations/plaid"
	"github.com/mintabledev/mintable/pkg/models"
)

const dateLayout = "2006-01-02"

// AccountFetcher is the provider contract: given an account configuration
// and an inclusive date range, return normalized accounts.
type AccountFetcher interface {
	FetchAccount(ctx context.Context, accountConfig config.AccountConfig, startDate, endDate time.Time) ([]models.Account, error)
}

// InvestmentFetcher is implemented by providers that fetch holdings and
// investment transactions as separate calls; the runner merges the two by
// account id.
type InvestmentFetcher interface {
	FetchAccountWithInvestmentTransactions(ctx context.Context, accountConfig config.AccountConfig, startDate, endDate time.Time) ([]models.Account, error)
	FetchAccountWithHoldings(ctx context.Context, accountConfig config.AccountConfig) ([]models.Account, error)
}

type sinkFunc func(ctx context.Context, accounts []models.Account) error

// Runner holds the wiring for one run. Provider and sink entries left nil
// are built from the configuration when Run starts.
type Runner struct {
	cfg    *config.Config
	logger *log.Logger

	providers       map[models.IntegrationID]AccountFetcher
	balanceSink     sinkFunc
	transactionSink sinkFunc
}

// NewRunner builds a Runner for the given configuration.
func NewRunner(cfg *config.Config, logger *log.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		logger:    logger,
		providers: make(map[models.IntegrationID]AccountFetcher),
	}
}

// Run executes the fetch. Provider and sink failures are isolated: a
// failing account contributes nothing, later steps still run, and the
// returned error reports how many steps failed so the CLI can exit
// non-zero on a partial run.
func (r *Runner) Run(ctx context.Context) error {
	startDate, endDate, err := r.dateRange()
	if err != nil {
		return err
	}
	r.logger.Info("starting fetch", "start", startDate.Format(dateLayout), "end", endDate.Format(dateLayout))

	var accounts []models.Account
	failures := 0

	for _, accountConfig := range r.cfg.Accounts {
		if accountConfig.Type == models.AccountTypeDisabled {
			r.logger.Debug("skipping disabled account", "account", accountConfig.ID)
			continue
		}

		r.logger.Info("fetching account", "account", accountConfig.ID, "integration", accountConfig.Integration)

		fetched, err := r.fetchOne(ctx, accountConfig, startDate, endDate)
		if err != nil {
			r.logger.Error("error fetching account", "account", accountConfig.ID, "error", err)
			failures++
			continue
		}
		accounts = append(accounts, fetched...)
	}

	transactionCount := 0
	for _, account := range accounts {
		transactionCount += len(account.Transactions)
	}

	failures += r.writeSinks(ctx, accounts)

	r.logger.Info("fetch complete", "accounts", len(accounts),
		"transactions", transactionCount, "failures", failures)

	if failures > 0 {
		return fmt.Errorf("fetch completed with %d failed step(s)", failures)
	}
	return nil
}

func (r *Runner) dateRange() (time.Time, time.Time, error) {
	now := time.Now()
	startDate := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -2, 0)
	endDate := now

	if s := r.cfg.Transactions.StartDate; s != "" {
		parsed, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing transactions start date %q: %w", s, err)
		}
		startDate = parsed
	}
	if s := r.cfg.Transactions.EndDate; s != "" {
		parsed, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing transactions end date %q: %w", s, err)
		}
		endDate = parsed
	}
	return startDate, endDate, nil
}

func (r *Runner) provider(id models.IntegrationID) (AccountFetcher, error) {
	if p, ok := r.providers[id]; ok {
		return p, nil
	}

	var p AccountFetcher
	switch id {
	case models.IntegrationPlaid:
		if r.cfg.Integrations.Plaid == nil {
			return nil, fmt.Errorf("plaid integration is not configured")
		}
		p = plaid.New(r.cfg.Integrations.Plaid, r.logger)
	case models.IntegrationMx:
		if r.cfg.Integrations.Mx == nil {
			return nil, fmt.Errorf("mx integration is not configured")
		}
		p = mx.New(r.cfg.Integrations.Mx, r.logger)
	case models.IntegrationFinicity:
		if r.cfg.Integrations.Finicity == nil {
			return nil, fmt.Errorf("finicity integration is not configured")
		}
		p = finicity.New(r.cfg.Integrations.Finicity, r.logger)
	case models.IntegrationCSVImport:
		p = csvimport.New(r.logger)
	default:
		return nil, fmt.Errorf("unknown integration %q", id)
	}

	r.providers[id] = p
	return p, nil
}

// fetchOne dispatches a single account entry to its provider. Investment
// accounts fetch holdings and investment transactions separately and merge
// holdings into the transaction accounts by account id.
func (r *Runner) fetchOne(ctx context.Context, accountConfig config.AccountConfig, startDate, endDate time.Time) ([]models.Account, error) {
	provider, err := r.provider(accountConfig.Integration)
	if err != nil {
		return nil, err
	}

	if accountConfig.Type == models.AccountTypeInvestment {
		if investment, ok := provider.(InvestmentFetcher); ok {
			withHoldings, err := investment.FetchAccountWithHoldings(ctx, accountConfig)
			if err != nil {
				return nil, err
			}
			accounts, err := investment.FetchAccountWithInvestmentTransactions(ctx, accountConfig, startDate, endDate)
			if err != nil {
				return nil, err
			}

			holdings := make(map[string][]models.Holding, len(withHoldings))
			for _, account := range withHoldings {
				holdings[account.AccountID] = account.Holdings
			}
			for i := range accounts {
				accounts[i].Holdings = holdings[accounts[i].AccountID]
			}
			return accounts, nil
		}
	}

	return provider.FetchAccount(ctx, accountConfig, startDate, endDate)
}

// writeSinks dispatches to each configured sink independently: a failing
// balance sink must not keep the transaction sink from running. Returns
// the number of failed sink steps.
func (r *Runner) writeSinks(ctx context.Context, accounts []models.Account) int {
	var googleClient *google.Client
	buildGoogle := func() (*google.Client, error) {
		if googleClient != nil {
			return googleClient, nil
		}
		client, err := google.New(ctx, r.cfg, r.logger)
		if err != nil {
			return nil, err
		}
		googleClient = client
		return client, nil
	}

	failures := 0

	if r.balanceSink == nil {
		sink, err := r.buildBalanceSink(buildGoogle)
		if err != nil {
			r.logger.Error("error building balance sink", "error", err)
			failures++
		} else {
			r.balanceSink = sink
		}
	}
	if r.transactionSink == nil {
		sink, err := r.buildTransactionSink(buildGoogle)
		if err != nil {
			r.logger.Error("error building transaction sink", "error", err)
			failures++
		} else {
			r.transactionSink = sink
		}
	}

	if r.balanceSink != nil {
		if err := r.balanceSink(ctx, accounts); err != nil {
			r.logger.Error("error writing balance sink", "error", err)
			failures++
		}
	}
	if r.transactionSink != nil {
		if err := r.transactionSink(ctx, accounts); err != nil {
			r.logger.Error("error writing transaction sink", "error", err)
			failures++
		}
	}
	return failures
}

// buildBalanceSink returns the configured balance sink, or nil when no
// balance integration is configured.
func (r *Runner) buildBalanceSink(buildGoogle func() (*google.Client, error)) (sinkFunc, error) {
	switch r.cfg.Balances.Integration {
	case models.IntegrationGoogle:
		client, err := buildGoogle()
		if err != nil {
			return nil, err
		}
		return client.UpdateBalances, nil
	case models.IntegrationCSVExport:
		exporter, err := csvexport.New(r.cfg, r.logger)
		if err != nil {
			return nil, err
		}
		return func(_ context.Context, accounts []models.Account) error {
			return exporter.UpdateBalances(accounts)
		}, nil
	}
	return nil, nil
}

func (r *Runner) buildTransactionSink(buildGoogle func() (*google.Client, error)) (sinkFunc, error) {
	switch r.cfg.Transactions.Integration {
	case models.IntegrationGoogle:
		client, err := buildGoogle()
		if err != nil {
			return nil, err
		}
		googleCfg := r.cfg.Integrations.Google
		return func(ctx context.Context, accounts []models.Account) error {
			if err := client.UpdateTransactions(ctx, accounts, models.AccountTypeTransactional); err != nil {
				return err
			}
			if err := client.UpdateHoldings(ctx, accounts); err != nil {
				return err
			}
			if err := client.UpdateTransactions(ctx, accounts, models.AccountTypeInvestment); err != nil {
				return err
			}
			if googleCfg.SortSheets {
				if err := client.SortSheets(ctx, ""); err != nil {
					return err
				}
			}
			if googleCfg.FormatSheets {
				if err := client.FormatSheets(ctx, ""); err != nil {
					return err
				}
			}
			return nil
		}, nil
	case models.IntegrationCSVExport:
		exporter, err := csvexport.New(r.cfg, r.logger)
		if err != nil {
			return nil, err
		}
		return func(_ context.Context, accounts []models.Account) error {
			return exporter.UpdateTransactions(accounts)
		}, nil
	}
	return nil, nil
}
