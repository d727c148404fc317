package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"

	"github.com/mintabledev/mintable/pkg/config"
	"github.com/mintabledev/mintable/pkg/fetch"
)

var version = "dev"

var (
	cfgFile string
	verbose bool
)

func newLogger() *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "mintable",
		Level:           level,
	})
}

var rootCmd = &cobra.Command{
	Use:   "mintable",
	Short: "Automate your personal finances into a spreadsheet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch accounts from configured providers and sync the sinks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := newLogger()

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		runner := fetch.NewRunner(cfg, logger)
		return runner.Run(cmd.Context())
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write a default configuration scaffold",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := newLogger()

		path := cfgFile
		if path == "" {
			path = "mintable.yaml"
		}

		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("config %s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
		logger.Info("wrote config scaffold", "path", path)
		logger.Info("add provider credentials and accounts, then run `mintable fetch`")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate <legacy-config.json>",
	Short: "Convert a legacy JSON config to the current format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		outPath := cfgFile
		if outPath == "" {
			outPath = "mintable.yaml"
		}

		cfg, err := config.MigrateFile(args[0], outPath)
		if err != nil {
			return err
		}
		logger.Info("migrated config", "from", args[0], "to", outPath, "accounts", len(cfg.Accounts))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mintable version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default: mintable.{yaml,json} in . or ~/.mintable)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	setupCmd.Flags().Bool("force", false, "Overwrite an existing config")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	// Credentials commonly live in a .env next to the config.
	_ = gotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
