// Command vecbridge migrates vector records between database backends
// according to a JSON configuration document.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vecbridge/vecbridge/engine/adapters"
	"github.com/vecbridge/vecbridge/engine/config"
	"github.com/vecbridge/vecbridge/engine/migrate"
	"github.com/vecbridge/vecbridge/engine/record"
	"github.com/vecbridge/vecbridge/engine/transform"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath    string
		transformName string
		verbose       bool
	)

	cmd := &cobra.Command{
		Use:     "vecbridge",
		Short:   "Migrate vector records between database backends",
		Version: version,
		Long: `vecbridge extracts records from a source vector database, optionally
transforms them, and loads them into a target vector database. Both
endpoints are described by a JSON configuration file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			return runMigration(cmd, configPath, transformName, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the migration configuration file (required)")
	cmd.Flags().StringVarP(&transformName, "transform", "t", "", "named transform to apply between extract and load")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.MarkFlagRequired("config")

	cmd.AddCommand(newAdaptersCmd())
	return cmd
}

func runMigration(cmd *cobra.Command, configPath, transformName string, logger *slog.Logger) error {
	reg := adapters.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("configuration error", "error", err)
		return err
	}
	if err := cfg.Validate(reg); err != nil {
		logger.Error("configuration invalid", "error", err)
		return err
	}

	var fn record.Transform
	if transformName != "" {
		fn, err = transform.Default().Lookup(transformName)
		if err != nil {
			logger.Error("transform lookup failed", "error", err)
			return err
		}
	}

	m, err := migrate.New(reg, cfg.Source.Type, cfg.Target.Type, logger)
	if err != nil {
		logger.Error("migrator setup failed", "error", err)
		return err
	}

	if err := m.Migrate(cmd.Context(), cfg.Source.Params(), cfg.Target.Params(), fn); err != nil {
		logger.Error("migration failed", "error", err)
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Migration completed successfully.")
	return nil
}

func newAdaptersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List the available backend adapter types",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range adapters.Default().Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
