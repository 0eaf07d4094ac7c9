// Command csvapi serves tabular files as a queryable read API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opendatateam/csvapi"
	"github.com/opendatateam/csvapi/config"
	"github.com/opendatateam/csvapi/fetch"
	"github.com/opendatateam/csvapi/logging"
	"github.com/opendatateam/csvapi/server"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "csvapi",
	Short: "Serve tabular files as a queryable API",
	Long: "csvapi ingests CSV and spreadsheet files of unknown encoding and " +
		"structure, materializes them into SQLite tables, and serves them " +
		"through a filtered, paginated, sortable read API.",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logging.Setup(cfg.LogLevel, cfg.LogFormat)

		srv, err := server.New(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Run(ctx)
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|url>",
	Short: "Materialize one source and print its identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logging.Setup(cfg.LogLevel, cfg.LogFormat)

		address := args[0]
		data, err := readSource(cmd.Context(), cfg, address)
		if err != nil {
			return err
		}

		data, err = csvapi.Decompress(data, cfg.MaxFileSize)
		if err != nil {
			return err
		}

		parser := csvapi.NewParser()
		parser.SniffWindow = cfg.SniffWindow
		table, err := parser.Parse(data, csvapi.DetectFormat(data), "")
		if err != nil {
			return err
		}

		store, err := csvapi.NewStore(cfg.DBRootDir)
		if err != nil {
			return err
		}

		identity := csvapi.Identity(address)
		if err := store.Materialize(cmd.Context(), table, identity); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s (%d rows, %d columns)\n",
			identity, table.RowCount(), len(table.Header()))
		return nil
	},
}

// readSource loads bytes from a URL or a local file path.
func readSource(ctx context.Context, cfg *config.Config, address string) ([]byte, error) {
	if err := fetch.ValidateURL(address); err == nil {
		return fetch.New(cfg.MaxFileSize).Fetch(ctx, address)
	}

	info, err := os.Stat(address)
	if err != nil {
		return nil, fmt.Errorf("read source %s: %w", address, err)
	}
	if info.Size() > cfg.MaxFileSize {
		return nil, csvapi.ErrSizeExceeded
	}
	return os.ReadFile(address)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
