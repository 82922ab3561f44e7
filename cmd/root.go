package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"sellsync/internal/airtable"
	"sellsync/internal/config"
	"sellsync/internal/logger"
	"sellsync/internal/sellsy"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "sellsync",
	Short: "Sellsync - synchronize Sellsy invoices into Airtable",
	Long: `Sellsync is a one-way synchronization bridge between Sellsy (invoicing)
and Airtable (destination table).

It fetches invoices from the Sellsy API, normalizes their varying payload
layouts onto a fixed table schema, and upserts them into Airtable matched by
the Sellsy invoice id. A webhook receiver performs the same pipeline for
individual push notifications.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("Sellsync executed")

		fmt.Println("Welcome to Sellsync!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}

// loadConfig loads the environment configuration for a subcommand.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newSellsyClient builds the Sellsy API client from config.
func newSellsyClient(cfg *config.Config) (*sellsy.Client, error) {
	if err := cfg.ValidateSellsy(); err != nil {
		return nil, err
	}
	return sellsy.NewClient(sellsy.Config{
		APIURL:       cfg.SellsyAPIURL,
		TokenURL:     cfg.SellsyTokenURL,
		ClientID:     cfg.SellsyClientID,
		ClientSecret: cfg.SellsyClientSecret,
	}), nil
}

// newAirtableClient builds the Airtable client from config.
func newAirtableClient(cfg *config.Config) (*airtable.Client, error) {
	if err := cfg.ValidateAirtable(); err != nil {
		return nil, err
	}
	return airtable.NewClient(airtable.Config{
		APIURL:    cfg.AirtableAPIURL,
		APIKey:    cfg.AirtableAPIKey,
		BaseID:    cfg.AirtableBaseID,
		TableName: cfg.AirtableTableName,
	}), nil
}

// newSignalContext creates a context canceled on SIGINT/SIGTERM so a batch
// run stops cleanly between invoices.
func newSignalContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling run")
			cancel()
		case <-ctx.Done():
			// Context completed normally
		}
	}()

	return ctx, cancel
}
