package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sellsync/internal/logger"
	"sellsync/internal/syncer"
)

var syncMissingCmd = &cobra.Command{
	Use:   "sync-missing",
	Short: "Reconcile Airtable against Sellsy, creating only missing invoices",
	Long: `Fetch invoices from Sellsy (most recent first, up to the limit) and create
destination records only for invoices that have no Airtable record yet.
Existing records are left untouched.

Required environment variables:
  SELLSY_CLIENT_ID / SELLSY_CLIENT_SECRET - Sellsy OAuth2 credentials
  AIRTABLE_API_KEY - Airtable API key
  AIRTABLE_BASE_ID / AIRTABLE_TABLE_NAME - destination table`,
	Example: `  # Reconcile up to 1000 invoices
  sellsync sync-missing

  # Check only the 50 most recent invoices
  sellsync sync-missing --limit 50`,
	RunE: runSyncMissing,
}

func init() {
	rootCmd.AddCommand(syncMissingCmd)

	syncMissingCmd.Flags().Int("limit", 1000, "Maximum number of invoices to check")
}

func runSyncMissing(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("sync-missing")

	limit, _ := cmd.Flags().GetInt("limit")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sellsyClient, err := newSellsyClient(cfg)
	if err != nil {
		return err
	}
	airtableClient, err := newAirtableClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := newSignalContext(log)
	defer cancel()

	log.Info().Int("limit", limit).Msg("Starting reconciliation run")

	engine := syncer.New(sellsyClient, airtableClient, cfg.PDFStorageDir)
	summary, err := engine.Run(ctx, syncer.Options{
		Limit:       limit,
		MissingOnly: true,
	})

	fmt.Printf("Reconciliation finished: %s\n", summary)

	if err != nil {
		return fmt.Errorf("reconciliation run failed: %w", err)
	}
	return nil
}
