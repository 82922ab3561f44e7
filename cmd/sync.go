package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sellsync/internal/logger"
	"sellsync/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize recent Sellsy invoices into Airtable",
	Long: `Fetch invoices created in the last N days from Sellsy, normalize them and
upsert them into the Airtable table, matched by Sellsy invoice id.

Failures local to one invoice are logged and skipped; the run continues with
the next invoice. Authentication failures abort the run.

Required environment variables:
  SELLSY_CLIENT_ID / SELLSY_CLIENT_SECRET - Sellsy OAuth2 credentials
  AIRTABLE_API_KEY - Airtable API key
  AIRTABLE_BASE_ID / AIRTABLE_TABLE_NAME - destination table`,
	Example: `  # Sync the last 30 days (default)
  sellsync sync

  # Sync the last week
  sellsync sync --days 7

  # Also store invoice PDFs locally
  sellsync sync --days 7 --pdf`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().Int("days", 30, "Sync invoices created in the last N days")
	syncCmd.Flags().Bool("pdf", false, "Also download invoice PDFs into PDF_STORAGE_DIR")
}

func runSync(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("sync")

	days, _ := cmd.Flags().GetInt("days")
	downloadPDFs, _ := cmd.Flags().GetBool("pdf")

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

	log.Info().
		Int("days", days).
		Bool("pdf", downloadPDFs).
		Msg("Starting sync run")

	engine := syncer.New(sellsyClient, airtableClient, cfg.PDFStorageDir)
	summary, err := engine.Run(ctx, syncer.Options{
		Days:         days,
		DownloadPDFs: downloadPDFs,
	})

	fmt.Printf("Sync finished: %s\n", summary)

	if err != nil {
		return fmt.Errorf("sync run failed: %w", err)
	}
	return nil
}
