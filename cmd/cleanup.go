package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sellsync/internal/logger"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "List and delete Airtable records with an empty Sellsy invoice id",
	Long: `Find destination records whose Sellsy invoice id column is blank. Such
records can never be matched by an upsert and only accumulate as duplicates.

Without --force the command only lists what it would delete.

Required environment variables:
  AIRTABLE_API_KEY - Airtable API key
  AIRTABLE_BASE_ID / AIRTABLE_TABLE_NAME - destination table`,
	Example: `  # List orphaned records
  sellsync cleanup

  # Delete them
  sellsync cleanup --force`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().Bool("force", false, "Actually delete the records instead of listing them")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("cleanup")

	force, _ := cmd.Flags().GetBool("force")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	airtableClient, err := newAirtableClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := newSignalContext(log)
	defer cancel()

	records, err := airtableClient.ListEmptyExternalID(ctx)
	if err != nil {
		return fmt.Errorf("failed to list records with empty external id: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No records with an empty invoice id found.")
		return nil
	}

	fmt.Printf("%d record(s) with an empty invoice id:\n", len(records))
	for i, record := range records {
		fmt.Printf("%d. Record %s - Numéro: %v, Client: %v, Date: %v\n",
			i+1, record.ID, record.Fields["Numéro"], record.Fields["Client"], record.Fields["Date"])
	}

	if !force {
		fmt.Println("\nRun again with --force to delete these records.")
		return nil
	}

	deleted := 0
	for _, record := range records {
		if err := airtableClient.DeleteRecord(ctx, record.ID); err != nil {
			log.Error().Err(err).Str("record_id", record.ID).Msg("Failed to delete record")
			continue
		}
		deleted++
		log.Info().Str("record_id", record.ID).Msg("Record deleted")
	}

	fmt.Printf("Deleted %d of %d record(s).\n", deleted, len(records))
	return nil
}
