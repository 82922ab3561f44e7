package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sellsync/internal/logger"
	"sellsync/internal/webhook"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Start the Sellsy webhook receiver",
	Long: `Start an HTTP server that receives Sellsy push notifications, verifies
their HMAC-SHA256 signature and runs the same normalize-and-upsert pipeline
as the batch sync for the notified invoice.

Endpoints:
  POST /webhook/sellsy - signed notification intake
  GET  /webhook/test   - health and configuration presence (booleans only)

Required environment variables:
  SELLSY_CLIENT_ID / SELLSY_CLIENT_SECRET - Sellsy OAuth2 credentials
  AIRTABLE_API_KEY - Airtable API key
  AIRTABLE_BASE_ID / AIRTABLE_TABLE_NAME - destination table
  WEBHOOK_SECRET - shared webhook signing secret`,
	Example: `  # Listen on the default address
  sellsync webhook

  # Listen on a specific host and port
  sellsync webhook --host 127.0.0.1 --port 9000`,
	RunE: runWebhook,
}

func init() {
	rootCmd.AddCommand(webhookCmd)

	webhookCmd.Flags().String("host", "0.0.0.0", "Listen host")
	webhookCmd.Flags().Int("port", 8080, "Listen port")
}

func runWebhook(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("webhook-cmd")

	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateWebhook(); err != nil {
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

	server := webhook.NewServer(webhook.Config{
		Secret:             cfg.WebhookSecret,
		SkipSignature:      cfg.WebhookSkipSignature,
		SellsyConfigured:   cfg.ValidateSellsy() == nil,
		AirtableConfigured: cfg.ValidateAirtable() == nil,
	}, sellsyClient, airtableClient)

	addr := fmt.Sprintf("%s:%d", host, port)
	log.Info().Str("addr", addr).Msg("Starting webhook receiver")

	if err := server.Run(addr); err != nil {
		return fmt.Errorf("webhook receiver failed: %w", err)
	}
	return nil
}
