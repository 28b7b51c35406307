package main

import (
	"encoding/json"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/voxlate/internal/config"
	"github.com/haasonsaas/voxlate/internal/store"
)

type statusReport struct {
	Database string `json:"database"`
	Twilio   bool   `json:"twilio_enabled"`
	WhatsApp bool   `json:"whatsapp_enabled"`
	Stripe   bool   `json:"stripe_configured"`
	Quota    int    `json:"free_translations"`
}

func buildStatusCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check configuration and database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			report := statusReport{
				Database: "ok",
				Twilio:   cfg.Twilio.Enabled,
				WhatsApp: cfg.WhatsApp.Enabled,
				Stripe:   cfg.Stripe.APIKey != "",
				Quota:    cfg.Quota.FreeTranslations,
			}
			st, err := store.Open(cmd.Context(), cfg.Database)
			if err != nil {
				report.Database = err.Error()
			} else {
				_ = st.Close()
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "voxlate.yaml", "Path to YAML configuration file")
	return cmd
}
