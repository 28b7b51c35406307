package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/voxlate/internal/billing"
	"github.com/haasonsaas/voxlate/internal/channel/twilio"
	"github.com/haasonsaas/voxlate/internal/channel/whatsapp"
	"github.com/haasonsaas/voxlate/internal/config"
	"github.com/haasonsaas/voxlate/internal/dispatch"
	"github.com/haasonsaas/voxlate/internal/media"
	"github.com/haasonsaas/voxlate/internal/objectstore"
	"github.com/haasonsaas/voxlate/internal/observability"
	"github.com/haasonsaas/voxlate/internal/pipeline"
	"github.com/haasonsaas/voxlate/internal/speech"
	"github.com/haasonsaas/voxlate/internal/store"
	"github.com/haasonsaas/voxlate/internal/transcribe"
	"github.com/haasonsaas/voxlate/internal/translate"
	"github.com/haasonsaas/voxlate/internal/web"
	"github.com/haasonsaas/voxlate/internal/wizard"
)

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bot server",
		Long: `Start the bot: database, translation pipeline, enabled channels,
and the HTTP server for webhooks, health, and metrics.

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with default config
  voxlate serve

  # Start with custom config and debug logging
  voxlate serve --config /etc/voxlate/production.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "voxlate.yaml", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	// Secrets live in the environment; a local .env is a convenience.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Log.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		AddSource: cfg.Log.AddSource,
	})
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = st.Close() }()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	transcoder, err := media.NewTranscoder()
	if err != nil {
		return err
	}
	synth, err := speech.New(ctx, cfg.Speech, metrics)
	if err != nil {
		return fmt.Errorf("init text-to-speech: %w", err)
	}
	uploader, err := objectstore.New(ctx, cfg.Storage, metrics)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}

	var twilioClient *twilio.Client
	var fetcher *media.Fetcher
	if cfg.Twilio.Enabled {
		twilioClient, err = twilio.New(cfg.Twilio, metrics)
		if err != nil {
			return err
		}
		// Twilio media URLs require the account credentials.
		user, pass := twilioClient.Credentials()
		fetcher = media.NewFetcher(user, pass)
	} else {
		fetcher = media.NewFetcher("", "")
	}

	biller := billing.New(cfg.Stripe, st, logger)
	pipe := pipeline.New(fetcher, transcoder,
		transcribe.New(cfg.OpenAI, metrics),
		translate.New(cfg.OpenAI, metrics),
		synth, uploader, st, logger, metrics)
	disp := dispatch.New(st, wizard.New(st, metrics), biller, pipe, logger, metrics, dispatch.Options{
		FreeQuota: cfg.Quota.FreeTranslations,
	})

	if cfg.WhatsApp.Enabled {
		wa, err := whatsapp.New(cfg.WhatsApp, disp, logger, metrics)
		if err != nil {
			return fmt.Errorf("init whatsapp channel: %w", err)
		}
		if err := wa.Start(ctx); err != nil {
			return fmt.Errorf("start whatsapp channel: %w", err)
		}
		defer wa.Stop()
	}

	var channel web.MessagingChannel
	if twilioClient != nil {
		channel = twilioClient
	}
	var stripeHook web.StripeWebhook
	if biller.Enabled() {
		stripeHook = biller
	}

	srv := web.NewServer(cfg.Server, cfg.Twilio, channel, disp, stripeHook, logger, metrics)
	err = srv.Start(ctx)

	// Let in-flight translations finish before the process exits.
	disp.Wait()
	logger.Info(context.Background(), "shutdown complete")
	return err
}
