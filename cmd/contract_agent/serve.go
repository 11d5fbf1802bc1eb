package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonathan/contract-signer/internal/config"
	"github.com/jonathan/contract-signer/internal/esign"
	"github.com/jonathan/contract-signer/internal/server"
	"github.com/jonathan/contract-signer/internal/server/ratelimit"
	"github.com/jonathan/contract-signer/internal/signing"
	"github.com/jonathan/contract-signer/internal/webhook"
	"github.com/spf13/cobra"
)

var (
	servePort       int
	serveCORSOrigin string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that sends contracts for signature and receives provider webhooks.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveCORSOrigin, "cors-origin", "*", "Allowed CORS origin")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if cfg.SigningAPIURL == "" {
		return fmt.Errorf("SIGNING_API_URL is required")
	}
	if cfg.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	a, err := buildApp(connectCtx, cfg, log)
	cancel()
	if err != nil {
		return err
	}
	defer a.close()

	client := esign.NewClient(esign.Config{BaseURL: cfg.SigningAPIURL, APIKey: cfg.SigningAPIKey})

	orchestrator := signing.NewOrchestrator(signing.Deps{
		Store:     a.store,
		Renderer:  a.pipeline,
		Provider:  client,
		Publisher: a.publisher,
		Archive:   a.archive,
		Locker:    a.locker,
	}, signing.Config{
		RedirectURL:     cfg.SigningRedirectURL,
		SendImmediately: cfg.ShouldSendImmediately(),
	}, log)

	reconciler := webhook.NewReconciler(webhook.Deps{
		Store:      a.store,
		Downloader: client,
		Archive:    a.archive,
		Publisher:  a.publisher,
		Locker:     a.locker,
	}, webhook.Config{
		Secret:       cfg.WebhookSecret,
		SecretHeader: cfg.WebhookSecretHeader,
	}, log)

	deps := server.Deps{
		Contracts: a.store,
		Sender:    orchestrator,
		Previewer: a.pipeline,
		Webhooks:  reconciler,
		Archive:   a.archive,
	}
	if os.Getenv("JWT_SECRET") != "" {
		jwtCfg, err := config.NewJWTConfig()
		if err != nil {
			return err
		}
		deps.Tokens = server.NewJWTService(jwtCfg).AsTokenValidator()
	} else {
		log.Warn("JWT_SECRET not set, operator endpoints are unauthenticated")
	}

	srv := server.New(server.Config{
		Port:       cfg.Port,
		RateLimit:  ratelimit.LoadConfig(),
		CORSOrigin: serveCORSOrigin,
	}, deps, log)
	return srv.Start(ctx)
}
