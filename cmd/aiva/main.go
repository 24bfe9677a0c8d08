package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xaenox/aiva/internal/api"
	"github.com/xaenox/aiva/internal/assistant"
	"github.com/xaenox/aiva/internal/bot"
	"github.com/xaenox/aiva/internal/logger"
	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/internal/oracle"
	"github.com/xaenox/aiva/internal/storage"
	"github.com/xaenox/aiva/pkg/config"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "aiva",
		Short:        "Natural-language finance assistant",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newBotCmd(&configPath),
		newPromptCmd(&configPath),
	)
	return root
}

// app is everything a subcommand needs, built from one config file
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   storage.Storage
	service *assistant.Service
}

func setup(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Database, log)
	if err != nil {
		log.Error("Failed to initialize storage", logger.SafeError(err))
		return nil, err
	}

	o, err := oracle.New(ctx, cfg, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	svc, err := assistant.Build(cfg, store, o, log, assistant.Options{})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: log, store: store, service: svc}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close storage", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			srv := api.NewServer(a.service, a.store, a.cfg.Agent.Categories, a.logger.Named("http"))
			return srv.Run(ctx, a.cfg.Server)
		},
	}
}

func newBotCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Telegram.Token == "" {
				return fmt.Errorf("%w: telegram.token (TELEGRAM_TOKEN) is required", models.ErrConfig)
			}

			b, err := bot.New(a.cfg.Telegram.Token, a.service, a.store, a.cfg.Agent.Categories, a.logger.Named("bot"))
			if err != nil {
				return err
			}
			return b.Start(ctx)
		},
	}
}

func newPromptCmd(configPath *string) *cobra.Command {
	var (
		threadID string
		timezone string
		currency string
	)

	cmd := &cobra.Command{
		Use:   "prompt [text...]",
		Short: "Process a single prompt and print the JSON response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			resp, err := a.service.Process(ctx, assistant.Request{
				Prompt:   strings.Join(args, " "),
				ThreadID: threadID,
				Context:  models.RequestContext{UserTimezone: timezone, Currency: currency},
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "continue an existing conversation thread")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA time zone used for relative dates")
	cmd.Flags().StringVar(&currency, "currency", "", "default currency for amounts")
	return cmd
}
