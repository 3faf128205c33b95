package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/newrelic/go-agent/v3/integrations/nrpgx5"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentops/statuslog/internal/client"
	"github.com/agentops/statuslog/internal/config"
	"github.com/agentops/statuslog/internal/database"
	"github.com/agentops/statuslog/internal/model"
	"github.com/agentops/statuslog/internal/repository"
	"github.com/agentops/statuslog/internal/rpc"
	"github.com/agentops/statuslog/internal/server"
)

func main() {
	// Missing .env is fine; environment variables win either way.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "statuslog",
		Short:         "Durable store and delivery pipeline for agent status events",
		Version:       config.ServiceVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), stdioCmd(), sendCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Str("service", config.ServiceName).Logger()
}

func newManager(cfg *config.Config, logger zerolog.Logger) (*database.Manager, *newrelic.Application, error) {
	var nrApp *newrelic.Application
	var extra []pgx.QueryTracer
	if cfg.Observability.Enabled {
		app, err := newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.Observability.AppName),
			newrelic.ConfigLicense(cfg.Observability.License),
			newrelic.ConfigEnabled(true),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("new relic: %w", err)
		}
		nrApp = app
		extra = append(extra, nrpgx5.NewTracer())
	}
	return database.NewManager(cfg.Database, logger, extra...), nrApp, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP façade",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger()

			mgr, nrApp, err := newManager(cfg, logger)
			if err != nil {
				return err
			}
			repo := repository.NewStatusLogRepository(mgr)
			srv := server.New(cfg, mgr, repo, logger, nrApp)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}

func stdioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve the RPC façade on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger()

			mgr, _, err := newManager(cfg, logger)
			if err != nil {
				return err
			}
			defer mgr.Shutdown()
			repo := repository.NewStatusLogRepository(mgr)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Degraded start is fine: operations retry establishment lazily.
			if err := mgr.EnsureReady(ctx); err != nil {
				logger.Warn().Err(err).Msg("starting without database connection")
			} else if err := repo.EnsureSchema(ctx); err != nil {
				logger.Warn().Err(err).Msg("schema setup failed")
			}

			srv := &rpc.Server{Store: repo, Prober: mgr, Logger: logger}
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}
}

func sendCmd() *cobra.Command {
	var (
		sessionID  string
		userID     string
		agentName  string
		statusType string
		message    string
		metadata   string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Deliver one status event, remote HTTP first with direct storage fallback",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger()

			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			mgr, _, err := newManager(cfg, logger)
			if err != nil {
				return err
			}
			defer mgr.Shutdown()
			repo := repository.NewStatusLogRepository(mgr)

			var tokens client.TokenSource
			if cfg.Remote.TokenCommand != "" {
				parts := strings.Fields(cfg.Remote.TokenCommand)
				tokens = client.CommandTokenSource{Name: parts[0], Args: parts[1:]}
			}
			dispatcher := client.NewDispatcher(cfg.Remote, repo, tokens, logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ev := model.NewStatusEvent{
				SessionID:  sessionID,
				UserID:     userID,
				AgentName:  agentName,
				StatusType: statusType,
				Message:    message,
			}
			if metadata != "" {
				ev.Metadata = []byte(metadata)
			}

			id, err := dispatcher.Dispatch(ctx, ev)
			if err != nil {
				return err
			}
			fmt.Printf("status logged with id %d\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session identifier (random when omitted)")
	cmd.Flags().StringVar(&userID, "user", "default_user", "user identifier")
	cmd.Flags().StringVar(&agentName, "agent", "", "emitting agent name")
	cmd.Flags().StringVar(&statusType, "type", "info", "status type (info, warning, error, success)")
	cmd.Flags().StringVar(&message, "message", "", "status message body")
	cmd.Flags().StringVar(&metadata, "metadata", "", "optional metadata as a JSON object")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}
