package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"studybuddy-client/internal/app"
	"studybuddy-client/internal/config"
	transport "studybuddy-client/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Serve review sessions, chat and the plan over HTTP and WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	c, err := buildComponents(ctx, configPath)
	if err != nil {
		return err
	}
	defer c.Close()
	log := c.log

	finalPort := portFlag
	if finalPort == "" {
		finalPort = c.cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	if err := c.backend.Health(ctx); err != nil {
		log.Warn("backend health check failed", "url", c.cfg.Backend.BaseURL, "error", err)
	}
	if err := c.service.Reload(ctx); err != nil {
		// keep serving; a later refresh or ingest can still load the collections
		log.Warn("initial artifact load failed", "error", err)
	}

	assistant, err := c.assistant()
	if err != nil {
		return err
	}
	chat := app.NewChatSession(assistant, log)
	ingest := c.orchestrator()
	api := transport.NewAPI(ctx, c.service, chat, ingest, log)
	defer api.Wait()
	wsHandler := transport.NewWSHandler(c.service, chat, ingest, log)

	// sessions created over REST and never attached would otherwise tick forever
	stopReaper := c.service.ReapEvery(
		config.TTLDuration(c.cfg.Review.ReapEvery, config.DefaultReviewReapEvery),
		config.TTLDuration(c.cfg.Review.IdleTimeout, config.DefaultReviewIdleTimeout),
	)
	defer stopReaper()

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(api, wsHandler, c.cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting study client", "port", finalPort, "backend", c.cfg.Backend.BaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down server...")
	case err := <-errCh:
		log.Error("failed to start server", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
