package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/plates-cli/internal/api"
	"github.com/sells-group/plates-cli/internal/config"
	"github.com/sells-group/plates-cli/internal/rarity"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only rarity query API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		return runServe(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, c *config.Config) error {
	if err := c.Validate("serve"); err != nil {
		return err
	}

	st, err := openQueryStore(ctx, c)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	est := rarity.NewEstimator(st)
	// Build the frequency table before accepting traffic.
	if _, err := est.Table(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", c.Server.Port),
		Handler: api.New(est, api.Options{
			AllowedOrigins: c.Server.AllowedOrigins,
			RateLimit:      c.Server.RateLimit,
			RateBurst:      c.Server.RateBurst,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", c.Server.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}

	return nil
}
