// Command ldapsecurity serves a demo application behind the LDAP security
// filter chains.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pp23/ldapsecurity"
	"github.com/pp23/ldapsecurity/internal/authn"
	"github.com/pp23/ldapsecurity/internal/config"
	"github.com/pp23/ldapsecurity/internal/handler"
	"github.com/pp23/ldapsecurity/internal/logging"
	"github.com/pp23/ldapsecurity/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewChiRouter puts the security chains in front of every route. Requests
// not matched by a chain reach the router unchanged.
func NewChiRouter(ctx context.Context, cfg *config.Properties, logger *zap.Logger) (chi.Router, error) {
	registry, err := ldapsecurity.Assemble(ctx, cfg, &ldapsecurity.Collaborators{Logger: logger})
	if err != nil {
		return nil, err
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(registry.Middleware)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/ldap/me", me)
	r.Get("/api/me", me)
	return r, nil
}

func me(w http.ResponseWriter, r *http.Request) {
	auth := authn.FromContext(r.Context())
	if auth == nil {
		handler.RequireAuth(w, false, "", authn.ErrInsufficientAuthentication)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = handler.JSONSerializer{}.Encode(w, auth)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ldapsecurity",
		Short:         "LDAP authentication filter chains",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo application behind the security chains",
		Long: `Serve the demo application behind the security chains.

The configuration is read from the yaml file given with --config. Every
property can be overridden from the environment, e.g.
SECURITY_LDAP_LDAP_URL=ldap://localhost.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			logging.LogConfigParams(logger, cfg)
			metrics.Register(prometheus.DefaultRegisterer)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			router, err := NewChiRouter(ctx, cfg, logger)
			if err != nil {
				return err
			}
			return serve(ctx, &http.Server{
				Addr:              addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}, logger)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path of the yaml configuration")
	cmd.Flags().StringVar(&addr, "addr", ":3000", "listen address")
	return cmd
}

func serve(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
