package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"policy-reasoner/api/pkg/auth"
	"policy-reasoner/api/pkg/config"
	"policy-reasoner/api/pkg/db"
	"policy-reasoner/api/services/auditlog"
	"policy-reasoner/api/services/deliberation"
	"policy-reasoner/api/services/policyapi"
	"policy-reasoner/api/services/policystore"
	"policy-reasoner/api/services/policystore/pgpolicystore"
	"policy-reasoner/api/services/policystore/sqlitepolicystore"
	"policy-reasoner/api/services/reasonerconn"
	"policy-reasoner/api/services/reasonerconn/eflint"
	"policy-reasoner/api/services/stateresolver/filestateresolver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the deliberation and policy-management HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	slog.SetDefault(slog.New(logHandler))

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	auditLog, closeAuditLog, err := openAuditLog(cfg)
	if err != nil {
		return err
	}
	defer closeAuditLog()

	verifier, err := auth.NewVerifier(ctx, cfg.JWKSURL, cfg.InitiatorClaim)
	if err != nil {
		return err
	}

	var disclosure reasonerconn.DisclosurePolicy = reasonerconn.LeakNone{}
	if cfg.DisclosurePrefix != "" {
		disclosure = reasonerconn.LeakByPrefix{Prefix: cfg.DisclosurePrefix}
	}
	connector := eflint.New(cfg.ReasonerAddr, nil, disclosure)
	connector.LegacyLocationTranslation = config.EnvBool("EFLINT_LEGACY_LOCATION_TRANSLATION", false)

	resolver, err := filestateresolver.Open(cfg.StateFilePath)
	if err != nil {
		return err
	}

	mainRouter := mux.NewRouter()

	deliberationService := deliberation.NewService(store, connector, resolver, auditLog, verifier)
	deliberationService.LoadRoutes(mainRouter)

	policyService := policyapi.NewService(store, connector, auditLog, verifier)
	policyService.LoadRoutes(mainRouter)

	mainRouter.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins(cfg.CORSAllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)(mainRouter)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: corsHandler,
	}

	serverErrors := make(chan error, 1)

	go func() {
		slog.Info("Starting server", "addr", cfg.ListenAddr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return err

	case sig := <-shutdown:
		slog.Info("Shutdown signal received", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Could not stop server gracefully", "error", err)
			srv.Close()
		}
	}
	return nil
}

// openStore selects the pgpolicystore or sqlitepolicystore backend per
// config, mirroring the teacher's single DATABASE_URL-or-bail startup
// check but with a second backend option for CLI/test deployments.
func openStore(ctx context.Context, cfg config.Config) (policystore.Store, error) {
	if cfg.SQLitePath != "" {
		return sqlitepolicystore.Open(cfg.SQLitePath)
	}

	dbCfg := db.DefaultConfig(cfg.DatabaseURL)
	pool, err := db.Connect(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	return pgpolicystore.New(pool)
}

// openAuditLog opens the configured audit log destination. "-" selects
// stdout, matching the teacher's convention of treating stdout as the
// default sink for anything not explicitly redirected to a file.
func openAuditLog(cfg config.Config) (auditlog.Logger, func(), error) {
	if cfg.AuditLogPath == "-" || cfg.AuditLogPath == "" {
		return auditlog.New(os.Stdout, cfg.ServiceVersion, nil), func() {}, nil
	}

	f, err := os.OpenFile(cfg.AuditLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return auditlog.New(f, cfg.ServiceVersion, nil), func() { _ = f.Close() }, nil
}
