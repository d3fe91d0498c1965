// Command covenantd runs the covenant node: the context registry, the
// per-endpoint proposal engines, and the HTTP surface in a single process.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/covenant-labs/covenant/pkg/api"
	"github.com/covenant-labs/covenant/pkg/audit"
	"github.com/covenant-labs/covenant/pkg/auth"
	"github.com/covenant-labs/covenant/pkg/authorizer"
	"github.com/covenant-labs/covenant/pkg/config"
	"github.com/covenant-labs/covenant/pkg/crypto"
	"github.com/covenant-labs/covenant/pkg/dispatch"
	"github.com/covenant-labs/covenant/pkg/observability"
	"github.com/covenant-labs/covenant/pkg/policy"
	"github.com/covenant-labs/covenant/pkg/proposals"
	"github.com/covenant-labs/covenant/pkg/provision"
	"github.com/covenant-labs/covenant/pkg/registry"
	"github.com/covenant-labs/covenant/pkg/runtimever"
	"github.com/covenant-labs/covenant/pkg/sink"

	_ "modernc.org/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("covenantd failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	var profile *config.DeploymentProfile
	if cfg.ProfilesDir != "" && cfg.Profile != "" {
		p, err := config.LoadProfile(cfg.ProfilesDir, cfg.Profile)
		if err != nil {
			return err
		}
		p.Apply(cfg)
		profile = p
		slog.Info("deployment profile applied", "profile", p.Code)
	}

	tracer, err := observability.InitTracer(ctx, tracerConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	db, err := sql.Open("sqlite", cfg.AuditDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	eventStore, err := audit.NewSQLiteStore(db)
	if err != nil {
		return err
	}
	recorder := audit.Multi{audit.NewRecorder(), eventStore}

	runtimes := runtimever.NewRegistry()
	if err := registerRuntimes(runtimes, profile); err != nil {
		return err
	}

	namespace := []byte("covenant")
	if profile != nil && profile.Provisioning.Namespace != "" {
		namespace = []byte(profile.Provisioning.Namespace)
	}
	provisioner, err := provision.NewDeterministic(namespace, runtimes)
	if err != nil {
		return err
	}

	reg := registry.New(provisioner, recorder)
	verifier := crypto.NewEd25519Verifier()

	manager := proposals.NewManager(
		proposals.Config{
			ApprovalThreshold:    cfg.ApprovalThreshold,
			ActiveProposalsLimit: cfg.ActiveProposalsLimit,
		},
		reg,
		sink.NewLedger("treasury", 0),
		verifier,
		recorder,
	)
	if cfg.AdmissionPolicy != "" {
		admission, err := policy.Compile(cfg.AdmissionPolicy)
		if err != nil {
			return err
		}
		manager = manager.WithAdmissionPolicy(admission)
		slog.Info("admission policy enabled")
	}

	server := api.NewServer(authorizer.New(verifier, reg), dispatch.New(reg), reg, manager).
		WithAuditStore(eventStore)

	var limiter *auth.Limiter
	if profile != nil && profile.RateLimit.RequestsPerSecond > 0 {
		limiter = auth.NewLimiter(profile.RateLimit.RequestsPerSecond, profile.RateLimit.Burst)
	}
	validator := auth.NewJWTValidator([]byte(cfg.JWTSecret))
	if validator == nil {
		slog.Warn("JWT_SECRET unset, rejecting all authenticated routes")
	}

	handler := auth.RequestIDMiddleware(
		auth.CORSMiddleware(nil)(
			auth.NewMiddleware(validator)(
				auth.RateLimitMiddleware(limiter)(
					tracer.HTTPMiddleware(server.Routes()),
				),
			),
		),
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("covenantd listening", "port", cfg.Port)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func tracerConfig(cfg *config.Config) observability.TracerConfig {
	tc := observability.DefaultTracerConfig()
	tc.OTLPEndpoint = cfg.OTLPEndpoint
	return tc
}

// registerRuntimes pins the runtimes the provisioner can stamp endpoints
// with. Without a profile a single default runtime is active.
func registerRuntimes(runtimes *runtimever.Registry, profile *config.DeploymentProfile) error {
	if profile == nil || len(profile.Runtimes) == 0 {
		if err := runtimes.Register("wasi", "1.0.0"); err != nil {
			return err
		}
		return runtimes.SetActive("wasi", "*")
	}

	constraint := profile.Provisioning.RuntimeConstraint
	if constraint == "" {
		constraint = "*"
	}
	for _, pin := range profile.Runtimes {
		if err := runtimes.Register(pin.Name, pin.Version); err != nil {
			return err
		}
	}
	for _, pin := range profile.Runtimes {
		if pin.Active {
			return runtimes.SetActive(pin.Name, constraint)
		}
	}
	return runtimes.SetActive(profile.Runtimes[0].Name, constraint)
}
