// Command accounts is the issuing service. It owns the signing key, the
// user and organization directory, and the session endpoints (login,
// refresh, organization selection, logout, JWKS).
//
// Configuration comes from the environment, optionally beneath a YAML or
// JSON file and a .env file:
//
//	AUTH_PRIVATE_KEY="$(cat signing.pem)" POSTGRES_URI=postgres://... accounts -config accounts.yaml
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/StricklySoft/stricklysoft-access/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-access/pkg/clients/redis"
	"github.com/StricklySoft/stricklysoft-access/pkg/config"
	"github.com/StricklySoft/stricklysoft-access/pkg/directory"
	"github.com/StricklySoft/stricklysoft-access/pkg/entitlements"
	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
	"github.com/StricklySoft/stricklysoft-access/pkg/gate"
	"github.com/StricklySoft/stricklysoft-access/pkg/keys"
	"github.com/StricklySoft/stricklysoft-access/pkg/lifecycle"
	"github.com/StricklySoft/stricklysoft-access/pkg/metrics"
	"github.com/StricklySoft/stricklysoft-access/pkg/session"
	"github.com/StricklySoft/stricklysoft-access/pkg/tenancy"
	"github.com/StricklySoft/stricklysoft-access/pkg/token"
)

const (
	serviceName    = "accounts"
	serviceVersion = "1.0.0"
)

// Config is the accounts service configuration. Component sections keep
// their own variable names.
type Config struct {
	Addr            string        `yaml:"addr" env:"ACCOUNTS_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"ACCOUNTS_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `yaml:"log_level" env:"ACCOUNTS_LOG_LEVEL" envDefault:"info"`
	Migrate         bool          `yaml:"migrate" env:"ACCOUNTS_MIGRATE" envDefault:"true"`

	// Revocation enables the Redis-backed refresh token denylist.
	Revocation bool `yaml:"revocation" env:"ACCOUNTS_REVOCATION" envDefault:"true"`

	// BootstrapEmail and BootstrapPassword create a platform administrator
	// on startup when both are set and the account does not exist yet.
	BootstrapEmail    string        `yaml:"bootstrap_email" env:"ACCOUNTS_BOOTSTRAP_EMAIL"`
	BootstrapPassword config.Secret `yaml:"bootstrap_password" env:"ACCOUNTS_BOOTSTRAP_PASSWORD"`

	Keys         keys.Config         `yaml:"keys"`
	Token        token.Config        `yaml:"token"`
	Entitlements entitlements.Config `yaml:"entitlements"`
	Gate         gate.Config         `yaml:"gate"`
	Session      session.Config      `yaml:"session"`
	Postgres     postgres.Config     `yaml:"postgres"`
	Redis        redis.Config        `yaml:"redis"`
}

func main() {
	configPath := flag.String("config", "", "optional YAML or JSON configuration file")
	flag.Parse()

	cfg := config.MustLoad[Config](config.New().WithFile(*configPath).WithDotEnv(".env"))
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("accounts exited", "error", err, "code", sserr.GetCode(err))
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	material, err := keys.Load(cfg.Keys)
	if err != nil {
		return err
	}
	issuer, err := token.NewIssuer(material, cfg.Token)
	if err != nil {
		return err
	}
	verifier, err := token.NewVerifier(material, cfg.Token)
	if err != nil {
		return err
	}
	m := metrics.New(prometheus.DefaultRegisterer)

	db, err := postgres.NewClient(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	dir := directory.New(db, directory.WithLogger(logger))
	if cfg.Migrate {
		if err := dir.Migrate(ctx); err != nil {
			db.Close()
			return err
		}
	}
	if err := bootstrap(ctx, dir, cfg, logger); err != nil {
		db.Close()
		return err
	}

	cache, err := entitlements.New(dir, cfg.Entitlements,
		entitlements.WithLogger(logger), entitlements.WithMetrics(m))
	if err != nil {
		db.Close()
		return err
	}
	resolver := tenancy.NewResolver(dir, tenancy.WithLogger(logger))
	g := gate.New(verifier, cache, cfg.Gate,
		gate.WithLogger(logger),
		gate.WithMetrics(m),
		gate.WithMembers(dir),
		gate.WithRoleServices(resolver.Roles()))

	deps := session.Deps{
		Keys:         material,
		Issuer:       issuer,
		Verifier:     verifier,
		Resolver:     resolver,
		Users:        dir,
		Members:      dir,
		Entitlements: cache,
		Gate:         g,
		Admin:        entitlements.NewAdministrator(dir, cache, logger),
	}

	svcOpts := []lifecycle.Option{
		lifecycle.WithLogger(logger),
		lifecycle.WithCheck("postgres", db.Health),
		lifecycle.WithOnStop(func(context.Context) error {
			db.Close()
			return nil
		}),
		lifecycle.OnStateChange(func(from, to lifecycle.State) {
			logger.Info("accounts state changed", "from", from.String(), "to", to.String())
		}),
	}
	if cfg.Revocation {
		rdb, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			db.Close()
			return err
		}
		deps.Revocations = redis.NewRevocationList(rdb, "")
		svcOpts = append(svcOpts,
			lifecycle.WithCheck("redis", rdb.Health),
			lifecycle.WithOnStop(func(context.Context) error { return rdb.Close() }))
	}

	handler, err := session.New(deps, cfg.Session, session.WithLogger(logger), session.WithMetrics(m))
	if err != nil {
		db.Close()
		return err
	}
	svc, err := lifecycle.New(serviceName, serviceVersion, svcOpts...)
	if err != nil {
		db.Close()
		return err
	}

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("GET /healthz", svc.HealthHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("accounts configured",
		"key_id", material.KeyID(),
		"issuer", cfg.Token.Issuer,
		"enforce_entitlements", cache.Enforcing(),
		"revocation", cfg.Revocation)
	return svc.Run(ctx, srv, cfg.ShutdownTimeout)
}

func bootstrap(ctx context.Context, dir *directory.Store, cfg Config, logger *slog.Logger) error {
	if cfg.BootstrapEmail == "" || cfg.BootstrapPassword == "" {
		return nil
	}
	u, err := dir.CreateUser(ctx, cfg.BootstrapEmail, cfg.BootstrapPassword.Value(), tenancy.RoleSuperAdmin)
	switch {
	case sserr.IsConflict(err):
		return nil
	case err != nil:
		return err
	}
	logger.InfoContext(ctx, "bootstrap administrator created", "user_id", u.ID)
	return nil
}
