package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sumire/stay/internal/config"
	"github.com/sumire/stay/internal/domain"
	"github.com/sumire/stay/internal/handler"
	"github.com/sumire/stay/internal/logging"
	"github.com/sumire/stay/internal/metrics"
	"github.com/sumire/stay/internal/provider"
	"github.com/sumire/stay/internal/repository"
	"github.com/sumire/stay/internal/service"
	"github.com/sumire/stay/internal/session"
	"github.com/sumire/stay/internal/signup"
)

const providerRetries = 1

var providerScopes = map[domain.Provider][]string{
	domain.ProviderGoogle: {"openid", "email", "profile"},
	domain.ProviderNaver:  nil,
	domain.ProviderKakao:  {"profile_nickname", "profile_image", "account_email"},
}

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.SetDefault(logging.New(os.Stdout, logging.Config{
		ServiceName: "stay-auth",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	}))

	db, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	slog.Info("database connected")

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	err = repository.Migrate(migrateCtx, db)
	cancelMigrate()
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	signups, closeSignups, err := newSignupStore(cfg)
	if err != nil {
		return err
	}
	defer closeSignups()

	registry, err := newProviderRegistry(cfg)
	if err != nil {
		return err
	}
	slog.Info("identity providers configured", "providers", registry.Providers())

	issuer, err := session.NewIssuer(session.Config{
		SigningKey:        []byte(cfg.JWTSecret),
		Issuer:            cfg.JWTIssuer,
		AccessValidityMs:  cfg.AccessTokenValidityMs,
		RefreshValidityMs: cfg.RefreshTokenValidityMs,
	})
	if err != nil {
		return fmt.Errorf("create token issuer: %w", err)
	}

	metrics.MustRegister()

	txm := repository.NewTxManager(db)
	memberRepo := repository.NewMemberRepository(db)
	linkRepo := repository.NewIdentityLinkRepository(db)

	resolver := service.NewIdentityResolver(txm, memberRepo, linkRepo, service.ResolverConfig{
		AutoCreate: cfg.AutoCreate(),
	})
	memberSvc := service.NewMemberService(txm, memberRepo, linkRepo)
	authSvc := service.NewAuthService(registry, resolver, memberRepo, issuer, signups, service.AuthConfig{
		SignupTTL: cfg.SignupTicketTTL,
	})

	authHandler := handler.NewAuthHandler(authSvc, memberSvc, handler.CookieConfig{
		Secure:          cfg.CookieSecure,
		AccessLifetime:  time.Duration(cfg.AccessTokenValidityMs) * time.Millisecond,
		RefreshLifetime: time.Duration(cfg.RefreshTokenValidityMs) * time.Millisecond,
	})
	memberHandler := handler.NewMemberHandler(memberSvc)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler
	e.Validator = handler.NewAppValidator()

	e.Use(middleware.RequestID())
	e.Use(handler.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentType},
		ExposeHeaders:    []string{echo.HeaderXRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	e.GET("/health", func(c echo.Context) error {
		if err := db.PingContext(c.Request().Context()); err != nil {
			return fmt.Errorf("health check: %w", err)
		}
		return handler.JSON(c, http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	handler.Routes(e.Group("/api/v1"), authHandler, memberHandler, authSvc)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port, "signup_policy", cfg.SignupPolicy)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newSignupStore uses Redis when REDIS_ADDR is set and process memory otherwise.
func newSignupStore(cfg config.Config) (signup.Store, func(), error) {
	if cfg.RedisAddr == "" {
		slog.Warn("REDIS_ADDR not set, pending signups are kept in memory")
		return signup.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	slog.Info("redis connected", "addr", cfg.RedisAddr)

	return signup.NewRedisStore(client), func() { _ = client.Close() }, nil
}

func newProviderRegistry(cfg config.Config) (*provider.Registry, error) {
	configured := map[domain.Provider]config.ProviderConfig{
		domain.ProviderGoogle: cfg.Google,
		domain.ProviderNaver:  cfg.Naver,
		domain.ProviderKakao:  cfg.Kakao,
	}

	var adapters []provider.Adapter
	for p, pc := range configured {
		if !pc.Enabled() {
			continue
		}
		client, err := provider.NewClient(provider.Config{
			Provider:     p,
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURI:  pc.RedirectURI,
			AuthURL:      pc.AuthURL,
			TokenURL:     pc.TokenURL,
			UserInfoURL:  pc.UserInfoURL,
			Scopes:       providerScopes[p],
			Timeout:      cfg.ProviderTimeout,
			MaxRetries:   providerRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("configure %s: %w", p.Key(), err)
		}
		adapters = append(adapters, client)
	}
	return provider.NewRegistry(adapters...), nil
}
