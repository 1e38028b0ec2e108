package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/me/folio/internal/config"
	"github.com/me/folio/internal/devapi"
	"github.com/me/folio/internal/logging"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg := config.DefaultDevAPIConfig()
	cfg.ApplyEnv()

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "HS256 signing secret")
	flag.DurationVar(&cfg.AccessTTL, "access-ttl", cfg.AccessTTL, "Lifetime of issued access tokens")
	flag.StringVar(&cfg.TOTPCode, "totp-code", cfg.TOTPCode, "Second-factor code accepted for 2FA accounts")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	legacy := flag.Bool("legacy-routes", false, "Serve only the flat copy routes of older deployments")

	flag.Parse()

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	var opts []devapi.Option
	if *legacy {
		opts = append(opts, devapi.WithLegacyRoutes())
	}
	srv, err := devapi.New(cfg, logger, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start dev API: %v\n", err)
		os.Exit(1)
	}
	logger.Info("demo accounts",
		"admin", devapi.DemoAdminEmail,
		"member", devapi.DemoMemberEmail,
		"password", devapi.DemoPassword,
		"totp", cfg.TOTPCode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		srv.Close()
	}()

	if err := srv.Start(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
