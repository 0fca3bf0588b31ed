package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/storefront/internal/auth"
	"github.com/danmuck/storefront/internal/cart"
	"github.com/danmuck/storefront/internal/commerce"
	"github.com/danmuck/storefront/internal/config"
	"github.com/danmuck/storefront/internal/logging"
	"github.com/danmuck/storefront/internal/observability"
	"github.com/danmuck/storefront/internal/server"
	"github.com/danmuck/storefront/internal/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configFlag := flag.String("config", "", "path to storefront config.toml (default $"+config.EnvConfigPath+" or "+config.DefaultConfigPath+")")
	flag.Parse()

	logging.ConfigureRuntime()
	configPath := config.ResolvePath(*configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load storefront config")
	}
	if os.Getenv(logging.EnvLogLevel) == "" {
		if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
			zerolog.SetGlobalLevel(lvl)
		}
	}
	logger := observability.InitLogger(cfg.Name)
	logger.Info().Str("path", configPath).Msg("loaded storefront config")

	client, err := commerce.NewClient(commerce.Config{
		BaseURL:        cfg.Commerce.BaseURL,
		ClientID:       cfg.Commerce.ClientID,
		CallTimeout:    cfg.Commerce.CallTimeout,
		DuplicateLines: cfg.Commerce.DuplicateLines,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build commerce client")
	}

	sessionKV, err := openSessionStore(cfg.SessionStore)
	if err != nil {
		logger.Fatal().Err(err).Str("session_store", cfg.SessionStore).Msg("failed to open session store")
	}

	var validator auth.Validator
	if cfg.APIToken != "" {
		validator = auth.StaticToken{Token: cfg.APIToken}
	}

	front, err := server.New(server.Options{
		Name:        cfg.Name,
		Addr:        cfg.ListenAddr,
		CORSOrigins: cfg.CORSOrigins,
		Validator:   validator,
		Commerce:    client,
		SessionKV:   sessionKV,
		SessionLimits: server.SessionLimits{
			IdleTTL: cfg.Sessions.IdleTTL,
			Max:     cfg.Sessions.Max,
		},
		CartOptions: []cart.Option{
			cart.WithMutationPolicy(cfg.Cart.MutationPolicy),
			cart.WithStorageKey(cfg.Cart.StorageKey),
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build storefront")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info().
		Str("addr", cfg.ListenAddr).
		Str("commerce", cfg.Commerce.BaseURL).
		Str("mutation_policy", string(cfg.Cart.MutationPolicy)).
		Str("duplicate_lines", string(cfg.Commerce.DuplicateLines)).
		Msg("storefront started")
	if err := front.Serve(ctx); err != nil {
		logger.Fatal().Err(err).Msg("storefront stopped")
	}
}

func openSessionStore(location string) (store.KV, error) {
	if location == "" || location == config.SessionStoreMemory {
		return store.NewMemory(), nil
	}
	return store.OpenFile(location)
}
