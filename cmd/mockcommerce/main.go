package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/danmuck/storefront/internal/commerce/mockapi"
	"github.com/danmuck/storefront/internal/logging"
	"github.com/danmuck/storefront/internal/observability"
	"github.com/rs/zerolog/log"
)

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	clientID := flag.String("client-id", "demo-client", "client id accepted by the implicit grant")
	flag.Parse()

	logging.ConfigureRuntime()
	observability.InitLogger("mockcommerce")

	remote := mockapi.New(*clientID, mockapi.DemoCatalog())
	srv := &http.Server{
		Addr:              *addr,
		Handler:           remote.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", *addr).Str("client_id", *clientID).Msg("mock commerce api listening")
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("mock commerce api stopped")
	}
}
