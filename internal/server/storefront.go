// Package server exposes cart and checkout state to the presentation layer
// over HTTP. Each shopper session gets its own cart controller and checkout
// flow.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/storefront/internal/auth"
	"github.com/danmuck/storefront/internal/cart"
	"github.com/danmuck/storefront/internal/commerce"
	"github.com/danmuck/storefront/internal/observability"
	"github.com/danmuck/storefront/internal/store"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultName         = "storefront"
	readyProbeTimeout   = 3 * time.Second
	shutdownGracePeriod = 10 * time.Second
)

type Options struct {
	Name        string
	Addr        string
	CORSOrigins []string
	// Validator guards /api when set.
	Validator auth.Validator
	Commerce  commerce.Adapter
	// SessionKV holds each session's cart id; defaults to memory.
	SessionKV store.KV
	// SessionLimits bounds the in-memory session registry.
	SessionLimits SessionLimits
	CartOptions   []cart.Option
}

type Storefront struct {
	Name     string
	Addr     string
	Appeared time.Time
	Sessions *Sessions

	api       commerce.Adapter
	validator auth.Validator
	router    *gin.Engine
	logger    zerolog.Logger
}

var ErrNoCommerce = errors.New("server: commerce adapter required")

func New(opts Options) (*Storefront, error) {
	if opts.Commerce == nil {
		return nil, ErrNoCommerce
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = defaultName
	}

	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  normalizeOrigins(opts.CORSOrigins),
		AllowMethods:  []string{"GET", "POST", "DELETE"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", auth.HeaderAPIToken, observability.HeaderSessionID},
		ExposeHeaders: []string{observability.HeaderSessionID, observability.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Storefront{
		Name:      name,
		Addr:      opts.Addr,
		Appeared:  time.Now(),
		Sessions:  NewSessions(opts.Commerce, opts.SessionKV, opts.SessionLimits, opts.CartOptions...),
		api:       opts.Commerce,
		validator: opts.Validator,
		router:    r,
		logger:    observability.Component("server"),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Storefront) Handler() http.Handler {
	return s.router
}

// Serve listens on Addr until ctx is done, then shuts down gracefully. Idle
// sessions are swept for as long as Serve runs.
func (s *Storefront) Serve(ctx context.Context) error {
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.Sessions.Run(sweepCtx)

	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.Addr).Str("name", s.Name).Msg("storefront listening")
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	s.logger.Info().Msg("storefront shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
