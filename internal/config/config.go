// Package config loads the storefront TOML file on top of built-in defaults.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/storefront/internal/cart"
	"github.com/danmuck/storefront/internal/commerce"
)

const (
	EnvConfigPath     = "STOREFRONT_CONFIG"
	DefaultConfigPath = "cmd/storefront/config.toml"

	// SessionStoreMemory keeps session cart ids in process memory.
	SessionStoreMemory = "memory"
)

type Config struct {
	Name        string
	ListenAddr  string
	CORSOrigins []string
	APIToken    string
	LogLevel    string
	// SessionStore is "memory" or the path of a TOML file holding cart ids.
	SessionStore string
	Commerce     CommerceConfig
	Cart         CartConfig
	Payment      PaymentConfig
	Sessions     SessionsConfig
}

// SessionsConfig bounds the server's in-memory session registry.
type SessionsConfig struct {
	IdleTTL time.Duration
	Max     int
}

type CommerceConfig struct {
	BaseURL        string
	ClientID       string
	CallTimeout    time.Duration
	DuplicateLines commerce.DuplicatePolicy
}

type CartConfig struct {
	MutationPolicy cart.MutationPolicy
	StorageKey     string
}

type PaymentConfig struct {
	Currency        string
	StripeSecretKey string
}

func Default() Config {
	return Config{
		Name:         "storefront",
		ListenAddr:   ":8080",
		CORSOrigins:  []string{"http://localhost:3000"},
		LogLevel:     "info",
		SessionStore: SessionStoreMemory,
		Commerce: CommerceConfig{
			BaseURL:        "http://localhost:8090",
			CallTimeout:    commerce.DefaultCallTimeout,
			DuplicateLines: commerce.DuplicateMerge,
		},
		Cart: CartConfig{
			MutationPolicy: cart.PolicyReject,
			StorageKey:     cart.DefaultStorageKey,
		},
		Payment: PaymentConfig{Currency: "USD"},
		Sessions: SessionsConfig{
			IdleTTL: 30 * time.Minute,
			Max:     10000,
		},
	}
}

type fileConfig struct {
	Name         string          `toml:"name"`
	ListenAddr   string          `toml:"listen_addr"`
	CORSOrigins  []string        `toml:"cors_origins"`
	APIToken     string          `toml:"api_token"`
	LogLevel     string          `toml:"log_level"`
	SessionStore string          `toml:"session_store"`
	Commerce     commerceSection `toml:"commerce"`
	Cart         cartSection     `toml:"cart"`
	Payment      paymentSection  `toml:"payment"`
	Sessions     sessionsSection `toml:"sessions"`
}

type commerceSection struct {
	BaseURL       string `toml:"base_url"`
	ClientID      string `toml:"client_id"`
	CallTimeout   string `toml:"call_timeout"`
	CallTimeoutMS int64  `toml:"call_timeout_ms"`
	Duplicate     string `toml:"duplicate_lines"`
}

type cartSection struct {
	MutationPolicy string `toml:"mutation_policy"`
	StorageKey     string `toml:"storage_key"`
}

type sessionsSection struct {
	IdleTTL string `toml:"idle_ttl"`
	Max     int    `toml:"max"`
}

type paymentSection struct {
	Currency        string `toml:"currency"`
	StripeSecretKey string `toml:"stripe_secret_key"`
}

// ResolvePath picks the flag value, then STOREFRONT_CONFIG, then the default.
func ResolvePath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultConfigPath
}

func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load storefront config (%s): %w", path, err)
	}
	cfg, err := overlay(Default(), raw, meta)
	if err != nil {
		return Config{}, fmt.Errorf("load storefront config (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("load storefront config (%s): %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a config document without touching the filesystem.
func Parse(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse storefront config: %w", err)
	}
	cfg, err := overlay(Default(), raw, meta)
	if err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlay(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = trimAll(raw.CORSOrigins)
	}
	if meta.IsDefined("api_token") {
		cfg.APIToken = strings.TrimSpace(raw.APIToken)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("session_store") {
		cfg.SessionStore = strings.TrimSpace(raw.SessionStore)
	}

	if meta.IsDefined("commerce", "base_url") {
		cfg.Commerce.BaseURL = strings.TrimSpace(raw.Commerce.BaseURL)
	}
	if meta.IsDefined("commerce", "client_id") {
		cfg.Commerce.ClientID = strings.TrimSpace(raw.Commerce.ClientID)
	}
	if meta.IsDefined("commerce", "call_timeout_ms") {
		cfg.Commerce.CallTimeout = time.Duration(raw.Commerce.CallTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("commerce", "call_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Commerce.CallTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("commerce.call_timeout: %w", err)
		}
		cfg.Commerce.CallTimeout = d
	}
	if meta.IsDefined("commerce", "duplicate_lines") {
		cfg.Commerce.DuplicateLines = commerce.DuplicatePolicy(strings.ToLower(strings.TrimSpace(raw.Commerce.Duplicate)))
	}

	if meta.IsDefined("cart", "mutation_policy") {
		policy, err := cart.ParseMutationPolicy(raw.Cart.MutationPolicy)
		if err != nil {
			return Config{}, err
		}
		cfg.Cart.MutationPolicy = policy
	}
	if meta.IsDefined("cart", "storage_key") {
		cfg.Cart.StorageKey = strings.TrimSpace(raw.Cart.StorageKey)
	}

	if meta.IsDefined("payment", "currency") {
		cfg.Payment.Currency = strings.ToUpper(strings.TrimSpace(raw.Payment.Currency))
	}
	if meta.IsDefined("payment", "stripe_secret_key") {
		cfg.Payment.StripeSecretKey = strings.TrimSpace(raw.Payment.StripeSecretKey)
	}

	if meta.IsDefined("sessions", "idle_ttl") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Sessions.IdleTTL))
		if err != nil {
			return Config{}, fmt.Errorf("sessions.idle_ttl: %w", err)
		}
		cfg.Sessions.IdleTTL = d
	}
	if meta.IsDefined("sessions", "max") {
		cfg.Sessions.Max = raw.Sessions.Max
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("storefront config missing listen_addr")
	}
	base := strings.TrimSpace(cfg.Commerce.BaseURL)
	if base == "" {
		return fmt.Errorf("storefront config missing commerce.base_url")
	}
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("storefront config commerce.base_url %q is not an absolute url", base)
	}
	if strings.TrimSpace(cfg.Commerce.ClientID) == "" {
		return fmt.Errorf("storefront config missing commerce.client_id")
	}
	if cfg.Commerce.CallTimeout <= 0 {
		return fmt.Errorf("storefront config commerce.call_timeout must be positive")
	}
	switch cfg.Commerce.DuplicateLines {
	case commerce.DuplicateMerge, commerce.DuplicateSeparate:
	default:
		return fmt.Errorf("storefront config commerce.duplicate_lines %q (expected merge or separate)", cfg.Commerce.DuplicateLines)
	}
	switch cfg.Cart.MutationPolicy {
	case cart.PolicyReject, cart.PolicyQueue:
	default:
		return fmt.Errorf("storefront config cart.mutation_policy %q (expected reject or queue)", cfg.Cart.MutationPolicy)
	}
	if strings.TrimSpace(cfg.Cart.StorageKey) == "" {
		return fmt.Errorf("storefront config missing cart.storage_key")
	}
	if strings.TrimSpace(cfg.SessionStore) == "" {
		return fmt.Errorf("storefront config missing session_store")
	}
	if cfg.Sessions.IdleTTL <= 0 {
		return fmt.Errorf("storefront config sessions.idle_ttl must be positive")
	}
	if cfg.Sessions.Max <= 0 {
		return fmt.Errorf("storefront config sessions.max must be positive")
	}
	if len(cfg.Payment.Currency) != 3 {
		return fmt.Errorf("storefront config payment.currency %q must be a 3-letter code", cfg.Payment.Currency)
	}
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
