package config

import (
	"fmt"
	"os"
)

// Template is a commented starting config for a local storefront.
func Template() string {
	return storefrontTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(storefrontTemplate), 0o600)
}

const storefrontTemplate = `name = "storefront"
listen_addr = ":8080"
cors_origins = ["http://localhost:3000"]
log_level = "info"
# api_token = "change-me"
# "memory" or a path such as "data/sessions.toml"
session_store = "memory"

[commerce]
base_url = "http://localhost:8090"
client_id = "demo-client"
call_timeout = "10s"
# merge or separate
duplicate_lines = "merge"

[cart]
# reject or queue
mutation_policy = "reject"
storage_key = "mcart"

[payment]
currency = "USD"
# stripe_secret_key = "sk_test_..."

[sessions]
# in-memory sessions idle this long are dropped; the stored cart id survives
idle_ttl = "30m"
max = 10000
`
