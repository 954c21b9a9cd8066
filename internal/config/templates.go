package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# cryptotrader configuration

[scheduler]
# Cycle interval in minutes, checked at load (floor 5, ceiling 1440);
# no other code reads this value.
default_interval_minutes = 60
# Not read by the scheduler: the pending-decision expire sweep runs every minute.
pending_sweep_interval = "1m"
# Bounded timeout for exchange calls.
exchange_timeout = "30s"
# Bounded timeout for AIDecider calls.
ai_decider_timeout = "60s"

[store]
# Directory holding the SQLite database file.
data_dir = ""
filename = "cryptotrader.db"

[security]
# Encrypt exchange credentials at rest.
encrypt_credentials = true
# Write an audit log entry for every executed trade.
audit_enabled = true
# Reject malformed model names and coin symbols in "models add" before they reach the store.
strict_validation = true

[notifications]
enabled = false
# all, trades_only, incidents_only
level = "all"

[logging]
level = "info"
console = true
file = true
file_path = ""
max_size_mb = 100
max_backups = 7
max_age_days = 30
`

const credentialsTemplate = `# cryptotrader credentials
# WARNING: keep this file secure. Do not commit to version control.
# Per-model exchange credentials (testnet/mainnet) are stored in the
# database instead; these are process-wide defaults and the AI key.

[openai]
api_key = ""

[binance]
api_key = ""
api_secret = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return fmt.Errorf("config file not found, created template at %s", path)
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return fmt.Errorf("credentials file not found, created template at %s", path)
}
