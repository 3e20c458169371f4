package config

import "path/filepath"

// Defaults returns the default configuration. Tokens default to environment
// references so a checked-in config never carries secrets.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Telegram: TelegramConfig{
			Token: "${TELEGRAM_BOT_TOKEN}",
		},
		Viber: ViberConfig{
			TestToken:      "${VIBER_AUTH_TOKEN:-}",
			TimeoutSeconds: 30,
		},
		Storage: StorageConfig{
			DBPath: filepath.Join(DefaultConfigDir(), "vibergram.db"),
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9432",
		},
	}
}
