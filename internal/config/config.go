// Package config loads the rule engine's configuration from a JSON file
// merged with FTY_-prefixed environment variable overrides, using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting the core components need. CLI/flag parsing
// that would populate configPath is external to this package.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Poll      PollConfig      `mapstructure:"poll"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Security  SecurityConfig  `mapstructure:"security"`
	OpsNotify OpsNotifyConfig `mapstructure:"opsNotify"`
}

// ServerConfig is the broker HTTP/WS transport bind address.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// PathsConfig is the on-disk layout for rule templates, the rule catalog,
// and the autoconfigurator's persisted state.
type PathsConfig struct {
	RulesDir     string `mapstructure:"rulesDir"`
	TemplatesDir string `mapstructure:"templatesDir"`
	StateDir     string `mapstructure:"stateDir"`
}

// PollConfig drives the autoconfigurator's timer.
type PollConfig struct {
	DefaultInterval     time.Duration `mapstructure:"defaultInterval"`
	FastInterval        time.Duration `mapstructure:"fastInterval"`
	DisableXPhaseFilter bool          `mapstructure:"disableXPhaseFilter"`
}

// AuditConfig points at the sqlite-backed audit trail.
type AuditConfig struct {
	DBPath string `mapstructure:"dbPath"`
}

// SecurityConfig holds the AES-GCM key used to encrypt PII ext attributes
// at rest, and the mailbox bearer token.
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryptionKey"`
	MailboxToken  string `mapstructure:"mailboxToken"`
}

// OpsNotifyConfig configures the operator-facing internal-fault notifier.
type OpsNotifyConfig struct {
	DiscordWebhookURL string `mapstructure:"discordWebhookUrl"`
	TelegramBotToken  string `mapstructure:"telegramBotToken"`
	TelegramChatID    string `mapstructure:"telegramChatId"`
}

var (
	cfg           *Config
	viperInstance *viper.Viper
)

// Load reads configPath (if non-empty) or "./config.json", merges FTY_
// environment overrides, and returns the resulting Config.
func Load(configPath string) (*Config, error) {
	viperInstance = viper.New()
	v := viperInstance

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("paths.rulesDir", "./data/rules")
	v.SetDefault("paths.templatesDir", "./data/templates")
	v.SetDefault("paths.stateDir", "./data/state")
	v.SetDefault("poll.defaultInterval", "60s")
	v.SetDefault("poll.fastInterval", "5s")
	v.SetDefault("poll.disableXPhaseFilter", false)
	v.SetDefault("audit.dbPath", "./data/audit.db")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("FTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// Get returns the global config instance loaded by Load.
func Get() *Config {
	return cfg
}
