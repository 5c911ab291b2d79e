// Package config loads the pipeline configuration from an optional JSON
// file plus environment variables. Every component receives its slice of
// this structure at construction; nothing reads configuration globally.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultPath is where Load looks for a config file when none is given.
const DefaultPath = "config.json"

// Actions a PII policy can take on a field.
const (
	ActionRemove = "remove"
	ActionRedact = "redact"
)

// Config is the full application configuration.
type Config struct {
	LogLevel string `json:"log-level" mapstructure:"log-level"`

	// Columns is the column order of the headerless raw CSV export.
	Columns []string `json:"columns" mapstructure:"columns"`
	// Fields maps semantic field name -> source column header.
	Fields map[string]string `json:"fields" mapstructure:"fields"`
	// DefaultQty fills the qty field, which the raw export does not carry.
	DefaultQty string `json:"default-qty" mapstructure:"default-qty"`

	RequiredFields  []string `json:"required-fields" mapstructure:"required-fields"`
	KnownSizes      []string `json:"known-sizes" mapstructure:"known-sizes"`
	DateTimeLayouts []string `json:"date-time-layouts" mapstructure:"date-time-layouts"`

	PII      PIIPolicy      `json:"pii" mapstructure:"pii"`
	Postgres PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// PIIPolicy enumerates the fields classified as personally identifying and
// what to do with each. Fields not listed and not recognized as business
// fields are redacted conservatively.
type PIIPolicy struct {
	// Actions maps field name -> "remove" | "redact".
	Actions map[string]string `json:"actions" mapstructure:"actions"`
	// RedactionMarker replaces redacted values.
	RedactionMarker string `json:"redaction-marker" mapstructure:"redaction-marker"`
}

// IsPII reports whether the policy lists the field.
func (p PIIPolicy) IsPII(field string) bool {
	_, ok := p.Actions[field]
	return ok
}

// PostgresConfig holds the connection settings for the relational store.
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	User     string `json:"user" mapstructure:"user"`
	Password string `json:"password" mapstructure:"password"`
	DBName   string `json:"dbname" mapstructure:"dbname"`
	SSLMode  string `json:"sslmode" mapstructure:"sslmode"`
}

// DSN renders the lib/pq connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Load reads configuration from the given JSON file (optional; defaults
// apply when it is absent) and from environment variables, which take
// precedence. Env keys use underscores: POSTGRES_HOST, LOG_LEVEL, ...
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = DefaultPath
	}
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	for _, key := range []string{
		"log-level",
		"postgres.host", "postgres.port", "postgres.user",
		"postgres.password", "postgres.dbname", "postgres.sslmode",
	} {
		v.BindEnv(key)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine: defaults plus env cover everything.
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log-level", "info")

	// Column order of the raw branch export.
	v.SetDefault("columns", []string{
		"Date/Time", "Branch", "Customer Name", "Product",
		"Price", "Payment Type", "Card Number",
	})
	v.SetDefault("fields", map[string]string{
		"date_time":     "Date/Time",
		"branch":        "Branch",
		"customer_name": "Customer Name",
		"product":       "Product",
		"price":         "Price",
		"payment_type":  "Payment Type",
		"card_number":   "Card Number",
	})
	v.SetDefault("default-qty", "1")

	v.SetDefault("required-fields", []string{"branch", "date_time", "qty", "price"})
	v.SetDefault("known-sizes", []string{"small", "regular", "medium", "large"})
	v.SetDefault("date-time-layouts", []string{
		"2006-01-02 15:04:05",
		"02/01/2006 15:04",
	})

	v.SetDefault("pii.actions", map[string]string{
		"customer_name": ActionRemove,
		"card_number":   ActionRemove,
		"email":         ActionRemove,
		"phone":         ActionRemove,
	})
	v.SetDefault("pii.redaction-marker", "[REDACTED]")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "cafe")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "cafe")
	v.SetDefault("postgres.sslmode", "disable")
}

func (c *Config) validate() error {
	if len(c.Columns) == 0 {
		return fmt.Errorf("config: columns must not be empty")
	}
	if len(c.Fields) == 0 {
		return fmt.Errorf("config: fields mapping must not be empty")
	}
	known := make(map[string]bool, len(c.Columns))
	for _, col := range c.Columns {
		known[col] = true
	}
	for field, col := range c.Fields {
		if !known[col] {
			return fmt.Errorf("config: field %q maps to column %q which is not in columns", field, col)
		}
	}
	for field, action := range c.PII.Actions {
		if action != ActionRemove && action != ActionRedact {
			return fmt.Errorf("config: pii action for %q must be %q or %q, got %q",
				field, ActionRemove, ActionRedact, action)
		}
	}
	if len(c.DateTimeLayouts) == 0 {
		return fmt.Errorf("config: date-time-layouts must not be empty")
	}
	return nil
}
