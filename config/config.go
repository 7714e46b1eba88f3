// Package config provides the env-driven configuration for the relay.
// All values are read once at startup and passed by injection; handlers
// never consult the environment at request time.
package config

import (
	"os"
	"strconv"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Sheets  SheetsConfig
	Twilio  TwilioConfig
	OpenAI  OpenAIConfig
	Kafka   KafkaConfig
	Persona PersonaConfig
	Session SessionConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port string
}

// SheetsConfig points at the spreadsheet webapp that receives lead records.
type SheetsConfig struct {
	WebappURL string // empty disables the sheet sink
}

// TwilioConfig carries the credentials for owner-alert SMS delivery.
// All four values must be present for the alert sink to be enabled.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string // E.164
	OwnerPhone string // E.164 alert destination
}

// Configured reports whether the alert sink has everything it needs.
func (c TwilioConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != "" && c.OwnerPhone != ""
}

type OpenAIConfig struct {
	APIKey string // empty disables AI-composed replies
	Model  string
}

// KafkaConfig enables the queued alert path when Brokers is non-empty.
type KafkaConfig struct {
	Brokers string // comma-separated broker list, e.g. "kafka:9092"
}

type PersonaConfig struct {
	Dir string // directory holding base.json plus niches/ and packs/ overlays
}

type SessionConfig struct {
	TTLMinutes int // idle minutes before a booking session expires
}

type LogConfig struct {
	Path string // empty logs to stderr
}

// Load returns application configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Sheets: SheetsConfig{
			WebappURL: getEnv("SHEETS_WEBAPP_URL", ""),
		},
		Twilio: TwilioConfig{
			AccountSID: getEnv("TWILIO_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH", ""),
			FromNumber: getEnv("TWILIO_NUMBER", ""),
			OwnerPhone: getEnv("OWNER_PHONE", ""),
		},
		OpenAI: OpenAIConfig{
			APIKey: getEnv("OPENAI_API_KEY", ""),
			Model:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnv("KAFKA_BROKERS", ""),
		},
		Persona: PersonaConfig{
			Dir: getEnv("PERSONA_DIR", "persona"),
		},
		Session: SessionConfig{
			TTLMinutes: getEnvInt("SESSION_TTL_MINUTES", 120),
		},
		Log: LogConfig{
			Path: getEnv("LOG_PATH", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
