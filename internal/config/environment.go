package config

import (
	"os"

	"github.com/joho/godotenv"
)

// EnvConfig carries host-specific settings that do not belong in the
// shared tournament file. Values come from the environment, optionally
// seeded from a .env file next to the binary.
type EnvConfig struct {
	NatsURL     string // empty disables the NATS reporter
	NatsSubject string
}

func ReadEnvConfig() *EnvConfig {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	result := &EnvConfig{
		NatsURL:     os.Getenv("RACEMAN_NATS_URL"),
		NatsSubject: os.Getenv("RACEMAN_NATS_SUBJECT"),
	}
	if result.NatsSubject == "" {
		result.NatsSubject = "raceman.events"
	}
	return result
}
