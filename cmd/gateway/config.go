package main

import (
	"fmt"
	"time"
)

type Config struct {
	EventBufferSize           int           `env:"EVENT_BUFFER_SIZE,default=256"`
	LimitMessages             *int          `env:"LIMIT_MESSAGES"`
	ModerationCharReplacement string        `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`
	PingInterval              time.Duration `env:"PING_INTERVAL,default=30s"`
	PongTimeout               time.Duration `env:"PONG_TIMEOUT,default=60s"`
	HealthInterval            time.Duration `env:"HEALTH_INTERVAL,default=30s"`
	BadgerFilepath            string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel                  string        `env:"LOG_LEVEL,default=info"`
	Host                      string        `env:"HOST,default=localhost"`
	Port                      int           `env:"PORT,default=8080"`
	JWTSecret                 string        `env:"JWT_SECRET,required=true"`
	JWTIssuer                 string        `env:"JWT_ISSUER,default=chat-gateway"`
	TokenDuration             time.Duration `env:"TOKEN_DURATION,default=24h"`
}

// CharacterRune validates that the replacement is exactly one character.
func (c Config) CharacterRune() (rune, error) {
	r := []rune(c.ModerationCharReplacement)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MODERATION_CHARACTER_REPLACEMENT must be a single character, got %q",
			c.ModerationCharReplacement,
		)
	}
	return r[0], nil
}
