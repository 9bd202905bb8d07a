package config

import (
	"errors"
	"os"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr        string
	DBDSN           string
	JWTIssuer       string
	JWTSecret       string
	InternalToken   string
	WebSocketOrigin string
	CORSOrigin      string
	RedisAddr       string
	DefaultCurrency string
	OutboxInterval  time.Duration
	LogLevel        string
}

func Load() (Config, error) {
	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")
	if c.InternalToken == "" {
		missing = append(missing, "INTERNAL_API_TOKEN")
	}
	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		missing = append(missing, "WS_ORIGIN")
	}
	// Empty disables CORS; "*" reflects the caller's origin.
	c.CORSOrigin = strings.TrimSpace(os.Getenv("CORS_ORIGIN"))
	c.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	c.DefaultCurrency = strings.ToUpper(strings.TrimSpace(os.Getenv("DEFAULT_CURRENCY")))
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = "USD"
	}
	interval := os.Getenv("OUTBOX_INTERVAL")
	if interval == "" {
		c.OutboxInterval = 5 * time.Second
	} else {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return c, err
		}
		if d <= 0 {
			return c, errors.New("OUTBOX_INTERVAL must be positive")
		}
		c.OutboxInterval = d
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}
