package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr          string
	DBDSN             string
	JWTIssuer         string
	JWTSecret         string
	JWTTTL            time.Duration
	InternalToken     string
	AppEnv            string
	LogLevel          string
	FeeBps            int64
	FeeAccountID      string
	ReconcileInterval time.Duration
	ReconcileBatch    int
	OutboxInterval    time.Duration
	OutboxMaxAttempts int
	OpenTradeTTL      time.Duration
	AcceptedTradeTTL  time.Duration
	EscrowTradeTTL    time.Duration
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
	jwtTTL := os.Getenv("JWT_TTL")
	if jwtTTL == "" {
		missing = append(missing, "JWT_TTL")
	} else {
		d, err := time.ParseDuration(jwtTTL)
		if err != nil {
			return c, err
		}
		c.JWTTTL = d
	}
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")
	if c.InternalToken == "" {
		missing = append(missing, "INTERNAL_API_TOKEN")
	}
	c.AppEnv = strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if c.AppEnv == "" {
		c.AppEnv = "development"
	}
	if c.AppEnv != "development" && c.AppEnv != "production" {
		return c, errors.New("invalid APP_ENV: use development or production")
	}
	c.LogLevel = os.Getenv("LOG_LEVEL")
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	var err error
	c.FeeBps, err = int64Env("FEE_BPS", 0)
	if err != nil {
		return c, err
	}
	if c.FeeBps < 0 || c.FeeBps > 10000 {
		return c, errors.New("FEE_BPS must be between 0 and 10000")
	}
	c.FeeAccountID = os.Getenv("FEE_ACCOUNT_ID")
	if c.FeeBps > 0 && c.FeeAccountID == "" {
		missing = append(missing, "FEE_ACCOUNT_ID")
	}

	c.ReconcileInterval, err = durationEnv("RECONCILE_INTERVAL", 5*time.Second)
	if err != nil {
		return c, err
	}
	batch, err := int64Env("RECONCILE_BATCH", 50)
	if err != nil {
		return c, err
	}
	if batch <= 0 {
		return c, errors.New("RECONCILE_BATCH must be positive")
	}
	c.ReconcileBatch = int(batch)
	c.OutboxInterval, err = durationEnv("OUTBOX_INTERVAL", 2*time.Second)
	if err != nil {
		return c, err
	}
	maxAttempts, err := int64Env("OUTBOX_MAX_ATTEMPTS", 5)
	if err != nil {
		return c, err
	}
	if maxAttempts <= 0 {
		return c, errors.New("OUTBOX_MAX_ATTEMPTS must be positive")
	}
	c.OutboxMaxAttempts = int(maxAttempts)
	c.OpenTradeTTL, err = durationEnv("OPEN_TRADE_TTL", 15*time.Minute)
	if err != nil {
		return c, err
	}
	c.AcceptedTradeTTL, err = durationEnv("ACCEPTED_TRADE_TTL", time.Hour)
	if err != nil {
		return c, err
	}
	c.EscrowTradeTTL, err = durationEnv("ESCROW_TRADE_TTL", 2*time.Hour)
	if err != nil {
		return c, err
	}

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func int64Env(key string, def int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}
