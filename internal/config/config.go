package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr        string
	DBDSN           string
	JWTIssuer       string
	JWTSecret       string
	JWTTTL          time.Duration
	InternalToken   string
	WebSocketOrigin string
	Mode            string
	BaseCurrency    string
	BasePrecision   int32

	// Execution gateway tuning.
	GatewayMode        string // immediate or delayed
	GatewayDelay       time.Duration
	GatewayFailureRate float64
	GatewayHedge       bool
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
	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		missing = append(missing, "WS_ORIGIN")
	}
	c.Mode = strings.ToLower(strings.TrimSpace(os.Getenv("APP_MODE")))
	if c.Mode == "" {
		c.Mode = "development"
	}
	if c.Mode != "development" && c.Mode != "production" {
		return c, errors.New("invalid APP_MODE: use development or production")
	}

	c.BaseCurrency = strings.ToUpper(strings.TrimSpace(os.Getenv("BASE_CURRENCY")))
	if c.BaseCurrency == "" {
		c.BaseCurrency = "USD"
	}
	precision := os.Getenv("BASE_PRECISION")
	if precision == "" {
		c.BasePrecision = 2
	} else {
		p, err := strconv.ParseInt(precision, 10, 32)
		if err != nil {
			return c, errors.New("invalid BASE_PRECISION")
		}
		c.BasePrecision = int32(p)
	}

	c.GatewayMode = strings.ToLower(strings.TrimSpace(os.Getenv("GATEWAY_MODE")))
	if c.GatewayMode == "" {
		c.GatewayMode = "delayed"
	}
	if c.GatewayMode != "immediate" && c.GatewayMode != "delayed" {
		return c, errors.New("invalid GATEWAY_MODE: use immediate or delayed")
	}
	delay := os.Getenv("GATEWAY_DELAY")
	if delay == "" {
		c.GatewayDelay = 200 * time.Millisecond
	} else {
		d, err := time.ParseDuration(delay)
		if err != nil {
			return c, errors.New("invalid GATEWAY_DELAY")
		}
		c.GatewayDelay = d
	}
	failureRate := os.Getenv("GATEWAY_FAILURE_RATE")
	if failureRate != "" {
		f, err := strconv.ParseFloat(failureRate, 64)
		if err != nil || f < 0 || f > 1 {
			return c, errors.New("invalid GATEWAY_FAILURE_RATE: use a value in [0,1]")
		}
		c.GatewayFailureRate = f
	}
	hedge := os.Getenv("GATEWAY_HEDGE")
	if hedge != "" {
		b, err := strconv.ParseBool(hedge)
		if err != nil {
			return c, errors.New("invalid GATEWAY_HEDGE")
		}
		c.GatewayHedge = b
	}

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}
