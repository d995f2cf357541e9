package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type APIConfig struct {
	Addr             string
	DatabaseURL      string
	SeedMoney        int64
	InfoCardPrice    int64
	InvestmentRatios map[int]float64
	AdvisorURL       string
	AdvisorTimeout   time.Duration
	TimerTickEvery   time.Duration
}

type CLIConfig struct {
	APIBaseURL string
}

// LoadAPIFromEnv reads server configuration. DATABASE_URL is optional: when
// empty the server runs on the in-memory store.
func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("BULLPEN_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:             addr,
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SeedMoney:        envInt64Default("BULLPEN_SEED_MONEY", 10_000_000),
		InfoCardPrice:    envInt64Default("BULLPEN_INFO_CARD_PRICE", 500_000),
		AdvisorURL:       strings.TrimRight(strings.TrimSpace(os.Getenv("BULLPEN_ADVISOR_URL")), "/"),
		AdvisorTimeout:   envDurationDefault("BULLPEN_ADVISOR_TIMEOUT", 10*time.Second),
		TimerTickEvery:   envDurationDefault("BULLPEN_TIMER_TICK_EVERY", time.Second),
		InvestmentRatios: map[int]float64{1: 0.30, 2: 0.50, 3: 0.70, 4: 1.00},
	}
	if cfg.SeedMoney <= 0 {
		return cfg, fmt.Errorf("BULLPEN_SEED_MONEY must be > 0")
	}
	if raw := strings.TrimSpace(os.Getenv("BULLPEN_INVESTMENT_RATIOS")); raw != "" {
		ratios, err := parseRatios(raw)
		if err != nil {
			return cfg, fmt.Errorf("BULLPEN_INVESTMENT_RATIOS: %w", err)
		}
		cfg.InvestmentRatios = ratios
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("BPN_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

// parseRatios reads a comma list of per-round fractions, round 1 first,
// e.g. "0.3,0.5,0.7,1.0".
func parseRatios(raw string) (map[int]float64, error) {
	parts := strings.Split(raw, ",")
	out := make(map[int]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("ratio %d: %w", i+1, err)
		}
		if f <= 0 || f > 1 {
			return nil, fmt.Errorf("ratio %d must be in (0, 1]", i+1)
		}
		out[i+1] = f
	}
	return out, nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
