package config

import (
	"testing"
	"time"
)

func TestLoadAPIFromEnvDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("BULLPEN_API_ADDR", "")
	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr %q", cfg.Addr)
	}
	if cfg.SeedMoney != 10_000_000 || cfg.InfoCardPrice != 500_000 {
		t.Fatalf("money defaults %d/%d", cfg.SeedMoney, cfg.InfoCardPrice)
	}
	if cfg.InvestmentRatios[1] != 0.30 || cfg.InvestmentRatios[4] != 1.00 {
		t.Fatalf("ratio defaults %v", cfg.InvestmentRatios)
	}
	if cfg.TimerTickEvery != time.Second {
		t.Fatalf("timer tick %v", cfg.TimerTickEvery)
	}
}

func TestLoadAPIFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BULLPEN_SEED_MONEY", "5000000")
	t.Setenv("BULLPEN_INVESTMENT_RATIOS", "0.2,0.4")
	t.Setenv("BULLPEN_ADVISOR_URL", "http://advisor:9000/")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr %q", cfg.Addr)
	}
	if cfg.SeedMoney != 5_000_000 {
		t.Fatalf("seed money %d", cfg.SeedMoney)
	}
	if cfg.InvestmentRatios[1] != 0.2 || cfg.InvestmentRatios[2] != 0.4 || len(cfg.InvestmentRatios) != 2 {
		t.Fatalf("ratios %v", cfg.InvestmentRatios)
	}
	if cfg.AdvisorURL != "http://advisor:9000" {
		t.Fatalf("advisor url %q must drop the trailing slash", cfg.AdvisorURL)
	}
}

func TestLoadAPIFromEnvBadRatios(t *testing.T) {
	t.Setenv("BULLPEN_INVESTMENT_RATIOS", "0.3,nope")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("malformed ratio list must fail")
	}
	t.Setenv("BULLPEN_INVESTMENT_RATIOS", "0.3,1.5")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("ratio above 1 must fail")
	}
}

func TestLoadCLIFromEnv(t *testing.T) {
	if got := LoadCLIFromEnv().APIBaseURL; got != "http://localhost:8080" {
		t.Fatalf("default base url %q", got)
	}
	t.Setenv("BPN_API_BASE_URL", "http://game.local/")
	if got := LoadCLIFromEnv().APIBaseURL; got != "http://game.local" {
		t.Fatalf("base url %q", got)
	}
}
