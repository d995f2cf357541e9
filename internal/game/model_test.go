package game

import (
	"reflect"
	"testing"
	"time"
)

func TestPriceSchedule(t *testing.T) {
	stock := Stock{ID: "a", Name: "A", Prices: []int64{10_000, 30_000, 25_000}}

	tests := []struct {
		round  int
		trade  int64
		settle int64
		label  string
	}{
		{round: 1, trade: 10_000, settle: 30_000, label: "round 1 trades at the baseline"},
		{round: 2, trade: 30_000, settle: 25_000, label: "round 2 trades at round 1's settlement"},
		{round: 5, trade: 25_000, settle: 25_000, label: "past the table clamps to the last price"},
	}
	for _, tc := range tests {
		if got := TradePrice(stock, tc.round); got != tc.trade {
			t.Fatalf("%s: TradePrice=%d want %d", tc.label, got, tc.trade)
		}
		if got := SettlePrice(stock, tc.round); got != tc.settle {
			t.Fatalf("%s: SettlePrice=%d want %d", tc.label, got, tc.settle)
		}
	}

	if got := TradePrice(Stock{}, 1); got != 0 {
		t.Fatalf("empty price table should price at 0, got %d", got)
	}
}

func TestRatioTableFallback(t *testing.T) {
	ratios := DefaultRatios()
	if got := ratios.Ratio(1); got != 0.30 {
		t.Fatalf("round 1 ratio %v", got)
	}
	if got := ratios.Ratio(4); got != 1.00 {
		t.Fatalf("round 4 ratio %v", got)
	}
	if got := ratios.Ratio(9); got != 1.0 {
		t.Fatalf("unknown round must fall back to 1.0, got %v", got)
	}
}

func TestInvestmentLimitFloors(t *testing.T) {
	ratios := RatioTable{1: 0.30}
	if got := InvestmentLimit(ratios, 1, 10_000_001); got != 3_000_000 {
		t.Fatalf("limit %d want 3000000", got)
	}
	if got := InvestmentLimit(ratios, 2, 5_000_000); got != 5_000_000 {
		t.Fatalf("uncapped round limit %d want full assets", got)
	}
}

func TestPortfolioValuation(t *testing.T) {
	stocks := []Stock{
		{ID: "a", Prices: []int64{10_000, 30_000}},
		{ID: "b", Prices: []int64{5_000, 4_000}},
	}
	team := Team{
		CurrentCash: 1_000_000,
		Portfolio:   map[string]int64{"a": 10, "b": 20},
	}
	if got := PortfolioValue(team, stocks, 1); got != 200_000 {
		t.Fatalf("round 1 portfolio value %d want 200000", got)
	}
	if got := TotalAssets(team, stocks, 1); got != 1_200_000 {
		t.Fatalf("total assets %d want 1200000", got)
	}
	if got := InvestedInStock(team, stocks[0], 2); got != 300_000 {
		t.Fatalf("round 2 position in a is %d want 300000", got)
	}
}

func TestProfitRatePct(t *testing.T) {
	if got := ProfitRatePct(13_000_000, 10_000_000); got != 30.0 {
		t.Fatalf("got %v want 30", got)
	}
	if got := ProfitRatePct(9_000_000, 10_000_000); got != -10.0 {
		t.Fatalf("got %v want -10", got)
	}
	if got := ProfitRatePct(5, 0); got != 0 {
		t.Fatalf("zero base must yield 0, got %v", got)
	}
}

func TestRoundStartAssets(t *testing.T) {
	team := Team{}
	if got := RoundStartAssets(team, 10_000_000); got != 10_000_000 {
		t.Fatalf("first round starts from seed, got %d", got)
	}
	team.RoundResults = []RoundResult{{Round: 1, TotalValue: 12_500_000}}
	if got := RoundStartAssets(team, 10_000_000); got != 12_500_000 {
		t.Fatalf("later rounds start from the last settlement, got %d", got)
	}
}

func TestFallbackReportDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := TeamSnapshot{
		TeamNumber:    2,
		MaxRounds:     4,
		UnlockedCards: []string{"card-b", "card-a"},
		RoundResults: []RoundResult{
			{Round: 1, TotalValue: 11_000_000, CumulativeProfitRate: 10},
			{Round: 2, TotalValue: 12_000_000, CumulativeProfitRate: 20},
		},
		TransactionHistory: []Transaction{
			{StockID: "a", Type: TradeBuy},
			{StockID: "b", Type: TradeBuy},
			{StockID: "c", Type: TradeBuy},
		},
	}

	first := FallbackReport(snap, now)
	second := FallbackReport(snap, now)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same snapshot must produce the same report")
	}
	if first.Score < 0 || first.Score > 100 {
		t.Fatalf("score %d out of range", first.Score)
	}
	// 50 + 20 (cumulative) + 20*(2/8) card utilization.
	if first.Score != 75 {
		t.Fatalf("score %d want 75", first.Score)
	}
	if len(first.CardAnalysis) != 2 {
		t.Fatalf("card analysis %v", first.CardAnalysis)
	}
	if len(first.Strengths) == 0 {
		t.Fatalf("profitable diversified team should have strengths")
	}
}

func TestFallbackReportScoreClamps(t *testing.T) {
	now := time.Now().UTC()
	deepLoss := TeamSnapshot{
		MaxRounds:    4,
		RoundResults: []RoundResult{{CumulativeProfitRate: -95}},
	}
	if got := FallbackReport(deepLoss, now).Score; got != 20 {
		t.Fatalf("loss component must clamp at -30, got score %d", got)
	}
	bigWin := TeamSnapshot{
		MaxRounds:     1,
		UnlockedCards: []string{"a", "b", "c", "d"},
		RoundResults:  []RoundResult{{CumulativeProfitRate: 400}},
	}
	if got := FallbackReport(bigWin, now).Score; got != 100 {
		t.Fatalf("score must clamp at 100, got %d", got)
	}
}
