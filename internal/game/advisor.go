package game

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Advisor is the external analysis service that turns a team snapshot into
// a prose report. It is optional: when unreachable the engine degrades to a
// deterministic local report so the game never blocks on it.
type Advisor struct {
	baseURL    string
	httpClient *http.Client
}

func NewAdvisor(baseURL string, timeout time.Duration) *Advisor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Advisor{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (a *Advisor) Analyze(ctx context.Context, snap TeamSnapshot) (Report, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return Report{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return Report{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("advisor request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Report{}, fmt.Errorf("advisor status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return report, nil
}

// TeamReport builds the snapshot from the latest committed state and asks
// the advisor; any advisor failure falls back to the local report.
func (s *Service) TeamReport(ctx context.Context, roomID string, teamNumber int) (Report, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return Report{}, err
	}
	team, err := teamByNumber(&room.GameState, teamNumber)
	if err != nil {
		return Report{}, err
	}
	snap := TeamSnapshot{
		RoomID:             room.ID,
		TeamID:             team.ID,
		TeamNumber:         team.Number,
		LeaderName:         team.LeaderName,
		UnlockedCards:      team.UnlockedCards,
		RoundResults:       team.RoundResults,
		FinalCash:          team.CurrentCash,
		Portfolio:          team.Portfolio,
		Stocks:             room.GameState.Stocks,
		MaxRounds:          room.MaxRounds,
		TransactionHistory: team.TransactionHistory,
	}

	if s.advisor != nil {
		report, err := s.advisor.Analyze(ctx, snap)
		if err == nil {
			return report, nil
		}
		s.log.Warn("advisor unavailable, using local report", "room", roomID, "team", teamNumber, "err", err)
	}
	return FallbackReport(snap, time.Now().UTC()), nil
}

// FallbackReport is a pure function of the snapshot: the score combines the
// cumulative profit rate with information-card utilization, and the prose is
// rule-derived. Same snapshot, same report.
func FallbackReport(snap TeamSnapshot, now time.Time) Report {
	var cumRate float64
	if n := len(snap.RoundResults); n > 0 {
		cumRate = snap.RoundResults[n-1].CumulativeProfitRate
	}

	cardBudget := snap.MaxRounds * 2
	if cardBudget < 1 {
		cardBudget = 1
	}
	cardUse := float64(len(snap.UnlockedCards)) / float64(cardBudget)
	if cardUse > 1 {
		cardUse = 1
	}

	profitComponent := cumRate
	if profitComponent > 30 {
		profitComponent = 30
	}
	if profitComponent < -30 {
		profitComponent = -30
	}
	score := int(50 + profitComponent + cardUse*20)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	tradedStocks := map[string]bool{}
	buys := 0
	for _, txn := range snap.TransactionHistory {
		tradedStocks[txn.StockID] = true
		if txn.Type == TradeBuy {
			buys++
		}
	}

	var strengths, weaknesses, recommendations []string
	if cumRate > 0 {
		strengths = append(strengths, fmt.Sprintf("Grew the seed money by %.1f%% over the game.", cumRate))
	} else if cumRate < 0 {
		weaknesses = append(weaknesses, fmt.Sprintf("Finished %.1f%% below the seed money.", -cumRate))
		recommendations = append(recommendations, "Spread buys across more rounds instead of concentrating early.")
	}
	if len(tradedStocks) >= 3 {
		strengths = append(strengths, fmt.Sprintf("Diversified across %d stocks.", len(tradedStocks)))
	} else if buys > 0 {
		weaknesses = append(weaknesses, "Positions were concentrated in very few stocks.")
		recommendations = append(recommendations, "Use the per-stock limit as a diversification floor, not a target.")
	}
	if len(snap.UnlockedCards) == 0 {
		weaknesses = append(weaknesses, "No information cards were used.")
		recommendations = append(recommendations, "Information cards pay for themselves when they confirm a price direction.")
	} else {
		strengths = append(strengths, fmt.Sprintf("Put %d information cards to work.", len(snap.UnlockedCards)))
	}
	if buys == 0 {
		weaknesses = append(weaknesses, "Never entered the market.")
		recommendations = append(recommendations, "Cash alone cannot beat the settlement table; take positions.")
	}

	cards := append([]string(nil), snap.UnlockedCards...)
	sort.Strings(cards)
	cardAnalysis := make([]string, 0, len(cards))
	for _, c := range cards {
		cardAnalysis = append(cardAnalysis, fmt.Sprintf("Card %q was unlocked and available for decisions.", c))
	}

	return Report{
		Summary: fmt.Sprintf("Team %d closed with a cumulative return of %.1f%% across %d round(s).",
			snap.TeamNumber, cumRate, len(snap.RoundResults)),
		Strengths:       strengths,
		Weaknesses:      weaknesses,
		Recommendations: recommendations,
		CardAnalysis:    cardAnalysis,
		Score:           score,
		Timestamp:       now,
	}
}
