package game

import "time"

type GameStatus string

const (
	StatusIdle     GameStatus = "idle"
	StatusReady    GameStatus = "ready"
	StatusRound1   GameStatus = "round_1"
	StatusRound2   GameStatus = "round_2"
	StatusRound3   GameStatus = "round_3"
	StatusRound4   GameStatus = "round_4"
	StatusFinished GameStatus = "finished"
)

type GameStep string

const (
	StepMiniGame        GameStep = "mini_game"
	StepInfoPurchase    GameStep = "info_purchase"
	StepInfoNegotiation GameStep = "info_negotiation"
	StepInvestment      GameStep = "investment"
	StepResult          GameStep = "result"
)

// StepOrder is the cyclic per-round step progression.
var StepOrder = []GameStep{
	StepMiniGame,
	StepInfoPurchase,
	StepInfoNegotiation,
	StepInvestment,
	StepResult,
}

func StepIndex(step GameStep) int {
	for i, s := range StepOrder {
		if s == step {
			return i
		}
	}
	return -1
}

func RoundStatus(round int) GameStatus {
	switch round {
	case 1:
		return StatusRound1
	case 2:
		return StatusRound2
	case 3:
		return StatusRound3
	case 4:
		return StatusRound4
	default:
		return StatusFinished
	}
}

type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

// Room is the whole shared document for one game: one key in the store,
// one atomic unit for every transaction.
type Room struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	AdminPasswordHash string    `json:"admin_password_hash,omitempty"`
	TotalTeams        int       `json:"total_teams"`
	MaxRounds         int       `json:"max_rounds"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	GameState         GameState `json:"game_state"`
}

type GameState struct {
	CurrentRound          int        `json:"current_round"`
	CurrentStatus         GameStatus `json:"current_status"`
	CurrentStep           GameStep   `json:"current_step"`
	CompletedSteps        []GameStep `json:"completed_steps"`
	IsTimerRunning        bool       `json:"is_timer_running"`
	TimerSeconds          int        `json:"timer_seconds"`
	TimerMaxSeconds       int        `json:"timer_max_seconds"`
	IsInvestmentLocked    bool       `json:"is_investment_locked"`
	IsInvestmentConfirmed bool       `json:"is_investment_confirmed"`
	IsPortfolioLocked     bool       `json:"is_portfolio_locked"`
	RevealedResults       bool       `json:"revealed_results"`
	Teams                 []Team     `json:"teams"`
	Stocks                []Stock    `json:"stocks"`
}

// Stock prices are fixed at room creation. Index 0 is the pre-game baseline
// and the trading price of round 1; index r is the settlement price of
// round r and the trading price of round r+1.
type Stock struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Prices []int64 `json:"prices"`
}

type Team struct {
	ID                         string           `json:"id"`
	Number                     int              `json:"number"`
	LeaderName                 string           `json:"leader_name"`
	Members                    []string         `json:"members,omitempty"`
	CurrentCash                int64            `json:"current_cash"`
	Portfolio                  map[string]int64 `json:"portfolio,omitempty"`
	UnlockedCards              []string         `json:"unlocked_cards,omitempty"`
	GrantedInfoCount           int              `json:"granted_info_count"`
	PurchasedInfoCountPerRound map[int]int      `json:"purchased_info_count_per_round,omitempty"`
	RoundResults               []RoundResult    `json:"round_results,omitempty"`
	TransactionHistory         []Transaction    `json:"transaction_history,omitempty"`
}

// Transaction records are append-only; settlement sells carry profit fields.
type Transaction struct {
	ID             string    `json:"id"`
	Round          int       `json:"round"`
	StockID        string    `json:"stock_id"`
	StockName      string    `json:"stock_name"`
	Type           TradeType `json:"type"`
	Quantity       int64     `json:"quantity"`
	PricePerShare  int64     `json:"price_per_share"`
	TotalAmount    int64     `json:"total_amount"`
	Timestamp      time.Time `json:"timestamp"`
	ProfitLoss     *int64    `json:"profit_loss,omitempty"`
	ProfitLossRate *float64  `json:"profit_loss_rate,omitempty"`
}

type RoundResult struct {
	Round                int     `json:"round"`
	PortfolioValue       int64   `json:"portfolio_value"`
	TotalValue           int64   `json:"total_value"`
	ProfitRate           float64 `json:"profit_rate"`
	CumulativeProfitRate float64 `json:"cumulative_profit_rate"`
}

type TradeInput struct {
	Type     TradeType `json:"type"`
	StockID  string    `json:"stock_id"`
	Quantity int64     `json:"quantity"`
	Round    int       `json:"round"`
}

type TradeResult struct {
	Transaction Transaction `json:"transaction"`
	CurrentCash int64       `json:"current_cash"`
	Holdings    int64       `json:"holdings"`
}

type CreateRoomInput struct {
	Name      string
	Password  string
	TeamCount int
	MaxRounds int
	Stocks    []Stock
}

// TeamSnapshot is the advisory service's input: everything a report needs,
// frozen at request time.
type TeamSnapshot struct {
	RoomID             string           `json:"room_id"`
	TeamID             string           `json:"team_id"`
	TeamNumber         int              `json:"team_number"`
	LeaderName         string           `json:"leader_name"`
	UnlockedCards      []string         `json:"unlocked_cards"`
	RoundResults       []RoundResult    `json:"round_results"`
	FinalCash          int64            `json:"final_cash"`
	Portfolio          map[string]int64 `json:"portfolio"`
	Stocks             []Stock          `json:"stocks"`
	MaxRounds          int              `json:"max_rounds"`
	TransactionHistory []Transaction    `json:"transaction_history"`
}

type Report struct {
	Summary         string    `json:"summary"`
	Strengths       []string  `json:"strengths"`
	Weaknesses      []string  `json:"weaknesses"`
	Recommendations []string  `json:"recommendations"`
	CardAnalysis    []string  `json:"card_analysis"`
	Score           int       `json:"score"`
	Timestamp       time.Time `json:"timestamp"`
}
