package game

import (
	"errors"
	"math"
)

const (
	DefaultSeedMoney     = int64(10_000_000)
	DefaultInfoCardPrice = int64(500_000)
)

var (
	ErrTradingClosed        = errors.New("trading is closed for the current step")
	ErrInsufficientCash     = errors.New("insufficient cash")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrLimitExceeded        = errors.New("per-stock investment limit exceeded")
	ErrTxConflict           = errors.New("store transaction conflict, retry the operation")
	ErrStoreUnreachable     = errors.New("store unreachable")
	ErrRoomNotFound         = errors.New("room not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrStockNotFound        = errors.New("stock not found")
	ErrTeamNotFound         = errors.New("team not found")
	ErrSlotTaken            = errors.New("team slot is taken by another leader")
	ErrGameFinished         = errors.New("game is finished")
	ErrInfoCardOwned        = errors.New("information card already unlocked")
	ErrQuantityInvalid      = errors.New("quantity must be > 0")
)

// RatioTable caps, per round, how much of a team's total assets may sit in a
// single stock. Missing rounds fall back to 1.0 (no cap).
type RatioTable map[int]float64

func DefaultRatios() RatioTable {
	return RatioTable{1: 0.30, 2: 0.50, 3: 0.70, 4: 1.00}
}

func (t RatioTable) Ratio(round int) float64 {
	if r, ok := t[round]; ok {
		return r
	}
	return 1.0
}

// TradePrice is the price every trade in the given round executes at.
func TradePrice(stock Stock, round int) int64 {
	return priceAt(stock, round-1)
}

// SettlePrice is the liquidation price when the given round is confirmed.
func SettlePrice(stock Stock, round int) int64 {
	return priceAt(stock, round)
}

func priceAt(stock Stock, idx int) int64 {
	if idx < 0 || len(stock.Prices) == 0 {
		return 0
	}
	if idx >= len(stock.Prices) {
		idx = len(stock.Prices) - 1
	}
	return stock.Prices[idx]
}

func FindStock(stocks []Stock, stockID string) (Stock, bool) {
	for _, s := range stocks {
		if s.ID == stockID {
			return s, true
		}
	}
	return Stock{}, false
}

// PortfolioValue prices every holding at the round's trading price.
func PortfolioValue(team Team, stocks []Stock, round int) int64 {
	var total int64
	for _, s := range stocks {
		qty := team.Portfolio[s.ID]
		if qty > 0 {
			total += qty * TradePrice(s, round)
		}
	}
	return total
}

func TotalAssets(team Team, stocks []Stock, round int) int64 {
	return team.CurrentCash + PortfolioValue(team, stocks, round)
}

// InvestedInStock is the team's current position in one stock at the round's
// trading price. The limit gate compares against this at the moment of
// purchase only; it is never re-checked as prices move.
func InvestedInStock(team Team, stock Stock, round int) int64 {
	qty := team.Portfolio[stock.ID]
	if qty <= 0 {
		return 0
	}
	return qty * TradePrice(stock, round)
}

func InvestmentLimit(ratios RatioTable, round int, totalAssets int64) int64 {
	return int64(math.Floor(ratios.Ratio(round) * float64(totalAssets)))
}

// ProfitRatePct is (value-base)/base as a percentage; zero base yields zero.
func ProfitRatePct(value, base int64) float64 {
	if base == 0 {
		return 0
	}
	return float64(value-base) / float64(base) * 100
}

// RoundStartAssets is the previous round's settled total, or the seed money
// for round 1.
func RoundStartAssets(team Team, seedMoney int64) int64 {
	if n := len(team.RoundResults); n > 0 {
		return team.RoundResults[n-1].TotalValue
	}
	return seedMoney
}
