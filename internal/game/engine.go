package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bullpen/internal/store"
)

// Service executes every game mutation as a pure updater handed to the
// document store, so concurrent admins and teams converge through the
// store's optimistic retry instead of any local locking.
type Service struct {
	store   store.Store
	log     *slog.Logger
	advisor *Advisor

	seedMoney     int64
	infoCardPrice int64
	ratios        RatioTable

	timerMu    sync.Mutex
	timerRooms map[string]struct{}
}

type Options struct {
	SeedMoney     int64
	InfoCardPrice int64
	Ratios        RatioTable
	Advisor       *Advisor
}

func NewService(st store.Store, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SeedMoney <= 0 {
		opts.SeedMoney = DefaultSeedMoney
	}
	if opts.InfoCardPrice <= 0 {
		opts.InfoCardPrice = DefaultInfoCardPrice
	}
	if opts.Ratios == nil {
		opts.Ratios = DefaultRatios()
	}
	return &Service{
		store:         st,
		log:           logger,
		advisor:       opts.Advisor,
		seedMoney:     opts.SeedMoney,
		infoCardPrice: opts.InfoCardPrice,
		ratios:        opts.Ratios,
		timerRooms:    make(map[string]struct{}),
	}
}

func (s *Service) SeedMoney() int64 { return s.seedMoney }

// transactRoom runs apply against the freshest room snapshot inside a store
// transaction. A business-rule error from apply commits the snapshot
// unchanged (a byte-for-byte no-op) and surfaces the specific reason to the
// caller; only the final committed state is ever observable.
func (s *Service) transactRoom(ctx context.Context, roomID string, apply func(*Room) error) (Room, error) {
	var denied error
	res, err := s.store.Transact(ctx, roomID, func(cur []byte) ([]byte, error) {
		denied = nil
		if cur == nil {
			return nil, store.ErrNotFound
		}
		var room Room
		if err := json.Unmarshal(cur, &room); err != nil {
			return nil, fmt.Errorf("decode room %q: %w", roomID, err)
		}
		if err := apply(&room); err != nil {
			denied = err
			return cur, nil
		}
		return json.Marshal(room)
	})
	if err != nil {
		return Room{}, mapStoreErr(err)
	}
	if denied != nil {
		return Room{}, denied
	}
	var room Room
	if err := json.Unmarshal(res.Snapshot.Data, &room); err != nil {
		return Room{}, fmt.Errorf("decode committed room %q: %w", roomID, err)
	}
	return room, nil
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrRoomNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrTxConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
}

func (s *Service) GetRoom(ctx context.Context, roomID string) (Room, error) {
	snap, err := s.store.Read(ctx, roomID)
	if err != nil {
		return Room{}, mapStoreErr(err)
	}
	var room Room
	if err := json.Unmarshal(snap.Data, &room); err != nil {
		return Room{}, fmt.Errorf("decode room %q: %w", roomID, err)
	}
	return room, nil
}

func teamByNumber(gs *GameState, number int) (*Team, error) {
	if number < 1 || number > len(gs.Teams) {
		return nil, ErrTeamNotFound
	}
	return &gs.Teams[number-1], nil
}

// ExecuteTrade applies one buy or sell for a team. Preconditions are
// revalidated against the snapshot the store hands the updater, never the
// caller's possibly stale view; a trade only touches the acting team.
func (s *Service) ExecuteTrade(ctx context.Context, roomID string, teamNumber int, in TradeInput) (TradeResult, error) {
	if in.Quantity <= 0 {
		return TradeResult{}, ErrQuantityInvalid
	}
	if in.Type != TradeBuy && in.Type != TradeSell {
		return TradeResult{}, fmt.Errorf("trade type must be %q or %q", TradeBuy, TradeSell)
	}

	var out TradeResult
	_, err := s.transactRoom(ctx, roomID, func(room *Room) error {
		gs := &room.GameState
		if gs.CurrentStatus == StatusFinished {
			return ErrGameFinished
		}
		if gs.CurrentStep != StepInvestment || gs.IsInvestmentLocked || gs.IsInvestmentConfirmed {
			return ErrTradingClosed
		}
		if in.Round != 0 && in.Round != gs.CurrentRound {
			return ErrTradingClosed
		}
		team, err := teamByNumber(gs, teamNumber)
		if err != nil {
			return err
		}
		stock, ok := FindStock(gs.Stocks, in.StockID)
		if !ok {
			return ErrStockNotFound
		}
		price := TradePrice(stock, gs.CurrentRound)
		if price <= 0 {
			return ErrStockNotFound
		}
		total := in.Quantity * price

		txn := Transaction{
			ID:            uuid.NewString(),
			Round:         gs.CurrentRound,
			StockID:       stock.ID,
			StockName:     stock.Name,
			Type:          in.Type,
			Quantity:      in.Quantity,
			PricePerShare: price,
			TotalAmount:   total,
			Timestamp:     time.Now().UTC(),
		}

		switch in.Type {
		case TradeBuy:
			if total > team.CurrentCash {
				return ErrInsufficientCash
			}
			assets := TotalAssets(*team, gs.Stocks, gs.CurrentRound)
			invested := InvestedInStock(*team, stock, gs.CurrentRound)
			if invested+total > InvestmentLimit(s.ratios, gs.CurrentRound, assets) {
				return ErrLimitExceeded
			}
			team.CurrentCash -= total
			if team.Portfolio == nil {
				team.Portfolio = make(map[string]int64)
			}
			team.Portfolio[stock.ID] += in.Quantity
		case TradeSell:
			if team.Portfolio[stock.ID] < in.Quantity {
				return ErrInsufficientHoldings
			}
			team.CurrentCash += total
			team.Portfolio[stock.ID] -= in.Quantity
			if team.Portfolio[stock.ID] == 0 {
				delete(team.Portfolio, stock.ID)
			}
			buyPrice := TradePrice(stock, gs.CurrentRound)
			pl := (price - buyPrice) * in.Quantity
			rate := ProfitRatePct(price, buyPrice)
			txn.ProfitLoss = &pl
			txn.ProfitLossRate = &rate
		}

		team.TransactionHistory = append(team.TransactionHistory, txn)
		out = TradeResult{
			Transaction: txn,
			CurrentCash: team.CurrentCash,
			Holdings:    team.Portfolio[stock.ID],
		}
		return nil
	})
	if err != nil {
		return TradeResult{}, err
	}
	return out, nil
}

// ConfirmInvestment settles the round for every team in a single atomic
// transaction: liquidates each portfolio at the round's settlement price,
// appends synthetic sell records with per-lot profit, and records the round
// result. A duplicate confirm is a guarded no-op.
func (s *Service) ConfirmInvestment(ctx context.Context, roomID string) (Room, error) {
	return s.transactRoom(ctx, roomID, func(room *Room) error {
		gs := &room.GameState
		if gs.CurrentStatus == StatusFinished {
			return ErrGameFinished
		}
		if gs.CurrentStep != StepInvestment {
			return ErrTradingClosed
		}
		if gs.IsInvestmentConfirmed {
			return nil
		}

		now := time.Now().UTC()
		for i := range gs.Teams {
			team := &gs.Teams[i]
			start := RoundStartAssets(*team, s.seedMoney)

			var proceeds int64
			for _, stock := range gs.Stocks {
				qty := team.Portfolio[stock.ID]
				if qty <= 0 {
					continue
				}
				settle := SettlePrice(stock, gs.CurrentRound)
				buy := TradePrice(stock, gs.CurrentRound)
				amount := qty * settle
				pl := (settle - buy) * qty
				rate := ProfitRatePct(settle, buy)
				team.TransactionHistory = append(team.TransactionHistory, Transaction{
					ID:             uuid.NewString(),
					Round:          gs.CurrentRound,
					StockID:        stock.ID,
					StockName:      stock.Name,
					Type:           TradeSell,
					Quantity:       qty,
					PricePerShare:  settle,
					TotalAmount:    amount,
					Timestamp:      now,
					ProfitLoss:     &pl,
					ProfitLossRate: &rate,
				})
				proceeds += amount
			}
			team.CurrentCash += proceeds
			team.Portfolio = nil

			total := team.CurrentCash
			team.RoundResults = append(team.RoundResults, RoundResult{
				Round:                gs.CurrentRound,
				PortfolioValue:       proceeds,
				TotalValue:           total,
				ProfitRate:           ProfitRatePct(total, start),
				CumulativeProfitRate: ProfitRatePct(total, s.seedMoney),
			})
		}

		gs.IsInvestmentConfirmed = true
		gs.IsInvestmentLocked = true
		return nil
	})
}

// RevealResults opens result viewing after confirmation. Idempotent: a
// second call re-commits the already revealed state.
func (s *Service) RevealResults(ctx context.Context, roomID string) (Room, error) {
	return s.transactRoom(ctx, roomID, func(room *Room) error {
		gs := &room.GameState
		if !gs.IsInvestmentConfirmed {
			return ErrTradingClosed
		}
		gs.RevealedResults = true
		gs.IsPortfolioLocked = false
		return nil
	})
}

// StartGame, AdvanceStep and AdvanceRound commit the phase machine's result.
// Rejected transitions commit the unchanged document: a stale admin click
// converges silently instead of erroring.

func (s *Service) StartGame(ctx context.Context, roomID string) (Room, error) {
	return s.transactRoom(ctx, roomID, func(room *Room) error {
		next, ok := StartGame(room.GameState)
		if !ok {
			s.log.Debug("start game ignored", "room", roomID, "status", room.GameState.CurrentStatus)
		}
		room.GameState = next
		return nil
	})
}

func (s *Service) AdvanceStep(ctx context.Context, roomID string, target GameStep, targetIdx int) (Room, error) {
	return s.transactRoom(ctx, roomID, func(room *Room) error {
		next, ok := AdvanceStep(room.GameState, target, targetIdx)
		if !ok {
			s.log.Debug("advance step ignored", "room", roomID, "target", target, "index", targetIdx)
		}
		room.GameState = next
		return nil
	})
}

func (s *Service) AdvanceRound(ctx context.Context, roomID string) (Room, error) {
	return s.transactRoom(ctx, roomID, func(room *Room) error {
		next, ok := AdvanceRound(room.GameState, room.MaxRounds)
		if !ok {
			s.log.Debug("advance round ignored", "room", roomID, "step", room.GameState.CurrentStep)
		}
		room.GameState = next
		return nil
	})
}

func (s *Service) SetInvestmentLock(ctx context.Context, roomID string, locked bool) (Room, error) {
	return s.transactRoom(ctx, roomID, func(room *Room) error {
		if room.GameState.CurrentStatus == StatusFinished {
			return ErrGameFinished
		}
		room.GameState.IsInvestmentLocked = locked
		return nil
	})
}

func (s *Service) SetPortfolioLock(ctx context.Context, roomID string, locked bool) (Room, error) {
	return s.transactRoom(ctx, roomID, func(room *Room) error {
		if room.GameState.CurrentStatus == StatusFinished {
			return ErrGameFinished
		}
		room.GameState.IsPortfolioLocked = locked
		return nil
	})
}

// PurchaseInfo unlocks an information card for a team during the purchase
// step, charging the configured card price.
func (s *Service) PurchaseInfo(ctx context.Context, roomID string, teamNumber int, cardID string) (Room, error) {
	if cardID == "" {
		return Room{}, fmt.Errorf("card id is required")
	}
	return s.transactRoom(ctx, roomID, func(room *Room) error {
		gs := &room.GameState
		if gs.CurrentStatus == StatusFinished {
			return ErrGameFinished
		}
		if gs.CurrentStep != StepInfoPurchase {
			return ErrTradingClosed
		}
		team, err := teamByNumber(gs, teamNumber)
		if err != nil {
			return err
		}
		for _, c := range team.UnlockedCards {
			if c == cardID {
				return ErrInfoCardOwned
			}
		}
		if team.CurrentCash < s.infoCardPrice {
			return ErrInsufficientCash
		}
		team.CurrentCash -= s.infoCardPrice
		team.UnlockedCards = append(team.UnlockedCards, cardID)
		if team.PurchasedInfoCountPerRound == nil {
			team.PurchasedInfoCountPerRound = map[int]int{}
		}
		team.PurchasedInfoCountPerRound[gs.CurrentRound]++
		return nil
	})
}

// GrantInfo is the admin handing a card to a team for free.
func (s *Service) GrantInfo(ctx context.Context, roomID string, teamNumber int, cardID string) (Room, error) {
	if cardID == "" {
		return Room{}, fmt.Errorf("card id is required")
	}
	return s.transactRoom(ctx, roomID, func(room *Room) error {
		gs := &room.GameState
		if gs.CurrentStatus == StatusFinished {
			return ErrGameFinished
		}
		team, err := teamByNumber(gs, teamNumber)
		if err != nil {
			return err
		}
		for _, c := range team.UnlockedCards {
			if c == cardID {
				return ErrInfoCardOwned
			}
		}
		team.UnlockedCards = append(team.UnlockedCards, cardID)
		team.GrantedInfoCount++
		return nil
	})
}
