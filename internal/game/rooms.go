package game

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const MaxSupportedRounds = 4

// DefaultStocks is the stock catalog seeded into rooms created without a
// custom price table: baseline plus four settlement prices.
func DefaultStocks() []Stock {
	return []Stock{
		{ID: "hanriver-foods", Name: "Hanriver Foods", Prices: []int64{10_000, 13_000, 11_500, 16_000, 14_000}},
		{ID: "byteworks", Name: "Byteworks Semiconductor", Prices: []int64{25_000, 21_000, 29_000, 33_000, 41_000}},
		{ID: "aurora-bio", Name: "Aurora Bio", Prices: []int64{18_000, 27_000, 15_000, 22_000, 30_000}},
		{ID: "greenvolt", Name: "Greenvolt Energy", Prices: []int64{12_000, 12_500, 14_500, 9_500, 17_500}},
		{ID: "skyline-air", Name: "Skyline Airlines", Prices: []int64{22_000, 17_000, 19_500, 26_000, 21_000}},
		{ID: "mirae-motors", Name: "Mirae Motors", Prices: []int64{30_000, 34_000, 31_000, 38_000, 35_500}},
		{ID: "dawit-retail", Name: "Dawit Retail", Prices: []int64{8_000, 9_200, 8_800, 11_000, 10_500}},
		{ID: "polaris-games", Name: "Polaris Games", Prices: []int64{15_000, 11_000, 20_000, 18_500, 27_000}},
	}
}

// CreateRoom allocates a fresh room document: empty team slots seeded with
// the configured cash, the immutable stock price table, status idle.
func (s *Service) CreateRoom(ctx context.Context, in CreateRoomInput) (Room, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Room{}, fmt.Errorf("room name is required")
	}
	if strings.TrimSpace(in.Password) == "" {
		return Room{}, fmt.Errorf("admin password is required")
	}
	if in.TeamCount < 1 || in.TeamCount > 20 {
		return Room{}, fmt.Errorf("team count must be between 1 and 20")
	}
	if in.MaxRounds < 1 || in.MaxRounds > MaxSupportedRounds {
		return Room{}, fmt.Errorf("max rounds must be between 1 and %d", MaxSupportedRounds)
	}
	stocks := in.Stocks
	if len(stocks) == 0 {
		stocks = DefaultStocks()
	}
	for _, st := range stocks {
		if st.ID == "" || st.Name == "" {
			return Room{}, fmt.Errorf("every stock needs an id and a name")
		}
		if len(st.Prices) < in.MaxRounds+1 {
			return Room{}, fmt.Errorf("stock %q needs %d prices (baseline + one per round)", st.ID, in.MaxRounds+1)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return Room{}, fmt.Errorf("hash admin password: %w", err)
	}
	code, err := generateRoomCode()
	if err != nil {
		return Room{}, err
	}

	teams := make([]Team, in.TeamCount)
	for i := range teams {
		teams[i] = Team{
			ID:          uuid.NewString(),
			Number:      i + 1,
			CurrentCash: s.seedMoney,
		}
	}

	room := Room{
		ID:                code,
		Name:              in.Name,
		AdminPasswordHash: string(hash),
		TotalTeams:        in.TeamCount,
		MaxRounds:         in.MaxRounds,
		IsActive:          true,
		CreatedAt:         time.Now().UTC(),
		GameState: GameState{
			CurrentStatus:      StatusIdle,
			CurrentStep:        StepMiniGame,
			IsInvestmentLocked: true,
			IsPortfolioLocked:  true,
			Teams:              teams,
			Stocks:             stocks,
		},
	}

	_, err = s.store.Transact(ctx, room.ID, func(cur []byte) ([]byte, error) {
		if cur != nil {
			return nil, fmt.Errorf("room code %q already exists", room.ID)
		}
		return json.Marshal(room)
	})
	if err != nil {
		return Room{}, mapStoreErr(err)
	}
	s.log.Info("room created", "room", room.ID, "teams", in.TeamCount, "rounds", in.MaxRounds)
	return room, nil
}

// JoinTeam claims a team slot for a leader inside one transaction. The same
// leader may re-claim their slot and resumes with prior cash, portfolio and
// history intact; a slot held by someone else is refused while the room is
// active.
func (s *Service) JoinTeam(ctx context.Context, roomID string, teamNumber int, leaderName string) (Room, error) {
	leaderName = strings.TrimSpace(leaderName)
	if leaderName == "" {
		return Room{}, fmt.Errorf("leader name is required")
	}
	return s.transactRoom(ctx, roomID, func(room *Room) error {
		team, err := teamByNumber(&room.GameState, teamNumber)
		if err != nil {
			return err
		}
		if team.LeaderName != "" && team.LeaderName != leaderName && room.IsActive {
			return ErrSlotTaken
		}
		team.LeaderName = leaderName

		if room.GameState.CurrentStatus == StatusIdle && allSlotsClaimed(room.GameState.Teams) {
			room.GameState.CurrentStatus = StatusReady
		}
		return nil
	})
}

// LeaveTeam clears the leader assignment only. Trade history and round
// results stay so the slot can be resumed later.
func (s *Service) LeaveTeam(ctx context.Context, roomID string, teamNumber int) (Room, error) {
	return s.transactRoom(ctx, roomID, func(room *Room) error {
		team, err := teamByNumber(&room.GameState, teamNumber)
		if err != nil {
			return err
		}
		team.LeaderName = ""
		return nil
	})
}

// DeleteRoom removes the document entirely. Admin only, irreversible;
// subscribers are disconnected with a not-found error.
func (s *Service) DeleteRoom(ctx context.Context, roomID, password string) error {
	if err := s.AuthorizeAdmin(ctx, roomID, password); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, roomID); err != nil {
		return mapStoreErr(err)
	}
	s.untrackTimer(roomID)
	s.log.Info("room deleted", "room", roomID)
	return nil
}

// AuthorizeAdmin gates the admin-only operations behind the room password.
func (s *Service) AuthorizeAdmin(ctx context.Context, roomID, password string) error {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(room.AdminPasswordHash), []byte(password)) != nil {
		return ErrUnauthorized
	}
	return nil
}

func allSlotsClaimed(teams []Team) bool {
	for _, t := range teams {
		if t.LeaderName == "" {
			return false
		}
	}
	return true
}

func generateRoomCode() (string, error) {
	const letters = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = letters[int(buf[i])%len(letters)]
	}
	return string(buf), nil
}
