package game

import (
	"context"
	"errors"
	"testing"
)

func TestCreateRoomDefaults(t *testing.T) {
	s := newTestService(t)
	room, err := s.CreateRoom(context.Background(), CreateRoomInput{
		Name:      "Homeroom 3-2",
		Password:  "hunter2",
		TeamCount: 4,
		MaxRounds: 4,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(room.ID) != 8 {
		t.Fatalf("room code %q, want 8 characters", room.ID)
	}
	if room.AdminPasswordHash == "" || room.AdminPasswordHash == "hunter2" {
		t.Fatalf("password must be stored hashed")
	}
	if room.GameState.CurrentStatus != StatusIdle {
		t.Fatalf("new room status %q", room.GameState.CurrentStatus)
	}
	if !room.GameState.IsInvestmentLocked || !room.GameState.IsPortfolioLocked {
		t.Fatalf("new room must open fully locked")
	}
	if len(room.GameState.Stocks) == 0 {
		t.Fatalf("room without a custom table must get the default stocks")
	}
	for _, team := range room.GameState.Teams {
		if team.CurrentCash != s.SeedMoney() {
			t.Fatalf("team %d seeded with %d", team.Number, team.CurrentCash)
		}
		if team.LeaderName != "" {
			t.Fatalf("team %d pre-claimed", team.Number)
		}
	}
}

func TestCreateRoomValidation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	base := CreateRoomInput{Name: "Game", Password: "pw", TeamCount: 4, MaxRounds: 4}

	tests := []struct {
		label  string
		mutate func(*CreateRoomInput)
	}{
		{"empty name", func(in *CreateRoomInput) { in.Name = "  " }},
		{"empty password", func(in *CreateRoomInput) { in.Password = "" }},
		{"zero teams", func(in *CreateRoomInput) { in.TeamCount = 0 }},
		{"too many teams", func(in *CreateRoomInput) { in.TeamCount = 21 }},
		{"zero rounds", func(in *CreateRoomInput) { in.MaxRounds = 0 }},
		{"too many rounds", func(in *CreateRoomInput) { in.MaxRounds = MaxSupportedRounds + 1 }},
		{"short price table", func(in *CreateRoomInput) {
			in.Stocks = []Stock{{ID: "a", Name: "A", Prices: []int64{1, 2}}}
		}},
		{"unnamed stock", func(in *CreateRoomInput) {
			in.Stocks = []Stock{{ID: "a", Prices: []int64{1, 2, 3, 4, 5}}}
		}},
	}
	for _, tc := range tests {
		in := base
		tc.mutate(&in)
		if _, err := s.CreateRoom(ctx, in); err == nil {
			t.Fatalf("%s: expected an error", tc.label)
		}
	}
}

func TestJoinTeamLifecycle(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	room := createTestRoom(t, s, 2, 4)

	got, err := s.JoinTeam(ctx, room.ID, 1, "Ara")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if got.GameState.Teams[0].LeaderName != "Ara" {
		t.Fatalf("slot not claimed: %+v", got.GameState.Teams[0])
	}
	if got.GameState.CurrentStatus != StatusIdle {
		t.Fatalf("half-full lobby must stay idle, got %q", got.GameState.CurrentStatus)
	}

	// The same leader reconnecting resumes the slot.
	if _, err := s.JoinTeam(ctx, room.ID, 1, "Ara"); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if _, err := s.JoinTeam(ctx, room.ID, 1, "Bom"); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("stealing a claimed slot: %v", err)
	}
	if _, err := s.JoinTeam(ctx, room.ID, 3, "Bom"); !errors.Is(err, ErrTeamNotFound) {
		t.Fatalf("joining a slot that does not exist: %v", err)
	}
	if _, err := s.JoinTeam(ctx, room.ID, 2, "  "); err == nil {
		t.Fatalf("blank leader name must be rejected")
	}

	got, err = s.JoinTeam(ctx, room.ID, 2, "Bom")
	if err != nil {
		t.Fatalf("join last slot: %v", err)
	}
	if got.GameState.CurrentStatus != StatusReady {
		t.Fatalf("full lobby status %q, want ready", got.GameState.CurrentStatus)
	}
}

func TestLeaveTeamKeepsHistory(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	room := createTestRoom(t, s, 1, 4)
	if _, err := s.JoinTeam(ctx, room.ID, 1, "Ara"); err != nil {
		t.Fatalf("join: %v", err)
	}
	openInvestment(t, s, room.ID)
	if _, err := s.ExecuteTrade(ctx, room.ID, 1, TradeInput{Type: TradeBuy, StockID: "stock-b", Quantity: 2}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	got, err := s.LeaveTeam(ctx, room.ID, 1)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	team := got.GameState.Teams[0]
	if team.LeaderName != "" {
		t.Fatalf("leader still assigned after leave")
	}
	if len(team.TransactionHistory) != 1 || team.Portfolio["stock-b"] != 2 {
		t.Fatalf("leaving must keep the team's record: %+v", team)
	}

	// A released slot is open again, and the newcomer inherits the record.
	got, err = s.JoinTeam(ctx, room.ID, 1, "Bom")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if got.GameState.Teams[0].Portfolio["stock-b"] != 2 {
		t.Fatalf("reclaimed slot lost its portfolio")
	}
}

func TestAuthorizeAdmin(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	room := createTestRoom(t, s, 1, 4)

	if err := s.AuthorizeAdmin(ctx, room.ID, "hunter2"); err != nil {
		t.Fatalf("correct password rejected: %v", err)
	}
	if err := s.AuthorizeAdmin(ctx, room.ID, "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong password: %v", err)
	}
	if err := s.AuthorizeAdmin(ctx, "NOROOM12", "hunter2"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("unknown room: %v", err)
	}
}

func TestDeleteRoom(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	room := createTestRoom(t, s, 1, 4)

	if err := s.DeleteRoom(ctx, room.ID, "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("delete with wrong password: %v", err)
	}
	if err := s.DeleteRoom(ctx, room.ID, "hunter2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetRoom(ctx, room.ID); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("room survived delete: %v", err)
	}
}
