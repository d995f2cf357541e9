package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bullpen/internal/config"
	"bullpen/internal/game"
)

const adminPasswordHeader = "X-Admin-Password"

type Server struct {
	cfg  config.APIConfig
	log  *slog.Logger
	game *game.Service
	mux  *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, gameSvc *game.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		log:  logger,
		game: gameSvc,
		mux:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/rooms", s.handleCreateRoom)
		r.Route("/rooms/{roomID}", func(r chi.Router) {
			// The stream endpoint keeps a connection open for the room's
			// lifetime, so the request timeout applies to everything else.
			r.Get("/stream", s.handleStream)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(60 * time.Second))
				r.Get("/", s.handleGetRoom)
				r.Delete("/", s.handleDeleteRoom)
				r.Post("/join", s.handleJoinTeam)
				r.Post("/leave", s.handleLeaveTeam)
				r.Post("/trades", s.handleTrade)
				r.Post("/info/purchase", s.handlePurchaseInfo)
				r.Get("/teams/{teamNumber}/report", s.handleTeamReport)

				r.Route("/admin", func(r chi.Router) {
					r.Use(s.adminMiddleware)
					r.Post("/start", s.handleStartGame)
					r.Post("/step", s.handleAdvanceStep)
					r.Post("/round", s.handleAdvanceRound)
					r.Post("/confirm", s.handleConfirmInvestment)
					r.Post("/reveal", s.handleRevealResults)
					r.Post("/lock", s.handleSetLocks)
					r.Post("/timer", s.handleTimer)
					r.Post("/grant", s.handleGrantInfo)
				})
			})
		})
	})
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")
		password := r.Header.Get(adminPasswordHeader)
		if password == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+adminPasswordHeader+" header")
			return
		}
		if err := s.game.AuthorizeAdmin(r.Context(), roomID, password); err != nil {
			s.writeGameError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name      string       `json:"name"`
		Password  string       `json:"password"`
		TeamCount int          `json:"team_count"`
		MaxRounds int          `json:"max_rounds"`
		Stocks    []game.Stock `json:"stocks,omitempty"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	room, err := s.game.CreateRoom(r.Context(), game.CreateRoomInput{
		Name:      in.Name,
		Password:  in.Password,
		TeamCount: in.TeamCount,
		MaxRounds: in.MaxRounds,
		Stocks:    in.Stocks,
	})
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"room": redact(room)})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.game.GetRoom(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": redact(room)})
}

func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	password := r.Header.Get(adminPasswordHeader)
	if password == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+adminPasswordHeader+" header")
		return
	}
	if err := s.game.DeleteRoom(r.Context(), chi.URLParam(r, "roomID"), password); err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleJoinTeam(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TeamNumber int    `json:"team_number"`
		LeaderName string `json:"leader_name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	room, err := s.game.JoinTeam(r.Context(), chi.URLParam(r, "roomID"), in.TeamNumber, in.LeaderName)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": redact(room)})
}

func (s *Server) handleLeaveTeam(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TeamNumber int `json:"team_number"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	room, err := s.game.LeaveTeam(r.Context(), chi.URLParam(r, "roomID"), in.TeamNumber)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": redact(room)})
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TeamNumber int            `json:"team_number"`
		Type       game.TradeType `json:"type"`
		StockID    string         `json:"stock_id"`
		Quantity   int64          `json:"quantity"`
		Round      int            `json:"round"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	result, err := s.game.ExecuteTrade(r.Context(), chi.URLParam(r, "roomID"), in.TeamNumber, game.TradeInput{
		Type:     in.Type,
		StockID:  in.StockID,
		Quantity: in.Quantity,
		Round:    in.Round,
	})
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (s *Server) handlePurchaseInfo(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TeamNumber int    `json:"team_number"`
		CardID     string `json:"card_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	room, err := s.game.PurchaseInfo(r.Context(), chi.URLParam(r, "roomID"), in.TeamNumber, in.CardID)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": redact(room)})
}

func (s *Server) handleTeamReport(w http.ResponseWriter, r *http.Request) {
	teamNumber, err := strconv.Atoi(chi.URLParam(r, "teamNumber"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "team number must be an integer")
		return
	}
	report, err := s.game.TeamReport(r.Context(), chi.URLParam(r, "roomID"), teamNumber)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	room, err := s.game.StartGame(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": redact(room)})
}

func (s *Server) handleAdvanceStep(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Step  game.GameStep `json:"step"`
		Index int           `json:"index"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	room, err := s.game.AdvanceStep(r.Context(), chi.URLParam(r, "roomID"), in.Step, in.Index)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": redact(room)})
}

func (s *Server) handleAdvanceRound(w http.ResponseWriter, r *http.Request) {
	room, err := s.game.AdvanceRound(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": redact(room)})
}

func (s *Server) handleConfirmInvestment(w http.ResponseWriter, r *http.Request) {
	room, err := s.game.ConfirmInvestment(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": redact(room)})
}

func (s *Server) handleRevealResults(w http.ResponseWriter, r *http.Request) {
	room, err := s.game.RevealResults(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": redact(room)})
}

func (s *Server) handleSetLocks(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Investment *bool `json:"investment,omitempty"`
		Portfolio  *bool `json:"portfolio,omitempty"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if in.Investment == nil && in.Portfolio == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "nothing to change")
		return
	}
	roomID := chi.URLParam(r, "roomID")
	var room game.Room
	var err error
	if in.Investment != nil {
		room, err = s.game.SetInvestmentLock(r.Context(), roomID, *in.Investment)
		if err != nil {
			s.writeGameError(w, err)
			return
		}
	}
	if in.Portfolio != nil {
		room, err = s.game.SetPortfolioLock(r.Context(), roomID, *in.Portfolio)
		if err != nil {
			s.writeGameError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": redact(room)})
}

func (s *Server) handleTimer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Action  string `json:"action"`
		Seconds int    `json:"seconds"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	roomID := chi.URLParam(r, "roomID")
	var room game.Room
	var err error
	switch in.Action {
	case "start":
		room, err = s.game.StartTimer(r.Context(), roomID, in.Seconds)
	case "stop":
		room, err = s.game.StopTimer(r.Context(), roomID)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "action must be start or stop")
		return
	}
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": redact(room)})
}

func (s *Server) handleGrantInfo(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TeamNumber int    `json:"team_number"`
		CardID     string `json:"card_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	room, err := s.game.GrantInfo(r.Context(), chi.URLParam(r, "roomID"), in.TeamNumber, in.CardID)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": redact(room)})
}

// writeGameError keeps business-rule rejections and infrastructure failures
// visibly distinct: a team must never mistake "network down" for "trade
// illegal".
func (s *Server) writeGameError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "room_not_found", err.Error())
	case errors.Is(err, game.ErrTeamNotFound):
		writeError(w, http.StatusNotFound, "team_not_found", err.Error())
	case errors.Is(err, game.ErrStockNotFound):
		writeError(w, http.StatusNotFound, "stock_not_found", err.Error())
	case errors.Is(err, game.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, game.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, game.ErrInfoCardOwned):
		writeError(w, http.StatusConflict, "card_owned", err.Error())
	case errors.Is(err, game.ErrTxConflict):
		writeError(w, http.StatusConflict, "store_conflict", "concurrent writers, retry the operation")
	case errors.Is(err, game.ErrStoreUnreachable):
		writeError(w, http.StatusServiceUnavailable, "store_unreachable", err.Error())
	case errors.Is(err, game.ErrTradingClosed):
		writeError(w, http.StatusUnprocessableEntity, "trading_closed", err.Error())
	case errors.Is(err, game.ErrInsufficientCash):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_cash", err.Error())
	case errors.Is(err, game.ErrInsufficientHoldings):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_holdings", err.Error())
	case errors.Is(err, game.ErrLimitExceeded):
		writeError(w, http.StatusUnprocessableEntity, "limit_exceeded", err.Error())
	case errors.Is(err, game.ErrGameFinished):
		writeError(w, http.StatusUnprocessableEntity, "game_finished", err.Error())
	case errors.Is(err, game.ErrQuantityInvalid):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		s.log.Error("request failed", "err", err)
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	}
}

// redact strips the password hash before a room leaves the server.
func redact(room game.Room) game.Room {
	room.AdminPasswordHash = ""
	return room
}

func decodeJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": message,
		"code":  code,
	})
}
