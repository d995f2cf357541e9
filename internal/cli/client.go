package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"bullpen/internal/game"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type roomEnvelope struct {
	Room game.Room `json:"room"`
}

type resultEnvelope struct {
	Result game.TradeResult `json:"result"`
}

type reportEnvelope struct {
	Report game.Report `json:"report"`
}

func (c *Client) CreateRoom(ctx context.Context, name, password string, teamCount, maxRounds int) (game.Room, error) {
	var out roomEnvelope
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/rooms", "", map[string]any{
		"name":       name,
		"password":   password,
		"team_count": teamCount,
		"max_rounds": maxRounds,
	}, &out)
	return out.Room, err
}

func (c *Client) GetRoom(ctx context.Context, roomID string) (game.Room, error) {
	var out roomEnvelope
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/rooms/"+url.PathEscape(roomID), "", nil, &out)
	return out.Room, err
}

func (c *Client) DeleteRoom(ctx context.Context, roomID, adminPassword string) error {
	return c.jsonRequest(ctx, http.MethodDelete, "/v1/rooms/"+url.PathEscape(roomID), adminPassword, nil, nil)
}

func (c *Client) JoinTeam(ctx context.Context, roomID string, teamNumber int, leaderName string) (game.Room, error) {
	var out roomEnvelope
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/rooms/"+url.PathEscape(roomID)+"/join", "", map[string]any{
		"team_number": teamNumber,
		"leader_name": leaderName,
	}, &out)
	return out.Room, err
}

func (c *Client) LeaveTeam(ctx context.Context, roomID string, teamNumber int) (game.Room, error) {
	var out roomEnvelope
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/rooms/"+url.PathEscape(roomID)+"/leave", "", map[string]any{
		"team_number": teamNumber,
	}, &out)
	return out.Room, err
}

func (c *Client) Trade(ctx context.Context, roomID string, teamNumber int, tradeType game.TradeType, stockID string, quantity int64, round int) (game.TradeResult, error) {
	var out resultEnvelope
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/rooms/"+url.PathEscape(roomID)+"/trades", "", map[string]any{
		"team_number": teamNumber,
		"type":        tradeType,
		"stock_id":    stockID,
		"quantity":    quantity,
		"round":       round,
	}, &out)
	return out.Result, err
}

func (c *Client) PurchaseInfo(ctx context.Context, roomID string, teamNumber int, cardID string) (game.Room, error) {
	var out roomEnvelope
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/rooms/"+url.PathEscape(roomID)+"/info/purchase", "", map[string]any{
		"team_number": teamNumber,
		"card_id":     cardID,
	}, &out)
	return out.Room, err
}

func (c *Client) TeamReport(ctx context.Context, roomID string, teamNumber int) (game.Report, error) {
	var out reportEnvelope
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/rooms/%s/teams/%d/report", url.PathEscape(roomID), teamNumber), "", nil, &out)
	return out.Report, err
}

func (c *Client) StartGame(ctx context.Context, roomID, adminPassword string) (game.Room, error) {
	return c.adminRoomPost(ctx, roomID, adminPassword, "start", map[string]any{})
}

func (c *Client) AdvanceStep(ctx context.Context, roomID, adminPassword string, step game.GameStep, index int) (game.Room, error) {
	return c.adminRoomPost(ctx, roomID, adminPassword, "step", map[string]any{
		"step":  step,
		"index": index,
	})
}

func (c *Client) AdvanceRound(ctx context.Context, roomID, adminPassword string) (game.Room, error) {
	return c.adminRoomPost(ctx, roomID, adminPassword, "round", map[string]any{})
}

func (c *Client) ConfirmInvestment(ctx context.Context, roomID, adminPassword string) (game.Room, error) {
	return c.adminRoomPost(ctx, roomID, adminPassword, "confirm", map[string]any{})
}

func (c *Client) RevealResults(ctx context.Context, roomID, adminPassword string) (game.Room, error) {
	return c.adminRoomPost(ctx, roomID, adminPassword, "reveal", map[string]any{})
}

func (c *Client) SetInvestmentLock(ctx context.Context, roomID, adminPassword string, locked bool) (game.Room, error) {
	return c.adminRoomPost(ctx, roomID, adminPassword, "lock", map[string]any{
		"investment": locked,
	})
}

func (c *Client) SetPortfolioLock(ctx context.Context, roomID, adminPassword string, locked bool) (game.Room, error) {
	return c.adminRoomPost(ctx, roomID, adminPassword, "lock", map[string]any{
		"portfolio": locked,
	})
}

func (c *Client) StartTimer(ctx context.Context, roomID, adminPassword string, seconds int) (game.Room, error) {
	return c.adminRoomPost(ctx, roomID, adminPassword, "timer", map[string]any{
		"action":  "start",
		"seconds": seconds,
	})
}

func (c *Client) StopTimer(ctx context.Context, roomID, adminPassword string) (game.Room, error) {
	return c.adminRoomPost(ctx, roomID, adminPassword, "timer", map[string]any{
		"action": "stop",
	})
}

func (c *Client) GrantInfo(ctx context.Context, roomID, adminPassword string, teamNumber int, cardID string) (game.Room, error) {
	return c.adminRoomPost(ctx, roomID, adminPassword, "grant", map[string]any{
		"team_number": teamNumber,
		"card_id":     cardID,
	})
}

// Watch connects to the room's snapshot stream and invokes onRoom for every
// committed state until the stream ends or ctx is done. The callback always
// receives a whole room; callers replace their view, never merge.
func (c *Client) Watch(ctx context.Context, roomID string, onRoom func(game.Room)) error {
	wsURL := strings.Replace(c.BaseURL, "http", "ws", 1) + "/v1/rooms/" + url.PathEscape(roomID) + "/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		var room game.Room
		if err := wsjson.Read(ctx, conn, &room); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			return fmt.Errorf("stream closed: %w", err)
		}
		onRoom(room)
	}
}

func (c *Client) adminRoomPost(ctx context.Context, roomID, adminPassword, op string, body map[string]any) (game.Room, error) {
	var out roomEnvelope
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/rooms/"+url.PathEscape(roomID)+"/admin/"+op, adminPassword, body, &out)
	return out.Room, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, adminPassword string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if adminPassword != "" {
		req.Header.Set("X-Admin-Password", adminPassword)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
