package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"bullpen/internal/game"
)

// handleStream upgrades to a websocket and pushes every committed room
// snapshot to the client. The client never sends anything; its local view is
// purely a projection of what arrives here.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "room", roomID, "err", err)
		return
	}

	// CloseRead cancels the context when the client goes away.
	ctx := conn.CloseRead(r.Context())

	watcher, err := s.game.WatchRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, game.ErrRoomNotFound) {
			conn.Close(websocket.StatusPolicyViolation, "room not found")
		} else {
			conn.Close(websocket.StatusInternalError, "subscription failed")
		}
		return
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case err := <-watcher.Errs():
			s.log.Info("room stream ended", "room", roomID, "err", err)
			if errors.Is(err, game.ErrRoomNotFound) {
				conn.Close(websocket.StatusGoingAway, "room deleted")
			} else {
				conn.Close(websocket.StatusInternalError, "store connection lost")
			}
			return
		case room := <-watcher.Updates():
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := wsjson.Write(writeCtx, conn, redact(room))
			cancel()
			if err != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}
}
