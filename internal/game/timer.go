package game

import (
	"context"
	"errors"
	"time"
)

// The countdown is server-driven: StartTimer arms a room and the ticker
// loop decrements it once a second through the store, so every subscriber
// sees the same authoritative count.

func (s *Service) StartTimer(ctx context.Context, roomID string, seconds int) (Room, error) {
	if seconds <= 0 {
		return Room{}, errors.New("timer seconds must be > 0")
	}
	room, err := s.transactRoom(ctx, roomID, func(room *Room) error {
		gs := &room.GameState
		if gs.CurrentStatus == StatusFinished {
			return ErrGameFinished
		}
		gs.IsTimerRunning = true
		gs.TimerSeconds = seconds
		gs.TimerMaxSeconds = seconds
		return nil
	})
	if err != nil {
		return Room{}, err
	}
	s.trackTimer(roomID)
	return room, nil
}

func (s *Service) StopTimer(ctx context.Context, roomID string) (Room, error) {
	room, err := s.transactRoom(ctx, roomID, func(room *Room) error {
		room.GameState.IsTimerRunning = false
		return nil
	})
	if err != nil {
		return Room{}, err
	}
	s.untrackTimer(roomID)
	return room, nil
}

// RunTimerTicker drives all armed room timers until ctx is done. Run it
// once per server process.
func (s *Service) RunTimerTicker(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickTimers(ctx)
		}
	}
}

func (s *Service) tickTimers(ctx context.Context) {
	for _, roomID := range s.trackedTimers() {
		room, err := s.transactRoom(ctx, roomID, func(room *Room) error {
			gs := &room.GameState
			if !gs.IsTimerRunning {
				return nil
			}
			if gs.TimerSeconds > 0 {
				gs.TimerSeconds--
			}
			if gs.TimerSeconds == 0 {
				gs.IsTimerRunning = false
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrRoomNotFound) {
				s.untrackTimer(roomID)
				continue
			}
			s.log.Warn("timer tick failed", "room", roomID, "err", err)
			continue
		}
		if !room.GameState.IsTimerRunning {
			s.untrackTimer(roomID)
		}
	}
}

func (s *Service) trackTimer(roomID string) {
	s.timerMu.Lock()
	s.timerRooms[roomID] = struct{}{}
	s.timerMu.Unlock()
}

func (s *Service) untrackTimer(roomID string) {
	s.timerMu.Lock()
	delete(s.timerRooms, roomID)
	s.timerMu.Unlock()
}

func (s *Service) trackedTimers() []string {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	out := make([]string, 0, len(s.timerRooms))
	for id := range s.timerRooms {
		out = append(out, id)
	}
	return out
}
