package backendtest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/DoyleJ11/zawomons-gt/pkg/types"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const socketOutbox = 16

func (s *Server) lobbySocket(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	user, _ := s.authenticate(r)

	s.mu.Lock()
	_, found := s.lobbies[code]
	s.mu.Unlock()
	if !found {
		http.Error(w, "lobby not found", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	out := make(chan []byte, socketOutbox)
	subID, ok := s.subscribe(code, out)
	if !ok {
		return
	}
	defer s.unsubscribe(code, subID)

	// Writer goroutine
	writeCtx, writeCancel := context.WithCancel(r.Context())
	defer writeCancel()
	go func() {
		for frame := range out {
			ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
			err := conn.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return
			}
		}
		// Lobby gone or this socket fell behind.
		_ = conn.Close(websocket.StatusNormalClosure, "lobby closed")
	}()

	// Reader loop
	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			s.log.Debug("bad frame from client", zap.Error(err))
			continue
		}
		s.handleClientMessage(code, user, cm)
	}
}

// subscribe registers out and queues the current lobby_state on it, the way
// the backend greets every new socket.
func (s *Server) subscribe(code string, out chan []byte) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lobbies[code]
	if !ok {
		return 0, false
	}
	s.nextSub++
	id := s.nextSub
	l.subs[id] = out

	snap := l.snapshot()
	frame, _ := json.Marshal(types.ServerMessage{Type: types.MsgLobbyState, Lobby: &snap})
	out <- frame
	return id, true
}

func (s *Server) unsubscribe(code string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lobbies[code]
	if !ok {
		return
	}
	if ch, ok := l.subs[id]; ok {
		close(ch)
		delete(l.subs, id)
	}
}

func (s *Server) handleClientMessage(code, user string, cm types.ClientMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lobbies[code]
	if !ok {
		return
	}

	switch cm.Type {
	case types.MsgPlayerReady:
		idx := l.find(user, cm.GuestUsername)
		if idx < 0 {
			s.log.Debug("player_ready from someone not in the lobby", zap.String("code", code))
			return
		}
		l.players[idx].isReady = cm.IsReady != nil && *cm.IsReady
		snap := l.snapshot()
		s.send(l, types.ServerMessage{Type: types.MsgLobbyState, Lobby: &snap})

	case types.MsgSettingsUpdate:
		if user == "" || user != l.host || cm.Settings == nil {
			return
		}
		applySettings(l, *cm.Settings)
		snap := l.snapshot()
		s.send(l, types.ServerMessage{Type: types.MsgLobbyState, Lobby: &snap})

	case types.MsgChatMessage:
		username := cm.Username
		if username == "" {
			username = "Guest"
		}
		s.send(l, types.ServerMessage{Type: types.MsgChat, Username: username, Message: cm.Message})

	default:
		// identify and anything unknown are accepted and ignored
		s.log.Debug("ignoring client message", zap.String("type", string(cm.Type)))
	}
}

// send encodes msg and fans it out. Callers hold s.mu.
func (s *Server) send(l *lobbyRecord, msg types.ServerMessage) {
	frame, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("failed to encode server message", zap.Error(err))
		return
	}
	s.fanout(l, frame)
}

// fanout drops a socket whose outbox is full. Callers hold s.mu.
func (s *Server) fanout(l *lobbyRecord, frame []byte) {
	for id, ch := range l.subs {
		select {
		case ch <- frame:
		default:
			close(ch)
			delete(l.subs, id)
		}
	}
}
