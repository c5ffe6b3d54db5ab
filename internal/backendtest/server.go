// Package backendtest runs an in-memory zawomons-gt backend for tests and
// local runs: the lobby REST endpoints, the lobby socket and the few user
// endpoints the client calls.
package backendtest

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/DoyleJ11/zawomons-gt/internal/api"
	"github.com/DoyleJ11/zawomons-gt/pkg/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const APIPrefix = "/api/v1"

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, types.CodeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type player struct {
	id       int
	user     string // set for authenticated players
	guest    string // set for guests
	isReady  bool
	joinedAt time.Time
}

func (p player) displayName() string {
	if p.user != "" {
		return p.user
	}
	return p.guest
}

type lobbyRecord struct {
	id            int
	code          string
	name          string
	host          string
	gameMode      types.GameMode
	isPublic      bool
	status        types.LobbyStatus
	maxPlayers    int
	roundDuration int
	cardsPerTurn  int
	players       []player
	createdAt     time.Time
	startedAt     *time.Time

	subs map[int]chan []byte
}

func (l *lobbyRecord) canStart() bool {
	n := len(l.players)
	switch l.gameMode {
	case types.GameModeClassic1v1:
		return n == 2
	case types.GameModeTournament:
		return n >= 4
	case types.GameModeBossFight:
		return n >= 2
	}
	return false
}

func (l *lobbyRecord) snapshot() types.LobbySnapshot {
	created := l.createdAt
	s := types.LobbySnapshot{
		ID:                  l.id,
		Code:                l.code,
		Name:                l.name,
		HostUsername:        l.host,
		GameMode:            l.gameMode,
		IsPublic:            l.isPublic,
		Status:              l.status,
		MaxPlayers:          l.maxPlayers,
		CurrentPlayersCount: len(l.players),
		IsFull:              len(l.players) >= l.maxPlayers,
		CanStart:            l.canStart(),
		RoundDuration:       l.roundDuration,
		CardsPerTurn:        l.cardsPerTurn,
		Players:             make([]types.Player, 0, len(l.players)),
		CreatedAt:           &created,
		StartedAt:           l.startedAt,
	}
	for _, p := range l.players {
		joined := p.joinedAt
		s.Players = append(s.Players, types.Player{
			ID:          p.id,
			DisplayName: p.displayName(),
			IsReady:     p.isReady,
			JoinedAt:    &joined,
		})
	}
	return s
}

func (l *lobbyRecord) find(user, guest string) int {
	for i, p := range l.players {
		if user != "" && p.user == user {
			return i
		}
		if user == "" && guest != "" && p.guest == guest {
			return i
		}
	}
	return -1
}

// Server is the fake backend. All state sits behind one mutex.
type Server struct {
	mu       sync.Mutex
	users    map[string]api.User // bearer token -> user
	lobbies  map[string]*lobbyRecord
	saves    map[string]api.SaveData
	nextID   int
	nextSub  int
	requests []string

	log  *zap.Logger
	http *httptest.Server
}

// New starts the backend on a local test listener.
func New(log *zap.Logger) *Server {
	s := NewUnstarted(log)
	s.http = httptest.NewServer(s.Routes())
	return s
}

// NewUnstarted builds the backend without a listener; serve Routes yourself.
// APIBase, WSBase and Close are only for servers made by New.
func NewUnstarted(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		users:   make(map[string]api.User),
		lobbies: make(map[string]*lobbyRecord),
		saves:   make(map[string]api.SaveData),
		log:     log,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Route(APIPrefix, func(r chi.Router) {
		r.Get("/zawomons-gt/lobbies/", s.listLobbies)
		r.Post("/zawomons-gt/lobbies/create_lobby/", s.createLobby)
		r.Get("/zawomons-gt/lobbies/{code}/", s.getLobby)
		r.Post("/zawomons-gt/lobbies/{code}/join/", s.joinLobby)
		r.Post("/zawomons-gt/lobbies/{code}/leave/", s.leaveLobby)
		r.Post("/zawomons-gt/lobbies/{code}/start/", s.startLobby)
		r.Post("/zawomons-gt/lobbies/{code}/update_settings/", s.updateSettings)

		r.Get("/users/me/", s.me)
		r.Get("/games/zawomons/player-data/", s.playerData)
		r.Get("/games/zawomons/players/", s.players)
		r.Post("/games/zawomons/save-data/", s.saveData)
	})
	r.Get("/ws/zawomons-gt/lobby/{code}/", s.lobbySocket)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}

// APIBase is the REST base URL to hand to api.NewClient.
func (s *Server) APIBase() string { return s.http.URL + APIPrefix }

// WSBase is the socket base URL to hand to ws.Dialer.
func (s *Server) WSBase() string { return "ws" + strings.TrimPrefix(s.http.URL, "http") }

func (s *Server) Close() { s.http.Close() }

// AddUser makes token authenticate as user.
func (s *Server) AddUser(token string, user api.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[token] = user
}

// Lobby returns the current snapshot of a lobby.
func (s *Server) Lobby(code string) (types.LobbySnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[code]
	if !ok {
		return types.LobbySnapshot{}, false
	}
	return l.snapshot(), true
}

// Requests lists "METHOD path" for every request served so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// SendRaw pushes a raw frame to every socket in a lobby.
func (s *Server) SendRaw(code string, frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.lobbies[code]; ok {
		s.fanout(l, frame)
	}
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the bearer token. ok is false when a token was sent
// but is unknown; the caller answers 401.
func (s *Server) authenticate(r *http.Request) (user string, ok bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", true
	}
	token := strings.TrimPrefix(h, "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.users[token]
	if !found {
		return "", false
	}
	return u.Username, true
}

func (s *Server) userFor(r *http.Request) (api.User, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[token]
	return u, ok && token != ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token."})
}
