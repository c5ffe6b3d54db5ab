package backendtest

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/DoyleJ11/zawomons-gt/internal/api"
	"github.com/DoyleJ11/zawomons-gt/pkg/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBackendPlayers = 16

type createBody struct {
	Name          string         `json:"name"`
	GameMode      types.GameMode `json:"game_mode"`
	IsPublic      *bool          `json:"is_public"`
	MaxPlayers    *int           `json:"max_players"`
	RoundDuration *int           `json:"round_duration"`
	CardsPerTurn  *int           `json:"cards_per_turn"`
	GuestUsername string         `json:"guest_username"`
}

type guestBody struct {
	GuestUsername string `json:"guest_username"`
}

type listPage struct {
	Count    int                  `json:"count"`
	Next     *string              `json:"next"`
	Previous *string              `json:"previous"`
	Results  []types.LobbySummary `json:"results"`
}

func (s *Server) listLobbies(w http.ResponseWriter, r *http.Request) {
	status := types.LobbyStatus(r.URL.Query().Get("status"))

	s.mu.Lock()
	var records []*lobbyRecord
	for _, l := range s.lobbies {
		if !l.isPublic || l.status != types.StatusWaiting {
			continue
		}
		if status != "" && l.status != status {
			continue
		}
		records = append(records, l)
	}
	slices.SortFunc(records, func(a, b *lobbyRecord) int { return a.id - b.id })

	page := listPage{Results: make([]types.LobbySummary, 0, len(records))}
	for _, l := range records {
		page.Results = append(page.Results, types.LobbySummary{
			ID:                  l.id,
			Code:                l.code,
			Name:                l.name,
			HostUsername:        l.host,
			GameMode:            l.gameMode,
			CurrentPlayersCount: len(l.players),
			MaxPlayers:          l.maxPlayers,
			IsPublic:            l.isPublic,
		})
	}
	page.Count = len(page.Results)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, page)
}

func (s *Server) createLobby(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	var body createBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"Invalid data."}})
		return
	}
	if fieldErrs := validateCreate(&body); len(fieldErrs) > 0 {
		writeJSON(w, http.StatusBadRequest, fieldErrs)
		return
	}
	if user == "" {
		if body.GuestUsername == "" {
			writeError(w, http.StatusBadRequest, "Guest must provide username")
			return
		}
		writeError(w, http.StatusForbidden, "Only authenticated users can create lobbies")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var code string
	for {
		c, err := GenerateCode()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to generate code")
			return
		}
		if _, taken := s.lobbies[c]; !taken {
			code = c
			break
		}
		s.log.Debug("collision on code, regenerating")
	}

	s.nextID++
	now := time.Now().UTC()
	l := &lobbyRecord{
		id:            s.nextID,
		code:          code,
		name:          body.Name,
		host:          user,
		gameMode:      body.GameMode,
		isPublic:      *body.IsPublic,
		status:        types.StatusWaiting,
		maxPlayers:    *body.MaxPlayers,
		roundDuration: *body.RoundDuration,
		cardsPerTurn:  *body.CardsPerTurn,
		createdAt:     now,
		subs:          make(map[int]chan []byte),
	}
	s.nextID++
	l.players = append(l.players, player{id: s.nextID, user: user, isReady: true, joinedAt: now})
	s.lobbies[code] = l
	s.log.Info("lobby created", zap.String("code", code), zap.String("host", user))

	writeJSON(w, http.StatusCreated, l.snapshot())
}

// validateCreate fills defaults and returns field errors the way the backend
// serializer reports them.
func validateCreate(b *createBody) map[string][]string {
	errs := make(map[string][]string)
	if b.Name == "" {
		errs["name"] = []string{"This field is required."}
	}
	if b.GameMode == "" {
		b.GameMode = types.GameModeClassic1v1
	}
	switch b.GameMode {
	case types.GameModeClassic1v1, types.GameModeTournament, types.GameModeBossFight:
	default:
		errs["game_mode"] = []string{`"` + string(b.GameMode) + `" is not a valid choice.`}
	}
	if b.IsPublic == nil {
		t := true
		b.IsPublic = &t
	}
	checkRange(errs, "max_players", &b.MaxPlayers, 2, types.MinPlayers, maxBackendPlayers)
	checkRange(errs, "round_duration", &b.RoundDuration, 60, types.MinRoundDuration, types.MaxRoundDuration)
	checkRange(errs, "cards_per_turn", &b.CardsPerTurn, 5, types.MinCardsPerTurn, types.MaxCardsPerTurn)
	return errs
}

func checkRange(errs map[string][]string, field string, v **int, def, lo, hi int) {
	if *v == nil {
		d := def
		*v = &d
		return
	}
	if **v < lo || **v > hi {
		errs[field] = []string{"Value out of range."}
	}
}

func (s *Server) getLobby(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	l, ok := s.lobbies[chi.URLParam(r, "code")]
	var snap types.LobbySnapshot
	if ok {
		snap = l.snapshot()
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) joinLobby(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeUnauthorized(w)
		return
	}
	var body guestBody
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()

	l, found := s.lobbies[chi.URLParam(r, "code")]
	switch {
	case !found:
		writeError(w, http.StatusNotFound, "Lobby not found")
		return
	case l.status != types.StatusWaiting:
		writeError(w, http.StatusBadRequest, "Lobby already started or finished")
		return
	case len(l.players) >= l.maxPlayers:
		writeError(w, http.StatusBadRequest, "Lobby is full")
		return
	case user == "" && body.GuestUsername == "":
		writeError(w, http.StatusBadRequest, "Guest must provide username")
		return
	}

	if l.find(user, body.GuestUsername) >= 0 {
		if user != "" {
			writeError(w, http.StatusBadRequest, "Already in this lobby")
		} else {
			writeError(w, http.StatusBadRequest, "Username already taken in this lobby")
		}
		return
	}

	s.nextID++
	p := player{id: s.nextID, user: user, joinedAt: time.Now().UTC()}
	if user == "" {
		p.guest = body.GuestUsername
	}
	l.players = append(l.players, p)

	snap := l.snapshot()
	joined := snap.Players[len(snap.Players)-1]
	s.send(l, types.ServerMessage{Type: types.MsgPlayerJoined, Player: &joined})
	s.send(l, types.ServerMessage{Type: types.MsgLobbyState, Lobby: &snap})

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) leaveLobby(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeUnauthorized(w)
		return
	}
	var body guestBody
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()

	l, found := s.lobbies[chi.URLParam(r, "code")]
	if !found {
		writeError(w, http.StatusNotFound, "Lobby not found")
		return
	}
	idx := l.find(user, body.GuestUsername)
	if idx < 0 {
		writeError(w, http.StatusBadRequest, "Not in this lobby")
		return
	}

	if user != "" && user == l.host {
		s.send(l, types.ServerMessage{Type: types.MsgLobbyClosed, Message: "Host left the lobby"})
		for id, ch := range l.subs {
			close(ch)
			delete(l.subs, id)
		}
		delete(s.lobbies, l.code)
		s.log.Info("lobby deleted", zap.String("code", l.code))
		writeJSON(w, http.StatusOK, map[string]string{"message": "Lobby deleted"})
		return
	}

	left := l.players[idx]
	l.players = slices.Delete(l.players, idx, idx+1)
	snap := l.snapshot()
	s.send(l, types.ServerMessage{Type: types.MsgPlayerLeft, PlayerID: left.id})
	s.send(l, types.ServerMessage{Type: types.MsgLobbyState, Lobby: &snap})

	writeJSON(w, http.StatusOK, map[string]string{"message": "Left lobby"})
}

func (s *Server) startLobby(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, found := s.lobbies[chi.URLParam(r, "code")]
	switch {
	case !found:
		writeError(w, http.StatusNotFound, "Lobby not found")
		return
	case user == "" || user != l.host:
		writeError(w, http.StatusForbidden, "Only host can start the game")
		return
	case !l.canStart():
		writeError(w, http.StatusBadRequest, "Not enough players to start")
		return
	}

	now := time.Now().UTC()
	l.status = types.StatusInProgress
	l.startedAt = &now

	snap := l.snapshot()
	s.send(l, types.ServerMessage{Type: types.MsgGameStarted, Lobby: &snap})
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		writeUnauthorized(w)
		return
	}
	var settings types.LobbySettings
	_ = json.NewDecoder(r.Body).Decode(&settings)

	s.mu.Lock()
	defer s.mu.Unlock()

	l, found := s.lobbies[chi.URLParam(r, "code")]
	switch {
	case !found:
		writeError(w, http.StatusNotFound, "Lobby not found")
		return
	case user == "" || user != l.host:
		writeError(w, http.StatusForbidden, "Only host can update settings")
		return
	}

	applySettings(l, settings)
	snap := l.snapshot()
	s.send(l, types.ServerMessage{Type: types.MsgLobbyState, Lobby: &snap})
	writeJSON(w, http.StatusOK, snap)
}

func applySettings(l *lobbyRecord, settings types.LobbySettings) {
	if settings.RoundDuration != nil {
		l.roundDuration = *settings.RoundDuration
	}
	if settings.CardsPerTurn != nil {
		l.cardsPerTurn = *settings.CardsPerTurn
	}
	if settings.IsPublic != nil {
		l.isPublic = *settings.IsPublic
	}
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, ok := s.userFor(r)
	if !ok {
		writeUnauthorized(w)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) playerData(w http.ResponseWriter, r *http.Request) {
	u, ok := s.userFor(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	s.mu.Lock()
	save := s.saves[u.Username]
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, api.PlayerData{
		ID:                    u.ID,
		Username:              u.Username,
		Gold:                  save.Gold,
		Wood:                  save.Wood,
		Stone:                 save.Stone,
		Gems:                  save.Gems,
		CanClaimStartCreature: true,
		Creatures:             []api.Creature{},
	})
}

func (s *Server) players(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]api.PlayerListItem, 0, len(s.saves))
	for username, save := range s.saves {
		out = append(out, api.PlayerListItem{Username: username, Name: save.Name, Gold: save.Gold})
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b api.PlayerListItem) int { return strings.Compare(a.Username, b.Username) })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) saveData(w http.ResponseWriter, r *http.Request) {
	u, ok := s.userFor(r)
	if !ok {
		writeUnauthorized(w)
		return
	}
	var data api.SaveData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid data")
		return
	}

	s.mu.Lock()
	s.saves[u.Username] = data
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Data saved"})
}
