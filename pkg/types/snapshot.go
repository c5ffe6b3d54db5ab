package types

import (
	"errors"
	"fmt"
	"time"
)

// LobbySnapshot:
//   id, code, name, host_username, game_mode, is_public, status
//   max_players, current_players_count, is_full, can_start
//   round_duration, cards_per_turn
//   players: Player[] // ordered by joined_at on the server
//   created_at, started_at
//
// The client never edits a snapshot. Every lobby_state message replaces it.

type GameMode string

const (
	GameModeClassic1v1 GameMode = "classic_1v1"
	GameModeTournament GameMode = "tournament"
	GameModeBossFight  GameMode = "boss_fight"
)

type LobbyStatus string

const (
	StatusWaiting    LobbyStatus = "waiting"
	StatusInProgress LobbyStatus = "in_progress"
	StatusFinished   LobbyStatus = "finished"
)

type Player struct {
	ID          int        `json:"id"`
	DisplayName string     `json:"display_name"`
	AvatarURL   *string    `json:"avatar_url"`
	IsReady     bool       `json:"is_ready"`
	JoinedAt    *time.Time `json:"joined_at,omitempty"`
}

type LobbySnapshot struct {
	ID                  int         `json:"id"`
	Code                string      `json:"code"`
	Name                string      `json:"name"`
	HostUsername        string      `json:"host_username"`
	GameMode            GameMode    `json:"game_mode"`
	IsPublic            bool        `json:"is_public"`
	Status              LobbyStatus `json:"status,omitempty"`
	MaxPlayers          int         `json:"max_players"`
	CurrentPlayersCount int         `json:"current_players_count"`
	IsFull              bool        `json:"is_full"`
	CanStart            bool        `json:"can_start"`
	RoundDuration       int         `json:"round_duration"`
	CardsPerTurn        int         `json:"cards_per_turn"`
	Players             []Player    `json:"players"`
	CreatedAt           *time.Time  `json:"created_at,omitempty"`
	StartedAt           *time.Time  `json:"started_at,omitempty"`
}

// LobbySummary is one row of the public lobby listing.
type LobbySummary struct {
	ID                  int      `json:"id"`
	Code                string   `json:"code"`
	Name                string   `json:"name"`
	HostUsername        string   `json:"host_username"`
	GameMode            GameMode `json:"game_mode"`
	CurrentPlayersCount int      `json:"current_players_count"`
	MaxPlayers          int      `json:"max_players"`
	IsPublic            bool     `json:"is_public"`
}

// Bounds used by the create form.
const (
	MinPlayers       = 2
	MaxPlayers       = 8
	MinRoundDuration = 30
	MaxRoundDuration = 300
	MinCardsPerTurn  = 1
	MaxCardsPerTurn  = 10

	CodeLength = 6
)

var ErrInvalidParams = errors.New("invalid lobby parameters")

type CreateLobbyParams struct {
	Name          string   `json:"name"`
	GameMode      GameMode `json:"game_mode"`
	IsPublic      bool     `json:"is_public"`
	MaxPlayers    int      `json:"max_players"`
	RoundDuration int      `json:"round_duration"`
	CardsPerTurn  int      `json:"cards_per_turn"`
	GuestUsername string   `json:"guest_username,omitempty"`
}

func DefaultCreateLobbyParams() CreateLobbyParams {
	return CreateLobbyParams{
		Name:          "My Lobby",
		GameMode:      GameModeClassic1v1,
		IsPublic:      true,
		MaxPlayers:    2,
		RoundDuration: 60,
		CardsPerTurn:  5,
	}
}

// Validate reports the first field outside the create form's bounds.
func (p CreateLobbyParams) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidParams)
	case p.MaxPlayers < MinPlayers || p.MaxPlayers > MaxPlayers:
		return fmt.Errorf("%w: max_players must be between %d and %d", ErrInvalidParams, MinPlayers, MaxPlayers)
	case p.RoundDuration < MinRoundDuration || p.RoundDuration > MaxRoundDuration:
		return fmt.Errorf("%w: round_duration must be between %d and %d", ErrInvalidParams, MinRoundDuration, MaxRoundDuration)
	case p.CardsPerTurn < MinCardsPerTurn || p.CardsPerTurn > MaxCardsPerTurn:
		return fmt.Errorf("%w: cards_per_turn must be between %d and %d", ErrInvalidParams, MinCardsPerTurn, MaxCardsPerTurn)
	}
	switch p.GameMode {
	case GameModeClassic1v1, GameModeTournament, GameModeBossFight:
		return nil
	default:
		return fmt.Errorf("%w: unknown game_mode %q", ErrInvalidParams, p.GameMode)
	}
}

// LobbySettings is the host-editable subset. Nil fields are left alone.
type LobbySettings struct {
	RoundDuration *int  `json:"round_duration,omitempty"`
	CardsPerTurn  *int  `json:"cards_per_turn,omitempty"`
	IsPublic      *bool `json:"is_public,omitempty"`
}

func (s LobbySettings) Empty() bool {
	return s.RoundDuration == nil && s.CardsPerTurn == nil && s.IsPublic == nil
}
