package engine

import (
	"strings"

	"github.com/DoyleJ11/zawomons-gt/pkg/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// User-facing fallbacks, used when the server gives no message of its own.
const (
	AlertLoginRequired = "You must be logged in to create a lobby"
	AlertInvalidCode   = "Please enter a valid 6-character code"
	AlertCreateFailed  = "Failed to create lobby"
	AlertJoinFailed    = "Failed to join lobby"
	AlertStartFailed   = "Failed to start game"
	AlertCannotStart   = "Not enough players to start"
	AlertConnectFailed = "Could not connect to the lobby"
	AlertDisconnected  = "Disconnected from the lobby"
	AlertLobbyClosed   = "The lobby was closed"
)

// NewIdleState starts a player with no lobby. A named non-guest counts as
// logged in; an empty name is no session at all.
func NewIdleState(username string, guest bool) State {
	return State{
		Phase:         PhaseIdle,
		Username:      username,
		Guest:         guest,
		Authenticated: !guest && username != "",
	}
}

type Controls struct {
	StartVisible bool
	StartEnabled bool
	ReadyVisible bool
	// ReadyLabel names what pressing the button will do.
	ReadyLabel string
}

// DeriveControls decides what the lobby screen offers. Start is enabled only
// when the server says can_start.
func DeriveControls(s State) Controls {
	live := s.Phase == PhaseConnected
	c := Controls{
		StartVisible: live && s.IsHost,
		ReadyVisible: live && !s.IsHost,
		ReadyLabel:   "Ready",
	}
	c.StartEnabled = c.StartVisible && s.Snapshot != nil && s.Snapshot.CanStart
	if s.IsReady {
		c.ReadyLabel = "Not Ready"
	}
	return c
}

// NormalizeCode trims and upper-cases a typed-in lobby code.
func NormalizeCode(code string) string {
	// A Caser is stateful, so one per call.
	return cases.Upper(language.Und).String(strings.TrimSpace(code))
}

func ValidCode(code string) bool {
	if len(code) != types.CodeLength {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func ContainsEffect(effects []Effect, t EffectType) bool {
	for _, e := range effects {
		if e.Type == t {
			return true
		}
	}
	return false
}

func cloneSnapshot(src *types.LobbySnapshot) *types.LobbySnapshot {
	dst := *src
	dst.Players = append([]types.Player(nil), src.Players...)
	return &dst
}
