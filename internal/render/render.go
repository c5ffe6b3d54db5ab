// Package render turns lobby data into the text the CLI prints.
package render

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/DoyleJ11/zawomons-gt/internal/api"
	"github.com/DoyleJ11/zawomons-gt/internal/engine"
	"github.com/DoyleJ11/zawomons-gt/pkg/types"
)

const (
	NoLobbies    = "No lobbies available"
	AuthRequired = "Authorization error (401): the token may be invalid or expired"
)

var gameModes = map[types.GameMode]string{
	types.GameModeClassic1v1: "Classic 1v1",
	types.GameModeTournament: "Tournament",
	types.GameModeBossFight:  "Boss Fight",
}

// FormatGameMode returns the display name of a mode, or the raw value for modes it does not know.
func FormatGameMode(mode types.GameMode) string {
	if name, ok := gameModes[mode]; ok {
		return name
	}
	return string(mode)
}

func LobbyList(w io.Writer, lobbies []types.LobbySummary) error {
	if len(lobbies) == 0 {
		_, err := fmt.Fprintln(w, NoLobbies)
		return err
	}
	for _, l := range lobbies {
		_, err := fmt.Fprintf(w, "%-24s Host: %-16s Players: %d/%d  Code: %s\n",
			l.Name, l.HostUsername, l.CurrentPlayersCount, l.MaxPlayers, l.Code)
		if err != nil {
			return err
		}
	}
	return nil
}

// Lobby prints the lobby screen: players in the order the server sent them,
// the settings panel and the controls available to this player.
func Lobby(w io.Writer, s engine.State) error {
	var b strings.Builder

	snap := s.Snapshot
	if snap == nil {
		fmt.Fprintf(&b, "Lobby %s (waiting for the server...)\n", s.Code)
	} else {
		fmt.Fprintf(&b, "%s [%s]\n", snap.Name, snap.Code)
		b.WriteString("Players:\n")
		for _, p := range snap.Players {
			badge := "Not Ready"
			if p.IsReady {
				badge = "Ready"
			}
			crown := ""
			if p.DisplayName == snap.HostUsername {
				crown = " 👑 Host"
			}
			fmt.Fprintf(&b, "  %-20s %-9s%s\n", p.DisplayName, badge, crown)
		}

		b.WriteString("Settings:\n")
		fmt.Fprintf(&b, "  Game Mode:      %s\n", FormatGameMode(snap.GameMode))
		fmt.Fprintf(&b, "  Max Players:    %d\n", snap.MaxPlayers)
		fmt.Fprintf(&b, "  Players:        %d/%d\n", snap.CurrentPlayersCount, snap.MaxPlayers)
		fmt.Fprintf(&b, "  Round Duration: %ds\n", snap.RoundDuration)
		fmt.Fprintf(&b, "  Cards per Turn: %d\n", snap.CardsPerTurn)
		fmt.Fprintf(&b, "  Lobby Type:     %s\n", visibility(snap.IsPublic))
	}

	c := engine.DeriveControls(s)
	switch {
	case c.StartVisible && c.StartEnabled:
		b.WriteString("[start] Start Game\n")
	case c.StartVisible:
		b.WriteString("[start] Start Game (waiting for players)\n")
	case c.ReadyVisible:
		fmt.Fprintf(&b, "[ready] %s\n", c.ReadyLabel)
	}

	if s.Alert != "" {
		fmt.Fprintf(&b, "! %s\n", s.Alert)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Alert is the message shown to the player for a failed request. Server
// messages are passed through unchanged.
func Alert(err error, fallback string) string {
	if err == nil {
		return ""
	}
	if api.IsUnauthorized(err) {
		return AuthRequired
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr.UserMessage(fallback)
	}

	var decErr *api.DecodeError
	if errors.As(err, &decErr) {
		return fmt.Sprintf("%s: unexpected response: %s", fallback, decErr.Raw)
	}
	return fallback
}

func visibility(public bool) string {
	if public {
		return "Public"
	}
	return "Private"
}
