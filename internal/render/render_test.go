package render

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/DoyleJ11/zawomons-gt/internal/api"
	"github.com/DoyleJ11/zawomons-gt/internal/engine"
	"github.com/DoyleJ11/zawomons-gt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLobbyList_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, LobbyList(&buf, nil))
	assert.Equal(t, NoLobbies+"\n", buf.String())
}

func TestLobbyList_OneLinePerLobby(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, LobbyList(&buf, []types.LobbySummary{
		{Code: "ABC123", Name: "Fun", HostUsername: "ash", CurrentPlayersCount: 1, MaxPlayers: 2},
		{Code: "XYZ789", Name: "Serious", HostUsername: "misty", CurrentPlayersCount: 3, MaxPlayers: 8},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Players: 1/2")
	assert.Contains(t, lines[0], "Code: ABC123")
	assert.Contains(t, lines[1], "Host: misty")
}

func TestLobby_PlayersRenderInServerOrder(t *testing.T) {
	for _, n := range []int{1, 2, 5, 8} {
		t.Run(fmt.Sprintf("%d players", n), func(t *testing.T) {
			snap := &types.LobbySnapshot{Code: "ABC123", Name: "Test", HostUsername: "p0", MaxPlayers: 8}
			for i := 0; i < n; i++ {
				snap.Players = append(snap.Players, types.Player{ID: i, DisplayName: fmt.Sprintf("p%d", i), IsReady: i%2 == 1})
			}
			s := engine.State{Phase: engine.PhaseConnected, Code: "ABC123", Snapshot: snap}

			var buf bytes.Buffer
			require.NoError(t, Lobby(&buf, s))
			out := buf.String()

			last := -1
			for i := 0; i < n; i++ {
				idx := strings.Index(out, fmt.Sprintf("  p%d ", i))
				require.Greater(t, idx, last, "player p%d out of order", i)
				last = idx
			}
			assert.Equal(t, 1, strings.Count(out, "👑 Host"))
		})
	}
}

func TestLobby_SettingsAndControls(t *testing.T) {
	snap := &types.LobbySnapshot{
		Code: "ABC123", Name: "Test", HostUsername: "ash", GameMode: types.GameModeBossFight,
		MaxPlayers: 4, CurrentPlayersCount: 2, RoundDuration: 90, CardsPerTurn: 3, IsPublic: false,
		Players: []types.Player{{DisplayName: "ash", IsReady: true}, {DisplayName: "misty"}},
	}

	var host bytes.Buffer
	require.NoError(t, Lobby(&host, engine.State{Phase: engine.PhaseConnected, IsHost: true, Snapshot: snap}))
	assert.Contains(t, host.String(), "Boss Fight")
	assert.Contains(t, host.String(), "Players:        2/4")
	assert.Contains(t, host.String(), "90s")
	assert.Contains(t, host.String(), "Private")
	assert.Contains(t, host.String(), "waiting for players")

	var guest bytes.Buffer
	require.NoError(t, Lobby(&guest, engine.State{Phase: engine.PhaseConnected, IsReady: true, Snapshot: snap}))
	assert.Contains(t, guest.String(), "[ready] Not Ready")
	assert.NotContains(t, guest.String(), "[start]")
}

func TestAlert(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "unauthorized", err: &api.APIError{StatusCode: 401, Message: "Invalid token"}, want: AuthRequired},
		{name: "forbidden verbatim", err: &api.APIError{StatusCode: 403, Message: "Only host can start the game"}, want: "Only host can start the game"},
		{name: "server message verbatim", err: fmt.Errorf("wrapped: %w", &api.APIError{StatusCode: 400, Message: "Lobby is full"}), want: "Lobby is full"},
		{name: "no message", err: &api.APIError{StatusCode: 500}, want: "Failed to join lobby"},
		{name: "decode error", err: &api.DecodeError{Raw: "<html>", Err: errors.New("bad")}, want: "Failed to join lobby: unexpected response: <html>"},
		{name: "transport error", err: errors.New("connection refused"), want: "Failed to join lobby"},
		{name: "nil", err: nil, want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Alert(tc.err, "Failed to join lobby"))
		})
	}
}

func TestFormatGameMode(t *testing.T) {
	assert.Equal(t, "Classic 1v1", FormatGameMode(types.GameModeClassic1v1))
	assert.Equal(t, "Tournament", FormatGameMode(types.GameModeTournament))
	assert.Equal(t, "capture_flag", FormatGameMode("capture_flag"))
}
