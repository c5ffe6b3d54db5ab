package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/zawomons-gt/internal/api"
	"github.com/DoyleJ11/zawomons-gt/internal/backendtest"
	"github.com/DoyleJ11/zawomons-gt/internal/client"
	"github.com/DoyleJ11/zawomons-gt/internal/config"
	"github.com/DoyleJ11/zawomons-gt/internal/engine"
	"github.com/DoyleJ11/zawomons-gt/internal/session"
	"github.com/DoyleJ11/zawomons-gt/internal/ws"
	"github.com/DoyleJ11/zawomons-gt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseCommand(t *testing.T) {
	round := 90
	public := false

	cases := []struct {
		line    string
		want    engine.Input
		wantErr bool
	}{
		{line: "ready", want: engine.Input{Type: engine.InToggleReady}},
		{line: "  start ", want: engine.Input{Type: engine.InStartRequested}},
		{line: "leave", want: engine.Input{Type: engine.InLeaveRequested}},
		{line: "chat good luck all", want: engine.Input{Type: engine.InSendChat, Text: "good luck all"}},
		{line: "set round=90 public=false", want: engine.Input{
			Type:     engine.InUpdateSettings,
			Settings: &types.LobbySettings{RoundDuration: &round, IsPublic: &public},
		}},
		{line: "chat", wantErr: true},
		{line: "set", wantErr: true},
		{line: "set round=5", wantErr: true},
		{line: "set cards=eleven", wantErr: true},
		{line: "set colour=red", wantErr: true},
		{line: "dance", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			got, err := parseCommand(tc.line)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseCommand_EmptyLine(t *testing.T) {
	_, err := parseCommand("   ")
	assert.ErrorIs(t, err, errEmptyLine)
}

// lockedBuffer lets the test read what the prompt goroutine writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestApp(t *testing.T, srv *backendtest.Server, sess session.Session, in io.Reader, out io.Writer) *app {
	t.Helper()
	store := session.NewMemoryStore()
	require.NoError(t, session.Save(store, sess))

	c, err := client.New(context.Background(), client.Config{
		API:    api.NewClient(srv.APIBase()),
		Dialer: ws.Dialer{BaseURL: srv.WSBase()},
		Store:  store,
	})
	require.NoError(t, err)

	a := &app{
		cfg:    &config.Config{APIBase: srv.APIBase(), WSBase: srv.WSBase(), Lobby: types.DefaultCreateLobbyParams()},
		log:    zap.NewNop(),
		store:  store,
		client: c,
		in:     in,
		out:    out,
	}
	t.Cleanup(a.close)
	return a
}

func TestPrompt_ReadyThenLeaveOnEOF(t *testing.T) {
	srv := backendtest.New(nil)
	t.Cleanup(srv.Close)
	srv.AddUser("ash-token", api.User{ID: 1, Username: "ash"})

	host := newTestApp(t, srv, session.Authenticated("ash-token", "", api.User{ID: 1, Username: "ash"}), strings.NewReader(""), io.Discard)
	hostLobby, err := host.client.Create(context.Background(), types.DefaultCreateLobbyParams())
	require.NoError(t, err)
	hv, err := hostLobby.State(context.Background())
	require.NoError(t, err)
	code := hv.State.Code

	pr, pw := io.Pipe()
	out := &lockedBuffer{}
	guest := newTestApp(t, srv, session.NewGuest("Guest4321"), pr, out)

	lb, err := guest.client.Join(context.Background(), code)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- guest.prompt(context.Background(), lb) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Not Ready")
	}, 3*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(pw, "ready\n")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, ok := srv.Lobby(code)
		return ok && len(snap.Players) == 2 && snap.Players[1].IsReady
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, pw.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatalf("prompt did not return after stdin closed")
	}

	assert.Contains(t, out.String(), "-> main menu")
	require.Eventually(t, func() bool {
		snap, ok := srv.Lobby(code)
		return ok && len(snap.Players) == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestAlertText(t *testing.T) {
	assert.Equal(t, "Lobby is full", alertText(&client.RejectedError{Alert: "Lobby is full"}))
	assert.Equal(t, "Lobby not found", alertText(&api.APIError{StatusCode: 404, Message: "Lobby not found"}))
}

func TestFill_SeatsReadyGuestsAndLeavesOnCancel(t *testing.T) {
	srv := backendtest.New(nil)
	t.Cleanup(srv.Close)
	srv.AddUser("ash-token", api.User{ID: 1, Username: "ash"})

	params := types.DefaultCreateLobbyParams()
	params.GameMode = types.GameModeTournament
	params.MaxPlayers = 4

	host := newTestApp(t, srv, session.Authenticated("ash-token", "", api.User{ID: 1, Username: "ash"}), strings.NewReader(""), io.Discard)
	hostLobby, err := host.client.Create(context.Background(), params)
	require.NoError(t, err)
	hv, err := hostLobby.State(context.Background())
	require.NoError(t, err)
	code := hv.State.Code

	filler := newTestApp(t, srv, session.NewGuest("Guest1111"), strings.NewReader(""), &lockedBuffer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- runFill(ctx, filler, []string{strings.ToLower(code), "3"}) }()

	require.Eventually(t, func() bool {
		snap, ok := srv.Lobby(code)
		if !ok || len(snap.Players) != 4 {
			return false
		}
		for _, p := range snap.Players {
			if !p.IsReady {
				return false
			}
		}
		return snap.CanStart
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(leaveWait + time.Second):
		t.Fatalf("fill did not return after cancel")
	}

	snap, ok := srv.Lobby(code)
	require.True(t, ok)
	assert.Len(t, snap.Players, 1)
}

func TestFill_Usage(t *testing.T) {
	a := &app{log: zap.NewNop()}
	assert.ErrorIs(t, runFill(context.Background(), a, []string{"ABC123"}), errUsage)
	assert.ErrorIs(t, runFill(context.Background(), a, []string{"ABC123", "zero"}), errUsage)
}
