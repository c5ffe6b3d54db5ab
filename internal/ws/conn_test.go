package ws

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DoyleJ11/zawomons-gt/internal/api"
	"github.com/DoyleJ11/zawomons-gt/internal/backendtest"
	"github.com/DoyleJ11/zawomons-gt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper: receive one message with a timeout so tests never hang
func recvMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) types.ServerMessage {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(within):
		t.Fatalf("timed out waiting for server message")
		return types.ServerMessage{}
	}
}

func recvType(t *testing.T, ch <-chan types.ServerMessage, want types.ServerMessageType) types.ServerMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-ch:
			if m.Type == want {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
			return types.ServerMessage{}
		}
	}
}

type fixture struct {
	srv  *backendtest.Server
	host *api.Client
	code string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	srv := backendtest.New(nil)
	t.Cleanup(srv.Close)
	srv.AddUser("host-token", api.User{ID: 1, Username: "ash"})

	host := api.NewClient(srv.APIBase(), api.WithToken("host-token"))
	params := types.DefaultCreateLobbyParams()
	snap, err := host.CreateLobby(context.Background(), params)
	require.NoError(t, err)
	return fixture{srv: srv, host: host, code: snap.Code}
}

func dialGuest(t *testing.T, f fixture, guest string) (*Conn, <-chan types.ServerMessage, <-chan error) {
	t.Helper()
	ctx := context.Background()
	_, err := api.NewClient(f.srv.APIBase()).JoinLobby(ctx, f.code, guest)
	require.NoError(t, err)

	msgs := make(chan types.ServerMessage, 32)
	closed := make(chan error, 1)
	d := Dialer{BaseURL: f.srv.WSBase()}
	conn, err := d.Dial(ctx, f.code, func(m types.ServerMessage) { msgs <- m }, func(err error) { closed <- err })
	require.NoError(t, err)
	return conn, msgs, closed
}

func TestDialer_URL(t *testing.T) {
	d := Dialer{BaseURL: "ws://localhost:8000/"}
	assert.Equal(t, "ws://localhost:8000/ws/zawomons-gt/lobby/ABC123/", d.URL("ABC123"))
}

func TestConn_ReceivesStateAndSendsReady(t *testing.T) {
	f := newFixture(t)
	conn, msgs, _ := dialGuest(t, f, "Guest1234")
	t.Cleanup(func() { _ = conn.Close() })

	first := recvMsg(t, msgs, time.Second)
	require.Equal(t, types.MsgLobbyState, first.Type)
	require.NotNil(t, first.Lobby)
	require.Len(t, first.Lobby.Players, 2)
	assert.Equal(t, "ash", first.Lobby.Players[0].DisplayName)
	assert.Equal(t, "Guest1234", first.Lobby.Players[1].DisplayName)

	require.NoError(t, conn.Send(types.PlayerReady(true, "Guest1234")))
	next := recvType(t, msgs, types.MsgLobbyState)
	assert.True(t, next.Lobby.Players[1].IsReady)
	assert.True(t, next.Lobby.CanStart)
}

func TestConn_SkipsMalformedFrames(t *testing.T) {
	f := newFixture(t)
	conn, msgs, closed := dialGuest(t, f, "Guest1234")
	t.Cleanup(func() { _ = conn.Close() })
	recvType(t, msgs, types.MsgLobbyState)

	f.srv.SendRaw(f.code, []byte("{not json"))
	require.NoError(t, conn.Send(types.ChatMessage("Guest1234", "still here")))

	chat := recvType(t, msgs, types.MsgChat)
	assert.Equal(t, "still here", chat.Message)
	assert.Equal(t, "Guest1234", chat.Username)

	select {
	case err := <-closed:
		t.Fatalf("socket closed on a malformed frame: %v", err)
	default:
	}
}

func TestConn_HostLeaveDeliversLobbyClosedThenCloses(t *testing.T) {
	f := newFixture(t)
	conn, msgs, closed := dialGuest(t, f, "Guest1234")
	recvType(t, msgs, types.MsgLobbyState)

	require.NoError(t, f.host.LeaveLobby(context.Background(), f.code, ""))

	m := recvType(t, msgs, types.MsgLobbyClosed)
	assert.NotEmpty(t, m.Message)

	select {
	case err := <-closed:
		assert.NoError(t, err, "server closure is a normal close")
	case <-time.After(2 * time.Second):
		t.Fatal("socket did not close after the lobby was deleted")
	}
	assert.ErrorIs(t, conn.Send(types.ChatMessage("Guest1234", "hello?")), ErrConnClosed)
	assert.NoError(t, conn.Close())
}

func TestConn_CloseCallsOnCloseOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := api.NewClient(f.srv.APIBase()).JoinLobby(ctx, f.code, "Guest1")
	require.NoError(t, err)

	var calls atomic.Int32
	d := Dialer{BaseURL: f.srv.WSBase()}
	conn, err := d.Dial(ctx, f.code, nil, func(error) { calls.Add(1) })
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	<-conn.Done()

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.NoError(t, conn.Err())
}

func TestDial_UnknownLobbyFails(t *testing.T) {
	f := newFixture(t)
	d := Dialer{BaseURL: f.srv.WSBase()}
	_, err := d.Dial(context.Background(), "ZZZZZZ", nil, nil)
	require.Error(t, err)
}

func TestDial_SendsBearerForAuthenticatedPlayers(t *testing.T) {
	f := newFixture(t)
	f.srv.AddUser("misty-token", api.User{ID: 2, Username: "misty"})
	ctx := context.Background()
	_, err := api.NewClient(f.srv.APIBase(), api.WithToken("misty-token")).JoinLobby(ctx, f.code, "")
	require.NoError(t, err)

	msgs := make(chan types.ServerMessage, 32)
	d := Dialer{BaseURL: f.srv.WSBase(), Token: "misty-token"}
	conn, err := d.Dial(ctx, f.code, func(m types.ServerMessage) { msgs <- m }, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	recvType(t, msgs, types.MsgLobbyState)

	// The server knows who this is from the header, so guest_username is ignored.
	require.NoError(t, conn.Send(types.PlayerReady(true, "")))
	st := recvType(t, msgs, types.MsgLobbyState)
	require.Len(t, st.Lobby.Players, 2)
	assert.True(t, st.Lobby.Players[1].IsReady)
}
