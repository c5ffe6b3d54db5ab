package lobby

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/zawomons-gt/internal/api"
	"github.com/DoyleJ11/zawomons-gt/internal/engine"
	"github.com/DoyleJ11/zawomons-gt/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   []types.ClientMessage
	closed bool
}

func (c *fakeConn) Send(msg types.ClientMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Sent() []types.ClientMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.ClientMessage(nil), c.sent...)
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type dialCall struct {
	code      string
	onMessage func(types.ServerMessage)
	onClose   func(error)
	conn      *fakeConn
}

func fakeDialer(calls chan dialCall) DialFunc {
	return func(ctx context.Context, code string, onMessage func(types.ServerMessage), onClose func(error)) (Conn, error) {
		c := &fakeConn{}
		calls <- dialCall{code: code, onMessage: onMessage, onClose: onClose, conn: c}
		return c, nil
	}
}

type leaveCall struct{ code, guest string }

type fakeBackend struct {
	startErr error
	starts   chan string
	leaves   chan leaveCall
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{starts: make(chan string, 4), leaves: make(chan leaveCall, 4)}
}

func (b *fakeBackend) StartLobby(ctx context.Context, code string) error {
	b.starts <- code
	return b.startErr
}

func (b *fakeBackend) LeaveLobby(ctx context.Context, code, guest string) error {
	b.leaves <- leaveCall{code: code, guest: guest}
	return nil
}

// helper: receive one view with a timeout so tests never hang
func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("subscriber outbox closed unexpectedly")
		}
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

// helper: receive views until one matches
func waitForView(t *testing.T, ch <-chan View, match func(View) bool) View {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				t.Fatalf("subscriber outbox closed while waiting")
			}
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatalf("timed out waiting for matching view")
			return View{}
		}
	}
}

func recvDial(t *testing.T, ch <-chan dialCall) dialCall {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for dial")
		return dialCall{}
	}
}

func inPhase(p engine.Phase) func(View) bool {
	return func(v View) bool { return v.State.Phase == p }
}

type harness struct {
	lobby   *Lobby
	dials   chan dialCall
	backend *fakeBackend
	clock   *clockwork.FakeClock
	views   <-chan View
}

func newHarness(t *testing.T, initial engine.State) *harness {
	t.Helper()
	h := &harness{
		dials:   make(chan dialCall, 2),
		backend: newFakeBackend(),
		clock:   clockwork.NewFakeClock(),
	}
	h.lobby = NewLobby(context.Background(), initial, Config{
		Dial:    fakeDialer(h.dials),
		Backend: h.backend,
		Clock:   h.clock,
	})
	t.Cleanup(func() { _ = h.lobby.Close() })

	_, views, err := h.lobby.Subscribe(context.Background(), 16)
	require.NoError(t, err)
	h.views = views
	recvView(t, h.views, 100*time.Millisecond) // initial view
	return h
}

// joinAndConnect walks the actor from Idle to Connected on lobby code.
func (h *harness) joinAndConnect(t *testing.T, code string) dialCall {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.lobby.Do(ctx, engine.Input{Type: engine.InJoinRequested, Code: code}))
	require.NoError(t, h.lobby.Do(ctx, engine.Input{Type: engine.InRequestSucceeded}))
	call := recvDial(t, h.dials)
	waitForView(t, h.views, inPhase(engine.PhaseConnected))
	return call
}

func lobbyStateMsg(canStart bool, names ...string) types.ServerMessage {
	snap := &types.LobbySnapshot{Code: "ABC123", HostUsername: names[0], CanStart: canStart}
	for i, n := range names {
		snap.Players = append(snap.Players, types.Player{ID: i + 1, DisplayName: n})
	}
	return types.ServerMessage{Type: types.MsgLobbyState, Lobby: snap}
}

func TestLobby_GuestJoin_IdentifiesAndBroadcastsSnapshots(t *testing.T) {
	h := newHarness(t, engine.NewIdleState("Guest1234", true))
	call := h.joinAndConnect(t, "abc123")

	assert.Equal(t, "ABC123", call.code)
	sent := call.conn.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, types.MsgIdentify, sent[0].Type)
	assert.Equal(t, "Guest1234", sent[0].GuestUsername)

	call.onMessage(lobbyStateMsg(false, "ash", "Guest1234"))
	v := waitForView(t, h.views, func(v View) bool { return v.State.Snapshot != nil })
	require.Len(t, v.State.Snapshot.Players, 2)
	assert.Equal(t, "ash", v.State.Snapshot.Players[0].DisplayName)
	assert.Equal(t, "Guest1234", v.State.Snapshot.Players[1].DisplayName)
	assert.True(t, v.Controls.ReadyVisible)

	call.onMessage(lobbyStateMsg(false, "ash"))
	next := recvView(t, h.views, 200*time.Millisecond)
	assert.Equal(t, v.Version+1, next.Version)
	assert.Len(t, next.State.Snapshot.Players, 1)
}

func TestLobby_ToggleReady_SendsOnceAndFlipsWithoutAck(t *testing.T) {
	h := newHarness(t, engine.NewIdleState("misty", false))
	call := h.joinAndConnect(t, "ABC123")
	assert.Empty(t, call.conn.Sent(), "authenticated players do not identify")

	require.NoError(t, h.lobby.Do(context.Background(), engine.Input{Type: engine.InToggleReady}))
	v := recvView(t, h.views, 200*time.Millisecond)
	assert.True(t, v.State.IsReady)
	assert.Equal(t, "Not Ready", v.Controls.ReadyLabel)

	sent := call.conn.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, types.MsgPlayerReady, sent[0].Type)
	require.NotNil(t, sent[0].IsReady)
	assert.True(t, *sent[0].IsReady)
}

func TestLobby_DropSlowSubscriber(t *testing.T) {
	h := newHarness(t, engine.NewIdleState("misty", false))

	slow := make(chan View, 1)
	h.lobby.Inbox() <- Subscribe{ID: "slow", Outbox: slow} // fills the buffer with the current view

	h.lobby.Inbox() <- Input{In: engine.Input{Type: engine.InJoinRequested, Code: "ABC123"}}

	v, err := h.lobby.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v.NumSubscribers, "slow subscriber should be dropped")

	<-slow
	_, ok := <-slow
	assert.False(t, ok, "dropped subscriber's outbox should be closed")
}

func TestLobby_RejectedInputReturnsErrorAndNoBroadcast(t *testing.T) {
	h := newHarness(t, engine.NewIdleState("misty", false))

	err := h.lobby.Do(context.Background(), engine.Input{Type: engine.InToggleReady})
	require.ErrorIs(t, err, engine.ErrInvalidTransition)

	select {
	case v := <-h.views:
		t.Fatalf("expected no view, got %+v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLobby_LobbyClosed_ReturnsToListAfterDelay(t *testing.T) {
	h := newHarness(t, engine.NewIdleState("misty", false))
	call := h.joinAndConnect(t, "ABC123")

	call.onMessage(types.ServerMessage{Type: types.MsgLobbyClosed, Message: "Host left the lobby"})
	v := waitForView(t, h.views, inPhase(engine.PhaseClosing))
	assert.Equal(t, "Host left the lobby", v.State.Alert)
	assert.Empty(t, v.Navigate, "navigation waits for the return delay")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	h.clock.Advance(engine.ReturnDelay)

	nav := waitForView(t, h.views, func(v View) bool { return v.Navigate != "" })
	assert.Equal(t, engine.ScreenLobbyList, nav.Navigate)
	assert.Eventually(t, call.conn.Closed, time.Second, 10*time.Millisecond)
}

func TestLobby_StartFailure_ShowsServerMessage(t *testing.T) {
	h := newHarness(t, engine.NewIdleState("ash", false))
	h.backend.startErr = &api.APIError{StatusCode: 403, Message: "Only host can start the game"}

	ctx := context.Background()
	require.NoError(t, h.lobby.Do(ctx, engine.Input{Type: engine.InCreateRequested}))
	require.NoError(t, h.lobby.Do(ctx, engine.Input{
		Type:     engine.InRequestSucceeded,
		Snapshot: &types.LobbySnapshot{Code: "HOST01"},
	}))
	call := recvDial(t, h.dials)
	waitForView(t, h.views, inPhase(engine.PhaseConnected))

	call.onMessage(lobbyStateMsg(true, "ash", "misty"))
	v := waitForView(t, h.views, func(v View) bool { return v.Controls.StartEnabled })
	assert.True(t, v.Controls.StartVisible)

	require.NoError(t, h.lobby.Do(ctx, engine.Input{Type: engine.InStartRequested}))
	select {
	case code := <-h.backend.starts:
		assert.Equal(t, "HOST01", code)
	case <-time.After(time.Second):
		t.Fatal("start was not called")
	}

	failed := waitForView(t, h.views, func(v View) bool { return v.State.Alert != "" })
	assert.Equal(t, "Only host can start the game", failed.State.Alert)
}

func TestLobby_GameStarted_NavigatesToGame(t *testing.T) {
	h := newHarness(t, engine.NewIdleState("misty", false))
	call := h.joinAndConnect(t, "ABC123")

	call.onMessage(types.ServerMessage{Type: types.MsgGameStarted})
	v := waitForView(t, h.views, inPhase(engine.PhaseInGame))
	assert.Equal(t, engine.ScreenGame, v.Navigate)
	assert.Eventually(t, call.conn.Closed, time.Second, 10*time.Millisecond)
}

func TestLobby_Leave_CallsBackendWithGuestName(t *testing.T) {
	h := newHarness(t, engine.NewIdleState("Guest4321", true))
	call := h.joinAndConnect(t, "ABC123")

	require.NoError(t, h.lobby.Do(context.Background(), engine.Input{Type: engine.InLeaveRequested}))
	v := recvView(t, h.views, 200*time.Millisecond)
	assert.Equal(t, engine.ScreenMenu, v.Navigate)

	select {
	case got := <-h.backend.leaves:
		assert.Equal(t, leaveCall{code: "ABC123", guest: "Guest4321"}, got)
	case <-time.After(time.Second):
		t.Fatal("leave was not called")
	}
	assert.Eventually(t, call.conn.Closed, time.Second, 10*time.Millisecond)
}

func TestLobby_SocketClosedIsNotRetried(t *testing.T) {
	h := newHarness(t, engine.NewIdleState("misty", false))
	call := h.joinAndConnect(t, "ABC123")

	call.onClose(nil)
	v := waitForView(t, h.views, inPhase(engine.PhaseClosed))
	assert.Equal(t, engine.AlertDisconnected, v.State.Alert)

	select {
	case c := <-h.dials:
		t.Fatalf("unexpected redial to %s", c.code)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLobby_Shutdown_ClosesSubscribersAndSocket(t *testing.T) {
	h := newHarness(t, engine.NewIdleState("misty", false))
	call := h.joinAndConnect(t, "ABC123")

	require.NoError(t, h.lobby.Close())
	assert.True(t, call.conn.Closed())

	// late events from the socket are ignored
	call.onMessage(lobbyStateMsg(false, "ash"))

	for v := range h.views {
		t.Fatalf("no views expected after shutdown, got %+v", v)
	}
	_, err := h.lobby.State(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLobby_GreetingBeforeDialReturnsIsKept(t *testing.T) {
	conn := &fakeConn{}
	greetingDialer := func(ctx context.Context, code string, onMessage func(types.ServerMessage), onClose func(error)) (Conn, error) {
		// the reader is already running when Dial hands back the socket
		onMessage(lobbyStateMsg(false, "ash"))
		onMessage(types.ServerMessage{Type: types.MsgChat, Username: "ash", Message: "hi"})
		return conn, nil
	}

	lb := NewLobby(context.Background(), engine.NewIdleState("ash", false), Config{
		Dial:    greetingDialer,
		Backend: newFakeBackend(),
		Clock:   clockwork.NewFakeClock(),
	})
	t.Cleanup(func() { _ = lb.Close() })

	_, views, err := lb.Subscribe(context.Background(), 16)
	require.NoError(t, err)
	recvView(t, views, 100*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, lb.Do(ctx, engine.Input{Type: engine.InCreateRequested}))
	require.NoError(t, lb.Do(ctx, engine.Input{
		Type:     engine.InRequestSucceeded,
		Snapshot: &types.LobbySnapshot{Code: "ABC123"},
	}))

	v := waitForView(t, views, func(v View) bool { return v.State.Snapshot != nil })
	assert.Equal(t, engine.PhaseConnected, v.State.Phase)
	require.Len(t, v.State.Snapshot.Players, 1)
	assert.Equal(t, "ash", v.State.Snapshot.Players[0].DisplayName)

	chat := waitForView(t, views, func(v View) bool { return len(v.Notices) > 0 })
	assert.Equal(t, []string{"ash: hi"}, chat.Notices)
}

func TestLobby_EarlyEventsDroppedWhenDialFails(t *testing.T) {
	failing := func(ctx context.Context, code string, onMessage func(types.ServerMessage), onClose func(error)) (Conn, error) {
		onMessage(lobbyStateMsg(false, "ash"))
		return nil, errors.New("handshake failed")
	}

	lb := NewLobby(context.Background(), engine.NewIdleState("Guest1000", true), Config{Dial: failing})
	t.Cleanup(func() { _ = lb.Close() })

	_, views, err := lb.Subscribe(context.Background(), 16)
	require.NoError(t, err)
	recvView(t, views, 100*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, lb.Do(ctx, engine.Input{Type: engine.InJoinRequested, Code: "ABC123"}))
	require.NoError(t, lb.Do(ctx, engine.Input{Type: engine.InRequestSucceeded}))

	v := waitForView(t, views, inPhase(engine.PhaseClosed))
	assert.Nil(t, v.State.Snapshot)
	assert.Equal(t, engine.AlertConnectFailed, v.State.Alert)
}
