// Package client runs the lobby flows a player goes through: list, create,
// join and join-from-list all share one request path into a lobby actor.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/DoyleJ11/zawomons-gt/internal/api"
	"github.com/DoyleJ11/zawomons-gt/internal/engine"
	"github.com/DoyleJ11/zawomons-gt/internal/hub"
	"github.com/DoyleJ11/zawomons-gt/internal/lobby"
	"github.com/DoyleJ11/zawomons-gt/internal/render"
	"github.com/DoyleJ11/zawomons-gt/internal/session"
	"github.com/DoyleJ11/zawomons-gt/internal/ws"
	"github.com/DoyleJ11/zawomons-gt/pkg/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// RejectedError is a create or join that did not go through. Alert is the
// text to show the player.
type RejectedError struct {
	Alert string
	Err   error
}

func (e *RejectedError) Error() string { return e.Alert }

func (e *RejectedError) Unwrap() error { return e.Err }

type Config struct {
	API    *api.Client
	Dialer ws.Dialer
	Store  session.Store
	Clock  clockwork.Clock
	Logger *zap.Logger
}

type Client struct {
	api    *api.Client
	dialer ws.Dialer
	hub    *hub.Hub
	store  session.Store
	clock  clockwork.Clock
	log    *zap.Logger

	mu      sync.Mutex
	session session.Session
}

// New loads the stored session and points the API client at its token.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Store == nil {
		cfg.Store = session.NewMemoryStore()
	}

	sess, err := session.Load(cfg.Store, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	c := &Client{
		api:     cfg.API,
		dialer:  cfg.Dialer,
		hub:     hub.NewHub(ctx, cfg.Logger),
		store:   cfg.Store,
		clock:   cfg.Clock,
		log:     cfg.Logger,
		session: sess,
	}
	c.api.SetToken(sess.Token)
	return c, nil
}

func (c *Client) API() *api.Client { return c.api }

func (c *Client) Hub() *hub.Hub { return c.hub }

func (c *Client) Session() session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// SetSession persists s and switches the API token to it.
func (c *Client) SetSession(s session.Session) error {
	if err := session.Save(c.store, s); err != nil {
		return err
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	c.api.SetToken(s.Token)
	return nil
}

func (c *Client) ListLobbies(ctx context.Context) ([]types.LobbySummary, error) {
	return c.api.ListLobbies(ctx, types.StatusWaiting)
}

// Create makes a new lobby with the current player as host and connects to it.
func (c *Client) Create(ctx context.Context, params types.CreateLobbyParams) (*lobby.Lobby, error) {
	if err := params.Validate(); err != nil {
		return nil, &RejectedError{Alert: err.Error(), Err: err}
	}
	sess := c.Session()

	return c.run(ctx, sess, c.api, engine.Input{Type: engine.InCreateRequested}, engine.AlertCreateFailed,
		func(ctx context.Context, _ string) (*types.LobbySnapshot, error) {
			return c.api.CreateLobby(ctx, params)
		})
}

// Join joins the lobby with the given code (typed in or picked from the list).
func (c *Client) Join(ctx context.Context, code string) (*lobby.Lobby, error) {
	return c.JoinAs(ctx, code, c.Session())
}

// JoinAs joins as sess instead of the client's own session. Another token gets
// its own API client with the same settings.
func (c *Client) JoinAs(ctx context.Context, code string, sess session.Session) (*lobby.Lobby, error) {
	backend := c.api
	if sess.Token != c.api.Token() {
		backend = c.api.ForToken(sess.Token)
	}

	return c.run(ctx, sess, backend, engine.Input{Type: engine.InJoinRequested, Code: code}, engine.AlertJoinFailed,
		func(ctx context.Context, code string) (*types.LobbySnapshot, error) {
			return backend.JoinLobby(ctx, code, sess.GuestUsername())
		})
}

type request func(ctx context.Context, code string) (*types.LobbySnapshot, error)

// run is the one path every flow takes: start an actor, let the engine vet
// the request, make the REST call and feed its outcome back.
func (c *Client) run(ctx context.Context, sess session.Session, backend *api.Client, start engine.Input, fallback string, call request) (*lobby.Lobby, error) {
	name := sess.DisplayName()
	initial := engine.NewIdleState(name, sess.IsGuest())
	initial.Authenticated = sess.Kind() == session.KindAuthenticated
	lb := lobby.NewLobby(context.WithoutCancel(ctx), initial, lobby.Config{
		Dial:    c.dialFunc(sess.Token),
		Backend: backend,
		Clock:   c.clock,
		Logger:  c.log.With(zap.String("player", name)),
	})

	fail := func(err error) (*lobby.Lobby, error) {
		_ = lb.Close()
		return nil, err
	}

	if err := lb.Do(ctx, start); err != nil {
		return fail(err)
	}
	v, err := lb.State(ctx)
	if err != nil {
		return fail(err)
	}
	if v.State.Phase == engine.PhaseIdle {
		// the engine turned it down before any request went out
		return fail(&RejectedError{Alert: v.State.Alert})
	}

	snap, err := call(ctx, v.State.Code)
	if err != nil {
		alert := render.Alert(err, fallback)
		c.log.Warn("lobby request failed", zap.String("code", v.State.Code), zap.Error(err))
		_ = lb.Do(ctx, engine.Input{Type: engine.InRequestFailed, Text: alert, Err: err})
		return fail(&RejectedError{Alert: alert, Err: err})
	}
	if err := lb.Do(ctx, engine.Input{Type: engine.InRequestSucceeded, Snapshot: snap}); err != nil {
		return fail(err)
	}

	v, err = lb.State(ctx)
	if err != nil {
		return fail(err)
	}
	if v.State.Phase == engine.PhaseIdle {
		return fail(&RejectedError{Alert: v.State.Alert})
	}

	c.hub.Register(hub.Key(v.State.Code, name), lb)
	c.log.Info("entered lobby", zap.String("code", v.State.Code), zap.Bool("host", v.State.IsHost))
	return lb, nil
}

func (c *Client) dialFunc(token string) lobby.DialFunc {
	d := c.dialer
	d.Token = token
	if d.Logger == nil {
		d.Logger = c.log
	}
	return func(ctx context.Context, code string, onMessage func(types.ServerMessage), onClose func(error)) (lobby.Conn, error) {
		conn, err := d.Dial(ctx, code, onMessage, onClose)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Lobby returns the active lobby for this player, if any.
func (c *Client) Lobby(code string) *lobby.Lobby {
	return c.hub.Get(hub.Key(engine.NormalizeCode(code), c.Session().DisplayName()))
}

// Close leaves nothing running: every lobby actor is stopped.
func (c *Client) Close() error {
	return c.hub.Shutdown()
}
