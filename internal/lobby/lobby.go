package lobby

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DoyleJ11/zawomons-gt/internal/engine"
	"github.com/DoyleJ11/zawomons-gt/internal/render"
	"github.com/DoyleJ11/zawomons-gt/pkg/types"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// callTimeout bounds the REST calls the actor makes on its own (start, leave).
const callTimeout = 10 * time.Second

var ErrClosed = errors.New("lobby closed")

// Conn is an open lobby socket.
type Conn interface {
	Send(msg types.ClientMessage) error
	Close() error
}

// DialFunc opens the lobby socket for code. onMessage gets every decoded
// server message and onClose is called once when the socket goes away.
type DialFunc func(ctx context.Context, code string, onMessage func(types.ServerMessage), onClose func(error)) (Conn, error)

// Backend is the part of the REST API the lobby screen calls by itself.
type Backend interface {
	StartLobby(ctx context.Context, code string) error
	LeaveLobby(ctx context.Context, code, guest string) error
}

type Config struct {
	Dial    DialFunc
	Backend Backend
	Clock   clockwork.Clock
	Logger  *zap.Logger
}

type Msg interface{ isLobbyMsg() }

// Input feeds one engine input to the actor. Result, when set, must be
// buffered; it gets the Apply error (nil on success).
type Input struct {
	In     engine.Input
	Result chan error
}

func (Input) isLobbyMsg() {}

type Subscribe struct {
	ID     string
	Outbox chan View // where this subscriber wants to receive views
}

func (Subscribe) isLobbyMsg() {}

type Unsubscribe struct{ ID string }

func (Unsubscribe) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

// dialed and socketEvent carry the socket generation they belong to, so
// events from a socket that was already closed are dropped.
type dialed struct {
	gen  int
	conn Conn
	err  error
}

func (dialed) isLobbyMsg() {}

type socketEvent struct {
	gen int
	in  engine.Input
}

func (socketEvent) isLobbyMsg() {}

type View struct {
	Version        int
	NumSubscribers int
	State          engine.State
	Controls       engine.Controls
	// Navigate is set when this change moves the player to another screen.
	Navigate engine.Screen
	// Notices are one-off lines (chat, joins, leaves) produced by this change.
	Notices []string
}

type Lobby struct {
	inbox   chan Msg
	state   engine.State
	version int
	subs    map[string]chan View

	dial    DialFunc
	backend Backend
	clock   clockwork.Clock
	log     *zap.Logger

	conn        Conn
	gen         int
	early       []socketEvent // arrived before Dial returned
	returnTimer clockwork.Timer

	calls    sync.WaitGroup
	done     chan struct{}
	closeErr error
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewLobby(parent context.Context, initial engine.State, cfg Config) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	l := &Lobby{
		inbox:   make(chan Msg, 64),
		state:   initial,
		subs:    make(map[string]chan View),
		dial:    cfg.Dial,
		backend: cfg.Backend,
		clock:   cfg.Clock,
		log:     cfg.Logger,
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Subscribe:
				l.subs[msg.ID] = msg.Outbox
				l.deliver(msg.ID, msg.Outbox, l.view("", nil))

			case Unsubscribe:
				delete(l.subs, msg.ID)

			case Input:
				err := l.apply(msg.In)
				if msg.Result != nil {
					select {
					case msg.Result <- err:
					default:
					}
				}

			case dialed:
				l.onDialed(msg)

			case socketEvent:
				l.onSocketEvent(msg)

			case GetState:
				msg.Reply <- l.view("", nil)

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) apply(in engine.Input) error {
	effects, newState, err := engine.Apply(l.state, in)
	if err != nil {
		l.log.Debug("input rejected",
			zap.String("code", l.state.Code),
			zap.String("input", string(in.Type)),
			zap.Error(err))
		return err
	}

	changed := newState != l.state
	l.state = newState

	var nav engine.Screen
	var notices []string
	for _, e := range effects {
		switch e.Type {
		case engine.EffNavigate:
			nav = e.To
		case engine.EffNotify:
			notices = append(notices, e.Text)
		default:
			l.execute(e)
		}
	}

	if changed || nav != "" || len(notices) > 0 {
		l.version++
		l.broadcast(l.view(nav, notices))
	}
	return nil
}

func (l *Lobby) execute(e engine.Effect) {
	switch e.Type {
	case engine.EffDial:
		l.startDial(e.Code)

	case engine.EffSend:
		if l.conn == nil {
			l.log.Warn("no open socket, message not sent", zap.String("type", string(e.Msg.Type)))
			return
		}
		if err := l.conn.Send(*e.Msg); err != nil {
			l.log.Warn("failed to send lobby message", zap.String("type", string(e.Msg.Type)), zap.Error(err))
		}

	case engine.EffCloseSocket:
		l.closeConn()

	case engine.EffCallStart:
		code := e.Code
		l.goCall(func(ctx context.Context) {
			if l.backend == nil {
				return
			}
			if err := l.backend.StartLobby(ctx, code); err != nil {
				l.push(Input{In: engine.Input{
					Type: engine.InStartFailed,
					Text: render.Alert(err, engine.AlertStartFailed),
					Err:  err,
				}})
			}
		})

	case engine.EffCallLeave:
		code := e.Code
		guest := ""
		if l.state.Guest {
			guest = l.state.Username
		}
		l.goCall(func(ctx context.Context) {
			if l.backend == nil {
				return
			}
			if err := l.backend.LeaveLobby(ctx, code, guest); err != nil {
				l.log.Warn("leave lobby failed", zap.String("code", code), zap.Error(err))
			}
		})

	case engine.EffScheduleReturn:
		l.stopReturnTimer()
		t := l.clock.NewTimer(e.After)
		l.returnTimer = t
		go func() {
			select {
			case <-t.Chan():
				l.push(Input{In: engine.Input{Type: engine.InReturnDelayElapsed}})
			case <-l.ctx.Done():
			}
		}()

	case engine.EffLog:
		l.logEffect(e)
	}
}

func (l *Lobby) startDial(code string) {
	if l.dial == nil {
		l.push(Input{In: engine.Input{Type: engine.InSocketFailed, Err: errors.New("no dialer configured")}})
		return
	}

	l.gen++
	l.early = nil
	gen := l.gen
	onMessage := func(m types.ServerMessage) {
		msg := m
		l.push(socketEvent{gen: gen, in: engine.Input{Type: engine.InServerEvent, Msg: &msg}})
	}
	onClose := func(err error) {
		l.push(socketEvent{gen: gen, in: engine.Input{Type: engine.InSocketClosed, Err: err}})
	}

	l.calls.Add(1)
	go func() {
		defer l.calls.Done()
		conn, err := l.dial(l.ctx, code, onMessage, onClose)
		if !l.push(dialed{gen: gen, conn: conn, err: err}) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (l *Lobby) onDialed(msg dialed) {
	if msg.gen != l.gen || l.state.Phase != engine.PhaseConnecting {
		if msg.gen == l.gen {
			l.early = nil
		}
		if msg.conn != nil {
			go func() { _ = msg.conn.Close() }()
		}
		return
	}
	early := l.early
	l.early = nil
	if msg.err != nil {
		_ = l.apply(engine.Input{Type: engine.InSocketFailed, Err: msg.err})
		return
	}
	l.conn = msg.conn
	_ = l.apply(engine.Input{Type: engine.InSocketOpened})

	// The server greets with lobby_state as soon as the socket opens, which
	// can beat Dial's return.
	for _, ev := range early {
		l.onSocketEvent(ev)
	}
}

func (l *Lobby) onSocketEvent(msg socketEvent) {
	if msg.gen != l.gen {
		l.log.Debug("dropping event from a closed socket", zap.String("input", string(msg.in.Type)))
		return
	}
	if l.conn == nil && l.state.Phase == engine.PhaseConnecting {
		l.early = append(l.early, msg)
		return
	}
	if msg.in.Type == engine.InSocketClosed {
		l.conn = nil
	}
	if err := l.apply(msg.in); err != nil {
		l.log.Warn("socket event rejected", zap.String("input", string(msg.in.Type)), zap.Error(err))
	}
}

// closeConn closes the socket off the actor goroutine. Close waits for the
// reader, and the reader may be blocked handing us a message.
func (l *Lobby) closeConn() {
	l.gen++
	l.early = nil
	c := l.conn
	l.conn = nil
	if c == nil {
		return
	}
	l.calls.Add(1)
	go func() {
		defer l.calls.Done()
		if err := c.Close(); err != nil {
			l.log.Debug("socket close", zap.Error(err))
		}
	}()
}

func (l *Lobby) goCall(fn func(ctx context.Context)) {
	l.calls.Add(1)
	go func() {
		defer l.calls.Done()
		// Leave must reach the server even when the actor is shutting down.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(l.ctx), callTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// push hands a message to the actor. It gives up once the actor is gone.
func (l *Lobby) push(m Msg) bool {
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	}
}

func (l *Lobby) stopReturnTimer() {
	if l.returnTimer == nil {
		return
	}
	if !l.returnTimer.Stop() {
		select {
		case <-l.returnTimer.Chan():
		default:
		}
	}
	l.returnTimer = nil
}

func (l *Lobby) logEffect(e engine.Effect) {
	fields := []zap.Field{zap.String("code", l.state.Code)}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}
	switch e.Level {
	case engine.LevelDebug:
		l.log.Debug(e.Text, fields...)
	case engine.LevelWarn:
		l.log.Warn(e.Text, fields...)
	case engine.LevelError:
		l.log.Error(e.Text, fields...)
	default:
		l.log.Info(e.Text, fields...)
	}
}

func (l *Lobby) view(nav engine.Screen, notices []string) View {
	return View{
		Version:        l.version,
		NumSubscribers: len(l.subs),
		State:          l.state,
		Controls:       engine.DeriveControls(l.state),
		Navigate:       nav,
		Notices:        notices,
	}
}

func (l *Lobby) shutdown() {
	l.cancel()
	l.stopReturnTimer()

	var err error
	if l.conn != nil {
		err = multierr.Append(err, l.conn.Close())
		l.conn = nil
	}
	for id, ch := range l.subs {
		close(ch) // Tell subscriber no more views
		delete(l.subs, id)
	}

	l.calls.Wait()
	l.closeErr = err
	close(l.done)
}

func (l *Lobby) broadcast(v View) {
	for id, ch := range l.subs {
		l.deliver(id, ch, v)
	}
}

// deliver drops a subscriber whose outbox is full.
func (l *Lobby) deliver(id string, ch chan View, v View) {
	select {
	case ch <- v:
	default:
		l.log.Debug("dropping slow subscriber", zap.String("subscriber", id))
		close(ch)
		delete(l.subs, id)
	}
}

// Inbox exposes the inbox so the client layer and tests can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the actor has stopped.
func (l *Lobby) Done() <-chan struct{} { return l.done }

// Do applies one input and waits for the result.
func (l *Lobby) Do(ctx context.Context, in engine.Input) error {
	result := make(chan error, 1)
	select {
	case l.inbox <- Input{In: in, Result: result}:
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a new subscriber with an outbox of size buf. The
// current view arrives first.
func (l *Lobby) Subscribe(ctx context.Context, buf int) (string, <-chan View, error) {
	id := uuid.NewString()
	out := make(chan View, buf)
	select {
	case l.inbox <- Subscribe{ID: id, Outbox: out}:
		return id, out, nil
	case <-l.done:
		return "", nil, ErrClosed
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

func (l *Lobby) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case l.inbox <- GetState{Reply: reply}:
	case <-l.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Close stops the actor and waits for its socket and pending calls.
func (l *Lobby) Close() error {
	select {
	case l.inbox <- Shutdown{}:
	case <-l.done:
	}
	<-l.done
	return l.closeErr
}
