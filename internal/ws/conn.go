package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DoyleJ11/zawomons-gt/pkg/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	lobbyPathFormat = "/ws/zawomons-gt/lobby/%s/"
	sendBuffer      = 16
	writeTimeout    = 3 * time.Second
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrConnClosed     = errors.New("connection closed")
)

// Dialer opens lobby sockets. Token, when set, goes out as a bearer header.
type Dialer struct {
	BaseURL    string
	Token      string
	Logger     *zap.Logger
	HTTPClient *http.Client
}

func (d Dialer) URL(code string) string {
	return strings.TrimRight(d.BaseURL, "/") + fmt.Sprintf(lobbyPathFormat, url.PathEscape(code))
}

// Dial connects to the lobby feed for code. onMessage is called from the
// reader goroutine for every decoded server message. onClose is called once,
// after both goroutines have stopped; err is nil for a normal closure.
func (d Dialer) Dial(ctx context.Context, code string, onMessage func(types.ServerMessage), onClose func(error)) (*Conn, error) {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	opts := &websocket.DialOptions{HTTPClient: d.HTTPClient}
	if d.Token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + d.Token}}
	}

	u := d.URL(code)
	c, _, err := websocket.Dial(ctx, u, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to dial lobby %s: %w", code, err)
	}
	log.Info("lobby socket open", zap.String("code", code), zap.String("url", u))

	return newConn(c, log.With(zap.String("code", code)), onMessage, onClose), nil
}

// Conn is one lobby socket: a reader goroutine and a writer goroutine that
// stop together. There is no reconnect.
type Conn struct {
	c    *websocket.Conn
	log  *zap.Logger
	send chan types.ClientMessage

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	closing atomic.Bool

	mu     sync.Mutex
	closed bool
	err    error
}

func newConn(c *websocket.Conn, log *zap.Logger, onMessage func(types.ServerMessage), onClose func(error)) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	conn := &Conn{
		c:      c,
		log:    log,
		send:   make(chan types.ClientMessage, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return conn.readLoop(gctx, onMessage) })
	g.Go(func() error { return conn.writeLoop(gctx) })

	go func() {
		err := g.Wait()
		if conn.closing.Load() || isNormalClose(err) {
			err = nil
		} else {
			log.Warn("lobby socket closed", zap.Error(err))
		}
		_ = c.CloseNow()

		conn.mu.Lock()
		conn.closed = true
		conn.err = err
		conn.mu.Unlock()
		close(conn.done)

		if onClose != nil {
			onClose(err)
		}
	}()

	return conn
}

func (conn *Conn) readLoop(ctx context.Context, onMessage func(types.ServerMessage)) error {
	for {
		_, data, err := conn.c.Read(ctx)
		if err != nil {
			return err
		}

		var msg types.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.log.Warn("skipping malformed lobby message", zap.Error(err), zap.ByteString("raw", data))
			continue
		}
		if onMessage != nil {
			onMessage(msg)
		}
	}
}

func (conn *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-conn.send:
			payload, err := json.Marshal(msg)
			if err != nil {
				conn.log.Error("failed to encode lobby message", zap.String("type", string(msg.Type)), zap.Error(err))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.c.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

// Send queues msg for the writer. It never blocks.
func (conn *Conn) Send(msg types.ClientMessage) error {
	conn.mu.Lock()
	closed := conn.closed
	conn.mu.Unlock()
	if closed {
		return ErrConnClosed
	}

	select {
	case conn.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close sends a normal closure and waits for the goroutines to finish.
func (conn *Conn) Close() error {
	conn.closing.Store(true)
	err := conn.c.Close(websocket.StatusNormalClosure, "bye")
	conn.cancel()
	<-conn.done
	if isNormalClose(err) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Done is closed when the socket has stopped.
func (conn *Conn) Done() <-chan struct{} { return conn.done }

// Err is why the socket stopped; nil for a normal closure.
func (conn *Conn) Err() error {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.err
}

func isNormalClose(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
