package hub

import (
	"context"
	"slices"

	"github.com/DoyleJ11/zawomons-gt/internal/lobby"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Key identifies one player's view of one lobby. Several local identities
// can sit in the same lobby, each with its own actor.
func Key(code, identity string) string { return code + "|" + identity }

type HubMsg interface{ isHubMsg() }

// Register stores lb under Key. A lobby already registered there is closed.
type Register struct {
	Key   string
	Lobby *lobby.Lobby
}

type Get struct {
	Key   string
	Reply chan *lobby.Lobby
}

// Remove closes and forgets the lobby under Key.
type Remove struct {
	Key string
}

type ListKeys struct {
	Reply chan []string
}

type ShutdownHub struct {
	Reply chan error // optional
}

// stopped is sent when a registered lobby's actor exits on its own.
type stopped struct {
	Key   string
	Lobby *lobby.Lobby
}

func (Register) isHubMsg()    {}
func (Get) isHubMsg()         {}
func (Remove) isHubMsg()      {}
func (ListKeys) isHubMsg()    {}
func (ShutdownHub) isHubMsg() {}
func (stopped) isHubMsg()     {}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	log     *zap.Logger
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		log:     log,
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			if err := h.shutdown(); err != nil {
				h.log.Warn("hub shutdown", zap.Error(err))
			}
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Register:
				if old := h.lobbies[msg.Key]; old != nil && old != msg.Lobby {
					go func() { _ = old.Close() }()
				}
				h.lobbies[msg.Key] = msg.Lobby
				h.watch(msg.Key, msg.Lobby)

			case Get:
				msg.Reply <- h.lobbies[msg.Key] // May be nil

			case Remove:
				if lb := h.lobbies[msg.Key]; lb != nil {
					delete(h.lobbies, msg.Key)
					go func() { _ = lb.Close() }()
				}

			case stopped:
				if h.lobbies[msg.Key] == msg.Lobby {
					delete(h.lobbies, msg.Key)
				}

			case ListKeys:
				keys := make([]string, 0, len(h.lobbies))
				for k := range h.lobbies {
					keys = append(keys, k)
				}
				slices.Sort(keys)
				msg.Reply <- keys

			case ShutdownHub:
				err := h.shutdown()
				if msg.Reply != nil {
					msg.Reply <- err
				}
				return
			}
		}
	}
}

// watch drops lb from the registry once its actor stops.
func (h *Hub) watch(key string, lb *lobby.Lobby) {
	go func() {
		select {
		case <-lb.Done():
			select {
			case h.inbox <- stopped{Key: key, Lobby: lb}:
			case <-h.ctx.Done():
			}
		case <-h.ctx.Done():
		}
	}()
}

func (h *Hub) shutdown() error {
	var err error
	for key, lb := range h.lobbies {
		err = multierr.Append(err, lb.Close())
		delete(h.lobbies, key)
	}
	h.cancel()
	return err
}

func (h *Hub) Register(key string, lb *lobby.Lobby) {
	select {
	case h.inbox <- Register{Key: key, Lobby: lb}:
	case <-h.done:
	}
}

func (h *Hub) Get(key string) *lobby.Lobby {
	reply := make(chan *lobby.Lobby, 1)
	select {
	case h.inbox <- Get{Key: key, Reply: reply}:
	case <-h.done:
		return nil
	}
	select {
	case lb := <-reply:
		return lb
	case <-h.done:
		return nil
	}
}

func (h *Hub) Remove(key string) {
	select {
	case h.inbox <- Remove{Key: key}:
	case <-h.done:
	}
}

func (h *Hub) Keys() []string {
	reply := make(chan []string, 1)
	select {
	case h.inbox <- ListKeys{Reply: reply}:
	case <-h.done:
		return nil
	}
	select {
	case keys := <-reply:
		return keys
	case <-h.done:
		return nil
	}
}

// Shutdown closes every registered lobby and stops the hub.
func (h *Hub) Shutdown() error {
	reply := make(chan error, 1)
	select {
	case h.inbox <- ShutdownHub{Reply: reply}:
	case <-h.done:
		return nil
	}
	select {
	case err := <-reply:
		return err
	case <-h.done:
		select {
		case err := <-reply:
			return err
		default:
			return nil
		}
	}
}
