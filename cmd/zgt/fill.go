package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/DoyleJ11/zawomons-gt/internal/engine"
	"github.com/DoyleJ11/zawomons-gt/internal/lobby"
	"github.com/DoyleJ11/zawomons-gt/internal/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const fillConnectWait = 10 * time.Second

// runFill joins n guests to a lobby and readies them up, then holds the seats
// until interrupted. Handy for trying a lobby alone.
func runFill(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 1 {
		return errUsage
	}
	code := args[0]

	var (
		mu     sync.Mutex
		joined []*lobby.Lobby
	)
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		leaveAll(a, joined)
	}()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		name := fillGuestName()
		g.Go(func() error {
			lb, err := a.client.JoinAs(gctx, code, session.NewGuest(name))
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			mu.Lock()
			joined = append(joined, lb)
			mu.Unlock()

			if err := readyUp(gctx, lb); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			fmt.Fprintf(a.out, "%s joined and is ready\n", name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%d guests seated in %s, Ctrl-C to leave\n", n, engine.NormalizeCode(code))
	<-ctx.Done()
	return nil
}

// fillGuestName keeps fill guests apart from the Guest1000..9999 names players get.
func fillGuestName() string {
	return "Guest-" + strings.ToUpper(uuid.NewString()[:6])
}

// readyUp waits for the socket to open and toggles ready once.
func readyUp(ctx context.Context, lb *lobby.Lobby) error {
	ctx, cancel := context.WithTimeout(ctx, fillConnectWait)
	defer cancel()

	id, views, err := lb.Subscribe(ctx, 16)
	if err != nil {
		return err
	}
	defer func() {
		select {
		case lb.Inbox() <- lobby.Unsubscribe{ID: id}:
		case <-lb.Done():
		}
	}()

	for {
		select {
		case v, ok := <-views:
			if !ok {
				return lobby.ErrClosed
			}
			switch v.State.Phase {
			case engine.PhaseConnected:
				if v.State.IsReady {
					return nil
				}
				return lb.Do(ctx, engine.Input{Type: engine.InToggleReady})
			case engine.PhaseIdle, engine.PhaseClosing, engine.PhaseClosed:
				if v.State.Alert != "" {
					return errors.New(v.State.Alert)
				}
				return lobby.ErrClosed
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func leaveAll(a *app, lobbies []*lobby.Lobby) {
	ctx, cancel := context.WithTimeout(context.Background(), leaveWait)
	defer cancel()

	var wg sync.WaitGroup
	for _, lb := range lobbies {
		wg.Add(1)
		go func(lb *lobby.Lobby) {
			defer wg.Done()
			if err := lb.Do(ctx, engine.Input{Type: engine.InLeaveRequested}); err != nil {
				a.log.Debug("fill guest leave rejected", zap.Error(err))
			}
			if err := lb.Close(); err != nil {
				a.log.Warn("fill guest did not close cleanly", zap.Error(err))
			}
		}(lb)
	}
	wg.Wait()
}
