package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/DoyleJ11/zawomons-gt/internal/engine"
	"github.com/DoyleJ11/zawomons-gt/internal/lobby"
	"github.com/DoyleJ11/zawomons-gt/internal/render"
	"github.com/DoyleJ11/zawomons-gt/pkg/types"
	"go.uber.org/zap"
)

const promptHelp = `commands:
  ready                         toggle ready
  start                         start the game (host)
  leave                         leave the lobby
  chat TEXT                     send a chat message
  set round=N cards=N public=B  change settings (host)
  help                          show this`

// leaveWait bounds how long a leave on Ctrl-C waits for the lobby to let go.
const leaveWait = 5 * time.Second

var errEmptyLine = errors.New("empty line")

// readLines starts the single stdin reader. The channel closes at EOF.
func (a *app) readLines() <-chan string {
	a.linesOnce.Do(func() {
		a.lines = make(chan string)
		go func() {
			defer close(a.lines)
			sc := bufio.NewScanner(a.in)
			for sc.Scan() {
				a.lines <- sc.Text()
			}
		}()
	})
	return a.lines
}

// runPlay lists the open lobbies and joins the one picked by number or code.
func runPlay(ctx context.Context, a *app, _ []string) error {
	lobbies, err := a.client.ListLobbies(ctx)
	if err != nil {
		return err
	}
	if len(lobbies) == 0 {
		fmt.Fprintln(a.out, render.NoLobbies)
		return nil
	}
	for i := range lobbies {
		fmt.Fprintf(a.out, "%2d) ", i+1)
		if err := render.LobbyList(a.out, lobbies[i:i+1]); err != nil {
			return err
		}
	}
	fmt.Fprint(a.out, "pick a lobby (number or code): ")

	var line string
	select {
	case l, ok := <-a.readLines():
		if !ok {
			return nil
		}
		line = strings.TrimSpace(l)
	case <-ctx.Done():
		return nil
	}
	if line == "" {
		return nil
	}

	code := line
	if n, err := strconv.Atoi(line); err == nil {
		if n < 1 || n > len(lobbies) {
			return fmt.Errorf("no lobby number %d", n)
		}
		code = lobbies[n-1].Code
	}

	lb, err := a.client.Join(ctx, code)
	if err != nil {
		return err
	}
	return a.prompt(ctx, lb)
}

// prompt shows the lobby and feeds typed commands into it until the player
// is sent to another screen. Ctrl-C leaves the lobby first.
func (a *app) prompt(ctx context.Context, lb *lobby.Lobby) error {
	_, views, err := lb.Subscribe(ctx, 32)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, promptHelp)

	lines := a.readLines()
	for {
		select {
		case <-ctx.Done():
			return a.leave(lb, views)

		case v, ok := <-views:
			if !ok {
				return nil
			}
			if done := a.show(v); done {
				return nil
			}

		case line, ok := <-lines:
			if !ok {
				return a.leave(lb, views)
			}
			if strings.TrimSpace(line) == "help" {
				fmt.Fprintln(a.out, promptHelp)
				continue
			}
			in, err := parseCommand(line)
			if errors.Is(err, errEmptyLine) {
				continue
			}
			if err != nil {
				fmt.Fprintln(a.out, err)
				continue
			}
			if err := lb.Do(ctx, in); err != nil {
				a.log.Debug("command rejected", zap.String("input", string(in.Type)), zap.Error(err))
				fmt.Fprintln(a.out, "can't do that right now")
			}
		}
	}
}

// show prints a view and reports whether it moved the player off the lobby.
func (a *app) show(v lobby.View) bool {
	for _, n := range v.Notices {
		fmt.Fprintln(a.out, n)
	}
	if v.Navigate != "" {
		if v.State.Alert != "" {
			fmt.Fprintf(a.out, "! %s\n", v.State.Alert)
		}
		fmt.Fprintf(a.out, "-> %s\n", screenName(v.Navigate))
		return true
	}
	if err := render.Lobby(a.out, v.State); err != nil {
		a.log.Warn("failed to render lobby", zap.Error(err))
	}
	return false
}

func (a *app) leave(lb *lobby.Lobby, views <-chan lobby.View) error {
	ctx, cancel := context.WithTimeout(context.Background(), leaveWait)
	defer cancel()

	if err := lb.Do(ctx, engine.Input{Type: engine.InLeaveRequested}); err != nil {
		a.log.Debug("leave rejected", zap.Error(err))
		return nil
	}
	for {
		select {
		case v, ok := <-views:
			if !ok || a.show(v) {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func screenName(s engine.Screen) string {
	switch s {
	case engine.ScreenGame:
		return "game starting"
	case engine.ScreenMenu:
		return "main menu"
	case engine.ScreenLobbyList:
		return "lobby list"
	default:
		return string(s)
	}
}

// parseCommand turns one prompt line into a lobby input.
func parseCommand(line string) (engine.Input, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return engine.Input{}, errEmptyLine
	}

	switch fields[0] {
	case "ready":
		return engine.Input{Type: engine.InToggleReady}, nil
	case "start":
		return engine.Input{Type: engine.InStartRequested}, nil
	case "leave", "back":
		return engine.Input{Type: engine.InLeaveRequested}, nil
	case "chat":
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "chat"))
		if text == "" {
			return engine.Input{}, errors.New("usage: chat TEXT")
		}
		return engine.Input{Type: engine.InSendChat, Text: text}, nil
	case "set":
		settings, err := parseSettings(fields[1:])
		if err != nil {
			return engine.Input{}, err
		}
		return engine.Input{Type: engine.InUpdateSettings, Settings: &settings}, nil
	default:
		return engine.Input{}, fmt.Errorf("unknown command %q, try help", fields[0])
	}
}

func parseSettings(args []string) (types.LobbySettings, error) {
	var s types.LobbySettings
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return s, fmt.Errorf("expected key=value, got %q", arg)
		}
		switch key {
		case "round":
			n, err := strconv.Atoi(value)
			if err != nil || n < types.MinRoundDuration || n > types.MaxRoundDuration {
				return s, fmt.Errorf("round must be between %d and %d", types.MinRoundDuration, types.MaxRoundDuration)
			}
			s.RoundDuration = &n
		case "cards":
			n, err := strconv.Atoi(value)
			if err != nil || n < types.MinCardsPerTurn || n > types.MaxCardsPerTurn {
				return s, fmt.Errorf("cards must be between %d and %d", types.MinCardsPerTurn, types.MaxCardsPerTurn)
			}
			s.CardsPerTurn = &n
		case "public":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return s, errors.New("public must be true or false")
			}
			s.IsPublic = &b
		default:
			return s, fmt.Errorf("unknown setting %q", key)
		}
	}
	if s.Empty() {
		return s, errors.New("usage: set round=N cards=N public=B")
	}
	return s, nil
}
