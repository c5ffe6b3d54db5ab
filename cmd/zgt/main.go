// Command zgt is a terminal client for zawomons-gt lobbies.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/DoyleJ11/zawomons-gt/internal/api"
	"github.com/DoyleJ11/zawomons-gt/internal/client"
	"github.com/DoyleJ11/zawomons-gt/internal/config"
	"github.com/DoyleJ11/zawomons-gt/internal/render"
	"github.com/DoyleJ11/zawomons-gt/internal/session"
	"github.com/DoyleJ11/zawomons-gt/internal/ws"
	"go.uber.org/zap"
)

type app struct {
	cfg    *config.Config
	log    *zap.Logger
	store  session.Store
	client *client.Client
	in     io.Reader
	out    io.Writer

	linesOnce sync.Once
	lines     chan string
}

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"boot":        {"boot [--stdin]", runBoot},
	"login":       {"login --token T [--refresh R]", runLogin},
	"logout":      {"logout", runLogout},
	"whoami":      {"whoami", runWhoami},
	"lobbies":     {"lobbies", runLobbies},
	"create":      {"create [--name N --mode M --max N --round S --cards N --private]", runCreate},
	"join":        {"join CODE", runJoin},
	"play":        {"play", runPlay},
	"player-data": {"player-data", runPlayerData},
	"players":     {"players", runPlayers},
	"save-data":   {"save-data --name N [--gold N --wood N --stone N --gems N]", runSaveData},
	"fill":        {"fill CODE N", runFill},
}

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		return 2
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage(os.Stderr)
		return 2
	}

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log, err := config.NewLogger(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, render.Alert(err, "Failed to start"))
		return 1
	}
	defer a.close()

	if err := cmd.run(ctx, a, os.Args[2:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "usage: zgt %s\n", cmd.usage)
			return 2
		}
		fmt.Fprintln(os.Stderr, alertText(err))
		return 1
	}
	return 0
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	var store session.Store
	if cfg.DatabaseURL != "" {
		gs, err := session.OpenGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store = gs
	} else {
		fs, err := session.NewFileStore(cfg.SessionFile)
		if err != nil {
			return nil, err
		}
		store = fs
	}

	c, err := client.New(ctx, client.Config{
		API:    api.NewClient(cfg.APIBase, api.WithTimeout(cfg.HTTPTimeout), api.WithLogger(log)),
		Dialer: ws.Dialer{BaseURL: cfg.WSBase, Logger: log},
		Store:  store,
		Logger: log,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, store: store, client: c, in: os.Stdin, out: os.Stdout}, nil
}

func (a *app) close() {
	if err := a.client.Close(); err != nil {
		a.log.Warn("failed to stop lobbies", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("failed to close session store", zap.Error(err))
	}
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "usage: zgt <command> [args]")
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
}

// alertText is what the player sees for a failed command.
func alertText(err error) string {
	var rejected *client.RejectedError
	if errors.As(err, &rejected) {
		return rejected.Alert
	}
	return render.Alert(err, err.Error())
}
