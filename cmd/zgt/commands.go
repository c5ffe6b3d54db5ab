package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/DoyleJ11/zawomons-gt/internal/api"
	"github.com/DoyleJ11/zawomons-gt/internal/render"
	"github.com/DoyleJ11/zawomons-gt/internal/session"
	"github.com/DoyleJ11/zawomons-gt/pkg/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var errUsage = errors.New("usage")

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

func (a *app) me(ctx context.Context, token string) (*api.User, error) {
	c := api.NewClient(a.cfg.APIBase, api.WithToken(token), api.WithTimeout(a.cfg.HTTPTimeout), api.WithLogger(a.log))
	return c.Me(ctx)
}

// runBoot settles the session the way the game does on start: a stored token,
// else one delivered on stdin within the auth wait, else a guest.
func runBoot(ctx context.Context, a *app, args []string) error {
	fs := newFlags("boot")
	fromStdin := fs.Bool("stdin", false, "read an auth token from the first line of stdin")
	if err := parse(fs, args); err != nil {
		return err
	}

	var tokens chan string
	if *fromStdin {
		tokens = make(chan string, 1)
		go func() {
			if line, ok := <-a.readLines(); ok {
				if t := strings.TrimSpace(line); t != "" {
					tokens <- t
				}
			}
		}()
	}

	res, err := session.Boot(ctx, session.BootOptions{
		Stored: a.client.Session(),
		Tokens: tokens,
		Wait:   a.cfg.AuthWait,
		Me:     a.me,
		Log:    a.log,
	})
	if err != nil {
		return err
	}
	if err := a.client.SetSession(res.Session); err != nil {
		return err
	}
	printSession(a.out, res.Session)
	return nil
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlags("login")
	token := fs.String("token", "", "access token")
	refresh := fs.String("refresh", "", "refresh token")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *token == "" {
		return errUsage
	}

	user, err := a.me(ctx, *token)
	if err != nil {
		return err
	}
	s := session.Authenticated(*token, *refresh, *user)
	if err := a.client.SetSession(s); err != nil {
		return err
	}
	printSession(a.out, s)
	return nil
}

func runLogout(_ context.Context, a *app, _ []string) error {
	if err := session.Clear(a.store); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func runWhoami(_ context.Context, a *app, _ []string) error {
	printSession(a.out, a.client.Session())
	return nil
}

func printSession(w io.Writer, s session.Session) {
	switch s.Kind() {
	case session.KindAuthenticated:
		fmt.Fprintf(w, "Logged in as %s\n", s.DisplayName())
	case session.KindGuest:
		fmt.Fprintf(w, "Playing as guest %s\n", s.DisplayName())
	default:
		fmt.Fprintln(w, "No session, run `zgt boot` or `zgt login`")
	}
}

func runLobbies(ctx context.Context, a *app, _ []string) error {
	lobbies, err := a.client.ListLobbies(ctx)
	if err != nil {
		return err
	}
	return render.LobbyList(a.out, lobbies)
}

func runCreate(ctx context.Context, a *app, args []string) error {
	def := a.cfg.Lobby
	fs := newFlags("create")
	name := fs.String("name", def.Name, "lobby name")
	mode := fs.String("mode", string(def.GameMode), "classic_1v1, tournament or boss_fight")
	maxPlayers := fs.Int("max", def.MaxPlayers, "max players")
	round := fs.Int("round", def.RoundDuration, "round duration in seconds")
	cards := fs.Int("cards", def.CardsPerTurn, "cards per turn")
	private := fs.Bool("private", !def.IsPublic, "hide the lobby from the list")
	if err := parse(fs, args); err != nil {
		return err
	}

	lb, err := a.client.Create(ctx, types.CreateLobbyParams{
		Name:          *name,
		GameMode:      types.GameMode(*mode),
		IsPublic:      !*private,
		MaxPlayers:    *maxPlayers,
		RoundDuration: *round,
		CardsPerTurn:  *cards,
	})
	if err != nil {
		return err
	}
	return a.prompt(ctx, lb)
}

func runJoin(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	lb, err := a.client.Join(ctx, args[0])
	if err != nil {
		return err
	}
	return a.prompt(ctx, lb)
}

func runPlayerData(ctx context.Context, a *app, _ []string) error {
	pd, err := a.client.API().PlayerData(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s  gold %d  wood %d  stone %d  gems %d\n", pd.Username, pd.Gold, pd.Wood, pd.Stone, pd.Gems)
	if pd.CanClaimStartCreature {
		fmt.Fprintln(a.out, "A starter creature is waiting to be claimed")
	}
	title := cases.Title(language.English)
	for _, c := range pd.Creatures {
		fmt.Fprintf(a.out, "  %-16s %s/%s  HP %d/%d  EN %d/%d  DMG %d  INI %d  XP %d\n",
			c.Name, title.String(c.MainElement), title.String(c.SecondaryElement),
			c.CurrentHP, c.MaxHP, c.CurrentEnergy, c.MaxEnergy, c.Damage, c.Initiative, c.Experience)
	}
	return nil
}

func runPlayers(ctx context.Context, a *app, _ []string) error {
	players, err := a.client.API().Players(ctx)
	if err != nil {
		return err
	}
	for _, p := range players {
		fmt.Fprintf(a.out, "%-16s %-16s gold %-6d creatures %d\n", p.Username, p.Name, p.Gold, p.CreatureCount)
	}
	return nil
}

func runSaveData(ctx context.Context, a *app, args []string) error {
	fs := newFlags("save-data")
	name := fs.String("name", "", "player name")
	gold := fs.Int("gold", 0, "gold")
	wood := fs.Int("wood", 0, "wood")
	stone := fs.Int("stone", 0, "stone")
	gems := fs.Int("gems", 0, "gems")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *name == "" {
		return errUsage
	}

	if _, err := a.client.API().SaveData(ctx, api.SaveData{
		Name: *name, Gold: *gold, Wood: *wood, Stone: *stone, Gems: *gems,
	}); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Saved")
	return nil
}
