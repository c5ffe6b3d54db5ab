package main

import (
	"errors"
	"flag"
	"net/http"
	"os"
	"strings"

	"github.com/DoyleJ11/zawomons-gt/internal/api"
	"github.com/DoyleJ11/zawomons-gt/internal/backendtest"
	"github.com/DoyleJ11/zawomons-gt/internal/config"
	"go.uber.org/zap"
)

// A local stand-in for the zawomons-gt backend, for trying the CLI without
// the real server: go run ./cmd/server -user ash=dev-token
func main() {
	addr := flag.String("addr", ":8000", "listen address")
	var users userFlags
	flag.Var(&users, "user", "username=token pair that authenticates (repeatable)")
	flag.Parse()

	log, err := config.NewLogger("info", true)
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	srv := backendtest.NewUnstarted(log)
	for i, u := range users {
		srv.AddUser(u.token, api.User{ID: i + 1, Username: u.name})
		log.Info("user added", zap.String("username", u.name))
	}

	log.Info("listening", zap.String("addr", *addr))
	if err := http.ListenAndServe(*addr, srv.Routes()); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

type userFlag struct{ name, token string }

type userFlags []userFlag

func (u *userFlags) String() string { return "" }

func (u *userFlags) Set(v string) error {
	name, token, ok := strings.Cut(v, "=")
	if !ok || name == "" || token == "" {
		return errBadUser
	}
	*u = append(*u, userFlag{name: name, token: token})
	return nil
}

var errBadUser = errors.New("want username=token")
