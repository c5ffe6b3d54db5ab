package session

import (
	"context"
	"math/rand"
	"time"

	"github.com/DoyleJ11/zawomons-gt/internal/api"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const DefaultAuthWait = 3 * time.Second

// MeFunc resolves a token to its user.
type MeFunc func(ctx context.Context, token string) (*api.User, error)

type BootOptions struct {
	// Stored is what Load returned.
	Stored Session
	// Tokens delivers a token from outside (a login page, a parent window).
	// Nil means nobody will send one.
	Tokens <-chan string
	Wait   time.Duration
	Clock  clockwork.Clock
	Me     MeFunc
	Rand   *rand.Rand
	Log    *zap.Logger
}

type BootResult struct {
	Session  Session
	Username string
	// TimedOut is set when the wait for an external token ran out.
	TimedOut bool
}

// Boot settles who the player is before the lobby list is shown. A stored
// token is used right away; otherwise it waits up to Wait for one to arrive
// and then carries on as a guest. Failing to resolve a token's user is not an
// error, the player just becomes a guest.
func Boot(ctx context.Context, opts BootOptions) (BootResult, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Wait <= 0 {
		opts.Wait = DefaultAuthWait
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	var res BootResult
	token := ""
	refresh := ""
	if opts.Stored.Kind() == KindAuthenticated {
		token = opts.Stored.Token
		refresh = opts.Stored.RefreshToken
	} else if opts.Tokens != nil {
		log.Debug("waiting for auth token", zap.Duration("wait", opts.Wait))
		select {
		case t, ok := <-opts.Tokens:
			if ok {
				token = t
			}
		case <-opts.Clock.After(opts.Wait):
			log.Info("auth token wait timed out, starting without auth")
			res.TimedOut = true
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}

	if token != "" && opts.Me != nil {
		user, err := opts.Me(ctx, token)
		if err == nil && user != nil && user.Username != "" {
			res.Session = Authenticated(token, refresh, *user)
			res.Username = user.Username
			log.Info("logged in", zap.String("username", user.Username))
			return res, nil
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log.Warn("failed to fetch user data, continuing as guest", zap.Error(err))
	}

	if opts.Stored.Kind() == KindGuest {
		res.Session = opts.Stored
	} else {
		res.Session = NewGuest(GuestName(opts.Rand))
		log.Info("generated guest username", zap.String("username", res.Session.Guest.Username))
	}
	res.Username = res.Session.Guest.Username
	return res, nil
}
