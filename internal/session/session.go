package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"github.com/DoyleJ11/zawomons-gt/internal/api"
	"go.uber.org/zap"
)

// Storage keys, the same names the web frontend keeps in localStorage.
const (
	KeyToken        = "auth_token"
	KeyRefreshToken = "auth_refresh_token"
	KeyUser         = "auth_user"
	KeyGuest        = "auth_guest"
)

var AllKeys = []string{KeyToken, KeyRefreshToken, KeyUser, KeyGuest}

var (
	ErrMixedSession  = errors.New("session has both an authenticated user and a guest identity")
	ErrIncomplete    = errors.New("authenticated session needs both token and user")
	ErrEmptyGuestKey = errors.New("guest session needs a username")
)

type Kind string

const (
	KindEmpty         Kind = "empty"
	KindAuthenticated Kind = "authenticated"
	KindGuest         Kind = "guest"
)

type Guest struct {
	Username string `json:"username"`
}

// Session is either {Token, User}, {Guest} or empty. The constructors are the
// only way to build a valid one; Validate catches anything assembled by hand.
type Session struct {
	Token        string
	RefreshToken string
	User         *api.User
	Guest        *Guest
}

func Empty() Session { return Session{} }

func Authenticated(token, refresh string, user api.User) Session {
	return Session{Token: token, RefreshToken: refresh, User: &user}
}

func NewGuest(username string) Session {
	return Session{Guest: &Guest{Username: username}}
}

func (s Session) Kind() Kind {
	switch {
	case s.Token != "" || s.User != nil:
		return KindAuthenticated
	case s.Guest != nil:
		return KindGuest
	default:
		return KindEmpty
	}
}

func (s Session) Validate() error {
	authPart := s.Token != "" || s.RefreshToken != "" || s.User != nil
	if authPart && s.Guest != nil {
		return ErrMixedSession
	}
	if authPart && (s.Token == "" || s.User == nil) {
		return ErrIncomplete
	}
	if s.Guest != nil && s.Guest.Username == "" {
		return ErrEmptyGuestKey
	}
	return nil
}

func (s Session) IsGuest() bool { return s.Kind() == KindGuest }

// DisplayName is the name the lobby shows for this session.
func (s Session) DisplayName() string {
	switch s.Kind() {
	case KindAuthenticated:
		if s.User.Username != "" {
			return s.User.Username
		}
		return s.User.FullName
	case KindGuest:
		return s.Guest.Username
	default:
		return ""
	}
}

// GuestUsername is what goes into guest_username fields: the guest name, or
// empty for authenticated sessions.
func (s Session) GuestUsername() string {
	if s.Guest != nil {
		return s.Guest.Username
	}
	return ""
}

// GuestName generates a display name like the game client does: Guest1000..Guest9999.
func GuestName(rng *rand.Rand) string {
	n := 0
	if rng != nil {
		n = rng.Intn(9000)
	} else {
		n = rand.Intn(9000)
	}
	return fmt.Sprintf("Guest%d", n+1000)
}

// Save writes the keys of the session's kind and deletes the others.
func Save(store Store, s Session) error {
	if err := s.Validate(); err != nil {
		return err
	}

	values := map[string]string{}
	switch s.Kind() {
	case KindAuthenticated:
		user, err := json.Marshal(s.User)
		if err != nil {
			return fmt.Errorf("failed to encode user: %w", err)
		}
		values[KeyToken] = s.Token
		values[KeyUser] = string(user)
		if s.RefreshToken != "" {
			values[KeyRefreshToken] = s.RefreshToken
		}
	case KindGuest:
		guest, err := json.Marshal(s.Guest)
		if err != nil {
			return fmt.Errorf("failed to encode guest: %w", err)
		}
		values[KeyGuest] = string(guest)
	}

	for _, key := range AllKeys {
		if v, ok := values[key]; ok {
			if err := store.Set(key, v); err != nil {
				return fmt.Errorf("failed to store %s: %w", key, err)
			}
			continue
		}
		if err := store.Delete(key); err != nil {
			return fmt.Errorf("failed to clear %s: %w", key, err)
		}
	}
	return nil
}

// Load rebuilds the session from storage. Anything unreadable or
// contradictory is cleared and an empty session returned.
func Load(store Store, log *zap.Logger) (Session, error) {
	if log == nil {
		log = zap.NewNop()
	}

	token, err := store.Get(KeyToken)
	if err != nil {
		return Empty(), err
	}
	refresh, err := store.Get(KeyRefreshToken)
	if err != nil {
		return Empty(), err
	}
	userStr, err := store.Get(KeyUser)
	if err != nil {
		return Empty(), err
	}
	guestStr, err := store.Get(KeyGuest)
	if err != nil {
		return Empty(), err
	}

	var s Session
	if token != "" && userStr != "" {
		var u api.User
		if err := json.Unmarshal([]byte(userStr), &u); err != nil {
			log.Warn("stored user record is corrupt, clearing session", zap.Error(err))
			return Empty(), Clear(store)
		}
		s = Authenticated(token, refresh, u)
	}
	if guestStr != "" {
		var g Guest
		if err := json.Unmarshal([]byte(guestStr), &g); err != nil {
			log.Warn("stored guest record is corrupt, clearing session", zap.Error(err))
			return Empty(), Clear(store)
		}
		s.Guest = &g
	}
	if s.Kind() == KindGuest && (token != "" || userStr != "" || refresh != "") {
		// The guest is whole; the auth leftovers next to it are not.
		log.Warn("stored guest session has stray auth keys, clearing them")
		for _, key := range []string{KeyToken, KeyRefreshToken, KeyUser} {
			if err := store.Delete(key); err != nil {
				return Empty(), fmt.Errorf("failed to clear %s: %w", key, err)
			}
		}
		return s, nil
	}
	if s.Kind() == KindEmpty && (token != "" || userStr != "" || refresh != "") {
		// Half an authenticated session is as good as none.
		log.Warn("stored session is incomplete, clearing")
		return Empty(), Clear(store)
	}

	if err := s.Validate(); err != nil {
		log.Warn("stored session is invalid, clearing", zap.Error(err))
		return Empty(), Clear(store)
	}
	return s, nil
}

func Clear(store Store) error {
	for _, key := range AllKeys {
		if err := store.Delete(key); err != nil {
			return fmt.Errorf("failed to clear %s: %w", key, err)
		}
	}
	return nil
}
