package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/DoyleJ11/zawomons-gt/pkg/types"
	"go.uber.org/zap"
)

// Client is the backend API used by the lobby screens and the player data tools.
type Client struct {
	*BaseClient
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{BaseClient: NewBaseClient(baseURL, nil)}
	for _, opt := range opts {
		opt(c.BaseClient)
	}
	return c
}

// ForToken returns a client with the same settings (timeout, logger, headers)
// that authenticates with token instead.
func (c *Client) ForToken(token string) *Client {
	return &Client{BaseClient: c.withToken(token)}
}

type guestBody struct {
	GuestUsername string `json:"guest_username,omitempty"`
}

type lobbyListPage struct {
	Results []types.LobbySummary `json:"results"`
}

// ListLobbies returns the public lobbies with the given status. The backend
// may answer with a paginated object or a bare array; both are accepted.
func (c *Client) ListLobbies(ctx context.Context, status types.LobbyStatus) ([]types.LobbySummary, error) {
	endpoint := LobbiesEndpoint
	if status != "" {
		endpoint += "?" + url.Values{"status": {string(status)}}.Encode()
	}

	var raw json.RawMessage
	if err := c.Get(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("failed to list lobbies: %w", err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var lobbies []types.LobbySummary
		if err := json.Unmarshal(trimmed, &lobbies); err != nil {
			return nil, &DecodeError{Raw: string(raw), Err: err}
		}
		return lobbies, nil
	}

	var page lobbyListPage
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, &DecodeError{Raw: string(raw), Err: err}
	}
	if page.Results == nil {
		return []types.LobbySummary{}, nil
	}
	return page.Results, nil
}

func (c *Client) GetLobby(ctx context.Context, code string) (*types.LobbySnapshot, error) {
	var lobby types.LobbySnapshot
	if err := c.Get(ctx, fmt.Sprintf(lobbyDetailFormat, url.PathEscape(code)), &lobby); err != nil {
		return nil, fmt.Errorf("failed to get lobby %s: %w", code, err)
	}
	return &lobby, nil
}

func (c *Client) CreateLobby(ctx context.Context, params types.CreateLobbyParams) (*types.LobbySnapshot, error) {
	var lobby types.LobbySnapshot
	if err := c.Post(ctx, CreateLobbyEndpoint, params, &lobby); err != nil {
		return nil, fmt.Errorf("failed to create lobby: %w", err)
	}
	return &lobby, nil
}

// JoinLobby joins as the token's user, or as guest when guest is non-empty.
func (c *Client) JoinLobby(ctx context.Context, code, guest string) (*types.LobbySnapshot, error) {
	var lobby types.LobbySnapshot
	if err := c.Post(ctx, actionPath(code, ActionJoin), guestBody{GuestUsername: guest}, &lobby); err != nil {
		return nil, fmt.Errorf("failed to join lobby %s: %w", code, err)
	}
	return &lobby, nil
}

// StartLobby asks the server to start the game. The game itself begins when
// the lobby feed delivers game_started.
func (c *Client) StartLobby(ctx context.Context, code string) error {
	if err := c.Post(ctx, actionPath(code, ActionStart), nil, nil); err != nil {
		return fmt.Errorf("failed to start lobby %s: %w", code, err)
	}
	return nil
}

func (c *Client) LeaveLobby(ctx context.Context, code, guest string) error {
	if err := c.Post(ctx, actionPath(code, ActionLeave), guestBody{GuestUsername: guest}, nil); err != nil {
		return fmt.Errorf("failed to leave lobby %s: %w", code, err)
	}
	return nil
}

func (c *Client) UpdateSettings(ctx context.Context, code string, settings types.LobbySettings) (*types.LobbySnapshot, error) {
	var lobby types.LobbySnapshot
	if err := c.Post(ctx, actionPath(code, ActionUpdateSettings), settings, &lobby); err != nil {
		return nil, fmt.Errorf("failed to update lobby %s: %w", code, err)
	}
	return &lobby, nil
}

func actionPath(code, action string) string {
	return fmt.Sprintf(lobbyActionFormat, url.PathEscape(code), action)
}

// Option configures the underlying BaseClient.
type Option func(*BaseClient)

func WithToken(token string) Option {
	return func(c *BaseClient) { c.SetToken(token) }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *BaseClient) { c.client = hc }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *BaseClient) {
		if log != nil {
			c.log = log
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *BaseClient) {
		if d > 0 {
			c.SetTimeout(d)
		}
	}
}
