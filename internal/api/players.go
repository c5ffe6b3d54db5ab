package api

import (
	"context"
	"fmt"
)

// User is the account record returned by /users/me/.
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Role      string `json:"role,omitempty"`
	IsActive  bool   `json:"is_active,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.Get(ctx, MeEndpoint, &u); err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return &u, nil
}

type Creature struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	MainElement      string `json:"main_element"`
	SecondaryElement string `json:"secondary_element"`
	Color            string `json:"color"`
	Experience       int    `json:"experience"`
	MaxHP            int    `json:"max_hp"`
	CurrentHP        int    `json:"current_hp"`
	MaxEnergy        int    `json:"max_energy"`
	CurrentEnergy    int    `json:"current_energy"`
	Damage           int    `json:"damage"`
	Initiative       int    `json:"initiative"`
}

type PlayerData struct {
	ID                    int        `json:"id"`
	Username              string     `json:"username"`
	Gold                  int        `json:"gold"`
	Wood                  int        `json:"wood"`
	Stone                 int        `json:"stone"`
	Gems                  int        `json:"gems"`
	CanClaimStartCreature bool       `json:"can_claim_start_creature"`
	Creatures             []Creature `json:"creatures"`
	LastPlayed            string     `json:"last_played"`
	CreatedAt             string     `json:"created_at"`
}

type PlayerListItem struct {
	Username      string `json:"username"`
	Name          string `json:"name"`
	Gold          int    `json:"gold"`
	CreatureCount int    `json:"creature_count"`
	LastPlayed    string `json:"last_played"`
}

type SaveData struct {
	Name  string `json:"name"`
	Gold  int    `json:"gold"`
	Wood  int    `json:"wood"`
	Stone int    `json:"stone"`
	Gems  int    `json:"gems"`
}

func (c *Client) PlayerData(ctx context.Context) (*PlayerData, error) {
	var pd PlayerData
	if err := c.Get(ctx, PlayerDataEndpoint, &pd); err != nil {
		return nil, fmt.Errorf("failed to get player data: %w", err)
	}
	return &pd, nil
}

func (c *Client) Players(ctx context.Context) ([]PlayerListItem, error) {
	var players []PlayerListItem
	if err := c.Get(ctx, PlayersEndpoint, &players); err != nil {
		return nil, fmt.Errorf("failed to get players list: %w", err)
	}
	return players, nil
}

// SaveData returns the server's response body as-is; its shape is not stable.
func (c *Client) SaveData(ctx context.Context, data SaveData) (map[string]any, error) {
	var out map[string]any
	if err := c.Post(ctx, SaveDataEndpoint, data, &out); err != nil {
		return nil, fmt.Errorf("failed to save player data: %w", err)
	}
	return out, nil
}
