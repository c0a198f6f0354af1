// Package gameserver is the HTTP client for the game-state API. The
// engine never holds game state of its own; every position check, map
// lookup and profile read goes through here.
package gameserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/interstitch/sectorwars-intel/internal/domain"
)

// Client talks to the game server's internal API.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a game server client.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log.With().Str("client", "gameserver").Logger(),
	}
}

// ControlsShip reports whether the player currently controls the ship.
func (c *Client) ControlsShip(ctx context.Context, playerID, shipID string) (bool, error) {
	var result struct {
		Controls bool `json:"controls"`
	}
	path := fmt.Sprintf("/internal/players/%s/ships/%s", url.PathEscape(playerID), url.PathEscape(shipID))
	if err := c.get(ctx, path, &result); err != nil {
		return false, err
	}
	return result.Controls, nil
}

// ShipDockedAt reports whether one of the player's ships is docked at the port.
func (c *Client) ShipDockedAt(ctx context.Context, playerID, portID string) (bool, error) {
	var result struct {
		Docked bool `json:"docked"`
	}
	path := fmt.Sprintf("/internal/players/%s/docked/%s", url.PathEscape(playerID), url.PathEscape(portID))
	if err := c.get(ctx, path, &result); err != nil {
		return false, err
	}
	return result.Docked, nil
}

// ShipInSector reports whether one of the player's ships is in the sector.
func (c *Client) ShipInSector(ctx context.Context, playerID, sectorID string) (bool, error) {
	var result struct {
		Present bool `json:"present"`
	}
	path := fmt.Sprintf("/internal/players/%s/presence/%s", url.PathEscape(playerID), url.PathEscape(sectorID))
	if err := c.get(ctx, path, &result); err != nil {
		return false, err
	}
	return result.Present, nil
}

// Neighbors returns the sectors adjacent to the given sector.
func (c *Client) Neighbors(ctx context.Context, sectorID string) ([]string, error) {
	var result struct {
		Neighbors []string `json:"neighbors"`
	}
	path := fmt.Sprintf("/internal/sectors/%s/neighbors", url.PathEscape(sectorID))
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return result.Neighbors, nil
}

// PortSector resolves the sector a port sits in.
func (c *Client) PortSector(ctx context.Context, portID string) (string, error) {
	var result struct {
		SectorID string `json:"sector_id"`
	}
	path := fmt.Sprintf("/internal/ports/%s/sector", url.PathEscape(portID))
	if err := c.get(ctx, path, &result); err != nil {
		return "", err
	}
	return result.SectorID, nil
}

// TradingProfile returns the player's aggregate trading profile.
func (c *Client) TradingProfile(ctx context.Context, playerID string) (domain.TradingProfile, error) {
	var profile domain.TradingProfile
	path := fmt.Sprintf("/internal/players/%s/trading-profile", url.PathEscape(playerID))
	if err := c.get(ctx, path, &profile); err != nil {
		return domain.TradingProfile{}, err
	}
	return profile, nil
}

// RecentTransactions returns the anonymized transaction feed for a
// commodity over the given window.
func (c *Client) RecentTransactions(ctx context.Context, commodity domain.Commodity, window time.Duration) ([]domain.AnonymizedTransaction, error) {
	var result struct {
		Transactions []domain.AnonymizedTransaction `json:"transactions"`
	}
	path := fmt.Sprintf("/internal/market/transactions?commodity=%s&window_seconds=%d",
		url.QueryEscape(string(commodity)), int(window.Seconds()))
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return result.Transactions, nil
}

// get performs a GET request and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("game server request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("path", path).
			Msg("Game server returned non-200")
		return fmt.Errorf("game server returned %d for %s: %s", resp.StatusCode, path, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode game server response: %w", err)
	}
	return nil
}
