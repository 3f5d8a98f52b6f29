// Package cafe is a client for the cafe director's HTTP API.
package cafe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/pause"
)

// Client talks to one director instance. Token is the plaintext control
// token; read-only calls work without it.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new client.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cafe error %d: %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		if errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// HealthResponse is the subset of /health the client reads.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Rooms   int    `json:"rooms"`
	Paused  bool   `json:"paused"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateRoom pairs two agents; the first speaks first. An empty id lets
// the server pick one.
func (c *Client) CreateRoom(ctx context.Context, id string, agents [2]string) (*models.Room, error) {
	body := struct {
		ID     string    `json:"id,omitempty"`
		Agents [2]string `json:"agents"`
	}{id, agents}

	var room models.Room
	if err := c.do(ctx, http.MethodPost, "/rooms", body, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// ListRooms returns every live room.
func (c *Client) ListRooms(ctx context.Context) ([]models.Room, error) {
	var resp struct {
		Rooms []models.Room `json:"rooms"`
	}
	if err := c.do(ctx, http.MethodGet, "/rooms", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// GetRoom returns one room.
func (c *Client) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	if err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(id), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// DestroyRoom stops a room.
func (c *Client) DestroyRoom(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/rooms/"+url.PathEscape(id), nil, nil)
}

// KickRoom schedules the next turn of an idle room now.
func (c *Client) KickRoom(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(id)+"/kick", nil, nil)
}

// MessagesResponse is a page of room activity.
type MessagesResponse struct {
	RoomID   string               `json:"room_id"`
	Messages []models.ChatMessage `json:"messages"`
	HasMore  bool                 `json:"has_more"`
}

// GetMessages reads up to limit messages. before is a unix-millis
// cursor; zero means newest.
func (c *Client) GetMessages(ctx context.Context, roomID string, limit int, before int64) (*MessagesResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if before > 0 {
		params.Set("before", strconv.FormatInt(before, 10))
	}
	path := "/rooms/" + url.PathEscape(roomID) + "/messages"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp MessagesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTrades lists the room's settled trades.
func (c *Client) GetTrades(ctx context.Context, roomID string) ([]models.TradeRecord, error) {
	var resp struct {
		Trades []models.TradeRecord `json:"trades"`
	}
	if err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"/trades", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Trades, nil
}

// GetAgent returns an agent's ledger view.
func (c *Client) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var agent models.Agent
	if err := c.do(ctx, http.MethodGet, "/agents/"+url.PathEscape(id), nil, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// PauseState reads the global pause.
func (c *Client) PauseState(ctx context.Context) (*pause.State, error) {
	var st pause.State
	if err := c.do(ctx, http.MethodGet, "/pause", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Pause halts every room for d, or for the server default when d is zero.
func (c *Client) Pause(ctx context.Context, d time.Duration) (*pause.State, error) {
	body := struct {
		DurationMs int64 `json:"duration_ms,omitempty"`
	}{d.Milliseconds()}

	var st pause.State
	if err := c.do(ctx, http.MethodPost, "/pause", body, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Resume lifts the global pause.
func (c *Client) Resume(ctx context.Context) (*pause.State, error) {
	var st pause.State
	if err := c.do(ctx, http.MethodDelete, "/pause", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
