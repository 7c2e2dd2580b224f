package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fenggwsx/roomcast/internal/httpapi"
)

const requestTimeout = 5 * time.Second

// APIClient calls the server's HTTP endpoints.
type APIClient struct {
	baseURL string
	http    *http.Client
	token   string
}

// NewAPIClient returns a client for the server at baseURL.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// BaseURL returns the server the client talks to.
func (c *APIClient) BaseURL() string { return c.baseURL }

// SetToken sets the bearer token attached to authenticated calls.
func (c *APIClient) SetToken(token string) { c.token = token }

// Register creates an account and returns its token.
func (c *APIClient) Register(ctx context.Context, username, password string) (httpapi.TokenResponse, error) {
	return call[httpapi.TokenResponse](ctx, c, http.MethodPost, "/auth/register",
		httpapi.CredentialsRequest{Username: username, Password: password})
}

// Login exchanges credentials for a token.
func (c *APIClient) Login(ctx context.Context, username, password string) (httpapi.TokenResponse, error) {
	return call[httpapi.TokenResponse](ctx, c, http.MethodPost, "/auth/login",
		httpapi.CredentialsRequest{Username: username, Password: password})
}

// CreateRoom registers a new room owned by the authenticated user.
func (c *APIClient) CreateRoom(ctx context.Context, name string) (httpapi.RoomResponse, error) {
	resp, err := call[struct {
		Room httpapi.RoomResponse `json:"room"`
	}](ctx, c, http.MethodPost, "/rooms", httpapi.CreateRoomRequest{Name: name})
	return resp.Room, err
}

// ListRooms returns the rooms owned by the authenticated user.
func (c *APIClient) ListRooms(ctx context.Context) ([]httpapi.RoomResponse, error) {
	resp, err := call[struct {
		Rooms []httpapi.RoomResponse `json:"rooms"`
	}](ctx, c, http.MethodGet, "/rooms", nil)
	return resp.Rooms, err
}

// Room looks a room up by its public id.
func (c *APIClient) Room(ctx context.Context, roomID string) (httpapi.RoomResponse, error) {
	resp, err := call[struct {
		Room httpapi.RoomResponse `json:"room"`
	}](ctx, c, http.MethodGet, "/rooms/"+url.PathEscape(roomID), nil)
	return resp.Room, err
}

// History returns the stored messages of a room, oldest first.
func (c *APIClient) History(ctx context.Context, roomID string) ([]httpapi.MessageResponse, error) {
	resp, err := call[struct {
		Messages []httpapi.MessageResponse `json:"messages"`
	}](ctx, c, http.MethodGet, "/messages/"+url.PathEscape(roomID), nil)
	return resp.Messages, err
}

func call[T any](ctx context.Context, c *APIClient, method, path string, body any) (T, error) {
	var zero T
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return zero, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &payload)
	if err != nil {
		return zero, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	return decodeResponse[T](resp)
}
