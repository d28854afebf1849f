package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// RoleHost is the only role tokens are minted for.
const RoleHost = "host"

type roomRequest struct {
	Room string `json:"room"`
}

type roomResponse struct {
	ID string `json:"id"`
}

type tokenRequest struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
	Role   string `json:"role"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// MissingFieldError is returned when a 2xx response lacks a required field.
type MissingFieldError struct {
	URL   string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: response missing %q", e.URL, e.Field)
}

// Client talks to the room/token backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates an API client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchToken resolves roomName to a room ID, then mints a host token for
// userName in that room. Errors from either call are returned as-is.
func (c *Client) FetchToken(ctx context.Context, userName, roomName string) (string, error) {
	var room roomResponse
	if err := c.postJSON(ctx, "/room", roomRequest{Room: roomName}, &room); err != nil {
		return "", err
	}
	if room.ID == "" {
		return "", &MissingFieldError{URL: c.baseURL + "/room", Field: "id"}
	}
	c.logger.Debug("room resolved", zap.String("room", roomName), zap.String("room_id", room.ID))

	var tok tokenResponse
	req := tokenRequest{UserID: userName, RoomID: room.ID, Role: RoleHost}
	if err := c.postJSON(ctx, "/token", req, &tok); err != nil {
		return "", err
	}
	if tok.Token == "" {
		return "", &MissingFieldError{URL: c.baseURL + "/token", Field: "token"}
	}
	c.logger.Debug("token minted", zap.String("user", userName), zap.String("room_id", room.ID))

	return tok.Token, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Method:     http.MethodPost,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	return json.Unmarshal(respBody, out)
}
