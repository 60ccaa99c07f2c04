// Package client talks to the camwatch HTTP API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/wachiwi/camwatch/pkg/camera"
)

var ErrUnauthorized = errors.New("unauthorized")

type Client struct {
	Address  string
	User     string
	Password string
	Client   *http.Client
}

// RecordingInfo is one encoded chunk as listed by the server.
type RecordingInfo struct {
	Camera  string    `json:"camera"`
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Started time.Time `json:"started"`
	Size    int64     `json:"size"`
}

// New creates a client. User and password are only needed when the server
// has a login configured.
func New(address, user, password string) (*Client, error) {
	if address == "" {
		return nil, errors.New("server address must be set")
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		Address:  strings.TrimRight(address, "/"),
		User:     user,
		Password: password,
		Client: &http.Client{
			Timeout: 5 * time.Second,
			Jar:     jar,
			// The login answers with a redirect we do not need to follow.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

func (c *Client) Cameras(ctx context.Context) ([]camera.Status, error) {
	var statuses []camera.Status
	if err := c.getJSON(ctx, "/api/cameras", &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

func (c *Client) Recordings(ctx context.Context) ([]RecordingInfo, error) {
	var recordings []RecordingInfo
	if err := c.getJSON(ctx, "/api/recordings", &recordings); err != nil {
		return nil, err
	}
	return recordings, nil
}

// Restart asks the server to restart a failed camera.
func (c *Client) Restart(ctx context.Context, idx int) (*camera.Status, error) {
	var status camera.Status
	err := c.withLogin(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/api/cameras/%d/restart", c.Address, idx), nil)
		if err != nil {
			return err
		}
		return c.do(req, http.StatusAccepted, &status)
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// Login opens a session with the configured credentials.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{"username": {c.User}, "password": {c.Password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Address+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusFound, http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return fmt.Errorf("login rejected: %w", ErrUnauthorized)
	default:
		return fmt.Errorf("login returned status %d", resp.StatusCode)
	}
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	return c.withLogin(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Address+path, nil)
		if err != nil {
			return err
		}
		return c.do(req, http.StatusOK, v)
	})
}

// withLogin runs fn and, if the server wants a session, logs in and runs
// it once more.
func (c *Client) withLogin(ctx context.Context, fn func() error) error {
	err := fn()
	if !errors.Is(err, ErrUnauthorized) || c.User == "" {
		return err
	}
	if err := c.Login(ctx); err != nil {
		return err
	}
	return fn()
}

func (c *Client) do(req *http.Request, want int, v any) error {
	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode != want {
		var body struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("%s returned status %d: %s", req.URL.Path, resp.StatusCode, body.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
