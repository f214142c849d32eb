// Package helix is the plain catalog client: list/browse calls with no
// retry semantics beyond the request timeout guard.
package helix

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"k4llisto/app/client/netmon"
	"k4llisto/app/client/reqguard"
	"k4llisto/pkg/config"
	"net/http"
	"net/url"
	"sync"

	"github.com/samber/do"
)

type Client struct {
	cfg   *config.Config
	guard *reqguard.Guard

	mutex     sync.RWMutex
	authToken string
}

func NewClient(di *do.Injector) (*Client, error) {
	return &Client{
		cfg:   do.MustInvoke[*config.Config](di),
		guard: do.MustInvoke[*reqguard.Guard](di),
	}, nil
}

// SetAuthToken replaces the bearer used for catalog calls. An empty token
// switches back to unauthenticated requests.
func (c *Client) SetAuthToken(token string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.authToken = token
}

func (c *Client) GetTopGames(ctx context.Context, limit int) (*GamesResponse, error) {
	queryParams := url.Values{}
	queryParams.Add("first", fmt.Sprintf("%d", clampLimit(limit)))

	var result GamesResponse
	if err := c.get(ctx, "/games/top", queryParams, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *Client) GetStreamsForGame(ctx context.Context, gameID string, limit int, cursor string) (*StreamsResponse, error) {
	queryParams := url.Values{}
	queryParams.Add("game_id", gameID)
	queryParams.Add("first", fmt.Sprintf("%d", clampLimit(limit)))
	queryParams.Add("type", "live")
	if cursor != "" {
		queryParams.Add("after", cursor)
	}

	var result StreamsResponse
	if err := c.get(ctx, "/streams", queryParams, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *Client) GetStreamForUser(ctx context.Context, userLogin string) (*Stream, error) {
	queryParams := url.Values{}
	queryParams.Add("user_login", userLogin)

	var result StreamsResponse
	if err := c.get(ctx, "/streams", queryParams, &result); err != nil {
		return nil, err
	}

	if len(result.Data) == 0 {
		return nil, fmt.Errorf("channel is not live: %s", userLogin)
	}

	return &result.Data[0], nil
}

func (c *Client) GetUserInfo(ctx context.Context, userLogin string) (*User, error) {
	queryParams := url.Values{}
	queryParams.Add("login", userLogin)

	var result UsersResponse
	if err := c.get(ctx, "/users", queryParams, &result); err != nil {
		return nil, err
	}

	if len(result.Data) == 0 {
		return nil, fmt.Errorf("user not found: %s", userLogin)
	}

	return &result.Data[0], nil
}

func (c *Client) get(ctx context.Context, endpoint string, queryParams url.Values, out any) error {
	requestURL := fmt.Sprintf("%s%s?%s", c.cfg.Twitch.HelixURL, endpoint, queryParams.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("creating request failed: %w", err)
	}

	c.mutex.RLock()
	token := c.authToken
	c.mutex.RUnlock()

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Client-Id", c.cfg.Twitch.PublicClientID)
	req.Header.Set("Content-Type", "application/json")

	resp, classification, err := c.guard.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if classification != netmon.None {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response failed: %w", err)
	}

	return nil
}

func clampLimit(limit int) int {
	if limit > 100 {
		return 100
	}
	if limit < 1 {
		return 20
	}

	return limit
}
