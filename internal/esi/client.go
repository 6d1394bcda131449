// Package esi talks to EVE Online: the SSO OAuth2 flow and the ESI REST
// endpoints for skills, the skill queue, and name resolution.
package esi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"skillwatch/internal/monitor"
)

const (
	ssoAuthURL  = "https://login.eveonline.com/v2/oauth/authorize"
	ssoTokenURL = "https://login.eveonline.com/v2/oauth/token"

	defaultBaseURL    = "https://esi.evetech.net"
	defaultRatePerSec = 10
)

var ssoScopes = []string{
	"esi-skills.read_skills.v1",
	"esi-skills.read_skillqueue.v1",
}

type Config struct {
	ClientID     string
	ClientSecret string
	// RedirectURL is the public callback endpoint of the OAuth webserver.
	RedirectURL string
	// BaseURL overrides the ESI endpoint; tests point it at a local server.
	BaseURL string
	// RatePerSec caps outgoing ESI requests. ESI enforces an error-rate
	// budget; staying well below the hard limit avoids tripping it.
	RatePerSec int
}

// Client implements monitor.ProgressSource against the live API.
type Client struct {
	oauth   *oauth2.Config
	http    *http.Client
	base    string
	limiter *rate.Limiter
	log     zerolog.Logger

	mu    sync.Mutex
	names map[int32]string
}

func New(cfg Config, log zerolog.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = defaultRatePerSec
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       ssoScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  ssoAuthURL,
				TokenURL: ssoTokenURL,
			},
		},
		http:    &http.Client{Timeout: 15 * time.Second},
		base:    base,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
		names:   make(map[int32]string),
	}
}

// AuthorizeURL builds the SSO login URL carrying the given state token.
func (c *Client) AuthorizeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for an access/refresh token
// pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (access, refresh string, err error) {
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return "", "", fmt.Errorf("exchange code: %w", err)
	}
	if tok.RefreshToken == "" {
		return "", "", errors.New("exchange code: no refresh token in response")
	}
	return tok.AccessToken, tok.RefreshToken, nil
}

// Refresh exchanges a refresh token for a fresh access token and the
// rotated refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (access, newRefresh string, err error) {
	ts := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return "", "", fmt.Errorf("refresh token: %w", err)
	}
	newRefresh = tok.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	return tok.AccessToken, newRefresh, nil
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

type skillsResponse struct {
	Skills        []monitor.Skill `json:"skills"`
	TotalSP       int64           `json:"total_sp"`
	UnallocatedSP int32           `json:"unallocated_sp"`
}

func (c *Client) FetchSkills(ctx context.Context, accessToken string, characterID int64) ([]monitor.Skill, error) {
	var resp skillsResponse
	url := fmt.Sprintf("%s/v4/characters/%d/skills/", c.base, characterID)
	if err := c.getJSON(ctx, url, accessToken, &resp); err != nil {
		return nil, err
	}
	return resp.Skills, nil
}

func (c *Client) FetchQueue(ctx context.Context, accessToken string, characterID int64) ([]monitor.QueueItem, error) {
	var queue []monitor.QueueItem
	url := fmt.Sprintf("%s/v2/characters/%d/skillqueue/", c.base, characterID)
	if err := c.getJSON(ctx, url, accessToken, &queue); err != nil {
		return nil, err
	}
	return queue, nil
}

type namesLookup struct {
	ID       int64  `json:"id"`
	Category string `json:"category"`
	Name     string `json:"name"`
}

// SkillName resolves a skill id via /universe/names/, caching forever:
// skill ids are immutable reference data.
func (c *Client) SkillName(ctx context.Context, skillID int32) (string, error) {
	c.mu.Lock()
	if name, ok := c.names[skillID]; ok {
		c.mu.Unlock()
		return name, nil
	}
	c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal([]int32{skillID})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v3/universe/names/", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lookup name for %d: status %d", skillID, resp.StatusCode)
	}

	var lookups []namesLookup
	if err := json.NewDecoder(resp.Body).Decode(&lookups); err != nil {
		return "", err
	}
	if len(lookups) == 0 {
		return "", fmt.Errorf("lookup name for %d: empty response", skillID)
	}

	name := lookups[0].Name
	c.mu.Lock()
	c.names[skillID] = name
	c.mu.Unlock()
	return name, nil
}

func (c *Client) getJSON(ctx context.Context, url, accessToken string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		// Drain a little of the body for the error message; ESI error
		// payloads are short.
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
