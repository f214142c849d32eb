// Package stream negotiates playback access for a channel: a short-lived
// GraphQL playback token, an optional integrity step-up when the platform
// rejects the first attempt, and the HLS variant playlist behind them.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"k4llisto/app/client/auth"
	"k4llisto/app/client/netmon"
	"k4llisto/app/client/reqguard"
	"k4llisto/app/client/settings"
	"k4llisto/pkg/config"
	"k4llisto/pkg/sched"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/samber/do"
)

// TokenSource exposes the OAuth credential the resolver falls back to when
// no session token is set.
type TokenSource interface {
	IsAuthenticated() bool
	AccessToken() string
}

type Resolver struct {
	cfg    *config.Config
	store  *settings.Store
	guard  *reqguard.Guard
	tokens TokenSource
	clock  sched.Clock

	mu                  sync.Mutex
	sessionToken        string
	integrityToken      string
	integrityExpiration time.Time
	deviceID            string
	entitlements        Entitlements
	validating          bool
}

func NewResolver(di *do.Injector) (*Resolver, error) {
	r := &Resolver{
		cfg:          do.MustInvoke[*config.Config](di),
		store:        do.MustInvoke[*settings.Store](di),
		guard:        do.MustInvoke[*reqguard.Guard](di),
		tokens:       do.MustInvoke[*auth.Manager](di),
		clock:        sched.Real(),
		entitlements: unknownEntitlements(),
	}

	r.loadIntegrity()
	r.loadSessionToken()

	return r, nil
}

// FetchStreamURL turns a channel name and requested quality into a playable
// rendition URL. The first playback-token attempt goes out without an
// integrity token; a rejection may step up exactly once.
func (r *Resolver) FetchStreamURL(ctx context.Context, channel, quality string) (string, error) {
	slog.Info("Fetching stream URL",
		slog.String("channel", channel),
		slog.String("quality", quality),
	)

	r.mu.Lock()
	r.validating = false
	r.mu.Unlock()

	token, err := r.negotiatePlaybackToken(ctx, channel)
	if err != nil {
		return "", err
	}

	playlist, err := r.fetchPlaylist(ctx, channel, token)
	if err != nil {
		return "", err
	}

	manifest, err := ParseManifest(playlist)
	if err != nil {
		return "", err
	}

	return manifest.Resolve(quality)
}

// FetchManifest is FetchStreamURL without the final quality selection; it
// returns the full quality table for callers that present a picker.
func (r *Resolver) FetchManifest(ctx context.Context, channel string) (*Manifest, error) {
	token, err := r.negotiatePlaybackToken(ctx, channel)
	if err != nil {
		return nil, err
	}

	playlist, err := r.fetchPlaylist(ctx, channel, token)
	if err != nil {
		return nil, err
	}

	return ParseManifest(playlist)
}

func (r *Resolver) negotiatePlaybackToken(ctx context.Context, channel string) (*PlaybackToken, error) {
	token, canStepUp, err := r.requestPlaybackToken(ctx, channel, false)
	if err == nil {
		return token, nil
	}

	if !canStepUp {
		return nil, err
	}

	slog.Info("Playback token rejected, stepping up with integrity token")

	if integrityErr := r.requestIntegrity(ctx); integrityErr != nil {
		return nil, fmt.Errorf("failed to get integrity token: %w", integrityErr)
	}

	// Exactly one retry; a second rejection is terminal.
	token, _, err = r.requestPlaybackToken(ctx, channel, true)
	return token, err
}

// requestPlaybackToken issues the persisted-query playback request. The
// second return value reports whether the failure is eligible for the
// integrity step-up: a 4xx-class rejection (or an "integrity" error payload)
// with no cached integrity token and a session token present.
func (r *Resolver) requestPlaybackToken(ctx context.Context, channel string, withIntegrity bool) (*PlaybackToken, bool, error) {
	payload := map[string]any{
		"operationName": "PlaybackAccessToken",
		"variables": map[string]any{
			"isLive":     true,
			"login":      channel,
			"isVod":      false,
			"vodID":      "",
			"playerType": "site",
		},
		"extensions": map[string]any{
			"persistedQuery": map[string]any{
				"version":    1,
				"sha256Hash": r.cfg.Twitch.PersistedQueryHash,
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("could not marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Twitch.GQLURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("could not create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-ID", r.cfg.Twitch.PublicClientID)

	r.mu.Lock()
	sessionToken := r.sessionToken
	integrityToken := ""
	if withIntegrity && r.integrityValidLocked() {
		integrityToken = r.integrityToken
	}
	deviceID := r.deviceID
	r.mu.Unlock()

	// Session token first: only it carries ad-suppression entitlements.
	switch {
	case sessionToken != "":
		req.Header.Set("Authorization", "OAuth "+sessionToken)
	case r.tokens != nil && r.tokens.IsAuthenticated():
		req.Header.Set("Authorization", "OAuth "+r.tokens.AccessToken())
	}

	if integrityToken != "" {
		req.Header.Set("Client-Integrity", integrityToken)
	}
	if deviceID != "" {
		req.Header.Set("X-Device-Id", deviceID)
	}

	resp, classification, err := r.guard.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if classification != netmon.None {
		canStepUp := false
		if classification == netmon.AuthError || classification == netmon.ClientError {
			canStepUp = r.stepUpEligible(withIntegrity)
		}
		return nil, canStepUp, fmt.Errorf("playback token request rejected: HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("could not read response: %w", err)
	}

	var gql gqlResponse
	if err := json.Unmarshal(raw, &gql); err != nil {
		return nil, false, fmt.Errorf("invalid JSON response: %w", err)
	}

	if len(gql.Errors) > 0 {
		message := gql.Errors[0].Message
		slog.Warn("Twitch API error", slog.String("message", message))

		canStepUp := strings.Contains(strings.ToLower(message), "integrity") && r.stepUpEligible(withIntegrity)
		return nil, canStepUp, fmt.Errorf("Twitch API error: %s", message)
	}

	accessToken := gql.Data.StreamPlaybackAccessToken
	if accessToken == nil {
		return nil, false, fmt.Errorf("channel not found or not live: %s", channel)
	}
	if accessToken.Value == "" || accessToken.Signature == "" {
		return nil, false, fmt.Errorf("failed to get playback token")
	}

	entitlements := parseEntitlements(accessToken.Value)
	r.mu.Lock()
	r.entitlements = entitlements
	r.mu.Unlock()

	return &PlaybackToken{Value: accessToken.Value, Signature: accessToken.Signature}, false, nil
}

func (r *Resolver) stepUpEligible(withIntegrity bool) bool {
	if withIntegrity {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return !r.integrityValidLocked() && r.sessionToken != ""
}

func (r *Resolver) fetchPlaylist(ctx context.Context, channel string, token *PlaybackToken) (string, error) {
	base := fmt.Sprintf(r.cfg.Twitch.UsherURL, channel)

	query := url.Values{}
	query.Set("client_id", r.cfg.Twitch.PublicClientID)
	query.Set("token", token.Value)
	query.Set("sig", token.Signature)
	query.Set("allow_source", "true")
	query.Set("allow_audio_only", "true")
	query.Set("allow_spectre", "false")
	query.Set("player", "twitchweb")
	query.Set("playlist_include_framerate", "true")
	query.Set("fast_bread", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("could not create playlist request: %w", err)
	}

	resp, classification, err := r.guard.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get playlist: %w", err)
	}
	defer resp.Body.Close()

	if classification != netmon.None {
		return "", fmt.Errorf("failed to get playlist: HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read playlist: %w", err)
	}

	return string(raw), nil
}

// Entitlements returns the flags seen in the most recent playback token.
func (r *Resolver) Entitlements() Entitlements {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.entitlements
}

func (r *Resolver) Validating() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.validating
}

// SetSessionToken stores the platform session token used preferentially
// over the OAuth access token for playback requests.
func (r *Resolver) SetSessionToken(token string) error {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return fmt.Errorf("cannot set empty session token")
	}

	r.mu.Lock()
	r.sessionToken = trimmed
	r.mu.Unlock()

	if err := r.store.Set(settings.KeyGraphQLToken, trimmed); err != nil {
		return fmt.Errorf("failed to persist session token: %w", err)
	}

	slog.Info("Session token set", slog.Int("length", len(trimmed)))
	return nil
}

func (r *Resolver) ClearSessionToken() {
	r.mu.Lock()
	r.sessionToken = ""
	r.entitlements = unknownEntitlements()
	r.mu.Unlock()

	_ = r.store.Delete(settings.KeyGraphQLToken)
	slog.Info("Session token cleared")
}

func (r *Resolver) SessionToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sessionToken
}

// ValidateSessionToken probes the session token with a playback request
// against a known-live channel and reports the resulting entitlements, so
// the caller can tell whether ad suppression is actually active.
func (r *Resolver) ValidateSessionToken(ctx context.Context) (Entitlements, error) {
	r.mu.Lock()
	if r.sessionToken == "" {
		r.mu.Unlock()
		return unknownEntitlements(), fmt.Errorf("no session token to validate")
	}
	r.validating = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.validating = false
		r.mu.Unlock()
	}()

	_, _, err := r.requestPlaybackToken(ctx, r.cfg.Twitch.ProbeChannel, false)
	if err != nil {
		return unknownEntitlements(), fmt.Errorf("session token validation failed: %w", err)
	}

	return r.Entitlements(), nil
}

func (r *Resolver) loadSessionToken() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessionToken = r.store.Get(settings.KeyGraphQLToken)
	if r.sessionToken != "" {
		slog.Debug("Loaded session token from settings", slog.Int("length", len(r.sessionToken)))
	}
}
