// Package auth owns the long-lived OAuth credential: device-flow
// acquisition, validation, refresh and persistence. The one invariant that
// everything here protects: a transient network failure must never destroy
// a valid credential.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
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

const deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

type Manager struct {
	cfg     *config.Config
	store   *settings.Store
	guard   *reqguard.Guard
	monitor *netmon.Monitor
	clock   sched.Clock
	appCtx  context.Context

	mu           sync.Mutex
	state        State
	accessToken  string
	refreshToken string
	session      *DeviceAuthSession
	poller       *sched.Repeater
	cb           Callbacks
}

func New(di *do.Injector) (*Manager, error) {
	m := &Manager{
		cfg:     do.MustInvoke[*config.Config](di),
		store:   do.MustInvoke[*settings.Store](di),
		guard:   do.MustInvoke[*reqguard.Guard](di),
		monitor: do.MustInvoke[*netmon.Monitor](di),
		clock:   sched.Real(),
		appCtx:  do.MustInvoke[context.Context](di),
		state:   StateIdle,
	}

	m.loadTokens()

	return m, nil
}

func (m *Manager) SetCallbacks(cb Callbacks) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cb = cb
}

func (m *Manager) callbacks() Callbacks {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cb
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.accessToken != ""
}

func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.accessToken
}

func (m *Manager) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

func (m *Manager) Session() *DeviceAuthSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}

	session := *m.session
	return &session
}

// ValidateStartup validates a stored credential once at startup, or reports
// unauthenticated if there is none.
func (m *Manager) ValidateStartup(ctx context.Context) {
	if !m.IsAuthenticated() {
		if cb := m.callbacks(); cb.OnAuthenticationChanged != nil {
			cb.OnAuthenticationChanged(false)
		}
		return
	}

	slog.Info("Validating saved token")
	m.ValidateToken(ctx)
}

// StartDeviceAuth requests a device code and starts polling for the token
// at the server-specified interval.
func (m *Manager) StartDeviceAuth(ctx context.Context) error {
	slog.Info("Starting device auth flow")

	cb := m.callbacks()
	if cb.OnStatus != nil {
		cb.OnStatus("Requesting device code...")
	}

	m.mu.Lock()
	m.state = StateAwaitingDeviceCode
	m.mu.Unlock()

	form := url.Values{}
	form.Set("client_id", m.cfg.Twitch.ClientID)
	form.Set("scopes", m.cfg.Twitch.Scopes)

	resp, _, err := m.postForm(ctx, m.cfg.Twitch.DeviceURL, form)
	if err != nil {
		m.mu.Lock()
		m.state = StateIdle
		m.mu.Unlock()

		reason := "Network error: " + err.Error()
		if cb.OnAuthenticationFailed != nil {
			cb.OnAuthenticationFailed(reason)
		}
		return fmt.Errorf("device code request failed: %w", err)
	}
	defer resp.Body.Close()

	var deviceResp deviceCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&deviceResp); err != nil {
		m.mu.Lock()
		m.state = StateIdle
		m.mu.Unlock()

		if cb.OnAuthenticationFailed != nil {
			cb.OnAuthenticationFailed("Invalid response from Twitch")
		}
		return fmt.Errorf("decoding device code response failed: %w", err)
	}

	if deviceResp.DeviceCode == "" || deviceResp.UserCode == "" {
		m.mu.Lock()
		m.state = StateIdle
		m.mu.Unlock()

		if cb.OnAuthenticationFailed != nil {
			cb.OnAuthenticationFailed("Failed to get device code")
		}
		return fmt.Errorf("device code response missing codes")
	}

	session := &DeviceAuthSession{
		DeviceCode:      deviceResp.DeviceCode,
		UserCode:        deviceResp.UserCode,
		VerificationURI: deviceResp.VerificationURI,
		ExpiresIn:       deviceResp.ExpiresIn,
		PollInterval:    deviceResp.Interval,
	}
	if session.PollInterval <= 0 {
		session.PollInterval = 5
	}

	m.mu.Lock()
	// A restarted flow replaces any poller still running from a previous one.
	if m.poller != nil {
		m.poller.Stop()
	}
	m.session = session
	m.state = StatePolling
	m.poller = sched.NewRepeater(m.clock, time.Duration(session.PollInterval)*time.Second, func() {
		m.pollForToken(m.appCtx)
	})
	m.poller.Start()
	m.mu.Unlock()

	if cb.OnUserCode != nil {
		cb.OnUserCode(session.UserCode, session.VerificationURI)
	}
	if cb.OnStatus != nil {
		cb.OnStatus("Waiting for authorization...")
	}
	if cb.OnPollingChanged != nil {
		cb.OnPollingChanged(true)
	}

	// First poll fires immediately, the repeater covers the rest.
	go m.pollForToken(m.appCtx)

	return nil
}

func (m *Manager) pollForToken(ctx context.Context) {
	m.mu.Lock()
	if m.state != StatePolling || m.session == nil {
		m.mu.Unlock()
		return
	}
	deviceCode := m.session.DeviceCode
	m.mu.Unlock()

	form := url.Values{}
	form.Set("client_id", m.cfg.Twitch.ClientID)
	form.Set("device_code", deviceCode)
	form.Set("grant_type", deviceGrantType)

	resp, _, err := m.postForm(ctx, m.cfg.Twitch.TokenURL, form)
	if err != nil {
		// Transient poll failures are absorbed; the repeater tries again.
		slog.Warn("Token poll failed", slog.Any("error", err))
		return
	}
	defer resp.Body.Close()

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		slog.Warn("Invalid token poll response", slog.Any("error", err))
		return
	}

	cb := m.callbacks()

	if tokenResp.Status == 400 {
		switch tokenResp.Message {
		case "authorization_pending":
			return

		case "slow_down":
			m.mu.Lock()
			if m.session != nil && m.poller != nil {
				m.session.PollInterval += 5
				m.poller.SetInterval(time.Duration(m.session.PollInterval) * time.Second)
				slog.Debug("Poll interval increased", slog.Int("interval", m.session.PollInterval))
			}
			m.mu.Unlock()
			return

		case "expired_token":
			m.stopPolling(StateLoggedOut)
			if cb.OnAuthenticationFailed != nil {
				cb.OnAuthenticationFailed("Device code expired. Please try again.")
			}
			return

		default:
			m.stopPolling(StateLoggedOut)
			if cb.OnAuthenticationFailed != nil {
				cb.OnAuthenticationFailed("Authorization failed: " + tokenResp.Message)
			}
			return
		}
	}

	if tokenResp.AccessToken == "" {
		m.stopPolling(StateLoggedOut)
		if cb.OnAuthenticationFailed != nil {
			cb.OnAuthenticationFailed("Failed to get access token")
		}
		return
	}

	slog.Info("Authentication successful")

	m.mu.Lock()
	m.accessToken = tokenResp.AccessToken
	m.refreshToken = tokenResp.RefreshToken
	m.session = nil
	m.mu.Unlock()

	m.stopPolling(StateAuthenticated)
	m.saveTokens()

	if cb.OnAuthenticationChanged != nil {
		cb.OnAuthenticationChanged(true)
	}
	if cb.OnAuthenticationSucceeded != nil {
		cb.OnAuthenticationSucceeded()
	}
	if cb.OnStatus != nil {
		cb.OnStatus("Successfully authenticated!")
	}
}

// ValidateToken checks the stored access token against the validation
// endpoint. Recovery is classification-gated: transient failures leave the
// credential untouched, only an authenticated rejection may refresh or clear.
func (m *Manager) ValidateToken(ctx context.Context) {
	m.mu.Lock()
	token := m.accessToken
	m.mu.Unlock()

	cb := m.callbacks()

	if token == "" {
		if cb.OnAuthenticationChanged != nil {
			cb.OnAuthenticationChanged(false)
		}
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.Twitch.ValidateURL, nil)
	if err != nil {
		slog.Error("Creating validation request failed", slog.Any("error", err))
		return
	}
	req.Header.Set("Authorization", "OAuth "+token)

	resp, classification, err := m.guard.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}

	if classification == netmon.None {
		var validated validateResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&validated); decodeErr == nil {
			slog.Info("Token validated", slog.String("login", validated.Login))
		}

		if m.monitor != nil {
			m.monitor.ClearError()
		}
		m.mu.Lock()
		m.state = StateAuthenticated
		m.mu.Unlock()

		if cb.OnAuthenticationChanged != nil {
			cb.OnAuthenticationChanged(true)
		}
		return
	}

	slog.Warn("Token validation failed",
		slog.String("classification", classification.String()),
		slog.Any("error", err),
	)

	if m.monitor == nil {
		// Degraded mode, no classification available: refresh or clear.
		m.refreshOrClear(ctx, cb)
		return
	}

	message := m.monitor.ErrorMessage(resp, err)

	switch classification {
	case netmon.NetworkError, netmon.ServerError:
		// Transient failure: the credential stays untouched.
		slog.Info("Transient error during validation - token preserved")
		if cb.OnAuthenticationFailed != nil {
			cb.OnAuthenticationFailed(message)
		}

	case netmon.AuthError:
		m.refreshOrClear(ctx, cb)

	default:
		// Terminal for this operation, but not evidence against the token.
		if cb.OnAuthenticationFailed != nil {
			cb.OnAuthenticationFailed(message)
		}
	}
}

func (m *Manager) refreshOrClear(ctx context.Context, cb Callbacks) {
	m.mu.Lock()
	hasRefresh := m.refreshToken != ""
	m.mu.Unlock()

	if hasRefresh {
		slog.Info("Attempting token refresh")
		m.RefreshAccessToken(ctx)
		return
	}

	slog.Info("No refresh token - clearing credential")
	m.clearTokens()
	if cb.OnAuthenticationChanged != nil {
		cb.OnAuthenticationChanged(false)
	}
}

// RefreshAccessToken exchanges the refresh token for a new access token. A
// refresh rejection cannot be told apart from a revoked session, so any
// failure here is terminal and clears the credential.
func (m *Manager) RefreshAccessToken(ctx context.Context) {
	cb := m.callbacks()

	m.mu.Lock()
	refreshToken := m.refreshToken
	m.mu.Unlock()

	if refreshToken == "" {
		slog.Warn("No refresh token available")
		if cb.OnAuthenticationFailed != nil {
			cb.OnAuthenticationFailed("No refresh token available")
		}
		m.clearTokens()
		if cb.OnAuthenticationChanged != nil {
			cb.OnAuthenticationChanged(false)
		}
		return
	}

	slog.Info("Refreshing token")
	if cb.OnStatus != nil {
		cb.OnStatus("Refreshing authentication...")
	}

	m.mu.Lock()
	m.state = StateRefreshing
	m.mu.Unlock()

	form := url.Values{}
	form.Set("client_id", m.cfg.Twitch.ClientID)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	resp, classification, err := m.postForm(ctx, m.cfg.Twitch.TokenURL, form)
	if err != nil || classification != netmon.None {
		if resp != nil {
			_ = resp.Body.Close()
		}

		slog.Warn("Token refresh failed - need login", slog.Any("error", err))
		m.failRefresh(cb)
		return
	}
	defer resp.Body.Close()

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil || tokenResp.AccessToken == "" {
		slog.Warn("Invalid refresh response")
		m.failRefresh(cb)
		return
	}

	m.mu.Lock()
	m.accessToken = tokenResp.AccessToken
	if tokenResp.RefreshToken != "" {
		// Twitch may return a new refresh token, or keep the old one.
		m.refreshToken = tokenResp.RefreshToken
		slog.Info("Token refreshed (new refresh token)")
	} else {
		slog.Info("Token refreshed")
	}
	m.state = StateAuthenticated
	m.mu.Unlock()

	m.saveTokens()

	if cb.OnAuthenticationChanged != nil {
		cb.OnAuthenticationChanged(true)
	}
	if cb.OnTokenRefreshed != nil {
		cb.OnTokenRefreshed()
	}
	if cb.OnStatus != nil {
		cb.OnStatus("Authentication refreshed successfully!")
	}
}

func (m *Manager) failRefresh(cb Callbacks) {
	if cb.OnAuthenticationFailed != nil {
		cb.OnAuthenticationFailed("Session expired. Please log in again.")
	}
	m.clearTokens()
	if cb.OnAuthenticationChanged != nil {
		cb.OnAuthenticationChanged(false)
	}
}

// Logout stops any in-flight polling and clears the persisted credential
// unconditionally.
func (m *Manager) Logout() {
	slog.Info("Logging out")

	cb := m.callbacks()

	m.stopPolling(StateLoggedOut)
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()

	m.clearTokens()

	if cb.OnAuthenticationChanged != nil {
		cb.OnAuthenticationChanged(false)
	}
	if cb.OnStatus != nil {
		cb.OnStatus("Logged out")
	}
}

func (m *Manager) stopPolling(next State) {
	m.mu.Lock()
	wasPolling := m.state == StatePolling
	if m.poller != nil {
		m.poller.Stop()
		m.poller = nil
	}
	m.state = next
	cb := m.cb
	m.mu.Unlock()

	if wasPolling && cb.OnPollingChanged != nil {
		cb.OnPollingChanged(false)
	}
}

func (m *Manager) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, netmon.Classification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, netmon.UnknownError, fmt.Errorf("creating request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return m.guard.Do(req)
}

func (m *Manager) loadTokens() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accessToken = m.store.Get(settings.KeyAccessToken)
	m.refreshToken = m.store.Get(settings.KeyRefreshToken)
}

func (m *Manager) saveTokens() {
	m.mu.Lock()
	accessToken, refreshToken := m.accessToken, m.refreshToken
	m.mu.Unlock()

	if err := m.store.Set(settings.KeyAccessToken, accessToken); err != nil {
		slog.Error("Failed to persist access token", slog.Any("error", err))
	}
	if err := m.store.Set(settings.KeyRefreshToken, refreshToken); err != nil {
		slog.Error("Failed to persist refresh token", slog.Any("error", err))
	}
}

func (m *Manager) clearTokens() {
	m.mu.Lock()
	m.accessToken = ""
	m.refreshToken = ""
	m.state = StateLoggedOut
	m.mu.Unlock()

	_ = m.store.Delete(settings.KeyAccessToken)
	_ = m.store.Delete(settings.KeyRefreshToken)
}
