package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"k4llisto/app/client/netmon"
	"k4llisto/app/client/settings"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// Assumed integrity token lifetime when the server omits expires_in.
	defaultIntegrityLifetime = 16 * time.Hour

	// A token this close to expiry is treated as already invalid.
	integrityExpiryMargin = 5 * time.Minute

	integrityUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

func (r *Resolver) integrityValidLocked() bool {
	if r.integrityToken == "" || r.integrityExpiration.IsZero() {
		return false
	}

	return r.integrityExpiration.Add(-integrityExpiryMargin).After(r.clock.Now())
}

func (r *Resolver) getOrCreateDeviceIDLocked() string {
	if r.deviceID == "" {
		r.deviceID = uuid.NewString()
		slog.Info("Generated new device id", slog.String("device_id", r.deviceID))

		if err := r.store.Set(settings.KeyIntegrityDeviceID, r.deviceID); err != nil {
			slog.Error("Failed to persist device id", slog.Any("error", err))
		}
	}

	return r.deviceID
}

// requestIntegrity fetches a device-bound integrity token and caches it
// until expiry. Requires a session token; the endpoint rejects plain OAuth.
func (r *Resolver) requestIntegrity(ctx context.Context) error {
	r.mu.Lock()
	sessionToken := r.sessionToken
	deviceID := r.getOrCreateDeviceIDLocked()
	r.mu.Unlock()

	if sessionToken == "" {
		return fmt.Errorf("session token required for integrity request")
	}

	slog.Info("Requesting integrity token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Twitch.IntegrityURL, nil)
	if err != nil {
		return fmt.Errorf("creating integrity request failed: %w", err)
	}

	req.Header.Set("Client-ID", r.cfg.Twitch.PublicClientID)
	req.Header.Set("Authorization", "OAuth "+sessionToken)
	req.Header.Set("X-Device-Id", deviceID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", integrityUserAgent)

	resp, classification, err := r.guard.Do(req)
	if err != nil {
		return fmt.Errorf("integrity request failed: %w", err)
	}
	defer resp.Body.Close()

	if classification != netmon.None {
		return fmt.Errorf("integrity request rejected: HTTP %d", resp.StatusCode)
	}

	var integrity integrityResponse
	if err := json.NewDecoder(resp.Body).Decode(&integrity); err != nil {
		return fmt.Errorf("invalid integrity response: %w", err)
	}

	if integrity.Token == "" {
		return fmt.Errorf("integrity response contains no token")
	}

	expiration := r.clock.Now().Add(defaultIntegrityLifetime)
	if integrity.ExpiresIn > 0 {
		expiration = r.clock.Now().Add(time.Duration(integrity.ExpiresIn) * time.Second)
	}

	r.mu.Lock()
	r.integrityToken = integrity.Token
	r.integrityExpiration = expiration
	r.mu.Unlock()

	slog.Info("Got integrity token", slog.Time("expires_at", expiration))

	r.saveIntegrity()
	return nil
}

func (r *Resolver) loadIntegrity() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.integrityToken = r.store.Get(settings.KeyIntegrityToken)
	r.deviceID = r.store.Get(settings.KeyIntegrityDeviceID)

	if raw := r.store.Get(settings.KeyIntegrityExpiration); raw != "" {
		if expiration, err := time.Parse(time.RFC3339, raw); err == nil {
			r.integrityExpiration = expiration
		}
	}

	if r.integrityToken != "" && !r.integrityValidLocked() {
		slog.Debug("Cached integrity token expired, will request a new one")
		r.integrityToken = ""
		r.integrityExpiration = time.Time{}
	}
}

func (r *Resolver) saveIntegrity() {
	r.mu.Lock()
	token, expiration, deviceID := r.integrityToken, r.integrityExpiration, r.deviceID
	r.mu.Unlock()

	if err := r.store.Set(settings.KeyIntegrityToken, token); err != nil {
		slog.Error("Failed to persist integrity token", slog.Any("error", err))
	}
	if err := r.store.Set(settings.KeyIntegrityExpiration, expiration.Format(time.RFC3339)); err != nil {
		slog.Error("Failed to persist integrity expiration", slog.Any("error", err))
	}
	if err := r.store.Set(settings.KeyIntegrityDeviceID, deviceID); err != nil {
		slog.Error("Failed to persist device id", slog.Any("error", err))
	}
}
