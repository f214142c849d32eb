package netmon

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"

	"github.com/samber/do"
)

// Classification is the outcome category of a single request. It decides
// whether a failure may ever touch stored credentials: only AuthError can.
type Classification int

const (
	None Classification = iota
	NetworkError
	AuthError
	ServerError
	ClientError
	UnknownError
)

func (c Classification) String() string {
	switch c {
	case None:
		return "none"
	case NetworkError:
		return "network_error"
	case AuthError:
		return "auth_error"
	case ServerError:
		return "server_error"
	case ClientError:
		return "client_error"
	default:
		return "unknown_error"
	}
}

// Callbacks deliver state transitions to interested components (UI banners,
// retry prompts). All fields are optional.
type Callbacks struct {
	OnOnlineChanged      func(online bool)
	OnConnectionRestored func()
	OnConnectionLost     func()
	OnActiveErrorChanged func(hasError bool)
	OnStatusMessage      func(message string)
}

// Monitor is the single authority on whether a failed request means "no
// internet", "server trouble" or "credentials are invalid". It never retries
// anything itself; callers consult IsRetryable and decide.
type Monitor struct {
	mu            sync.Mutex
	online        bool
	activeError   bool
	statusMessage string
	cb            Callbacks
}

func New(di *do.Injector) (*Monitor, error) {
	return &Monitor{
		online:        true,
		statusMessage: "Online",
	}, nil
}

func (m *Monitor) SetCallbacks(cb Callbacks) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cb = cb
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.online
}

func (m *Monitor) HasActiveError() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.activeError
}

func (m *Monitor) StatusMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.statusMessage
}

// Classify maps one request outcome onto the error taxonomy and updates the
// online/offline state as a side effect. A transport-level connectivity
// failure flips the monitor offline once; any success flips it back online.
func (m *Monitor) Classify(resp *http.Response, err error) Classification {
	if err != nil {
		if isConnectivityError(err) || isTLSError(err) {
			// TLS failures ride the network classification: a broken
			// middlebox must not be able to invalidate a credential.
			m.mu.Lock()
			fire := m.markOfflineLocked()
			fire = append(fire, m.reportErrorLocked(NetworkError)...)
			m.mu.Unlock()
			run(fire)

			return NetworkError
		}

		return UnknownError
	}

	if resp == nil {
		slog.Warn("Classify called without response or error")
		return UnknownError
	}

	status := resp.StatusCode

	if status >= 200 && status < 300 {
		m.mu.Lock()
		fire := m.clearErrorLocked()
		fire = append(fire, m.markOnlineLocked()...)
		m.mu.Unlock()
		run(fire)

		return None
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return AuthError
	case status >= 500 && status < 600:
		return ServerError
	case status >= 400 && status < 500:
		return ClientError
	default:
		return UnknownError
	}
}

// IsRetryable reports whether the failure is transient. NetworkError and
// ServerError resolve themselves; everything else needs caller action.
func (m *Monitor) IsRetryable(c Classification) bool {
	return c == NetworkError || c == ServerError
}

// ReportSuccess clears any active error and flips the monitor online. A
// successful request is stronger evidence than any OS connectivity signal,
// which can report false negatives under confinement.
func (m *Monitor) ReportSuccess() {
	m.mu.Lock()
	fire := m.clearErrorLocked()
	fire = append(fire, m.markOnlineLocked()...)
	m.mu.Unlock()
	run(fire)
}

func (m *Monitor) ReportError(c Classification) {
	if c != NetworkError {
		return
	}

	m.mu.Lock()
	fire := m.reportErrorLocked(c)
	m.mu.Unlock()
	run(fire)
}

func (m *Monitor) ClearError() {
	m.mu.Lock()
	fire := m.clearErrorLocked()
	m.mu.Unlock()
	run(fire)
}

// ErrorMessage renders a user-facing message for one request outcome.
func (m *Monitor) ErrorMessage(resp *http.Response, err error) string {
	switch m.Classify(resp, err) {
	case None:
		return "Request successful"
	case NetworkError:
		return "No internet connection - Please check your network"
	case AuthError:
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return "Authentication failed - Token expired, please login again"
		}
		return "Access denied - Token doesn't have required permissions"
	case ServerError:
		return "Twitch servers are having issues - Please try again later"
	case ClientError:
		return fmt.Sprintf("Request error (HTTP %d)", resp.StatusCode)
	default:
		if err != nil {
			return "An unknown error occurred: " + err.Error()
		}
		return "An unknown error occurred"
	}
}

func (m *Monitor) markOfflineLocked() []func() {
	if !m.online {
		return nil
	}

	m.online = false
	m.statusMessage = "Offline - No internet connection"
	slog.Warn("Connection lost")

	cb := m.cb
	return []func(){
		func() {
			if cb.OnOnlineChanged != nil {
				cb.OnOnlineChanged(false)
			}
			if cb.OnConnectionLost != nil {
				cb.OnConnectionLost()
			}
			if cb.OnStatusMessage != nil {
				cb.OnStatusMessage("Offline - No internet connection")
			}
		},
	}
}

func (m *Monitor) markOnlineLocked() []func() {
	if m.online {
		return nil
	}

	m.online = true
	m.statusMessage = "Online"
	slog.Info("Connection restored")

	cb := m.cb
	return []func(){
		func() {
			if cb.OnOnlineChanged != nil {
				cb.OnOnlineChanged(true)
			}
			if cb.OnConnectionRestored != nil {
				cb.OnConnectionRestored()
			}
			if cb.OnStatusMessage != nil {
				cb.OnStatusMessage("Online")
			}
		},
	}
}

func (m *Monitor) reportErrorLocked(c Classification) []func() {
	if c != NetworkError || m.activeError {
		return nil
	}

	m.activeError = true
	cb := m.cb
	return []func(){
		func() {
			if cb.OnActiveErrorChanged != nil {
				cb.OnActiveErrorChanged(true)
			}
		},
	}
}

func (m *Monitor) clearErrorLocked() []func() {
	if !m.activeError {
		return nil
	}

	m.activeError = false
	cb := m.cb
	return []func(){
		func() {
			if cb.OnActiveErrorChanged != nil {
				cb.OnActiveErrorChanged(false)
			}
		},
	}
}

func run(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

func isConnectivityError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

func isTLSError(err error) bool {
	var recordErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &recordErr) || errors.As(err, &certErr) {
		return true
	}

	var (
		unknownAuthority x509.UnknownAuthorityError
		invalidCert      x509.CertificateInvalidError
		hostnameErr      x509.HostnameError
	)
	return errors.As(err, &unknownAuthority) ||
		errors.As(err, &invalidCert) ||
		errors.As(err, &hostnameErr)
}
