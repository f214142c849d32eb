package reqguard

import (
	"context"
	"io"
	"k4llisto/app/client/netmon"
	"k4llisto/pkg/sched"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoClassifiesSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	monitor, err := netmon.New(nil)
	require.NoError(t, err)

	guard := NewWithOptions(server.Client(), monitor, sched.Real(), DefaultTimeout)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, classification, err := guard.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, netmon.None, classification)
}

func TestDoClassifiesAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	monitor, err := netmon.New(nil)
	require.NoError(t, err)

	guard := NewWithOptions(server.Client(), monitor, sched.Real(), DefaultTimeout)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, classification, err := guard.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, netmon.AuthError, classification)
	require.True(t, monitor.Online(), "an authenticated rejection is not a connectivity problem")
}

func TestTimeoutAbortsAndReportsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Hang until the client gives up.
		<-r.Context().Done()
	}))
	defer server.Close()

	monitor, err := netmon.New(nil)
	require.NoError(t, err)

	guard := NewWithOptions(server.Client(), monitor, sched.Real(), 50*time.Millisecond)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	start := time.Now()
	resp, classification, err := guard.Do(req)
	require.Error(t, err)
	require.Nil(t, resp)
	require.Equal(t, netmon.NetworkError, classification)
	require.Less(t, time.Since(start), 5*time.Second)

	require.False(t, monitor.Online())
	require.True(t, monitor.HasActiveError())
}

func TestBodyReadableAfterDo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Stream the body in two chunks so it is not buffered before
		// Do returns.
		_, _ = w.Write([]byte("first "))
		w.(http.Flusher).Flush()
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("second"))
	}))
	defer server.Close()

	monitor, err := netmon.New(nil)
	require.NoError(t, err)

	guard := NewWithOptions(server.Client(), monitor, sched.Real(), DefaultTimeout)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, classification, err := guard.Do(req)
	require.NoError(t, err)
	require.Equal(t, netmon.None, classification)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "body must stay readable after Do returns")
	require.NoError(t, resp.Body.Close())
	require.Equal(t, "first second", string(body))
}

func TestCompletionBeatsTimer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	monitor, err := netmon.New(nil)
	require.NoError(t, err)

	clock := sched.NewFakeClock()
	guard := NewWithOptions(server.Client(), monitor, clock, DefaultTimeout)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, classification, err := guard.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, netmon.None, classification)

	// The timer was discarded on completion; a late fire is a no-op.
	require.Zero(t, clock.PendingTimers())
	clock.Advance(time.Minute)
	require.True(t, monitor.Online())
}
