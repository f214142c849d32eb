package helix

import (
	"context"
	"encoding/json"
	"k4llisto/app/client/netmon"
	"k4llisto/app/client/reqguard"
	"k4llisto/pkg/config"
	"k4llisto/pkg/sched"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	cfg.Twitch.PublicClientID = "public-client-id"
	cfg.Twitch.HelixURL = server.URL

	monitor, err := netmon.New(nil)
	require.NoError(t, err)

	return &Client{
		cfg:   cfg,
		guard: reqguard.NewWithOptions(server.Client(), monitor, sched.Real(), reqguard.DefaultTimeout),
	}
}

func TestGetTopGames(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/games/top", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "20", r.URL.Query().Get("first"))
		require.Equal(t, "public-client-id", r.Header.Get("Client-Id"))
		require.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(GamesResponse{
			Data: []Game{{ID: "1", Name: "Some Game"}},
		})
	})

	client := newTestClient(t, mux)
	client.SetAuthToken("user-token")

	games, err := client.GetTopGames(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, games.Data, 1)
	require.Equal(t, "Some Game", games.Data[0].Name)
}

func TestGetStreamsForGamePagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/streams", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "123", r.URL.Query().Get("game_id"))
		require.Equal(t, "live", r.URL.Query().Get("type"))
		require.Equal(t, "cursor-1", r.URL.Query().Get("after"))

		_ = json.NewEncoder(w).Encode(StreamsResponse{
			Data:       []Stream{{UserLogin: "somechannel", ViewerCount: 42}},
			Pagination: &Pagination{Cursor: "cursor-2"},
		})
	})

	client := newTestClient(t, mux)

	streams, err := client.GetStreamsForGame(context.Background(), "123", 100, "cursor-1")
	require.NoError(t, err)
	require.Len(t, streams.Data, 1)
	require.Equal(t, "cursor-2", streams.Pagination.Cursor)
}

func TestGetStreamForUserNotLive(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/streams", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(StreamsResponse{})
	})

	client := newTestClient(t, mux)

	_, err := client.GetStreamForUser(context.Background(), "somechannel")
	require.Error(t, err)
	require.Contains(t, err.Error(), "somechannel")
}

func TestRequestFailureSurfacesBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"Too Many Requests"}`))
	})

	client := newTestClient(t, mux)

	_, err := client.GetUserInfo(context.Background(), "somechannel")
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
	require.Contains(t, err.Error(), "Too Many Requests")
}
