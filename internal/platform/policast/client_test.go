package policast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/policast/internal/domain"
)

func TestDiscoverAndLeaderboard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/admin-auto-discover":
			_, _ = w.Write([]byte(`{"markets":[1,2]}`))
		case "/api/leaderboard":
			assert.Equal(t, "10", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`[{"address":"0x1","pnl":"3"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", 0)
	body, err := c.Discover(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"markets":[1,2]}`, string(body))

	body, err = c.Leaderboard(context.Background(), url.Values{"limit": {"10"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"address":"0x1","pnl":"3"}]`, string(body))
}

func TestStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/leaderboard" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	_, err := c.Leaderboard(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	_, err = c.Discover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not JSON")
}

func TestMissingBaseURL(t *testing.T) {
	_, err := NewClient("", 0).Discover(context.Background())
	require.Error(t, err)
}
