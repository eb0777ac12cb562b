package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "lat": 33.44, "lon": -94.04,
  "current": {"temp": 87.1, "uvi": 6.1, "weather": [{"main": "Clear", "description": "clear sky"}]},
  "daily": [{"uvi": 9.16, "summary": "Expect a day of partly cloudy with rain"}]
}`

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(ClientOptions{APIKey: "k3y", BaseURL: srv.URL, Units: "imperial", Timeout: time.Second}, nil), srv
}

func TestLookup(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, oneCallPath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "33.44", q.Get("lat"))
		assert.Equal(t, "-94.04", q.Get("lon"))
		assert.Equal(t, "k3y", q.Get("appid"))
		assert.Equal(t, "imperial", q.Get("units"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sample))
	})

	r, err := c.Lookup(context.Background(), 33.44, -94.04)
	require.NoError(t, err)
	assert.Equal(t, 9.16, r.UVIndex)
	assert.Equal(t, 87.1, r.Temperature)
	assert.Equal(t, "Expect a day of partly cloudy with rain", r.Forecast)
}

func TestLookupForecastFallback(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"current": {"temp": 12, "weather": [{"main": "Rain", "description": "light rain"}]}, "daily": [{"uvi": 1.2}]}`))
	})

	r, err := c.Lookup(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "light rain", r.Forecast)
}

func TestLookupNoCache(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(sample))
	})

	for i := 0; i < 3; i++ {
		_, err := c.Lookup(context.Background(), 1, 2)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestLookupUpstreamErrors(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"unauthorized": {http.StatusUnauthorized, `{"cod": 401, "message": "Invalid API key"}`},
		"server":       {http.StatusBadGateway, `oops`},
		"malformed":    {http.StatusOK, `{"current":`},
		"missing uvi":  {http.StatusOK, `{"current": {"temp": 1}, "daily": []}`},
		"missing temp": {http.StatusOK, `{"daily": [{"uvi": 3}]}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.Lookup(context.Background(), 1, 2)
			var ue *UpstreamError
			require.True(t, errors.As(err, &ue), "got %v", err)
			assert.Equal(t, tc.status, ue.Status)
		})
	}
}

func TestLookupUnreachableHidesKey(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := c.Lookup(context.Background(), 1, 2)
	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Zero(t, ue.Status)
	assert.NotContains(t, err.Error(), "k3y")
}

func TestLookupHonoursContext(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Lookup(ctx, 1, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
