package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igmonitor/pkg/config"
	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/ratelimit"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func newTestScheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	cfg := config.DefaultConfig().Scheduler
	base := []Option{
		WithSleep(noSleep),
		WithHeaders(StaticHeaders{"User-Agent": "test-agent"}),
		WithLogger(logger.NewNopLogger()),
	}
	return New(cfg, append(base, opts...)...)
}

func TestFetchStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantType errs.ErrorType
		wantCode int
	}{
		{"ok", http.StatusOK, "", 0},
		{"throttled", http.StatusTooManyRequests, errs.ErrorTypeRateLimited, 429},
		{"missing", http.StatusNotFound, errs.ErrorTypeNotFoundOrPrivate, 404},
		{"server error", http.StatusServiceUnavailable, errs.ErrorTypeUnexpectedStatus, 503},
		{"forbidden", http.StatusForbidden, errs.ErrorTypeUnexpectedStatus, 403},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("<html>page</html>"))
			}))
			defer srv.Close()

			body, err := newTestScheduler(t).Fetch(context.Background(), srv.URL)
			if tt.wantType == "" {
				require.NoError(t, err)
				assert.Equal(t, "<html>page</html>", string(body))
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantType, errs.TypeOf(err))
			var typed *errs.Error
			require.ErrorAs(t, err, &typed)
			assert.Equal(t, tt.wantCode, typed.Code)
		})
	}
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestScheduler(t).Fetch(context.Background(), url)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeTransport))
}

func TestFetchTimeoutIsTransport(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	s := newTestScheduler(t, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := s.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeTransport))
}

func TestFetchSendsHeaders(t *testing.T) {
	var gotUA, gotExtra string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotExtra = r.Header.Get("X-IG-App-ID")
	}))
	defer srv.Close()

	s := newTestScheduler(t)
	_, err := s.Do(context.Background(), srv.URL, http.Header{"X-Ig-App-Id": {WebAppID}})
	require.NoError(t, err)
	assert.Equal(t, "test-agent", gotUA)
	assert.Equal(t, WebAppID, gotExtra)
}

func TestFetchCountsEveryAttempt(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1)%2 == 0 {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	s := newTestScheduler(t)
	for i := 0; i < 4; i++ {
		_, _ = s.Fetch(context.Background(), srv.URL)
	}
	assert.Equal(t, 4, s.Budget().State().RequestCount)
}

func TestFetchBlocksWhenBudgetExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	var cooldowns []time.Duration
	budget := ratelimit.NewBudget(15, time.Hour, 5*time.Minute,
		ratelimit.WithSleep(func(ctx context.Context, d time.Duration) error {
			cooldowns = append(cooldowns, d)
			return nil
		}))
	s := newTestScheduler(t, WithBudget(budget))

	for i := 0; i < 16; i++ {
		_, err := s.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		if i < 15 {
			assert.Empty(t, cooldowns, "attempt %d should not pause", i+1)
		}
	}
	assert.Equal(t, []time.Duration{5 * time.Minute}, cooldowns)
}

func TestFetchCancelledDuringDelay(t *testing.T) {
	s := New(config.DefaultConfig().Scheduler, WithLogger(logger.NewNopLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Fetch(ctx, "http://127.0.0.1:1/")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRandomHeaders(t *testing.T) {
	h := NewRandomHeaders().Headers()
	assert.Contains(t, DefaultUserAgents, h.Get("User-Agent"))
	assert.Equal(t, "document", h.Get("Sec-Fetch-Dest"))
	assert.Empty(t, h.Get("Accept-Encoding"))
}

func TestEndpoints(t *testing.T) {
	assert.Equal(t, "https://www.instagram.com/natgeo/", ProfileURL("natgeo"))
	assert.Equal(t, "", ProfileURL(""))
	assert.Equal(t, "https://i.instagram.com/api/v1/feed/user/42/story/", StoryFeedURL("", "42"))
	assert.Equal(t, "http://x/api/v1/feed/user/42/story/", StoryFeedURL("http://x/", "42"))
	assert.Equal(t, "natgeo", SanitizeUsername(" @natgeo/ "))
	assert.Equal(t, "natgeo", SanitizeUsername("https://www.instagram.com/natgeo/"))
}

func TestProfileURLAt(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:9/natgeo/", ProfileURLAt("http://127.0.0.1:9/", "natgeo"))
	assert.Equal(t, ProfileURL("natgeo"), ProfileURLAt("", "natgeo"))
	assert.Equal(t, "", ProfileURLAt("http://x", ""))
}

func TestForIntervalSizesCeiling(t *testing.T) {
	base := config.DefaultConfig().Scheduler

	feed := ForInterval(base, 30*time.Second)
	assert.Equal(t, 150, feed.HourlyCeiling)
	assert.Equal(t, base.Window, feed.Window)
	assert.Equal(t, base.Cooldown, feed.Cooldown)

	// 600s of probing at 30s never reaches the cooldown
	budget := ratelimit.NewBudget(feed.HourlyCeiling, feed.Window, feed.Cooldown,
		ratelimit.WithSleep(func(ctx context.Context, d time.Duration) error {
			t.Fatalf("cooldown of %s hit", d)
			return nil
		}))
	for i := 0; i < 20; i++ {
		require.NoError(t, budget.Acquire(context.Background()))
	}

	assert.Equal(t, base.HourlyCeiling, ForInterval(base, 10*time.Minute).HourlyCeiling)
	assert.Equal(t, base, ForInterval(base, 0))
}
