package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	errs "igmonitor/pkg/errors"
	"igmonitor/pkg/extract"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/metrics"
	"igmonitor/pkg/models"
	"igmonitor/pkg/ratelimit"
	"igmonitor/pkg/retry"
	"igmonitor/pkg/scheduler"
	"igmonitor/pkg/session"
)

// ErrNotImplemented is returned by probers with no data source behind them
var ErrNotImplemented = errors.New("story and live probing require elevated access and are not implemented")

// ErrAccessDenied ends an advanced run whose target is not public
var ErrAccessDenied = errors.New("profile is not publicly accessible")

// Target identifies the profile being probed
type Target struct {
	Username string
	UserID   string
}

// Prober checks the auxiliary surfaces of a profile. One call serves both
// story and live status.
type Prober interface {
	Probe(ctx context.Context, target Target) (models.ProbeResult, error)
}

// UnimplementedProber never observes anything
type UnimplementedProber struct{}

func (UnimplementedProber) Probe(ctx context.Context, target Target) (models.ProbeResult, error) {
	return models.ProbeResult{}, ErrNotImplemented
}

// ProbeAccess classifies how reachable the profile page is. A 404 is
// restricted, an extracted private flag is private. Other failures are
// returned as errors.
func ProbeAccess(ctx context.Context, fetcher scheduler.Fetcher, ex *extract.Extractor, url string) (models.AccessLevel, models.ProfileSnapshot, error) {
	body, err := fetcher.Fetch(ctx, url)
	if err != nil {
		if errs.Is(err, errs.ErrorTypeNotFoundOrPrivate) {
			return models.AccessRestricted, models.ProfileSnapshot{}, nil
		}
		return "", models.ProfileSnapshot{}, err
	}
	snap, ok := ex.Extract(string(body))
	if !ok {
		return "", models.ProfileSnapshot{}, errs.ParseExhausted()
	}
	if snap.IsPrivate {
		return models.AccessPrivate, snap, nil
	}
	return models.AccessPublic, snap, nil
}

// Requester is the part of scheduler.Scheduler the feed prober needs
type Requester interface {
	Do(ctx context.Context, url string, extra http.Header) ([]byte, error)
}

// RequesterFunc adapts a function to Requester
type RequesterFunc func(ctx context.Context, url string, extra http.Header) ([]byte, error)

func (f RequesterFunc) Do(ctx context.Context, url string, extra http.Header) ([]byte, error) {
	return f(ctx, url, extra)
}

// liveMediaType marks a live item inside a story reel
const liveMediaType = 4

// FeedProber reads the authenticated story feed of a user
type FeedProber struct {
	requester Requester
	cred      *session.Credential
	pacer     ratelimit.Limiter
	baseURL   string
	attempts  int
	backoff   retry.BackoffStrategy
	logger    logger.Logger
}

// FeedOption customises a FeedProber
type FeedOption func(*FeedProber)

// WithFeedBaseURL points the prober at another API origin
func WithFeedBaseURL(base string) FeedOption {
	return func(f *FeedProber) { f.baseURL = base }
}

// WithPacer replaces the request pacer
func WithPacer(l ratelimit.Limiter) FeedOption {
	return func(f *FeedProber) { f.pacer = l }
}

// WithRetry sets the attempt count and backoff for transport failures
func WithRetry(attempts int, backoff retry.BackoffStrategy) FeedOption {
	return func(f *FeedProber) {
		f.attempts = attempts
		f.backoff = backoff
	}
}

// WithFeedLogger sets the logger
func WithFeedLogger(l logger.Logger) FeedOption {
	return func(f *FeedProber) { f.logger = l }
}

// NewFeedProber creates a prober authenticated with cred
func NewFeedProber(requester Requester, cred *session.Credential, rps float64, opts ...FeedOption) *FeedProber {
	f := &FeedProber{
		requester: requester,
		cred:      cred,
		pacer:     ratelimit.NewPacer(rps, 1),
		baseURL:   scheduler.MobileAPIBaseURL,
		attempts:  3,
		backoff:   retry.DefaultExponentialBackoff(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logger.GetLogger()
	}
	return f
}

func (f *FeedProber) headers() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("X-IG-App-ID", scheduler.WebAppID)
	if cookie := f.cred.CookieHeader(); cookie != "" {
		h.Set("Cookie", cookie)
	}
	if f.cred.CSRFToken != "" {
		h.Set("X-CSRFToken", f.cred.CSRFToken)
	}
	return h
}

// Probe fetches the story feed once. Only transport failures are retried.
func (f *FeedProber) Probe(ctx context.Context, target Target) (models.ProbeResult, error) {
	if target.UserID == "" {
		return models.ProbeResult{}, errs.Internal("user id of %s is unknown", target.Username)
	}
	if err := f.pacer.Wait(ctx); err != nil {
		return models.ProbeResult{}, err
	}

	url := scheduler.StoryFeedURL(f.baseURL, target.UserID)
	body, err := retry.DoWithResult(func() ([]byte, error) {
		return f.requester.Do(ctx, url, f.headers())
	}, &retry.Config{
		MaxAttempts: f.attempts,
		Backoff:     f.backoff,
		Context:     ctx,
		Logger:      f.logger,
		RetryIf: func(err error) bool {
			return errs.Is(err, errs.ErrorTypeTransport)
		},
	})
	if err != nil {
		metrics.IncProbe("feed", "error")
		return models.ProbeResult{}, err
	}

	result, err := parseFeed(body)
	if err != nil {
		metrics.IncProbe("feed", "error")
		return models.ProbeResult{}, err
	}
	metrics.IncProbe("feed", "ok")
	return result, nil
}

type feedResponse struct {
	Reel *struct {
		Items []feedItem `json:"items"`
	} `json:"reel"`
	Broadcast *struct {
		ID          any `json:"id"`
		ViewerCount any `json:"viewer_count"`
	} `json:"broadcast"`
}

type feedItem struct {
	ID             any   `json:"id"`
	PK             any   `json:"pk"`
	MediaType      int   `json:"media_type"`
	TakenAt        int64 `json:"taken_at"`
	ImageVersions2 struct {
		Candidates []struct {
			URL string `json:"url"`
		} `json:"candidates"`
	} `json:"image_versions2"`
	VideoVersions []struct {
		URL string `json:"url"`
	} `json:"video_versions"`
}

// parseFeed maps a story feed response. A broadcast object or a live item
// in the reel both mean the user is live.
func parseFeed(body []byte) (models.ProbeResult, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var resp feedResponse
	if err := dec.Decode(&resp); err != nil {
		return models.ProbeResult{}, errs.Internal("malformed story feed: %v", err)
	}

	var result models.ProbeResult
	if resp.Broadcast != nil {
		result.Live = &models.LiveBroadcast{
			ID:          idString(resp.Broadcast.ID),
			ViewerCount: uintOf(resp.Broadcast.ViewerCount),
		}
	}
	if resp.Reel == nil {
		return result, nil
	}

	for _, item := range resp.Reel.Items {
		id := idString(item.ID)
		if id == "" {
			id = idString(item.PK)
		}
		if item.MediaType == liveMediaType {
			if result.Live == nil {
				result.Live = &models.LiveBroadcast{ID: id}
			}
			continue
		}
		if id == "" {
			continue
		}

		story := models.StoryItem{ID: id, MediaType: storyMediaType(item.MediaType)}
		if item.TakenAt > 0 {
			story.TakenAt = time.Unix(item.TakenAt, 0).UTC()
		}
		switch {
		case len(item.VideoVersions) > 0:
			story.URL = item.VideoVersions[0].URL
		case len(item.ImageVersions2.Candidates) > 0:
			story.URL = item.ImageVersions2.Candidates[0].URL
		}
		result.Stories = append(result.Stories, story)
	}
	return result, nil
}

func storyMediaType(t int) models.MediaType {
	switch t {
	case 1:
		return models.MediaTypePhoto
	case 2:
		return models.MediaTypeVideo
	case 8:
		return models.MediaTypeCarousel
	default:
		return models.MediaTypeUnknown
	}
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

func uintOf(v any) uint64 {
	if n, ok := v.(json.Number); ok {
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u
		}
	}
	return 0
}
