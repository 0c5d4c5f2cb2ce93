package scheduler

import (
	"fmt"
	"math"
	"strings"
	"time"

	"igmonitor/pkg/config"
)

const (
	// BaseURL is the public web origin
	BaseURL = "https://www.instagram.com"

	// MobileAPIBaseURL serves the authenticated story feed
	MobileAPIBaseURL = "https://i.instagram.com"

	// WebAppID identifies the web client to the mobile API
	WebAppID = "567067343352427"
)

// ProfileURL constructs the public profile page URL for a user
func ProfileURL(username string) string {
	return ProfileURLAt(BaseURL, username)
}

// ProfileURLAt is ProfileURL against another origin. An empty base means
// BaseURL.
func ProfileURLAt(base, username string) string {
	if username == "" {
		return ""
	}
	if base == "" {
		base = BaseURL
	}
	return fmt.Sprintf("%s/%s/", strings.TrimRight(base, "/"), username)
}

// StoryFeedURL constructs the story feed endpoint for a numeric user id
func StoryFeedURL(base, userID string) string {
	if base == "" {
		base = MobileAPIBaseURL
	}
	return fmt.Sprintf("%s/api/v1/feed/user/%s/story/", strings.TrimRight(base, "/"), userID)
}

// SanitizeUsername strips a leading '@', surrounding spaces and trailing
// slashes, so pasted handles and profile links both work.
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, BaseURL+"/")
	username = strings.TrimPrefix(username, "@")
	return strings.TrimRight(username, "/ ")
}

// ForInterval sizes the request ceiling for a caller that issues one request
// every interval, with a quarter extra for retries. The configured ceiling
// is kept when it is already larger.
func ForInterval(cfg config.SchedulerConfig, interval time.Duration) config.SchedulerConfig {
	if interval <= 0 || cfg.Window <= 0 {
		return cfg
	}
	needed := int(math.Ceil(float64(cfg.Window) / float64(interval)))
	needed += (needed + 3) / 4
	if needed > cfg.HourlyCeiling {
		cfg.HourlyCeiling = needed
	}
	return cfg
}
