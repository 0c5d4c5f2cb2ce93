package models

import (
	"fmt"
	"time"
)

// MediaType classifies a post's media.
type MediaType string

const (
	MediaTypePhoto    MediaType = "photo"
	MediaTypeVideo    MediaType = "video"
	MediaTypeCarousel MediaType = "carousel"
	MediaTypeUnknown  MediaType = "unknown"
)

// MaxRecentPosts bounds ProfileSnapshot.RecentPosts.
const MaxRecentPosts = 5

// PostSummary is a normalized view of one timeline post.
type PostSummary struct {
	ID           string     `json:"id"`
	Shortcode    string     `json:"shortcode,omitempty"`
	URL          string     `json:"url,omitempty"`
	Caption      string     `json:"caption"`
	LikeCount    uint64     `json:"like_count"`
	CommentCount uint64     `json:"comment_count"`
	MediaType    MediaType  `json:"media_type"`
	TakenAt      *time.Time `json:"taken_at,omitempty"`
}

// ProfileSnapshot is a complete normalized view of a profile at one point in
// time. RecentPosts is ordered most-recent-first.
type ProfileSnapshot struct {
	UserID         string        `json:"user_id,omitempty"`
	Username       string        `json:"username"`
	FullName       string        `json:"full_name"`
	Biography      string        `json:"biography"`
	IsPrivate      bool          `json:"is_private"`
	IsVerified     bool          `json:"is_verified"`
	FollowersCount uint64        `json:"followers_count"`
	FollowingCount uint64        `json:"following_count"`
	PostsCount     uint64        `json:"posts_count"`
	RecentPosts    []PostSummary `json:"recent_posts"`
}

// LatestPost returns the newest post, if any.
func (s ProfileSnapshot) LatestPost() (PostSummary, bool) {
	if len(s.RecentPosts) == 0 {
		return PostSummary{}, false
	}
	return s.RecentPosts[0], true
}

// Clone returns a deep copy so a stored snapshot cannot be mutated through
// the caller's slice.
func (s ProfileSnapshot) Clone() ProfileSnapshot {
	out := s
	if s.RecentPosts != nil {
		out.RecentPosts = make([]PostSummary, len(s.RecentPosts))
		for i, p := range s.RecentPosts {
			if p.TakenAt != nil {
				t := *p.TakenAt
				p.TakenAt = &t
			}
			out.RecentPosts[i] = p
		}
	}
	return out
}

// PostURL builds the canonical permalink for a shortcode.
func PostURL(shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("https://www.instagram.com/p/%s/", shortcode)
}

// AccessLevel is the result of the advanced-mode profile probe.
type AccessLevel string

const (
	AccessPublic     AccessLevel = "public"
	AccessPrivate    AccessLevel = "private"
	AccessRestricted AccessLevel = "restricted"
)

// StoryItem is one entry of a user's story reel.
type StoryItem struct {
	ID        string    `json:"id"`
	MediaType MediaType `json:"media_type"`
	URL       string    `json:"url,omitempty"`
	TakenAt   time.Time `json:"taken_at"`
}

// LiveBroadcast describes an active live session.
type LiveBroadcast struct {
	ID          string `json:"id,omitempty"`
	ViewerCount uint64 `json:"viewer_count,omitempty"`
}

// ProbeResult is what a story/live probe observed. A nil Live means no
// broadcast is active.
type ProbeResult struct {
	Stories []StoryItem
	Live    *LiveBroadcast
}
