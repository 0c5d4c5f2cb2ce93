package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"igmonitor/pkg/models"
)

// userPaths are the known locations of the profile user object, in the
// order they are tried.
var userPaths = [][]string{
	{"entry_data", "ProfilePage", "0", "graphql", "user"},
	{"user"},
	{"data", "user"},
}

// locateUser returns the first non-empty user object found along userPaths.
func locateUser(doc any) (map[string]any, bool) {
	for _, path := range userPaths {
		if user, ok := asMap(lookup(doc, path...)); ok && len(user) > 0 {
			return user, true
		}
	}
	return nil, false
}

// lookup walks maps by key and slices by decimal index.
func lookup(v any, path ...string) any {
	for _, key := range path {
		switch node := v.(type) {
		case map[string]any:
			v = node[key]
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			v = node[i]
		default:
			return nil
		}
	}
	return v
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// asUint reads a non-negative integer, yielding 0 for anything else.
func asUint(v any) uint64 {
	switch n := v.(type) {
	case json.Number:
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u
		}
		if f, err := n.Float64(); err == nil && f > 0 {
			return uint64(f)
		}
	case float64:
		if n > 0 {
			return uint64(n)
		}
	}
	return 0
}

// edgeCount reads obj[edge].count, which is 0 when either level is absent.
func edgeCount(obj map[string]any, edge string) uint64 {
	return asUint(lookup(obj, edge, "count"))
}

// mapUser normalizes a raw user object. Missing fields default instead of
// failing. The returned errors describe post entries that were skipped.
func mapUser(user map[string]any) (models.ProfileSnapshot, []error) {
	snap := models.ProfileSnapshot{
		UserID:         asString(user["id"]),
		Username:       asString(user["username"]),
		FullName:       asString(user["full_name"]),
		Biography:      asString(user["biography"]),
		IsPrivate:      asBool(user["is_private"]),
		IsVerified:     asBool(user["is_verified"]),
		FollowersCount: edgeCount(user, "edge_followed_by"),
		FollowingCount: edgeCount(user, "edge_follow"),
		PostsCount:     edgeCount(user, "edge_owner_to_timeline_media"),
	}
	if snap.IsPrivate {
		return snap, nil
	}

	edges, _ := lookup(user, "edge_owner_to_timeline_media", "edges").([]any)
	if len(edges) > models.MaxRecentPosts {
		edges = edges[:models.MaxRecentPosts]
	}

	var skipped []error
	for i, edge := range edges {
		post, err := mapPost(edge)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("post %d: %w", i, err))
			continue
		}
		snap.RecentPosts = append(snap.RecentPosts, post)
	}
	return snap, skipped
}

// mapPost maps one timeline edge. A panic while mapping is turned into an
// error so one bad entry cannot take the batch down.
func mapPost(edge any) (post models.PostSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed post entry: %v", r)
		}
	}()

	node, ok := asMap(lookup(edge, "node"))
	if !ok {
		return models.PostSummary{}, fmt.Errorf("edge has no node object")
	}

	post = models.PostSummary{
		ID:           asString(node["id"]),
		Shortcode:    asString(node["shortcode"]),
		LikeCount:    edgeCount(node, "edge_liked_by"),
		CommentCount: edgeCount(node, "edge_media_to_comment"),
		MediaType:    mediaType(node),
		Caption:      asString(lookup(node, "edge_media_to_caption", "edges", "0", "node", "text")),
	}
	post.URL = models.PostURL(post.Shortcode)
	if ts := asUint(node["taken_at_timestamp"]); ts > 0 {
		t := time.Unix(int64(ts), 0).UTC()
		post.TakenAt = &t
	}
	return post, nil
}

func mediaType(node map[string]any) models.MediaType {
	if v, present := node["is_video"]; present && v != nil {
		isVideo, ok := v.(bool)
		if !ok {
			return models.MediaTypeUnknown
		}
		if isVideo {
			return models.MediaTypeVideo
		}
	}
	if children, present := node["edge_sidecar_to_children"]; present && truthy(children) {
		return models.MediaTypeCarousel
	}
	return models.MediaTypePhoto
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	case string:
		return t != ""
	default:
		return true
	}
}
