package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"igmonitor/pkg/models"
)

// Result is what a strategy produced. Skipped lists post entries that were
// dropped during mapping.
type Result struct {
	Snapshot models.ProfileSnapshot
	Skipped  []error
}

// Strategy is one independently fallible way of reading a profile out of a
// raw page. Run must be pure.
type Strategy struct {
	Name string
	Run  func(raw string) (Result, bool)
}

// Strategy names, also used as the metrics label.
const (
	StrategySharedData     = "shared_data"
	StrategyAdditionalData = "additional_data"
	StrategyProfilePage    = "profile_page"
	StrategyScriptJSON     = "script_json"
	StrategyRegexFallback  = "regex_fallback"
)

// DefaultStrategies returns the strategies in priority order. The regex
// fallback is always last.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: StrategySharedData, Run: embeddedJSON(sharedDataPattern)},
		{Name: StrategyAdditionalData, Run: embeddedJSON(additionalDataPattern)},
		{Name: StrategyProfilePage, Run: embeddedJSON(profilePagePattern)},
		{Name: StrategyScriptJSON, Run: scriptJSON},
		{Name: StrategyRegexFallback, Run: regexFallback},
	}
}

// Each pattern ends right before the opening brace of the embedded blob.
var (
	sharedDataPattern     = regexp.MustCompile(`window\._sharedData\s*=\s*`)
	additionalDataPattern = regexp.MustCompile(`window\.__additionalDataLoaded\([^,]+,\s*`)
	profilePagePattern    = regexp.MustCompile(`"profilePage_(\d+)"\s*:\s*`)
)

// embeddedJSON builds a strategy that tries every textual match of pattern
// in turn. The first match whose JSON holds a user object wins.
func embeddedJSON(pattern *regexp.Regexp) func(string) (Result, bool) {
	return func(raw string) (Result, bool) {
		for _, loc := range pattern.FindAllStringSubmatchIndex(raw, -1) {
			doc, ok := decodeObjectAt(raw, loc[1])
			if !ok {
				continue
			}
			user, ok := locateUser(doc)
			if !ok {
				continue
			}
			snap, skipped := mapUser(user)
			// profilePage_<id> carries the numeric id in the key itself
			if snap.UserID == "" && len(loc) >= 4 && loc[2] >= 0 {
				snap.UserID = raw[loc[2]:loc[3]]
			}
			return Result{Snapshot: snap, Skipped: skipped}, true
		}
		return Result{}, false
	}
}

// decodeObjectAt decodes exactly one JSON object starting at offset. Trailing
// page content after the object is ignored.
func decodeObjectAt(raw string, offset int) (map[string]any, bool) {
	if offset >= len(raw) || raw[offset] != '{' {
		return nil, false
	}
	return decodeObject(raw[offset:])
}

func decodeObject(s string) (map[string]any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, false
	}
	return doc, true
}

// maxSearchDepth bounds the recursive user search inside script payloads.
const maxSearchDepth = 12

// scriptJSON looks inside <script type="application/json"> and ld+json
// bodies for a user object, searching nested containers as well.
func scriptJSON(raw string) (Result, bool) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return Result{}, false
	}

	for _, body := range jsonScripts(doc) {
		var v any
		dec := json.NewDecoder(strings.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			continue
		}
		if user, ok := findUser(v, 0); ok {
			snap, skipped := mapUser(user)
			return Result{Snapshot: snap, Skipped: skipped}, true
		}
	}
	return Result{}, false
}

func jsonScripts(root *html.Node) []string {
	var bodies []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script && isJSONScript(n) {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				bodies = append(bodies, n.FirstChild.Data)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return bodies
}

func isJSONScript(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "type" {
			t := strings.ToLower(strings.TrimSpace(a.Val))
			return t == "application/json" || t == "application/ld+json"
		}
	}
	return false
}

// findUser applies the known user paths at every level of v, depth first.
// A user object must at least carry a username.
func findUser(v any, depth int) (map[string]any, bool) {
	if depth > maxSearchDepth {
		return nil, false
	}
	switch node := v.(type) {
	case map[string]any:
		if user, ok := locateUser(node); ok && asString(user["username"]) != "" {
			return user, true
		}
		for _, child := range node {
			if user, ok := findUser(child, depth+1); ok {
				return user, true
			}
		}
	case []any:
		for _, child := range node {
			if user, ok := findUser(child, depth+1); ok {
				return user, true
			}
		}
	}
	return nil, false
}

// Fallback patterns accept JSON-escaped content inside the quotes.
var (
	usernamePattern  = regexp.MustCompile(`"username"\s*:\s*"((?:[^"\\]|\\.)+)"`)
	biographyPattern = regexp.MustCompile(`"biography"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	fullNamePattern  = regexp.MustCompile(`"full_name"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	isPrivatePattern = regexp.MustCompile(`"is_private"\s*:\s*(true|false)`)
)

// regexFallback reads the handful of fields that survive markup drift. It
// never fills posts or counts.
func regexFallback(raw string) (Result, bool) {
	var snap models.ProfileSnapshot
	matched := false

	if m := usernamePattern.FindStringSubmatch(raw); m != nil {
		snap.Username = unescape(m[1])
		matched = true
	}
	if m := biographyPattern.FindStringSubmatch(raw); m != nil {
		snap.Biography = unescape(m[1])
		matched = true
	}
	if m := fullNamePattern.FindStringSubmatch(raw); m != nil {
		snap.FullName = unescape(m[1])
		matched = true
	}
	if m := isPrivatePattern.FindStringSubmatch(raw); m != nil {
		snap.IsPrivate = m[1] == "true"
		matched = true
	}
	if !matched {
		return Result{}, false
	}
	return Result{Snapshot: snap}, true
}

// unescape decodes a JSON string body, keeping the raw text if it is not
// valid JSON.
func unescape(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
