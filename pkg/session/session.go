// Package session validates the credential file advanced mode runs with.
//
// The file is an opaque JSON object written by a separate setup tool. This
// package only reads it: a missing file, unparseable JSON or an absent
// username are hard failures, while an old file is merely a warning.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	errs "igmonitor/pkg/errors"
)

// DefaultMaxAge is how old a credential file may get before a warning
const DefaultMaxAge = 7 * 24 * time.Hour

// Reason classifies a hard validation failure
type Reason string

const (
	ReasonMissingFile   Reason = "missing_file"
	ReasonUnreadable    Reason = "unreadable"
	ReasonMalformedJSON Reason = "malformed_json"
	ReasonMissingField  Reason = "missing_field"
)

// ValidationError is a hard failure. It matches errs.ErrorTypeSessionInvalid.
type ValidationError struct {
	Reason Reason
	Path   string
	Field  string
	Err    error
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonMissingFile:
		return fmt.Sprintf("credential file %s does not exist", e.Path)
	case ReasonMissingField:
		return fmt.Sprintf("credential file %s is missing required field %q", e.Path, e.Field)
	case ReasonMalformedJSON:
		return fmt.Sprintf("credential file %s is not a JSON object: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("credential file %s cannot be read: %v", e.Path, e.Err)
	}
}

func (e *ValidationError) Unwrap() []error {
	typed := &errs.Error{Type: errs.ErrorTypeSessionInvalid, Message: string(e.Reason)}
	if e.Err == nil {
		return []error{typed}
	}
	return []error{typed, e.Err}
}

// ReasonOf returns the failure reason of err, or "" for other errors
func ReasonOf(err error) Reason {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Reason
	}
	return ""
}

// Warning is a soft problem; the run continues
type Warning struct {
	Message string
	Age     time.Duration
}

// Credential is the parsed credential file. Only Username is guaranteed.
type Credential struct {
	Username  string
	SessionID string
	CSRFToken string
	UserID    string
	Cookies   map[string]string
	ModTime   time.Time
	Path      string
}

// HasSession reports whether the file carries a session cookie
func (c *Credential) HasSession() bool {
	return c.SessionID != "" || c.Cookies["sessionid"] != ""
}

// CookieHeader renders the stored cookies for a Cookie request header
func (c *Credential) CookieHeader() string {
	jar := make(map[string]string, len(c.Cookies)+3)
	for k, v := range c.Cookies {
		jar[k] = v
	}
	if c.SessionID != "" {
		jar["sessionid"] = c.SessionID
	}
	if c.CSRFToken != "" {
		jar["csrftoken"] = c.CSRFToken
	}
	if c.UserID != "" {
		jar["ds_user_id"] = c.UserID
	}

	names := make([]string, 0, len(jar))
	for k, v := range jar {
		if v != "" {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = k + "=" + jar[k]
	}
	return strings.Join(parts, "; ")
}

// Gate validates credential files
type Gate struct {
	MaxAge time.Duration
	Now    func() time.Time
}

// NewGate uses DefaultMaxAge and the wall clock
func NewGate() *Gate {
	return &Gate{MaxAge: DefaultMaxAge, Now: time.Now}
}

// Validate reads the credential file with a default Gate
func Validate(path string) (*Credential, []Warning, error) {
	return NewGate().Validate(path)
}

// Validate checks presence, shape and freshness of the file at path
func (g *Gate) Validate(path string) (*Credential, []Warning, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, &ValidationError{Reason: ReasonMissingFile, Path: path, Err: err}
		}
		return nil, nil, &ValidationError{Reason: ReasonUnreadable, Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, nil, &ValidationError{Reason: ReasonUnreadable, Path: path, Err: errors.New("is a directory")}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &ValidationError{Reason: ReasonUnreadable, Path: path, Err: err}
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, &ValidationError{Reason: ReasonMalformedJSON, Path: path, Err: err}
	}
	if raw == nil {
		return nil, nil, &ValidationError{Reason: ReasonMalformedJSON, Path: path, Err: errors.New("null document")}
	}

	username, _ := raw["username"].(string)
	if strings.TrimSpace(username) == "" {
		return nil, nil, &ValidationError{Reason: ReasonMissingField, Path: path, Field: "username"}
	}

	cred := &Credential{
		Username:  username,
		SessionID: firstString(raw, "sessionid", "session_id"),
		CSRFToken: firstString(raw, "csrftoken", "csrf_token"),
		UserID:    firstString(raw, "ds_user_id", "user_id"),
		Cookies:   parseCookies(raw["cookies"]),
		ModTime:   info.ModTime(),
		Path:      path,
	}

	var warnings []Warning
	maxAge := g.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	if age := now().Sub(info.ModTime()); age > maxAge {
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("credential file is %.0f days old and may have expired", age.Hours()/24),
			Age:     age,
		})
	}
	return cred, warnings, nil
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

// parseCookies accepts either a name->value object or a browser export
// list of {"name":..., "value":...}.
func parseCookies(v any) map[string]string {
	out := map[string]string{}
	switch c := v.(type) {
	case map[string]any:
		for k, val := range c {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
	case []any:
		for _, item := range c {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, _ := m["name"].(string)
			value, _ := m["value"].(string)
			if name != "" {
				out[name] = value
			}
		}
	}
	return out
}
