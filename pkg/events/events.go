// Package events defines the structured records both monitor modes emit and
// the sinks that carry them to the consuming process.
package events

import (
	"fmt"
	"strings"
	"time"

	"igmonitor/pkg/logger"
	"igmonitor/pkg/models"
)

// Type is the wire discriminator of an event
type Type string

const (
	TypeBioChange        Type = "bio_change"
	TypeNewPost          Type = "new_post"
	TypeProfileChange    Type = "profile_change"
	TypeCheckComplete    Type = "check_complete"
	TypeStoryDownloaded  Type = "story_downloaded"
	TypeLiveDetected     Type = "live_detected"
	TypeDownloadComplete Type = "download_complete"
	TypeSessionError     Type = "session_error"
	TypeSessionWarning   Type = "session_warning"
)

// Field names a profile attribute reported by ProfileFieldsChanged
type Field string

const (
	FieldFullName     Field = "full_name"
	FieldVerification Field = "verification"
	FieldPrivacy      Field = "privacy"
)

// bioPreview is how much of a biography goes into a log line.
const bioPreview = 100

// Base is embedded in every event
type Base struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Username  string    `json:"username"`
}

// Header returns the common fields
func (b Base) Header() Base { return b }

// Event is any record written to a Sink
type Event interface {
	Header() Base
	// Summary is a short human-readable description for the log line.
	Summary() string
}

func newBase(t Type, username string, at time.Time) Base {
	return Base{Type: t, Timestamp: at.UTC(), Username: username}
}

// BioChanged carries both biographies verbatim
type BioChanged struct {
	Base
	OldBio string `json:"old_bio"`
	NewBio string `json:"new_bio"`
}

func NewBioChanged(username string, at time.Time, oldBio, newBio string) *BioChanged {
	return &BioChanged{Base: newBase(TypeBioChange, username, at), OldBio: oldBio, NewBio: newBio}
}

func (e *BioChanged) Summary() string {
	return fmt.Sprintf("Bio changed: %q -> %q", logger.Truncate(e.OldBio, bioPreview), logger.Truncate(e.NewBio, bioPreview))
}

// NewPost reports a new latest post
type NewPost struct {
	Base
	Post models.PostSummary `json:"post"`
}

func NewNewPost(username string, at time.Time, post models.PostSummary) *NewPost {
	return &NewPost{Base: newBase(TypeNewPost, username, at), Post: post}
}

func (e *NewPost) Summary() string {
	if e.Post.URL != "" {
		return fmt.Sprintf("New post %s (%s)", e.Post.ID, e.Post.URL)
	}
	return "New post " + e.Post.ID
}

// ProfileFieldsChanged aggregates every differing field of one diff
type ProfileFieldsChanged struct {
	Base
	Changes []Field `json:"changes"`
}

func NewProfileFieldsChanged(username string, at time.Time, changes []Field) *ProfileFieldsChanged {
	return &ProfileFieldsChanged{Base: newBase(TypeProfileChange, username, at), Changes: changes}
}

func (e *ProfileFieldsChanged) Summary() string {
	names := make([]string, len(e.Changes))
	for i, f := range e.Changes {
		names[i] = string(f)
	}
	return "Profile changed: " + strings.Join(names, ", ")
}

// CheckCompleted closes every basic-mode cycle
type CheckCompleted struct {
	Base
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func NewCheckCompleted(username string, at time.Time, err error) *CheckCompleted {
	e := &CheckCompleted{Base: newBase(TypeCheckComplete, username, at), Success: err == nil}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

func (e *CheckCompleted) Summary() string {
	if e.Success {
		return "Check completed"
	}
	return "Check failed: " + e.Error
}

// StoryDownloaded reports a story item handed to the story store
type StoryDownloaded struct {
	Base
	Story models.StoryItem `json:"story"`
	Path  string           `json:"path,omitempty"`
}

func NewStoryDownloaded(username string, at time.Time, story models.StoryItem, path string) *StoryDownloaded {
	return &StoryDownloaded{Base: newBase(TypeStoryDownloaded, username, at), Story: story, Path: path}
}

func (e *StoryDownloaded) Summary() string {
	return fmt.Sprintf("Story %s (%s)", e.Story.ID, e.Story.MediaType)
}

// LiveDetected reports an active broadcast
type LiveDetected struct {
	Base
	Broadcast models.LiveBroadcast `json:"broadcast"`
}

func NewLiveDetected(username string, at time.Time, b models.LiveBroadcast) *LiveDetected {
	return &LiveDetected{Base: newBase(TypeLiveDetected, username, at), Broadcast: b}
}

func (e *LiveDetected) Summary() string {
	return fmt.Sprintf("Live broadcast detected (%d viewers)", e.Broadcast.ViewerCount)
}

// DownloadComplete summarises a finished advanced-mode run
type DownloadComplete struct {
	Base
	TasksCompleted int     `json:"tasks_completed"`
	Duration       float64 `json:"duration"`
}

func NewDownloadComplete(username string, at time.Time, tasks int, elapsed time.Duration) *DownloadComplete {
	return &DownloadComplete{
		Base:           newBase(TypeDownloadComplete, username, at),
		TasksCompleted: tasks,
		Duration:       elapsed.Seconds(),
	}
}

func (e *DownloadComplete) Summary() string {
	return fmt.Sprintf("Run complete: %d tasks in %.0fs", e.TasksCompleted, e.Duration)
}

// SessionError means the credential file cannot be used
type SessionError struct {
	Base
	Kind    string `json:"error_kind"`
	Message string `json:"message"`
}

func NewSessionError(username string, at time.Time, kind, message string) *SessionError {
	return &SessionError{Base: newBase(TypeSessionError, username, at), Kind: kind, Message: message}
}

func (e *SessionError) Summary() string { return "Session invalid: " + e.Message }

// SessionWarning is a soft credential problem; the run continues
type SessionWarning struct {
	Base
	Message string  `json:"message"`
	AgeDays float64 `json:"age_days,omitempty"`
}

func NewSessionWarning(username string, at time.Time, message string, ageDays float64) *SessionWarning {
	return &SessionWarning{Base: newBase(TypeSessionWarning, username, at), Message: message, AgeDays: ageDays}
}

func (e *SessionWarning) Summary() string { return "Session warning: " + e.Message }
