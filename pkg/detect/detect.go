// Package detect compares consecutive profile snapshots and yields change
// events.
//
// The first observation after start only establishes a baseline. Whether a
// previous snapshot exists, not whether two snapshots are equal, decides if
// an observation can produce events. Only the latest post is compared, so
// several posts published between two checks are reported as one.
package detect

import (
	"iter"
	"time"

	"igmonitor/pkg/events"
	"igmonitor/pkg/models"
)

// Checks selects which comparisons run
type Checks struct {
	Bio     bool
	Posts   bool
	Profile bool
}

// AllChecks enables every comparison
func AllChecks() Checks {
	return Checks{Bio: true, Posts: true, Profile: true}
}

// Diff returns the events that separate prev from cur. A nil prev yields
// nothing. The sequence is lazy and stops early if the consumer does.
func Diff(checks Checks, username string, prev *models.ProfileSnapshot, cur models.ProfileSnapshot, at time.Time) iter.Seq[events.Event] {
	return func(yield func(events.Event) bool) {
		if prev == nil {
			return
		}

		if checks.Bio && prev.Biography != cur.Biography {
			if !yield(events.NewBioChanged(username, at, prev.Biography, cur.Biography)) {
				return
			}
		}

		if checks.Posts {
			if post, ok := newLatestPost(*prev, cur); ok {
				if !yield(events.NewNewPost(username, at, post)) {
					return
				}
			}
		}

		if checks.Profile {
			if changed := changedFields(*prev, cur); len(changed) > 0 {
				yield(events.NewProfileFieldsChanged(username, at, changed))
			}
		}
	}
}

// newLatestPost reports cur's latest post when it differs from prev's. Posts
// without an id are never compared.
func newLatestPost(prev, cur models.ProfileSnapshot) (models.PostSummary, bool) {
	was, ok := prev.LatestPost()
	if !ok || was.ID == "" {
		return models.PostSummary{}, false
	}
	now, ok := cur.LatestPost()
	if !ok || now.ID == "" {
		return models.PostSummary{}, false
	}
	if was.ID == now.ID {
		return models.PostSummary{}, false
	}
	return now, true
}

func changedFields(prev, cur models.ProfileSnapshot) []events.Field {
	var changed []events.Field
	if prev.FullName != cur.FullName {
		changed = append(changed, events.FieldFullName)
	}
	if prev.IsVerified != cur.IsVerified {
		changed = append(changed, events.FieldVerification)
	}
	if prev.IsPrivate != cur.IsPrivate {
		changed = append(changed, events.FieldPrivacy)
	}
	return changed
}

// Detector holds the last snapshot of one username. It is owned by a single
// poll loop and is not safe for concurrent use.
type Detector struct {
	username string
	checks   Checks
	last     *models.ProfileSnapshot
	now      func() time.Time
}

// Option customises a Detector
type Option func(*Detector)

// WithClock replaces the event timestamp source
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// New creates a Detector with no baseline
func New(username string, checks Checks, opts ...Option) *Detector {
	d := &Detector{username: username, checks: checks, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Observe stores cur and returns the events relative to the previous
// snapshot. The stored snapshot is replaced before the sequence is consumed,
// whether or not any event fires.
func (d *Detector) Observe(cur models.ProfileSnapshot) iter.Seq[events.Event] {
	prev := d.last
	stored := cur.Clone()
	d.last = &stored
	return Diff(d.checks, d.username, prev, cur.Clone(), d.now())
}

// Baseline seeds the stored snapshot without producing events
func (d *Detector) Baseline(cur models.ProfileSnapshot) {
	stored := cur.Clone()
	d.last = &stored
}

// HasBaseline reports whether a snapshot has been stored
func (d *Detector) HasBaseline() bool {
	return d.last != nil
}
