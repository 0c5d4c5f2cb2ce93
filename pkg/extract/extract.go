// Package extract turns a raw profile page into a normalized
// models.ProfileSnapshot.
//
// Extraction runs an ordered list of strategies until one yields a profile.
// Embedded JSON blobs are preferred; a regex pass over the raw text is the
// last resort and trades completeness (no posts, no counts) for resilience
// against markup drift. No single strategy failure is fatal.
package extract

import (
	"igmonitor/pkg/logger"
	"igmonitor/pkg/metrics"
	"igmonitor/pkg/models"
)

// Extractor applies strategies in order.
type Extractor struct {
	strategies []Strategy
	username   string
	logger     logger.Logger
}

// Option customises an Extractor
type Option func(*Extractor)

// WithStrategies replaces the strategy list
func WithStrategies(s ...Strategy) Option {
	return func(e *Extractor) { e.strategies = s }
}

// WithUsername sets the handle used when a strategy finds no username
func WithUsername(username string) Option {
	return func(e *Extractor) { e.username = username }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// New creates an Extractor using DefaultStrategies
func New(opts ...Option) *Extractor {
	e := &Extractor{strategies: DefaultStrategies()}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.NewNopLogger()
	}
	return e
}

// Extract returns the first snapshot any strategy yields. ok is false only
// when every strategy came back empty.
func (e *Extractor) Extract(raw string) (models.ProfileSnapshot, bool) {
	snap, _, ok := e.ExtractWithStrategy(raw)
	return snap, ok
}

// ExtractWithStrategy is Extract plus the name of the winning strategy.
func (e *Extractor) ExtractWithStrategy(raw string) (models.ProfileSnapshot, string, bool) {
	for _, s := range e.strategies {
		res, ok := s.Run(raw)
		if !ok {
			continue
		}
		for _, err := range res.Skipped {
			e.logger.WithError(err).WithField("strategy", s.Name).Warn("Skipped malformed post entry")
		}

		snap := res.Snapshot
		if snap.Username == "" {
			snap.Username = e.username
		}
		metrics.IncExtraction(s.Name)
		e.logger.DebugWithFields("Profile extracted", map[string]interface{}{
			"strategy": s.Name,
			"posts":    len(snap.RecentPosts),
		})
		return snap, s.Name, true
	}

	metrics.IncExtraction("none")
	e.logger.Warn("No extraction strategy produced a profile")
	return models.ProfileSnapshot{}, "", false
}
