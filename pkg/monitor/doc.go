// Package monitor drives the two monitoring modes.
//
// PollLoop is basic mode: it fetches a profile page on a jittered interval,
// extracts a snapshot, diffs it against the previous one and writes change
// events to a sink. It runs until its context is cancelled and survives
// every per-cycle failure.
//
// ExtendedPollLoop is advanced mode: after confirming the profile is public
// it probes stories and live status at a fixed sub-interval until a
// wall-clock deadline. Probing goes through the Prober interface; the
// FeedProber reads the authenticated story feed, and UnimplementedProber
// reports the capability as unavailable instead of inventing results.
package monitor
