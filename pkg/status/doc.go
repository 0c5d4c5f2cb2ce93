// Package status tracks per-username monitor health and serves it over HTTP.
//
// Tracker is an events.Sink: it derives checks, failures, last success and
// per-type event counts from the stream it receives, and can persist a
// snapshot atomically to a JSON file after every event. Server exposes
// /health, /status, /metrics and /events on a chi router.
package status
