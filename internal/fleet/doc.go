// Package fleet runs one monitor per username concurrently and waits for
// all of them.
package fleet
