// Package session owns client<->counterd transport helpers.
//
// Ownership boundary:
// - invoke/query request envelopes
// - result/error response envelopes
// - timeouts and retry backoff primitives
//
// Every request frame is answered by exactly one response frame carrying
// the same message_id.
package session
