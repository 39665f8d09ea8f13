// Package protocol owns the counterd wire contract.
//
// Ownership boundary:
// - frame: fixed header and body limits
// - tlv: payload field primitives
// - schema: required fields per message type
// - session: typed request/response envelopes
package protocol
