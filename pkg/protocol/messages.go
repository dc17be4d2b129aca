package protocol

import "encoding/json"

// Error codes reported to peers.
const (
	ErrCodeInvalidCode    = "invalid_code"
	ErrCodeSessionFull    = "session_full"
	ErrCodeBufferOverflow = "buffer_overflow"
)

// Error represents an error message in the protocol.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CodeAssigned tells the creating peer which pairing code was minted for its
// session.
type CodeAssigned struct {
	Code   string `json:"code"`
	Status string `json:"status"`
}

// Ready notifies both peers that the counterpart role is bound and the session
// is live.
type Ready struct {
	Code string `json:"code"`
}

// PeerReady notifies a peer that its counterpart signaled transfer readiness.
type PeerReady struct {
	Message string `json:"message,omitempty"`
}

// CreateSessionRequest requests creation of a new session.
// Code is an optional pre-chosen pairing code; when empty the server mints
// one. Offer is an opaque application handshake payload handed to the joiner.
type CreateSessionRequest struct {
	Code  string          `json:"code,omitempty"`
	Offer json.RawMessage `json:"offer,omitempty"`
}

// CreateSessionResponse responds with the assigned code and initial status.
type CreateSessionResponse struct {
	Code   string `json:"code"`
	Status string `json:"status"`
}

// SessionInfo describes a session for the REST fetch endpoint. Offer is only
// populated while the session is still waiting for its second role.
type SessionInfo struct {
	Code   string          `json:"code"`
	Status string          `json:"status"`
	Offer  json.RawMessage `json:"offer,omitempty"`
}

// AnswerRequest carries the joiner's opaque handshake response.
type AnswerRequest struct {
	Answer json.RawMessage `json:"answer"`
}

// CandidateRequest carries an opaque negotiation candidate from one role,
// destined for the other.
type CandidateRequest struct {
	Role      string          `json:"role"`
	Candidate json.RawMessage `json:"candidate"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
}
