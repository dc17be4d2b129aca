package protocol

// Message type constants for protocol envelopes.
//
// Control types are exchanged between a peer and the server itself. Relayed
// types are forwarded between the two peers of a session; the server never
// inspects their payloads.
const (
	// Control (server <-> peer).
	TypeCode      = "code"
	TypeReady     = "ready"
	TypePeerReady = "peer_ready"
	TypeError     = "error"
	TypePing      = "ping"
	TypePong      = "pong"

	// Signaling (relayed, opaque payloads).
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeIceCandidate = "ice_candidate"

	// Transfer control (relayed, opaque payloads).
	TypeDataChunk        = "data_chunk"
	TypeAck              = "ack"
	TypeResumeRequest    = "resume_request"
	TypeKeyExchange      = "key_exchange"
	TypeTransferStart    = "transfer_start"
	TypeTransferEnd      = "transfer_end"
	TypeTransferReady    = "transfer_ready"
	TypeTransferComplete = "transfer_complete"
	TypeTransferFailed   = "transfer_failed"
	TypeIntegrityHash    = "integrity_hash"
)

// relayable is the allow-list of envelope types that may be forwarded to the
// counterpart peer. Anything outside this set is dropped so the relay cannot
// be used as an open broadcast channel.
var relayable = map[string]bool{
	TypeOffer:            true,
	TypeAnswer:           true,
	TypeIceCandidate:     true,
	TypeDataChunk:        true,
	TypeAck:              true,
	TypeResumeRequest:    true,
	TypeKeyExchange:      true,
	TypeTransferStart:    true,
	TypeTransferEnd:      true,
	TypeTransferReady:    true,
	TypeTransferComplete: true,
	TypeTransferFailed:   true,
	TypeIntegrityHash:    true,
	TypeError:            true,
}

// Relayable reports whether msgType may be forwarded to the counterpart peer.
func Relayable(msgType string) bool {
	return relayable[msgType]
}
