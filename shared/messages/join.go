package messages

// JoinRequest is sent by a client after connecting. TickRate is sent once
// here and never renegotiated.
type JoinRequest struct {
	Version      string
	PlayerName   string
	ClientToken  string // uuid the client uses to find its own entity in broadcasts
	SessionToken string // KCP only: resume a previous session
	TickRate     int
}

// JoinAccepted is sent by the server when a client's join request is accepted.
type JoinAccepted struct {
	EntityID     uint64
	ClientToken  string
	SessionToken string
	ServerName   string
	TickRate     int
	SpawnTick    uint32 // first tick the client should predict
}

// JoinRejected is sent by the server when a client's join request is rejected.
type JoinRejected struct {
	Reason string
}

// Reasons carried by JoinRejected.
const (
	RejectVersion  = "version mismatch"
	RejectTickRate = "tick rate not accepted"
	RejectFull     = "server full"
	RejectSession  = "invalid session token"
)
