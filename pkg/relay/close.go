package relay

import "github.com/gorilla/websocket"

// Close codes sent to clients.
const (
	CloseNormal          = websocket.CloseNormalClosure     // 1000
	CloseGoingAway       = websocket.CloseGoingAway         // 1001
	CloseRelayFailure    = websocket.CloseInternalServerErr // 1011
	CloseSequenceInvalid = 4000
	CloseStaleConnection = 4001
)

// Close reasons paired with the codes above.
const (
	ReasonNormal          = "connection closed"
	ReasonGoingAway       = "relay shutting down"
	ReasonRelayFailure    = "relay failure"
	ReasonSequenceInvalid = "sequence invalid"
	ReasonStaleConnection = "stale connection"
)

// CloseReason returns the reason text sent with code.
func CloseReason(code int) string {
	switch code {
	case CloseNormal:
		return ReasonNormal
	case CloseGoingAway:
		return ReasonGoingAway
	case CloseRelayFailure:
		return ReasonRelayFailure
	case CloseSequenceInvalid:
		return ReasonSequenceInvalid
	case CloseStaleConnection:
		return ReasonStaleConnection
	default:
		return ""
	}
}
