package ws

import "time"

// ConnInfo identifies one websocket connection for metrics and event
// envelopes.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
