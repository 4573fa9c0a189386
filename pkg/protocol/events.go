package protocol

// Event names emitted by the backend connection.
const (
	EventNewMessage       = "new-message"
	EventConnectionStatus = "connection-status"
)

// Status values reported on EventConnectionStatus. The set is open: the
// backend may report any string and clients mirror it unchanged.
const (
	StatusDisconnected = "disconnected"
	StatusConnecting   = "connecting"
	StatusConnected    = "connected"
	StatusError        = "error"
)
