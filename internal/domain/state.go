package domain

// ConnectionState is a participant-session attribute set by the signaling
// layer. There is no terminal state: a session is destroyed on leave, not
// transitioned into one.
type ConnectionState string

const (
	StateDisconnected  ConnectionState = "disconnected"
	StateConnecting    ConnectionState = "connecting"
	StateSignaling     ConnectionState = "signaling"
	StateOffering      ConnectionState = "offering"
	StateICEGathering  ConnectionState = "ice_gathering"
	StateWaitingAnswer ConnectionState = "waiting_answer"
	StateConnected     ConnectionState = "connected"
	StateStreaming     ConnectionState = "streaming"
	StateDegraded      ConnectionState = "degraded"
	StateReconnecting  ConnectionState = "reconnecting"
	StateDisconnecting ConnectionState = "disconnecting"
)
