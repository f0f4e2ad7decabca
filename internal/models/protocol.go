package models

// Client message types on the reading WebSocket.
const (
	ClientStart    = "start"
	ClientFragment = "fragment"
	ClientError    = "error"
	ClientEnded    = "ended"
	ClientRelisten = "relisten"
	ClientStop     = "stop"
)

// Server message types on the reading WebSocket.
const (
	ServerListen        = "listen"
	ServerStopListening = "stop-listening"
	ServerMatch         = "match"
	ServerVerdict       = "verdict"
	ServerProgress      = "progress"
	ServerError         = "error"
	ServerComplete      = "complete"
)

// ClientMessage is a JSON text frame sent by the browser.
type ClientMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	IsFinal bool   `json:"isFinal,omitempty"`
	Phase   uint64 `json:"phase,omitempty"` // zero means the current phase
	Code    string `json:"code,omitempty"`
}

// ServerMessage is a JSON text frame sent to the browser. Data holds the
// type-specific payload.
type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Data      any    `json:"data,omitempty"`
}

// ListenPayload asks the client to start capturing speech for a statement.
type ListenPayload struct {
	StatementIndex int    `json:"statementIndex"`
	Phase          uint64 `json:"phase"`
	Locale         string `json:"locale"`
	Text           string `json:"text"`
}

// ErrorPayload reports a stream or protocol error.
type ErrorPayload struct {
	StatementIndex int    `json:"statementIndex"`
	Code           string `json:"code"`
	Message        string `json:"message"`
}
