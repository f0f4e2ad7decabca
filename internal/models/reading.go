// Package models defines the data structures for reading events.
package models

// Event types carried in the eventType field and Kafka header.
const (
	EventStatementCompleted = "consent.reading.statement.completed"
	EventSessionCompleted   = "consent.reading.session.completed"
	EventSessionStopped     = "consent.reading.session.stopped"
)

// StatementCompleted is published each time a statement is verified.
type StatementCompleted struct {
	EventType         string  `json:"eventType"`
	SessionID         string  `json:"sessionId"`
	Reference         string  `json:"reference,omitempty"`
	Category          string  `json:"category"`
	Language          string  `json:"language"`
	StatementIndex    int     `json:"statementIndex"`
	Total             int     `json:"total"`
	SimilarityPercent int     `json:"similarityPercent"`
	Score             float64 `json:"score"`
	Timestamp         int64   `json:"timestamp"`
}

// SessionCompleted is published once per session when it ends, whether every
// statement was read (EventSessionCompleted) or the client left early
// (EventSessionStopped).
type SessionCompleted struct {
	EventType  string `json:"eventType"`
	SessionID  string `json:"sessionId"`
	Reference  string `json:"reference,omitempty"`
	Category   string `json:"category"`
	Language   string `json:"language"`
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
	DurationMs int64  `json:"durationMs"`
	Timestamp  int64  `json:"timestamp"`
}
