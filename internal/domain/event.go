package domain

import "time"

type EventType string

const (
	EventAnalysisCompleted EventType = "analysis.completed"
	EventJobQueued         EventType = "job.queued"
	EventHistoryChanged    EventType = "history.changed"
)

// Event is pushed to live subscribers as JSON.
type Event struct {
	Type     EventType    `json:"type"`
	Analysis *Analysis    `json:"analysis,omitempty"`
	Job      *AnalysisJob `json:"job,omitempty"`
	At       time.Time    `json:"at"`
}
