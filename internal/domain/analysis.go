package domain

import "time"

// Analysis is an archived batch: the submitted text and its classified units.
type Analysis struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	Source    Source     `json:"source"`
	Origin    string     `json:"origin,omitempty"`
	Results   *ResultSet `json:"results"`
	CreatedAt time.Time  `json:"created_at"`
}

type Source string

const (
	SourceAPI  Source = "api"
	SourceFeed Source = "feed"
	SourceCLI  Source = "cli"
)

// AnalysisJob is a request to analyze text asynchronously.
type AnalysisJob struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Source      Source    `json:"source"`
	Origin      string    `json:"origin,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}
