// Package gateway talks to the remote model service: metaphor prediction,
// lyric generation and metaphor creation.
package gateway

import (
	"context"
	"time"

	"metaphorlab/internal/retry"
)

type Gateway interface {
	Predict(ctx context.Context, text string) (Prediction, error)
	GenerateLyrics(ctx context.Context, req LyricsRequest) (*Lyrics, error)
	CreateMetaphors(ctx context.Context, req MetaphorRequest) ([]string, error)
}

type Config struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
	Retry   retry.Config  `koanf:"retry"`
}

const (
	predictPath  = "/api/predict"
	lyricsPath   = "/api/generate-lyrics"
	metaphorPath = "/api/create-metaphors"
)

type predictRequest struct {
	Text string `json:"text"`
}

// LyricsRequest is sent as-is; the service names the emotion field "motion".
type LyricsRequest struct {
	Emotion string `json:"motion"`
	Seed    string `json:"seed"`
}

type MetaphorRequest struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Emotion string `json:"emotion"`
}

type metaphorResponse struct {
	Metaphors []string `json:"metaphors"`
}
