package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"metaphorlab/internal/retry"
)

const maxBodyBytes = 1 << 20

type Client struct {
	baseURL string
	http    *http.Client
	retry   retry.Config
	log     *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		retry:   cfg.Retry,
		log:     log.Named("gateway"),
	}
}

// Predict classifies one unit. A response in an unknown shape is returned as
// Malformed with a nil error; only transport and status failures are errors.
func (c *Client) Predict(ctx context.Context, text string) (Prediction, error) {
	body, err := c.post(ctx, predictPath, predictRequest{Text: text})
	if err != nil {
		return nil, err
	}
	return DecodePrediction(body), nil
}

func (c *Client) GenerateLyrics(ctx context.Context, req LyricsRequest) (*Lyrics, error) {
	body, err := c.post(ctx, lyricsPath, req)
	if err != nil {
		return nil, err
	}

	var out Lyrics
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &decodeError{err: err}
	}
	return &out, nil
}

func (c *Client) CreateMetaphors(ctx context.Context, req MetaphorRequest) ([]string, error) {
	body, err := c.post(ctx, metaphorPath, req)
	if err != nil {
		return nil, err
	}

	var out metaphorResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &decodeError{err: err}
	}
	return out.Metaphors, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	opts := retry.Options{
		Config:       c.retry,
		ErrorChecker: Retryable,
		Logger:       c.log,
		Name:         path,
	}
	return retry.Execute(ctx, opts, func(ctx context.Context, _ int) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("gateway: read body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return body, nil
	})
}
