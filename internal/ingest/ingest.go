// Package ingest pulls poems and lyrics from RSS/Atom feeds.
package ingest

import (
	"context"
	"time"
)

type Item struct {
	GUID      string
	FeedURL   string
	Title     string
	Text      string
	Link      string
	Published time.Time
}

type Fetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]Item, error)
}
