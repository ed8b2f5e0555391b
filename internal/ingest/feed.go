package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

type Feed struct {
	client *http.Client
	parser *gofeed.Parser
}

func NewFeed(timeout time.Duration) *Feed {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Feed{
		client: &http.Client{Timeout: timeout},
		parser: gofeed.NewParser(),
	}
}

func (f *Feed) Fetch(ctx context.Context, feedURL string) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", "metaphorlab-ingest/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		text := plainText(firstNonEmpty(it.Content, it.Description, it.Title))
		if text == "" {
			continue
		}

		published := time.Now()
		if it.PublishedParsed != nil {
			published = *it.PublishedParsed
		}

		items = append(items, Item{
			GUID:      firstNonEmpty(it.GUID, it.Link, it.Title),
			FeedURL:   feedURL,
			Title:     it.Title,
			Text:      text,
			Link:      it.Link,
			Published: published,
		})
	}

	return items, nil
}

// plainText flattens HTML to text, one line per block element or <br>, so
// verse line breaks survive for segmentation.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
