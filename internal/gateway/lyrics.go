package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Lyrics is the lyric generation response. The service returns the lyrics
// either as one newline-separated string or as a list of lines.
type Lyrics struct {
	Lines       []string `json:"lyrics"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (l *Lyrics) UnmarshalJSON(data []byte) error {
	var raw struct {
		Lyrics      json.RawMessage `json:"lyrics"`
		Suggestions []string        `json:"suggestions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	l.Suggestions = raw.Suggestions
	l.Lines = nil
	if len(raw.Lyrics) == 0 || string(raw.Lyrics) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(raw.Lyrics, &text); err == nil {
		l.Lines = splitLines(text)
		return nil
	}

	var lines []string
	if err := json.Unmarshal(raw.Lyrics, &lines); err != nil {
		return fmt.Errorf("lyrics: expected string or list of strings: %w", err)
	}
	l.Lines = lines
	return nil
}

func (l Lyrics) Text() string {
	return strings.Join(l.Lines, "\n")
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
