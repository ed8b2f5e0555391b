package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"metaphorlab/internal/domain"
)

const telegramAPI = "https://api.telegram.org"

type Telegram struct {
	botToken string
	chatIDs  []string
	baseURL  string
	client   *http.Client
}

func NewTelegram(botToken string, chatIDs []string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatIDs:  chatIDs,
		baseURL:  telegramAPI,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Telegram) Notify(ctx context.Context, n Notification) error {
	text := formatMessage(n)

	for _, chatID := range t.chatIDs {
		if err := t.send(ctx, chatID, text); err != nil {
			return err
		}
	}

	return nil
}

func (t *Telegram) send(ctx context.Context, chatID, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)

	body, err := json.Marshal(map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %d", resp.StatusCode)
	}

	return nil
}

func formatMessage(n Notification) string {
	st := n.Analysis.Results.Stats()

	var top []string
	for _, r := range n.Analysis.Results.Results() {
		if r.Label == domain.LabelMetaphor && r.Confidence > domain.HighConfidenceThreshold {
			top = append(top, "• "+html.EscapeString(r.Unit))
		}
		if len(top) == 3 {
			break
		}
	}

	msg := fmt.Sprintf(`<b>Analysis complete</b>

<b>Job:</b> %s
<b>Source:</b> %s
<b>Sentences:</b> %d
<b>Metaphors:</b> %d
<b>Literal:</b> %d
<b>Avg confidence:</b> %.0f%%`,
		html.EscapeString(n.Job.ID),
		html.EscapeString(sourceLabel(n.Job)),
		st.Total,
		st.MetaphorCount,
		st.LiteralCount,
		st.AverageConfidence*100,
	)

	if len(top) > 0 {
		msg += "\n\n<b>Strongest metaphors:</b>\n" + strings.Join(top, "\n")
	}
	return msg
}

func sourceLabel(job domain.AnalysisJob) string {
	if job.Origin != "" {
		return string(job.Source) + " (" + job.Origin + ")"
	}
	return string(job.Source)
}
