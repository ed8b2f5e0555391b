package assistant

import (
	"fmt"
	"strings"

	"metaphorlab/internal/domain"
	"metaphorlab/internal/gateway"
	"metaphorlab/internal/intent"
)

const helpText = `I can help with three things:

- **Metaphor Classifier**: paste one or more lines, or ask "Identify metaphors in "...""
- **Lyric Generator**: "Generate a song emotion: calm seed: "Under the moonlight we danced""
- **Metaphor Creator**: "Create a metaphor source: love target: ocean emotion: positive"`

var fallbackLyrics = []string{
	"காலை வெயிலின் கதிர்களில்",
	"கனவுகள் மலர்கின்றன",
	"வானம் அழைக்கும் குரலினில்",
	"வாழ்க்கை புதுமை பெறுகிறது",
}

// FallbackMetaphors is shown when the creator returns nothing.
func FallbackMetaphors(source, target string) []string {
	return []string{
		fmt.Sprintf("%s is like a rare %s, both precious and beautiful in its uniqueness.", source, target),
		fmt.Sprintf("%s shines like a brilliant %s, catching light and attention with its radiance.", source, target),
		fmt.Sprintf("%s resembles a perfect %s, formed through pressure and time into something extraordinary.", source, target),
		fmt.Sprintf("Just as a %s reflects light, %s reflects the beauty of the world around it.", target, source),
		fmt.Sprintf("%s is a treasure like a magnificent %s, valuable not just for its appearance but for its meaning.", source, target),
	}
}

func formatAnalysis(rs *domain.ResultSet) string {
	st := rs.Stats()
	var b strings.Builder

	if st.Total == 1 {
		b.WriteString("**Metaphor Analysis**\n\n")
	} else {
		fmt.Fprintf(&b, "**Batch Metaphor Analysis**\n\nProcessed %d lines.\n\n", st.Total)
	}

	for _, r := range rs.Results() {
		if r.Failed() {
			fmt.Fprintf(&b, "- %q: %s", r.Unit, r.Label)
			if r.ErrorMessage != "" {
				fmt.Fprintf(&b, " (%s)", r.ErrorMessage)
			}
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(&b, "- %q: %s, %.1f%% confidence\n", r.Unit, r.Label, r.Confidence*100)
	}

	if st.Total > 1 {
		fmt.Fprintf(&b, "\nMetaphors: %d, literal: %d, average confidence %.1f%%.",
			st.MetaphorCount, st.LiteralCount, st.AverageConfidence*100)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatLyrics(emotion, seed string, lines []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Generated Tamil Lyrics**\n\n**Emotion:** %s", capitalize(emotion))
	if seed != "" {
		fmt.Fprintf(&b, "\n**Seed:** %q", seed)
	}
	b.WriteString("\n\n---\n\n")
	for i, l := range lines {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "**%d.** %s", i+1, strings.TrimSpace(l))
	}
	b.WriteString("\n\n---")
	return b.String()
}

func formatMetaphors(req gateway.MetaphorRequest, metaphors []string) string {
	var b strings.Builder
	b.WriteString("**Created Metaphor**\n\n")

	if len(metaphors) > 1 {
		b.WriteString("Here are some metaphors")
	} else {
		b.WriteString("Here is a metaphor")
	}
	fmt.Fprintf(&b, " about %q", req.Source)
	if req.Target != intent.DefaultMetaphorTarget {
		fmt.Fprintf(&b, " related to %q", req.Target)
	}
	fmt.Fprintf(&b, " with %s emotion:\n", req.Emotion)

	for _, m := range metaphors {
		fmt.Fprintf(&b, "\n%q\n", m)
	}
	return strings.TrimRight(b.String(), "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
