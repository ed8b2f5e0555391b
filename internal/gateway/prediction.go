package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"metaphorlab/internal/domain"
)

// Prediction is the decoded body of a predict call. It is one of
// ResultsWrapper, FlatPrediction or Malformed.
type Prediction interface {
	isPrediction()
}

type WrappedResult struct {
	Text       string       `json:"text"`
	Label      domain.Label `json:"label"`
	Confidence float64      `json:"confidence"`
}

// ResultsWrapper is the {"results": [...]} shape. Only the first entry is
// meaningful for a single-unit request.
type ResultsWrapper struct {
	Results []WrappedResult
}

// FlatPrediction is the {"is_metaphor": bool, "confidence": float} shape.
type FlatPrediction struct {
	IsMetaphor bool
	Confidence float64
}

type Malformed struct {
	Reason string
}

// Err wraps ErrMalformed with the reason.
func (m Malformed) Err() error {
	return fmt.Errorf("%w: %s", ErrMalformed, m.Reason)
}

func (ResultsWrapper) isPrediction() {}
func (FlatPrediction) isPrediction() {}
func (Malformed) isPrediction()      {}

type rawPrediction struct {
	Results []struct {
		Text       string   `json:"text"`
		Label      string   `json:"label"`
		Confidence *float64 `json:"confidence"`
	} `json:"results"`
	IsMetaphor *bool    `json:"is_metaphor"`
	Confidence *float64 `json:"confidence"`
}

// DecodePrediction sniffs the response shape once. It never fails; anything
// it cannot recognise comes back as Malformed.
func DecodePrediction(body []byte) Prediction {
	var raw rawPrediction
	if err := json.Unmarshal(body, &raw); err != nil {
		return Malformed{Reason: "invalid json: " + err.Error()}
	}

	if len(raw.Results) > 0 {
		wrapped := make([]WrappedResult, 0, len(raw.Results))
		for i, r := range raw.Results {
			label, ok := CanonicalLabel(r.Label)
			if !ok {
				return Malformed{Reason: fmt.Sprintf("results[%d]: unknown label %q", i, r.Label)}
			}
			if r.Confidence == nil || !validConfidence(*r.Confidence) {
				return Malformed{Reason: fmt.Sprintf("results[%d]: missing or invalid confidence", i)}
			}
			wrapped = append(wrapped, WrappedResult{Text: r.Text, Label: label, Confidence: *r.Confidence})
		}
		return ResultsWrapper{Results: wrapped}
	}

	if raw.IsMetaphor != nil {
		if raw.Confidence == nil || !validConfidence(*raw.Confidence) {
			return Malformed{Reason: "missing or invalid confidence"}
		}
		return FlatPrediction{IsMetaphor: *raw.IsMetaphor, Confidence: *raw.Confidence}
	}

	return Malformed{Reason: "unrecognised response shape"}
}

// CanonicalLabel maps a case-insensitive label onto Metaphor or Literal.
func CanonicalLabel(s string) (domain.Label, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "metaphor":
		return domain.LabelMetaphor, true
	case "literal":
		return domain.LabelLiteral, true
	default:
		return "", false
	}
}

func validConfidence(c float64) bool {
	return c >= 0 && c <= 1
}
