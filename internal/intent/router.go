// Package intent decides which service a free-text message targets and
// extracts the parameters that service needs.
package intent

import (
	"strings"

	"metaphorlab/internal/domain"
)

// Default parameter values used when a message does not supply them.
const (
	DefaultLyricEmotion   = "neutral"
	DefaultCreatorEmotion = "positive"
	DefaultMetaphorTarget = "general"
	DefaultSeed           = ""
)

var (
	analysisVerbs = []string{"identify", "classify", "analyze"}
	figureWords   = []string{"metaphor", "literal"}
	lyricWords    = []string{"lyric", "song", "poem", "write"}
	creationVerbs = []string{"create", "make", "generate"}
)

type rule struct {
	service domain.Service
	matches func(lower string) bool
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{domain.ServiceClassifier, func(s string) bool {
		return containsAny(s, analysisVerbs) && containsAny(s, figureWords)
	}},
	{domain.ServiceLyricGenerator, func(s string) bool {
		return containsAny(s, lyricWords)
	}},
	{domain.ServiceMetaphorCreator, func(s string) bool {
		return containsAny(s, creationVerbs) && strings.Contains(s, "metaphor")
	}},
}

// Detect returns the service a message targets by keyword heuristics, or
// ServiceAuto when no rule matches.
func Detect(message string) domain.Service {
	lower := strings.ToLower(message)
	for _, r := range rules {
		if r.matches(lower) {
			return r.service
		}
	}
	return domain.ServiceAuto
}

// Route resolves the intent of message. An explicit service other than
// ServiceAuto overrides detection; parameters are always extracted from the
// message for the resolved service.
func Route(message string, explicit domain.Service) domain.Intent {
	service := explicit
	if service == "" || service == domain.ServiceAuto {
		service = Detect(message)
	}

	var params map[string]string
	switch service {
	case domain.ServiceLyricGenerator:
		params = lyricParams(message)
	case domain.ServiceMetaphorCreator:
		params = creatorParams(message)
	default:
		params = map[string]string{}
	}

	return domain.Intent{Service: service, Parameters: params}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
