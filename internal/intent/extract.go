package intent

import (
	"regexp"
	"strings"
	"unicode"

	"metaphorlab/internal/domain"
)

// word is a marker value token. Tamil vowel signs are combining marks, so
// \w alone would cut words short.
const word = `[\p{L}\p{M}\p{N}_]+`

var (
	emotionMarker = regexp.MustCompile(`(?i)\bemotion:\s*(` + word + `)`)
	sourceMarker  = regexp.MustCompile(`(?i)\bsource:\s*(` + word + `)`)
	targetMarker  = regexp.MustCompile(`(?i)\btarget:\s*(` + word + `)`)
	seedQuoted    = regexp.MustCompile(`(?i)\bseed:\s*"([^"]+)"`)
	seedPhrase    = regexp.MustCompile(`(?i)\bseed:\s*([^,]+)`)

	anyMarker  = regexp.MustCompile(`(?i)\b(?:source|target|emotion):\s*(?:` + word + `)?`)
	seedMarker = regexp.MustCompile(`(?i)\bseed:\s*(?:"[^"]*"|[^,]*)`)

	withClause  = regexp.MustCompile(`(?is)\bwith\b(.*)`)
	aboutClause = regexp.MustCompile(`(?is)\babout\b(.*)`)
	andWord     = regexp.MustCompile(`(?i)\band\b`)
	spaces      = regexp.MustCompile(`\s+`)
)

// extractor reports the value it found in a message, or false.
type extractor func(message string) (string, bool)

// pairExtractor finds a source and, optionally, a target.
type pairExtractor func(message string) (source, target string, ok bool)

var seedRules = []extractor{
	submatch(seedQuoted),
	submatch(seedPhrase),
}

var lyricEmotionRules = []extractor{
	submatch(emotionMarker),
	cleaned(clause(withClause)),
	cleaned(clause(aboutClause)),
}

var sourceRules = []pairExtractor{
	relatingPhrase,
	aboutPhrase,
	strippedMessage,
}

func lyricParams(message string) map[string]string {
	seed, _ := first(message, seedRules)

	emotion, ok := first(message, lyricEmotionRules)
	if !ok {
		emotion = DefaultLyricEmotion
	}

	return map[string]string{
		domain.ParamEmotion: strings.ToLower(emotion),
		domain.ParamSeed:    seed,
	}
}

func creatorParams(message string) map[string]string {
	source, hasSource := submatch(sourceMarker)(message)
	target, hasTarget := submatch(targetMarker)(message)

	if !hasSource {
		for _, r := range sourceRules {
			s, t, ok := r(message)
			if !ok {
				continue
			}
			source = s
			if !hasTarget && t != "" {
				target, hasTarget = t, true
			}
			break
		}
	}
	if !hasTarget {
		target = DefaultMetaphorTarget
	}

	emotion, ok := submatch(emotionMarker)(message)
	if !ok {
		emotion = DefaultCreatorEmotion
	}

	return map[string]string{
		domain.ParamSource:  source,
		domain.ParamTarget:  target,
		domain.ParamEmotion: strings.ToLower(emotion),
	}
}

func first(message string, rules []extractor) (string, bool) {
	for _, r := range rules {
		if v, ok := r(message); ok {
			return v, true
		}
	}
	return "", false
}

func submatch(re *regexp.Regexp) extractor {
	return func(message string) (string, bool) {
		m := re.FindStringSubmatch(message)
		if m == nil {
			return "", false
		}
		v := strings.TrimSpace(m[1])
		return v, v != ""
	}
}

func clause(re *regexp.Regexp) extractor {
	return func(message string) (string, bool) {
		m := re.FindStringSubmatch(message)
		if m == nil {
			return "", false
		}
		v := trimPhrase(m[1])
		return v, v != ""
	}
}

// cleaned runs next against the message with every marker removed.
func cleaned(next extractor) extractor {
	return func(message string) (string, bool) {
		return next(stripMarkers(message))
	}
}

func stripMarkers(message string) string {
	s := seedMarker.ReplaceAllString(message, " ")
	s = anyMarker.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// relatingPhrase handles "relating X to Y" and "connecting X and Y".
func relatingPhrase(message string) (string, string, bool) {
	words := strings.Fields(message)
	for i, w := range words {
		lw := strings.ToLower(trimWord(w))
		if lw != "relating" && lw != "connecting" {
			continue
		}
		if i+1 >= len(words) {
			return "", "", false
		}
		source := trimWord(words[i+1])

		var target string
		for j := i + 2; j < len(words); j++ {
			lj := strings.ToLower(trimWord(words[j]))
			if (lj == "to" || lj == "and") && j+1 < len(words) {
				target = trimWord(words[j+1])
				break
			}
		}
		return source, target, source != ""
	}
	return "", "", false
}

// aboutPhrase handles "about X and Y" and "about X".
func aboutPhrase(message string) (string, string, bool) {
	after, ok := cleaned(clause(aboutClause))(message)
	if !ok {
		return "", "", false
	}

	loc := andWord.FindStringIndex(after)
	if loc == nil {
		return after, "", true
	}

	source := trimPhrase(after[:loc[0]])
	target := trimPhrase(after[loc[1]:])
	return source, target, source != ""
}

func strippedMessage(message string) (string, string, bool) {
	s := stripMarkers(message)
	return s, "", s != ""
}

func trimWord(w string) string {
	return strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.IsMark(r)
	})
}

func trimPhrase(s string) string {
	s = strings.TrimSpace(spaces.ReplaceAllString(s, " "))
	return strings.TrimRight(s, ".!?।,;: ")
}
