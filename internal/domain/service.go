package domain

import "strings"

type Service string

const (
	ServiceClassifier      Service = "metaphor-classifier"
	ServiceLyricGenerator  Service = "lyric-generator"
	ServiceMetaphorCreator Service = "metaphor-creator"
	ServiceAuto            Service = "auto"
)

// ParseService maps user-facing names to a Service. Unknown or empty input
// yields ServiceAuto.
func ParseService(s string) Service {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "metaphor-classifier", "classifier", "classify":
		return ServiceClassifier
	case "lyric-generator", "lyrics", "lyric":
		return ServiceLyricGenerator
	case "metaphor-creator", "creator", "create":
		return ServiceMetaphorCreator
	default:
		return ServiceAuto
	}
}

// Intent parameter keys.
const (
	ParamEmotion = "emotion"
	ParamSeed    = "seed"
	ParamSource  = "source"
	ParamTarget  = "target"
)

type Intent struct {
	Service    Service           `json:"service"`
	Parameters map[string]string `json:"parameters"`
}

func (i Intent) Param(key string) string {
	return i.Parameters[key]
}
