// Package view derives the visible page of a result set from filter, sort
// and pagination settings.
package view

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"metaphorlab/internal/domain"
)

type LabelFilter string

const (
	FilterAll      LabelFilter = "all"
	FilterMetaphor LabelFilter = "metaphor"
	FilterLiteral  LabelFilter = "literal"
)

type SortKey string

const (
	SortOriginal   SortKey = "original"
	SortConfidence SortKey = "confidence"
	SortLabel      SortKey = "label"
)

type SortDirection string

const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

const DefaultPageSize = 5

var (
	ErrInvalidRange    = errors.New("view: confidence range must satisfy 0 <= min <= max <= 1")
	ErrInvalidPage     = errors.New("view: page must be >= 1")
	ErrInvalidPageSize = errors.New("view: page size must be positive")
	ErrInvalidLabel    = errors.New("view: unknown label filter")
	ErrInvalidSort     = errors.New("view: unknown sort key or direction")
)

type Config struct {
	Label         LabelFilter   `json:"label"`
	MinConfidence float64       `json:"min_confidence"`
	MaxConfidence float64       `json:"max_confidence"`
	Keyword       string        `json:"keyword"`
	SortKey       SortKey       `json:"sort"`
	SortDirection SortDirection `json:"direction"`
	Page          int           `json:"page"`
	PageSize      int           `json:"page_size"`
}

func DefaultConfig() Config {
	return Config{
		Label:         FilterAll,
		MinConfidence: 0,
		MaxConfidence: 1,
		SortKey:       SortOriginal,
		SortDirection: Asc,
		Page:          1,
		PageSize:      DefaultPageSize,
	}
}

// Validate checks the invariants Derive relies on. Derive itself never
// validates, so callers check input here before handing it over.
func (c Config) Validate() error {
	switch c.Label {
	case FilterAll, FilterMetaphor, FilterLiteral:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLabel, c.Label)
	}
	if math.IsNaN(c.MinConfidence) || math.IsNaN(c.MaxConfidence) ||
		c.MinConfidence < 0 || c.MaxConfidence > 1 || c.MinConfidence > c.MaxConfidence {
		return ErrInvalidRange
	}
	switch c.SortKey {
	case SortOriginal, SortConfidence, SortLabel:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSort, c.SortKey)
	}
	if c.SortDirection != Asc && c.SortDirection != Desc {
		return fmt.Errorf("%w: %q", ErrInvalidSort, c.SortDirection)
	}
	if c.Page < 1 {
		return ErrInvalidPage
	}
	if c.PageSize < 1 {
		return ErrInvalidPageSize
	}
	return nil
}

// ParseLabelFilter accepts the filter names case-insensitively; empty means all.
func ParseLabelFilter(s string) (LabelFilter, error) {
	switch f := LabelFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterMetaphor, FilterLiteral:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLabel, s)
	}
}

func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortOriginal, nil
	case SortOriginal, SortConfidence, SortLabel:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSort, s)
	}
}

func ParseSortDirection(s string) (SortDirection, error) {
	switch d := SortDirection(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return Asc, nil
	case Asc, Desc:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSort, s)
	}
}

func (f LabelFilter) matches(l domain.Label) bool {
	switch f {
	case FilterMetaphor:
		return l == domain.LabelMetaphor
	case FilterLiteral:
		return l == domain.LabelLiteral
	default:
		return true
	}
}
