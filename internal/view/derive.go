package view

import (
	"cmp"
	"slices"
	"strings"

	"metaphorlab/internal/domain"
)

type Page struct {
	Visible       []domain.Result `json:"visible"`
	TotalFiltered int             `json:"total_filtered"`
	TotalPages    int             `json:"total_pages"`
	Page          int             `json:"page"`
	PageSize      int             `json:"page_size"`
}

// Derive filters, sorts and paginates results under cfg. cfg is assumed
// valid. A page beyond TotalPages yields an empty Visible slice.
func Derive(results *domain.ResultSet, cfg Config) Page {
	filtered := Filter(results.Results(), cfg)
	Sort(filtered, cfg.SortKey, cfg.SortDirection)

	p := Page{
		Visible:       []domain.Result{},
		TotalFiltered: len(filtered),
		TotalPages:    TotalPages(len(filtered), cfg.PageSize),
		Page:          cfg.Page,
		PageSize:      cfg.PageSize,
	}

	// Compare in page units first; (Page-1)*PageSize can overflow.
	if len(filtered) == 0 || cfg.Page < 1 || cfg.Page-1 > (len(filtered)-1)/cfg.PageSize {
		return p
	}
	start := (cfg.Page - 1) * cfg.PageSize
	end := min(start+cfg.PageSize, len(filtered))
	p.Visible = filtered[start:end]
	return p
}

// Filter keeps the results that pass every predicate of cfg, in order.
func Filter(results []domain.Result, cfg Config) []domain.Result {
	keyword := strings.ToLower(cfg.Keyword)
	out := make([]domain.Result, 0, len(results))
	for _, r := range results {
		if !cfg.Label.matches(r.Label) {
			continue
		}
		if r.Confidence < cfg.MinConfidence || r.Confidence > cfg.MaxConfidence {
			continue
		}
		if keyword != "" && !strings.Contains(strings.ToLower(r.Unit), keyword) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Sort orders results in place. Equal keys keep their relative order, and
// SortOriginal leaves the slice untouched.
func Sort(results []domain.Result, key SortKey, dir SortDirection) {
	var compare func(a, b domain.Result) int
	switch key {
	case SortConfidence:
		compare = func(a, b domain.Result) int { return cmp.Compare(a.Confidence, b.Confidence) }
	case SortLabel:
		compare = func(a, b domain.Result) int { return strings.Compare(string(a.Label), string(b.Label)) }
	default:
		return
	}

	if dir == Desc {
		asc := compare
		compare = func(a, b domain.Result) int { return asc(b, a) }
	}
	slices.SortStableFunc(results, compare)
}

// TotalPages is ceil(n / pageSize), never less than 1.
func TotalPages(n, pageSize int) int {
	if pageSize < 1 || n == 0 {
		return 1
	}
	return (n + pageSize - 1) / pageSize
}
