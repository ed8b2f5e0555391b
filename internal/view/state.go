package view

import "metaphorlab/internal/domain"

// State is a session's mutable view configuration. Changing any filter
// resets the page to 1; changing the sort keeps the current page.
type State struct {
	cfg Config
}

func NewState() *State {
	return &State{cfg: DefaultConfig()}
}

func (s *State) Config() Config { return s.cfg }

func (s *State) SetLabel(f LabelFilter) {
	s.cfg.Label = f
	s.cfg.Page = 1
}

func (s *State) SetConfidenceRange(lo, hi float64) error {
	next := s.cfg
	next.MinConfidence, next.MaxConfidence = lo, hi
	if err := next.Validate(); err != nil {
		return err
	}
	s.cfg = next
	s.cfg.Page = 1
	return nil
}

func (s *State) SetKeyword(k string) {
	s.cfg.Keyword = k
	s.cfg.Page = 1
}

func (s *State) SetSort(key SortKey, dir SortDirection) {
	s.cfg.SortKey = key
	s.cfg.SortDirection = dir
}

// ToggleSort flips the direction when key is already active and
// otherwise switches to key in ascending order.
func (s *State) ToggleSort(key SortKey) {
	if s.cfg.SortKey != key {
		s.cfg.SortKey = key
		s.cfg.SortDirection = Asc
		return
	}
	if s.cfg.SortDirection == Asc {
		s.cfg.SortDirection = Desc
	} else {
		s.cfg.SortDirection = Asc
	}
}

func (s *State) SetPage(page int) error {
	if page < 1 {
		return ErrInvalidPage
	}
	s.cfg.Page = page
	return nil
}

func (s *State) SetPageSize(size int) error {
	if size < 1 {
		return ErrInvalidPageSize
	}
	s.cfg.PageSize = size
	s.cfg.Page = 1
	return nil
}

// ClampPage pulls the page back into [1, TotalPages] for results.
func (s *State) ClampPage(results *domain.ResultSet) {
	total := TotalPages(len(Filter(results.Results(), s.cfg)), s.cfg.PageSize)
	s.cfg.Page = max(1, min(s.cfg.Page, total))
}

func (s *State) Derive(results *domain.ResultSet) Page {
	return Derive(results, s.cfg)
}
