package domain

import (
	"encoding/json"
)

type Label string

const (
	LabelMetaphor Label = "Metaphor"
	LabelLiteral  Label = "Literal"
	LabelUnknown  Label = "Unknown"
	LabelError    Label = "Error"
)

// HighConfidenceThreshold is the exclusive lower bound for a result to count
// as high confidence in Stats.
const HighConfidenceThreshold = 0.85

// Result is the outcome of classifying a single unit. Failed units carry
// LabelError or LabelUnknown with zero confidence.
type Result struct {
	Unit         string  `json:"text"`
	Label        Label   `json:"label"`
	Confidence   float64 `json:"confidence"`
	ErrorMessage string  `json:"error,omitempty"`
}

func (r Result) Failed() bool {
	return r.Label == LabelError || r.Label == LabelUnknown
}

type Stats struct {
	Total               int     `json:"total_sentences"`
	MetaphorCount       int     `json:"metaphor_count"`
	LiteralCount        int     `json:"literal_count"`
	AverageConfidence   float64 `json:"average_confidence"`
	HighConfidenceCount int     `json:"high_confidence_count"`
}

// ComputeStats derives aggregate statistics from results. The average
// includes the zero confidences of failed units.
func ComputeStats(results []Result) Stats {
	s := Stats{Total: len(results)}
	if len(results) == 0 {
		return s
	}

	var sum float64
	for _, r := range results {
		switch r.Label {
		case LabelMetaphor:
			s.MetaphorCount++
		case LabelLiteral:
			s.LiteralCount++
		}
		if r.Confidence > HighConfidenceThreshold {
			s.HighConfidenceCount++
		}
		sum += r.Confidence
	}
	s.AverageConfidence = sum / float64(len(results))

	return s
}

// ResultSet is an ordered, immutable sequence of results. Stats are never
// stored; they are recomputed from the results on demand.
type ResultSet struct {
	results []Result
}

func NewResultSet(results []Result) *ResultSet {
	cp := make([]Result, len(results))
	copy(cp, results)
	return &ResultSet{results: cp}
}

func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.results)
}

// Results returns a copy of the ordered results.
func (rs *ResultSet) Results() []Result {
	if rs == nil {
		return []Result{}
	}
	cp := make([]Result, len(rs.results))
	copy(cp, rs.results)
	return cp
}

func (rs *ResultSet) Units() []string {
	units := make([]string, rs.Len())
	for i := range units {
		units[i] = rs.results[i].Unit
	}
	return units
}

func (rs *ResultSet) Stats() Stats {
	if rs == nil {
		return ComputeStats(nil)
	}
	return ComputeStats(rs.results)
}

type resultSetJSON struct {
	Results []Result `json:"results"`
	Stats   *Stats   `json:"stats,omitempty"`
}

func (rs *ResultSet) MarshalJSON() ([]byte, error) {
	stats := rs.Stats()
	return json.Marshal(resultSetJSON{Results: rs.Results(), Stats: &stats})
}

// UnmarshalJSON restores the results only; any encoded stats are discarded.
func (rs *ResultSet) UnmarshalJSON(data []byte) error {
	var raw resultSetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Results == nil {
		raw.Results = []Result{}
	}
	rs.results = raw.Results
	return nil
}
