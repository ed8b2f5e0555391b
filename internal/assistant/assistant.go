// Package assistant runs one chat session: it routes each message, calls
// the matching service and keeps the session's history trackers.
package assistant

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"metaphorlab/internal/batch"
	"metaphorlab/internal/domain"
	"metaphorlab/internal/gateway"
	"metaphorlab/internal/history"
	"metaphorlab/internal/intent"
	"metaphorlab/internal/segment"
)

type Reply struct {
	Service     domain.Service    `json:"service"`
	Intent      domain.Intent     `json:"intent"`
	Content     string            `json:"content"`
	Results     *domain.ResultSet `json:"results,omitempty"`
	Lyrics      []string          `json:"lyrics,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Metaphors   []string          `json:"metaphors,omitempty"`
	Fallback    bool              `json:"fallback,omitempty"`
	// Stale is set when a newer batch finished first; Results then belongs
	// to this request only and was not kept as the session's latest.
	Stale bool `json:"stale,omitempty"`
}

type Options struct {
	Batch     batch.Options
	MaxRecent int
	Logger    *zap.Logger
}

type Session struct {
	gw       gateway.Gateway
	orch     *batch.Orchestrator
	seq      batch.Sequencer
	searches *history.Tracker
	moods    *history.Tracker
	log      *zap.Logger

	mu     sync.RWMutex
	latest *domain.ResultSet
}

func NewSession(gw gateway.Gateway, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Batch.Logger == nil {
		opts.Batch.Logger = log
	}
	return &Session{
		gw:       gw,
		orch:     batch.NewOrchestrator(opts.Batch),
		searches: history.NewTracker(opts.MaxRecent),
		moods:    history.NewTracker(opts.MaxRecent),
		log:      log.Named("assistant"),
	}
}

func (s *Session) Searches() *history.Tracker { return s.searches }
func (s *Session) Moods() *history.Tracker    { return s.moods }

// Latest is the result set of the most recently started batch that has
// completed, or nil.
func (s *Session) Latest() *domain.ResultSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Handle answers one chat message. Only single-call services return an
// error; batch classification always produces a reply.
func (s *Session) Handle(ctx context.Context, message string, explicit domain.Service) (*Reply, error) {
	if strings.TrimSpace(message) == "" {
		return &Reply{Service: domain.ServiceAuto, Intent: domain.Intent{Service: domain.ServiceAuto, Parameters: map[string]string{}}, Content: helpText}, nil
	}

	in := intent.Route(message, explicit)
	s.log.Debug("routed", zap.String("service", string(in.Service)))

	switch in.Service {
	case domain.ServiceClassifier:
		return s.classify(ctx, in, classifierPayload(message)), nil
	case domain.ServiceLyricGenerator:
		return s.lyrics(ctx, in)
	case domain.ServiceMetaphorCreator:
		return s.metaphors(ctx, in)
	default:
		if isMultiLine(message) {
			in.Service = domain.ServiceClassifier
			return s.classify(ctx, in, message), nil
		}
		return &Reply{Service: domain.ServiceAuto, Intent: in, Content: helpText}, nil
	}
}

// Analyze segments text and classifies every unit. stale reports whether a
// newer Analyze finished first.
func (s *Session) Analyze(ctx context.Context, text string) (rs *domain.ResultSet, stale bool) {
	if t := strings.TrimSpace(text); t != "" {
		s.searches.Record(t)
	}

	ticket := s.seq.Next()
	rs = s.orch.Run(ctx, segment.Segment(text), s.gw.Predict)

	committed := s.seq.Commit(ticket, func() {
		s.mu.Lock()
		s.latest = rs
		s.mu.Unlock()
	})
	if !committed {
		s.log.Info("discarding stale batch", zap.Uint64("ticket", ticket))
	}
	return rs, !committed
}

func (s *Session) classify(ctx context.Context, in domain.Intent, payload string) *Reply {
	rs, stale := s.Analyze(ctx, payload)
	return &Reply{
		Service: domain.ServiceClassifier,
		Intent:  in,
		Content: formatAnalysis(rs),
		Results: rs,
		Stale:   stale,
	}
}

func (s *Session) lyrics(ctx context.Context, in domain.Intent) (*Reply, error) {
	emotion := in.Param(domain.ParamEmotion)
	seed := in.Param(domain.ParamSeed)

	out, err := s.gw.GenerateLyrics(ctx, gateway.LyricsRequest{Emotion: emotion, Seed: seed})
	if err != nil {
		return nil, fmt.Errorf("lyric generator: %w", err)
	}
	s.moods.Record(emotion)

	reply := &Reply{
		Service:     domain.ServiceLyricGenerator,
		Intent:      in,
		Lyrics:      out.Lines,
		Suggestions: out.Suggestions,
	}
	if len(out.Lines) == 0 {
		reply.Lyrics = fallbackLyrics
		reply.Fallback = true
	}
	reply.Content = formatLyrics(emotion, seed, reply.Lyrics)
	return reply, nil
}

func (s *Session) metaphors(ctx context.Context, in domain.Intent) (*Reply, error) {
	req := gateway.MetaphorRequest{
		Source:  in.Param(domain.ParamSource),
		Target:  in.Param(domain.ParamTarget),
		Emotion: in.Param(domain.ParamEmotion),
	}

	out, err := s.gw.CreateMetaphors(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("metaphor creator: %w", err)
	}

	reply := &Reply{Service: domain.ServiceMetaphorCreator, Intent: in, Metaphors: out}
	if len(out) == 0 {
		reply.Metaphors = FallbackMetaphors(req.Source, req.Target)
		reply.Fallback = true
	}
	reply.Content = formatMetaphors(req, reply.Metaphors)
	return reply, nil
}

var quoted = regexp.MustCompile(`"([^"]+)"`)

// classifierPayload picks the quoted passages out of a command such as
// `Identify metaphors in "..."`; without quotes the whole message is the
// payload.
func classifierPayload(message string) string {
	matches := quoted.FindAllStringSubmatch(message, -1)
	if len(matches) == 0 {
		return message
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, m[1])
	}
	return strings.Join(parts, "\n")
}

func isMultiLine(message string) bool {
	lines := 0
	for _, l := range strings.Split(message, "\n") {
		if strings.TrimSpace(l) != "" {
			lines++
		}
	}
	return lines > 1
}
