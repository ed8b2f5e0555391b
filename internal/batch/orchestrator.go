package batch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"metaphorlab/internal/domain"
	"metaphorlab/internal/gateway"
)

// CallFunc classifies one unit.
type CallFunc func(ctx context.Context, unit string) (gateway.Prediction, error)

type Options struct {
	// CallTimeout bounds each call; zero means no per-call timeout.
	CallTimeout time.Duration
	// Concurrency caps in-flight calls; zero issues every call at once.
	Concurrency int
	// FailureLabel marks units whose call failed. Defaults to Error.
	FailureLabel domain.Label
	// MalformedLabel marks units whose response had no known shape.
	// Defaults to Unknown.
	MalformedLabel domain.Label
	Logger         *zap.Logger
}

type Orchestrator struct {
	opts Options
	log  *zap.Logger
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.FailureLabel == "" {
		opts.FailureLabel = domain.LabelError
	}
	if opts.MalformedLabel == "" {
		opts.MalformedLabel = domain.LabelUnknown
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{opts: opts, log: log.Named("batch")}
}

// Run classifies every unit and returns once all of them have settled. It
// never fails: a unit whose call errors, times out or returns a malformed
// payload gets a zero-confidence result and its siblings are unaffected.
func (o *Orchestrator) Run(ctx context.Context, units []string, call CallFunc) *domain.ResultSet {
	start := time.Now()

	settled := JoinAll(ctx, len(units), o.opts.Concurrency, func(ctx context.Context, i int) (gateway.Prediction, error) {
		if o.opts.CallTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, o.opts.CallTimeout)
			defer cancel()
		}
		return call(ctx, units[i])
	})

	results := make([]domain.Result, len(units))
	failed := 0
	for _, s := range settled {
		unit := units[s.Index]
		if s.Err != nil {
			results[s.Index] = domain.Result{
				Unit:         unit,
				Label:        o.opts.FailureLabel,
				ErrorMessage: s.Err.Error(),
			}
		} else {
			results[s.Index] = Normalize(unit, s.Value, o.opts.MalformedLabel)
		}
		if results[s.Index].Failed() {
			failed++
			o.log.Debug("unit failed",
				zap.Int("index", s.Index),
				zap.String("label", string(results[s.Index].Label)),
				zap.String("reason", results[s.Index].ErrorMessage))
		}
	}

	set := domain.NewResultSet(results)
	o.log.Info("batch settled",
		zap.Int("units", len(units)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)))
	return set
}

// Normalize maps a decoded prediction onto the canonical result for unit.
// The unit text always comes from the request, never from the response.
func Normalize(unit string, p gateway.Prediction, malformed domain.Label) domain.Result {
	switch p := p.(type) {
	case gateway.ResultsWrapper:
		if len(p.Results) == 0 {
			return domain.Result{Unit: unit, Label: malformed, ErrorMessage: gateway.ErrMalformed.Error() + ": empty results"}
		}
		first := p.Results[0]
		return domain.Result{Unit: unit, Label: first.Label, Confidence: first.Confidence}
	case gateway.FlatPrediction:
		label := domain.LabelLiteral
		if p.IsMetaphor {
			label = domain.LabelMetaphor
		}
		return domain.Result{Unit: unit, Label: label, Confidence: p.Confidence}
	case gateway.Malformed:
		return domain.Result{Unit: unit, Label: malformed, ErrorMessage: p.Err().Error()}
	default:
		return domain.Result{Unit: unit, Label: malformed, ErrorMessage: gateway.ErrMalformed.Error() + ": empty prediction"}
	}
}
