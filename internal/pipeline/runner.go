package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cardlens/benefit-cli/internal/aggregate"
	"github.com/cardlens/benefit-cli/internal/model"
	"github.com/cardlens/benefit-cli/pkg/anthropic"
)

const (
	defaultMinRelevance = 0.3
	defaultMaxSources   = 15
	defaultParallelism  = 4
)

// Runner executes pipelines over a raw record's sources. A nil model client
// degrades every pipeline to its pattern pass.
type Runner struct {
	registry *Registry
	client   anthropic.Client
	merger   *aggregate.Merger
	cfg      ModelConfig

	minRelevance float64
	maxSources   int
	parallelism  int
}

// Option configures a Runner.
type Option func(*Runner)

// WithModelConfig overrides the model pass configuration.
func WithModelConfig(cfg ModelConfig) Option {
	return func(r *Runner) { r.cfg = cfg }
}

// WithMinRelevance sets the relevance score below which a source is skipped
// unless its URL matches the pipeline's hints.
func WithMinRelevance(score float64) Option {
	return func(r *Runner) { r.minRelevance = score }
}

// WithMaxSources caps how many sources one pipeline processes per record.
func WithMaxSources(n int) Option {
	return func(r *Runner) { r.maxSources = n }
}

// WithParallelism bounds concurrent pipelines in a parallel run.
func WithParallelism(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// NewRunner builds a Runner. The merger handles within-source merging; a
// nil merger gets the default policy.
func NewRunner(registry *Registry, client anthropic.Client, merger *aggregate.Merger, opts ...Option) *Runner {
	if merger == nil {
		merger = aggregate.NewMerger("", aggregate.Thresholds{})
	}
	r := &Runner{
		registry:     registry,
		client:       client,
		merger:       merger,
		cfg:          DefaultModelConfig(),
		minRelevance: defaultMinRelevance,
		maxSources:   defaultMaxSources,
		parallelism:  defaultParallelism,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the named pipelines over the record. An empty name list runs
// every registered pipeline. Results come back in input order; a pipeline
// that fails reports Success false and leaves its siblings untouched.
func (r *Runner) Run(ctx context.Context, names []string, rec *model.RawRecord, parallel bool) []model.PipelineResult {
	if len(names) == 0 {
		names = r.registry.Names()
	}
	card := CardContext{CardName: rec.CardName, BankName: rec.BankName}

	results := make([]model.PipelineResult, len(names))
	if parallel && len(names) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.parallelism)
		for i, name := range names {
			g.Go(func() error {
				results[i] = r.runOne(gctx, name, rec, card)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, name := range names {
			results[i] = r.runOne(ctx, name, rec, card)
		}
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, name string, rec *model.RawRecord, card CardContext) (res model.PipelineResult) {
	started := time.Now()
	res = model.PipelineResult{Pipeline: name, StartedAt: started}
	defer func() {
		if v := recover(); v != nil {
			res.Success = false
			res.Errors = append(res.Errors, fmt.Sprintf("pipeline panicked: %v", v))
			zap.L().Error("pipeline panic",
				zap.String("pipeline", name),
				zap.Any("panic", v),
			)
		}
		res.DurationMS = time.Since(started).Milliseconds()
	}()

	p, ok := r.registry.Get(name)
	if !ok {
		res.Errors = append(res.Errors, fmt.Sprintf("unknown pipeline %q", name))
		return res
	}
	res.BenefitType = p.BenefitType
	res.Stats.SourcesTotal = len(rec.Sources)

	selected := r.selectSources(p, rec)
	res.Stats.SourcesRelevant = len(selected)
	if len(selected) > r.maxSources {
		selected = selected[:r.maxSources]
	}
	zap.L().Debug("pipeline start",
		zap.String("pipeline", name),
		zap.String("record", rec.ID),
		zap.Int("sources", len(selected)),
	)

	now := time.Now()
	var benefits []model.ExtractedBenefit
	for _, src := range selected {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("cancelled after %d sources: %v", res.Stats.SourcesProcessed, err))
			break
		}

		patternFound := p.ExtractPatterns(src.Content, src.URL, src.Title, now)
		res.Stats.PatternExtractions += len(patternFound)

		var modelFound []model.ExtractedBenefit
		if r.client != nil && p.PromptIntro != "" {
			found, err := p.ExtractModel(ctx, r.client, r.cfg, card, src.Content, src.URL, src.Title, now)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("model extraction failed for %s: %v", src.URL, err))
				zap.L().Warn("model extraction failed, keeping pattern results",
					zap.String("pipeline", name),
					zap.String("url", src.URL),
					zap.Error(err),
				)
			} else {
				modelFound = found
				res.Stats.ModelExtractions += len(found)
			}
		}

		benefits = append(benefits, r.merger.MergeWithinSource(append(modelFound, patternFound...))...)
		res.Stats.SourcesProcessed++
	}

	res.Benefits = benefits
	res.Success = len(res.Errors) == 0
	zap.L().Info("pipeline done",
		zap.String("pipeline", name),
		zap.String("record", rec.ID),
		zap.Bool("success", res.Success),
		zap.Int("benefits", len(benefits)),
		zap.Int64("duration_ms", time.Since(started).Milliseconds()),
	)
	return res
}

// selectSources gates and orders the record's sources for one pipeline:
// sources under the content floor are out, the rest stay when they clear
// the relevance floor or match the pipeline's URL hints, best scores first.
func (r *Runner) selectSources(p *Pipeline, rec *model.RawRecord) []model.Source {
	type scored struct {
		src   model.Source
		score float64
		pos   int
	}
	var picked []scored
	for i, src := range rec.Sources {
		if len(src.Content) < minContentChars {
			continue
		}
		score, _ := p.Relevance(src.Content, src.URL)
		if score < r.minRelevance && !p.MatchesSource(src.URL, src.Title) {
			continue
		}
		picked = append(picked, scored{src: src, score: score, pos: i})
	}
	sort.Slice(picked, func(i, j int) bool {
		if picked[i].score != picked[j].score {
			return picked[i].score > picked[j].score
		}
		return picked[i].pos < picked[j].pos
	})

	out := make([]model.Source, len(picked))
	for i, s := range picked {
		out[i] = s.src
	}
	return out
}
