// Package discovery turns a free-text query into pages of enriched titles and
// tracks the paging state of each discovery session.
package discovery

//go:generate mockgen -source=pipeline.go -destination=mock_deps_test.go -package=discovery

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/mozillazg/go-unidecode"
	"github.com/sourcegraph/conc/iter"
	"github.com/sourcegraph/conc/panics"

	"cinewise/internal/metrics"
	"cinewise/models"
)

// User-facing messages. Raw errors are never shown.
const (
	MsgNoMatches       = "No matches found. Try a different search."
	MsgConnectionError = "Connection error. Please try again."
)

// Recommender proposes candidate titles. It must not fail; an unusable
// upstream is expected to be hidden behind a fallback.
type Recommender interface {
	Generate(ctx context.Context, query string, exclude []string) []models.Recommendation
}

// Resolver maps a candidate onto a catalogue record, reporting false when
// the candidate cannot be found.
type Resolver interface {
	Resolve(ctx context.Context, title string, mediaType models.MediaType, year int) (models.MediaRecord, bool)
}

// Enricher fetches providers and trailer for a record. Failures yield empty fields.
type Enricher interface {
	Enrich(ctx context.Context, id int64, mediaType models.MediaType) models.Enrichment
}

// PipelineOptions tunes the per-page fan-out.
type PipelineOptions struct {
	// MaxConcurrency bounds candidates processed at once; 0 runs them all in parallel.
	MaxConcurrency int
	// CandidateTimeout bounds resolve+enrich for one candidate; 0 leaves it to the transport.
	CandidateTimeout time.Duration
}

// Pipeline runs aggregation cycles.
type Pipeline struct {
	recommender      Recommender
	resolver         Resolver
	enricher         Enricher
	maxConcurrency   int
	candidateTimeout time.Duration
}

func NewPipeline(recommender Recommender, resolver Resolver, enricher Enricher, opts PipelineOptions) *Pipeline {
	return &Pipeline{
		recommender:      recommender,
		resolver:         resolver,
		enricher:         enricher,
		maxConcurrency:   opts.MaxConcurrency,
		candidateTimeout: opts.CandidateTimeout,
	}
}

// Aggregate produces one page for query, skipping every title in exclude.
// Items keep the generator's candidate order. Exhausted is set when the
// generator proposes nothing or no candidate survives.
func (p *Pipeline) Aggregate(ctx context.Context, query string, exclude []string, incremental bool) models.PageResult {
	return p.aggregate(ctx, query, exclude, incremental, nil)
}

// aggregate is Aggregate with a hook fired once candidates are known.
func (p *Pipeline) aggregate(ctx context.Context, query string, exclude []string, incremental bool, onCandidates func(n int)) (result models.PageResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[discovery] aggregation cycle for %q failed: %v", query, r)
			result = models.PageResult{Items: []models.EnrichedItem{}, Errored: MsgConnectionError}
		}
	}()

	candidates := p.recommender.Generate(ctx, query, exclude)
	if len(candidates) == 0 {
		result = models.PageResult{Items: []models.EnrichedItem{}, Exhausted: true}
		if !incremental {
			result.Errored = MsgNoMatches
		}
		return result
	}
	if onCandidates != nil {
		onCandidates(len(candidates))
	}

	excluded := make(map[string]struct{}, len(exclude))
	for _, t := range exclude {
		excluded[titleKey(t)] = struct{}{}
	}

	// The generator is advisory about exclusions; check again.
	survivors := make([]models.Recommendation, 0, len(candidates))
	for _, c := range candidates {
		if _, seen := excluded[titleKey(c.Title)]; seen {
			metrics.CandidateOutcomes.WithLabelValues("excluded").Inc()
			continue
		}
		survivors = append(survivors, c)
	}

	limit := p.maxConcurrency
	if limit <= 0 {
		limit = len(survivors)
	}
	mapper := iter.Mapper[models.Recommendation, *models.EnrichedItem]{MaxGoroutines: limit}
	settled := mapper.Map(survivors, func(c *models.Recommendation) *models.EnrichedItem {
		return p.settle(ctx, *c)
	})

	result = models.PageResult{Items: make([]models.EnrichedItem, 0, len(settled))}
	seen := make(map[string]struct{}, len(settled))
	for i, item := range settled {
		if item == nil {
			continue
		}
		// A catalogue title can differ from the suggested one and still be excluded.
		if _, dup := excluded[titleKey(item.Title)]; dup {
			metrics.CandidateOutcomes.WithLabelValues("excluded").Inc()
			continue
		}
		if _, dup := seen[item.Key()]; dup {
			continue
		}
		seen[item.Key()] = struct{}{}
		metrics.CandidateOutcomes.WithLabelValues("kept").Inc()

		result.Items = append(result.Items, *item)
		result.Titles = append(result.Titles, item.Title)
		if suggested := strings.TrimSpace(survivors[i].Title); suggested != "" && suggested != item.Title {
			result.Titles = append(result.Titles, suggested)
		}
	}

	if len(result.Items) == 0 {
		result.Exhausted = true
	}
	return result
}

// settle processes one candidate in isolation: a panic or miss yields nil
// without affecting siblings.
func (p *Pipeline) settle(ctx context.Context, c models.Recommendation) *models.EnrichedItem {
	if p.candidateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.candidateTimeout)
		defer cancel()
	}

	var item *models.EnrichedItem
	var pc panics.Catcher
	pc.Try(func() {
		record, ok := p.resolver.Resolve(ctx, c.Title, c.MediaType, c.Year)
		if !ok {
			metrics.CandidateOutcomes.WithLabelValues("unresolved").Inc()
			return
		}
		// The candidate's type is authoritative for the merged item.
		record.MediaType = c.MediaType
		enriched := models.NewEnrichedItem(record, p.enricher.Enrich(ctx, record.ID, c.MediaType), c.Reason)
		item = &enriched
	})
	if r := pc.Recovered(); r != nil {
		metrics.CandidateOutcomes.WithLabelValues("panicked").Inc()
		log.Printf("[discovery] candidate %q dropped: %v", c.Title, r.AsError())
		return nil
	}
	return item
}

// titleKey folds a title for exclusion checks: accents transliterated,
// case and inner whitespace normalized.
func titleKey(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(unidecode.Unidecode(title)), " "))
}
