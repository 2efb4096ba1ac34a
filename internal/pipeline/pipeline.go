// Package pipeline orchestrates the announcement-processing run: filter,
// pre-dedup, classify, post-dedup, research, recommend. Stages execute
// strictly in sequence; within the classification and research stages items
// are processed by bounded worker pools.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tradelab/fnoscan/internal/classify"
	"github.com/tradelab/fnoscan/internal/config"
	"github.com/tradelab/fnoscan/internal/database"
	"github.com/tradelab/fnoscan/internal/dedup"
	"github.com/tradelab/fnoscan/internal/llm"
	"github.com/tradelab/fnoscan/internal/models"
	"github.com/tradelab/fnoscan/internal/research"
	"github.com/tradelab/fnoscan/internal/score"
	"github.com/tradelab/fnoscan/internal/source"
	"github.com/tradelab/fnoscan/internal/universe"
)

// Stage names the steps of the run state machine.
type Stage string

const (
	StageFiltered    Stage = "filtered"
	StagePreDeduped  Stage = "pre_deduped"
	StageClassified  Stage = "classified"
	StagePostDeduped Stage = "post_deduped"
	StageResearched  Stage = "researched"
	StageRecommended Stage = "recommended"
)

// Per-item skip reasons recorded in the run's error log.
const (
	ReasonNotInUniverse        = "not_in_universe"
	ReasonCapReached           = "cap_reached"
	ReasonClassificationFailed = "classification_failed"
	ReasonBelowMinConfidence   = "below_min_confidence"
	ReasonNeutralDirection     = "neutral_direction"
	ReasonNoTechnicalData      = "no_technical_data"
	ReasonTechnicalFailed      = "technical_data_failed"
)

// ItemError records why one item left the pipeline (or was degraded).
type ItemError struct {
	Symbol      string `json:"symbol"`
	Fingerprint string `json:"fingerprint"`
	Stage       Stage  `json:"stage"`
	Reason      string `json:"reason"`
}

// Result is the aggregate outcome of one pipeline run.
type Result struct {
	RunID           string                  `json:"run_id"`
	Date            time.Time               `json:"date"`
	Counts          map[Stage]int           `json:"counts"`
	Recommendations []models.Recommendation `json:"recommendations"`
	Errors          []ItemError             `json:"errors"`
	Partial         bool                    `json:"partial"`
}

// Runner executes pipeline runs. The pacer and classification cache are
// shared across runs; the call budget is fresh per run.
type Runner struct {
	cfg      *config.Config
	db       *database.DB
	src      source.Source
	provider llm.Provider
	pacer    classify.Pacer
	cache    *lru.Cache[string, models.Classification]
	research research.Provider
	dedup    *dedup.Engine

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a runner from configuration. Fails when no LLM provider is
// configured: the pipeline cannot classify without one.
func New(cfg *config.Config, db *database.DB) (*Runner, error) {
	cls := cfg.Classification
	provider := llm.CreateProvider(
		cls.Provider, cls.GroqModel, cls.GroqAPIKeyEnv,
		cls.GeminiModel, cls.GeminiAPIKeyEnv,
	)
	if provider == nil {
		return nil, fmt.Errorf("no LLM provider configured; set %s or %s", cls.GroqAPIKeyEnv, cls.GeminiAPIKeyEnv)
	}

	cache, err := classify.NewCache(cfg.Pipeline.CacheSize)
	if err != nil {
		return nil, err
	}

	return NewWithComponents(
		cfg, db,
		source.NewDBSource(db),
		provider,
		classify.NewRatePacer(cfg.Pipeline.LLMCallDelay.Std()),
		cache,
		research.NewSQLiteProvider(db),
		dedup.New(nil),
	), nil
}

// NewWithComponents wires a runner from explicit collaborators.
func NewWithComponents(
	cfg *config.Config,
	db *database.DB,
	src source.Source,
	provider llm.Provider,
	pacer classify.Pacer,
	cache *lru.Cache[string, models.Classification],
	researchProvider research.Provider,
	dedupEngine *dedup.Engine,
) *Runner {
	return &Runner{
		cfg:      cfg,
		db:       db,
		src:      src,
		provider: provider,
		pacer:    pacer,
		cache:    cache,
		research: researchProvider,
		dedup:    dedupEngine,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockDate serializes runs for the same target date, so a concurrent re-run
// does not double-spend the classification budget.
func (r *Runner) lockDate(date string) func() {
	r.mu.Lock()
	l, ok := r.locks[date]
	if !ok {
		l = &sync.Mutex{}
		r.locks[date] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Run executes the full pipeline for one trading date. Configuration and
// universe problems fail the run before any stage; everything else degrades
// to per-item errors in the result. Cancellation stops the run at the next
// stage boundary and returns a partial result.
func (r *Runner) Run(ctx context.Context, date time.Time) (*Result, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}

	dateStr := date.Format("2006-01-02")
	unlock := r.lockDate(dateStr)
	defer unlock()

	res := &Result{
		RunID:  uuid.NewString(),
		Date:   date,
		Counts: make(map[Stage]int),
	}

	// Universe data missing is fatal: every symbol's eligibility would be
	// unknown.
	uni, err := universe.Load(r.db)
	if err != nil {
		return nil, err
	}

	if err := r.db.InsertRun(res.RunID, dateStr); err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}
	defer func() {
		if err := r.db.FinishRun(res.RunID, res.Partial, len(res.Recommendations), len(res.Errors)); err != nil {
			log.Printf("Failed to finish run record: %v", err)
		}
	}()

	anns, err := r.src.Fetch(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("fetching announcements: %w", err)
	}
	log.Printf("Run %s: %d announcements for %s", res.RunID, len(anns), dateStr)

	// Stage 1: universe filter.
	filtered := r.filterStage(anns, uni, res)
	res.Counts[StageFiltered] = len(filtered)
	if cancelled(ctx, res) {
		return res, nil
	}

	// Stage 2: pre-classification dedup.
	preDeduped := r.dedup.Pre(filtered)
	res.Counts[StagePreDeduped] = len(preDeduped)
	log.Printf("Pre-dedup: %d of %d announcements survive", len(preDeduped), len(filtered))
	if cancelled(ctx, res) {
		return res, nil
	}

	// Stage 3: classification through the gated LLM capability.
	classified := r.classifyStage(ctx, preDeduped, res)
	res.Counts[StageClassified] = len(classified)
	if cancelled(ctx, res) {
		return res, nil
	}

	// Stage 4: post-classification dedup plus the confidence filter.
	postDeduped := r.dedup.Post(classified)
	res.Counts[StagePostDeduped] = len(postDeduped)
	eligible := r.confidenceFilter(postDeduped, res)
	if cancelled(ctx, res) {
		return res, nil
	}

	// Stage 5: technical research.
	researched := r.researchStage(ctx, eligible, res)
	res.Counts[StageResearched] = len(researched)
	if cancelled(ctx, res) {
		return res, nil
	}

	// Stage 6: scoring and persistence.
	res.Recommendations = r.recommendStage(researched, res)
	res.Counts[StageRecommended] = len(res.Recommendations)

	log.Printf("Run %s complete: %d recommendations, %d item errors, partial=%v",
		res.RunID, len(res.Recommendations), len(res.Errors), res.Partial)
	return res, nil
}

func cancelled(ctx context.Context, res *Result) bool {
	if ctx.Err() != nil {
		res.Partial = true
		return true
	}
	return false
}

func (r *Runner) filterStage(anns []models.Announcement, uni universe.Universe, res *Result) []models.Announcement {
	var kept []models.Announcement
	for _, a := range anns {
		if !uni.Contains(a.Symbol) {
			res.Errors = append(res.Errors, ItemError{
				Symbol:      a.Symbol,
				Fingerprint: a.Fingerprint(),
				Stage:       StageFiltered,
				Reason:      ReasonNotInUniverse,
			})
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

// classifyStage runs the gateway over all surviving items with a bounded
// worker pool. Item failures and cap exhaustion never abort the stage.
func (r *Runner) classifyStage(ctx context.Context, anns []models.Announcement, res *Result) []dedup.Classified {
	gateway, err := classify.NewGateway(
		r.provider, r.pacer,
		r.cfg.Pipeline.MaxClassifications,
		r.cfg.Classification.MaxTokens,
		r.cache,
	)
	if err != nil {
		// Only a nil provider triggers this, which New already rejects.
		log.Printf("Failed to create classification gateway: %v", err)
		return nil
	}

	type slot struct {
		item dedup.Classified
		err  error
	}
	slots := make([]slot, len(anns))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Pipeline.ClassifyWorkers)
	for i, ann := range anns {
		g.Go(func() error {
			cls, err := gateway.Classify(gctx, ann)
			slots[i] = slot{item: dedup.Classified{Announcement: ann, Classification: cls}, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var out []dedup.Classified
	for i, s := range slots {
		switch {
		case s.err == nil:
			out = append(out, s.item)
		case errors.Is(s.err, classify.ErrCapReached):
			res.Partial = true
			res.Errors = append(res.Errors, ItemError{
				Symbol:      anns[i].Symbol,
				Fingerprint: anns[i].Fingerprint(),
				Stage:       StageClassified,
				Reason:      ReasonCapReached,
			})
		default:
			log.Printf("Classification failed for %s: %v", anns[i].Symbol, s.err)
			res.Errors = append(res.Errors, ItemError{
				Symbol:      anns[i].Symbol,
				Fingerprint: anns[i].Fingerprint(),
				Stage:       StageClassified,
				Reason:      ReasonClassificationFailed,
			})
		}
	}
	log.Printf("Classified %d of %d items (%d calls used)", len(out), len(anns), gateway.CallsUsed())
	return out
}

// confidenceFilter drops items below the configured confidence tier or with
// a neutral direction; neither is worth technical research.
func (r *Runner) confidenceFilter(items []dedup.Classified, res *Result) []dedup.Classified {
	minLevel := models.Confidence(r.cfg.Pipeline.MinConfidence).Level()

	var kept []dedup.Classified
	for _, it := range items {
		if it.Classification.Direction == models.DirectionNeutral {
			res.Errors = append(res.Errors, ItemError{
				Symbol:      it.Announcement.Symbol,
				Fingerprint: it.Announcement.Fingerprint(),
				Stage:       StagePostDeduped,
				Reason:      ReasonNeutralDirection,
			})
			continue
		}
		if it.Classification.Confidence.Level() < minLevel {
			res.Errors = append(res.Errors, ItemError{
				Symbol:      it.Announcement.Symbol,
				Fingerprint: it.Announcement.Fingerprint(),
				Stage:       StagePostDeduped,
				Reason:      ReasonBelowMinConfidence,
			})
			continue
		}
		kept = append(kept, it)
	}
	return kept
}

type researched struct {
	item dedup.Classified
	snap *models.TechnicalSnapshot
}

// researchStage fetches technical snapshots in parallel. A missing snapshot
// degrades the item (recorded as a data-gap warning); a provider failure
// drops it.
func (r *Runner) researchStage(ctx context.Context, items []dedup.Classified, res *Result) []researched {
	type slot struct {
		snap *models.TechnicalSnapshot
		err  error
	}
	slots := make([]slot, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Pipeline.ResearchWorkers)
	for i, it := range items {
		g.Go(func() error {
			snap, err := r.research.Snapshot(gctx, it.Announcement.Symbol, it.Announcement.EventDate)
			slots[i] = slot{snap: snap, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var out []researched
	for i, s := range slots {
		it := items[i]
		switch {
		case s.err == nil:
			out = append(out, researched{item: it, snap: s.snap})
		case errors.Is(s.err, research.ErrNotAvailable):
			// Data gap, not an error: the item continues without technicals.
			res.Errors = append(res.Errors, ItemError{
				Symbol:      it.Announcement.Symbol,
				Fingerprint: it.Announcement.Fingerprint(),
				Stage:       StageResearched,
				Reason:      ReasonNoTechnicalData,
			})
			out = append(out, researched{item: it, snap: nil})
		default:
			log.Printf("Technical research failed for %s: %v", it.Announcement.Symbol, s.err)
			res.Errors = append(res.Errors, ItemError{
				Symbol:      it.Announcement.Symbol,
				Fingerprint: it.Announcement.Fingerprint(),
				Stage:       StageResearched,
				Reason:      ReasonTechnicalFailed,
			})
		}
	}
	return out
}

// recommendStage scores every researched item and persists the outcome,
// replacing any recommendations from an earlier run for the same date.
func (r *Runner) recommendStage(items []researched, res *Result) []models.Recommendation {
	recs := make([]models.Recommendation, 0, len(items))
	for _, it := range items {
		recs = append(recs, buildRecommendation(it.item.Announcement, it.item.Classification, it.snap))
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].ConfidenceScore != recs[j].ConfidenceScore {
			return recs[i].ConfidenceScore > recs[j].ConfidenceScore
		}
		return recs[i].Symbol < recs[j].Symbol
	})

	dateStr := res.Date.Format("2006-01-02")
	if err := r.db.DeleteRecommendationsForDate(dateStr); err != nil {
		log.Printf("Failed to clear old recommendations: %v", err)
		return recs
	}
	for _, rec := range recs {
		if err := r.db.InsertRecommendation(res.RunID, rec); err != nil {
			log.Printf("Failed to store recommendation for %s: %v", rec.Symbol, err)
		}
	}
	return recs
}

func buildRecommendation(ann models.Announcement, cls models.Classification, snap *models.TechnicalSnapshot) models.Recommendation {
	sc := score.Evaluate(cls, snap)
	return models.Recommendation{
		Symbol:            ann.Symbol,
		AnnouncementDate:  ann.EventDate,
		Headline:          ann.Headline,
		Direction:         cls.Direction,
		ConfidenceScore:   sc.ConfidenceScore,
		TradeReady:        sc.TradeReady,
		SuggestedStrategy: sc.SuggestedStrategy,
		Classification:    cls,
		Technicals:        snap,
	}
}

// ResearchSymbol is the ad hoc single-symbol path: it classifies the most
// recent stored announcement for the symbol and date, fetches technicals,
// and scores the pair without dedup stages.
func (r *Runner) ResearchSymbol(ctx context.Context, symbol string, date time.Time) (*models.Recommendation, error) {
	uni, err := universe.Load(r.db)
	if err != nil {
		return nil, err
	}
	if !uni.Contains(symbol) {
		return nil, fmt.Errorf("%s is not in the FNO universe", symbol)
	}

	dateStr := date.Format("2006-01-02")
	ann, err := r.db.GetLatestAnnouncement(symbol, dateStr)
	if err != nil {
		return nil, err
	}
	if ann == nil {
		return nil, fmt.Errorf("no announcement found for %s on %s", symbol, dateStr)
	}

	gateway, err := classify.NewGateway(
		r.provider, r.pacer,
		r.cfg.Pipeline.MaxClassifications,
		r.cfg.Classification.MaxTokens,
		r.cache,
	)
	if err != nil {
		return nil, err
	}
	cls, err := gateway.Classify(ctx, *ann)
	if err != nil {
		return nil, fmt.Errorf("classifying announcement: %w", err)
	}

	snap, err := r.research.Snapshot(ctx, symbol, date)
	if err != nil && !errors.Is(err, research.ErrNotAvailable) {
		return nil, fmt.Errorf("fetching technicals: %w", err)
	}

	rec := buildRecommendation(*ann, cls, snap)
	return &rec, nil
}
