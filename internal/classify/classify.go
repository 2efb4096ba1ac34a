// Package classify wraps the LLM provider behind a gateway that enforces
// the run's call budget, paces outbound requests, and caches results by
// announcement fingerprint.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/tradelab/fnoscan/internal/llm"
	"github.com/tradelab/fnoscan/internal/models"
)

// ErrCapReached signals that the per-run classification call budget is
// exhausted. Remaining items are skipped, not failed.
var ErrCapReached = errors.New("classification call cap reached")

// Pacer spaces outbound LLM calls. Cache hits never pass through it.
type Pacer interface {
	Acquire(ctx context.Context) error
}

type ratePacer struct {
	limiter *rate.Limiter
}

// NewRatePacer returns a pacer enforcing a minimum interval between calls,
// with a burst of one. A non-positive interval disables pacing.
func NewRatePacer(minInterval time.Duration) Pacer {
	if minInterval <= 0 {
		return nopPacer{}
	}
	return &ratePacer{limiter: rate.NewLimiter(rate.Every(minInterval), 1)}
}

func (p *ratePacer) Acquire(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

type nopPacer struct{}

func (nopPacer) Acquire(ctx context.Context) error { return nil }

// Gateway is the single path to the classification provider.
type Gateway struct {
	provider  llm.Provider
	pacer     Pacer
	maxCalls  int
	maxTokens int

	// retryDelay is the wait before the single retry of a transient failure.
	retryDelay time.Duration

	mu    sync.Mutex
	calls int

	cache *lru.Cache[string, models.Classification]
}

// NewCache creates the bounded fingerprint cache. It is shared across runs
// so repeated runs for the same date spend no budget on known items.
func NewCache(size int) (*lru.Cache[string, models.Classification], error) {
	if size <= 0 {
		size = 256
	}
	return lru.New[string, models.Classification](size)
}

// NewGateway creates a gateway. maxCalls is the hard per-run cap on provider
// calls. The pacer and cache may be shared with other gateways; a nil cache
// gets a private default-sized one.
func NewGateway(provider llm.Provider, pacer Pacer, maxCalls, maxTokens int, cache *lru.Cache[string, models.Classification]) (*Gateway, error) {
	if provider == nil {
		return nil, fmt.Errorf("nil LLM provider")
	}
	if pacer == nil {
		pacer = nopPacer{}
	}
	if cache == nil {
		var err error
		cache, err = NewCache(0)
		if err != nil {
			return nil, fmt.Errorf("creating classification cache: %w", err)
		}
	}
	return &Gateway{
		provider:   provider,
		pacer:      pacer,
		maxCalls:   maxCalls,
		maxTokens:  maxTokens,
		retryDelay: 2 * time.Second,
		cache:      cache,
	}, nil
}

// CallsUsed returns how many provider calls the gateway has consumed.
func (g *Gateway) CallsUsed() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// Classify returns the classification for one announcement. A cached result
// is returned immediately without consuming budget or waiting on the pacer.
// A transient provider failure is retried once; any other failure is final.
func (g *Gateway) Classify(ctx context.Context, ann models.Announcement) (models.Classification, error) {
	fp := ann.Fingerprint()
	if cls, ok := g.cache.Get(fp); ok {
		return cls, nil
	}

	g.mu.Lock()
	if g.calls >= g.maxCalls {
		g.mu.Unlock()
		return models.Classification{}, ErrCapReached
	}
	g.calls++
	g.mu.Unlock()

	if err := g.pacer.Acquire(ctx); err != nil {
		return models.Classification{}, fmt.Errorf("waiting for call slot: %w", err)
	}

	prompt := buildPrompt(ann)
	text, err := g.provider.Generate(ctx, prompt, g.maxTokens)
	if err != nil && llm.IsTransient(err) {
		log.Printf("Transient classification failure for %s, retrying: %v", ann.Symbol, err)
		select {
		case <-ctx.Done():
			return models.Classification{}, ctx.Err()
		case <-time.After(g.retryDelay):
		}
		// The retry is a second outbound call and must keep the minimum
		// spacing from calls issued by other workers in the meantime.
		if err := g.pacer.Acquire(ctx); err != nil {
			return models.Classification{}, fmt.Errorf("waiting for call slot: %w", err)
		}
		text, err = g.provider.Generate(ctx, prompt, g.maxTokens)
	}
	if err != nil {
		return models.Classification{}, fmt.Errorf("classifying %s: %w", ann.Symbol, err)
	}

	cls, err := parseClassification(text)
	if err != nil {
		return models.Classification{}, fmt.Errorf("classifying %s: %w", ann.Symbol, err)
	}

	g.cache.Add(fp, cls)
	return cls, nil
}

func buildPrompt(ann models.Announcement) string {
	category := ann.Category
	if category == "" {
		category = "unknown"
	}
	return fmt.Sprintf(`You are an expert Indian stock market analyst specializing in derivatives trading.
You analyze corporate announcements to predict which ones will cause high volatility
in stock prices the next trading day, making them suitable for options trading.

Given a corporate announcement headline and context, classify:
1. Event type (results_positive, results_negative, order_win, order_loss, fund_raise, regulatory, neutral)
2. Expected market direction (bullish, bearish, neutral)
3. When the reaction will occur (same_day, next_day, 1_3_days)
4. Confidence level (low, medium, high)
5. Brief explanation

Guidelines:
- Focus on events that typically cause 2%%+ price moves (high volatility)
- Results announcements (Q1, Q2, Q3, Q4) are usually high impact
- Large order wins/losses (>10%% of revenue) are high impact
- Fund raising (QIP, rights issue) can be volatile
- Regulatory actions can cause high volatility
- Routine announcements (board meetings, AGM notices) are usually neutral/low impact
- Be conservative: only mark as high confidence if the event is clearly significant

Announcement Details:
- Symbol: %s
- Headline: %s
- Date: %s
- Category: %s

Respond with ONLY a JSON object in this exact format:
{
  "event_type": "results_positive|results_negative|order_win|order_loss|fund_raise|regulatory|neutral",
  "direction": "bullish|bearish|neutral",
  "reaction_window": "same_day|next_day|1_3_days",
  "confidence": "low|medium|high",
  "explanation": "one sentence"
}`,
		ann.Symbol, ann.Headline, ann.EventDate.Format("2006-01-02"), category)
}

// parseClassification validates the provider's JSON against the closed
// enums. An out-of-vocabulary event type, direction, or confidence fails
// the item; a missing reaction window defaults to next_day.
func parseClassification(text string) (models.Classification, error) {
	parsed := llm.ParseJSONResponse(text)
	if parsed == nil {
		return models.Classification{}, fmt.Errorf("unparseable response")
	}

	cls := models.Classification{
		EventType:      models.EventType(llm.GetString(parsed, "event_type", "")),
		Direction:      models.Direction(llm.GetString(parsed, "direction", "")),
		Confidence:     models.Confidence(llm.GetString(parsed, "confidence", "")),
		ReactionWindow: models.ReactionWindow(llm.GetString(parsed, "reaction_window", "")),
		Explanation:    llm.GetString(parsed, "explanation", ""),
	}

	if !cls.EventType.Valid() {
		return models.Classification{}, fmt.Errorf("invalid event_type %q", cls.EventType)
	}
	if !cls.Direction.Valid() {
		return models.Classification{}, fmt.Errorf("invalid direction %q", cls.Direction)
	}
	if !cls.Confidence.Valid() {
		return models.Classification{}, fmt.Errorf("invalid confidence %q", cls.Confidence)
	}
	if !cls.ReactionWindow.Valid() {
		cls.ReactionWindow = models.ReactionNextDay
	}
	return cls, nil
}
