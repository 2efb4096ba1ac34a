// Package dedup collapses multiple announcements per symbol into one
// survivor, using a configurable category-priority ranking. It runs twice
// per pipeline: once before classification (to avoid spending LLM calls on
// duplicates) and once after (classification can change an item's implied
// category).
package dedup

import (
	"strings"

	"github.com/tradelab/fnoscan/internal/models"
)

// Ranking maps announcement categories to priority ranks. Higher wins.
// The tie-break order between categories is deliberately configuration,
// not code.
type Ranking map[string]int

// DefaultRanking prefers results over orders over fund raising over
// regulatory actions, with everything else last.
func DefaultRanking() Ranking {
	return Ranking{
		"results":    4,
		"result":     4,
		"order":      3,
		"orders":     3,
		"contract":   3,
		"fund_raise": 2,
		"fundraise":  2,
		"regulatory": 1,
		"other":      0,
	}
}

// Rank returns the priority of a category tag. Unknown categories rank 0.
func (r Ranking) Rank(category string) int {
	return r[strings.ToLower(strings.TrimSpace(category))]
}

// Classified pairs an announcement with its classification.
type Classified struct {
	Announcement   models.Announcement
	Classification models.Classification
}

// Engine selects one surviving announcement per symbol.
type Engine struct {
	ranking Ranking
}

// New creates a deduplication engine. A nil ranking uses the default.
func New(ranking Ranking) *Engine {
	if ranking == nil {
		ranking = DefaultRanking()
	}
	return &Engine{ranking: ranking}
}

// Pre collapses raw announcements per symbol before classification.
// Survivor order: category priority, then recency, then first seen.
func (e *Engine) Pre(anns []models.Announcement) []models.Announcement {
	type entry struct {
		ann   models.Announcement
		order int
	}
	best := make(map[string]entry)
	var symbols []string

	for i, a := range anns {
		cur, ok := best[a.Symbol]
		if !ok {
			best[a.Symbol] = entry{ann: a, order: i}
			symbols = append(symbols, a.Symbol)
			continue
		}
		if e.preBeats(a, cur.ann) {
			best[a.Symbol] = entry{ann: a, order: cur.order}
		}
	}

	survivors := make([]models.Announcement, 0, len(symbols))
	for _, s := range symbols {
		survivors = append(survivors, best[s].ann)
	}
	return survivors
}

// preBeats reports whether candidate a outranks incumbent b pre-classification.
func (e *Engine) preBeats(a, b models.Announcement) bool {
	ra, rb := e.ranking.Rank(a.Category), e.ranking.Rank(b.Category)
	if ra != rb {
		return ra > rb
	}
	if !a.EventDate.Equal(b.EventDate) {
		return a.EventDate.After(b.EventDate)
	}
	// Equal on every axis: the incumbent (first seen) stays.
	return false
}

// Post collapses classified items per symbol after classification.
// Survivor order: event-type implied category priority, then confidence
// tier, then non-neutral direction, then recency, then first seen.
func (e *Engine) Post(items []Classified) []Classified {
	type entry struct {
		item  Classified
		order int
	}
	best := make(map[string]entry)
	var symbols []string

	for i, it := range items {
		sym := it.Announcement.Symbol
		cur, ok := best[sym]
		if !ok {
			best[sym] = entry{item: it, order: i}
			symbols = append(symbols, sym)
			continue
		}
		if e.postBeats(it, cur.item) {
			best[sym] = entry{item: it, order: cur.order}
		}
	}

	survivors := make([]Classified, 0, len(symbols))
	for _, s := range symbols {
		survivors = append(survivors, best[s].item)
	}
	return survivors
}

// postBeats reports whether candidate a outranks incumbent b post-classification.
func (e *Engine) postBeats(a, b Classified) bool {
	ra := e.ranking.Rank(a.Classification.EventType.Category())
	rb := e.ranking.Rank(b.Classification.EventType.Category())
	if ra != rb {
		return ra > rb
	}

	ca, cb := a.Classification.Confidence.Level(), b.Classification.Confidence.Level()
	if ca != cb {
		return ca > cb
	}

	na := a.Classification.Direction != models.DirectionNeutral
	nb := b.Classification.Direction != models.DirectionNeutral
	if na != nb {
		return na
	}

	if !a.Announcement.EventDate.Equal(b.Announcement.EventDate) {
		return a.Announcement.EventDate.After(b.Announcement.EventDate)
	}
	return false
}
