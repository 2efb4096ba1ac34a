package dedup

import (
	"testing"
	"time"

	"github.com/tradelab/fnoscan/internal/models"
)

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

func ann(symbol, headline, category string, d int) models.Announcement {
	return models.Announcement{
		Symbol:    symbol,
		Headline:  headline,
		Category:  category,
		EventDate: day(d),
	}
}

func TestPreKeepsOnePerSymbol(t *testing.T) {
	e := New(nil)
	in := []models.Announcement{
		ann("TATAMOTORS", "board meeting outcome", "other", 10),
		ann("INFY", "Q4 results", "results", 10),
		ann("TATAMOTORS", "regulatory filing", "regulatory", 10),
		ann("INFY", "analyst call", "other", 10),
	}

	out := e.Pre(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(out))
	}
	seen := map[string]int{}
	for _, a := range out {
		seen[a.Symbol]++
	}
	for sym, n := range seen {
		if n != 1 {
			t.Errorf("symbol %s has %d survivors", sym, n)
		}
	}
}

func TestPreCategoryPriority(t *testing.T) {
	e := New(nil)
	out := e.Pre([]models.Announcement{
		ann("ACME", "penalty notice", "regulatory", 10),
		ann("ACME", "Q4 results approved", "results", 10),
		ann("ACME", "new export order", "order", 10),
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(out))
	}
	if out[0].Category != "results" {
		t.Errorf("expected results survivor, got %s (%s)", out[0].Category, out[0].Headline)
	}
}

func TestPreRecencyBreaksTies(t *testing.T) {
	e := New(nil)
	out := e.Pre([]models.Announcement{
		ann("ACME", "first order", "order", 9),
		ann("ACME", "second order", "order", 10),
	})
	if out[0].Headline != "second order" {
		t.Errorf("expected the more recent announcement, got %q", out[0].Headline)
	}
}

func TestPreFirstSeenWinsFullTie(t *testing.T) {
	e := New(nil)
	out := e.Pre([]models.Announcement{
		ann("ACME", "copy one", "order", 10),
		ann("ACME", "copy two", "order", 10),
	})
	if out[0].Headline != "copy one" {
		t.Errorf("expected first-seen survivor, got %q", out[0].Headline)
	}
}

func TestPrePreservesSymbolOrder(t *testing.T) {
	e := New(nil)
	out := e.Pre([]models.Announcement{
		ann("ZEE", "a", "other", 10),
		ann("ACME", "b", "other", 10),
		ann("ZEE", "c", "results", 10),
	})
	if len(out) != 2 || out[0].Symbol != "ZEE" || out[1].Symbol != "ACME" {
		t.Errorf("expected [ZEE ACME] in first-seen order, got %v", out)
	}
}

func classified(symbol string, d int, et models.EventType, dir models.Direction, conf models.Confidence) Classified {
	return Classified{
		Announcement: ann(symbol, string(et), et.Category(), d),
		Classification: models.Classification{
			EventType:  et,
			Direction:  dir,
			Confidence: conf,
		},
	}
}

func TestPostResultsBeatsRegulatory(t *testing.T) {
	e := New(nil)
	out := e.Post([]Classified{
		classified("ACME", 10, models.EventRegulatory, models.DirectionBearish, models.ConfidenceHigh),
		classified("ACME", 10, models.EventResultsPositive, models.DirectionBullish, models.ConfidenceLow),
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(out))
	}
	if out[0].Classification.EventType != models.EventResultsPositive {
		t.Errorf("expected results survivor, got %s", out[0].Classification.EventType)
	}
}

func TestPostConfidenceBreaksCategoryTie(t *testing.T) {
	e := New(nil)
	out := e.Post([]Classified{
		classified("ACME", 10, models.EventOrderWin, models.DirectionBullish, models.ConfidenceLow),
		classified("ACME", 10, models.EventOrderLoss, models.DirectionBearish, models.ConfidenceHigh),
	})
	if out[0].Classification.Confidence != models.ConfidenceHigh {
		t.Errorf("expected the high-confidence survivor, got %s", out[0].Classification.Confidence)
	}
}

func TestPostNonNeutralPreferred(t *testing.T) {
	e := New(nil)
	out := e.Post([]Classified{
		classified("ACME", 10, models.EventOrderWin, models.DirectionNeutral, models.ConfidenceMedium),
		classified("ACME", 10, models.EventOrderWin, models.DirectionBullish, models.ConfidenceMedium),
	})
	if out[0].Classification.Direction != models.DirectionBullish {
		t.Errorf("expected non-neutral survivor, got %s", out[0].Classification.Direction)
	}
}

func TestPostFirstSeenWinsFullTie(t *testing.T) {
	e := New(nil)
	a := classified("ACME", 10, models.EventOrderWin, models.DirectionBullish, models.ConfidenceMedium)
	a.Announcement.Headline = "first"
	b := classified("ACME", 10, models.EventOrderWin, models.DirectionBullish, models.ConfidenceMedium)
	b.Announcement.Headline = "second"

	out := e.Post([]Classified{a, b})
	if out[0].Announcement.Headline != "first" {
		t.Errorf("expected first-seen survivor, got %q", out[0].Announcement.Headline)
	}
}

func TestCustomRanking(t *testing.T) {
	e := New(Ranking{"regulatory": 9, "results": 1})
	out := e.Pre([]models.Announcement{
		ann("ACME", "results", "results", 10),
		ann("ACME", "penalty", "regulatory", 10),
	})
	if out[0].Category != "regulatory" {
		t.Errorf("custom ranking ignored, got %s", out[0].Category)
	}
}
