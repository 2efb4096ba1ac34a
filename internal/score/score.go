// Package score turns a classification and an optional technical snapshot
// into a confidence score, trade readiness, and a suggested strategy. It is
// pure: no I/O, no clock, identical output for identical input.
package score

import (
	"github.com/tradelab/fnoscan/internal/models"
)

const (
	baseLow    = 40
	baseMedium = 60
	baseHigh   = 80

	alignedBonus    = 15
	opposedPenalty  = 10
	readyThreshold  = 60
	highATRFraction = 0.04
)

// Result is the scoring outcome for one classified announcement.
type Result struct {
	ConfidenceScore   int
	TradeReady        bool
	SuggestedStrategy string
}

// Evaluate scores one classification against its technical snapshot.
// A nil snapshot means the provider had no data; the item is scored on the
// classification alone and is never trade ready.
func Evaluate(cls models.Classification, snap *models.TechnicalSnapshot) Result {
	score := baseScore(cls.Confidence)
	score += alignmentAdjustment(cls.Direction, snap)

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	ready := score >= readyThreshold &&
		snap != nil &&
		snap.LiquidityPresent &&
		cls.Direction != models.DirectionNeutral

	return Result{
		ConfidenceScore:   score,
		TradeReady:        ready,
		SuggestedStrategy: strategy(ready, cls.Direction, snap),
	}
}

func baseScore(c models.Confidence) int {
	switch c {
	case models.ConfidenceHigh:
		return baseHigh
	case models.ConfidenceMedium:
		return baseMedium
	}
	return baseLow
}

// alignmentAdjustment rewards agreement between the announcement's implied
// direction and the technical tape, and penalizes open conflict. An absent
// snapshot or unknown technical direction is neutral evidence.
func alignmentAdjustment(clsDir models.Direction, snap *models.TechnicalSnapshot) int {
	if snap == nil || snap.Direction == models.DirectionUnknown {
		return 0
	}
	if snap.Direction == clsDir {
		return alignedBonus
	}
	if snap.Direction.Opposite(clsDir) {
		return -opposedPenalty
	}
	return 0
}

func strategy(ready bool, dir models.Direction, snap *models.TechnicalSnapshot) string {
	if !ready {
		return "insufficient confidence or no technical data - wait"
	}

	if snap.ATRPct < highATRFraction {
		if dir == models.DirectionBullish {
			return "buy near-the-money call option"
		}
		return "buy near-the-money put option"
	}
	// High baseline volatility makes outright premium expensive.
	if dir == models.DirectionBullish {
		return "use a bull call spread to reduce premium cost"
	}
	return "use a bear put spread to reduce premium cost"
}
