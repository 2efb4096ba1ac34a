// Package models defines the domain types shared across the announcement
// pipeline: announcements, classifications, technical snapshots, and the
// final trade recommendations.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Direction is the expected market direction of an event.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
	DirectionUnknown Direction = "unknown"
)

// Valid reports whether d is a direction a classification may carry.
// "unknown" is reserved for technical snapshots.
func (d Direction) Valid() bool {
	switch d {
	case DirectionBullish, DirectionBearish, DirectionNeutral:
		return true
	}
	return false
}

// Opposite reports whether d and o are opposing non-neutral directions.
func (d Direction) Opposite(o Direction) bool {
	return (d == DirectionBullish && o == DirectionBearish) ||
		(d == DirectionBearish && o == DirectionBullish)
}

// Confidence is the classification confidence tier.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Valid reports whether c is a known confidence tier.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// Level returns the numeric rank of a confidence tier (low=1 .. high=3).
// Unknown tiers rank below low.
func (c Confidence) Level() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	}
	return 0
}

// EventType is the classified kind of corporate event.
type EventType string

const (
	EventResultsPositive EventType = "results_positive"
	EventResultsNegative EventType = "results_negative"
	EventOrderWin        EventType = "order_win"
	EventOrderLoss       EventType = "order_loss"
	EventFundRaise       EventType = "fund_raise"
	EventRegulatory      EventType = "regulatory"
	EventNeutral         EventType = "neutral"
)

// Valid reports whether e is a known event type.
func (e EventType) Valid() bool {
	switch e {
	case EventResultsPositive, EventResultsNegative, EventOrderWin,
		EventOrderLoss, EventFundRaise, EventRegulatory, EventNeutral:
		return true
	}
	return false
}

// Category maps an event type back to the announcement category it implies,
// for use in post-classification deduplication.
func (e EventType) Category() string {
	switch e {
	case EventResultsPositive, EventResultsNegative:
		return "results"
	case EventOrderWin, EventOrderLoss:
		return "order"
	case EventFundRaise:
		return "fund_raise"
	case EventRegulatory:
		return "regulatory"
	}
	return "other"
}

// ReactionWindow is the timeframe over which the market reaction is expected.
type ReactionWindow string

const (
	ReactionSameDay    ReactionWindow = "same_day"
	ReactionNextDay    ReactionWindow = "next_day"
	ReactionOneToThree ReactionWindow = "1_3_days"
)

// Valid reports whether w is a known reaction window.
func (w ReactionWindow) Valid() bool {
	switch w {
	case ReactionSameDay, ReactionNextDay, ReactionOneToThree:
		return true
	}
	return false
}

// Announcement is one corporate announcement record as produced by the
// source. Read-only to the pipeline.
type Announcement struct {
	Symbol    string    `json:"symbol"`
	Headline  string    `json:"headline"`
	Category  string    `json:"category"`
	EventDate time.Time `json:"event_date"`
	Source    string    `json:"source,omitempty"`
	URL       string    `json:"url,omitempty"`
}

// Fingerprint returns a stable content hash of symbol, headline, and event
// date. It identifies an announcement across runs and keys the
// classification cache.
func (a Announcement) Fingerprint() string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s",
		a.Symbol, a.Headline, a.EventDate.Format("2006-01-02"))))
	return hex.EncodeToString(h[:])
}

// Classification is the LLM's assessment of one announcement.
type Classification struct {
	EventType      EventType      `json:"event_type"`
	Direction      Direction      `json:"direction"`
	Confidence     Confidence     `json:"confidence"`
	ReactionWindow ReactionWindow `json:"reaction_window"`
	Explanation    string         `json:"explanation"`
}

// TechnicalSnapshot holds per-symbol technical metrics for one date.
// A nil snapshot means the provider had no data for the symbol/date.
type TechnicalSnapshot struct {
	Direction        Direction `json:"direction"`
	DailyReturn      float64   `json:"daily_return"`
	VolumeSpikeRatio float64   `json:"volume_spike_ratio"`
	ATRPct           float64   `json:"atr_pct"`
	LiquidityPresent bool      `json:"options_liquidity_present"`
	TotalOI          float64   `json:"total_oi"`
	TotalVolume      float64   `json:"total_volume"`
	AsOf             time.Time `json:"as_of"`
}

// Recommendation is the terminal artifact of the pipeline for one symbol.
type Recommendation struct {
	Symbol            string             `json:"symbol"`
	AnnouncementDate  time.Time          `json:"announcement_date"`
	Headline          string             `json:"headline,omitempty"`
	Direction         Direction          `json:"direction"`
	ConfidenceScore   int                `json:"confidence_score"`
	TradeReady        bool               `json:"trade_ready"`
	SuggestedStrategy string             `json:"suggested_strategy"`
	Classification    Classification     `json:"classification"`
	Technicals        *TechnicalSnapshot `json:"technicals,omitempty"`
}
