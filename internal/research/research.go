// Package research computes per-symbol technical snapshots: short-window
// volatility and volume features from daily bars, plus near-the-money
// options liquidity.
package research

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/tradelab/fnoscan/internal/database"
	"github.com/tradelab/fnoscan/internal/models"
)

// ErrNotAvailable means no technical data exists for the symbol near the
// requested date. Callers degrade the recommendation rather than fail.
var ErrNotAvailable = errors.New("no technical data available")

const (
	// walkbackDays is how far before the announcement date we accept a
	// stale bar (weekends, holidays, late ingestion).
	walkbackDays = 5

	// atrWindow and volumeWindow are the short rolling windows for ATR
	// and the volume moving average.
	atrWindow    = 3
	volumeWindow = 3

	// moneynessBand bounds the strikes counted toward liquidity. The band
	// is widened once if the narrow one shows no activity.
	moneynessBand     = 0.1
	wideMoneynessBand = 0.2

	// directionDeadZone is the daily-return magnitude below which the
	// technical direction is neutral.
	directionDeadZone = 0.005
)

// Provider produces a technical snapshot for one symbol and date.
type Provider interface {
	Snapshot(ctx context.Context, symbol string, date time.Time) (*models.TechnicalSnapshot, error)
}

// SQLiteProvider computes snapshots from ingested daily bars and option
// chains in the local database.
type SQLiteProvider struct {
	db *database.DB
}

// NewSQLiteProvider creates a snapshot provider over the given database.
func NewSQLiteProvider(db *database.DB) *SQLiteProvider {
	return &SQLiteProvider{db: db}
}

// Snapshot computes the technical snapshot for a symbol on a date, walking
// back up to five calendar days when the date itself has no bar. Returns
// ErrNotAvailable when no bar exists in the window.
func (p *SQLiteProvider) Snapshot(ctx context.Context, symbol string, date time.Time) (*models.TechnicalSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	endDate := date.Format("2006-01-02")
	// Twice the walk-back as a buffer for weekends and holidays, matching
	// the lookback used for the rolling windows.
	startDate := date.AddDate(0, 0, -2*walkbackDays).Format("2006-01-02")

	bars, err := p.db.GetPriceHistory(symbol, startDate, endDate)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, ErrNotAvailable
	}

	// The latest bar must fall inside the walk-back window.
	last := bars[len(bars)-1]
	usedDate, err := time.Parse("2006-01-02", last.Date)
	if err != nil {
		return nil, err
	}
	earliest := date.AddDate(0, 0, -walkbackDays)
	if usedDate.Before(earliest) {
		return nil, ErrNotAvailable
	}
	if !usedDate.Equal(date) {
		log.Printf("Using %s data from %s (%d days before) for technicals",
			symbol, last.Date, int(date.Sub(usedDate).Hours()/24))
	}

	snap := computeFeatures(bars)
	snap.AsOf = usedDate

	liq, err := p.db.GetOptionsLiquidity(symbol, last.Date, moneynessBand)
	if err != nil {
		return nil, err
	}
	if liq == nil {
		liq, err = p.db.GetOptionsLiquidity(symbol, last.Date, wideMoneynessBand)
		if err != nil {
			return nil, err
		}
	}
	if liq != nil {
		snap.LiquidityPresent = true
		snap.TotalOI = liq.TotalOI
		snap.TotalVolume = liq.TotalVolume
	}

	return snap, nil
}

// computeFeatures derives daily return, volume spike ratio, ATR percent,
// and the technical direction from an oldest-first bar series.
func computeFeatures(bars []database.PriceBar) *models.TechnicalSnapshot {
	n := len(bars)
	last := bars[n-1]

	var dailyReturn float64
	if n >= 2 && bars[n-2].Close > 0 {
		dailyReturn = (last.Close - bars[n-2].Close) / bars[n-2].Close
	}

	// Average true range over the short window, as a fraction of price.
	trStart := n - atrWindow
	if trStart < 0 {
		trStart = 0
	}
	var trSum float64
	var trCount int
	for i := trStart; i < n; i++ {
		prevClose := bars[i].Close
		if i > 0 {
			prevClose = bars[i-1].Close
		}
		tr := bars[i].High - bars[i].Low
		tr = math.Max(tr, math.Abs(bars[i].High-prevClose))
		tr = math.Max(tr, math.Abs(bars[i].Low-prevClose))
		trSum += tr
		trCount++
	}
	var atrPct float64
	if trCount > 0 && last.Close > 0 {
		atrPct = (trSum / float64(trCount)) / last.Close
	}

	volStart := n - volumeWindow
	if volStart < 0 {
		volStart = 0
	}
	var volSum float64
	for i := volStart; i < n; i++ {
		volSum += float64(bars[i].Volume)
	}
	var volSpike float64
	if volMA := volSum / float64(n-volStart); volMA > 0 {
		volSpike = float64(last.Volume) / volMA
	}

	// Inside the dead zone the tape says nothing either way.
	direction := models.DirectionUnknown
	switch {
	case dailyReturn > directionDeadZone:
		direction = models.DirectionBullish
	case dailyReturn < -directionDeadZone:
		direction = models.DirectionBearish
	}

	return &models.TechnicalSnapshot{
		Direction:        direction,
		DailyReturn:      dailyReturn,
		VolumeSpikeRatio: volSpike,
		ATRPct:           atrPct,
	}
}
