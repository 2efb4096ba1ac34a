package database

// PriceBar is one daily OHLCV bar for a symbol.
type PriceBar struct {
	Symbol string
	Date   string // YYYY-MM-DD
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// OptionRow is one option-chain entry for a symbol on a trading date.
type OptionRow struct {
	Symbol     string
	Date       string // YYYY-MM-DD
	Expiry     string // YYYY-MM-DD
	Strike     float64
	OptionType string // "CE" or "PE"
	OI         float64
	Volume     float64
}

// Liquidity is the aggregated near-the-money option activity for a
// symbol/date at its nearest expiry.
type Liquidity struct {
	Symbol      string
	Date        string
	Spot        float64
	Expiry      string
	TotalOI     float64
	TotalVolume float64
}

// Run records one pipeline execution.
type Run struct {
	RunID               string
	TargetDate          string
	Partial             bool
	RecommendationCount int
	ErrorCount          int
	StartedAt           *string
	FinishedAt          *string
}
