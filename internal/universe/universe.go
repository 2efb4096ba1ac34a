// Package universe tracks which symbols have listed derivatives (the FNO
// universe). Only universe members can produce trade-ready recommendations.
package universe

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tradelab/fnoscan/internal/database"
)

// ErrUnavailable means the universe has not been ingested. The pipeline
// treats this as fatal: without it every symbol's eligibility is unknown.
var ErrUnavailable = errors.New("FNO universe unavailable")

// Universe answers derivative-eligibility lookups.
type Universe interface {
	Contains(symbol string) bool
	Symbols() []string
}

type setUniverse struct {
	set     map[string]struct{}
	symbols []string
}

func (u *setUniverse) Contains(symbol string) bool {
	_, ok := u.set[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

func (u *setUniverse) Symbols() []string {
	return u.symbols
}

// Load reads the universe from the database. An empty universe is an error,
// not an empty result.
func Load(db *database.DB) (Universe, error) {
	symbols, err := db.UniverseSymbols()
	if err != nil {
		return nil, fmt.Errorf("loading FNO universe: %w", err)
	}
	if len(symbols) == 0 {
		return nil, ErrUnavailable
	}

	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(s)] = struct{}{}
	}
	return &setUniverse{set: set, symbols: symbols}, nil
}

// ParseCSV reads a universe file with a symbol column and an optional
// lot_size column. Lines starting with # are comments.
func ParseCSV(r io.Reader) ([]string, map[string]int, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("reading universe CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("empty universe CSV")
	}

	symbolCol, lotCol := 0, -1
	for i, h := range records[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "symbol":
			symbolCol = i
		case "lot_size":
			lotCol = i
		}
	}

	var symbols []string
	lotSizes := make(map[string]int)
	for _, rec := range records[1:] {
		if symbolCol >= len(rec) {
			continue
		}
		symbol := strings.ToUpper(strings.TrimSpace(rec[symbolCol]))
		if symbol == "" {
			continue
		}
		symbols = append(symbols, symbol)
		if lotCol >= 0 && lotCol < len(rec) {
			if lot, err := strconv.Atoi(strings.TrimSpace(rec[lotCol])); err == nil {
				lotSizes[symbol] = lot
			}
		}
	}
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("universe CSV has no symbols")
	}
	return symbols, lotSizes, nil
}
