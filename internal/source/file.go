package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tradelab/fnoscan/internal/database"
	"github.com/tradelab/fnoscan/internal/models"
)

// csvTable reads a CSV with a header row into a column-name lookup.
type csvTable struct {
	cols map[string]int
	rows [][]string
}

func readCSVTable(r io.Reader) (*csvTable, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("missing header row")
	}

	cols := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return &csvTable{cols: cols, rows: records[1:]}, nil
}

func (t *csvTable) get(row []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t *csvTable) require(names ...string) error {
	for _, n := range names {
		if _, ok := t.cols[n]; !ok {
			return fmt.Errorf("missing required column %q", n)
		}
	}
	return nil
}

// IngestAnnouncementsCSV loads announcements from a CSV with columns
// symbol, headline, event_date and optional category, source, url.
func IngestAnnouncementsCSV(db *database.DB, r io.Reader) (*IngestResult, error) {
	table, err := readCSVTable(r)
	if err != nil {
		return nil, fmt.Errorf("reading announcements CSV: %w", err)
	}
	if err := table.require("symbol", "headline", "event_date"); err != nil {
		return nil, err
	}

	res := &IngestResult{Sources: make(map[string]int)}
	for _, row := range table.rows {
		symbol := strings.ToUpper(table.get(row, "symbol"))
		headline := table.get(row, "headline")
		if symbol == "" || headline == "" {
			continue
		}
		eventDate, err := time.Parse("2006-01-02", table.get(row, "event_date"))
		if err != nil {
			continue
		}

		category := table.get(row, "category")
		if category == "" {
			category = InferCategory(headline)
		}

		ann := models.Announcement{
			Symbol:    symbol,
			Headline:  headline,
			Category:  category,
			EventDate: eventDate,
			Source:    table.get(row, "source"),
			URL:       table.get(row, "url"),
		}

		res.TotalFound++
		id, err := db.InsertAnnouncement(ann)
		if err != nil {
			return nil, err
		}
		if id > 0 {
			res.New++
		} else {
			res.Duplicates++
		}
	}
	return res, nil
}

// IngestPricesCSV loads daily OHLCV bars from a CSV with columns
// symbol, date, open, high, low, close, volume.
func IngestPricesCSV(db *database.DB, r io.Reader) (int, error) {
	table, err := readCSVTable(r)
	if err != nil {
		return 0, fmt.Errorf("reading prices CSV: %w", err)
	}
	if err := table.require("symbol", "date", "open", "high", "low", "close", "volume"); err != nil {
		return 0, err
	}

	count := 0
	for _, row := range table.rows {
		symbol := strings.ToUpper(table.get(row, "symbol"))
		date := table.get(row, "date")
		if symbol == "" || date == "" {
			continue
		}

		open, err1 := strconv.ParseFloat(table.get(row, "open"), 64)
		high, err2 := strconv.ParseFloat(table.get(row, "high"), 64)
		low, err3 := strconv.ParseFloat(table.get(row, "low"), 64)
		close, err4 := strconv.ParseFloat(table.get(row, "close"), 64)
		volume, err5 := strconv.ParseInt(table.get(row, "volume"), 10, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}

		bar := database.PriceBar{
			Symbol: symbol, Date: date,
			Open: open, High: high, Low: low, Close: close, Volume: volume,
		}
		if err := db.UpsertPriceBar(bar); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// IngestOptionsCSV loads option-chain rows from a CSV with columns
// symbol, date, expiry, strike, option_type, oi, volume.
func IngestOptionsCSV(db *database.DB, r io.Reader) (int, error) {
	table, err := readCSVTable(r)
	if err != nil {
		return 0, fmt.Errorf("reading options CSV: %w", err)
	}
	if err := table.require("symbol", "date", "expiry", "strike", "option_type", "oi", "volume"); err != nil {
		return 0, err
	}

	count := 0
	for _, row := range table.rows {
		symbol := strings.ToUpper(table.get(row, "symbol"))
		date := table.get(row, "date")
		expiry := table.get(row, "expiry")
		if symbol == "" || date == "" || expiry == "" {
			continue
		}

		strike, err1 := strconv.ParseFloat(table.get(row, "strike"), 64)
		oi, err2 := strconv.ParseFloat(table.get(row, "oi"), 64)
		volume, err3 := strconv.ParseFloat(table.get(row, "volume"), 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}

		opt := database.OptionRow{
			Symbol: symbol, Date: date, Expiry: expiry,
			Strike: strike, OptionType: strings.ToUpper(table.get(row, "option_type")),
			OI: oi, Volume: volume,
		}
		if err := db.UpsertOptionRow(opt); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
