package database

import "database/sql"

// UpsertPriceBar inserts or replaces one daily OHLCV bar.
func (db *DB) UpsertPriceBar(bar PriceBar) error {
	_, err := db.conn.Exec(
		`INSERT INTO daily_prices (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume`,
		bar.Symbol, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
	)
	return err
}

// GetPriceHistory returns bars for a symbol up to endDate (inclusive),
// oldest first. startDate bounds the window; pass "" for no lower bound.
func (db *DB) GetPriceHistory(symbol, startDate, endDate string) ([]PriceBar, error) {
	query := `SELECT symbol, date, open, high, low, close, volume
		FROM daily_prices WHERE symbol = ? AND date <= ?`
	args := []any{symbol, endDate}
	if startDate != "" {
		query += " AND date >= ?"
		args = append(args, startDate)
	}
	query += " ORDER BY date"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []PriceBar
	for rows.Next() {
		var b PriceBar
		if err := rows.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// GetSpotPrice returns the closing price for a symbol on a date, or 0 with
// false if there is no bar.
func (db *DB) GetSpotPrice(symbol, date string) (float64, bool, error) {
	var close float64
	err := db.conn.QueryRow(
		"SELECT close FROM daily_prices WHERE symbol = ? AND date = ?",
		symbol, date,
	).Scan(&close)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return close, true, nil
}
