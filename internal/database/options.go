package database

import "database/sql"

// UpsertOptionRow inserts or replaces one option-chain entry.
func (db *DB) UpsertOptionRow(row OptionRow) error {
	_, err := db.conn.Exec(
		`INSERT INTO option_chains (symbol, date, expiry, strike, option_type, oi, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date, expiry, strike, option_type) DO UPDATE SET
			oi = excluded.oi, volume = excluded.volume`,
		row.Symbol, row.Date, row.Expiry, row.Strike, row.OptionType, row.OI, row.Volume,
	)
	return err
}

// GetOptionsLiquidity aggregates OI and volume for strikes within the
// moneyness band around spot, at the nearest expiry on or after the trading
// date. Returns nil if there is no spot price, no expiry, or no activity.
func (db *DB) GetOptionsLiquidity(symbol, date string, moneynessBand float64) (*Liquidity, error) {
	spot, ok, err := db.GetSpotPrice(symbol, date)
	if err != nil {
		return nil, err
	}
	if !ok || spot <= 0 {
		return nil, nil
	}

	// MIN() over no rows yields NULL, hence the NullString.
	var expiry sql.NullString
	err = db.conn.QueryRow(
		`SELECT MIN(expiry) FROM option_chains
		WHERE symbol = ? AND date = ? AND expiry >= ?`,
		symbol, date, date,
	).Scan(&expiry)
	if err != nil {
		return nil, err
	}
	if !expiry.Valid || expiry.String == "" {
		return nil, nil
	}

	lower := spot * (1.0 - moneynessBand)
	upper := spot * (1.0 + moneynessBand)

	var totalOI, totalVolume float64
	err = db.conn.QueryRow(
		`SELECT COALESCE(SUM(oi), 0), COALESCE(SUM(volume), 0)
		FROM option_chains
		WHERE symbol = ? AND date = ? AND expiry = ? AND strike >= ? AND strike <= ?`,
		symbol, date, expiry.String, lower, upper,
	).Scan(&totalOI, &totalVolume)
	if err != nil {
		return nil, err
	}

	if totalOI == 0 && totalVolume == 0 {
		return nil, nil
	}

	return &Liquidity{
		Symbol:      symbol,
		Date:        date,
		Spot:        spot,
		Expiry:      expiry.String,
		TotalOI:     totalOI,
		TotalVolume: totalVolume,
	}, nil
}
