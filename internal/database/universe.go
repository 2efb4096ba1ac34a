package database

// ReplaceUniverse replaces the FNO universe with the given symbols.
func (db *DB) ReplaceUniverse(symbols []string, lotSizes map[string]int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM fno_universe"); err != nil {
		tx.Rollback()
		return err
	}
	for _, s := range symbols {
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO fno_universe (symbol, lot_size) VALUES (?, ?)",
			s, lotSizes[s],
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// UniverseSymbols returns all symbols in the FNO universe.
func (db *DB) UniverseSymbols() ([]string, error) {
	rows, err := db.conn.Query("SELECT symbol FROM fno_universe ORDER BY symbol")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}
