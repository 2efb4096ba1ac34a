package database

import "database/sql"

// InsertRun records the start of a pipeline run.
func (db *DB) InsertRun(runID, targetDate string) error {
	_, err := db.conn.Exec(
		"INSERT INTO runs (run_id, target_date) VALUES (?, ?)",
		runID, targetDate,
	)
	return err
}

// FinishRun records the outcome of a pipeline run.
func (db *DB) FinishRun(runID string, partial bool, recommendations, errors int) error {
	p := 0
	if partial {
		p = 1
	}
	_, err := db.conn.Exec(
		`UPDATE runs SET partial = ?, recommendation_count = ?, error_count = ?,
		finished_at = datetime('now') WHERE run_id = ?`,
		p, recommendations, errors, runID,
	)
	return err
}

// GetLastRunDate returns the target date of the most recent finished run,
// or "" if no run has completed.
func (db *DB) GetLastRunDate() (string, error) {
	var date string
	err := db.conn.QueryRow(
		`SELECT target_date FROM runs WHERE finished_at IS NOT NULL
		ORDER BY finished_at DESC LIMIT 1`,
	).Scan(&date)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return date, nil
}
