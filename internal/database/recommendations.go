package database

import (
	"encoding/json"

	"github.com/tradelab/fnoscan/internal/models"
)

// InsertRecommendation stores one recommendation produced by a run. The
// full recommendation (classification and technicals included) is kept as
// JSON in the detail column; the queryable fields get their own columns.
func (db *DB) InsertRecommendation(runID string, rec models.Recommendation) error {
	detail, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	tradeReady := 0
	if rec.TradeReady {
		tradeReady = 1
	}

	_, err = db.conn.Exec(
		`INSERT INTO recommendations
		(run_id, symbol, announcement_date, direction, confidence_score, trade_ready, suggested_strategy, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Symbol, rec.AnnouncementDate.Format("2006-01-02"),
		string(rec.Direction), rec.ConfidenceScore, tradeReady,
		rec.SuggestedStrategy, string(detail),
	)
	return err
}

// GetRecommendationsForDate returns recommendations for a date, highest
// confidence first.
func (db *DB) GetRecommendationsForDate(date string) ([]models.Recommendation, error) {
	rows, err := db.conn.Query(
		`SELECT detail FROM recommendations
		WHERE announcement_date = ? ORDER BY confidence_score DESC, symbol`, date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.Recommendation
	for rows.Next() {
		var detail string
		if err := rows.Scan(&detail); err != nil {
			return nil, err
		}
		var rec models.Recommendation
		if err := json.Unmarshal([]byte(detail), &rec); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteRecommendationsForDate clears stored recommendations for a date,
// so a re-run replaces rather than appends.
func (db *DB) DeleteRecommendationsForDate(date string) error {
	_, err := db.conn.Exec("DELETE FROM recommendations WHERE announcement_date = ?", date)
	return err
}
