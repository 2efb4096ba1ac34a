package database

import (
	"database/sql"
	"time"

	"github.com/tradelab/fnoscan/internal/models"
)

// InsertAnnouncement inserts an announcement. Returns the ID on success,
// 0 if an announcement with the same fingerprint already exists.
func (db *DB) InsertAnnouncement(a models.Announcement) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO announcements (fingerprint, symbol, headline, category, event_date, source, url)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Fingerprint(), a.Symbol, a.Headline, a.Category,
		a.EventDate.Format("2006-01-02"), a.Source, a.URL,
	)
	if err != nil {
		// Duplicate fingerprint constraint
		return 0, nil //nolint: nilerr
	}
	return result.LastInsertId()
}

// GetAnnouncementsForDate returns all announcements for a trading date,
// in ingestion order.
func (db *DB) GetAnnouncementsForDate(date string) ([]models.Announcement, error) {
	rows, err := db.conn.Query(
		`SELECT symbol, headline, category, event_date, source, url
		FROM announcements WHERE event_date = ? ORDER BY id`, date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAnnouncements(rows)
}

// GetLatestAnnouncement returns the most recently ingested announcement for
// a symbol on a date, or nil if none exists.
func (db *DB) GetLatestAnnouncement(symbol, date string) (*models.Announcement, error) {
	row := db.conn.QueryRow(
		`SELECT symbol, headline, category, event_date, source, url
		FROM announcements WHERE symbol = ? AND event_date = ?
		ORDER BY id DESC LIMIT 1`, symbol, date,
	)
	a, err := scanAnnouncement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func scanAnnouncements(rows *sql.Rows) ([]models.Announcement, error) {
	var anns []models.Announcement
	for rows.Next() {
		var a models.Announcement
		var category, source, url sql.NullString
		var eventDate string
		if err := rows.Scan(&a.Symbol, &a.Headline, &category, &eventDate, &source, &url); err != nil {
			return nil, err
		}
		a.Category = category.String
		a.Source = source.String
		a.URL = url.String
		a.EventDate, _ = time.Parse("2006-01-02", eventDate)
		anns = append(anns, a)
	}
	return anns, rows.Err()
}

func scanAnnouncement(row *sql.Row) (*models.Announcement, error) {
	var a models.Announcement
	var category, source, url sql.NullString
	var eventDate string
	if err := row.Scan(&a.Symbol, &a.Headline, &category, &eventDate, &source, &url); err != nil {
		return nil, err
	}
	a.Category = category.String
	a.Source = source.String
	a.URL = url.String
	a.EventDate, _ = time.Parse("2006-01-02", eventDate)
	return &a, nil
}
