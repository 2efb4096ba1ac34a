// Package source supplies announcement records to the pipeline and ingests
// them (plus price and option-chain data) from feeds and files into the
// local database.
package source

import (
	"context"
	"time"

	"github.com/tradelab/fnoscan/internal/database"
	"github.com/tradelab/fnoscan/internal/models"
)

// Source supplies announcements for one trading date.
type Source interface {
	Fetch(ctx context.Context, date time.Time) ([]models.Announcement, error)
}

// DBSource serves announcements previously ingested into the database.
type DBSource struct {
	db *database.DB
}

// NewDBSource creates a source backed by the local database.
func NewDBSource(db *database.DB) *DBSource {
	return &DBSource{db: db}
}

// Fetch returns the announcements for a date in ingestion order.
func (s *DBSource) Fetch(ctx context.Context, date time.Time) ([]models.Announcement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.db.GetAnnouncementsForDate(date.Format("2006-01-02"))
}
