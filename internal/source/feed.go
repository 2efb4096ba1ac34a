package source

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/tradelab/fnoscan/internal/database"
	"github.com/tradelab/fnoscan/internal/models"
)

const maxPerFeed = 100

// FeedConfig is one announcement feed.
type FeedConfig struct {
	URL  string
	Name string
}

// IngestResult summarizes one ingestion run.
type IngestResult struct {
	TotalFound int
	New        int
	Duplicates int
	Sources    map[string]int
}

// FeedIngester pulls corporate-announcement feeds into the database.
type FeedIngester struct {
	feeds []FeedConfig
	db    *database.DB
}

// NewFeedIngester creates an ingester for the configured feeds.
func NewFeedIngester(feeds []FeedConfig, db *database.DB) *FeedIngester {
	return &FeedIngester{feeds: feeds, db: db}
}

// IngestAll parses every configured feed and stores announcements published
// within daysBack. Feed failures are logged and skipped, not fatal.
func (fi *FeedIngester) IngestAll(ctx context.Context, daysBack int) *IngestResult {
	cutoff := time.Now().AddDate(0, 0, -daysBack)
	r := &IngestResult{Sources: make(map[string]int)}

	parser := gofeed.NewParser()
	for _, fc := range fi.feeds {
		name := fc.Name
		if name == "" {
			name = fc.URL
		}

		feed, err := parser.ParseURLWithContext(fc.URL, ctx)
		if err != nil {
			log.Printf("Failed to parse feed %s: %v", fc.URL, err)
			continue
		}

		count := 0
		for _, item := range feed.Items {
			if count >= maxPerFeed {
				break
			}
			ann := announcementFromItem(item, name)
			if ann == nil || ann.EventDate.Before(cutoff) {
				continue
			}
			count++
			r.TotalFound++

			id, err := fi.db.InsertAnnouncement(*ann)
			if err != nil {
				log.Printf("Failed to store announcement %s: %v", ann.Headline, err)
				continue
			}
			if id > 0 {
				r.New++
				r.Sources[name]++
			} else {
				r.Duplicates++
			}
		}
		log.Printf("Parsed %d entries from %s (within %d days)", count, name, daysBack)
	}

	log.Printf("Ingestion complete: %d found, %d new, %d duplicates", r.TotalFound, r.New, r.Duplicates)
	return r
}

func announcementFromItem(item *gofeed.Item, sourceName string) *models.Announcement {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil
	}

	symbol := ExtractSymbol(title)
	if symbol == "" {
		return nil
	}

	var eventDate time.Time
	if item.PublishedParsed != nil {
		eventDate = item.PublishedParsed.UTC().Truncate(24 * time.Hour)
	} else if item.UpdatedParsed != nil {
		eventDate = item.UpdatedParsed.UTC().Truncate(24 * time.Hour)
	} else {
		return nil
	}

	return &models.Announcement{
		Symbol:    symbol,
		Headline:  title,
		Category:  InferCategory(title),
		EventDate: eventDate,
		Source:    sourceName,
		URL:       item.Link,
	}
}

var symbolPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,19}\b`)

// Words that match the symbol pattern but never are one.
var symbolStopWords = map[string]struct{}{
	"THE": {}, "AND": {}, "FOR": {}, "WITH": {}, "FROM": {}, "THIS": {},
	"THAT": {}, "LIMITED": {}, "LTD": {}, "INC": {}, "CORP": {}, "BSE": {},
	"NSE": {}, "AGM": {}, "EGM": {}, "SAST": {}, "SEBI": {}, "QIP": {},
	"FPO": {}, "IPO": {}, "LOI": {}, "MOU": {},
}

// ExtractSymbol pulls the first plausible stock symbol out of a headline.
// Returns "" when nothing looks like a symbol.
func ExtractSymbol(headline string) string {
	for _, word := range symbolPattern.FindAllString(headline, -1) {
		if _, stop := symbolStopWords[word]; !stop {
			return word
		}
	}
	return ""
}

var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"results", []string{"result", "quarter", "q1", "q2", "q3", "q4", "earnings", "financial"}},
	{"order", []string{"order", "contract", "tender", "award", "loi", "mou"}},
	{"fund_raise", []string{"fund rais", "qip", "fpo", "rights issue", "preferential"}},
	{"regulatory", []string{"regulatory", "sebi", "penalty", "approval", "license", "show cause"}},
}

// InferCategory tags a headline with a coarse announcement category used for
// pre-classification deduplication.
func InferCategory(headline string) string {
	lower := strings.ToLower(headline)
	for _, ck := range categoryKeywords {
		for _, kw := range ck.keywords {
			if strings.Contains(lower, kw) {
				return ck.category
			}
		}
	}
	return "other"
}
