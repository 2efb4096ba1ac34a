package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/tradelab/fnoscan/internal/database"
	"github.com/tradelab/fnoscan/internal/models"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthRoute(t *testing.T) {
	srv := New(openTestDB(t))

	rec := get(t, srv, "/health")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestRecommendationsRoute(t *testing.T) {
	db := openTestDB(t)
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	rec1 := models.Recommendation{
		Symbol:            "INFY",
		AnnouncementDate:  date,
		Direction:         models.DirectionBullish,
		ConfidenceScore:   95,
		TradeReady:        true,
		SuggestedStrategy: "buy near-the-money call option",
	}
	rec2 := models.Recommendation{
		Symbol:           "TCS",
		AnnouncementDate: date,
		Direction:        models.DirectionBearish,
		ConfidenceScore:  50,
	}
	for _, rec := range []models.Recommendation{rec2, rec1} {
		if err := db.InsertRecommendation("run-1", rec); err != nil {
			t.Fatalf("InsertRecommendation: %v", err)
		}
	}

	srv := New(db)
	resp := get(t, srv, "/api/recommendations?date=2026-03-10")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Date            string                  `json:"date"`
		Count           int                     `json:"count"`
		Recommendations []models.Recommendation `json:"recommendations"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Count != 2 {
		t.Errorf("expected 2 recommendations, got %d", body.Count)
	}
	if len(body.Recommendations) != 2 || body.Recommendations[0].Symbol != "INFY" {
		t.Errorf("expected INFY first (highest score), got %+v", body.Recommendations)
	}

	// A date with no data is an empty list, not an error.
	resp = get(t, srv, "/api/recommendations?date=2026-03-11")
	if resp.Code != http.StatusOK {
		t.Errorf("expected 200 for empty date, got %d", resp.Code)
	}
}

func TestAnnouncementsRoute(t *testing.T) {
	db := openTestDB(t)
	ann := models.Announcement{
		Symbol:    "INFY",
		Headline:  "Q4 results",
		Category:  "results",
		EventDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	if _, err := db.InsertAnnouncement(ann); err != nil {
		t.Fatalf("InsertAnnouncement: %v", err)
	}

	srv := New(db)
	resp := get(t, srv, "/api/announcements?date=2026-03-10")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Count         int                   `json:"count"`
		Announcements []models.Announcement `json:"announcements"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Count != 1 || body.Announcements[0].Symbol != "INFY" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestBadDateRejected(t *testing.T) {
	srv := New(openTestDB(t))
	resp := get(t, srv, "/api/recommendations?date=10-03-2026")
	if resp.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.Code)
	}
}

func TestStatsRoute(t *testing.T) {
	srv := New(openTestDB(t))
	resp := get(t, srv, "/api/stats")
	if resp.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.Code)
	}
}

func TestUnknownMethodRejected(t *testing.T) {
	srv := New(openTestDB(t))
	req := httptest.NewRequest("POST", "/api/recommendations", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}
