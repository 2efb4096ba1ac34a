package classify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tradelab/fnoscan/internal/llm"
	"github.com/tradelab/fnoscan/internal/models"
)

const goodResponse = `{
	"event_type": "results_positive",
	"direction": "bullish",
	"reaction_window": "next_day",
	"confidence": "high",
	"explanation": "strong quarterly results"
}`

type mockProvider struct {
	mu       sync.Mutex
	calls    int
	generate func(call int) (string, error)
}

func (m *mockProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.mu.Unlock()
	return m.generate(n)
}

func (m *mockProvider) IsConfigured() bool { return true }

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// countingPacer records acquisitions so tests can verify what skipped it.
type countingPacer struct {
	mu       sync.Mutex
	acquired int
}

func (p *countingPacer) Acquire(ctx context.Context) error {
	p.mu.Lock()
	p.acquired++
	p.mu.Unlock()
	return nil
}

func (p *countingPacer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired
}

func testAnnouncement(symbol string) models.Announcement {
	return models.Announcement{
		Symbol:    symbol,
		Headline:  "Q4 results: net profit up 40% YoY",
		Category:  "results",
		EventDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}
}

func newTestGateway(t *testing.T, provider llm.Provider, pacer Pacer, maxCalls int) *Gateway {
	t.Helper()
	g, err := NewGateway(provider, pacer, maxCalls, 500, nil)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	g.retryDelay = time.Millisecond
	return g
}

func TestClassifySuccess(t *testing.T) {
	provider := &mockProvider{generate: func(int) (string, error) { return goodResponse, nil }}
	g := newTestGateway(t, provider, nil, 10)

	cls, err := g.Classify(context.Background(), testAnnouncement("INFY"))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cls.EventType != models.EventResultsPositive {
		t.Errorf("expected results_positive, got %s", cls.EventType)
	}
	if cls.Direction != models.DirectionBullish {
		t.Errorf("expected bullish, got %s", cls.Direction)
	}
	if cls.Confidence != models.ConfidenceHigh {
		t.Errorf("expected high, got %s", cls.Confidence)
	}
	if g.CallsUsed() != 1 {
		t.Errorf("expected 1 call used, got %d", g.CallsUsed())
	}
}

func TestClassifyCacheHitSkipsBudgetAndPacer(t *testing.T) {
	provider := &mockProvider{generate: func(int) (string, error) { return goodResponse, nil }}
	pacer := &countingPacer{}
	g := newTestGateway(t, provider, pacer, 10)

	ann := testAnnouncement("INFY")
	if _, err := g.Classify(context.Background(), ann); err != nil {
		t.Fatalf("first Classify: %v", err)
	}
	if _, err := g.Classify(context.Background(), ann); err != nil {
		t.Fatalf("second Classify: %v", err)
	}

	if provider.callCount() != 1 {
		t.Errorf("expected 1 provider call, got %d", provider.callCount())
	}
	if g.CallsUsed() != 1 {
		t.Errorf("cache hit consumed budget: %d calls used", g.CallsUsed())
	}
	if pacer.count() != 1 {
		t.Errorf("cache hit went through pacer: %d acquisitions", pacer.count())
	}
}

func TestClassifyCapReached(t *testing.T) {
	provider := &mockProvider{generate: func(int) (string, error) { return goodResponse, nil }}
	g := newTestGateway(t, provider, nil, 2)

	ctx := context.Background()
	for _, sym := range []string{"INFY", "TCS"} {
		if _, err := g.Classify(ctx, testAnnouncement(sym)); err != nil {
			t.Fatalf("Classify %s: %v", sym, err)
		}
	}

	_, err := g.Classify(ctx, testAnnouncement("WIPRO"))
	if !errors.Is(err, ErrCapReached) {
		t.Fatalf("expected ErrCapReached, got %v", err)
	}
	if g.CallsUsed() != 2 {
		t.Errorf("cap violation: %d calls used", g.CallsUsed())
	}

	// A cached item is still served after the cap.
	if _, err := g.Classify(ctx, testAnnouncement("INFY")); err != nil {
		t.Errorf("cached item should survive the cap: %v", err)
	}
}

func TestClassifyCapUnderConcurrency(t *testing.T) {
	provider := &mockProvider{generate: func(int) (string, error) { return goodResponse, nil }}
	g := newTestGateway(t, provider, nil, 3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	capped := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := g.Classify(context.Background(), testAnnouncement(fmt.Sprintf("SYM%d", n)))
			if errors.Is(err, ErrCapReached) {
				mu.Lock()
				capped++
				mu.Unlock()
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if provider.callCount() != 3 {
		t.Errorf("expected exactly 3 provider calls, got %d", provider.callCount())
	}
	if capped != 7 {
		t.Errorf("expected 7 capped items, got %d", capped)
	}
}

func TestClassifyRetriesTransientOnce(t *testing.T) {
	provider := &mockProvider{generate: func(call int) (string, error) {
		if call == 1 {
			return "", &llm.TransientError{Err: errors.New("429 too many requests")}
		}
		return goodResponse, nil
	}}
	pacer := &countingPacer{}
	g := newTestGateway(t, provider, pacer, 10)

	if _, err := g.Classify(context.Background(), testAnnouncement("INFY")); err != nil {
		t.Fatalf("Classify after retry: %v", err)
	}
	if provider.callCount() != 2 {
		t.Errorf("expected 2 provider calls, got %d", provider.callCount())
	}
	if g.CallsUsed() != 1 {
		t.Errorf("retry consumed a second budget slot: %d", g.CallsUsed())
	}
	// Every outbound call waits on the pacer, the retry included.
	if pacer.count() != provider.callCount() {
		t.Errorf("expected %d pacer acquisitions for %d provider calls, got %d",
			provider.callCount(), provider.callCount(), pacer.count())
	}
}

func TestClassifyTransientFailsAfterRetry(t *testing.T) {
	provider := &mockProvider{generate: func(int) (string, error) {
		return "", &llm.TransientError{Err: errors.New("503")}
	}}
	g := newTestGateway(t, provider, nil, 10)

	if _, err := g.Classify(context.Background(), testAnnouncement("INFY")); err == nil {
		t.Fatal("expected error after exhausted retry")
	}
	if provider.callCount() != 2 {
		t.Errorf("expected exactly 2 provider calls, got %d", provider.callCount())
	}
}

func TestClassifyNonTransientNotRetried(t *testing.T) {
	provider := &mockProvider{generate: func(int) (string, error) {
		return "", errors.New("400 bad request")
	}}
	g := newTestGateway(t, provider, nil, 10)

	if _, err := g.Classify(context.Background(), testAnnouncement("INFY")); err == nil {
		t.Fatal("expected error")
	}
	if provider.callCount() != 1 {
		t.Errorf("non-transient error was retried: %d calls", provider.callCount())
	}
}

func TestClassifyRejectsBadEnums(t *testing.T) {
	cases := []struct {
		name     string
		response string
	}{
		{"not json", "the stock looks bullish to me"},
		{"bad event type", `{"event_type": "merger", "direction": "bullish", "confidence": "high"}`},
		{"bad direction", `{"event_type": "neutral", "direction": "sideways", "confidence": "high"}`},
		{"bad confidence", `{"event_type": "neutral", "direction": "neutral", "confidence": "certain"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := &mockProvider{generate: func(int) (string, error) { return tc.response, nil }}
			g := newTestGateway(t, provider, nil, 10)

			if _, err := g.Classify(context.Background(), testAnnouncement("INFY")); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSharedCacheCarriesAcrossGateways(t *testing.T) {
	cache, err := NewCache(16)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	provider := &mockProvider{generate: func(int) (string, error) { return goodResponse, nil }}

	g1, err := NewGateway(provider, nil, 1, 500, cache)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	ann := testAnnouncement("INFY")
	if _, err := g1.Classify(context.Background(), ann); err != nil {
		t.Fatalf("Classify: %v", err)
	}

	// A fresh gateway (new run, fresh budget) still sees the cached result.
	g2, err := NewGateway(provider, nil, 1, 500, cache)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	if _, err := g2.Classify(context.Background(), ann); err != nil {
		t.Fatalf("Classify via shared cache: %v", err)
	}
	if provider.callCount() != 1 {
		t.Errorf("expected 1 provider call, got %d", provider.callCount())
	}
	if g2.CallsUsed() != 0 {
		t.Errorf("cache hit consumed new gateway budget: %d", g2.CallsUsed())
	}
}

func TestParseClassificationDefaultsReactionWindow(t *testing.T) {
	cls, err := parseClassification(`{"event_type": "order_win", "direction": "bullish", "confidence": "medium"}`)
	if err != nil {
		t.Fatalf("parseClassification: %v", err)
	}
	if cls.ReactionWindow != models.ReactionNextDay {
		t.Errorf("expected next_day default, got %s", cls.ReactionWindow)
	}
}

func TestRatePacerSpacesCalls(t *testing.T) {
	p := NewRatePacer(20 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Acquire(ctx); err != nil {
			t.Fatalf("Acquire: %v", err)
		}
	}
	elapsed := time.Since(start)
	if elapsed < 40*time.Millisecond {
		t.Errorf("three acquisitions finished in %v, expected at least 40ms", elapsed)
	}
}

func TestRatePacerZeroIntervalNeverBlocks(t *testing.T) {
	p := NewRatePacer(0)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < 100; i++ {
		if err := p.Acquire(ctx); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}
}
