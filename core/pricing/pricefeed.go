package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Guard rejections surfaced to feed-mode purchases.
var (
	ErrQuoteStale   = errors.New("pricing: quote stale")
	ErrQuoteDeviant = errors.New("pricing: quote deviates from last accepted price")
)

// Observation is one raw usd-per-native reading, scaled so that a native
// unit times the price divided by 1e26 yields whole USD units.
type Observation struct {
	Price      *big.Int
	ObservedAt time.Time
}

// Source supplies raw price observations to a guarded feed.
type Source interface {
	LatestObservation() (Observation, error)
}

// GuardConfig bounds which observations a feed will accept. Zero values
// disable the corresponding guard.
type GuardConfig struct {
	// MaxQuoteAge is the freshness window for observations.
	MaxQuoteAge time.Duration
	// MaxDeviationBps caps the move from the last accepted price.
	MaxDeviationBps uint32
}

// Feed wraps a source with freshness and deviation guardrails. It
// implements sale.PriceFeed so feed-mode purchases fail rather than price
// against a stale or implausible quote.
type Feed struct {
	mu           sync.Mutex
	source       Source
	guard        GuardConfig
	clock        func() time.Time
	lastAccepted *big.Int
}

// NewFeed builds a guarded feed over the given source.
func NewFeed(source Source, guard GuardConfig) (*Feed, error) {
	if source == nil {
		return nil, fmt.Errorf("pricing: source required")
	}
	return &Feed{source: source, guard: guard, clock: time.Now}, nil
}

// SetClock overrides the freshness clock. Tests use this for determinism.
func (f *Feed) SetClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = clock
}

// LatestPrice returns the current guarded quote. An accepted quote becomes
// the deviation baseline for the next one.
func (f *Feed) LatestPrice() (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	obs, err := f.source.LatestObservation()
	if err != nil {
		return nil, err
	}
	if obs.Price == nil || obs.Price.Sign() <= 0 {
		return nil, fmt.Errorf("pricing: invalid source price")
	}

	now := f.clock().UTC()
	if f.guard.MaxQuoteAge > 0 {
		observed := obs.ObservedAt.UTC()
		if observed.IsZero() || now.Sub(observed) > f.guard.MaxQuoteAge {
			return nil, ErrQuoteStale
		}
	}
	if f.guard.MaxDeviationBps > 0 && f.lastAccepted != nil {
		if deviatesBeyondThreshold(obs.Price, f.lastAccepted, f.guard.MaxDeviationBps) {
			return nil, ErrQuoteDeviant
		}
	}

	f.lastAccepted = new(big.Int).Set(obs.Price)
	return new(big.Int).Set(obs.Price), nil
}

func deviatesBeyondThreshold(spot, reference *big.Int, thresholdBps uint32) bool {
	if spot == nil || reference == nil || reference.Sign() <= 0 {
		return false
	}
	diff := new(big.Int).Sub(spot, reference)
	if diff.Sign() < 0 {
		diff.Neg(diff)
	}
	if diff.Sign() == 0 {
		return false
	}
	ratio := new(big.Rat).SetFrac(diff, reference)
	ratio.Mul(ratio, big.NewRat(10000, 1))
	threshold := big.NewRat(int64(thresholdBps), 1)
	return ratio.Cmp(threshold) == 1
}

// StaticSource pins the rate to a fixed value. Operators use it to run
// feed mode against an administratively set price.
type StaticSource struct {
	price *big.Int
	clock func() time.Time
}

// NewStaticSource builds a source that always reports price as fresh.
func NewStaticSource(price *big.Int) (*StaticSource, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("pricing: static price must be positive")
	}
	return &StaticSource{price: new(big.Int).Set(price), clock: time.Now}, nil
}

// LatestObservation implements Source.
func (s *StaticSource) LatestObservation() (Observation, error) {
	return Observation{Price: new(big.Int).Set(s.price), ObservedAt: s.clock()}, nil
}

// HTTPSource polls an oracle endpoint for quotes. The endpoint responds
// with {"price":"<decimal>","observedAt":"<RFC3339>"}.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource builds a source against the given oracle URL.
func NewHTTPSource(url string) (*HTTPSource, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("pricing: oracle url required")
	}
	return &HTTPSource{
		url: url,
		client: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

type oracleResponse struct {
	Price      string    `json:"price"`
	ObservedAt time.Time `json:"observedAt"`
}

// LatestObservation implements Source.
func (s *HTTPSource) LatestObservation() (Observation, error) {
	resp, err := s.client.Get(s.url)
	if err != nil {
		return Observation{}, fmt.Errorf("pricing: fetch quote: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Observation{}, fmt.Errorf("pricing: oracle status %d", resp.StatusCode)
	}
	var payload oracleResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Observation{}, fmt.Errorf("pricing: decode quote: %w", err)
	}
	price, ok := new(big.Int).SetString(strings.TrimSpace(payload.Price), 10)
	if !ok || price.Sign() <= 0 {
		return Observation{}, fmt.Errorf("pricing: invalid oracle price %q", payload.Price)
	}
	return Observation{Price: price, ObservedAt: payload.ObservedAt}, nil
}
