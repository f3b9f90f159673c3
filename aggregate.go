package tokenpulse

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MetricUnavailable marks a payload field whose real value could not be
// resolved. The presentation layer renders it as a degraded state; it is
// never a number masquerading as data.
const MetricUnavailable = "unavailable"

// AggregatedPayload is the externally visible result of one aggregation pass.
// It is created fresh per request and JSON-serializable as a flat object.
type AggregatedPayload struct {
	TotalRaised          string    `json:"totalRaised"`
	TotalRaisedSOL       string    `json:"totalRaisedSOL"`
	SolPrice             float64   `json:"solPrice"`
	LifetimeFeesSOL      string    `json:"lifetimeFeesSOL,omitempty"`
	LifetimeFeesLamports string    `json:"lifetimeFeesLamports,omitempty"`
	Price                string    `json:"price"`
	MarketCap            string    `json:"marketCap"`
	Volume               string    `json:"volume"`
	Holders              string    `json:"holders"`
	LastUpdated          time.Time `json:"lastUpdated"`
	Success              bool      `json:"success"`
	Source               string    `json:"source"`
	IsRealLifetimeFees   bool      `json:"isRealLifetimeFees"`
	IsRealMetrics        bool      `json:"isRealMetrics"`
	MetricsSource        string    `json:"metricsSource"`
	WorkingEndpoint      string    `json:"workingEndpoint,omitempty"`
	IsDemoData           bool      `json:"isDemoData"`
	Error                string    `json:"error,omitempty"`
}

// Aggregator runs the full resolution pipeline and caches assembled payloads
// per mint so callers may poll freely.
type Aggregator struct {
	resolver       *Resolver
	feeRegistry    SourceRegistry
	marketRegistry SourceRegistry
	prices         *PriceCache
	settings       Settings
	logger         Logger
	payloads       *payloadCache
	now            func() time.Time
}

// NewAggregator wires the default registries around the settings. The Bags.fm
// API key comes from the environment-provided secret; its absence disables
// the fee registry, not the service.
func NewAggregator(settings Settings, apiKey string, logger Logger) *Aggregator {
	if logger == nil {
		logger = NewLogger("aggregator")
	}
	resolver := NewResolver(settings, logger)
	return &Aggregator{
		resolver:       resolver,
		feeRegistry:    DefaultFeeRegistry(apiKey),
		marketRegistry: DefaultMarketRegistry(settings.ExtraMarketSources...),
		prices:         NewPriceCache(resolver, DefaultPriceRegistry(), settings, logger),
		settings:       settings,
		logger:         logger,
		payloads:       newPayloadCache(settings.PayloadMaxEntries, settings.PayloadTTL),
		now:            time.Now,
	}
}

// GetAggregatedMetrics runs one aggregation pass for the configured mint.
// It always returns a payload; upstream failures show up as unavailable
// fields and a false success flag, never as an error.
func (a *Aggregator) GetAggregatedMetrics(ctx context.Context) AggregatedPayload {
	mint := a.settings.Mint

	if payload, ok := a.payloads.Get(mint, a.now()); ok {
		payloadCacheHits.Add(1)
		return payload
	}

	solPrice := a.prices.Get(ctx)

	feeRes := a.resolver.Resolve(ctx, a.feeRegistry, mint)
	var feeSOL float64
	var convErr error
	if feeRes.OK() {
		feeSOL, convErr = LamportsToSOL(feeRes.Metric.FeeAmountRaw, a.settings.MajorUnitThreshold, a.logger)
		if convErr != nil {
			a.logger.Printf("fee conversion rejected raw=%q err=%v", feeRes.Metric.FeeAmountRaw, convErr)
		}
	}

	marketRes := a.resolver.Resolve(ctx, a.marketRegistry, mint)

	payload := assemblePayload(feeRes, feeSOL, convErr, solPrice, marketRes, a.now())
	if !payload.Success && a.settings.DemoFallback {
		payload = DemoPayload(a.now())
	}

	a.payloads.Add(mint, payload, a.now().Add(a.settings.PayloadTTL))
	return payload
}

// assemblePayload combines the fee resolution, the reference price and the
// market resolution into one payload. Each metric group degrades on its own:
// a failed market fetch does not hide resolved fee data, and vice versa.
func assemblePayload(fee Resolution, feeSOL float64, convErr error, solPrice float64, market Resolution, now time.Time) AggregatedPayload {
	payload := AggregatedPayload{
		SolPrice:    solPrice,
		Holders:     "N/A",
		LastUpdated: now.UTC(),
	}

	feeOK := fee.OK() && convErr == nil && positiveFinite(feeSOL)
	if feeOK {
		raisedUSD := feeSOL * solPrice
		payload.TotalRaised = FormatCurrency(raisedUSD)
		payload.TotalRaisedSOL = fmt.Sprintf("%.4f SOL", feeSOL)
		payload.LifetimeFeesSOL = fmt.Sprintf("%.6f", feeSOL)
		payload.LifetimeFeesLamports = fee.Metric.FeeAmountRaw
		payload.Source = fee.Source
		payload.WorkingEndpoint = fee.Endpoint
		payload.IsRealLifetimeFees = true
		payload.Success = true
	} else {
		payload.TotalRaised = MetricUnavailable
		payload.TotalRaisedSOL = MetricUnavailable
		payload.Source = "none"
		switch {
		case convErr != nil:
			payload.Error = convErr.Error()
		case !fee.OK():
			payload.Error = fee.Err
		default:
			payload.Error = "fee amount not positive"
		}
	}

	if market.OK() {
		payload.Price = FormatPrice(market.Metric.Price)
		payload.MarketCap = FormatCurrency(market.Metric.MarketCap)
		payload.Volume = FormatCurrency(market.Metric.Volume)
		payload.MetricsSource = market.Source
		payload.IsRealMetrics = true
	} else {
		payload.Price = MetricUnavailable
		payload.MarketCap = MetricUnavailable
		payload.Volume = MetricUnavailable
		payload.MetricsSource = "none"
	}

	return payload
}

// DemoPayload returns the explicit degraded-mode placeholder. Every value is
// tagged so it can never be mistaken for real data.
func DemoPayload(now time.Time) AggregatedPayload {
	return AggregatedPayload{
		TotalRaised:    "$12.50K",
		TotalRaisedSOL: "73.5000 SOL",
		SolPrice:       defaultFallbackPrice,
		Price:          "$0.000042",
		MarketCap:      "$42.00K",
		Volume:         "$8.40K",
		Holders:        "N/A",
		LastUpdated:    now.UTC(),
		Success:        false,
		Source:         "demo",
		MetricsSource:  "demo",
		IsDemoData:     true,
	}
}

// payloadCache keeps assembled payloads for a short TTL, bounding external
// call volume when the HTTP layer is polled faster than sources should be.
type payloadCache struct {
	mu    sync.Mutex
	store *lru.Cache[string, payloadEntry]
}

type payloadEntry struct {
	payload   AggregatedPayload
	expiresAt time.Time
}

func newPayloadCache(maxEntries int, ttl time.Duration) *payloadCache {
	if maxEntries <= 0 || ttl <= 0 {
		return nil
	}
	store, err := lru.New[string, payloadEntry](maxEntries)
	if err != nil {
		return nil
	}
	return &payloadCache{store: store}
}

func (c *payloadCache) Get(key string, now time.Time) (AggregatedPayload, bool) {
	if c == nil || key == "" {
		return AggregatedPayload{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.store.Get(key)
	if !ok {
		return AggregatedPayload{}, false
	}
	if now.After(entry.expiresAt) {
		c.store.Remove(key)
		return AggregatedPayload{}, false
	}
	return entry.payload, true
}

func (c *payloadCache) Add(key string, payload AggregatedPayload, expiresAt time.Time) {
	if c == nil || key == "" || expiresAt.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Add(key, payloadEntry{payload: payload, expiresAt: expiresAt})
}
