package tokenpulse

import (
	"math/big"
	"strings"

	"github.com/tidwall/gjson"
)

// RegistryKind selects which capability set a registry's sources must deliver.
type RegistryKind string

const (
	// KindFees covers sources reporting the token's lifetime fee total in lamports.
	KindFees RegistryKind = "fees"
	// KindMarket covers sources reporting price, 24h volume and market cap.
	KindMarket RegistryKind = "market"
	// KindPrice covers SOL/USD reference price sources.
	KindPrice RegistryKind = "price"
)

// FieldRule locates one metric field inside a source's JSON response. Paths
// are gjson expressions tried in order; the first that yields a value wins.
type FieldRule struct {
	Paths []string
}

// SourceSpec describes one external data source as data: where to ask, how to
// authenticate and where each field lives in the reply. Adding a provider
// means adding one entry to a registry, not a code branch.
//
// URL and paths may contain the "{mint}" placeholder.
type SourceSpec struct {
	Name        string
	URL         string
	HeaderName  string
	HeaderValue string

	Fee       FieldRule
	Price     FieldRule
	Volume    FieldRule
	MarketCap FieldRule

	// SupplyEstimate, when set, derives market cap as price x supply for
	// sources that do not report one.
	SupplyEstimate float64
}

// SourceRegistry is an ordered list of sources; order is priority and the
// first structurally valid result wins.
type SourceRegistry struct {
	Kind    RegistryKind
	Sources []SourceSpec
}

// ParsedMetric is a validated extraction from one source. Fee registries fill
// FeeAmountRaw; market and price registries fill the numeric fields.
type ParsedMetric struct {
	FeeAmountRaw string
	Price        float64
	Volume       float64
	MarketCap    float64
}

func expandMint(template, mint string) string {
	return strings.ReplaceAll(template, "{mint}", mint)
}

// requestURL returns the concrete endpoint for a mint.
func (s SourceSpec) requestURL(mint string) string {
	return expandMint(s.URL, mint)
}

// parse validates a raw response body against the source's rules for the given
// registry kind. The reason string is only meaningful when ok is false.
func (s SourceSpec) parse(kind RegistryKind, body []byte, mint string) (ParsedMetric, string, bool) {
	if !gjson.ValidBytes(body) {
		return ParsedMetric{}, "malformed JSON", false
	}
	doc := gjson.ParseBytes(body)

	if kind == KindFees {
		raw, ok := s.Fee.extractString(doc, mint)
		if !ok {
			return ParsedMetric{}, "missing fee field", false
		}
		if !positiveAmountString(raw) {
			return ParsedMetric{}, "nonPositive fee amount", false
		}
		return ParsedMetric{FeeAmountRaw: raw}, "", true
	}

	price, found := s.Price.extract(doc, mint)
	if !found {
		return ParsedMetric{}, "missing price field", false
	}
	if !positiveFinite(price) {
		return ParsedMetric{}, "nonPositive price", false
	}

	metric := ParsedMetric{Price: price}
	if kind == KindPrice {
		return metric, "", true
	}

	if volume, ok := s.Volume.extract(doc, mint); ok && positiveFinite(volume) {
		metric.Volume = volume
	}
	if mcap, ok := s.MarketCap.extract(doc, mint); ok && positiveFinite(mcap) {
		metric.MarketCap = mcap
	} else if s.SupplyEstimate > 0 {
		metric.MarketCap = price * s.SupplyEstimate
	}
	return metric, "", true
}

// positiveAmountString reports whether a textual amount denotes a value > 0
// without forcing it through float64 precision.
func positiveAmountString(raw string) bool {
	parsed, ok := new(big.Float).SetString(strings.TrimSpace(raw))
	return ok && parsed.Sign() > 0
}

func (r FieldRule) extract(doc gjson.Result, mint string) (float64, bool) {
	for _, path := range r.Paths {
		value := doc.Get(expandMint(path, mint))
		if value.Exists() {
			return value.Float(), true
		}
	}
	return 0, false
}

func (r FieldRule) extractString(doc gjson.Result, mint string) (string, bool) {
	for _, path := range r.Paths {
		value := doc.Get(expandMint(path, mint))
		if value.Exists() && strings.TrimSpace(value.String()) != "" {
			return value.String(), true
		}
	}
	return "", false
}

// DefaultFeeRegistry lists the Bags.fm lifetime-fee endpoint variants. The
// documented endpoint comes first; the others cover path layouts observed in
// the wild. All of them need the API key header, so an empty key disables the
// whole registry at resolve time.
func DefaultFeeRegistry(apiKey string) SourceRegistry {
	fee := FieldRule{Paths: []string{"response", "lifetimeFees", "fees"}}
	endpoints := []struct {
		name string
		url  string
	}{
		{"Bags.fm", "https://public-api-v2.bags.fm/token-launch/lifetime-fees?tokenMint={mint}"},
		{"Bags.fm v1", "https://public-api-v2.bags.fm/api/v1/token-launch/lifetime-fees?tokenMint={mint}"},
		{"Bags.fm api", "https://public-api-v2.bags.fm/api/token-launch/lifetime-fees?tokenMint={mint}"},
		{"Bags.fm alt", "https://public-api-v2.bags.fm/v1/token-launch/lifetime-fees?tokenMint={mint}"},
	}

	sources := make([]SourceSpec, 0, len(endpoints))
	for _, e := range endpoints {
		sources = append(sources, SourceSpec{
			Name:        e.name,
			URL:         e.url,
			HeaderName:  "x-api-key",
			HeaderValue: apiKey,
			Fee:         fee,
		})
	}
	return SourceRegistry{Kind: KindFees, Sources: sources}
}

// DefaultMarketRegistry lists the token metric providers in priority order.
func DefaultMarketRegistry(extra ...SourceSpec) SourceRegistry {
	sources := []SourceSpec{
		{
			Name:      "Birdeye",
			URL:       "https://public-api.birdeye.so/public/price?address={mint}",
			Price:     FieldRule{Paths: []string{"data.value"}},
			Volume:    FieldRule{Paths: []string{"data.volume24h"}},
			MarketCap: FieldRule{Paths: []string{"data.marketCap"}},
		},
		{
			Name:   "Jupiter",
			URL:    "https://price.jup.ag/v4/price?ids={mint}",
			Price:  FieldRule{Paths: []string{"data.{mint}.price"}},
			Volume: FieldRule{Paths: []string{"data.{mint}.volume24h"}},
			// Jupiter reports no market cap; estimate against a 1B supply.
			SupplyEstimate: 1_000_000_000,
		},
		{
			Name:      "Dexscreener",
			URL:       "https://api.dexscreener.com/latest/dex/tokens/{mint}",
			Price:     FieldRule{Paths: []string{"pairs.0.priceUsd"}},
			Volume:    FieldRule{Paths: []string{"pairs.0.volume24h", "pairs.0.volume.h24"}},
			MarketCap: FieldRule{Paths: []string{"pairs.0.marketCap", "pairs.0.fdv"}},
		},
		{
			Name:      "Raydium",
			URL:       "https://api.raydium.io/v2/sdk/liquidity/mainnet/{mint}",
			Price:     FieldRule{Paths: []string{"price"}},
			Volume:    FieldRule{Paths: []string{"volume24h"}},
			MarketCap: FieldRule{Paths: []string{"marketCap"}},
		},
	}
	sources = append(sources, extra...)
	return SourceRegistry{Kind: KindMarket, Sources: sources}
}

// DefaultPriceRegistry lists the SOL/USD reference price providers.
func DefaultPriceRegistry() SourceRegistry {
	return SourceRegistry{
		Kind: KindPrice,
		Sources: []SourceSpec{
			{
				Name:  "CoinGecko",
				URL:   "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd",
				Price: FieldRule{Paths: []string{"solana.usd"}},
			},
			{
				Name:  "Binance",
				URL:   "https://api.binance.com/api/v3/ticker/price?symbol=SOLUSDT",
				Price: FieldRule{Paths: []string{"price"}},
			},
			{
				Name:  "Coinbase",
				URL:   "https://api.coinbase.com/v2/prices/SOL-USD/spot",
				Price: FieldRule{Paths: []string{"data.amount"}},
			},
		},
	}
}
