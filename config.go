package tokenpulse

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	mintEnv               = "TOKENPULSE_MINT"
	sourceTimeoutEnv      = "TOKENPULSE_SOURCE_TIMEOUT"
	maxPassesEnv          = "TOKENPULSE_MAX_PASSES"
	backoffEnv            = "TOKENPULSE_BACKOFF"
	priceWindowEnv        = "TOKENPULSE_PRICE_WINDOW"
	fallbackPriceEnv      = "TOKENPULSE_FALLBACK_PRICE"
	majorUnitThresholdEnv = "TOKENPULSE_MAJOR_UNIT_THRESHOLD"
	payloadTTLEnv         = "TOKENPULSE_PAYLOAD_TTL"
	payloadMaxEntriesEnv  = "TOKENPULSE_PAYLOAD_MAX_ENTRIES"
	demoFallbackEnv       = "TOKENPULSE_DEMO_FALLBACK"
)

const (
	defaultMint               = "3ofiPaQdD6GcspNXSk6xQqB1wzEtJALikfcSmeqqBAGS"
	defaultSourceTimeout      = 10 * time.Second
	defaultMaxPasses          = 1
	defaultBackoff            = 2 * time.Second
	defaultPriceWindow        = time.Hour
	defaultFallbackPrice      = 170.0
	defaultMajorUnitThreshold = 1000.0
	defaultPayloadTTL         = time.Minute
	defaultPayloadMaxEntries  = 64
)

// Settings carries the tunable policies of the resolver, caches and converter.
type Settings struct {
	Mint string

	// SourceTimeout bounds each individual outbound request.
	SourceTimeout time.Duration
	// MaxPasses bounds full retry sweeps over a registry; Backoff separates them.
	MaxPasses int
	Backoff   time.Duration

	PriceWindow   time.Duration
	FallbackPrice float64

	// MajorUnitThreshold is the magnitude below which a decimal amount is
	// interpreted as already being in SOL rather than lamports.
	MajorUnitThreshold float64

	PayloadTTL        time.Duration
	PayloadMaxEntries int

	// DemoFallback enables the clearly-tagged placeholder payload when no
	// real fee data resolved. Off by default.
	DemoFallback bool

	// ExtraMarketSources from a settings file are appended to the default
	// market registry in order.
	ExtraMarketSources []SourceSpec
}

// DefaultSettings returns the built-in policy values with environment overrides applied.
func DefaultSettings() Settings {
	s := Settings{
		Mint:               defaultMint,
		SourceTimeout:      defaultSourceTimeout,
		MaxPasses:          defaultMaxPasses,
		Backoff:            defaultBackoff,
		PriceWindow:        defaultPriceWindow,
		FallbackPrice:      defaultFallbackPrice,
		MajorUnitThreshold: defaultMajorUnitThreshold,
		PayloadTTL:         defaultPayloadTTL,
		PayloadMaxEntries:  defaultPayloadMaxEntries,
	}
	s.applyEnv()
	return s
}

// LoadSettings reads an optional YAML settings file, then applies environment
// overrides on top of it. A missing file yields the defaults.
func LoadSettings(path string) (Settings, error) {
	s := Settings{
		Mint:               defaultMint,
		SourceTimeout:      defaultSourceTimeout,
		MaxPasses:          defaultMaxPasses,
		Backoff:            defaultBackoff,
		PriceWindow:        defaultPriceWindow,
		FallbackPrice:      defaultFallbackPrice,
		MajorUnitThreshold: defaultMajorUnitThreshold,
		PayloadTTL:         defaultPayloadTTL,
		PayloadMaxEntries:  defaultPayloadMaxEntries,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Settings{}, fmt.Errorf("read settings file: %w", err)
			}
		} else {
			var file settingsFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return Settings{}, fmt.Errorf("parse settings file: %w", err)
			}
			if err := file.apply(&s); err != nil {
				return Settings{}, err
			}
		}
	}

	s.applyEnv()
	return s, nil
}

type settingsFile struct {
	Mint               string  `yaml:"mint"`
	SourceTimeout      string  `yaml:"source_timeout"`
	MaxPasses          int     `yaml:"max_passes"`
	Backoff            string  `yaml:"backoff"`
	PriceWindow        string  `yaml:"price_window"`
	FallbackPrice      float64 `yaml:"fallback_price"`
	MajorUnitThreshold float64 `yaml:"major_unit_threshold"`
	PayloadTTL         string  `yaml:"payload_ttl"`
	PayloadMaxEntries  int     `yaml:"payload_max_entries"`
	DemoFallback       bool    `yaml:"demo_fallback"`

	MarketSources []fileSource `yaml:"market_sources"`
}

type fileSource struct {
	Name          string   `yaml:"name"`
	URL           string   `yaml:"url"`
	HeaderName    string   `yaml:"header_name"`
	HeaderValue   string   `yaml:"header_value"`
	PricePaths    []string `yaml:"price_paths"`
	VolumePaths   []string `yaml:"volume_paths"`
	MarketCapPath []string `yaml:"market_cap_paths"`
}

func (f settingsFile) apply(s *Settings) error {
	if f.Mint != "" {
		s.Mint = f.Mint
	}
	if err := applyFileDuration(&s.SourceTimeout, f.SourceTimeout, "source_timeout"); err != nil {
		return err
	}
	if f.MaxPasses > 0 {
		s.MaxPasses = f.MaxPasses
	}
	if err := applyFileDuration(&s.Backoff, f.Backoff, "backoff"); err != nil {
		return err
	}
	if err := applyFileDuration(&s.PriceWindow, f.PriceWindow, "price_window"); err != nil {
		return err
	}
	if f.FallbackPrice > 0 {
		s.FallbackPrice = f.FallbackPrice
	}
	if f.MajorUnitThreshold > 0 {
		s.MajorUnitThreshold = f.MajorUnitThreshold
	}
	if err := applyFileDuration(&s.PayloadTTL, f.PayloadTTL, "payload_ttl"); err != nil {
		return err
	}
	if f.PayloadMaxEntries > 0 {
		s.PayloadMaxEntries = f.PayloadMaxEntries
	}
	if f.DemoFallback {
		s.DemoFallback = true
	}

	for _, src := range f.MarketSources {
		if src.Name == "" || src.URL == "" || len(src.PricePaths) == 0 {
			return fmt.Errorf("market source entries need name, url and price_paths (got name=%q)", src.Name)
		}
		s.ExtraMarketSources = append(s.ExtraMarketSources, SourceSpec{
			Name:        src.Name,
			URL:         src.URL,
			HeaderName:  src.HeaderName,
			HeaderValue: src.HeaderValue,
			Price:       FieldRule{Paths: src.PricePaths},
			Volume:      FieldRule{Paths: src.VolumePaths},
			MarketCap:   FieldRule{Paths: src.MarketCapPath},
		})
	}
	return nil
}

func applyFileDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil || dur <= 0 {
		return fmt.Errorf("invalid %s %q", field, raw)
	}
	*dst = dur
	return nil
}

func (s *Settings) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(mintEnv)); v != "" {
		s.Mint = v
	}
	s.SourceTimeout = loadDurationEnv(sourceTimeoutEnv, s.SourceTimeout)
	s.MaxPasses = loadIntEnv(maxPassesEnv, s.MaxPasses)
	s.Backoff = loadDurationEnv(backoffEnv, s.Backoff)
	s.PriceWindow = loadDurationEnv(priceWindowEnv, s.PriceWindow)
	s.FallbackPrice = loadFloatEnv(fallbackPriceEnv, s.FallbackPrice)
	s.MajorUnitThreshold = loadFloatEnv(majorUnitThresholdEnv, s.MajorUnitThreshold)
	s.PayloadTTL = loadDurationEnv(payloadTTLEnv, s.PayloadTTL)
	s.PayloadMaxEntries = loadIntEnv(payloadMaxEntriesEnv, s.PayloadMaxEntries)
	if v := strings.TrimSpace(os.Getenv(demoFallbackEnv)); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			s.DemoFallback = parsed
		}
	}
}

func loadIntEnv(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	num, err := strconv.Atoi(value)
	if err != nil || num < 0 {
		return fallback
	}
	return num
}

func loadDurationEnv(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	dur, err := time.ParseDuration(value)
	if err != nil || dur < 0 {
		return fallback
	}
	return dur
}

func loadFloatEnv(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	num, err := strconv.ParseFloat(value, 64)
	if err != nil || num <= 0 {
		return fallback
	}
	return num
}
