package tokenpulse

import (
	"encoding/json"
	"net/http"
	"time"
)

// NewServer constructs the HTTP handler exposing the aggregated metrics.
//
// /api/metrics always answers 200 with a payload; degraded upstream state is
// carried in the payload's success flag and per-field markers so the
// presentation layer can render partial states instead of crashing.
func NewServer(agg *Aggregator, logger Logger) http.Handler {
	if logger == nil {
		logger = NewLogger("web")
	}
	started := time.Now()

	mux := http.NewServeMux()

	mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		payload := agg.GetAggregatedMetrics(r.Context())
		writeJSON(w, logger, http.StatusOK, payload)
	})

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		_, cached := agg.prices.Quote()
		writeJSON(w, logger, http.StatusOK, map[string]any{
			"status":     "OK",
			"timestamp":  time.Now().UTC(),
			"uptime":     time.Since(started).Seconds(),
			"cachedData": cached,
		})
	})

	return countResponses(mux)
}

func writeJSON(w http.ResponseWriter, logger Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Printf("write response failed: %v", err)
	}
}

// countResponses records served status codes into the app response expvar map.
func countResponses(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		incrementResponseCount(appResponseCounts, recorder.status)
	})
}
