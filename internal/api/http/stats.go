package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/arkilian/catalogmeta/internal/observability"
)

// FailureEntry is one row of the validation failure report.
type FailureEntry struct {
	Kind      string         `json:"kind"`
	Property  string         `json:"property"`
	Frequency int64          `json:"frequency"`
	LastSeen  time.Time      `json:"last_seen"`
	Codes     map[string]int `json:"codes"`
}

// FailuresResponse is returned by GET /v1/stats/validation-failures.
type FailuresResponse struct {
	Failures  []FailureEntry `json:"failures"`
	RequestID string         `json:"request_id"`
}

const defaultFailureLimit = 20

// WithValidationStats mounts the validation failure report.
func WithValidationStats(stats *observability.ValidationStats) RouterOption {
	return func(mux *http.ServeMux) {
		mux.Handle("GET /v1/stats/validation-failures", DefaultMiddleware()(failuresHandler(stats)))
	}
}

func failuresHandler(stats *observability.ValidationStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := GetRequestID(r.Context())

		limit := defaultFailureLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer", requestID)
				return
			}
			limit = n
		}

		resp := FailuresResponse{Failures: []FailureEntry{}, RequestID: requestID}
		for _, s := range stats.GetTopFailures(limit) {
			resp.Failures = append(resp.Failures, FailureEntry{
				Kind:      s.Kind,
				Property:  s.Property,
				Frequency: s.Frequency,
				LastSeen:  s.LastSeen,
				Codes:     s.Codes,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
