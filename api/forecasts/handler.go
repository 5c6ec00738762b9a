package forecasts

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/kilianp07/aqforecast/core/forecaststatus"
)

// NewHandler returns an HTTP handler exposing the latest per-station
// forecasts via GET /api/forecasts. Optional query parameters: status,
// min_pm25.
func NewHandler(store forecaststatus.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		f := forecaststatus.Filter{Status: r.URL.Query().Get("status")}
		if s := r.URL.Query().Get("min_pm25"); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				http.Error(w, "invalid min_pm25", http.StatusBadRequest)
				return
			}
			f.MinPM25 = v
		}
		entries := store.List(f)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
