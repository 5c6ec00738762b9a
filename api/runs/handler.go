package runs

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kilianp07/aqforecast/core/runlog"
)

// NewHandler returns an HTTP handler exposing the run log via GET /api/runs.
// Requests must include an Authorization header with "Bearer <token>" when
// token is non-empty.
func NewHandler(store runlog.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && !authorized(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := runlog.Query{StationID: r.URL.Query().Get("station")}
		for param, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
			if s := r.URL.Query().Get(param); s != "" {
				t, err := time.Parse(time.RFC3339, s)
				if err != nil {
					http.Error(w, "invalid "+param, http.StatusBadRequest)
					return
				}
				*dst = t
			}
		}
		switch k := runlog.Kind(r.URL.Query().Get("kind")); k {
		case "", runlog.KindTrain, runlog.KindPredict:
			q.Kind = k
		default:
			http.Error(w, "invalid kind", http.StatusBadRequest)
			return
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []runlog.Record{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

func authorized(r *http.Request, token string) bool {
	got := []byte(r.Header.Get("Authorization"))
	want := []byte("Bearer " + token)
	return subtle.ConstantTimeCompare(got, want) == 1
}
