package fanout

import (
	"encoding/json"
	"net/http"

	"github.com/cncaiprojem/progressd/internal/auth"
)

// StatsHandler implements GET /ws/connections/stats: admin-only session
// and per-job counts, backed directly by Registry.
func StatsHandler(registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.GetUserFromContext(r.Context())
		if !ok || !auth.IsAdmin(claims) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(registry.Stats())
	}
}
