// Package admin exposes the operator HTTP API: charger activation, change
// tracking reset, snapshots, sessions and hub KPIs.
package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/kilianp07/evhub/core/assignment"
	"github.com/kilianp07/evhub/core/charging"
	"github.com/kilianp07/evhub/core/metrics/kpi"
	"github.com/kilianp07/evhub/core/sessionlog"
	"github.com/kilianp07/evhub/core/snapshot"
	"github.com/kilianp07/evhub/core/stats"
)

// SessionLister lists the open charging sessions.
type SessionLister interface {
	Sessions() []assignment.Session
}

// Deps are the collaborators behind the API. Sessions, SessionLog and KPI
// are optional; their routes answer 404 when unset.
type Deps struct {
	Registry   *charging.Registry
	Builder    *snapshot.Builder
	Sessions   SessionLister
	SessionLog sessionlog.LogStore
	KPI        kpi.Store
	// Token, when set, is required as "Authorization: Bearer <token>".
	Token string
}

type handler struct {
	Deps
}

// NewHandler returns the API routes.
func NewHandler(d Deps) http.Handler {
	h := &handler{Deps: d}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chargers/{id}/active", h.setActive)
	mux.HandleFunc("GET /api/chargers/{id}", h.charger)
	mux.HandleFunc("POST /api/dirty/reset", h.resetDirty)
	mux.HandleFunc("GET /api/snapshot", h.snapshot)
	mux.HandleFunc("GET /api/hubs", h.hubs)
	mux.HandleFunc("GET /api/hubs/{id}/kpis", h.hubKPIs)
	mux.HandleFunc("GET /api/stats", h.stats)
	mux.HandleFunc("GET /api/sessions", h.sessions)
	mux.HandleFunc("GET /api/sessions/log", h.sessionLog)
	return h.auth(mux)
}

func (h *handler) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Token != "" && r.Header.Get("Authorization") != "Bearer "+h.Token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, charging.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, charging.ErrInvalidTransition), errors.Is(err, charging.ErrResourceConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *handler) setActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Active == nil {
		http.Error(w, `body must be {"active": bool}`, http.StatusBadRequest)
		return
	}
	if err := h.Registry.SetChargerActive(r.PathValue("id"), *body.Active); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) charger(w http.ResponseWriter, r *http.Request) {
	c, err := h.Registry.Charger(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, c)
}

func (h *handler) resetDirty(w http.ResponseWriter, _ *http.Request) {
	h.Builder.ResetDirty()
	w.WriteHeader(http.StatusNoContent)
}

// snapshot is read-only: it never acknowledges what it returns.
func (h *handler) snapshot(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("mode") {
	case "", "full":
		writeJSON(w, h.Builder.Full())
	case "delta":
		writeJSON(w, h.Builder.Delta())
	default:
		http.Error(w, "mode must be full or delta", http.StatusBadRequest)
	}
}

type hubSummary struct {
	ID          string  `json:"id"`
	LinkID      string  `json:"link_id"`
	Chargers    int     `json:"chargers"`
	Occupancy   int     `json:"occupancy"`
	TotalEnergy float64 `json:"total_energy_j"`
	Dirty       bool    `json:"dirty"`
}

func (h *handler) hubs(w http.ResponseWriter, _ *http.Request) {
	hubs := h.Registry.Hubs()
	out := make([]hubSummary, 0, len(hubs))
	for _, hub := range hubs {
		st, _ := hub.State(false)
		out = append(out, hubSummary{
			ID:          st.ID,
			LinkID:      st.LinkID,
			Chargers:    len(st.Chargers),
			Occupancy:   st.Occupancy,
			TotalEnergy: st.TotalJ,
			Dirty:       st.Dirty,
		})
	}
	writeJSON(w, out)
}

func (h *handler) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, stats.Summarize(h.Builder.Full()))
}

func (h *handler) sessions(w http.ResponseWriter, r *http.Request) {
	if h.Sessions == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, h.Sessions.Sessions())
}

func (h *handler) sessionLog(w http.ResponseWriter, r *http.Request) {
	if h.SessionLog == nil {
		http.Error(w, "session log disabled", http.StatusNotFound)
		return
	}
	q := sessionlog.Query{
		Start:     parseTime(r.URL.Query().Get("start")),
		End:       parseTime(r.URL.Query().Get("end")),
		VehicleID: r.URL.Query().Get("vehicle_id"),
		HubID:     r.URL.Query().Get("hub_id"),
	}
	recs, err := h.SessionLog.Query(r.Context(), q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []sessionlog.Record{}
	}
	writeJSON(w, recs)
}

func (h *handler) hubKPIs(w http.ResponseWriter, r *http.Request) {
	if h.KPI == nil {
		http.Error(w, "kpi store disabled", http.StatusNotFound)
		return
	}
	id := r.PathValue("id")
	if _, err := h.Registry.Hub(id); err != nil {
		writeError(w, err)
		return
	}
	start := parseTime(r.URL.Query().Get("start"))
	end := parseTime(r.URL.Query().Get("end"))
	if end.IsZero() {
		end = time.Now()
	}
	recs, err := h.KPI.Query(id, start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	type day struct {
		Date           string  `json:"date"`
		DeliveredKWh   float64 `json:"delivered_kwh"`
		Sessions       int     `json:"sessions"`
		MeanSessionKWh float64 `json:"mean_session_kwh"`
	}
	out := make([]day, 0, len(recs))
	for _, rec := range recs {
		out = append(out, day{
			Date:           rec.Date.Format("2006-01-02"),
			DeliveredKWh:   rec.DeliveredKWh,
			Sessions:       rec.Sessions,
			MeanSessionKWh: rec.MeanSessionKWh(),
		})
	}
	writeJSON(w, out)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
