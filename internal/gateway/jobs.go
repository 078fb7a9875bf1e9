package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/newspaper/mailing/internal/cron"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// handleListJobs returns an http.HandlerFunc for GET /api/jobs.
func (g *Gateway) handleListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, g.sched.States())
	}
}

// handleHistory returns an http.HandlerFunc for GET /api/jobs/{id}/executions.
// The optional limit query parameter bounds the result, newest first.
func (g *Gateway) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !g.known(id) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}

		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		records, err := g.sched.History(r.Context(), id, limit)
		if err != nil {
			g.logger.Error("gateway: loading history failed", "job", id, "error", err)
			writeError(w, http.StatusInternalServerError, "loading history failed")
			return
		}
		if records == nil {
			records = []cron.Record{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

// handleRunNow returns an http.HandlerFunc for POST /api/jobs/{id}/run. The
// job is dispatched asynchronously; the response carries its record, which
// is a skipped-overlap record when the job is already at its instance limit.
func (g *Gateway) handleRunNow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rec, err := g.sched.RunNow(r.Context(), id)
		switch {
		case errors.Is(err, cron.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found")
			return
		case errors.Is(err, cron.ErrStopping):
			writeError(w, http.StatusServiceUnavailable, "scheduler is stopping")
			return
		case err != nil:
			g.logger.Error("gateway: run now failed", "job", id, "error", err)
			writeError(w, http.StatusInternalServerError, "run failed")
			return
		}

		g.logger.Info("gateway: job triggered manually", "job", id, "execution", rec.ID, "outcome", rec.Outcome)
		writeJSON(w, http.StatusAccepted, rec)
	}
}

func (g *Gateway) known(id string) bool {
	for _, st := range g.sched.States() {
		if st.JobID == id {
			return true
		}
	}
	return false
}
