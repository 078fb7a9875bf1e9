package gateway

import "net/http"

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string `json:"status"` // "ok" or "degraded"
	Jobs   int    `json:"jobs"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 while the scheduler loop runs, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}
		code := http.StatusOK

		if g.sched == nil || !g.sched.Running() {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		if g.sched != nil {
			resp.Jobs = len(g.sched.States())
		}

		writeJSON(w, code, resp)
	}
}
