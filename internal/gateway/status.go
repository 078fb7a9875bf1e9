package gateway

import (
	"net/http"
	"time"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime      int64 `json:"uptime_seconds"`
	Running     bool  `json:"running"`
	Jobs        int   `json:"jobs"`
	RunningJobs int   `json:"running_jobs"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime: int64(g.clock.Since(g.startedAt) / time.Second),
		}
		if g.sched != nil {
			resp.Running = g.sched.Running()
			for _, st := range g.sched.States() {
				resp.Jobs++
				if st.Running > 0 {
					resp.RunningJobs++
				}
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
