package gateway

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/newspaper/mailing/internal/cron"
)

// fakeScheduler is an in-memory Scheduler.
type fakeScheduler struct {
	mu      sync.Mutex
	running bool
	states  []cron.State
	history map[string][]cron.Record
	runs    []string
	runErr  error
	subs    []chan cron.Event
}

func newFakeScheduler(ids ...string) *fakeScheduler {
	f := &fakeScheduler{running: true, history: make(map[string][]cron.Record)}
	for _, id := range ids {
		f.states = append(f.states, cron.State{
			JobID:    id,
			Trigger:  "0 0 0 * * mon",
			NextFire: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
		})
	}
	return f
}

func (f *fakeScheduler) States() []cron.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cron.State(nil), f.states...)
}

func (f *fakeScheduler) History(_ context.Context, id string, limit int) ([]cron.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	recs := f.history[id]
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (f *fakeScheduler) RunNow(_ context.Context, id string) (cron.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runErr != nil {
		return cron.Record{}, f.runErr
	}
	for _, st := range f.states {
		if st.JobID == id {
			f.runs = append(f.runs, id)
			return cron.Record{ID: fmt.Sprintf("run-%d", len(f.runs)), JobID: id}, nil
		}
	}
	return cron.Record{}, fmt.Errorf("%w: %s", cron.ErrJobNotFound, id)
}

func (f *fakeScheduler) Subscribe(buffer int) (<-chan cron.Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan cron.Event, buffer)
	f.subs = append(f.subs, ch)
	return ch, func() {}
}

func (f *fakeScheduler) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeScheduler) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeScheduler) publish(ev cron.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- ev
	}
}

func (f *fakeScheduler) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newTestGateway(t *testing.T, sched Scheduler, auth AuthConfig) *Gateway {
	t.Helper()
	cfg := Config{Enabled: true, Auth: auth}
	cfg.Defaults()
	return New(cfg, Options{Scheduler: sched, Logger: discardLogger()})
}

// serve starts g's handler on an httptest server.
func serve(t *testing.T, g *Gateway) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
