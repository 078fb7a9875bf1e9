package digest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var now = time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	items      []Item
	err        error
	start, end time.Time
}

func (f *fakeSource) ListCreatedBetween(_ context.Context, start, end time.Time) ([]Item, error) {
	f.start, f.end = start, end
	return f.items, f.err
}

type fakeResolver struct {
	byCategory map[int64][]string
	fail       map[int64]error
}

func (f *fakeResolver) SubscribersOf(_ context.Context, c Category) ([]string, error) {
	if err := f.fail[c.ID]; err != nil {
		return nil, err
	}
	return f.byCategory[c.ID], nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []Message
	fail map[string]error // by subject
}

func (f *fakeMailer) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[msg.Subject]; err != nil {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) bySubject(subject string) (Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.sent {
		if m.Subject == subject {
			return m, true
		}
	}
	return Message{}, false
}

func newTestJob(t *testing.T, src ContentSource, res SubscriberResolver, m Mailer, metrics *Metrics) *Job {
	t.Helper()
	j, err := New(Config{SiteURL: "https://news.example.com", Subject: "{{.Category}}"}, Deps{
		Source:      src,
		Subscribers: res,
		Mailer:      m,
		Clock:       clockwork.NewFakeClockAt(now),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:     metrics,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return j
}

func sampleItems() []Item {
	return []Item{
		{ID: 1, Title: "A", CreatedAt: now.Add(-time.Hour), Categories: []Category{catX}},
		{ID: 2, Title: "B", CreatedAt: now.Add(-2 * time.Hour), Categories: []Category{catX, catY}},
		{ID: 3, Title: "C", CreatedAt: now.Add(-3 * time.Hour), Categories: []Category{catY}},
	}
}

func TestJob_Defaults(t *testing.T) {
	t.Parallel()

	j := newTestJob(t, &fakeSource{}, &fakeResolver{}, &fakeMailer{}, nil)
	if j.Name() != "weekly_digest" {
		t.Errorf("name = %q", j.Name())
	}
	if j.Schedule() != "0 0 0 * * mon" {
		t.Errorf("schedule = %q", j.Schedule())
	}

	if _, err := New(Config{}, Deps{}); err == nil {
		t.Error("expected error for missing collaborators")
	}
}

func TestJob_Run_SendsOneMessagePerCategory(t *testing.T) {
	t.Parallel()

	src := &fakeSource{items: sampleItems()}
	res := &fakeResolver{byCategory: map[int64][]string{
		catX.ID: {"anna@example.com", "ANNA@example.com", "bob@example.com"},
		catY.ID: {"carl@example.com"},
	}}
	mailer := &fakeMailer{}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	if err := newTestJob(t, src, res, mailer, metrics).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if !src.start.Equal(now.Add(-7*24*time.Hour)) || !src.end.Equal(now) {
		t.Errorf("window = [%s, %s), want the last 7 days", src.start, src.end)
	}

	politics, ok := mailer.bySubject("Politics")
	if !ok {
		t.Fatal("no message for Politics")
	}
	if !slices.Equal(politics.To, []string{"anna@example.com", "bob@example.com"}) {
		t.Errorf("Politics recipients = %v", politics.To)
	}
	sport, ok := mailer.bySubject("Sport")
	if !ok {
		t.Fatal("no message for Sport")
	}
	if !slices.Equal(sport.To, []string{"carl@example.com"}) {
		t.Errorf("Sport recipients = %v", sport.To)
	}
	if got := testutil.ToFloat64(metrics.messages.WithLabelValues("sent")); got != 2 {
		t.Errorf("sent counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.items); got != 3 {
		t.Errorf("items gauge = %v, want 3", got)
	}
}

func TestJob_Run_SkipsCategoryWithoutSubscribers(t *testing.T) {
	t.Parallel()

	mailer := &fakeMailer{}
	res := &fakeResolver{byCategory: map[int64][]string{catY.ID: {"carl@example.com"}}}

	if err := newTestJob(t, &fakeSource{items: sampleItems()}, res, mailer, nil).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].Subject != "Sport" {
		t.Errorf("sent = %+v, want only Sport", mailer.sent)
	}
}

func TestJob_Run_NothingPublished(t *testing.T) {
	t.Parallel()

	mailer := &fakeMailer{}
	if err := newTestJob(t, &fakeSource{}, &fakeResolver{}, mailer, nil).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Errorf("sent %d messages for an empty window", len(mailer.sent))
	}
}

func TestJob_Run_PartialFailure(t *testing.T) {
	t.Parallel()

	errSMTP := errors.New("smtp: 451 try again later")
	catZ := Category{ID: 3, Name: "Culture"}
	items := append(sampleItems(), Item{ID: 4, Title: "D", Categories: []Category{catZ}})

	res := &fakeResolver{
		byCategory: map[int64][]string{
			catX.ID: {"anna@example.com"},
			catY.ID: {"carl@example.com"},
			catZ.ID: {"dora@example.com"},
		},
		fail: map[int64]error{catZ.ID: errors.New("db locked")},
	}
	mailer := &fakeMailer{fail: map[string]error{"Politics": errSMTP}}

	err := newTestJob(t, &fakeSource{items: items}, res, mailer, nil).Run(context.Background())

	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("expected *SendError, got %v", err)
	}
	if sendErr.Total != 3 || len(sendErr.Failures) != 2 {
		t.Fatalf("send error = %+v", sendErr)
	}
	if sendErr.Failures[0].Category != catX || sendErr.Failures[1].Category != catZ {
		t.Errorf("failed categories = %v, %v", sendErr.Failures[0].Category, sendErr.Failures[1].Category)
	}
	if !errors.Is(err, errSMTP) {
		t.Error("SendError does not unwrap to the transport error")
	}
	if _, ok := mailer.bySubject("Sport"); !ok {
		t.Error("healthy category was not sent")
	}
}

func TestJob_Run_SourceError(t *testing.T) {
	t.Parallel()

	errDB := errors.New("no such table")
	err := newTestJob(t, &fakeSource{err: errDB}, &fakeResolver{}, &fakeMailer{}, nil).Run(context.Background())
	if !errors.Is(err, errDB) {
		t.Fatalf("got %v, want wrapped source error", err)
	}
}
