package cron

import (
	"testing"
	"time"
)

func FuzzParseTrigger(f *testing.F) {
	f.Add("*/5 * * * *")
	f.Add("0 0 0 * * mon")
	f.Add("0 0 1 1 *")
	f.Add("*/10 * * * * *")
	f.Add("@every 10s")
	f.Add("@weekly")
	f.Add("CRON_TZ=America/New_York 0 30 2 * * *")
	f.Add("invalid")
	f.Add("")
	f.Add("60 * * * *")
	f.Add("0 0 0 30 2 *")

	after := time.Date(2024, 3, 10, 1, 59, 59, 0, time.UTC)

	f.Fuzz(func(t *testing.T, expr string) {
		// Must not panic; errors are expected and acceptable.
		trig, err := ParseTrigger(expr, time.UTC)
		if err != nil {
			return
		}
		next, err := trig.Next(after)
		if err != nil {
			return
		}
		if !next.After(after) {
			t.Fatalf("%q: Next(%s) = %s, not strictly after", expr, after, next)
		}
	})
}
