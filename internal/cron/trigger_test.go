package cron

import (
	"errors"
	"testing"
	"time"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("timezone %s unavailable: %v", name, err)
	}
	return loc
}

func mustTrigger(t *testing.T, spec string, loc *time.Location) Trigger {
	t.Helper()
	trig, err := ParseTrigger(spec, loc)
	if err != nil {
		t.Fatalf("ParseTrigger(%q): %v", spec, err)
	}
	return trig
}

func assertNext(t *testing.T, trig Trigger, after, want time.Time) {
	t.Helper()
	got, err := trig.Next(after)
	if err != nil {
		t.Fatalf("Next(%s): %v", after, err)
	}
	if !got.Equal(want) {
		t.Errorf("Next(%s) = %s, want %s", after, got, want)
	}
}

func TestTrigger_EveryTenSeconds(t *testing.T) {
	t.Parallel()

	trig := mustTrigger(t, "*/10 * * * * *", time.UTC)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assertNext(t, trig, base.Add(3*time.Second), base.Add(10*time.Second))
	assertNext(t, trig, base.Add(10*time.Second), base.Add(20*time.Second))
	assertNext(t, trig, base.Add(59*time.Second+500*time.Millisecond), base.Add(time.Minute))
}

func TestTrigger_WeeklyMonday(t *testing.T) {
	t.Parallel()

	loc := mustLoad(t, "Europe/Moscow")
	want := time.Date(2024, 1, 8, 0, 0, 0, 0, loc)
	after := time.Date(2024, 1, 3, 15, 4, 5, 0, loc) // a Wednesday

	for _, spec := range []string{"0 0 0 * * mon", "0 0 * * mon", "0 0 0 * * 1"} {
		assertNext(t, mustTrigger(t, spec, loc), after, want)
	}

	// Exactly at the fire time the following week is returned.
	assertNext(t, mustTrigger(t, "0 0 0 * * mon", loc), want, want.AddDate(0, 0, 7))
}

func TestTrigger_EveryDescriptor(t *testing.T) {
	t.Parallel()

	trig := mustTrigger(t, "@every 10s", time.UTC)
	after := time.Date(2024, 1, 1, 12, 0, 0, 250*int(time.Millisecond), time.UTC)
	assertNext(t, trig, after, time.Date(2024, 1, 1, 12, 0, 10, 0, time.UTC))
}

func TestTrigger_ZonePrefixOverridesLocation(t *testing.T) {
	t.Parallel()

	mustLoad(t, "Asia/Tokyo")
	trig := mustTrigger(t, "CRON_TZ=Asia/Tokyo 0 0 9 * * *", time.UTC)
	after := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	assertNext(t, trig, after, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
}

func TestTrigger_SpringForwardGap(t *testing.T) {
	t.Parallel()

	ny := mustLoad(t, "America/New_York")
	trig := mustTrigger(t, "0 30 2 * * *", ny)

	// 02:30 does not exist on 2024-03-10; the first instant after the gap fires.
	after := time.Date(2024, 3, 10, 0, 0, 0, 0, ny)
	gapEnd := time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC) // 03:00 EDT
	assertNext(t, trig, after, gapEnd)

	// The day after resumes the normal wall time, without a second fire.
	assertNext(t, trig, gapEnd, time.Date(2024, 3, 11, 2, 30, 0, 0, ny))
}

func TestTrigger_FallBackOverlap(t *testing.T) {
	t.Parallel()

	ny := mustLoad(t, "America/New_York")
	firstOneThirty := time.Date(2024, 11, 3, 5, 30, 0, 0, time.UTC)  // 01:30 EDT
	secondOneThirty := time.Date(2024, 11, 3, 6, 30, 0, 0, time.UTC) // 01:30 EST

	daily := mustTrigger(t, "0 30 1 * * *", ny)
	assertNext(t, daily, time.Date(2024, 11, 3, 0, 0, 0, 0, ny), firstOneThirty)
	// 01:30 repeats, but a daily job fires once.
	assertNext(t, daily, firstOneThirty, time.Date(2024, 11, 4, 1, 30, 0, 0, ny))

	// An hourly job keeps its elapsed-time cadence through the repeated hour.
	hourly := mustTrigger(t, "0 30 * * * *", ny)
	assertNext(t, hourly, firstOneThirty, secondOneThirty)
	assertNext(t, hourly, secondOneThirty, time.Date(2024, 11, 3, 7, 30, 0, 0, time.UTC))
}

func TestTrigger_IntervalAcrossTransitions(t *testing.T) {
	t.Parallel()

	ny := mustLoad(t, "America/New_York")
	trig := mustTrigger(t, "*/10 * * * * *", ny)

	// Spring forward: 01:59:50 EST is followed by 03:00:00 EDT, ten real seconds later.
	spring := time.Date(2024, 3, 10, 6, 59, 50, 0, time.UTC)
	assertNext(t, trig, spring, spring.Add(10*time.Second))

	// Fall back: 01:59:50 EDT is followed by 01:00:00 EST, ten real seconds later.
	fall := time.Date(2024, 11, 3, 5, 59, 50, 0, time.UTC)
	assertNext(t, trig, fall, fall.Add(10*time.Second))
}

func TestTrigger_AlwaysStrictlyAfter(t *testing.T) {
	t.Parallel()

	ny := mustLoad(t, "America/New_York")
	specs := []string{
		"*/10 * * * * *",
		"0 0 0 * * mon",
		"0 30 2 * * *",
		"0 30 1 * * *",
		"0 0 * * * *",
		"@every 90s",
		"@weekly",
	}
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, ny)

	for _, spec := range specs {
		trig := mustTrigger(t, spec, ny)
		for i := range 400 {
			after := base.Add(time.Duration(i) * 7919 * time.Second)
			next, err := trig.Next(after)
			if err != nil {
				t.Fatalf("%s: Next(%s): %v", spec, after, err)
			}
			if !next.After(after) {
				t.Fatalf("%s: Next(%s) = %s, not strictly after", spec, after, next)
			}
		}
	}
}

func TestTrigger_ChainedFiresNeverRepeat(t *testing.T) {
	t.Parallel()

	ny := mustLoad(t, "America/New_York")
	trig := mustTrigger(t, "0 */20 * * * *", ny)

	at := time.Date(2024, 11, 2, 22, 0, 0, 0, ny)
	seen := make(map[int64]bool)
	for range 30 {
		next, err := trig.Next(at)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if seen[next.Unix()] {
			t.Fatalf("instant %s fired twice", next)
		}
		if gap := next.Sub(at); gap != 20*time.Minute {
			t.Fatalf("gap between %s and %s = %s, want 20m", at, next, gap)
		}
		seen[next.Unix()] = true
		at = next
	}
}

func TestParseTrigger_Invalid(t *testing.T) {
	t.Parallel()

	for _, spec := range []string{"", "bogus", "61 * * * * *", "* * * *", "0 0 0 30 2 *"} {
		_, err := ParseTrigger(spec, time.UTC)
		if err == nil {
			t.Errorf("ParseTrigger(%q): expected error", spec)
			continue
		}
		var te *TriggerError
		if !errors.As(err, &te) {
			t.Errorf("ParseTrigger(%q): error %T is not *TriggerError", spec, err)
		}
	}
}

func TestParseTrigger_UnsatisfiableWrapsNoMatch(t *testing.T) {
	t.Parallel()

	_, err := ParseTrigger("0 0 0 31 4 *", time.UTC)
	if !errors.Is(err, errNoMatch) {
		t.Fatalf("error = %v, want errNoMatch", err)
	}
}

func TestTrigger_SteadyOffsetMatchesFullScan(t *testing.T) {
	t.Parallel()

	specs := []string{
		"*/10 * * * * *",
		"0 0 0 * * mon",
		"0 30 2 * * *",
		"0 30 1 * * *",
		"0 */20 * * * *",
		"0 0 12 1 * *",
	}
	zones := []string{"UTC", "Europe/Moscow", "America/New_York", "Asia/Tehran", "Australia/Lord_Howe"}

	for _, zone := range zones {
		loc := mustLoad(t, zone)
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
		for _, spec := range specs {
			trig := mustTrigger(t, spec, loc).(*calendarTrigger)
			for i := range 300 {
				after := base.Add(time.Duration(i) * 104729 * time.Second)
				got, err := trig.Next(after)
				if err != nil {
					t.Fatalf("%s %s: Next(%s): %v", zone, spec, after, err)
				}
				want, err := trig.scan(after.In(loc))
				if err != nil {
					t.Fatalf("%s %s: scan(%s): %v", zone, spec, after, err)
				}
				if !got.Equal(want) {
					t.Fatalf("%s %s: Next(%s) = %s, full scan = %s", zone, spec, after, got, want)
				}
			}
		}
	}
}

func TestTrigger_FixedZoneTakesSteadyPath(t *testing.T) {
	t.Parallel()

	loc := mustLoad(t, "Europe/Moscow")
	trig := mustTrigger(t, "*/10 * * * * *", loc).(*calendarTrigger)
	after := time.Date(2024, 6, 1, 12, 0, 3, 0, loc)

	next, ok := trig.nextSteady(after)
	if !ok {
		t.Fatal("fixed-offset zone fell back to the full scan")
	}
	if want := time.Date(2024, 6, 1, 12, 0, 10, 0, loc); !next.Equal(want) {
		t.Errorf("next = %s, want %s", next, want)
	}

	// Right before a DST change the full scan is required.
	ny := mustLoad(t, "America/New_York")
	nyTrig := mustTrigger(t, "*/10 * * * * *", ny).(*calendarTrigger)
	if _, ok := nyTrig.nextSteady(time.Date(2024, 3, 10, 1, 59, 50, 0, ny)); ok {
		t.Error("steady path used across a forward transition")
	}
}
