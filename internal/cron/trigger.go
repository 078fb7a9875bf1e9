package cron

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// starBit marks a field written as "*" or "?" (mirrors robfig/cron).
	starBit = 1 << 63

	// allHours is the Hour bitmask of a schedule that fires every hour.
	allHours = 1<<24 - 1

	// maxZoneShift bounds the difference between two UTC offsets of one
	// location. Real DST shifts are at most two hours.
	maxZoneShift = 3 * time.Hour

	searchHorizonYears = 5
)

var triggerParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Trigger computes fire times. Implementations are pure: the same input
// always yields the same output.
type Trigger interface {
	// Next returns the first fire time strictly after `after`.
	Next(after time.Time) (time.Time, error)

	// String returns the expression the trigger was parsed from.
	String() string
}

// ParseTrigger parses a cron expression evaluated in loc. Six fields (with
// seconds) and five fields are accepted, as are descriptors such as "@weekly"
// and "@every 10s". A CRON_TZ= or TZ= prefix overrides loc.
func ParseTrigger(spec string, loc *time.Location) (Trigger, error) {
	if loc == nil {
		loc = time.UTC
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, &TriggerError{Spec: spec, Err: fmt.Errorf("empty expression")}
	}

	sched, err := triggerParser.Parse(spec)
	if err != nil {
		return nil, &TriggerError{Spec: spec, Err: err}
	}

	switch s := sched.(type) {
	case cron.ConstantDelaySchedule:
		return &intervalTrigger{spec: spec, every: s.Delay, loc: loc}, nil
	case *cron.SpecSchedule:
		if !hasZonePrefix(spec) {
			s.Location = loc
		}
		t := &calendarTrigger{spec: spec, sched: s}
		// Reject expressions that can never fire, e.g. "0 0 0 30 2 *".
		if _, err := t.Next(time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)); err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, &TriggerError{Spec: spec, Err: fmt.Errorf("unsupported schedule type %T", sched)}
	}
}

func hasZonePrefix(spec string) bool {
	return strings.HasPrefix(spec, "CRON_TZ=") || strings.HasPrefix(spec, "TZ=")
}

// intervalTrigger fires at a fixed elapsed-time interval.
type intervalTrigger struct {
	spec  string
	every time.Duration
	loc   *time.Location
}

func (t *intervalTrigger) Next(after time.Time) (time.Time, error) {
	return after.Add(t.every).Truncate(time.Second).In(t.loc), nil
}

func (t *intervalTrigger) String() string { return t.spec }

// calendarTrigger fires when the location's wall clock matches the cron
// fields. Matching happens on naive wall-clock times (stored as UTC, which has
// no transitions); each match is then mapped back to real instants:
//
//   - a wall time skipped by a forward transition maps to the first instant
//     after the gap;
//   - a wall time repeated by a backward transition maps to its earliest
//     instant, or to both instants when the schedule fires every hour.
type calendarTrigger struct {
	spec  string
	sched *cron.SpecSchedule
}

func (t *calendarTrigger) String() string { return t.spec }

func (t *calendarTrigger) Next(after time.Time) (time.Time, error) {
	after = after.In(t.sched.Location)
	if next, ok := t.nextSteady(after); ok {
		return next, nil
	}
	return t.scan(after)
}

// nextSteady handles the case where the UTC offset is the same around after
// and around the first matching wall time: wall times then map one to one
// onto instants.
func (t *calendarTrigger) nextSteady(after time.Time) (time.Time, bool) {
	offs := zoneOffsets(after)
	if len(offs) != 1 {
		return time.Time{}, false
	}
	off := offs[0]

	horizon := maxZoneShift
	if steadyYear(after, off) {
		horizon = 366 * 24 * time.Hour
	}
	wall := naive(after)
	w, ok := t.nextWall(wall, wall.Add(horizon))
	if !ok {
		return time.Time{}, false
	}

	next := w.Add(-off).In(t.sched.Location)
	if o := zoneOffsets(next); len(o) != 1 || o[0] != off {
		return time.Time{}, false
	}
	return next, true
}

// steadyYear reports whether off stays in effect at fortnightly samples over
// the year following after.
func steadyYear(after time.Time, off time.Duration) bool {
	for d := 14; d <= 378; d += 14 {
		if _, sec := after.AddDate(0, 0, d).Zone(); time.Duration(sec)*time.Second != off {
			return false
		}
	}
	return true
}

// scan searches wall times from maxZoneShift before after and keeps the
// earliest instant strictly after it. It resolves DST gaps and overlaps.
func (t *calendarTrigger) scan(after time.Time) (time.Time, error) {
	wall := naive(after)
	limit := wall.AddDate(searchHorizonYears, 0, 0)

	var best time.Time
	w := wall.Add(-maxZoneShift)
	for {
		var ok bool
		w, ok = t.nextWall(w, limit)
		if !ok {
			break
		}
		// Later wall times cannot map to an instant before best.
		if !best.IsZero() && w.After(naive(best).Add(maxZoneShift)) {
			break
		}
		for _, inst := range t.instants(w) {
			if inst.After(after) && (best.IsZero() || inst.Before(best)) {
				best = inst
			}
		}
	}

	if best.IsZero() {
		return time.Time{}, &TriggerError{Spec: t.spec, Err: errNoMatch}
	}
	return best, nil
}

// nextWall returns the first naive wall time strictly after w matching the
// schedule fields, or false once limit is passed.
func (t *calendarTrigger) nextWall(w, limit time.Time) (time.Time, bool) {
	s := t.sched
	w = w.Add(time.Second - time.Duration(w.Nanosecond()))
	truncated := false

wrap:
	if w.After(limit) {
		return time.Time{}, false
	}

	for 1<<uint(w.Month())&s.Month == 0 {
		if !truncated {
			truncated = true
			w = time.Date(w.Year(), w.Month(), 1, 0, 0, 0, 0, time.UTC)
		}
		w = w.AddDate(0, 1, 0)
		if w.Month() == time.January {
			goto wrap
		}
	}

	for !dayMatches(s, w) {
		if !truncated {
			truncated = true
			w = time.Date(w.Year(), w.Month(), w.Day(), 0, 0, 0, 0, time.UTC)
		}
		w = w.AddDate(0, 0, 1)
		if w.Day() == 1 {
			goto wrap
		}
	}

	for 1<<uint(w.Hour())&s.Hour == 0 {
		if !truncated {
			truncated = true
			w = w.Truncate(time.Hour)
		}
		w = w.Add(time.Hour)
		if w.Hour() == 0 {
			goto wrap
		}
	}

	for 1<<uint(w.Minute())&s.Minute == 0 {
		if !truncated {
			truncated = true
			w = w.Truncate(time.Minute)
		}
		w = w.Add(time.Minute)
		if w.Minute() == 0 {
			goto wrap
		}
	}

	for 1<<uint(w.Second())&s.Second == 0 {
		if !truncated {
			truncated = true
			w = w.Truncate(time.Second)
		}
		w = w.Add(time.Second)
		if w.Second() == 0 {
			goto wrap
		}
	}

	return w, true
}

// dayMatches applies cron's day rule: when either day field is a wildcard
// both must match, otherwise either may match.
func dayMatches(s *cron.SpecSchedule, w time.Time) bool {
	domMatch := 1<<uint(w.Day())&s.Dom > 0
	dowMatch := 1<<uint(w.Weekday())&s.Dow > 0
	if s.Dom&starBit > 0 || s.Dow&starBit > 0 {
		return domMatch && dowMatch
	}
	return domMatch || dowMatch
}

// instants maps naive wall time w to the instants at which the location's
// clock reads w, in ascending order.
func (t *calendarTrigger) instants(w time.Time) []time.Time {
	loc := t.sched.Location
	guess := time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), 0, loc)
	offsets := zoneOffsets(guess)

	var out []time.Time
	for _, off := range offsets {
		inst := w.Add(-off).In(loc)
		if naive(inst).Equal(w) && !slices.ContainsFunc(out, inst.Equal) {
			out = append(out, inst)
		}
	}

	if len(out) == 0 {
		return []time.Time{gapEnd(w, loc, offsets)}
	}

	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	if len(out) > 1 && t.sched.Hour&allHours != allHours {
		out = out[:1]
	}
	return out
}

// zoneOffsets returns the distinct UTC offsets in effect around t.
func zoneOffsets(t time.Time) []time.Duration {
	var offs []time.Duration
	for _, at := range []time.Time{t.Add(-maxZoneShift), t, t.Add(maxZoneShift)} {
		_, sec := at.Zone()
		off := time.Duration(sec) * time.Second
		if !slices.Contains(offs, off) {
			offs = append(offs, off)
		}
	}
	return offs
}

// gapEnd returns the first instant whose wall time is past w, for a w that
// falls inside a forward transition.
func gapEnd(w time.Time, loc *time.Location, offsets []time.Duration) time.Time {
	lo := w.Add(-slices.Max(offsets))
	hi := w.Add(-slices.Min(offsets))
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Second)
		if naive(mid.In(loc)).After(w) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi.In(loc)
}

// naive returns t's wall clock reading as a UTC time.
func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
