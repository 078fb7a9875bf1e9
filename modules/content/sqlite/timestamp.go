package sqlite

import (
	"fmt"
	"strings"
	"time"
)

// siteLayout is how the site writes datetimes: naive, space separated,
// fractional seconds only when non-zero.
const siteLayout = "2006-01-02 15:04:05.999999"

var parseLayouts = []string{
	siteLayout,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02",
}

func formatSiteTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(siteLayout)
}

// siteTime scans a site datetime column. The driver hands back time.Time for
// columns declared DATETIME and a string otherwise; both are read as wall
// time in loc.
type siteTime struct {
	loc  *time.Location
	Time time.Time
}

func (st *siteTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		st.Time = time.Date(v.Year(), v.Month(), v.Day(), v.Hour(), v.Minute(), v.Second(), v.Nanosecond(), st.loc)
		return nil
	case string:
		return st.parse(v)
	case []byte:
		return st.parse(string(v))
	case nil:
		return fmt.Errorf("content: NULL datetime")
	default:
		return fmt.Errorf("content: unsupported datetime type %T", src)
	}
}

func (st *siteTime) parse(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range parseLayouts {
		t, err := time.ParseInLocation(layout, s, st.loc)
		if err == nil {
			st.Time = t
			return nil
		}
	}
	return fmt.Errorf("content: unrecognised datetime %q", s)
}
