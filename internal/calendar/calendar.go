// Package calendar implements the business-day arithmetic used for ACH
// effective and settlement dates and for business-account processing days.
// A Calendar has a set of working weekdays (Monday through Friday unless told
// otherwise), optionally the US federal holidays, and any number of one-off
// closure dates.
package calendar

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
)

const dateLayout = "2006-01-02"

// Options configures a Calendar.
type Options struct {
	// Workdays lists the working weekdays. Empty means Monday through Friday.
	Workdays []time.Weekday
	// FederalHolidays closes the observed US federal holidays.
	FederalHolidays bool
	// Holidays are extra YYYY-MM-DD closure dates. Malformed entries are skipped.
	Holidays []string
}

// Calendar answers business-day questions. It is safe for concurrent use once built.
type Calendar struct {
	bc *cal.BusinessCalendar
}

// New builds a Calendar from opts.
func New(opts Options) *Calendar {
	bc := cal.NewBusinessCalendar()
	if len(opts.Workdays) > 0 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			bc.SetWorkday(d, false)
		}
		for _, d := range opts.Workdays {
			bc.SetWorkday(d, true)
		}
	}
	if opts.FederalHolidays {
		bc.AddHoliday(us.Holidays...)
	}
	for _, h := range closures(opts.Holidays) {
		bc.AddHoliday(h)
	}
	return &Calendar{bc: bc}
}

// Weekdays returns a Monday through Friday calendar with no holidays.
func Weekdays() *Calendar {
	return New(Options{})
}

// closures turns YYYY-MM-DD strings into single-year holidays.
func closures(dates []string) []*cal.Holiday {
	out := make([]*cal.Holiday, 0, len(dates))
	for _, d := range dates {
		t, err := time.Parse(dateLayout, d)
		if err != nil {
			continue
		}
		out = append(out, &cal.Holiday{
			Name:      "closure " + d,
			StartYear: t.Year(),
			EndYear:   t.Year(),
			Month:     t.Month(),
			Day:       t.Day(),
			Func:      cal.CalcDayOfMonth,
		})
	}
	return out
}

// ValidDate reports whether s is a YYYY-MM-DD date.
func ValidDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

// IsBusinessDay reports whether t's date is a working weekday that is not a holiday.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	return c.bc.IsWorkday(t)
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// NextBusinessDay returns the first business day strictly after t, at midnight.
func (c *Calendar) NextBusinessDay(t time.Time) time.Time {
	day := StartOfDay(t).AddDate(0, 0, 1)
	for !c.IsBusinessDay(day) {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// AddBusinessDays advances t by n business days. n <= 0 returns t at midnight.
func (c *Calendar) AddBusinessDays(t time.Time, n int) time.Time {
	day := StartOfDay(t)
	for i := 0; i < n; i++ {
		day = c.NextBusinessDay(day)
	}
	return day
}
