package app

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jinzhu/now"

	"studybuddy-client/internal/domain"
)

// UpcomingLimit is the number of sessions listed as upcoming.
const UpcomingLimit = 5

// DateFor places a plan entry on the calendar: one entry per day starting at anchor.
func DateFor(anchor time.Time, order int) time.Time {
	return now.With(anchor).BeginningOfDay().AddDate(0, 0, order)
}

// Week is a seven day window of the plan calendar.
type Week struct {
	Offset int                   `json:"offset"`
	Start  time.Time             `json:"start"`
	End    time.Time             `json:"end"`
	Days   []domain.ScheduledDay `json:"days"`
}

// PlanStats summarizes completion of the plan.
type PlanStats struct {
	Total             int `json:"total"`
	Completed         int `json:"completed"`
	CompletionPercent int `json:"completionPercent"`
}

// UpcomingSession is a plan entry with its computed date.
type UpcomingSession struct {
	Date   time.Time         `json:"date"`
	Topic  string            `json:"topic"`
	Status domain.PlanStatus `json:"status"`
}

// PlanScheduler lays a flat plan out on a weekly calendar anchored at "today".
// It works on a snapshot of the plan and is not safe for concurrent use.
type PlanScheduler struct {
	items      []domain.PlanItem
	anchor     time.Time
	weekOffset int
	calendar   *now.Config
}

// NewPlanScheduler builds a scheduler for items anchored at anchor. Weeks start on Sunday.
func NewPlanScheduler(items []domain.PlanItem, anchor time.Time) *PlanScheduler {
	return &PlanScheduler{
		items:    append([]domain.PlanItem(nil), items...),
		anchor:   now.With(anchor).BeginningOfDay(),
		calendar: &now.Config{WeekStartDay: time.Sunday},
	}
}

func (p *PlanScheduler) Anchor() time.Time { return p.anchor }

func (p *PlanScheduler) WeekOffset() int { return p.weekOffset }

// DateOf returns the calendar date of item.
func (p *PlanScheduler) DateOf(item domain.PlanItem) time.Time {
	return DateFor(p.anchor, item.Order)
}

// AdvanceWeek moves the visible week by delta. Any offset is allowed.
func (p *PlanScheduler) AdvanceWeek(delta int) int {
	p.weekOffset += delta
	return p.weekOffset
}

// SetWeek jumps to an absolute week offset.
func (p *PlanScheduler) SetWeek(offset int) {
	p.weekOffset = offset
}

// Week returns the visible week with each day's plan entries.
func (p *PlanScheduler) Week() Week {
	start := p.calendar.With(p.anchor).BeginningOfWeek().AddDate(0, 0, 7*p.weekOffset)

	byDay := make(map[string][]domain.PlanItem)
	for _, item := range p.items {
		key := dayKey(p.DateOf(item))
		byDay[key] = append(byDay[key], item)
	}

	days := make([]domain.ScheduledDay, 0, 7)
	for i := 0; i < 7; i++ {
		date := start.AddDate(0, 0, i)
		days = append(days, domain.ScheduledDay{Date: date, Topics: byDay[dayKey(date)]})
	}
	return Week{
		Offset: p.weekOffset,
		Start:  start,
		End:    days[6].Date,
		Days:   days,
	}
}

// Stats counts completed entries. An empty plan is 0% complete.
func (p *PlanScheduler) Stats() PlanStats {
	stats := PlanStats{Total: len(p.items)}
	for _, item := range p.items {
		if item.Status == domain.PlanCompleted {
			stats.Completed++
		}
	}
	if stats.Total > 0 {
		stats.CompletionPercent = int(math.Round(100 * float64(stats.Completed) / float64(stats.Total)))
	}
	return stats
}

// Upcoming lists the first entries by order with their dates.
func (p *PlanScheduler) Upcoming() []UpcomingSession {
	sorted := append([]domain.PlanItem(nil), p.items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	if len(sorted) > UpcomingLimit {
		sorted = sorted[:UpcomingLimit]
	}
	out := make([]UpcomingSession, 0, len(sorted))
	for _, item := range sorted {
		status := item.Status
		if status == "" {
			status = domain.PlanPending
		}
		out = append(out, UpcomingSession{Date: p.DateOf(item), Topic: item.Topic, Status: status})
	}
	return out
}

// ExportICS writes the plan as an iCalendar document with one all-day event per entry.
func (p *PlanScheduler) ExportICS(w io.Writer, stamp time.Time) error {
	bw := bufio.NewWriter(w)
	line := func(s string) { bw.WriteString(s + "\r\n") }

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:-//Study Agent//Smart Planner//EN")
	for _, item := range p.items {
		date := p.DateOf(item)
		status := item.Status
		if status == "" {
			status = domain.PlanPending
		}
		line("BEGIN:VEVENT")
		line(fmt.Sprintf("UID:plan-%d-%s@studybuddy", item.Order, date.Format("20060102")))
		line("DTSTAMP:" + stamp.UTC().Format("20060102T150405Z"))
		line("DTSTART;VALUE=DATE:" + date.Format("20060102"))
		line("DTEND;VALUE=DATE:" + date.AddDate(0, 0, 1).Format("20060102"))
		line("SUMMARY:" + escapeICS("Review: "+item.Topic))
		line("DESCRIPTION:" + escapeICS("Status: "+string(status)))
		line("END:VEVENT")
	}
	line("END:VCALENDAR")
	return bw.Flush()
}

var icsEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\r\n", `\n`, "\n", `\n`)

func escapeICS(s string) string {
	return icsEscaper.Replace(s)
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
