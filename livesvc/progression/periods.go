package progression

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type WeeklyMode string

const (
	WeeklyPassWeek WeeklyMode = "BATTLEPASS_WEEK"
	WeeklyISO      WeeklyMode = "ISO"
	WeeklyCron     WeeklyMode = "CRON"
)

// Period holds the reset markers stored per player. A marker that differs
// from the current token means the cadence rolled over while they were away.
type Period struct {
	Daily  int64
	Weekly int64
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Periods turns wall-clock time into daily and weekly reset tokens.
type Periods struct {
	loc    *time.Location
	daily  cron.Schedule
	mode   WeeklyMode
	weekly cron.Schedule
	week   int
}

// NewPeriods parses the reset schedules. An unknown timezone falls back to
// UTC; an unknown weekly mode falls back to the pass week number.
func NewPeriods(timezone, dailySpec, weeklyMode, weeklySpec string, week int) (*Periods, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(timezone))
	if err != nil || strings.TrimSpace(timezone) == "" {
		loc = time.UTC
	}
	daily, err := cronParser.Parse(dailySpec)
	if err != nil {
		return nil, fmt.Errorf("invalid daily reset %q: %w", dailySpec, err)
	}

	p := &Periods{loc: loc, daily: daily, week: week}
	switch WeeklyMode(strings.ToUpper(strings.TrimSpace(weeklyMode))) {
	case WeeklyISO:
		p.mode = WeeklyISO
	case WeeklyCron:
		p.mode = WeeklyCron
		if p.weekly, err = cronParser.Parse(weeklySpec); err != nil {
			return nil, fmt.Errorf("invalid weekly reset %q: %w", weeklySpec, err)
		}
	default:
		p.mode = WeeklyPassWeek
	}
	return p, nil
}

// Current returns the tokens for now. The daily token is the unix time of the
// next daily reset, so it changes exactly when a reset passes.
func (p *Periods) Current(now time.Time) Period {
	local := now.In(p.loc)
	out := Period{Daily: p.daily.Next(local).Unix()}
	switch p.mode {
	case WeeklyISO:
		year, week := local.ISOWeek()
		out.Weekly = int64(year)*100 + int64(week)
	case WeeklyCron:
		out.Weekly = p.weekly.Next(local).Unix()
	default:
		out.Weekly = int64(p.week)
	}
	return out
}

func (p *Periods) Week() int { return p.week }
