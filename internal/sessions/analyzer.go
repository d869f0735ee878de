package sessions

import (
	"context"
	"time"

	"github.com/2beens/repstats/internal/telemetry/tracing"
)

// DayProgress is one day of the rolling 7-day punchcard.
type DayProgress struct {
	Date           string `json:"date"`
	DayCount       int    `json:"day_count"`
	WeekCumulative int    `json:"week_cumulative"`
	DayGoalMet     bool   `json:"day_goal_met"`
	WeekGoalMet    bool   `json:"week_goal_met"`
	// MonthGoalCrossed fires only on the day the month-to-date total
	// crosses the monthly goal, not on the days after
	MonthGoalCrossed bool `json:"month_goal_crossed"`
	IsToday          bool `json:"is_today"`
}

type GoalsMet struct {
	Day   bool `json:"day"`
	Week  bool `json:"week"`
	Month bool `json:"month"`
}

// Report is everything the dashboard shows.
type Report struct {
	Today      int `json:"today"`
	ThisWeek   int `json:"this_week"`
	ThisMonth  int `json:"this_month"`
	MaxDay     int `json:"max_day"`
	MaxWeek    int `json:"max_week"`
	MaxMonth   int `json:"max_month"`
	MaxSet     int `json:"max_set"`
	MaxSession int `json:"max_session"`

	Punchcard        []DayProgress `json:"punchcard"`
	GoalsMet         GoalsMet      `json:"goals_met"`
	Goals            Goals         `json:"goals"`
	ProgressPercent  float64       `json:"progress_percent"`
	CurrentMonthName string        `json:"current_month_name"`
}

type Analyzer struct {
	repo  sessionsRepo
	goals Goals
}

func NewAnalyzer(repo sessionsRepo, goals Goals) *Analyzer {
	return &Analyzer{
		repo:  repo,
		goals: goals,
	}
}

// Report builds the full dashboard report as of the given moment.
// All bucketing is done here, on typed dates, instead of leaning on
// sqlite date string functions.
func (a *Analyzer) Report(ctx context.Context, now time.Time) (_ *Report, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.sessions.report")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	allSessions, err := a.repo.ListBetween(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	maxSet, err := a.repo.MaxSetReps(ctx)
	if err != nil {
		return nil, err
	}
	maxSession, err := a.repo.MaxSessionReps(ctx)
	if err != nil {
		return nil, err
	}

	dayTotals := make(map[time.Time]int)
	weekTotals := make(map[isoWeek]int)
	monthTotals := make(map[yearMonth]int)
	for _, session := range allSessions {
		logTime := session.LogTime.UTC()
		dayTotals[startOfDay(logTime)] += session.TotalReps

		y, w := logTime.ISOWeek()
		weekTotals[isoWeek{y, w}] += session.TotalReps
		monthTotals[yearMonth{logTime.Year(), logTime.Month()}] += session.TotalReps
	}

	todayStart := startOfDay(now)
	weekStart := startOfWeek(now)
	monthStart := startOfMonth(now)

	report := &Report{
		Today:            dayTotals[todayStart],
		MaxSet:           maxSet,
		MaxSession:       maxSession,
		Goals:            a.goals,
		CurrentMonthName: now.Month().String(),
	}

	nowYear, nowWeek := now.ISOWeek()
	report.ThisWeek = weekTotals[isoWeek{nowYear, nowWeek}]
	report.ThisMonth = monthTotals[yearMonth{now.Year(), now.Month()}]

	for _, total := range dayTotals {
		if total > report.MaxDay {
			report.MaxDay = total
		}
	}
	for _, total := range weekTotals {
		if total > report.MaxWeek {
			report.MaxWeek = total
		}
	}
	for _, total := range monthTotals {
		if total > report.MaxMonth {
			report.MaxMonth = total
		}
	}

	// the last 7 calendar days, oldest first
	report.Punchcard = make([]DayProgress, 0, 7)
	for i := 6; i >= 0; i-- {
		day := todayStart.AddDate(0, 0, -i)
		dayCount := dayTotals[day]

		// cumulative totals only run within the current week/month:
		// punchcard days from before those boundaries report zero
		weekCumulative := 0
		if !day.Before(weekStart) {
			for d := weekStart; !d.After(day); d = d.AddDate(0, 0, 1) {
				weekCumulative += dayTotals[d]
			}
		}
		monthToDate := 0
		if !day.Before(monthStart) {
			for d := monthStart; !d.After(day); d = d.AddDate(0, 0, 1) {
				monthToDate += dayTotals[d]
			}
		}

		report.Punchcard = append(report.Punchcard, DayProgress{
			Date:             day.Format("2006-01-02"),
			DayCount:         dayCount,
			WeekCumulative:   weekCumulative,
			DayGoalMet:       dayCount >= a.goals.Daily,
			WeekGoalMet:      weekCumulative >= a.goals.Weekly,
			MonthGoalCrossed: monthToDate >= a.goals.Monthly && monthToDate-dayCount < a.goals.Monthly,
			IsToday:          day.Equal(todayStart),
		})
	}

	report.GoalsMet = GoalsMet{
		Day:   report.Today >= a.goals.Daily,
		Week:  report.ThisWeek >= a.goals.Weekly,
		Month: report.ThisMonth >= a.goals.Monthly,
	}

	report.ProgressPercent = float64(report.ThisMonth) / float64(a.goals.Monthly) * 100
	if report.ProgressPercent > 100 {
		report.ProgressPercent = 100
	}

	return report, nil
}

type isoWeek struct {
	year int
	week int
}

type yearMonth struct {
	year  int
	month time.Month
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the Monday midnight of the week t belongs to.
func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	sinceMonday := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -sinceMonday)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
