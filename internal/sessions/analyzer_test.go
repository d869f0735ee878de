package sessions_test

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/repstats/internal/sessions"
)

// 2026-03-18 is a Wednesday; the week runs from Monday 2026-03-16
var analyzerNow = time.Date(2026, 3, 18, 14, 30, 0, 0, time.UTC)

func TestAnalyzer_Report_EmptyStore(t *testing.T) {
	repo, _ := newTestRepo(t)
	analyzer := sessions.NewAnalyzer(repo, sessions.DefaultGoals())

	report, err := analyzer.Report(context.Background(), analyzerNow)
	require.NoError(t, err)

	assert.Zero(t, report.Today)
	assert.Zero(t, report.ThisWeek)
	assert.Zero(t, report.ThisMonth)
	assert.Zero(t, report.MaxDay)
	assert.Zero(t, report.MaxWeek)
	assert.Zero(t, report.MaxMonth)
	assert.Zero(t, report.MaxSet)
	assert.Zero(t, report.MaxSession)
	assert.Zero(t, report.ProgressPercent)
	assert.False(t, report.GoalsMet.Day)
	assert.False(t, report.GoalsMet.Week)
	assert.False(t, report.GoalsMet.Month)
	assert.Equal(t, "March", report.CurrentMonthName)

	require.Len(t, report.Punchcard, 7)
	for i, day := range report.Punchcard {
		assert.Zero(t, day.DayCount)
		assert.Zero(t, day.WeekCumulative)
		assert.Equal(t, i == 6, day.IsToday)
	}
	assert.Equal(t, "2026-03-12", report.Punchcard[0].Date)
	assert.Equal(t, "2026-03-18", report.Punchcard[6].Date)
}

func TestAnalyzer_Report_PeriodTotalsAndMaxima(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	seed := []struct {
		logTime   time.Time
		totalReps int
	}{
		{analyzerNow.Add(-2 * time.Hour), 30},                          // today
		{analyzerNow.Add(-3 * time.Hour), 20},                          // today, second session
		{time.Date(2026, 3, 17, 9, 0, 0, 0, time.UTC), 30},             // yesterday, same week
		{time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), 100},            // previous week, same month
		{time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC), 200},            // previous month
	}
	for _, s := range seed {
		_, err := repo.AddSession(ctx, sessions.Session{
			LogTime:   s.logTime,
			TotalReps: s.totalReps,
			Sets:      []sessions.Set{{Reps: s.totalReps}},
		})
		require.NoError(t, err)
	}

	analyzer := sessions.NewAnalyzer(repo, sessions.DefaultGoals())
	report, err := analyzer.Report(ctx, analyzerNow)
	require.NoError(t, err)

	assert.Equal(t, 50, report.Today)
	assert.Equal(t, 80, report.ThisWeek)
	assert.Equal(t, 180, report.ThisMonth)

	assert.Equal(t, 200, report.MaxDay)
	assert.Equal(t, 200, report.MaxWeek)
	assert.Equal(t, 200, report.MaxMonth)
	assert.Equal(t, 200, report.MaxSet)
	assert.Equal(t, 200, report.MaxSession)

	// day goal (40) met today, week (224) and month (652) not
	assert.True(t, report.GoalsMet.Day)
	assert.False(t, report.GoalsMet.Week)
	assert.False(t, report.GoalsMet.Month)

	require.Len(t, report.Punchcard, 7)
	today := report.Punchcard[6]
	assert.Equal(t, 50, today.DayCount)
	assert.Equal(t, 80, today.WeekCumulative)
	assert.True(t, today.DayGoalMet)
	assert.False(t, today.WeekGoalMet)
	assert.True(t, today.IsToday)

	// days before the current week's Monday report no week progress
	for _, day := range report.Punchcard[:4] {
		assert.Zero(t, day.WeekCumulative)
	}
}

func TestAnalyzer_Report_PunchcardSumMatchesWindow(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	seededTotal := 0
	for i := 0; i < 20; i++ {
		reps := gofakeit.Number(1, 40)
		daysBack := gofakeit.Number(0, 6)
		_, err := repo.AddSession(ctx, sessions.Session{
			LogTime:   analyzerNow.AddDate(0, 0, -daysBack).Add(-time.Duration(gofakeit.Number(0, 5)) * time.Hour),
			TotalReps: reps,
		})
		require.NoError(t, err)
		seededTotal += reps
	}

	analyzer := sessions.NewAnalyzer(repo, sessions.DefaultGoals())
	report, err := analyzer.Report(ctx, analyzerNow)
	require.NoError(t, err)

	punchcardTotal := 0
	for _, day := range report.Punchcard {
		punchcardTotal += day.DayCount
	}
	assert.Equal(t, seededTotal, punchcardTotal)
}

func TestAnalyzer_Report_MonthGoalCrossedOnce(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	// monday 60, tuesday 50: month-to-date crosses 100 on tuesday only
	_, err := repo.AddSession(ctx, sessions.Session{
		LogTime:   time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC),
		TotalReps: 60,
	})
	require.NoError(t, err)
	_, err = repo.AddSession(ctx, sessions.Session{
		LogTime:   time.Date(2026, 3, 17, 10, 0, 0, 0, time.UTC),
		TotalReps: 50,
	})
	require.NoError(t, err)

	analyzer := sessions.NewAnalyzer(repo, sessions.Goals{Daily: 40, Weekly: 224, Monthly: 100})
	report, err := analyzer.Report(ctx, analyzerNow)
	require.NoError(t, err)

	var crossedDates []string
	for _, day := range report.Punchcard {
		if day.MonthGoalCrossed {
			crossedDates = append(crossedDates, day.Date)
		}
	}
	// fires on the crossing day only, not on the days after
	assert.Equal(t, []string{"2026-03-17"}, crossedDates)
	assert.True(t, report.GoalsMet.Month)
}

func TestAnalyzer_Report_ProgressPercentClamped(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.AddSession(ctx, sessions.Session{
		LogTime:   analyzerNow.Add(-time.Hour),
		TotalReps: 1000,
	})
	require.NoError(t, err)

	analyzer := sessions.NewAnalyzer(repo, sessions.DefaultGoals())
	report, err := analyzer.Report(ctx, analyzerNow)
	require.NoError(t, err)

	assert.Equal(t, 1000, report.ThisMonth)
	// 1000/652 would be ~153%, the bar stops at 100
	assert.Equal(t, float64(100), report.ProgressPercent)
	assert.True(t, report.GoalsMet.Month)
	assert.True(t, report.GoalsMet.Week)
	assert.True(t, report.GoalsMet.Day)
}

func TestAnalyzer_Report_ProgressPercentPartial(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.AddSession(ctx, sessions.Session{
		LogTime:   analyzerNow.Add(-time.Hour),
		TotalReps: 163,
	})
	require.NoError(t, err)

	analyzer := sessions.NewAnalyzer(repo, sessions.DefaultGoals())
	report, err := analyzer.Report(ctx, analyzerNow)
	require.NoError(t, err)

	assert.InDelta(t, 25.0, report.ProgressPercent, 0.1)
	assert.False(t, report.GoalsMet.Month)
}
