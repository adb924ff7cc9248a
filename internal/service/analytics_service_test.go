package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/fitgen/internal/domain"
)

var analyticsNow = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return analyticsNow.Add(-time.Duration(n) * 24 * time.Hour)
}

// startedInstance is an 8-week, 3-per-week instance that started `days` days before analyticsNow.
func startedInstance(days int, rules *domain.ProgressionRules) *domain.GeneratedInstance {
	content := sampleContent()
	content.ProgressionRules = rules
	start := daysAgo(days)
	return &domain.GeneratedInstance{
		ID:        primitive.NewObjectID(),
		Content:   content,
		Status:    domain.InstanceApplied,
		StartDate: &start,
	}
}

func sessionLog(date time.Time, volume, rpe float64) domain.PerformanceLog {
	return domain.PerformanceLog{
		ID:          primitive.NewObjectID(),
		Date:        date,
		Status:      domain.LogCompleted,
		TotalVolume: volume,
		AverageRPE:  rpe,
	}
}

func TestBucketAdherence(t *testing.T) {
	tests := []struct {
		rate float64
		want AdherenceBucket
	}{
		{100, AdherenceExcellent},
		{85, AdherenceExcellent},
		{80, AdherenceExcellent},
		{79.9, AdherenceGood},
		{65, AdherenceGood},
		{60, AdherenceGood},
		{40, AdherenceNeedsImprovement},
		{0, AdherenceNeedsImprovement},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BucketAdherence(tt.rate), "rate %v", tt.rate)
	}
}

func TestComputeCompliance(t *testing.T) {
	inst := startedInstance(14, nil)
	logs := []domain.PerformanceLog{
		sessionLog(daysAgo(13), 1000, 7),
		sessionLog(daysAgo(11), 1000, 7),
		sessionLog(daysAgo(9), 1000, 7),
		sessionLog(daysAgo(4), 1000, 7),
		sessionLog(daysAgo(1), 1000, 7),
	}

	r := computeCompliance(inst, logs, analyticsNow)
	assert.Equal(t, 2, r.WeeksSinceStart)
	assert.Equal(t, 3, r.CurrentWeek)
	assert.Equal(t, 3, r.SessionsPerWeek)
	assert.Equal(t, 24, r.TotalPlanned)
	assert.Equal(t, 6, r.ExpectedSessions)
	assert.Equal(t, 5, r.CompletedSessions)
	assert.Equal(t, 83.3, r.AdherenceRate)
	assert.Equal(t, AdherenceExcellent, r.Adherence)
	assert.Equal(t, 2, r.ThisWeekCompleted)
	assert.Equal(t, 66.7, r.ThisWeekRate)
	assert.Equal(t, 3, r.LongestStreak)
	assert.Equal(t, 1, r.CurrentStreak)
	require.NotNil(t, r.LastWorkoutAt)
	assert.True(t, daysAgo(1).Equal(*r.LastWorkoutAt))
}

func TestComputeCompliance_Bounds(t *testing.T) {
	t.Run("expected capped by plan length", func(t *testing.T) {
		r := computeCompliance(startedInstance(100, nil), nil, analyticsNow)
		assert.Equal(t, 24, r.ExpectedSessions)
		assert.Zero(t, r.AdherenceRate)
		assert.Equal(t, AdherenceNeedsImprovement, r.Adherence)
		assert.Nil(t, r.LastWorkoutAt)
	})
	t.Run("future start counts as week one", func(t *testing.T) {
		r := computeCompliance(startedInstance(-5, nil), nil, analyticsNow)
		assert.Equal(t, 1, r.WeeksSinceStart)
		assert.Equal(t, 1, r.CurrentWeek)
		assert.Equal(t, 3, r.ExpectedSessions)
	})
	t.Run("stale streak is not current", func(t *testing.T) {
		logs := []domain.PerformanceLog{
			sessionLog(daysAgo(10), 1, 0),
			sessionLog(daysAgo(9), 1, 0),
			sessionLog(daysAgo(8), 1, 0),
		}
		r := computeCompliance(startedInstance(12, nil), logs, analyticsNow)
		assert.Equal(t, 3, r.LongestStreak)
		assert.Zero(t, r.CurrentStreak)
	})
	t.Run("sessions per week falls back to the request", func(t *testing.T) {
		inst := startedInstance(7, nil)
		inst.Content.WorkoutPlan.SessionsPerWeek = 0
		inst.InputData.SessionsPerWeek = 4
		r := computeCompliance(inst, nil, analyticsNow)
		assert.Equal(t, 4, r.SessionsPerWeek)
		assert.Equal(t, 32, r.TotalPlanned)
	})
}

func TestTrends(t *testing.T) {
	logs := func(volumes, rpes []float64) []domain.PerformanceLog {
		out := make([]domain.PerformanceLog, len(volumes))
		for i := range volumes {
			out[i] = sessionLog(daysAgo(len(volumes)-i), volumes[i], rpes[i])
		}
		return out
	}
	flat := []float64{7, 7, 7, 7, 7}

	assert.Equal(t, TrendIncreasing, volumeTrend(logs([]float64{100, 100, 120, 120, 120}, flat)))
	assert.Equal(t, TrendDecreasing, volumeTrend(logs([]float64{120, 120, 100, 100, 100}, flat)))
	assert.Equal(t, TrendStable, volumeTrend(logs([]float64{100, 100, 102, 103, 101}, flat)))
	assert.Equal(t, TrendStable, volumeTrend(logs([]float64{100}, []float64{7})))
	// Only the five most recent sessions count.
	assert.Equal(t, TrendStable, volumeTrend(logs([]float64{10, 10, 100, 100, 100, 100, 100}, []float64{7, 7, 7, 7, 7, 7, 7})))

	volumes := []float64{100, 100, 100, 100, 100}
	assert.Equal(t, TrendIncreasing, rpeTrend(logs(volumes, []float64{5, 5, 8, 8, 8})))
	assert.Equal(t, TrendDecreasing, rpeTrend(logs(volumes, []float64{9, 9, 6, 6, 6})))
	assert.Equal(t, TrendStable, rpeTrend(logs(volumes, flat)))
	// Sessions without RPE are ignored.
	assert.Equal(t, TrendStable, rpeTrend(logs(volumes, []float64{0, 0, 0, 0, 8})))
}

func TestProgressionScore(t *testing.T) {
	assert.Equal(t, 100, progressionScore(TrendIncreasing, TrendDecreasing))
	assert.Equal(t, 90, progressionScore(TrendIncreasing, TrendStable))
	assert.Equal(t, 65, progressionScore(TrendStable, TrendStable))
	assert.Equal(t, 25, progressionScore(TrendDecreasing, TrendIncreasing))
}

func TestComputeProgression_InsufficientData(t *testing.T) {
	r := computeProgression(startedInstance(7, sampleContent().ProgressionRules), []domain.PerformanceLog{sessionLog(daysAgo(1), 100, 8)}, analyticsNow)
	assert.Equal(t, InsightsInsufficientData, r.Status)
	assert.Equal(t, 1, r.SessionsAnalyzed)
	assert.Equal(t, domain.StrategyLinear, r.Strategy)
	assert.Nil(t, r.Deload)
	assert.Empty(t, r.VolumeTrend)
}

func TestComputeProgression_HighRPETriggersDeload(t *testing.T) {
	inst := startedInstance(10, sampleContent().ProgressionRules)
	var logs []domain.PerformanceLog
	for i := 5; i >= 1; i-- {
		logs = append(logs, sessionLog(daysAgo(i), 2000, 9.5))
	}

	r := computeProgression(inst, logs, analyticsNow)
	assert.Equal(t, InsightsOK, r.Status)
	assert.Equal(t, TrendStable, r.VolumeTrend)
	assert.Equal(t, TrendStable, r.RPETrend)
	assert.Equal(t, 65, r.ProgressionScore)
	require.NotNil(t, r.Deload)
	assert.True(t, r.Deload.NeedsDeload)
	assert.False(t, r.Deload.ScheduledDeload)
	assert.Equal(t, 2, r.Deload.CurrentWeek)
	require.Len(t, r.Deload.FiredTriggers, 1)
	fired := r.Deload.FiredTriggers[0]
	assert.Equal(t, domain.TriggerHighAvgRPE, fired.Condition)
	assert.Equal(t, 9.5, fired.Observed)
	assert.Equal(t, "reduce_intensity", r.Deload.RecommendedAction)
	assert.Equal(t, 0.1, r.Deload.Magnitude)
}

func TestComputeProgression_ScheduledDeload(t *testing.T) {
	inst := startedInstance(22, sampleContent().ProgressionRules)
	logs := []domain.PerformanceLog{
		sessionLog(daysAgo(3), 1000, 7),
		sessionLog(daysAgo(1), 1100, 7),
	}
	r := computeProgression(inst, logs, analyticsNow)
	require.NotNil(t, r.Deload)
	assert.Equal(t, 4, r.Deload.CurrentWeek)
	assert.True(t, r.Deload.ScheduledDeload)
	assert.True(t, r.Deload.NeedsDeload)
	assert.Empty(t, r.Deload.FiredTriggers)
	assert.Equal(t, "scheduled_deload", r.Deload.RecommendedAction)
}

func TestEvaluateTrigger(t *testing.T) {
	failed := func(l domain.PerformanceLog) domain.PerformanceLog {
		l.Exercises = []domain.LoggedExercise{{Name: "Back Squat", TargetSets: 5, Sets: []domain.LoggedSet{
			{SetNumber: 1, Reps: 5, Load: 100, Completed: true},
			{SetNumber: 2, Reps: 3, Load: 100, Completed: false},
		}}}
		return l
	}
	hard := func(l domain.PerformanceLog) domain.PerformanceLog {
		l.PerceivedDifficulty = domain.DifficultyTooHard
		return l
	}
	base := []domain.PerformanceLog{
		sessionLog(daysAgo(5), 1000, 7),
		hard(sessionLog(daysAgo(4), 1000, 8)),
		sessionLog(daysAgo(3), 1000, 7),
		failed(sessionLog(daysAgo(2), 900, 8)),
		failed(hard(sessionLog(daysAgo(1), 800, 9.5))),
	}

	tests := []struct {
		name     string
		trigger  domain.DeloadTrigger
		observed float64
		fired    bool
	}{
		{"high rpe over lookback", domain.DeloadTrigger{Condition: domain.TriggerHighAvgRPE, Threshold: 8, LookbackSessions: 3}, 8.166666666666666, true},
		{"high rpe below threshold", domain.DeloadTrigger{Condition: domain.TriggerHighAvgRPE, Threshold: 9, LookbackSessions: 3}, 8.166666666666666, false},
		{"too hard sessions", domain.DeloadTrigger{Condition: domain.TriggerTooHardSessions, Threshold: 2}, 2, true},
		{"too hard within short lookback", domain.DeloadTrigger{Condition: domain.TriggerTooHardSessions, Threshold: 2, LookbackSessions: 2}, 1, false},
		{"consecutive failures", domain.DeloadTrigger{Condition: domain.TriggerConsecutiveFailed, Threshold: 2}, 2, true},
		{"poor recovery default threshold", domain.DeloadTrigger{Condition: domain.TriggerPoorRecovery}, 4, true},
		{"unknown condition", domain.DeloadTrigger{Condition: "moon_phase", Threshold: 1}, 0, false},
	}
	volTrend, rTrend := volumeTrend(base), rpeTrend(base)
	require.Equal(t, TrendDecreasing, volTrend)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observed, fired := evaluateTrigger(tt.trigger, base, volTrend, rTrend)
			assert.InDelta(t, tt.observed, observed, 1e-9)
			assert.Equal(t, tt.fired, fired)
		})
	}
}

func TestExerciseProgressions(t *testing.T) {
	session := func(day int, squat, bench float64) domain.PerformanceLog {
		l := sessionLog(daysAgo(day), 0, 0)
		l.Exercises = []domain.LoggedExercise{
			{Name: "Back Squat", Sets: []domain.LoggedSet{{SetNumber: 1, Reps: 5, Load: squat - 10}, {SetNumber: 2, Reps: 5, Load: squat}}},
			{Name: "Bench Press", Sets: []domain.LoggedSet{{SetNumber: 1, Reps: 5, Load: bench}}},
			{Name: "Plank"},
		}
		return l
	}
	out := exerciseProgressions([]domain.PerformanceLog{session(3, 100, 80), session(2, 105, 80), session(1, 110, 78)})
	require.Len(t, out, 2)
	assert.Equal(t, ExerciseProgression{Name: "Back Squat", Sessions: 3, StartMaxLoad: 100, LatestMaxLoad: 110, Change: 10, ChangePercent: 10}, out[0])
	assert.Equal(t, "Bench Press", out[1].Name)
	assert.Equal(t, -2.5, out[1].ChangePercent)
}

func TestAnalyticsService_Dashboard(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	trainer, client := e.trainerWithClient(t)
	inst := e.appliedInstance(t, trainer, client, time.Now().AddDate(0, 0, -6))

	for i, day := range []int{-5, -3} {
		date := time.Now().AddDate(0, 0, day)
		_, err := e.performanceSvc.MarkComplete(ctx, inst.ID, client.ID, i, WorkoutData{
			Date: &date,
			Exercises: []domain.LoggedExercise{
				{Name: "Back Squat", Sets: []domain.LoggedSet{{SetNumber: 1, Reps: 5, Load: 100, RPE: 7, Completed: true}}},
			},
		})
		require.NoError(t, err)
	}

	d, err := e.analyticsSvc.Dashboard(ctx, trainer.ID, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Compliance.CompletedSessions)
	assert.Equal(t, 3, d.Compliance.ExpectedSessions)
	assert.Equal(t, 66.7, d.Compliance.AdherenceRate)
	assert.Equal(t, AdherenceGood, d.Compliance.Adherence)
	assert.Equal(t, InsightsOK, d.Progression.Status)
	assert.Equal(t, 2, d.Progression.SessionsAnalyzed)

	c, err := e.analyticsSvc.ComplianceMetrics(ctx, client.ID, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Compliance.CompletedSessions, c.CompletedSessions)

	stranger, _ := e.trainerWithClient(t)
	_, err = e.analyticsSvc.Dashboard(ctx, stranger.ID, inst.ID)
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = e.analyticsSvc.ProgressionInsights(ctx, trainer.ID, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}
