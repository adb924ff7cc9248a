package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/logger"
	"alcyxob/fitgen/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

type AdherenceBucket string

const (
	AdherenceExcellent        AdherenceBucket = "excellent"
	AdherenceGood             AdherenceBucket = "good"
	AdherenceNeedsImprovement AdherenceBucket = "needs_improvement"
)

type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

const (
	InsightsOK               = "ok"
	InsightsInsufficientData = "insufficient_data"
)

const (
	streakGapDays       = 2
	trendWindow         = 5
	recentRPEWindow     = 3
	volumeTrendRatio    = 0.05
	rpeTrendDelta       = 0.5
	poorRecoveryRPE     = 9.0
	defaultRPELookback  = 3
	defaultHardLookback = 5
	scheduledDeload     = "scheduled_deload"
)

type ComplianceReport struct {
	InstanceID        primitive.ObjectID `json:"instanceId"`
	WeeksSinceStart   int                `json:"weeksSinceStart"`
	CurrentWeek       int                `json:"currentWeek"`
	SessionsPerWeek   int                `json:"sessionsPerWeek"`
	TotalPlanned      int                `json:"totalPlanned"`
	ExpectedSessions  int                `json:"expectedSessions"`
	CompletedSessions int                `json:"completedSessions"`
	AdherenceRate     float64            `json:"adherenceRate"`
	Adherence         AdherenceBucket    `json:"adherence"`
	ThisWeekCompleted int                `json:"thisWeekCompleted"`
	ThisWeekRate      float64            `json:"thisWeekRate"`
	CurrentStreak     int                `json:"currentStreak"`
	LongestStreak     int                `json:"longestStreak"`
	LastWorkoutAt     *time.Time         `json:"lastWorkoutAt,omitempty"`
}

type ExerciseProgression struct {
	Name          string  `json:"name"`
	Sessions      int     `json:"sessions"`
	StartMaxLoad  float64 `json:"startMaxLoad"`
	LatestMaxLoad float64 `json:"latestMaxLoad"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}

type FiredTrigger struct {
	Condition string  `json:"condition"`
	Threshold float64 `json:"threshold"`
	Observed  float64 `json:"observed"`
	Action    string  `json:"action"`
	Magnitude float64 `json:"magnitude,omitempty"`
}

type DeloadRecommendation struct {
	NeedsDeload       bool           `json:"needsDeload"`
	FiredTriggers     []FiredTrigger `json:"firedTriggers"`
	ScheduledDeload   bool           `json:"scheduledDeload"`
	CurrentWeek       int            `json:"currentWeek"`
	RecommendedAction string         `json:"recommendedAction,omitempty"`
	Magnitude         float64        `json:"magnitude,omitempty"`
}

type ProgressionReport struct {
	InstanceID       primitive.ObjectID    `json:"instanceId"`
	Status           string                `json:"status"`
	SessionsAnalyzed int                   `json:"sessionsAnalyzed"`
	Strategy         string                `json:"strategy,omitempty"`
	VolumeTrend      Trend                 `json:"volumeTrend,omitempty"`
	RPETrend         Trend                 `json:"rpeTrend,omitempty"`
	Exercises        []ExerciseProgression `json:"exercises,omitempty"`
	Deload           *DeloadRecommendation `json:"deload,omitempty"`
	ProgressionScore int                   `json:"progressionScore"`
}

type Dashboard struct {
	Compliance  *ComplianceReport  `json:"compliance"`
	Progression *ProgressionReport `json:"progression"`
}

type AnalyticsService interface {
	ComplianceMetrics(ctx context.Context, actorID, instanceID primitive.ObjectID) (*ComplianceReport, error)
	ProgressionInsights(ctx context.Context, actorID, instanceID primitive.ObjectID) (*ProgressionReport, error)
	Dashboard(ctx context.Context, actorID, instanceID primitive.ObjectID) (*Dashboard, error)
}

type analyticsService struct {
	logs      repository.PerformanceLogRepository
	instances repository.InstanceRepository
	log       *logger.Logger
	now       func() time.Time
}

func NewAnalyticsService(logs repository.PerformanceLogRepository, instances repository.InstanceRepository, log *logger.Logger) AnalyticsService {
	return &analyticsService{
		logs:      logs,
		instances: instances,
		log:       log.With("service", "AnalyticsService"),
		now:       time.Now,
	}
}

// BucketAdherence maps an adherence percentage to its bucket.
func BucketAdherence(rate float64) AdherenceBucket {
	switch {
	case rate >= 80:
		return AdherenceExcellent
	case rate >= 60:
		return AdherenceGood
	default:
		return AdherenceNeedsImprovement
	}
}

// load returns the instance and its completed logs, oldest first.
func (s *analyticsService) load(ctx context.Context, actorID, instanceID primitive.ObjectID) (*domain.GeneratedInstance, []domain.PerformanceLog, error) {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, nil, mapRepoErr(err, ErrInstanceNotFound)
	}
	if inst.RecipientID != actorID && inst.ProducerID != actorID {
		return nil, nil, ErrNotOwner
	}
	logs, err := s.logs.ListCompleted(ctx, inst.RecipientID, instanceID)
	if err != nil {
		return nil, nil, err
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].Date.Before(logs[j].Date) })
	return inst, logs, nil
}

func (s *analyticsService) ComplianceMetrics(ctx context.Context, actorID, instanceID primitive.ObjectID) (*ComplianceReport, error) {
	inst, logs, err := s.load(ctx, actorID, instanceID)
	if err != nil {
		return nil, err
	}
	return computeCompliance(inst, logs, s.now().UTC()), nil
}

func (s *analyticsService) ProgressionInsights(ctx context.Context, actorID, instanceID primitive.ObjectID) (*ProgressionReport, error) {
	inst, logs, err := s.load(ctx, actorID, instanceID)
	if err != nil {
		return nil, err
	}
	return computeProgression(inst, logs, s.now().UTC()), nil
}

// Dashboard computes compliance and progression concurrently.
func (s *analyticsService) Dashboard(ctx context.Context, actorID, instanceID primitive.ObjectID) (*Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.ComplianceMetrics(gctx, actorID, instanceID)
		d.Compliance = c
		return err
	})
	g.Go(func() error {
		p, err := s.ProgressionInsights(gctx, actorID, instanceID)
		d.Progression = p
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.log.Debug("Dashboard computed", "instance_id", instanceID.Hex(), "adherence", d.Compliance.Adherence, "score", d.Progression.ProgressionScore)
	return &d, nil
}

// daysBetween counts calendar days (UTC) from a to b.
func daysBetween(a, b time.Time) int {
	da := a.UTC().Truncate(24 * time.Hour)
	db := b.UTC().Truncate(24 * time.Hour)
	return int(db.Sub(da).Hours() / 24)
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

// planShape returns sessions per week and total planned sessions.
func planShape(inst *domain.GeneratedInstance) (perWeek, total int) {
	wp := inst.Content.WorkoutPlan
	if wp == nil {
		return 0, 0
	}
	perWeek = wp.SessionsPerWeek
	if perWeek <= 0 {
		perWeek = inst.InputData.SessionsPerWeek
	}
	if perWeek <= 0 {
		perWeek = len(wp.Workouts)
	}
	if wp.DurationWeeks > 0 && perWeek > 0 {
		total = wp.DurationWeeks * perWeek
	} else {
		total = len(wp.Workouts)
	}
	return perWeek, total
}

func computeCompliance(inst *domain.GeneratedInstance, logs []domain.PerformanceLog, now time.Time) *ComplianceReport {
	start := inst.ProgramStart()
	days := int(now.Sub(start).Hours() / 24)
	if days < 0 {
		days = 0
	}
	weeks := int(math.Ceil(float64(days) / 7))
	if weeks < 1 {
		weeks = 1
	}
	perWeek, total := planShape(inst)

	r := &ComplianceReport{
		InstanceID:        inst.ID,
		WeeksSinceStart:   weeks,
		CurrentWeek:       days/7 + 1,
		SessionsPerWeek:   perWeek,
		TotalPlanned:      total,
		CompletedSessions: len(logs),
	}
	r.ExpectedSessions = weeks * perWeek
	if r.ExpectedSessions > total {
		r.ExpectedSessions = total
	}
	if r.ExpectedSessions > 0 {
		r.AdherenceRate = round1(float64(r.CompletedSessions) / float64(r.ExpectedSessions) * 100)
	}
	r.Adherence = BucketAdherence(r.AdherenceRate)

	weekAgo := now.AddDate(0, 0, -7)
	for _, l := range logs {
		if l.Date.After(weekAgo) && !l.Date.After(now) {
			r.ThisWeekCompleted++
		}
	}
	if perWeek > 0 {
		r.ThisWeekRate = round1(float64(r.ThisWeekCompleted) / float64(perWeek) * 100)
	}

	streak := 0
	for i, l := range logs {
		if i > 0 && daysBetween(logs[i-1].Date, l.Date) <= streakGapDays {
			streak++
		} else {
			streak = 1
		}
		if streak > r.LongestStreak {
			r.LongestStreak = streak
		}
	}
	if n := len(logs); n > 0 {
		last := logs[n-1].Date
		r.LastWorkoutAt = &last
		if daysBetween(last, now) <= streakGapDays {
			r.CurrentStreak = streak
		}
	}
	return r
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func tail[T any](xs []T, n int) []T {
	if len(xs) > n {
		return xs[len(xs)-n:]
	}
	return xs
}

// volumeTrend compares the two halves of the most recent sessions.
func volumeTrend(logs []domain.PerformanceLog) Trend {
	recent := tail(logs, trendWindow)
	if len(recent) < 2 {
		return TrendStable
	}
	volumes := make([]float64, len(recent))
	for i, l := range recent {
		volumes[i] = l.TotalVolume
	}
	half := len(volumes) / 2
	first, second := mean(volumes[:half]), mean(volumes[half:])
	if first == 0 {
		if second > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}
	change := (second - first) / first
	switch {
	case change > volumeTrendRatio:
		return TrendIncreasing
	case change < -volumeTrendRatio:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func rpeSeries(logs []domain.PerformanceLog) []float64 {
	var out []float64
	for _, l := range logs {
		if l.AverageRPE > 0 {
			out = append(out, l.AverageRPE)
		}
	}
	return out
}

// rpeTrend compares the mean of the last 3 sessions with the last 5.
func rpeTrend(logs []domain.PerformanceLog) Trend {
	series := rpeSeries(logs)
	if len(series) < 2 {
		return TrendStable
	}
	diff := mean(tail(series, recentRPEWindow)) - mean(tail(series, trendWindow))
	switch {
	case diff > rpeTrendDelta:
		return TrendIncreasing
	case diff < -rpeTrendDelta:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// exerciseProgressions ranks exercises by change in max load between their
// first and latest session.
func exerciseProgressions(logs []domain.PerformanceLog) []ExerciseProgression {
	type history struct {
		name  string
		loads []float64
	}
	byName := make(map[string]*history)
	var order []string
	for _, l := range logs {
		for _, ex := range l.Exercises {
			if len(ex.Sets) == 0 {
				continue
			}
			key := strings.ToLower(strings.TrimSpace(ex.Name))
			h, ok := byName[key]
			if !ok {
				h = &history{name: ex.Name}
				byName[key] = h
				order = append(order, key)
			}
			maxLoad := 0.0
			for _, set := range ex.Sets {
				maxLoad = math.Max(maxLoad, set.Load)
			}
			h.loads = append(h.loads, maxLoad)
		}
	}

	out := []ExerciseProgression{}
	for _, key := range order {
		h := byName[key]
		if len(h.loads) < 2 {
			continue
		}
		first, last := h.loads[0], h.loads[len(h.loads)-1]
		p := ExerciseProgression{
			Name:          h.name,
			Sessions:      len(h.loads),
			StartMaxLoad:  first,
			LatestMaxLoad: last,
			Change:        last - first,
		}
		if first > 0 {
			p.ChangePercent = round1((last - first) / first * 100)
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChangePercent > out[j].ChangePercent })
	return out
}

// sessionFailed reports whether any set was missed or the planned set count was not reached.
func sessionFailed(l domain.PerformanceLog) bool {
	for _, ex := range l.Exercises {
		if ex.TargetSets > 0 && len(ex.Sets) < ex.TargetSets {
			return true
		}
		for _, set := range ex.Sets {
			if !set.Completed {
				return true
			}
		}
	}
	return false
}

func lookback(t domain.DeloadTrigger, def int) int {
	if t.LookbackSessions > 0 {
		return t.LookbackSessions
	}
	return def
}

// evaluateTrigger returns the observed value and whether the trigger fires.
func evaluateTrigger(t domain.DeloadTrigger, logs []domain.PerformanceLog, volTrend, rTrend Trend) (float64, bool) {
	switch t.Condition {
	case domain.TriggerHighAvgRPE:
		series := rpeSeries(tail(logs, lookback(t, defaultRPELookback)))
		if len(series) == 0 {
			return 0, false
		}
		observed := mean(series)
		return observed, observed >= t.Threshold
	case domain.TriggerTooHardSessions:
		count := 0
		for _, l := range tail(logs, lookback(t, defaultHardLookback)) {
			if l.PerceivedDifficulty == domain.DifficultyTooHard {
				count++
			}
		}
		return float64(count), count > 0 && float64(count) >= t.Threshold
	case domain.TriggerConsecutiveFailed:
		count := 0
		for i := len(logs) - 1; i >= 0 && sessionFailed(logs[i]); i-- {
			count++
		}
		return float64(count), count > 0 && float64(count) >= t.Threshold
	case domain.TriggerPoorRecovery:
		threshold := t.Threshold
		if threshold <= 0 {
			threshold = 2
		}
		signals := 0
		if rTrend == TrendIncreasing {
			signals++
		}
		if volTrend == TrendDecreasing {
			signals++
		}
		if n := len(logs); n > 0 {
			last := logs[n-1]
			if last.PerceivedDifficulty == domain.DifficultyTooHard {
				signals++
			}
			if last.AverageRPE >= poorRecoveryRPE {
				signals++
			}
			if sessionFailed(last) {
				signals++
			}
		}
		return float64(signals), float64(signals) >= threshold
	default:
		return 0, false
	}
}

func recommendDeload(rules *domain.ProgressionRules, logs []domain.PerformanceLog, volTrend, rTrend Trend, currentWeek int) *DeloadRecommendation {
	rec := &DeloadRecommendation{FiredTriggers: []FiredTrigger{}, CurrentWeek: currentWeek}
	if rules == nil {
		return rec
	}
	for _, t := range rules.Deload.Triggers {
		observed, fired := evaluateTrigger(t, logs, volTrend, rTrend)
		if !fired {
			continue
		}
		rec.FiredTriggers = append(rec.FiredTriggers, FiredTrigger{
			Condition: t.Condition,
			Threshold: t.Threshold,
			Observed:  round1(observed),
			Action:    t.Action,
			Magnitude: t.Magnitude,
		})
	}
	for _, w := range rules.Deload.ScheduledWeeks {
		if w == currentWeek {
			rec.ScheduledDeload = true
			break
		}
	}
	rec.NeedsDeload = len(rec.FiredTriggers) > 0 || rec.ScheduledDeload
	switch {
	case len(rec.FiredTriggers) > 0:
		rec.RecommendedAction = rec.FiredTriggers[0].Action
		rec.Magnitude = rec.FiredTriggers[0].Magnitude
	case rec.ScheduledDeload:
		rec.RecommendedAction = scheduledDeload
	}
	return rec
}

// progressionScore is a 0-100 summary for sorting dashboards.
func progressionScore(volTrend, rTrend Trend) int {
	score := 50
	switch volTrend {
	case TrendIncreasing:
		score += 25
	case TrendDecreasing:
		score -= 15
	}
	switch rTrend {
	case TrendStable:
		score += 15
	case TrendDecreasing:
		score += 25
	case TrendIncreasing:
		score -= 10
	}
	return max(0, min(100, score))
}

func computeProgression(inst *domain.GeneratedInstance, logs []domain.PerformanceLog, now time.Time) *ProgressionReport {
	r := &ProgressionReport{InstanceID: inst.ID, SessionsAnalyzed: len(logs)}
	if rules := inst.Content.ProgressionRules; rules != nil {
		r.Strategy = rules.Strategy
	}
	if len(logs) < 2 {
		r.Status = InsightsInsufficientData
		return r
	}
	r.Status = InsightsOK
	r.VolumeTrend = volumeTrend(logs)
	r.RPETrend = rpeTrend(logs)
	r.Exercises = exerciseProgressions(logs)

	days := int(now.Sub(inst.ProgramStart()).Hours() / 24)
	if days < 0 {
		days = 0
	}
	r.Deload = recommendDeload(inst.Content.ProgressionRules, logs, r.VolumeTrend, r.RPETrend, days/7+1)
	r.ProgressionScore = progressionScore(r.VolumeTrend, r.RPETrend)
	return r
}
