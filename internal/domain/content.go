package domain

// ProgramContent is the generated payload shared by templates and instances.
type ProgramContent struct {
	WorkoutPlan      *WorkoutPlan      `bson:"workoutPlan,omitempty" json:"workoutPlan,omitempty"`
	NutritionPlan    *NutritionPlan    `bson:"nutritionPlan,omitempty" json:"nutritionPlan,omitempty"`
	ProgressionRules *ProgressionRules `bson:"progressionRules,omitempty" json:"progressionRules,omitempty"`
	Rationale        string            `bson:"rationale,omitempty" json:"rationale,omitempty"`
}

type WorkoutPlan struct {
	DurationWeeks   int           `bson:"durationWeeks" json:"durationWeeks"`
	SessionsPerWeek int           `bson:"sessionsPerWeek" json:"sessionsPerWeek"`
	Workouts        []PlanWorkout `bson:"workouts" json:"workouts"`
}

// PlanWorkout is one planned session inside generated content. Not to be
// confused with Workout, the persisted record created when a program is applied.
type PlanWorkout struct {
	ID         string            `bson:"id,omitempty" json:"id,omitempty"`
	Name       string            `bson:"name" json:"name"`
	Week       int               `bson:"week,omitempty" json:"week,omitempty"`
	Day        int               `bson:"day,omitempty" json:"day,omitempty"`
	FocusAreas []string          `bson:"focusAreas,omitempty" json:"focusAreas,omitempty"`
	Exercises  []PlannedExercise `bson:"exercises" json:"exercises"`
}

type PlannedExercise struct {
	ID          string   `bson:"id,omitempty" json:"id,omitempty"`
	Name        string   `bson:"name" json:"name"`
	MuscleGroup string   `bson:"muscleGroup,omitempty" json:"muscleGroup,omitempty"`
	Sets        int      `bson:"sets" json:"sets"`
	Reps        int      `bson:"reps" json:"reps"`
	Weight      float64  `bson:"weight,omitempty" json:"weight,omitempty"`
	RestSeconds int      `bson:"restSeconds,omitempty" json:"restSeconds,omitempty"`
	Equipment   []string `bson:"equipment,omitempty" json:"equipment,omitempty"`
	Notes       string   `bson:"notes,omitempty" json:"notes,omitempty"`
}

// MacroTargets maps a macro name (calories, protein, carbs, fat) to a daily target.
type MacroTargets map[string]float64

type NutritionPlan struct {
	DietType     string       `bson:"dietType,omitempty" json:"dietType,omitempty"`
	DailyTargets MacroTargets `bson:"dailyTargets,omitempty" json:"dailyTargets,omitempty"`
	Meals        []Meal       `bson:"meals,omitempty" json:"meals,omitempty"`
}

type Meal struct {
	Name     string       `bson:"name" json:"name"`
	Items    []string     `bson:"items,omitempty" json:"items,omitempty"`
	Calories float64      `bson:"calories,omitempty" json:"calories,omitempty"`
	Macros   MacroTargets `bson:"macros,omitempty" json:"macros,omitempty"`
}

// Progression strategies.
const (
	StrategyLinear            = "linear"
	StrategyWave              = "wave"
	StrategyDoubleProgression = "double_progression"
	StrategyPercentageBased   = "percentage_based"
	StrategyAutoregulated     = "autoregulated"
)

// ProgressionRules is declarative policy carried inside the content.
type ProgressionRules struct {
	WeeklyTargetRPE []float64      `bson:"weeklyTargetRpe,omitempty" json:"weeklyTargetRpe,omitempty"`
	Strategy        string         `bson:"strategy,omitempty" json:"strategy,omitempty"`
	Increment       float64        `bson:"increment,omitempty" json:"increment,omitempty"`
	Deload          DeloadProtocol `bson:"deload" json:"deload"`
}

type DeloadProtocol struct {
	ScheduledWeeks []int           `bson:"scheduledWeeks,omitempty" json:"scheduledWeeks,omitempty"`
	Triggers       []DeloadTrigger `bson:"triggers,omitempty" json:"triggers,omitempty"`
}

// Deload trigger conditions.
const (
	TriggerHighAvgRPE        = "high_avg_rpe"
	TriggerTooHardSessions   = "too_hard_sessions"
	TriggerConsecutiveFailed = "consecutive_failed_sessions"
	TriggerPoorRecovery      = "poor_recovery"
)

type DeloadTrigger struct {
	Condition        string  `bson:"condition" json:"condition"`
	Threshold        float64 `bson:"threshold" json:"threshold"`
	LookbackSessions int     `bson:"lookbackSessions,omitempty" json:"lookbackSessions,omitempty"`
	Action           string  `bson:"action" json:"action"` // reduce_volume, reduce_intensity, full_deload
	Magnitude        float64 `bson:"magnitude,omitempty" json:"magnitude,omitempty"`
}

// Clone returns a deep copy; nothing in the result aliases c.
func (c *ProgramContent) Clone() *ProgramContent {
	if c == nil {
		return nil
	}
	out := &ProgramContent{Rationale: c.Rationale}
	if c.WorkoutPlan != nil {
		wp := &WorkoutPlan{
			DurationWeeks:   c.WorkoutPlan.DurationWeeks,
			SessionsPerWeek: c.WorkoutPlan.SessionsPerWeek,
		}
		if c.WorkoutPlan.Workouts != nil {
			wp.Workouts = make([]PlanWorkout, len(c.WorkoutPlan.Workouts))
			for i, w := range c.WorkoutPlan.Workouts {
				wp.Workouts[i] = w.Clone()
			}
		}
		out.WorkoutPlan = wp
	}
	if c.NutritionPlan != nil {
		np := &NutritionPlan{
			DietType:     c.NutritionPlan.DietType,
			DailyTargets: c.NutritionPlan.DailyTargets.Clone(),
		}
		if c.NutritionPlan.Meals != nil {
			np.Meals = make([]Meal, len(c.NutritionPlan.Meals))
			for i, m := range c.NutritionPlan.Meals {
				np.Meals[i] = Meal{
					Name:     m.Name,
					Items:    cloneStrings(m.Items),
					Calories: m.Calories,
					Macros:   m.Macros.Clone(),
				}
			}
		}
		out.NutritionPlan = np
	}
	if c.ProgressionRules != nil {
		pr := *c.ProgressionRules
		if c.ProgressionRules.WeeklyTargetRPE != nil {
			pr.WeeklyTargetRPE = append([]float64(nil), c.ProgressionRules.WeeklyTargetRPE...)
		}
		if c.ProgressionRules.Deload.ScheduledWeeks != nil {
			pr.Deload.ScheduledWeeks = append([]int(nil), c.ProgressionRules.Deload.ScheduledWeeks...)
		}
		if c.ProgressionRules.Deload.Triggers != nil {
			pr.Deload.Triggers = append([]DeloadTrigger(nil), c.ProgressionRules.Deload.Triggers...)
		}
		out.ProgressionRules = &pr
	}
	return out
}

func (w PlanWorkout) Clone() PlanWorkout {
	out := w
	out.FocusAreas = cloneStrings(w.FocusAreas)
	if w.Exercises != nil {
		out.Exercises = make([]PlannedExercise, len(w.Exercises))
		for i, ex := range w.Exercises {
			out.Exercises[i] = ex.Clone()
		}
	}
	return out
}

func (e PlannedExercise) Clone() PlannedExercise {
	out := e
	out.Equipment = cloneStrings(e.Equipment)
	return out
}

func (m MacroTargets) Clone() MacroTargets {
	if m == nil {
		return nil
	}
	out := make(MacroTargets, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// AllWorkouts returns the planned workouts, or nil when there is no workout plan.
func (c *ProgramContent) AllWorkouts() []PlanWorkout {
	if c == nil || c.WorkoutPlan == nil {
		return nil
	}
	return c.WorkoutPlan.Workouts
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
