package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"alcyxob/fitgen/internal/domain"
)

type fieldKind int

const (
	fieldDurationWeeks fieldKind = iota + 1
	fieldSessionsPerWeek
	fieldWorkout
	fieldExercise
	fieldExerciseSets
	fieldExerciseReps
	fieldExerciseWeight
	fieldExerciseEquipment
	fieldExerciseName
	fieldDailyTargets
	fieldDietType
	fieldRationale
)

// FieldPath is a parsed, typed reference into program content such as
// "workoutPlan.workouts[2].exercises[0].sets".
type FieldPath struct {
	kind     fieldKind
	workout  int
	exercise int
}

type pathSegment struct {
	name  string
	index int // -1 when the segment has no [i]
}

func splitPath(raw string) ([]pathSegment, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty path", ErrUnsupportedField)
	}
	parts := strings.Split(raw, ".")
	segs := make([]pathSegment, 0, len(parts))
	for _, p := range parts {
		seg := pathSegment{name: p, index: -1}
		if open := strings.IndexByte(p, '['); open >= 0 {
			if !strings.HasSuffix(p, "]") || open == 0 {
				return nil, fmt.Errorf("%w: bad segment %q", ErrUnsupportedField, p)
			}
			idx, err := strconv.Atoi(p[open+1 : len(p)-1])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("%w: bad index in %q", ErrUnsupportedField, p)
			}
			seg.name = p[:open]
			seg.index = idx
		}
		if seg.name == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrUnsupportedField, raw)
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// ParseFieldPath accepts only the editable paths of program content.
func ParseFieldPath(raw string) (FieldPath, error) {
	segs, err := splitPath(raw)
	if err != nil {
		return FieldPath{}, err
	}
	unsupported := fmt.Errorf("%w: %s", ErrUnsupportedField, raw)
	plain := func(i int, name string) bool {
		return len(segs) > i && segs[i].name == name && segs[i].index < 0
	}
	indexed := func(i int, name string) bool {
		return len(segs) > i && segs[i].name == name && segs[i].index >= 0
	}

	switch {
	case len(segs) == 1 && plain(0, "rationale"):
		return FieldPath{kind: fieldRationale}, nil
	case len(segs) == 2 && plain(0, "nutritionPlan") && plain(1, "dailyTargets"):
		return FieldPath{kind: fieldDailyTargets}, nil
	case len(segs) == 2 && plain(0, "nutritionPlan") && plain(1, "dietType"):
		return FieldPath{kind: fieldDietType}, nil
	case !plain(0, "workoutPlan"):
		return FieldPath{}, unsupported
	case len(segs) == 2 && plain(1, "durationWeeks"):
		return FieldPath{kind: fieldDurationWeeks}, nil
	case len(segs) == 2 && plain(1, "sessionsPerWeek"):
		return FieldPath{kind: fieldSessionsPerWeek}, nil
	case !indexed(1, "workouts"):
		return FieldPath{}, unsupported
	case len(segs) == 2:
		return FieldPath{kind: fieldWorkout, workout: segs[1].index}, nil
	case !indexed(2, "exercises"):
		return FieldPath{}, unsupported
	}

	p := FieldPath{workout: segs[1].index, exercise: segs[2].index}
	if len(segs) == 3 {
		p.kind = fieldExercise
		return p, nil
	}
	if len(segs) != 4 || segs[3].index >= 0 {
		return FieldPath{}, unsupported
	}
	switch segs[3].name {
	case "sets":
		p.kind = fieldExerciseSets
	case "reps":
		p.kind = fieldExerciseReps
	case "weight":
		p.kind = fieldExerciseWeight
	case "equipment":
		p.kind = fieldExerciseEquipment
	case "name":
		p.kind = fieldExerciseName
	default:
		return FieldPath{}, unsupported
	}
	return p, nil
}

// WorkoutPath and ExercisePath build paths the same way ParseFieldPath reads them.
func WorkoutPath(w int) string {
	return fmt.Sprintf("workoutPlan.workouts[%d]", w)
}

func ExercisePath(w, e int) string {
	return fmt.Sprintf("workoutPlan.workouts[%d].exercises[%d]", w, e)
}

func (p FieldPath) String() string {
	switch p.kind {
	case fieldDurationWeeks:
		return "workoutPlan.durationWeeks"
	case fieldSessionsPerWeek:
		return "workoutPlan.sessionsPerWeek"
	case fieldWorkout:
		return WorkoutPath(p.workout)
	case fieldExercise:
		return ExercisePath(p.workout, p.exercise)
	case fieldExerciseSets:
		return ExercisePath(p.workout, p.exercise) + ".sets"
	case fieldExerciseReps:
		return ExercisePath(p.workout, p.exercise) + ".reps"
	case fieldExerciseWeight:
		return ExercisePath(p.workout, p.exercise) + ".weight"
	case fieldExerciseEquipment:
		return ExercisePath(p.workout, p.exercise) + ".equipment"
	case fieldExerciseName:
		return ExercisePath(p.workout, p.exercise) + ".name"
	case fieldDailyTargets:
		return "nutritionPlan.dailyTargets"
	case fieldDietType:
		return "nutritionPlan.dietType"
	case fieldRationale:
		return "rationale"
	default:
		return ""
	}
}

func (p FieldPath) workoutPlan(c *domain.ProgramContent) (*domain.WorkoutPlan, error) {
	if c.WorkoutPlan == nil {
		return nil, fmt.Errorf("%w: %s: no workout plan", ErrFieldUnresolved, p)
	}
	return c.WorkoutPlan, nil
}

func (p FieldPath) planWorkout(c *domain.ProgramContent) (*domain.PlanWorkout, error) {
	wp, err := p.workoutPlan(c)
	if err != nil {
		return nil, err
	}
	if p.workout >= len(wp.Workouts) {
		return nil, fmt.Errorf("%w: %s", ErrFieldUnresolved, p)
	}
	return &wp.Workouts[p.workout], nil
}

func (p FieldPath) plannedExercise(c *domain.ProgramContent) (*domain.PlannedExercise, error) {
	w, err := p.planWorkout(c)
	if err != nil {
		return nil, err
	}
	if p.exercise >= len(w.Exercises) {
		return nil, fmt.Errorf("%w: %s", ErrFieldUnresolved, p)
	}
	return &w.Exercises[p.exercise], nil
}

func (p FieldPath) nutritionPlan(c *domain.ProgramContent) (*domain.NutritionPlan, error) {
	if c.NutritionPlan == nil {
		return nil, fmt.Errorf("%w: %s: no nutrition plan", ErrFieldUnresolved, p)
	}
	return c.NutritionPlan, nil
}

// Get returns the JSON encoding of the value at p.
func (p FieldPath) Get(c *domain.ProgramContent) (string, error) {
	var v interface{}
	switch p.kind {
	case fieldRationale:
		v = c.Rationale
	case fieldDurationWeeks, fieldSessionsPerWeek:
		wp, err := p.workoutPlan(c)
		if err != nil {
			return "", err
		}
		if p.kind == fieldDurationWeeks {
			v = wp.DurationWeeks
		} else {
			v = wp.SessionsPerWeek
		}
	case fieldWorkout:
		w, err := p.planWorkout(c)
		if err != nil {
			return "", err
		}
		v = w
	case fieldExercise, fieldExerciseSets, fieldExerciseReps, fieldExerciseWeight, fieldExerciseEquipment, fieldExerciseName:
		ex, err := p.plannedExercise(c)
		if err != nil {
			return "", err
		}
		switch p.kind {
		case fieldExercise:
			v = ex
		case fieldExerciseSets:
			v = ex.Sets
		case fieldExerciseReps:
			v = ex.Reps
		case fieldExerciseWeight:
			v = ex.Weight
		case fieldExerciseEquipment:
			v = ex.Equipment
		case fieldExerciseName:
			v = ex.Name
		}
	case fieldDailyTargets, fieldDietType:
		np, err := p.nutritionPlan(c)
		if err != nil {
			return "", err
		}
		if p.kind == fieldDailyTargets {
			v = np.DailyTargets
		} else {
			v = np.DietType
		}
	default:
		return "", ErrUnsupportedField
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Set decodes raw JSON into the value at p. Content is left untouched on error.
func (p FieldPath) Set(c *domain.ProgramContent, raw string) error {
	decode := func(dst interface{}) error {
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidFieldValue, p, err)
		}
		return nil
	}
	nonNegative := func(n int) error {
		if n < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidFieldValue, p)
		}
		return nil
	}

	switch p.kind {
	case fieldRationale:
		var s string
		if err := decode(&s); err != nil {
			return err
		}
		c.Rationale = s
	case fieldDurationWeeks, fieldSessionsPerWeek:
		wp, err := p.workoutPlan(c)
		if err != nil {
			return err
		}
		var n int
		if err := decode(&n); err != nil {
			return err
		}
		if err := nonNegative(n); err != nil {
			return err
		}
		if p.kind == fieldDurationWeeks {
			wp.DurationWeeks = n
		} else {
			wp.SessionsPerWeek = n
		}
	case fieldWorkout:
		w, err := p.planWorkout(c)
		if err != nil {
			return err
		}
		var nw domain.PlanWorkout
		if err := decode(&nw); err != nil {
			return err
		}
		*w = nw
	case fieldExercise, fieldExerciseSets, fieldExerciseReps, fieldExerciseWeight, fieldExerciseEquipment, fieldExerciseName:
		ex, err := p.plannedExercise(c)
		if err != nil {
			return err
		}
		return p.setExerciseField(ex, decode, nonNegative)
	case fieldDailyTargets:
		np, err := p.nutritionPlan(c)
		if err != nil {
			return err
		}
		var m domain.MacroTargets
		if err := decode(&m); err != nil {
			return err
		}
		np.DailyTargets = m
	case fieldDietType:
		np, err := p.nutritionPlan(c)
		if err != nil {
			return err
		}
		var s string
		if err := decode(&s); err != nil {
			return err
		}
		np.DietType = s
	default:
		return ErrUnsupportedField
	}
	return nil
}

func (p FieldPath) setExerciseField(ex *domain.PlannedExercise, decode func(interface{}) error, nonNegative func(int) error) error {
	switch p.kind {
	case fieldExercise:
		var ne domain.PlannedExercise
		if err := decode(&ne); err != nil {
			return err
		}
		*ex = ne
	case fieldExerciseSets, fieldExerciseReps:
		var n int
		if err := decode(&n); err != nil {
			return err
		}
		if err := nonNegative(n); err != nil {
			return err
		}
		if p.kind == fieldExerciseSets {
			ex.Sets = n
		} else {
			ex.Reps = n
		}
	case fieldExerciseWeight:
		var f float64
		if err := decode(&f); err != nil {
			return err
		}
		if f < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidFieldValue, p)
		}
		ex.Weight = f
	case fieldExerciseEquipment:
		var eq []string
		if err := decode(&eq); err != nil {
			return err
		}
		ex.Equipment = eq
	case fieldExerciseName:
		var s string
		if err := decode(&s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidFieldValue, p)
		}
		ex.Name = s
	}
	return nil
}
