package generator

import (
	"encoding/json"
	"strings"

	"alcyxob/fitgen/internal/domain"
)

const systemPrompt = `You are an expert strength coach and sports nutritionist.
Reply with a single JSON object with the keys workoutPlan, nutritionPlan, progressionRules and rationale.
workoutPlan: {durationWeeks, sessionsPerWeek, workouts: [{id, name, week, day, focusAreas, exercises: [{id, name, muscleGroup, sets, reps, weight, restSeconds, equipment, notes}]}]}.
nutritionPlan: {dietType, dailyTargets: {calories, protein, carbs, fat}, meals: [{name, items, calories, macros}]}.
progressionRules: {weeklyTargetRpe, strategy, increment, deload: {scheduledWeeks, triggers: [{condition, threshold, lookbackSessions, action, magnitude}]}}.
Use only the listed equipment. Do not add any text outside the JSON object.`

// BuildMessages renders a generation request into chat messages.
func BuildMessages(req domain.GenerationRequest) []Message {
	var b strings.Builder
	b.WriteString("Create a program for this request:\n")
	// GenerationRequest always marshals
	payload, _ := json.MarshalIndent(req, "", "  ")
	b.Write(payload)
	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}
