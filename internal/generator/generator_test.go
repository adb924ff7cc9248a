package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/fitgen/internal/config"
	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/logger"
)

const program = `{"workoutPlan":{"durationWeeks":12,"sessionsPerWeek":3,"workouts":[{"name":"Day 1","exercises":[{"name":"Squat","sets":5,"reps":5,"equipment":["barbell"]}]}]},"rationale":"basics"}`

func TestParseContent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"bare", program},
		{"fenced", "```json\n" + program + "\n```"},
		{"prose", "Here is your plan:\n" + program + "\nGood luck!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseContent(tt.raw)
			require.NoError(t, err)
			require.NotNil(t, c.WorkoutPlan)
			assert.Equal(t, 12, c.WorkoutPlan.DurationWeeks)
			assert.Equal(t, "Squat", c.WorkoutPlan.Workouts[0].Exercises[0].Name)
			assert.Equal(t, "basics", c.Rationale)
		})
	}
}

func TestParseContent_Errors(t *testing.T) {
	for _, raw := range []string{"", "no json here", `{"rationale":"only"}`, `{"workoutPlan": [}`} {
		_, err := ParseContent(raw)
		assert.ErrorIs(t, err, ErrUnparseableContent, raw)
	}
}

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages(domain.GenerationRequest{Goals: []string{"strength"}, ExperienceLevel: "beginner", DurationWeeks: 8})
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[1].Content, `"strength"`)
}

func TestChatClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var body chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body.Model)
		assert.NotNil(t, body.ResponseFormat)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "test-model",
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": program}}},
			"usage":   map[string]int{"prompt_tokens": 1000, "completion_tokens": 2000},
		})
	}))
	defer srv.Close()

	c := NewChatClient(config.GenerationConfig{
		BaseURL:              srv.URL + "/",
		APIKey:               "k",
		Model:                "test-model",
		Timeout:              time.Second,
		PromptPricePer1K:     0.01,
		CompletionPricePer1K: 0.03,
	}, logger.NewNop())

	out, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, program, out.Content)
	assert.Equal(t, 1000, out.Usage.PromptTokens)
	assert.InDelta(t, 0.07, out.EstimatedCost, 1e-9)
}

func TestChatClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewChatClient(config.GenerationConfig{BaseURL: srv.URL, Timeout: time.Second}, logger.NewNop())
	_, err := c.Complete(context.Background(), nil, Options{})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
}
