package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/fitgen/internal/config"
	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/generator"
	"alcyxob/fitgen/internal/lock"
	"alcyxob/fitgen/internal/logger"
	"alcyxob/fitgen/internal/repository/memory"
	"alcyxob/fitgen/internal/service"
	"alcyxob/fitgen/internal/storage"
)

const testSecret = "test-secret"

type stubCompleter struct {
	content string
	calls   int
}

func (s *stubCompleter) Complete(ctx context.Context, messages []generator.Message, opts generator.Options) (*generator.Completion, error) {
	s.calls++
	return &generator.Completion{Content: s.content, Model: opts.Model}, nil
}

type testServer struct {
	router    *gin.Engine
	roster    service.RosterService
	completer *stubCompleter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()
	locker := lock.NewLocalLocker()

	users := memory.NewUserRepository()
	templates := memory.NewTemplateRepository()
	instances := memory.NewInstanceRepository()
	logs := memory.NewPerformanceLogRepository()
	retention := config.RetentionConfig{InstanceDays: 180}

	content, err := json.Marshal(programContent())
	require.NoError(t, err)
	completer := &stubCompleter{content: string(content)}

	templateService := service.NewTemplateService(templates, users, locker, config.MatcherConfig{DurationToleranceWeeks: 2, MaxAlternatives: 5}, log)
	versionService := service.NewVersionService(templates, users, locker, log)
	substitutionService := service.NewSubstitutionService(memory.NewAlternativeRepository(), log)
	instanceService := service.NewInstanceService(instances, templates, users, memory.NewTrainingPlanRepository(), memory.NewWorkoutRepository(),
		templateService, substitutionService, locker, retention, log)
	generationService := service.NewGenerationService(instances, users, templateService, instanceService, completer, storage.NoopStorage{},
		config.GenerationConfig{Timeout: 5 * time.Second, Model: "test-model"}, retention, log)
	rosterService := service.NewRosterService(users, log)

	router := gin.New()
	SetupRoutes(router, testSecret, Handlers{
		Templates: NewTemplateHandler(templateService, versionService, generationService, instanceService, 3),
		Instances: NewInstanceHandler(instanceService),
		Progress:  NewProgressHandler(service.NewPerformanceService(logs, instances, log), service.NewAnalyticsService(logs, instances, log)),
		Roster:    NewRosterHandler(rosterService, substitutionService),
	}, log)
	return &testServer{router: router, roster: rosterService, completer: completer}
}

func programContent() domain.ProgramContent {
	return domain.ProgramContent{
		WorkoutPlan: &domain.WorkoutPlan{
			DurationWeeks:   8,
			SessionsPerWeek: 3,
			Workouts: []domain.PlanWorkout{{
				Name: "Full Body",
				Day:  1,
				Exercises: []domain.PlannedExercise{
					{ID: "sq", Name: "Back Squat", MuscleGroup: "legs", Sets: 5, Reps: 5, Weight: 100, Equipment: []string{"barbell"}},
					{ID: "bp", Name: "Bench Press", MuscleGroup: "chest", Sets: 5, Reps: 5, Weight: 80, Equipment: []string{"barbell", "bench"}},
				},
			}},
		},
		Rationale: "Linear strength base.",
	}
}

func generationRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		Goals:           []string{"strength"},
		ExperienceLevel: "beginner",
		DurationWeeks:   8,
		Equipment:       []string{"barbell", "bench"},
		SessionsPerWeek: 3,
	}
}

func (s *testServer) users(t *testing.T) (trainer, client *domain.User) {
	t.Helper()
	ctx := context.Background()
	trainer, err := s.roster.RegisterUser(ctx, &domain.User{Name: "Tess", Email: "tess@example.com", Role: domain.RoleTrainer})
	require.NoError(t, err)
	client, err = s.roster.RegisterUser(ctx, &domain.User{Name: "Cal", Email: "cal@example.com", Role: domain.RoleClient})
	require.NoError(t, err)
	client, err = s.roster.AddClientByEmail(ctx, trainer.ID, client.Email)
	require.NoError(t, err)
	return trainer, client
}

func token(t *testing.T, u *domain.User) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		UserID: u.ID.Hex(),
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestPing(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)
	trainer, client := s.users(t)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		UserID: trainer.ID.Hex(),
		Role:   trainer.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		UserID: trainer.ID.Hex(),
		Role:   trainer.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + forged, http.StatusUnauthorized},
		{"valid", "Bearer " + token(t, client), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestRoleMiddleware(t *testing.T) {
	s := newTestServer(t)
	_, client := s.users(t)

	w := s.do(t, http.MethodPost, "/api/v1/match", token(t, client), MatchRequest{Request: generationRequest()})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(t, http.MethodGet, "/api/v1/trainer/clients", token(t, client), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGenerateThenMatch(t *testing.T) {
	s := newTestServer(t)
	trainer, client := s.users(t)
	bearer := token(t, trainer)

	w := s.do(t, http.MethodPost, "/api/v1/match", bearer, MatchRequest{Request: generationRequest()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var miss service.MatchResult
	decode(t, w, &miss)
	assert.Equal(t, service.MatchNone, miss.MatchType)
	assert.NotEmpty(t, miss.InputFingerprint)

	w = s.do(t, http.MethodPost, "/api/v1/generate", bearer, GenerateRequest{
		RecipientID: client.ID.Hex(),
		Request:     generationRequest(),
		Options:     service.GenerateOptions{AutoTemplate: true},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var generated service.GenerateResult
	decode(t, w, &generated)
	assert.True(t, generated.Generated)
	require.NotNil(t, generated.Template)

	w = s.do(t, http.MethodPost, "/api/v1/match", bearer, MatchRequest{Request: generationRequest()})
	require.Equal(t, http.StatusOK, w.Code)
	var hit service.MatchResult
	decode(t, w, &hit)
	assert.Equal(t, service.MatchExact, hit.MatchType)
	require.NotNil(t, hit.Template)
	assert.Equal(t, generated.Template.ID, hit.Template.ID)
	assert.Equal(t, miss.InputFingerprint, hit.InputFingerprint)
	assert.Equal(t, 1, s.completer.calls)

	// Storage is disabled, so no raw output was archived.
	w = s.do(t, http.MethodGet, "/api/v1/generations/"+generated.Instance.ID.Hex()+"/raw", bearer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/generate", bearer, GenerateRequest{RecipientID: "nope", Request: generationRequest()})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// seedTemplate generates once with auto-templating and returns the template.
func (s *testServer) seedTemplate(t *testing.T, trainer, client *domain.User) *domain.Template {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/generate", token(t, trainer), GenerateRequest{
		RecipientID: client.ID.Hex(),
		Request:     generationRequest(),
		Options:     service.GenerateOptions{AutoTemplate: true},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res service.GenerateResult
	decode(t, w, &res)
	require.NotNil(t, res.Template)
	return res.Template
}

func TestInstanceLifecycle(t *testing.T) {
	s := newTestServer(t)
	trainer, client := s.users(t)
	tmpl := s.seedTemplate(t, trainer, client)
	bearer := token(t, trainer)

	w := s.do(t, http.MethodPost, "/api/v1/instances", bearer, ApplyTemplateRequest{
		TemplateID:  tmpl.ID.Hex(),
		RecipientID: client.ID.Hex(),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var applied service.ApplyResult
	decode(t, w, &applied)
	base := "/api/v1/instances/" + applied.Instance.ID.Hex()
	assert.Equal(t, domain.InstanceGenerated, applied.Instance.Status)

	// Approving before review is an invalid transition.
	w = s.do(t, http.MethodPost, base+"/approve", bearer, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	var conflict struct {
		From    domain.InstanceStatus   `json:"from"`
		To      domain.InstanceStatus   `json:"to"`
		Allowed []domain.InstanceStatus `json:"allowed"`
	}
	decode(t, w, &conflict)
	assert.Equal(t, domain.InstanceGenerated, conflict.From)
	assert.Equal(t, domain.InstanceApproved, conflict.To)
	assert.Contains(t, conflict.Allowed, domain.InstanceReviewed)

	w = s.do(t, http.MethodPost, base+"/edits", bearer, EditProgramRequest{Edits: []service.FieldEdit{
		{Path: "workoutPlan.workouts[0].exercises[0].weight", Value: json.RawMessage(`105`), Reason: "client is stronger"},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var edited domain.GeneratedInstance
	decode(t, w, &edited)
	assert.Equal(t, 105.0, edited.Content.WorkoutPlan.Workouts[0].Exercises[0].Weight)

	w = s.do(t, http.MethodPost, base+"/edits", bearer, EditProgramRequest{Edits: []service.FieldEdit{
		{Path: "workoutPlan.workouts[0].exercises[0].tempo", Value: json.RawMessage(`"3-1-1"`)},
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, base+"/difficulty", bearer, DifficultyRequest{Direction: "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, base+"/difficulty", bearer, DifficultyRequest{Direction: "decrease"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodDelete, base+"/modifications/0", bearer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The client can read their instance but not change it.
	w = s.do(t, http.MethodGet, base, token(t, client), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPost, base+"/review", token(t, client), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, base+"/program", bearer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "nothing applied yet")

	for _, step := range []string{"/review", "/approve", "/apply"} {
		w = s.do(t, http.MethodPost, base+step, bearer, nil)
		require.Equal(t, http.StatusOK, w.Code, step+": "+w.Body.String())
	}
	var done domain.GeneratedInstance
	decode(t, w, &done)
	assert.Equal(t, domain.InstanceApplied, done.Status)

	w = s.do(t, http.MethodGet, base+"/program", token(t, client), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var program service.AppliedProgram
	decode(t, w, &program)
	require.NotNil(t, program.Plan)
	assert.Equal(t, *done.ProgramID, program.Plan.ID)
	assert.True(t, program.Plan.IsActive)
	require.Len(t, program.Workouts, 1)
	assert.Equal(t, "Full Body", program.Workouts[0].Name)

	w = s.do(t, http.MethodPost, base+"/edits", bearer, EditProgramRequest{Edits: []service.FieldEdit{
		{Path: "rationale", Value: json.RawMessage(`"late change"`)},
	}})
	assert.Equal(t, http.StatusConflict, w.Code, "applied instances are frozen")

	w = s.do(t, http.MethodGet, "/api/v1/clients/"+client.ID.Hex()+"/instances", bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.GeneratedInstance
	decode(t, w, &list)
	assert.Len(t, list, 2)
}

func TestTemplateVisibility(t *testing.T) {
	s := newTestServer(t)
	trainer, client := s.users(t)
	tmpl := s.seedTemplate(t, trainer, client)
	base := "/api/v1/templates/" + tmpl.ID.Hex()

	stranger, err := s.roster.RegisterUser(context.Background(), &domain.User{Name: "Sam", Email: "sam@example.com", Role: domain.RoleTrainer})
	require.NoError(t, err)
	other := token(t, stranger)

	w := s.do(t, http.MethodGet, base, other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(t, http.MethodGet, base+"/history", other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(t, http.MethodPost, base+"/ratings", other, RateTemplateRequest{Score: 5})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/maintenance/merge-duplicates", other, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report service.MergeReport
	decode(t, w, &report)
	assert.Zero(t, report.Archived, "another trainer's duplicates are left alone")

	bearer := token(t, trainer)
	w = s.do(t, http.MethodGet, base, bearer, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, base+"/history", bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []domain.Template
	decode(t, w, &history)
	assert.Len(t, history, 1)
}

func TestApplyTemplate_NotFound(t *testing.T) {
	s := newTestServer(t)
	trainer, client := s.users(t)

	w := s.do(t, http.MethodPost, "/api/v1/instances", token(t, trainer), ApplyTemplateRequest{
		TemplateID:  client.ID.Hex(),
		RecipientID: client.ID.Hex(),
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/instances/not-an-id", token(t, trainer), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPerformanceLogFlow(t *testing.T) {
	s := newTestServer(t)
	trainer, client := s.users(t)
	tmpl := s.seedTemplate(t, trainer, client)
	bearer := token(t, trainer)

	w := s.do(t, http.MethodPost, "/api/v1/instances", bearer, ApplyTemplateRequest{TemplateID: tmpl.ID.Hex(), RecipientID: client.ID.Hex()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var applied service.ApplyResult
	decode(t, w, &applied)
	base := "/api/v1/instances/" + applied.Instance.ID.Hex()
	for _, step := range []string{"/review", "/approve", "/apply"} {
		w = s.do(t, http.MethodPost, base+step, bearer, nil)
		require.Equal(t, http.StatusOK, w.Code, step+": "+w.Body.String())
	}

	clientBearer := token(t, client)
	zero := 0
	w = s.do(t, http.MethodPost, base+"/logs", clientBearer, StartLogRequest{WorkoutIndex: &zero})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var draft domain.PerformanceLog
	decode(t, w, &draft)
	assert.Equal(t, domain.LogDraft, draft.Status)

	w = s.do(t, http.MethodPut, "/api/v1/logs/"+draft.ID.Hex()+"/exercises/0/sets/1", clientBearer,
		service.SetData{Reps: 5, Load: 100, RPE: 8, Completed: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodPut, "/api/v1/logs/"+draft.ID.Hex()+"/exercises/0/sets/2", clientBearer,
		service.SetData{Reps: 5, Load: 100, RPE: 11})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, base+"/workouts/0/complete", clientBearer, service.WorkoutData{LogID: &draft.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var completed domain.PerformanceLog
	decode(t, w, &completed)
	assert.Equal(t, domain.LogCompleted, completed.Status)
	assert.Equal(t, 500.0, completed.TotalVolume)

	w = s.do(t, http.MethodGet, base+"/logs", bearer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs []domain.PerformanceLog
	decode(t, w, &logs)
	assert.Len(t, logs, 1)

	for _, view := range []string{"/compliance", "/insights", "/dashboard"} {
		w = s.do(t, http.MethodGet, base+view, bearer, nil)
		assert.Equal(t, http.StatusOK, w.Code, view+": "+w.Body.String())
	}

	w = s.do(t, http.MethodPost, base+"/logs", bearer, StartLogRequest{WorkoutIndex: &zero})
	assert.Equal(t, http.StatusForbidden, w.Code, "only the recipient logs sessions")
}
