package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/fitgen/internal/config"
	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/generator"
	"alcyxob/fitgen/internal/lock"
	"alcyxob/fitgen/internal/logger"
	"alcyxob/fitgen/internal/repository/memory"
	"alcyxob/fitgen/internal/storage"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, messages []generator.Message, opts generator.Options) (*generator.Completion, error) {
	args := m.Called(ctx, messages, opts)
	c, _ := args.Get(0).(*generator.Completion)
	return c, args.Error(1)
}

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) PutObject(ctx context.Context, objectKey string, contentType string, body []byte) error {
	return m.Called(ctx, objectKey, contentType, body).Error(0)
}

func (m *mockStorage) GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	args := m.Called(ctx, objectKey, expires)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) DeleteObject(ctx context.Context, objectKey string) error {
	return m.Called(ctx, objectKey).Error(0)
}

var _ storage.FileStorage = (*mockStorage)(nil)

type testEnv struct {
	users        *memory.UserRepository
	templates    *memory.TemplateRepository
	instances    *memory.InstanceRepository
	logs         *memory.PerformanceLogRepository
	alternatives *memory.AlternativeRepository
	plans        *memory.TrainingPlanRepository
	workouts     *memory.WorkoutRepository
	completer    *mockCompleter
	files        storage.FileStorage

	templateSvc     TemplateService
	versionSvc      VersionService
	substitutionSvc SubstitutionService
	instanceSvc     InstanceService
	generationSvc   GenerationService
	performanceSvc  PerformanceService
	analyticsSvc    AnalyticsService
	rosterSvc       RosterService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithStorage(t, storage.NoopStorage{})
}

func newTestEnvWithStorage(t *testing.T, files storage.FileStorage) *testEnv {
	t.Helper()
	log := logger.NewNop()
	locker := lock.NewLocalLocker()
	e := &testEnv{
		users:        memory.NewUserRepository(),
		templates:    memory.NewTemplateRepository(),
		instances:    memory.NewInstanceRepository(),
		logs:         memory.NewPerformanceLogRepository(),
		alternatives: memory.NewAlternativeRepository(),
		plans:        memory.NewTrainingPlanRepository(),
		workouts:     memory.NewWorkoutRepository(),
		completer:    &mockCompleter{},
		files:        files,
	}
	retention := config.RetentionConfig{InstanceDays: 180}
	e.templateSvc = NewTemplateService(e.templates, e.users, locker, config.MatcherConfig{DurationToleranceWeeks: 2, MaxAlternatives: 5}, log)
	e.versionSvc = NewVersionService(e.templates, e.users, locker, log)
	e.substitutionSvc = NewSubstitutionService(e.alternatives, log)
	e.instanceSvc = NewInstanceService(e.instances, e.templates, e.users, e.plans, e.workouts, e.templateSvc, e.substitutionSvc, locker, retention, log)
	e.generationSvc = NewGenerationService(e.instances, e.users, e.templateSvc, e.instanceSvc, e.completer, files,
		config.GenerationConfig{Timeout: 5 * time.Second, Model: "test-model"}, retention, log)
	e.performanceSvc = NewPerformanceService(e.logs, e.instances, log)
	e.analyticsSvc = NewAnalyticsService(e.logs, e.instances, log)
	e.rosterSvc = NewRosterService(e.users, log)
	return e
}

// trainerWithClient registers a trainer and one client on their roster.
func (e *testEnv) trainerWithClient(t *testing.T) (trainer, client *domain.User) {
	t.Helper()
	ctx := context.Background()
	suffix := primitive.NewObjectID().Hex()
	trainer, err := e.rosterSvc.RegisterUser(ctx, &domain.User{Name: "Tess Trainer", Email: "trainer-" + suffix + "@example.com", Role: domain.RoleTrainer})
	require.NoError(t, err)
	client, err = e.rosterSvc.RegisterUser(ctx, &domain.User{Name: "Cal Client", Email: "client-" + suffix + "@example.com", Role: domain.RoleClient})
	require.NoError(t, err)
	client, err = e.rosterSvc.AddClientByEmail(ctx, trainer.ID, client.Email)
	require.NoError(t, err)
	return trainer, client
}

func sampleRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		Goals:           []string{"strength"},
		ExperienceLevel: "beginner",
		DurationWeeks:   8,
		Equipment:       []string{"barbell", "bench"},
		SessionsPerWeek: 3,
	}
}

func sampleContent() domain.ProgramContent {
	return domain.ProgramContent{
		WorkoutPlan: &domain.WorkoutPlan{
			DurationWeeks:   8,
			SessionsPerWeek: 3,
			Workouts: []domain.PlanWorkout{
				{
					Name: "Day A",
					Day:  1,
					Exercises: []domain.PlannedExercise{
						{ID: "sq", Name: "Back Squat", MuscleGroup: "legs", Sets: 5, Reps: 5, Weight: 100, Equipment: []string{"barbell"}},
						{ID: "bp", Name: "Bench Press", MuscleGroup: "chest", Sets: 5, Reps: 5, Weight: 80, Equipment: []string{"barbell", "bench"}},
					},
				},
				{
					Name: "Day B",
					Day:  3,
					Exercises: []domain.PlannedExercise{
						{ID: "pu", Name: "Pull-up", MuscleGroup: "back", Sets: 3, Reps: 8},
						{ID: "pl", Name: "Plank", MuscleGroup: "core", Sets: 3, Reps: 1},
					},
				},
			},
		},
		NutritionPlan: &domain.NutritionPlan{
			DietType:     "balanced",
			DailyTargets: domain.MacroTargets{"calories": 2500, "protein": 160},
		},
		ProgressionRules: &domain.ProgressionRules{
			Strategy: domain.StrategyLinear,
			Deload: domain.DeloadProtocol{
				ScheduledWeeks: []int{4, 8},
				Triggers: []domain.DeloadTrigger{
					{Condition: domain.TriggerHighAvgRPE, Threshold: 9.5, LookbackSessions: 3, Action: "reduce_intensity", Magnitude: 0.1},
				},
			},
		},
		Rationale: "Linear strength base.",
	}
}

func programJSON(t *testing.T, c domain.ProgramContent) string {
	t.Helper()
	b, err := json.Marshal(c)
	require.NoError(t, err)
	return string(b)
}

// seedTemplate stores content for req as a fresh chain owned by owner.
func (e *testEnv) seedTemplate(t *testing.T, owner primitive.ObjectID, req domain.GenerationRequest, content domain.ProgramContent, visibility domain.Visibility) *domain.Template {
	t.Helper()
	inst := &domain.GeneratedInstance{
		ID:         primitive.NewObjectID(),
		ProducerID: owner,
		InputData:  req,
		Content:    content,
	}
	tmpl, err := e.templateSvc.CreateFromGenerated(context.Background(), inst, CreateTemplateOptions{Visibility: visibility})
	require.NoError(t, err)
	return tmpl
}

// appliedInstance walks a template-backed instance through to applied.
func (e *testEnv) appliedInstance(t *testing.T, trainer, client *domain.User, start time.Time) *domain.GeneratedInstance {
	t.Helper()
	ctx := context.Background()
	tmpl := e.seedTemplate(t, trainer.ID, sampleRequest(), sampleContent(), domain.VisibilityPrivate)
	res, err := e.instanceSvc.ApplyTemplate(ctx, ApplyTemplateInput{TemplateID: tmpl.ID, RecipientID: client.ID, ProducerID: trainer.ID})
	require.NoError(t, err)
	id := res.Instance.ID
	_, err = e.instanceSvc.Review(ctx, id, trainer.ID)
	require.NoError(t, err)
	_, err = e.instanceSvc.Approve(ctx, id, trainer.ID)
	require.NoError(t, err)
	inst, err := e.instanceSvc.Apply(ctx, id, trainer.ID, &start)
	require.NoError(t, err)
	return inst
}
