package service

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/fitgen/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestCreateNewVersion(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	trainer, _ := e.trainerWithClient(t)
	root := e.seedTemplate(t, trainer.ID, sampleRequest(), sampleContent(), domain.VisibilityPrivate)

	content := sampleContent()
	content.WorkoutPlan.Workouts[0].Exercises[0].Weight = 105
	v2, err := e.versionSvc.CreateNewVersion(ctx, root.ID, TemplateUpdates{
		Name:       strPtr("Heavier Squat"),
		ChangeNote: "bump squat",
		Content:    &content,
	}, trainer.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, v2.Version)
	assert.True(t, v2.IsLatestVersion)
	assert.Equal(t, root.ID, v2.RootID)
	require.NotNil(t, v2.ParentID)
	assert.Equal(t, root.ID, *v2.ParentID)
	require.NotNil(t, v2.DerivedFromID)
	assert.Equal(t, root.ID, *v2.DerivedFromID)
	assert.Equal(t, "Heavier Squat", v2.Name)
	assert.Equal(t, root.InputFingerprint, v2.InputFingerprint)
	assert.NotEqual(t, root.ContentFingerprint, v2.ContentFingerprint)

	old, err := e.templateSvc.GetTemplate(ctx, root.ID)
	require.NoError(t, err)
	assert.False(t, old.IsLatestVersion)
	assert.Equal(t, 100.0, old.Content.WorkoutPlan.Workouts[0].Exercises[0].Weight)

	// Versioning from a non-latest member still derives from the current latest.
	v3, err := e.versionSvc.CreateNewVersion(ctx, root.ID, TemplateUpdates{ChangeNote: "metadata only"}, trainer.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Version)
	assert.Equal(t, v2.ID, *v3.DerivedFromID)
	assert.Equal(t, "Heavier Squat", v3.Name)
	assert.Equal(t, v2.ContentFingerprint, v3.ContentFingerprint)
}

func TestCreateNewVersion_KeepsRequestedEquipment(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	trainer, _ := e.trainerWithClient(t)
	req := sampleRequest()
	req.Equipment = []string{"barbell", "bench", "pull-up bar"}
	root := e.seedTemplate(t, trainer.ID, req, sampleContent(), domain.VisibilityPrivate)
	assert.Equal(t, []string{"barbell", "bench", "pull-up bar"}, root.Characteristics.Equipment)

	content := sampleContent()
	for i := range content.WorkoutPlan.Workouts[0].Exercises {
		content.WorkoutPlan.Workouts[0].Exercises[i].Equipment = []string{"dumbbells"}
	}
	content.WorkoutPlan.Workouts[0].Exercises[0].MuscleGroup = "glutes"
	v2, err := e.versionSvc.CreateNewVersion(ctx, root.ID, TemplateUpdates{Content: &content}, trainer.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"barbell", "bench", "dumbbells", "pull-up bar"}, v2.Characteristics.Equipment)
	assert.Equal(t, []string{"back", "chest", "core", "glutes"}, v2.Characteristics.TargetMuscleGroups)
}

func TestCreateNewVersion_NotOwner(t *testing.T) {
	e := newTestEnv(t)
	trainer, _ := e.trainerWithClient(t)
	root := e.seedTemplate(t, trainer.ID, sampleRequest(), sampleContent(), domain.VisibilityPublic)

	_, err := e.versionSvc.CreateNewVersion(context.Background(), root.ID, TemplateUpdates{}, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = e.versionSvc.CreateNewVersion(context.Background(), primitive.NewObjectID(), TemplateUpdates{}, trainer.ID)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestCreateNewVersion_ConcurrentWritersKeepOneLatest(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	trainer, _ := e.trainerWithClient(t)
	root := e.seedTemplate(t, trainer.ID, sampleRequest(), sampleContent(), domain.VisibilityPrivate)

	const writers = 12
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.versionSvc.CreateNewVersion(ctx, root.ID, TemplateUpdates{ChangeNote: "concurrent"}, trainer.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	history, err := e.versionSvc.GetHistory(ctx, root.ID, trainer.ID)
	require.NoError(t, err)
	require.Len(t, history, writers+1)

	latest := 0
	versions := make([]int, 0, len(history))
	for _, v := range history {
		if v.IsLatestVersion {
			latest++
			assert.Equal(t, writers+1, v.Version)
		}
		versions = append(versions, v.Version)
	}
	assert.Equal(t, 1, latest)
	sort.Ints(versions)
	for i, v := range versions {
		assert.Equal(t, i+1, v)
	}
}

func TestGetHistory_NewestFirst(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	trainer, _ := e.trainerWithClient(t)
	root := e.seedTemplate(t, trainer.ID, sampleRequest(), sampleContent(), domain.VisibilityPrivate)
	for i := 0; i < 3; i++ {
		_, err := e.versionSvc.CreateNewVersion(ctx, root.ID, TemplateUpdates{}, trainer.ID)
		require.NoError(t, err)
	}

	history, err := e.versionSvc.GetHistory(ctx, root.ID, trainer.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i, v := range history {
		assert.Equal(t, 4-i, v.Version)
	}

	_, err = e.versionSvc.GetHistory(ctx, primitive.NewObjectID(), trainer.ID)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestGetHistory_Visibility(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	org := primitive.NewObjectID()

	owner, err := e.rosterSvc.RegisterUser(ctx, &domain.User{Name: "Owner", Email: "owner@example.com", Role: domain.RoleTrainer, OrganizationID: &org})
	require.NoError(t, err)
	colleague, err := e.rosterSvc.RegisterUser(ctx, &domain.User{Name: "Colleague", Email: "colleague@example.com", Role: domain.RoleTrainer, OrganizationID: &org})
	require.NoError(t, err)
	outsider, err := e.rosterSvc.RegisterUser(ctx, &domain.User{Name: "Outsider", Email: "outsider@example.com", Role: domain.RoleTrainer})
	require.NoError(t, err)

	root := e.seedTemplate(t, owner.ID, sampleRequest(), sampleContent(), domain.VisibilityPrivate)
	shared := domain.VisibilityOrganization
	v2, err := e.versionSvc.CreateNewVersion(ctx, root.ID, TemplateUpdates{Visibility: &shared}, owner.ID)
	require.NoError(t, err)

	history, err := e.versionSvc.GetHistory(ctx, v2.ID, owner.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = e.versionSvc.GetHistory(ctx, root.ID, colleague.ID)
	assert.ErrorIs(t, err, ErrTemplateNotVisible)

	history, err = e.versionSvc.GetHistory(ctx, v2.ID, colleague.ID)
	require.NoError(t, err)
	require.Len(t, history, 1, "the private root stays hidden")
	assert.Equal(t, v2.ID, history[0].ID)

	_, err = e.versionSvc.GetHistory(ctx, v2.ID, outsider.ID)
	assert.ErrorIs(t, err, ErrTemplateNotVisible)
}

func TestRollback(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	trainer, _ := e.trainerWithClient(t)
	root := e.seedTemplate(t, trainer.ID, sampleRequest(), sampleContent(), domain.VisibilityPrivate)
	v2, err := e.versionSvc.CreateNewVersion(ctx, root.ID, TemplateUpdates{Name: strPtr("v2")}, trainer.ID)
	require.NoError(t, err)

	back, err := e.versionSvc.Rollback(ctx, root.ID, trainer.ID)
	require.NoError(t, err)
	assert.True(t, back.IsLatestVersion)
	assert.Equal(t, 1, back.Version)

	got, err := e.templateSvc.GetTemplate(ctx, v2.ID)
	require.NoError(t, err)
	assert.False(t, got.IsLatestVersion)
	assert.True(t, got.IsActive(), "rollback never deletes or archives")

	// Rolling back to the current latest is a no-op.
	again, err := e.versionSvc.Rollback(ctx, root.ID, trainer.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, again.ID)

	// New versions after a rollback never reuse a number.
	v3, err := e.versionSvc.CreateNewVersion(ctx, root.ID, TemplateUpdates{}, trainer.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Version)
	assert.Equal(t, root.ID, *v3.DerivedFromID)

	_, err = e.versionSvc.Rollback(ctx, v2.ID, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestArchiveOldVersions(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	trainer, _ := e.trainerWithClient(t)
	root := e.seedTemplate(t, trainer.ID, sampleRequest(), sampleContent(), domain.VisibilityPrivate)
	for i := 0; i < 4; i++ {
		_, err := e.versionSvc.CreateNewVersion(ctx, root.ID, TemplateUpdates{}, trainer.ID)
		require.NoError(t, err)
	}

	_, err := e.versionSvc.ArchiveOldVersions(ctx, root.ID, -1, trainer.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	n, err := e.versionSvc.ArchiveOldVersions(ctx, root.ID, 2, trainer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	history, err := e.versionSvc.GetHistory(ctx, root.ID, trainer.ID)
	require.NoError(t, err)
	status := map[int]domain.TemplateStatus{}
	for _, v := range history {
		status[v.Version] = v.Status
		if v.Status == domain.TemplateArchived {
			assert.Equal(t, domain.ArchiveReasonSuperseded, v.ArchiveReason)
			assert.NotNil(t, v.ArchivedAt)
		}
	}
	assert.Equal(t, map[int]domain.TemplateStatus{
		5: domain.TemplateActive,
		4: domain.TemplateActive,
		3: domain.TemplateActive,
		2: domain.TemplateArchived,
		1: domain.TemplateArchived,
	}, status)

	// Archived versions cannot become latest again.
	_, err = e.versionSvc.Rollback(ctx, root.ID, trainer.ID)
	assert.ErrorIs(t, err, ErrTemplateArchived)

	// A second pass has nothing left to do.
	n, err = e.versionSvc.ArchiveOldVersions(ctx, root.ID, 2, trainer.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMergeDuplicates(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	trainer, _ := e.trainerWithClient(t)

	older := e.seedTemplate(t, trainer.ID, sampleRequest(), sampleContent(), domain.VisibilityPrivate)
	popular := e.seedTemplate(t, trainer.ID, sampleRequest(), sampleContent(), domain.VisibilityPrivate)
	newer := e.seedTemplate(t, trainer.ID, sampleRequest(), sampleContent(), domain.VisibilityPrivate)
	_, err := e.templateSvc.RecordUsage(ctx, popular.ID, primitive.NewObjectID())
	require.NoError(t, err)

	other := sampleContent()
	other.Rationale = "Different text, different fingerprint."
	unique := e.seedTemplate(t, trainer.ID, sampleRequest(), other, domain.VisibilityPrivate)

	report, err := e.versionSvc.MergeDuplicates(ctx, trainer.ID)
	require.NoError(t, err)
	require.Len(t, report.Groups, 1)
	assert.Equal(t, int64(2), report.Archived)
	assert.Equal(t, popular.ID, report.Groups[0].KeptID)
	assert.ElementsMatch(t, []primitive.ObjectID{older.ID, newer.ID}, report.Groups[0].ArchivedIDs)

	for _, id := range []primitive.ObjectID{older.ID, newer.ID} {
		got, err := e.templateSvc.GetTemplate(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.TemplateArchived, got.Status)
		assert.Equal(t, domain.ArchiveReasonDuplicate, got.ArchiveReason)
	}
	got, err := e.templateSvc.GetTemplate(ctx, unique.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive())

	report, err = e.versionSvc.MergeDuplicates(ctx, trainer.ID)
	require.NoError(t, err)
	assert.Empty(t, report.Groups)
}

func TestMergeDuplicates_OnlyCallersTemplates(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	owner, _ := e.trainerWithClient(t)
	other, _ := e.trainerWithClient(t)

	a := e.seedTemplate(t, owner.ID, sampleRequest(), sampleContent(), domain.VisibilityPublic)
	b := e.seedTemplate(t, owner.ID, sampleRequest(), sampleContent(), domain.VisibilityPublic)
	mine := e.seedTemplate(t, other.ID, sampleRequest(), sampleContent(), domain.VisibilityPublic)

	report, err := e.versionSvc.MergeDuplicates(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, report.Groups)
	assert.Zero(t, report.Archived)
	for _, id := range []primitive.ObjectID{a.ID, b.ID, mine.ID} {
		got, err := e.templateSvc.GetTemplate(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.IsActive())
	}

	report, err = e.versionSvc.MergeDuplicates(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, report.Groups, 1)
	assert.Equal(t, int64(1), report.Archived)
	got, err := e.templateSvc.GetTemplate(ctx, mine.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive(), "same content under another owner is not a duplicate")
}

func TestPreferForMerge(t *testing.T) {
	base := domain.Template{}
	used := base
	used.Usage.TimesUsed = 3
	rated := base
	rated.Usage.AverageRating = 4.5
	assert.True(t, preferForMerge(used, rated))
	assert.False(t, preferForMerge(rated, used))
	assert.True(t, preferForMerge(rated, base))

	a, b := base, base
	a.CreatedAt = b.CreatedAt.Add(-1)
	assert.True(t, preferForMerge(a, b))
}
