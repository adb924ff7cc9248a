package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TemplateRepository struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]*domain.Template
}

func NewTemplateRepository() *TemplateRepository {
	return &TemplateRepository{byID: make(map[primitive.ObjectID]*domain.Template)}
}

var _ repository.TemplateRepository = (*TemplateRepository)(nil)

func (r *TemplateRepository) Create(ctx context.Context, t *domain.Template) (primitive.ObjectID, error) {
	if t.OwnerID == primitive.NilObjectID || t.InputFingerprint == "" {
		return primitive.NilObjectID, errors.New("template requires ownerId and inputFingerprint")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t.ID = primitive.NewObjectID()
	if t.RootID == primitive.NilObjectID {
		t.RootID = t.ID
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if r.versionTaken(t.RootID, t.Version) {
		return primitive.NilObjectID, repository.ErrConflict
	}
	r.byID[t.ID] = clone(t)
	return t.ID, nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(t), nil
}

func (r *TemplateRepository) FindLatestByInputFingerprint(ctx context.Context, fp string) ([]domain.Template, error) {
	return r.filter(func(t *domain.Template) bool {
		return t.InputFingerprint == fp && t.IsLatestVersion && t.Status == domain.TemplateActive
	}), nil
}

func (r *TemplateRepository) FindSimilarCandidates(ctx context.Context, q repository.SimilarQuery) ([]domain.Template, error) {
	goals := make(map[string]bool, len(q.Goals))
	for _, g := range q.Goals {
		goals[g] = true
	}
	return r.filter(func(t *domain.Template) bool {
		if !t.IsLatestVersion || t.Status != domain.TemplateActive || t.Visibility != domain.VisibilityPublic {
			return false
		}
		if t.Characteristics.ExperienceLevel != q.ExperienceLevel {
			return false
		}
		for _, g := range t.Characteristics.Goals {
			if goals[g] {
				return true
			}
		}
		return false
	}), nil
}

func (r *TemplateRepository) ListChain(ctx context.Context, rootID primitive.ObjectID) ([]domain.Template, error) {
	out := r.filter(func(t *domain.Template) bool { return t.RootID == rootID })
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (r *TemplateRepository) InsertVersion(ctx context.Context, t *domain.Template) (primitive.ObjectID, error) {
	if t.RootID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("version requires rootId")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.versionTaken(t.RootID, t.Version) {
		return primitive.NilObjectID, repository.ErrConflict
	}
	t.ID = primitive.NewObjectID()
	t.IsLatestVersion = true
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	for _, sib := range r.byID {
		if sib.RootID == t.RootID && sib.IsLatestVersion {
			sib.IsLatestVersion = false
			sib.UpdatedAt = now
		}
	}
	r.byID[t.ID] = clone(t)
	return t.ID, nil
}

func (r *TemplateRepository) SetLatest(ctx context.Context, rootID, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.byID[id]
	if !ok || target.RootID != rootID {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	for _, t := range r.byID {
		if t.RootID == rootID {
			t.IsLatestVersion = t.ID == id
			t.UpdatedAt = now
		}
	}
	return nil
}

func (r *TemplateRepository) Archive(ctx context.Context, ids []primitive.ObjectID, reason string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, id := range ids {
		t, ok := r.byID[id]
		if !ok || t.Status != domain.TemplateActive {
			continue
		}
		archivedAt := at
		t.Status = domain.TemplateArchived
		t.ArchiveReason = reason
		t.ArchivedAt = &archivedAt
		t.UpdatedAt = at
		n++
	}
	return n, nil
}

func (r *TemplateRepository) ListActiveLatest(ctx context.Context) ([]domain.Template, error) {
	out := r.filter(func(t *domain.Template) bool {
		return t.IsLatestVersion && t.Status == domain.TemplateActive
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *TemplateRepository) IncrementUsage(ctx context.Context, id, consumerID primitive.ObjectID, at time.Time) (*domain.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t.Usage.TimesUsed++
	seen := false
	for _, c := range t.Usage.ConsumerIDs {
		if c == consumerID {
			seen = true
			break
		}
	}
	if !seen {
		t.Usage.ConsumerIDs = append(t.Usage.ConsumerIDs, consumerID)
	}
	t.Usage.UniqueConsumers = len(t.Usage.ConsumerIDs)
	lastUsed := at
	t.Usage.LastUsedAt = &lastUsed
	t.UpdatedAt = at
	return clone(t), nil
}

func (r *TemplateRepository) AddRating(ctx context.Context, id primitive.ObjectID, score float64, at time.Time) (*domain.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	count := float64(t.Usage.RatingCount)
	t.Usage.AverageRating = (t.Usage.AverageRating*count + score) / (count + 1)
	t.Usage.RatingCount++
	t.UpdatedAt = at
	return clone(t), nil
}

func (r *TemplateRepository) filter(keep func(*domain.Template) bool) []domain.Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Template
	for _, t := range r.byID {
		if keep(t) {
			out = append(out, *clone(t))
		}
	}
	return out
}

// versionTaken mirrors the unique rootId+version index. Callers hold mu.
func (r *TemplateRepository) versionTaken(rootID primitive.ObjectID, version int) bool {
	for _, t := range r.byID {
		if t.RootID == rootID && t.Version == version {
			return true
		}
	}
	return false
}
