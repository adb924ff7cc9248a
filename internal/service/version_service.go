package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/fingerprint"
	"alcyxob/fitgen/internal/lock"
	"alcyxob/fitgen/internal/logger"
	"alcyxob/fitgen/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TemplateUpdates carries the fields a new version may change. Nil or empty
// fields are copied unchanged from the current latest version.
type TemplateUpdates struct {
	Name                 *string                      `json:"name,omitempty"`
	Description          *string                      `json:"description,omitempty"`
	ChangeNote           string                       `json:"changeNote,omitempty"`
	Tags                 []string                     `json:"tags,omitempty"`
	Content              *domain.ProgramContent       `json:"content,omitempty"`
	CustomizationOptions *domain.CustomizationOptions `json:"customizationOptions,omitempty"`
	Visibility           *domain.Visibility           `json:"visibility,omitempty"`
}

// MergeGroup is one set of templates sharing a content fingerprint.
type MergeGroup struct {
	ContentFingerprint string               `json:"contentFingerprint"`
	KeptID             primitive.ObjectID   `json:"keptId"`
	ArchivedIDs        []primitive.ObjectID `json:"archivedIds"`
}

type MergeReport struct {
	Groups   []MergeGroup `json:"groups"`
	Archived int64        `json:"archived"`
}

type VersionService interface {
	CreateNewVersion(ctx context.Context, templateID primitive.ObjectID, updates TemplateUpdates, actorID primitive.ObjectID) (*domain.Template, error)
	Rollback(ctx context.Context, versionID, actorID primitive.ObjectID) (*domain.Template, error)
	GetHistory(ctx context.Context, templateID, viewerID primitive.ObjectID) ([]domain.Template, error)
	ArchiveOldVersions(ctx context.Context, templateID primitive.ObjectID, keep int, actorID primitive.ObjectID) (int64, error)
	MergeDuplicates(ctx context.Context, ownerID primitive.ObjectID) (*MergeReport, error)
}

type versionService struct {
	templates repository.TemplateRepository
	users     repository.UserRepository
	locker    lock.Locker
	log       *logger.Logger
	now       func() time.Time
}

func NewVersionService(templates repository.TemplateRepository, users repository.UserRepository, locker lock.Locker, log *logger.Logger) VersionService {
	return &versionService{
		templates: templates,
		users:     users,
		locker:    locker,
		log:       log.With("service", "VersionService"),
		now:       time.Now,
	}
}

// loadOwned resolves a template and checks that actorID owns its chain.
func (s *versionService) loadOwned(ctx context.Context, id, actorID primitive.ObjectID) (*domain.Template, error) {
	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, ErrTemplateNotFound)
	}
	if t.OwnerID != actorID {
		return nil, ErrNotOwner
	}
	return t, nil
}

func latestOf(chain []domain.Template) *domain.Template {
	for i := range chain {
		if chain[i].IsLatestVersion {
			return &chain[i]
		}
	}
	return nil
}

// CreateNewVersion appends a version derived from the chain's current latest.
// The version number is one past the highest in the chain, so it also stays
// unique after a rollback moved the latest pointer backwards.
func (s *versionService) CreateNewVersion(ctx context.Context, templateID primitive.ObjectID, updates TemplateUpdates, actorID primitive.ObjectID) (*domain.Template, error) {
	// 1. Resolve the chain root and check ownership
	t, err := s.loadOwned(ctx, templateID, actorID)
	if err != nil {
		return nil, err
	}
	rootID := t.RootID

	// 2. Serialize writers of this chain
	unlock, err := s.locker.Lock(ctx, lock.ChainKey(rootID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 3. Load the chain under the lock
	chain, err := s.templates.ListChain(ctx, rootID)
	if err != nil {
		return nil, err
	}
	current := latestOf(chain)
	if current == nil {
		return nil, fmt.Errorf("%w: chain %s has no latest version", ErrInvalidState, rootID.Hex())
	}
	if !current.IsActive() {
		return nil, ErrTemplateArchived
	}
	maxVersion := 0
	for _, v := range chain {
		if v.Version > maxVersion {
			maxVersion = v.Version
		}
	}

	// 4. Copy the current latest and apply updates on top
	next := *current
	next.Content = *current.Content.Clone()
	next.Tags = append([]string(nil), current.Tags...)
	next.Usage.ConsumerIDs = append([]primitive.ObjectID(nil), current.Usage.ConsumerIDs...)
	next.Characteristics.Goals = append([]string(nil), current.Characteristics.Goals...)
	next.ID = primitive.NilObjectID
	next.Version = maxVersion + 1
	parent := rootID
	derived := current.ID
	next.ParentID = &parent
	next.DerivedFromID = &derived
	next.ChangeNote = updates.ChangeNote
	updatedBy := actorID
	next.UpdatedBy = &updatedBy
	next.ArchiveReason = ""
	next.ArchivedAt = nil

	if updates.Name != nil {
		next.Name = *updates.Name
	}
	if updates.Description != nil {
		next.Description = *updates.Description
	}
	if updates.Tags != nil {
		next.Tags = fingerprint.NormalizeList(updates.Tags)
	}
	if updates.CustomizationOptions != nil {
		next.Customization = *updates.CustomizationOptions
	}
	if updates.Visibility != nil {
		next.Visibility = *updates.Visibility
	}
	if updates.Content != nil {
		next.Content = *updates.Content.Clone()
		refreshContentCharacteristics(&next.Characteristics, next.Characteristics.RequestEquipment, next.Content)
	}
	contentFP, err := fingerprint.ContentFingerprint(next.Content)
	if err != nil {
		return nil, fmt.Errorf("content fingerprint: %w", err)
	}
	next.ContentFingerprint = contentFP

	// 5. Insert and flip the latest flag atomically
	if _, err := s.templates.InsertVersion(ctx, &next); err != nil {
		return nil, mapRepoErr(err, ErrTemplateNotFound)
	}
	s.log.Info("Template version created",
		"root_id", rootID.Hex(), "template_id", next.ID.Hex(), "version", next.Version, "actor_id", actorID.Hex())
	return &next, nil
}

// Rollback makes versionID the chain's sole latest version. Nothing is deleted.
func (s *versionService) Rollback(ctx context.Context, versionID, actorID primitive.ObjectID) (*domain.Template, error) {
	t, err := s.loadOwned(ctx, versionID, actorID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, lock.ChainKey(t.RootID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Re-read under the lock; a concurrent archive may have run.
	t, err = s.templates.GetByID(ctx, versionID)
	if err != nil {
		return nil, mapRepoErr(err, ErrTemplateNotFound)
	}
	if !t.IsActive() {
		return nil, ErrTemplateArchived
	}
	if t.IsLatestVersion {
		return t, nil
	}
	if err := s.templates.SetLatest(ctx, t.RootID, t.ID); err != nil {
		return nil, mapRepoErr(err, ErrTemplateNotFound)
	}
	t.IsLatestVersion = true
	s.log.Info("Template chain rolled back", "root_id", t.RootID.Hex(), "version", t.Version, "actor_id", actorID.Hex())
	return t, nil
}

// GetHistory lists the versions of the chain templateID belongs to, newest
// first. The owner sees every version; other viewers need templateID to be
// visible to them and only get the versions that are.
func (s *versionService) GetHistory(ctx context.Context, templateID, viewerID primitive.ObjectID) ([]domain.Template, error) {
	t, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, mapRepoErr(err, ErrTemplateNotFound)
	}
	v := &Viewer{ID: viewerID}
	if err := resolveViewer(ctx, s.users, v); err != nil {
		return nil, err
	}
	if !t.VisibleTo(v.ID, v.OrganizationID) {
		return nil, ErrTemplateNotVisible
	}
	chain, err := s.templates.ListChain(ctx, t.RootID)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != viewerID {
		visible := chain[:0]
		for _, c := range chain {
			if c.VisibleTo(v.ID, v.OrganizationID) {
				visible = append(visible, c)
			}
		}
		chain = visible
	}
	sort.SliceStable(chain, func(i, j int) bool { return chain[i].Version > chain[j].Version })
	return chain, nil
}

// ArchiveOldVersions keeps the latest version plus the keep most recent
// predecessors active and archives the rest as superseded.
func (s *versionService) ArchiveOldVersions(ctx context.Context, templateID primitive.ObjectID, keep int, actorID primitive.ObjectID) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("%w: keep must not be negative", ErrInvalidState)
	}
	t, err := s.loadOwned(ctx, templateID, actorID)
	if err != nil {
		return 0, err
	}
	unlock, err := s.locker.Lock(ctx, lock.ChainKey(t.RootID))
	if err != nil {
		return 0, err
	}
	defer unlock()

	chain, err := s.templates.ListChain(ctx, t.RootID)
	if err != nil {
		return 0, err
	}
	sort.SliceStable(chain, func(i, j int) bool { return chain[i].Version > chain[j].Version })

	var toArchive []primitive.ObjectID
	kept := 0
	for _, v := range chain {
		if v.IsLatestVersion || !v.IsActive() {
			continue
		}
		if kept < keep {
			kept++
			continue
		}
		toArchive = append(toArchive, v.ID)
	}
	n, err := s.templates.Archive(ctx, toArchive, domain.ArchiveReasonSuperseded, s.now().UTC())
	if err != nil {
		return 0, err
	}
	s.log.Info("Archived old template versions", "root_id", t.RootID.Hex(), "archived", n, "kept", kept)
	return n, nil
}

// MergeDuplicates archives ownerID's active latest templates whose content
// fingerprint collides with a better-used template of the same owner.
func (s *versionService) MergeDuplicates(ctx context.Context, ownerID primitive.ObjectID) (*MergeReport, error) {
	latest, err := s.templates.ListActiveLatest(ctx)
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]domain.Template)
	var order []string
	for _, t := range latest {
		if t.OwnerID != ownerID || t.ContentFingerprint == "" {
			continue
		}
		if _, ok := groups[t.ContentFingerprint]; !ok {
			order = append(order, t.ContentFingerprint)
		}
		groups[t.ContentFingerprint] = append(groups[t.ContentFingerprint], t)
	}

	report := &MergeReport{Groups: []MergeGroup{}}
	now := s.now().UTC()
	for _, fp := range order {
		members := groups[fp]
		if len(members) < 2 {
			continue
		}
		sort.SliceStable(members, func(i, j int) bool { return preferForMerge(members[i], members[j]) })
		group := MergeGroup{ContentFingerprint: fp, KeptID: members[0].ID}
		for _, m := range members[1:] {
			group.ArchivedIDs = append(group.ArchivedIDs, m.ID)
		}
		n, err := s.templates.Archive(ctx, group.ArchivedIDs, domain.ArchiveReasonDuplicate, now)
		if err != nil {
			return nil, err
		}
		report.Archived += n
		report.Groups = append(report.Groups, group)
	}
	s.log.Info("Duplicate templates merged", "owner_id", ownerID.Hex(), "groups", len(report.Groups), "archived", report.Archived)
	return report, nil
}

// preferForMerge orders by usage, then rating, then age (oldest first).
func preferForMerge(a, b domain.Template) bool {
	if a.Usage.TimesUsed != b.Usage.TimesUsed {
		return a.Usage.TimesUsed > b.Usage.TimesUsed
	}
	if a.Usage.AverageRating != b.Usage.AverageRating {
		return a.Usage.AverageRating > b.Usage.AverageRating
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
