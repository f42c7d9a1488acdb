package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	strategyrepo "github.com/yungbote/contentplan-backend/internal/data/repos/strategy"
	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	"github.com/yungbote/contentplan-backend/internal/platform/dberr"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

type UpsertOutcome string

const (
	OutcomeUpdated UpsertOutcome = "updated"
	OutcomeCreated UpsertOutcome = "created"
	// OutcomeSkipped means the item could not be written; Item is the
	// record as it was before the attempt.
	OutcomeSkipped UpsertOutcome = "skipped"
)

// BatchScope identifies the creator batch a refinement arrived in.
type BatchScope struct {
	BatchNumber int
	BatchID     string
	Week        int
}

type UpsertResult struct {
	Item    *types.ContentItem
	Outcome UpsertOutcome
	Renamed bool
}

// RefinementUpserter merges creator refinements into existing items.
type RefinementUpserter struct {
	log      *logger.Logger
	db       *gorm.DB
	items    strategyrepo.ContentItemRepo
	resolver *UniquenessResolver
	now      func() time.Time
}

func NewRefinementUpserter(db *gorm.DB, log *logger.Logger, items strategyrepo.ContentItemRepo, resolver *UniquenessResolver) *RefinementUpserter {
	return &RefinementUpserter{
		log:      log.With("component", "RefinementUpserter"),
		db:       db,
		items:    items,
		resolver: resolver,
		now:      time.Now,
	}
}

// Upsert resolves the target item by content_id == origin_id, then
// origin_id == origin_id, then content_id == id, and merges refined into it.
// Identity fields of an existing item are never taken from refined. A name
// conflict is resolved and retried once; if the retry fails the item is
// returned unchanged with OutcomeSkipped and a nil error.
func (u *RefinementUpserter) Upsert(dbc dbctx.Context, plan *types.StrategyPlan, refined RefinedItem, scope BatchScope) (UpsertResult, error) {
	existing, err := u.match(dbc, plan, refined)
	if err != nil {
		return UpsertResult{}, err
	}
	if existing == nil {
		return u.create(dbc, plan, refined, scope)
	}

	before := *existing
	after := *existing
	u.merge(&after, refined, scope)
	after.RefinementDiff = datatypes.NewJSONType(refinementDiff(&before, &after))

	renamed, err := u.save(dbc, &after)
	if err != nil {
		u.log.Warn("Refinement not saved; keeping previous state",
			"content_id", before.ContentID,
			"batch", scope.BatchNumber,
			"error", err,
		)
		if dberr.IsUnique(err) {
			return UpsertResult{Item: &before, Outcome: OutcomeSkipped}, nil
		}
		return UpsertResult{Item: &before, Outcome: OutcomeSkipped}, &PersistenceConflict{ContentID: before.ContentID, Violation: dberr.Classify(err)}
	}
	return UpsertResult{Item: &after, Outcome: OutcomeUpdated, Renamed: renamed}, nil
}

func (u *RefinementUpserter) match(dbc dbctx.Context, plan *types.StrategyPlan, refined RefinedItem) (*types.ContentItem, error) {
	origin := strings.TrimSpace(refined.OriginID)
	if origin != "" {
		if it, err := u.items.GetInPlanByContentID(dbc, plan.ID, origin); err != nil || it != nil {
			return it, err
		}
		if it, err := u.items.GetInPlanByOriginID(dbc, plan.ID, origin); err != nil || it != nil {
			return it, err
		}
	}
	if id := strings.TrimSpace(refined.ContentID); id != "" {
		return u.items.GetInPlanByContentID(dbc, plan.ID, id)
	}
	return nil, nil
}

// merge overwrites content fields present in refined and pins status.
func (u *RefinementUpserter) merge(item *types.ContentItem, refined RefinedItem, scope BatchScope) {
	if s := strings.TrimSpace(refined.ContentName); s != "" {
		item.ContentName = truncateRunes(s, types.MaxContentNameRunes)
	}
	setIf(&item.Title, refined.Title)
	setIf(&item.Hook, refined.Hook)
	setIf(&item.Description, refined.Description)
	setIf(&item.PostDescription, truncateRunes(refined.PostDescription, types.MaxPostDescriptionRunes))
	setIf(&item.TextBase, refined.TextBase)
	if t, ok := types.ParseTemplate(refined.Template); ok && refined.Template != "" {
		item.Template = t
	}
	if vs := strings.ToLower(strings.TrimSpace(refined.VideoSource)); types.ValidVideoSource(vs) {
		item.VideoSource = vs
	}
	if p := strings.ToLower(strings.TrimSpace(refined.Platform)); types.ValidPlatform(p) {
		item.Platform = p
	}
	if tags := normalizeHashtags(refined.Hashtags); len(tags) > 0 {
		item.Hashtags = datatypes.NewJSONType(tags)
	}
	item.ShotPlan = datatypes.NewJSONType(pickShotPlan(item, refined.ShotPlan))
	item.Status = types.ItemInProduction
	item.BatchNumber = scope.BatchNumber
	now := u.now().UTC()
	item.RefinedAt = &now
}

// pickShotPlan prefers the refinement, then the stored plan, then the
// template default.
func pickShotPlan(item *types.ContentItem, refined *types.ShotPlan) types.ShotPlan {
	if refined != nil && refined.ValidFor(item.Template) {
		return *refined
	}
	if current := item.ShotPlan.Data(); current.ValidFor(item.Template) {
		return current
	}
	return DefaultShotPlan(item.Template, item.ContentName, item.Hook, item.Description, nil)
}

// save writes item in its own savepoint, resolving one name conflict.
func (u *RefinementUpserter) save(dbc dbctx.Context, item *types.ContentItem) (bool, error) {
	err := inTx(dbc, u.db, func(sp dbctx.Context) error { return u.items.Save(sp, item) })
	if err == nil {
		return false, nil
	}
	v := dberr.Classify(err)
	if v.Kind != dberr.KindUnique || !v.HasField("content_name") {
		return false, err
	}
	name, rerr := u.resolver.ResolveNameConflict(dbc, item.ContentName, item.BrandID)
	if rerr != nil {
		return false, rerr
	}
	u.log.Info("Resolved content name conflict", "content_id", item.ContentID, "from", item.ContentName, "to", name)
	item.ContentName = name
	if err := inTx(dbc, u.db, func(sp dbctx.Context) error { return u.items.Save(sp, item) }); err != nil {
		return false, err
	}
	return true, nil
}

func (u *RefinementUpserter) create(dbc dbctx.Context, plan *types.StrategyPlan, refined RefinedItem, scope BatchScope) (UpsertResult, error) {
	item := u.fromRefinement(plan, refined, scope)
	u.log.Warn("Refinement matched no draft; creating item",
		"plan_id", plan.ID,
		"content_id", item.ContentID,
		"origin_id", item.OriginID,
	)
	err := inTx(dbc, u.db, func(sp dbctx.Context) error { return u.items.Create(sp, item) })
	renamed := false
	if err != nil && dberr.IsUnique(err) && dberr.Classify(err).HasField("content_name") {
		name, rerr := u.resolver.ResolveNameConflict(dbc, item.ContentName, plan.BrandID)
		if rerr != nil {
			return UpsertResult{}, rerr
		}
		item.ContentName = name
		renamed = true
		err = inTx(dbc, u.db, func(sp dbctx.Context) error { return u.items.Create(sp, item) })
	}
	if err != nil {
		return UpsertResult{Outcome: OutcomeSkipped}, &PersistenceConflict{ContentID: item.ContentID, Violation: dberr.Classify(err)}
	}
	return UpsertResult{Item: item, Outcome: OutcomeCreated, Renamed: renamed}, nil
}

func (u *RefinementUpserter) fromRefinement(plan *types.StrategyPlan, refined RefinedItem, scope BatchScope) *types.ContentItem {
	week := refined.Week
	if week < 1 || week > types.WeeksPerPlan {
		week = scope.Week
	}
	contentID := strings.TrimSpace(firstNonEmpty(refined.ContentID, refined.OriginID))
	pillar, ok := types.ParsePillar(refined.Pillar)
	if !ok {
		if key, kok := types.ParseIdeaID(contentID); kok {
			pillar = key.Pillar
		}
	}
	if contentID == "" {
		token := strings.ReplaceAll(scope.BatchID, "-", "")
		if len(token) < 8 {
			token = strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		contentID = fmt.Sprintf("%s-c%s", types.IdeaID(plan.Month, plan.BrandKey(), week, 0, pillar), token[:8])
	}
	origin := strings.TrimSpace(refined.OriginID)
	if origin == "" {
		origin = contentID
	}
	template, _ := types.ParseTemplate(refined.Template)
	day := strings.ToLower(strings.TrimSpace(refined.DayOfTheWeek))
	if !types.ValidDay(day) {
		day = dayFor(1)
	}
	name := strings.TrimSpace(firstNonEmpty(refined.ContentName, refined.Title))
	if name == "" {
		name = fmt.Sprintf("%s W%d", strings.ToUpper(pillar.Code()), week)
	}

	item := &types.ContentItem{
		PlanID:       plan.ID,
		BrandID:      plan.BrandID,
		ContentID:    contentID,
		OriginID:     origin,
		Week:         week,
		Pillar:       pillar,
		Template:     template,
		VideoSource:  videoSourceFor(template),
		Platform:     platformFor(types.Idea{}, plan),
		DayOfTheWeek: day,
		Hashtags:     datatypes.NewJSONType([]string{}),
	}
	item.PublishDate, _ = types.PublishDateFor(plan.Month, week, day)
	item.ContentName = truncateRunes(name, types.MaxContentNameRunes)
	u.merge(item, refined, scope)
	return item
}

func normalizeHashtags(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, raw := range in {
		tag := strings.TrimSpace(raw)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
		if len(out) == types.MaxHashtags {
			break
		}
	}
	return out
}

func setIf(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
