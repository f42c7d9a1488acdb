package strategy

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	strategyrepo "github.com/yungbote/contentplan-backend/internal/data/repos/strategy"
	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	"github.com/yungbote/contentplan-backend/internal/platform/dberr"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

// QuantityEngine turns a plan's weekly ideas into draft content items and
// guarantees one persisted item per idea.
type QuantityEngine struct {
	log      *logger.Logger
	db       *gorm.DB
	items    strategyrepo.ContentItemRepo
	enricher *IdeaEnricher
	rnd      Random
}

func NewQuantityEngine(db *gorm.DB, log *logger.Logger, items strategyrepo.ContentItemRepo, enricher *IdeaEnricher, rnd Random) *QuantityEngine {
	return &QuantityEngine{
		log:      log.With("component", "QuantityEngine"),
		db:       db,
		items:    items,
		enricher: enricher,
		rnd:      rnd,
	}
}

type pendingIdea struct {
	item     *types.ContentItem
	position int
	err      error
}

// Materialize creates or refreshes one item per idea of plan.WeeklyPlan inside
// a single transaction, using dbc.Tx when the caller already holds one. Items
// past draft are never modified. Failed inserts go through the recovery
// ladder; a remaining shortfall is logged, not returned.
func (e *QuantityEngine) Materialize(dbc dbctx.Context, plan *types.StrategyPlan) ([]*types.ContentItem, error) {
	if plan == nil {
		return nil, ErrPlanNotFound
	}
	var out []*types.ContentItem
	run := func(txc dbctx.Context) error {
		var err error
		out, err = e.materialize(txc, plan)
		return err
	}
	if dbc.Tx != nil {
		if err := run(dbc); err != nil {
			return nil, err
		}
		return out, nil
	}
	err := e.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		return run(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *QuantityEngine) materialize(dbc dbctx.Context, plan *types.StrategyPlan) ([]*types.ContentItem, error) {
	weeks := plan.WeeklyPlan.Data()
	expected := types.CountIdeas(weeks)
	result := make([]*types.ContentItem, 0, expected)
	var pending []pendingIdea

	for _, w := range weeks {
		for i, idea := range w.Ideas {
			position := i + 1
			enriched, err := e.enricher.Enrich(dbc, plan.ID, idea)
			if err != nil {
				e.log.Warn("Enrichment failed; using idea as given", "plan_id", plan.ID, "idea_id", idea.ID, "error", err)
				enriched = idea
			}
			item := e.buildItem(plan, w.Week, position, enriched)

			existing, err := e.findExisting(dbc, plan.ID, item.ContentID)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				result = append(result, e.reuse(dbc, plan, existing, item))
				continue
			}

			err = inTx(dbc, e.db, func(sp dbctx.Context) error { return e.items.Create(sp, item) })
			if err != nil {
				e.log.Debug("First-pass insert rejected", "content_id", item.ContentID, "error", err)
				pending = append(pending, pendingIdea{item: item, position: position, err: err})
				continue
			}
			result = append(result, item)
		}
	}

	if len(result) < expected {
		have := map[string]bool{}
		for _, it := range result {
			have[it.OriginID] = true
		}
		var missing []pendingIdea
		var missingIDs []string
		for _, p := range pending {
			if !have[p.item.OriginID] {
				missing = append(missing, p)
				missingIDs = append(missingIDs, p.item.OriginID)
			}
		}
		e.log.Warn("Quantity shortfall after first pass; recovering",
			"plan_id", plan.ID,
			"expected", expected,
			"actual", len(result),
			"missing", strings.Join(missingIDs, ","),
		)
		for _, p := range missing {
			item, err := e.recover(dbc, p)
			if err != nil {
				e.log.Error("Item recovery failed", "plan_id", plan.ID, "origin_id", p.item.OriginID, "error", err)
				continue
			}
			result = append(result, item)
		}
	}

	if len(result) != expected {
		shortfall := &QuantityShortfall{Expected: expected, Actual: len(result)}
		e.log.Error("Quantity guarantee not met", "plan_id", plan.ID, "error", shortfall.Error())
	} else {
		e.log.Info("Materialized plan items", "plan_id", plan.ID, "count", len(result))
	}
	return result, nil
}

func (e *QuantityEngine) findExisting(dbc dbctx.Context, planID uuid.UUID, contentID string) (*types.ContentItem, error) {
	existing, err := e.items.GetInPlanByContentID(dbc, planID, contentID)
	if err != nil || existing != nil {
		return existing, err
	}
	return e.items.GetInPlanByOriginID(dbc, planID, contentID)
}

// reuse keeps an already persisted item. Drafts are refreshed from the idea;
// anything further along only gets its associations checked.
func (e *QuantityEngine) reuse(dbc dbctx.Context, plan *types.StrategyPlan, existing, fresh *types.ContentItem) *types.ContentItem {
	if existing.Status != types.ItemDraft {
		if err := e.items.EnsureAssociations(dbc, existing.ID, plan.ID, plan.BrandID); err != nil {
			e.log.Warn("Ensure associations failed", "content_id", existing.ContentID, "error", err)
		}
		return existing
	}
	updated := *existing
	updated.Title = fresh.Title
	updated.Hook = fresh.Hook
	updated.Description = fresh.Description
	if existing.RecoveryMode == types.RecoveryNone {
		updated.ContentName = fresh.ContentName
		updated.Template = fresh.Template
		updated.VideoSource = fresh.VideoSource
		updated.ShotPlan = fresh.ShotPlan
		updated.TextBase = fresh.TextBase
	}
	err := inTx(dbc, e.db, func(sp dbctx.Context) error { return e.items.Save(sp, &updated) })
	if err != nil {
		e.log.Debug("Draft refresh skipped", "content_id", existing.ContentID, "error", err)
		return existing
	}
	return &updated
}

// recover retries one rejected item: first with heightened uniqueness, then
// up the ladder until a row is written.
func (e *QuantityEngine) recover(dbc dbctx.Context, p pendingIdea) (*types.ContentItem, error) {
	cand := *p.item
	err := p.err
	v := dberr.Classify(err)
	if !idOnlyConflict(v) {
		heighten(&cand, randomToken(e.rnd, 6))
		err = inTx(dbc, e.db, func(sp dbctx.Context) error { return e.items.Create(sp, &cand) })
		if err == nil {
			e.log.Info("Recovered item with heightened uniqueness", "content_id", cand.ContentID, "content_name", cand.ContentName)
			return &cand, nil
		}
		v = dberr.Classify(err)
	}
	attempt := AttemptNone
	for attempt < AttemptPlaceholder {
		attempt = nextAttempt(attempt, v)
		applyAttempt(&cand, attempt, v, p.position, randomToken(e.rnd, 8))
		cand.RecoveryMeta = recoveryMeta(attempt, v, err)

		create := e.items.Create
		if attempt == AttemptPlaceholder {
			create = e.items.CreateUnchecked
		}
		err = inTx(dbc, e.db, func(sp dbctx.Context) error { return create(sp, &cand) })
		if err == nil {
			e.log.Warn("Recovered item via ladder",
				"origin_id", cand.OriginID,
				"attempt", int(attempt),
				"mode", cand.RecoveryMode,
			)
			return &cand, nil
		}
		v = dberr.Classify(err)
	}
	return nil, &PersistenceConflict{ContentID: p.item.ContentID, Violation: v}
}

func heighten(item *types.ContentItem, token string) {
	item.ContentName = withSuffix(item.ContentName, " #"+token)
	if item.Description != "" {
		item.Description = fmt.Sprintf("%s [%s]", item.Description, token)
	}
	if item.TextBase != "" {
		item.TextBase = fmt.Sprintf("%s\n#%s", item.TextBase, token)
	}
	item.RecoveryMode = types.RecoveryUnique
}

func (e *QuantityEngine) buildItem(plan *types.StrategyPlan, week, position int, idea types.Idea) *types.ContentItem {
	pillar := idea.Pillar
	if pillar == "" {
		if key, ok := types.ParseIdeaID(idea.ID); ok {
			pillar = key.Pillar
		} else {
			pillar = types.Pillars[(position-1)%len(types.Pillars)]
		}
	}
	id := idea.ID
	if id == "" {
		id = types.IdeaID(plan.Month, plan.BrandKey(), week, position, pillar)
	}
	template := idea.Template
	if template == "" {
		template = types.DefaultTemplate
	}
	name := strings.TrimSpace(idea.Title)
	if name == "" {
		name = fmt.Sprintf("%s W%d-%d", strings.ToUpper(pillar.Code()), week, position)
	}
	day := dayFor(position)

	item := &types.ContentItem{
		PlanID:       plan.ID,
		BrandID:      plan.BrandID,
		ContentID:    id,
		OriginID:     id,
		Week:         week,
		Pillar:       pillar,
		Status:       types.ItemDraft,
		ContentName:  name,
		Title:        idea.Title,
		Hook:         idea.Hook,
		Description:  idea.Description,
		Template:     template,
		VideoSource:  videoSourceFor(template),
		Platform:     platformFor(idea, plan),
		ShotPlan:     datatypes.NewJSONType(DefaultShotPlan(template, name, idea.Hook, idea.Description, idea.NarrativeBeats)),
		TextBase:     strings.Join(idea.NarrativeBeats, "\n"),
		Hashtags:     datatypes.NewJSONType([]string{}),
		DayOfTheWeek: day,
		BatchNumber:  week,
	}
	item.PublishDate, _ = types.PublishDateFor(plan.Month, week, day)
	return item
}

func dayFor(position int) string {
	if position < 1 {
		position = 1
	}
	return types.DayPolicy[(position-1)%len(types.DayPolicy)]
}

func videoSourceFor(t types.Template) string {
	switch t {
	case types.TemplateAvatar, types.TemplateAvatarGreenscreen:
		return types.VideoSourceAvatar
	case types.TemplateNarrationStock:
		return types.VideoSourceStock
	}
	return types.DefaultVideoSource
}

func platformFor(idea types.Idea, plan *types.StrategyPlan) string {
	if idea.Platform != "" {
		return idea.Platform
	}
	for _, p := range plan.Platforms.Data() {
		if p = strings.ToLower(strings.TrimSpace(p)); types.ValidPlatform(p) {
			return p
		}
	}
	return types.DefaultPlatform
}
