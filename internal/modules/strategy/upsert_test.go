package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
)

var fixedTime = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func materialized(t *testing.T, h *harness, perWeek int) (*types.StrategyPlan, []*types.ContentItem) {
	t.Helper()
	plan := h.newPlan(t, "Acme Coffee", perWeek)
	plan.WeeklyPlan = datatypes.NewJSONType(monthOfIdeas(plan.Month, plan.BrandKey(), perWeek))
	items, err := h.engine.Materialize(h.dbc(), plan)
	require.NoError(t, err)
	return plan, items
}

func TestUpsert_MatchesByOriginAndPromotes(t *testing.T) {
	h := newHarness(t)
	plan, items := materialized(t, h, 1)
	target := items[0]

	res, err := h.upserter.Upsert(h.dbc(), plan, RefinedItem{
		OriginID:        target.ContentID,
		ContentName:     "Refined name",
		PostDescription: "New caption",
		TextBase:        "Line one\nLine two",
		Hashtags:        []string{"coffee", "#Coffee", "autumn"},
	}, BatchScope{BatchNumber: 1, Week: 1})
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, res.Outcome)

	all, err := h.items.ListByPlan(h.dbc(), plan.ID)
	require.NoError(t, err)
	matches := 0
	for _, it := range all {
		if it.ContentID == target.ContentID {
			matches++
			require.Equal(t, types.ItemInProduction, it.Status)
			require.Equal(t, "Refined name", it.ContentName)
			require.Equal(t, []string{"#coffee", "#autumn"}, it.Hashtags.Data())
			require.NotNil(t, it.RefinedAt)
			diff := it.RefinementDiff.Data()
			require.True(t, diff.NameChanged)
			require.Equal(t, 1, diff.PostDescriptionAdded)
			require.Equal(t, 2, diff.TextBaseAdded)
		}
	}
	require.Equal(t, 1, matches)
	require.Len(t, all, 4)
}

func TestUpsert_PreservesIdentityFields(t *testing.T) {
	h := newHarness(t)
	plan, items := materialized(t, h, 2)
	target := items[1]

	res, err := h.upserter.Upsert(h.dbc(), plan, RefinedItem{
		ContentID:    target.ContentID,
		OriginID:     target.OriginID,
		Week:         4,
		Pillar:       "sales",
		DayOfTheWeek: "sunday",
		ContentName:  "Something else",
	}, BatchScope{BatchNumber: 1, Week: 1})
	require.NoError(t, err)

	got := res.Item
	require.Equal(t, target.ContentID, got.ContentID)
	require.Equal(t, target.OriginID, got.OriginID)
	require.Equal(t, target.Week, got.Week)
	require.Equal(t, target.Pillar, got.Pillar)
	require.Equal(t, target.DayOfTheWeek, got.DayOfTheWeek)
}

func TestUpsert_ResolvesNameConflictOnce(t *testing.T) {
	h := newHarness(t)
	plan, items := materialized(t, h, 2)

	res, err := h.upserter.Upsert(h.dbc(), plan, RefinedItem{
		OriginID:    items[1].ContentID,
		ContentName: items[0].ContentName,
	}, BatchScope{BatchNumber: 1, Week: 1})
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, res.Outcome)
	require.True(t, res.Renamed)
	require.Equal(t, items[0].ContentName+" v1", res.Item.ContentName)
}

func TestUpsert_SkipsWhenRetryAlsoCollides(t *testing.T) {
	h := newHarness(t)
	plan, items := materialized(t, h, 2)
	h.upserter.resolver = NewUniquenessResolver(h.items, 1)
	h.upserter.resolver.now = func() time.Time { return fixedTime }

	// Occupy both the v1 name and the timestamp fallback.
	taken := items[0].ContentName + " v1"
	other := items[2]
	other.ContentName = taken
	require.NoError(t, h.items.Save(h.dbc(), other))
	stamp := items[3]
	stamp.ContentName = items[0].ContentName + " " + fixedTime.UTC().Format("20060102-150405.000000")
	require.NoError(t, h.items.Save(h.dbc(), stamp))

	res, err := h.upserter.Upsert(h.dbc(), plan, RefinedItem{
		OriginID:    items[1].ContentID,
		ContentName: items[0].ContentName,
	}, BatchScope{BatchNumber: 1, Week: 1})
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, res.Outcome)
	require.Equal(t, items[1].ContentName, res.Item.ContentName)

	got, _ := h.items.GetByContentID(h.dbc(), items[1].ContentID)
	require.Equal(t, types.ItemDraft, got.Status)
}

func TestUpsert_CreatesWhenNothingMatches(t *testing.T) {
	h := newHarness(t)
	plan, _ := materialized(t, h, 1)

	res, err := h.upserter.Upsert(h.dbc(), plan, RefinedItem{
		ContentID:   "202610-acme-coffee-w2-09-SAL",
		Week:        2,
		Pillar:      "sales",
		ContentName: "Unplanned extra",
		Template:    "narration_images",
	}, BatchScope{BatchNumber: 2, BatchID: "b2", Week: 2})
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, res.Outcome)
	require.Equal(t, types.ItemInProduction, res.Item.Status)
	require.Equal(t, types.PillarSales, res.Item.Pillar)
	require.Len(t, res.Item.ShotPlan.Data().Beats, 7)

	n, _ := h.items.CountByPlan(h.dbc(), plan.ID)
	require.EqualValues(t, 5, n)
}

func TestUpsert_ShotPlanPrecedence(t *testing.T) {
	h := newHarness(t)
	plan, items := materialized(t, h, 1)
	target := items[0]

	// Structurally invalid refinement plan keeps the stored one.
	bad := &types.ShotPlan{Beats: []types.Beat{{Order: 1, Voiceover: "x"}}}
	res, err := h.upserter.Upsert(h.dbc(), plan, RefinedItem{OriginID: target.ContentID, ShotPlan: bad}, BatchScope{BatchNumber: 1, Week: 1})
	require.NoError(t, err)
	require.Equal(t, target.ShotPlan.Data(), res.Item.ShotPlan.Data())

	good := &types.ShotPlan{Scenes: []types.Scene{{Order: 1, Label: "hook", Script: "Custom"}}}
	res, err = h.upserter.Upsert(h.dbc(), plan, RefinedItem{OriginID: target.ContentID, ShotPlan: good}, BatchScope{BatchNumber: 1, Week: 1})
	require.NoError(t, err)
	require.Equal(t, *good, res.Item.ShotPlan.Data())
}
