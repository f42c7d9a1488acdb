package strategy

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
)

func draftItem(plan *types.StrategyPlan, contentID, name string) *types.ContentItem {
	return &types.ContentItem{
		PlanID:       plan.ID,
		BrandID:      plan.BrandID,
		ContentID:    contentID,
		OriginID:     contentID,
		Week:         1,
		Pillar:       types.PillarContent,
		Status:       types.ItemDraft,
		ContentName:  name,
		Template:     types.TemplateAvatar,
		VideoSource:  types.VideoSourceAvatar,
		Platform:     types.DefaultPlatform,
		DayOfTheWeek: "monday",
	}
}

func TestResolveNameConflict_NumberedThenTimestamp(t *testing.T) {
	h := newHarness(t)
	plan := h.newPlan(t, "Acme", 1)

	r := NewUniquenessResolver(h.items, 2)
	r.now = func() time.Time { return time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC) }

	name, err := r.ResolveNameConflict(h.dbc(), "Brew guide", plan.BrandID)
	require.NoError(t, err)
	require.Equal(t, "Brew guide v1", name)

	require.NoError(t, h.items.Create(h.dbc(), draftItem(plan, "c1", "Brew guide v1")))
	require.NoError(t, h.items.Create(h.dbc(), draftItem(plan, "c2", "Brew guide v2")))

	name, err = r.ResolveNameConflict(h.dbc(), "Brew guide", plan.BrandID)
	require.NoError(t, err)
	require.Equal(t, "Brew guide 20261016-093000.000000", name)

	// Other brands do not collide.
	other := h.newPlan(t, "Other", 1)
	name, _ = r.ResolveNameConflict(h.dbc(), "Brew guide", other.BrandID)
	require.Equal(t, "Brew guide v1", name)
}

func TestResolveNameConflict_FitsColumn(t *testing.T) {
	h := newHarness(t)
	plan := h.newPlan(t, "Acme", 1)
	name, err := h.resolver.ResolveNameConflict(h.dbc(), strings.Repeat("x", 300), plan.BrandID)
	require.NoError(t, err)
	require.LessOrEqual(t, len([]rune(name)), types.MaxContentNameRunes)
	require.True(t, strings.HasSuffix(name, " v1"))
}
