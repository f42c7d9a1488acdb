package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	"github.com/yungbote/contentplan-backend/internal/platform/dberr"
)

func TestNextAttempt(t *testing.T) {
	cases := []struct {
		name string
		cur  RecoveryAttempt
		v    *dberr.Violation
		want RecoveryAttempt
	}{
		{"enum starts at coercion", AttemptNone, dberr.New(dberr.KindEnum, "template", ""), AttemptCoerceEnums},
		{"unique skips to rename", AttemptNone, dberr.New(dberr.KindUnique, "brand_id,content_name", ""), AttemptRenameIdentity},
		{"missing name skips to rename", AttemptNone, dberr.New(dberr.KindRequired, "content_name", ""), AttemptRenameIdentity},
		{"unknown goes to placeholder", AttemptNone, dberr.New(dberr.KindUnknown, "", ""), AttemptPlaceholder},
		{"always climbs", AttemptRenameIdentity, dberr.New(dberr.KindEnum, "pillar", ""), AttemptPlaceholder},
		{"never past placeholder", AttemptPlaceholder, nil, AttemptPlaceholder},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, nextAttempt(tc.cur, tc.v))
		})
	}
}

func TestApplyAttempt_IsCumulative(t *testing.T) {
	item := &types.ContentItem{
		ContentID:    "202610-acme-w1-01-CON",
		OriginID:     "202610-acme-w1-01-CON",
		Week:         9,
		Pillar:       "mystery",
		Status:       "archived",
		ContentName:  "Original",
		Template:     "hologram",
		VideoSource:  "vhs",
		Platform:     "myspace",
		DayOfTheWeek: "someday",
		Description:  "Long text",
	}

	applyAttempt(item, AttemptRenameIdentity, dberr.New(dberr.KindUnique, "brand_id,content_name", ""), 2, "tok123")
	require.NoError(t, item.Validate())
	require.Equal(t, types.RecoveryRenamed, item.RecoveryMode)
	require.Equal(t, "202610-acme-w1-01-CON-rtok123", item.ContentID)
	require.Equal(t, "202610-acme-w1-01-CON", item.OriginID)
	require.Equal(t, types.PillarRelationship, item.Pillar)
	require.Equal(t, types.DefaultTemplate, item.Template)
	require.Equal(t, "wednesday", item.DayOfTheWeek)
	require.Equal(t, types.WeeksPerPlan, item.Week)
	require.Contains(t, item.ContentName, "tok123")

	applyAttempt(item, AttemptPlaceholder, nil, 2, "tok456")
	require.Equal(t, types.RecoveryPlacehold, item.RecoveryMode)
	require.Equal(t, "202610-acme-w1-01-CON-rtok456", item.ContentID)
	require.Contains(t, item.ContentName, "Placeholder")
	require.NotEqual(t, "Long text", item.Description)
	require.True(t, item.ShotPlan.Data().ValidFor(item.Template))
}

func TestApplyAttempt_ContentIDConflictKeepsName(t *testing.T) {
	item := &types.ContentItem{
		ContentID:    "202610-acme-w1-01-CON",
		Week:         1,
		Pillar:       types.PillarContent,
		Status:       types.ItemDraft,
		ContentName:  "Morning ritual",
		Template:     types.DefaultTemplate,
		VideoSource:  "avatar",
		Platform:     types.DefaultPlatform,
		DayOfTheWeek: "monday",
	}
	applyAttempt(item, AttemptRenameIdentity, dberr.New(dberr.KindUnique, "content_id", ""), 1, "tok789")
	require.Equal(t, "Morning ritual", item.ContentName)
	require.Equal(t, "202610-acme-w1-01-CON-rtok789", item.ContentID)
	require.Equal(t, "202610-acme-w1-01-CON", item.OriginID)
	require.Equal(t, types.RecoveryRenamed, item.RecoveryMode)
}
