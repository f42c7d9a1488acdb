package strategy

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/datatypes"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	"github.com/yungbote/contentplan-backend/internal/platform/dberr"
)

// RecoveryAttempt is a rung of the ladder applied to an item that still
// fails after the heightened uniqueness retry. Mutations are cumulative.
type RecoveryAttempt int

const (
	AttemptNone RecoveryAttempt = iota
	AttemptCoerceEnums
	AttemptRenameIdentity
	AttemptPlaceholder
)

func (a RecoveryAttempt) Mode() string {
	switch a {
	case AttemptCoerceEnums:
		return types.RecoveryCoerced
	case AttemptRenameIdentity:
		return types.RecoveryRenamed
	case AttemptPlaceholder:
		return types.RecoveryPlacehold
	}
	return types.RecoveryNone
}

// attemptFor is the lowest rung able to cure v.
func attemptFor(v *dberr.Violation) RecoveryAttempt {
	if v == nil {
		return AttemptPlaceholder
	}
	switch v.Kind {
	case dberr.KindEnum, dberr.KindLength:
		return AttemptCoerceEnums
	case dberr.KindUnique:
		return AttemptRenameIdentity
	case dberr.KindRequired:
		if v.HasField("content_name") || v.HasField("content_id") {
			return AttemptRenameIdentity
		}
		return AttemptCoerceEnums
	}
	return AttemptPlaceholder
}

// nextAttempt always climbs at least one rung, skipping rungs that cannot
// fix the observed violation.
func nextAttempt(cur RecoveryAttempt, v *dberr.Violation) RecoveryAttempt {
	next := cur + 1
	if want := attemptFor(v); want > next {
		next = want
	}
	if next > AttemptPlaceholder {
		next = AttemptPlaceholder
	}
	return next
}

// idOnlyConflict reports a unique violation on content_id alone. The name is
// fine in that case and survives the rename.
func idOnlyConflict(v *dberr.Violation) bool {
	return v != nil && v.Kind == dberr.KindUnique && v.HasField("content_id") && !v.HasField("content_name")
}

// applyAttempt mutates item for every rung up to and including a.
func applyAttempt(item *types.ContentItem, a RecoveryAttempt, v *dberr.Violation, position int, token string) {
	if a >= AttemptCoerceEnums {
		coerceEnums(item, position)
	}
	if a >= AttemptRenameIdentity {
		renameIdentity(item, token, !idOnlyConflict(v))
	}
	if a >= AttemptPlaceholder {
		placeholderContent(item, token)
	}
	item.RecoveryMode = a.Mode()
}

func coerceEnums(item *types.ContentItem, position int) {
	if !item.Template.Valid() {
		if t, ok := types.ParseTemplate(string(item.Template)); ok {
			item.Template = t
		} else {
			item.Template = types.DefaultTemplate
		}
	}
	if !item.Pillar.Valid() {
		if p, ok := types.ParsePillar(string(item.Pillar)); ok {
			item.Pillar = p
		} else {
			item.Pillar = types.Pillars[(position-1)%len(types.Pillars)]
		}
	}
	if !types.ValidItemStatus(item.Status) {
		item.Status = types.ItemDraft
	}
	if !types.ValidVideoSource(item.VideoSource) {
		item.VideoSource = videoSourceFor(item.Template)
	}
	if !types.ValidDay(item.DayOfTheWeek) {
		item.DayOfTheWeek = dayFor(position)
	}
	if !types.ValidPlatform(item.Platform) {
		item.Platform = types.DefaultPlatform
	}
	if item.Week < 1 {
		item.Week = 1
	}
	if item.Week > types.WeeksPerPlan {
		item.Week = types.WeeksPerPlan
	}
	item.ContentName = truncateRunes(item.ContentName, types.MaxContentNameRunes)
	item.PostDescription = truncateRunes(item.PostDescription, types.MaxPostDescriptionRunes)
	if tags := item.Hashtags.Data(); len(tags) > types.MaxHashtags {
		item.Hashtags = datatypes.NewJSONType(tags[:types.MaxHashtags])
	}
	if !item.ShotPlan.Data().ValidFor(item.Template) {
		item.ShotPlan = datatypes.NewJSONType(DefaultShotPlan(item.Template, item.Title, item.Hook, item.Description, nil))
	}
}

func renameIdentity(item *types.ContentItem, token string, rename bool) {
	if rename {
		item.ContentName = fmt.Sprintf("%s W%d %s", strings.ToUpper(item.Pillar.Code()), item.Week, token)
	}
	if item.OriginID == "" {
		item.OriginID = item.ContentID
	}
	item.ContentID = fmt.Sprintf("%s-r%s", item.OriginID, token)
}

func placeholderContent(item *types.ContentItem, token string) {
	title := fmt.Sprintf("Placeholder %s W%d", item.Pillar, item.Week)
	item.ContentName = fmt.Sprintf("%s %s", title, token)
	item.Title = title
	item.Hook = "Content pending"
	item.Description = "Placeholder created to keep the month's content count."
	item.PostDescription = ""
	item.TextBase = ""
	item.Hashtags = datatypes.NewJSONType([]string{})
	item.ShotPlan = datatypes.NewJSONType(DefaultShotPlan(item.Template, title, "", "", nil))
}

func recoveryMeta(a RecoveryAttempt, v *dberr.Violation, cause error) datatypes.JSON {
	meta := map[string]any{"attempt": int(a), "mode": a.Mode()}
	if v != nil {
		meta["violation"] = string(v.Kind)
		meta["field"] = v.Field
	}
	if cause != nil {
		meta["error"] = cause.Error()
	}
	raw, _ := json.Marshal(meta)
	return datatypes.JSON(raw)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
