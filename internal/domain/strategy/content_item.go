package strategy

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/contentplan-backend/internal/platform/dberr"
)

const (
	MaxContentNameRunes     = 200
	MaxPostDescriptionRunes = 2200
	MaxHashtags             = 30
)

const (
	RecoveryNone      = ""
	RecoveryUnique    = "heightened_uniqueness"
	RecoveryCoerced   = "coerced_enums"
	RecoveryRenamed   = "renamed_identity"
	RecoveryPlacehold = "nuclear_placeholder"
)

// ContentItem is the durable production unit spawned from an Idea.
type ContentItem struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"row_id"`
	PlanID  uuid.UUID `gorm:"type:uuid;not null;index" json:"plan_id"`
	BrandID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_content_item_brand_name,priority:1" json:"brand_id"`

	ContentID   string `gorm:"column:content_id;not null;uniqueIndex" json:"id"`
	OriginID    string `gorm:"column:origin_id;not null;index" json:"origin_id"`
	Week        int    `gorm:"column:week;not null;index" json:"week"`
	Pillar      Pillar `gorm:"column:pillar;not null;index" json:"pilar"`
	Status      string `gorm:"column:status;not null;index" json:"status"`
	ContentName string `gorm:"column:content_name;not null;uniqueIndex:idx_content_item_brand_name,priority:2" json:"content_name"`

	Title       string   `gorm:"column:title" json:"title,omitempty"`
	Hook        string   `gorm:"column:hook" json:"hook,omitempty"`
	Description string   `gorm:"column:description" json:"description,omitempty"`
	Template    Template `gorm:"column:template;not null" json:"template"`
	VideoSource string   `gorm:"column:video_source;not null" json:"video_source"`
	Platform    string   `gorm:"column:platform;not null" json:"platform"`

	ShotPlan        datatypes.JSONType[ShotPlan] `gorm:"column:shot_plan" json:"shotplan"`
	PostDescription string                       `gorm:"column:post_description" json:"post_description,omitempty"`
	TextBase        string                       `gorm:"column:text_base" json:"text_base,omitempty"`
	Hashtags        datatypes.JSONType[[]string] `gorm:"column:hashtags" json:"hashtags"`

	DayOfTheWeek string     `gorm:"column:day_of_the_week;not null" json:"day_of_the_week"`
	PublishDate  *time.Time `gorm:"column:publish_date;index" json:"publish_date,omitempty"`

	BatchNumber    int                           `gorm:"column:batch_number;not null;default:0" json:"batch_number,omitempty"`
	RecoveryMode   string                        `gorm:"column:recovery_mode" json:"recovery_mode,omitempty"`
	RecoveryMeta   datatypes.JSON                `gorm:"column:recovery_meta" json:"recovery_meta,omitempty"`
	RefinementDiff datatypes.JSONType[DiffStats] `gorm:"column:refinement_diff" json:"refinement_diff"`
	RefinedAt      *time.Time                    `gorm:"column:refined_at" json:"refined_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ContentItem) TableName() string { return "content_item" }

func (c *ContentItem) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = ItemDraft
	}
	return nil
}

// DiffStats counts line changes introduced by the last refinement.
type DiffStats struct {
	TextBaseAdded          int  `json:"text_base_added"`
	TextBaseRemoved        int  `json:"text_base_removed"`
	PostDescriptionAdded   int  `json:"post_description_added"`
	PostDescriptionRemoved int  `json:"post_description_removed"`
	NameChanged            bool `json:"name_changed"`
}

// Validate applies the model rules enforced before any write. The first
// failing rule is returned as a *dberr.Violation.
func (c *ContentItem) Validate() error {
	switch {
	case c.ContentID == "":
		return dberr.New(dberr.KindRequired, "content_id", "content_id is required")
	case c.ContentName == "":
		return dberr.New(dberr.KindRequired, "content_name", "content_name is required")
	case utf8.RuneCountInString(c.ContentName) > MaxContentNameRunes:
		return dberr.New(dberr.KindLength, "content_name", fmt.Sprintf("longer than %d", MaxContentNameRunes))
	case !c.Template.Valid():
		return dberr.New(dberr.KindEnum, "template", fmt.Sprintf("unknown template %q", c.Template))
	case !c.Pillar.Valid():
		return dberr.New(dberr.KindEnum, "pillar", fmt.Sprintf("unknown pillar %q", c.Pillar))
	case !ValidItemStatus(c.Status):
		return dberr.New(dberr.KindEnum, "status", fmt.Sprintf("unknown status %q", c.Status))
	case !ValidVideoSource(c.VideoSource):
		return dberr.New(dberr.KindEnum, "video_source", fmt.Sprintf("unknown video source %q", c.VideoSource))
	case !ValidDay(c.DayOfTheWeek):
		return dberr.New(dberr.KindEnum, "day_of_the_week", fmt.Sprintf("unknown day %q", c.DayOfTheWeek))
	case c.Week < 1 || c.Week > WeeksPerPlan:
		return dberr.New(dberr.KindEnum, "week", fmt.Sprintf("week %d out of range", c.Week))
	case !ValidPlatform(c.Platform):
		return dberr.New(dberr.KindEnum, "platform", fmt.Sprintf("unknown platform %q", c.Platform))
	case utf8.RuneCountInString(c.PostDescription) > MaxPostDescriptionRunes:
		return dberr.New(dberr.KindLength, "post_description", fmt.Sprintf("longer than %d", MaxPostDescriptionRunes))
	case len(c.Hashtags.Data()) > MaxHashtags:
		return dberr.New(dberr.KindLength, "hashtags", fmt.Sprintf("more than %d hashtags", MaxHashtags))
	}
	return nil
}

// PublishDateFor resolves a weekday inside week 1..4 of month (YYYY-MM).
// Week n starts on day 1+7(n-1); the first matching weekday on or after
// that start is returned.
func PublishDateFor(month string, week int, day string) (*time.Time, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, fmt.Errorf("invalid month %q: %w", month, err)
	}
	if week < 1 || week > WeeksPerPlan {
		return nil, fmt.Errorf("week %d out of range", week)
	}
	target := -1
	for i, d := range []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"} {
		if d == day {
			target = i
		}
	}
	if target < 0 {
		return nil, fmt.Errorf("unknown day %q", day)
	}
	t := start.AddDate(0, 0, 7*(week-1))
	for int(t.Weekday()) != target {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}
