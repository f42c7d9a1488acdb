package strategy

import "strings"

const (
	PlanPending    = "pending"
	PlanProcessing = "processing"
	PlanCompleted  = "completed"
	PlanFailed     = "failed"
)

const (
	PhaseStrategist = "strategist"
	PhaseCreator    = "creator"
)

const (
	ItemDraft        = "draft"
	ItemInProgress   = "in_progress"
	ItemInProduction = "in_production"
)

const WeeksPerPlan = 4

type Pillar string

const (
	PillarContent       Pillar = "content"
	PillarRelationship  Pillar = "relationship"
	PillarEntertainment Pillar = "entertainment"
	PillarAdvertising   Pillar = "advertising"
	PillarSales         Pillar = "sales"
)

// Pillars is the fixed rotation order.
var Pillars = []Pillar{PillarContent, PillarRelationship, PillarEntertainment, PillarAdvertising, PillarSales}

var pillarCodes = map[Pillar]string{
	PillarContent:       "CON",
	PillarRelationship:  "REL",
	PillarEntertainment: "ENT",
	PillarAdvertising:   "ADV",
	PillarSales:         "SAL",
}

var pillarAliases = map[string]Pillar{
	"content":         PillarContent,
	"contenido":       PillarContent,
	"educational":     PillarContent,
	"relationship":    PillarRelationship,
	"relacion":        PillarRelationship,
	"relación":        PillarRelationship,
	"community":       PillarRelationship,
	"entertainment":   PillarEntertainment,
	"entretenimiento": PillarEntertainment,
	"advertising":     PillarAdvertising,
	"publicidad":      PillarAdvertising,
	"sales":           PillarSales,
	"ventas":          PillarSales,
}

func (p Pillar) Valid() bool {
	_, ok := pillarCodes[p]
	return ok
}

func (p Pillar) Code() string {
	if c, ok := pillarCodes[p]; ok {
		return c
	}
	return "GEN"
}

// ParsePillar accepts names, aliases and three-letter codes. The second
// return is false when the input matched nothing.
func ParsePillar(raw string) (Pillar, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if p, ok := pillarAliases[s]; ok {
		return p, true
	}
	for p, code := range pillarCodes {
		if strings.EqualFold(code, s) {
			return p, true
		}
	}
	return PillarContent, false
}

type Template string

const (
	TemplateAvatar            Template = "avatar"
	TemplateAvatarGreenscreen Template = "avatar_greenscreen"
	TemplateNarrationImages   Template = "narration_images"
	TemplateNarrationStock    Template = "narration_stock"

	DefaultTemplate = TemplateAvatar
)

func (t Template) Valid() bool {
	switch t {
	case TemplateAvatar, TemplateAvatarGreenscreen, TemplateNarrationImages, TemplateNarrationStock:
		return true
	}
	return false
}

// IsNarration reports whether the template is narrated over images/stock
// footage rather than presented by an avatar.
func (t Template) IsNarration() bool {
	return t == TemplateNarrationImages || t == TemplateNarrationStock
}

func ParseTemplate(raw string) (Template, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	t := Template(s)
	if t.Valid() {
		return t, true
	}
	switch {
	case strings.Contains(s, "green"):
		return TemplateAvatarGreenscreen, true
	case strings.Contains(s, "stock"):
		return TemplateNarrationStock, true
	case strings.Contains(s, "narrat"), strings.Contains(s, "image"), strings.Contains(s, "slide"):
		return TemplateNarrationImages, true
	case strings.Contains(s, "avatar"), strings.Contains(s, "talking"):
		return TemplateAvatar, true
	}
	return DefaultTemplate, false
}

const (
	VideoSourceAvatar      = "avatar"
	VideoSourceStock       = "stock"
	VideoSourceAIGenerated = "ai_generated"
	VideoSourceUserUpload  = "user_upload"

	DefaultVideoSource = VideoSourceAIGenerated
)

func ValidVideoSource(s string) bool {
	switch s {
	case VideoSourceAvatar, VideoSourceStock, VideoSourceAIGenerated, VideoSourceUserUpload:
		return true
	}
	return false
}

var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// DayPolicy is the order days are handed out to ideas within a week.
var DayPolicy = []string{"monday", "wednesday", "friday", "tuesday", "thursday", "saturday", "sunday"}

func ValidDay(s string) bool {
	for _, d := range Weekdays {
		if d == s {
			return true
		}
	}
	return false
}

var Platforms = []string{"instagram", "tiktok", "youtube", "linkedin", "facebook"}

const DefaultPlatform = "instagram"

func ValidPlatform(s string) bool {
	for _, p := range Platforms {
		if p == s {
			return true
		}
	}
	return false
}

func ValidItemStatus(s string) bool {
	return s == ItemDraft || s == ItemInProgress || s == ItemInProduction
}
