package strategy

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Idea is one planned post. It only ever lives embedded in a plan's weekly
// plan or in the pillar distribution table.
type Idea struct {
	ID             string   `json:"id"`
	Title          string   `json:"title,omitempty"`
	Hook           string   `json:"hook,omitempty"`
	Description    string   `json:"description,omitempty"`
	Platform       string   `json:"platform,omitempty"`
	Pillar         Pillar   `json:"pillar,omitempty"`
	Template       Template `json:"template,omitempty"`
	NarrativeBeats []string `json:"narrative_beats,omitempty"`
}

// IsReference reports whether the idea carries nothing but its identity and
// must be resolved against the distribution table before use.
func (i Idea) IsReference() bool {
	return strings.TrimSpace(i.ID) != "" &&
		strings.TrimSpace(i.Title) == "" &&
		strings.TrimSpace(i.Description) == "" &&
		strings.TrimSpace(i.Hook) == ""
}

type WeekPlan struct {
	Week  int    `json:"week"`
	Ideas []Idea `json:"ideas"`
}

// CountIdeas sums the ideas across weeks.
func CountIdeas(weeks []WeekPlan) int {
	n := 0
	for _, w := range weeks {
		n += len(w.Ideas)
	}
	return n
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func BrandSlug(name string) string {
	s := slugify(name)
	if len(s) > 24 {
		s = strings.TrimRight(s[:24], "-")
	}
	if s == "" {
		return "brand"
	}
	return s
}

func slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-"), "-")
}

// BrandKey is the brand segment of idea and content IDs: the name slug plus
// the first bytes of the brand ID, so brands sharing a display name in the
// same month never mint the same content_id.
func BrandKey(name string, id uuid.UUID) string {
	if id == uuid.Nil {
		return BrandSlug(name)
	}
	return BrandSlug(name) + "-" + hex.EncodeToString(id[:3])
}

// IdeaID builds the composite identity {YYYYMM}-{brand}-w{week}-{index}-{CODE}.
// brand is normally a BrandKey; it is slugified but not shortened. index is
// 1-based.
func IdeaID(month, brand string, week, index int, pillar Pillar) string {
	b := slugify(brand)
	if b == "" {
		b = "brand"
	}
	return fmt.Sprintf("%s-%s-w%d-%02d-%s", strings.ReplaceAll(month, "-", ""), b, week, index, pillar.Code())
}

type IdeaKey struct {
	Month  string
	Brand  string
	Week   int
	Index  int
	Pillar Pillar
}

var ideaIDPattern = regexp.MustCompile(`^(\d{6})-([a-z0-9-]+)-w(\d+)-(\d+)-([A-Z]{3})`)

// ParseIdeaID decodes a composite identity. Suffixes added by duplication
// or recovery are ignored.
func ParseIdeaID(id string) (IdeaKey, bool) {
	m := ideaIDPattern.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return IdeaKey{}, false
	}
	week, _ := strconv.Atoi(m[3])
	index, _ := strconv.Atoi(m[4])
	pillar, ok := ParsePillar(m[5])
	if !ok {
		return IdeaKey{}, false
	}
	return IdeaKey{
		Month:  m[1][:4] + "-" + m[1][4:],
		Brand:  m[2],
		Week:   week,
		Index:  index,
		Pillar: pillar,
	}, true
}

// BelongsTo reports whether the key was minted for month and brand key.
func (k IdeaKey) BelongsTo(month, brand string) bool {
	return k.Month == month && k.Brand == slugify(brand)
}
