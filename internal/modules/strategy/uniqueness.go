package strategy

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	strategyrepo "github.com/yungbote/contentplan-backend/internal/data/repos/strategy"
	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
)

const DefaultNameAttemptCeiling = 10

// UniquenessResolver finds a content name that is free within a brand. It
// only reads.
type UniquenessResolver struct {
	items   strategyrepo.ContentItemRepo
	ceiling int
	now     func() time.Time
}

func NewUniquenessResolver(items strategyrepo.ContentItemRepo, ceiling int) *UniquenessResolver {
	if ceiling <= 0 {
		ceiling = DefaultNameAttemptCeiling
	}
	return &UniquenessResolver{items: items, ceiling: ceiling, now: time.Now}
}

// ResolveNameConflict tries "{candidate} v1" through "{candidate} vN" and
// falls back to a timestamp suffix once every numbered name is taken.
func (r *UniquenessResolver) ResolveNameConflict(dbc dbctx.Context, candidate string, brandID uuid.UUID) (string, error) {
	base := strings.TrimSpace(candidate)
	if base == "" {
		base = "Untitled"
	}
	for i := 1; i <= r.ceiling; i++ {
		name := withSuffix(base, fmt.Sprintf(" v%d", i))
		taken, err := r.items.NameExists(dbc, brandID, name)
		if err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
	}
	return withSuffix(base, " "+r.now().UTC().Format("20060102-150405.000000")), nil
}

// withSuffix appends suffix, trimming base so the result fits the column.
func withSuffix(base, suffix string) string {
	limit := types.MaxContentNameRunes - utf8.RuneCountInString(suffix)
	if utf8.RuneCountInString(base) > limit {
		base = strings.TrimSpace(string([]rune(base)[:limit]))
	}
	return base + suffix
}
