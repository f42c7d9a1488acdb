package strategy

import (
	"fmt"
	"strings"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
)

// Normalize makes every week of payload.WeeklyPlan hold exactly
// expectedPerWeek ideas. Short weeks are filled first with one variation of
// each real idea and then with placeholders on random pillars; long weeks are
// truncated keeping the earliest ideas. A payload without exactly
// expectedWeeks weeks is returned unchanged with ErrWeekCountMismatch.
func Normalize(payload StrategistPayload, expectedWeeks, expectedPerWeek int, rnd Random) (StrategistPayload, error) {
	if len(payload.WeeklyPlan) != expectedWeeks {
		return payload, fmt.Errorf("%w: got %d, want %d", ErrWeekCountMismatch, len(payload.WeeklyPlan), expectedWeeks)
	}
	if expectedPerWeek < 0 {
		expectedPerWeek = 0
	}

	out := payload
	out.WeeklyPlan = make([]types.WeekPlan, len(payload.WeeklyPlan))
	for i, w := range payload.WeeklyPlan {
		week := w.Week
		if week == 0 {
			week = i + 1
		}
		out.WeeklyPlan[i] = types.WeekPlan{Week: week, Ideas: normalizeWeek(week, w.Ideas, expectedPerWeek, rnd)}
	}
	return out, nil
}

func normalizeWeek(week int, ideas []types.Idea, expected int, rnd Random) []types.Idea {
	if len(ideas) >= expected {
		return append([]types.Idea(nil), ideas[:expected]...)
	}
	out := make([]types.Idea, 0, expected)
	out = append(out, ideas...)

	for i := 0; len(out) < expected && i < len(ideas); i++ {
		out = append(out, variationOf(ideas[i], len(out)+1))
	}
	for len(out) < expected {
		out = append(out, placeholderIdea(week, len(out)+1, types.Pillars[rnd.Intn(len(types.Pillars))]))
	}
	return out
}

func variationOf(src types.Idea, position int) types.Idea {
	dup := src
	dup.NarrativeBeats = append([]string(nil), src.NarrativeBeats...)
	if dup.ID != "" {
		dup.ID = fmt.Sprintf("%s-v%d", src.ID, position)
	}
	title := strings.TrimSpace(src.Title)
	if title == "" {
		title = "Idea"
	}
	dup.Title = fmt.Sprintf("%s (variation %d)", title, position)
	return dup
}

func placeholderIdea(week, position int, pillar types.Pillar) types.Idea {
	label := strings.ToUpper(string(pillar[:1])) + string(pillar[1:])
	return types.Idea{
		Title:       fmt.Sprintf("%s idea W%d-%d", label, week, position),
		Description: fmt.Sprintf("Placeholder %s idea added to complete week %d.", pillar, week),
		Pillar:      pillar,
		Template:    types.DefaultTemplate,
	}
}

// AssignIdeaIDs gives every idea a composite ID and makes IDs unique across
// the month. Ideas keep a model-supplied ID only when it was minted for this
// month and brand key, and bare references keep theirs so they can still be
// resolved.
func AssignIdeaIDs(month, brandKey string, weeks []types.WeekPlan) []types.WeekPlan {
	seen := map[string]bool{}
	out := make([]types.WeekPlan, len(weeks))
	for wi, w := range weeks {
		ideas := make([]types.Idea, len(w.Ideas))
		for i, idea := range w.Ideas {
			key, ok := types.ParseIdeaID(idea.ID)
			if (!ok || !key.BelongsTo(month, brandKey)) && !idea.IsReference() {
				pillar := idea.Pillar
				if !pillar.Valid() {
					pillar = types.Pillars[i%len(types.Pillars)]
				}
				idea.ID = types.IdeaID(month, brandKey, w.Week, i+1, pillar)
			}
			base := idea.ID
			for n := 2; seen[idea.ID]; n++ {
				idea.ID = fmt.Sprintf("%s-x%d", base, n)
			}
			seen[idea.ID] = true
			ideas[i] = idea
		}
		out[wi] = types.WeekPlan{Week: w.Week, Ideas: ideas}
	}
	return out
}
