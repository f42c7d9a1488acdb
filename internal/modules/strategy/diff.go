package strategy

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
)

// lineChanges counts added and removed lines between two texts.
func lineChanges(before, after string) (added, removed int) {
	if before == after {
		return 0, 0
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)
	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		}
	}
	return added, removed
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

func refinementDiff(before, after *types.ContentItem) types.DiffStats {
	var d types.DiffStats
	d.TextBaseAdded, d.TextBaseRemoved = lineChanges(before.TextBase, after.TextBase)
	d.PostDescriptionAdded, d.PostDescriptionRemoved = lineChanges(before.PostDescription, after.PostDescription)
	d.NameChanged = before.ContentName != after.ContentName
	return d
}
