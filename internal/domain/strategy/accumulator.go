package strategy

import (
	"sort"
	"time"
)

// BatchAccumulator is the typed cross-batch state of one phase.
type BatchAccumulator struct {
	ByWeek        map[int]WeekResult `json:"by_week"`
	LastProcessed int                `json:"last_processed"`
}

type WeekResult struct {
	Week        int        `json:"week"`
	BatchID     string     `json:"batch_id,omitempty"`
	Ideas       []Idea     `json:"ideas,omitempty"`
	Returned    int        `json:"returned,omitempty"`
	Processed   int        `json:"processed,omitempty"`
	Failed      int        `json:"failed,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (a *BatchAccumulator) Record(r WeekResult) {
	if a.ByWeek == nil {
		a.ByWeek = map[int]WeekResult{}
	}
	a.ByWeek[r.Week] = r
	if r.Week > a.LastProcessed {
		a.LastProcessed = r.Week
	}
}

func (a BatchAccumulator) Completed(week int) bool {
	r, ok := a.ByWeek[week]
	return ok && r.CompletedAt != nil
}

// Weeks returns the recorded results ordered by week number.
func (a BatchAccumulator) Weeks() []WeekResult {
	out := make([]WeekResult, 0, len(a.ByWeek))
	for _, r := range a.ByWeek {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Week < out[j].Week })
	return out
}

func (a BatchAccumulator) TotalProcessed() int {
	n := 0
	for _, r := range a.ByWeek {
		n += r.Processed
	}
	return n
}

// SeenTitles lists idea titles from every recorded week except skip.
func (a BatchAccumulator) SeenTitles(skip int) []string {
	var out []string
	for _, r := range a.Weeks() {
		if r.Week == skip {
			continue
		}
		for _, idea := range r.Ideas {
			if idea.Title != "" {
				out = append(out, idea.Title)
			}
		}
	}
	return out
}
