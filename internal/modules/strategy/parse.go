package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
)

// StrategistPayload is a decoded strategist response. Week and Ideas hold the
// per-batch shape; WeeklyPlan holds the legacy multi-week shape and the
// assembled month.
type StrategistPayload struct {
	Week         int
	Ideas        []types.Idea
	WeeklyPlan   []types.WeekPlan
	StrategyName string
	Objective    string
	Legacy       bool
}

// IdeasForWeek returns this batch's ideas from either response shape.
func (p StrategistPayload) IdeasForWeek(week int) []types.Idea {
	if !p.Legacy {
		return p.Ideas
	}
	for _, w := range p.WeeklyPlan {
		if w.Week == week {
			return w.Ideas
		}
	}
	// Weeks without numbers are taken positionally.
	if week >= 1 && week <= len(p.WeeklyPlan) && p.WeeklyPlan[week-1].Week == 0 {
		return p.WeeklyPlan[week-1].Ideas
	}
	return nil
}

// stripFences removes markdown code fences and any prose around the outermost
// JSON object.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		start := strings.IndexByte(s, '{')
		end := strings.LastIndexByte(s, '}')
		if start >= 0 && end > start {
			s = s[start : end+1]
		}
	}
	return s
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200]
	}
	return s
}

func decodeObject(phase string, batch int, raw string) (map[string]json.RawMessage, error) {
	body := stripFences(raw)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return nil, &StructuralError{Phase: phase, Batch: batch, Snippet: snippet(raw), Err: err}
	}
	if obj == nil {
		return nil, &StructuralError{Phase: phase, Batch: batch, Snippet: snippet(raw), Err: fmt.Errorf("top-level value is not an object")}
	}
	return obj, nil
}

// ParseStrategistResponse decodes either {week, ideas} or the legacy
// {weekly_plan: [...]} shape.
func ParseStrategistResponse(raw string, batch int) (StrategistPayload, error) {
	obj, err := decodeObject(types.PhaseStrategist, batch, raw)
	if err != nil {
		return StrategistPayload{}, err
	}

	var out StrategistPayload
	out.StrategyName = rawString(obj["strategy_name"])
	out.Objective = firstString(obj, "objective_of_the_month", "objective")

	if ideasRaw, ok := obj["ideas"]; ok {
		out.Week = rawInt(obj["week"])
		ideas, err := decodeIdeas(ideasRaw)
		if err != nil {
			return StrategistPayload{}, &ContractViolation{Phase: types.PhaseStrategist, Batch: batch, MissingKey: "ideas", Detail: err.Error()}
		}
		out.Ideas = ideas
		return out, nil
	}

	weeksRaw, ok := obj["weekly_plan"]
	if !ok {
		return StrategistPayload{}, &ContractViolation{Phase: types.PhaseStrategist, Batch: batch, MissingKey: "ideas"}
	}
	var weeks []map[string]json.RawMessage
	if err := json.Unmarshal(weeksRaw, &weeks); err != nil {
		return StrategistPayload{}, &ContractViolation{Phase: types.PhaseStrategist, Batch: batch, MissingKey: "weekly_plan", Detail: "not an array of weeks"}
	}
	out.Legacy = true
	for _, w := range weeks {
		week := rawInt(w["week_number"])
		if week == 0 {
			week = rawInt(w["week"])
		}
		ideasRaw := w["ideas"]
		if ideasRaw == nil {
			ideasRaw = w["content_pieces"]
		}
		var ideas []types.Idea
		if ideasRaw != nil {
			ideas, err = decodeIdeas(ideasRaw)
			if err != nil {
				return StrategistPayload{}, &ContractViolation{Phase: types.PhaseStrategist, Batch: batch, MissingKey: "ideas", Detail: fmt.Sprintf("week %d: %v", week, err)}
			}
		}
		out.WeeklyPlan = append(out.WeeklyPlan, types.WeekPlan{Week: week, Ideas: ideas})
	}
	return out, nil
}

type wireIdea struct {
	ID                  string          `json:"id"`
	IdeaID              string          `json:"idea_id"`
	Title               string          `json:"title"`
	Hook                string          `json:"hook"`
	Description         string          `json:"description"`
	Platform            string          `json:"platform"`
	Pillar              string          `json:"pillar"`
	Pilar               string          `json:"pilar"`
	Template            string          `json:"template"`
	RecommendedTemplate string          `json:"recommended_template"`
	NarrativeBeats      json.RawMessage `json:"narrative_beats"`
}

// decodeIdeas accepts full idea objects and bare string references.
func decodeIdeas(raw json.RawMessage) ([]types.Idea, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("ideas is not an array")
	}
	out := make([]types.Idea, 0, len(elems))
	for i, el := range elems {
		el = bytes.TrimSpace(el)
		if len(el) > 0 && el[0] == '"' {
			var ref string
			if err := json.Unmarshal(el, &ref); err != nil {
				return nil, fmt.Errorf("idea %d: %v", i, err)
			}
			if strings.TrimSpace(ref) != "" {
				out = append(out, types.Idea{ID: strings.TrimSpace(ref)})
			}
			continue
		}
		var w wireIdea
		if err := json.Unmarshal(el, &w); err != nil {
			return nil, fmt.Errorf("idea %d: %v", i, err)
		}
		out = append(out, w.toIdea())
	}
	return out, nil
}

func (w wireIdea) toIdea() types.Idea {
	idea := types.Idea{
		ID:             strings.TrimSpace(firstNonEmpty(w.ID, w.IdeaID)),
		Title:          strings.TrimSpace(w.Title),
		Hook:           strings.TrimSpace(w.Hook),
		Description:    strings.TrimSpace(w.Description),
		Platform:       strings.ToLower(strings.TrimSpace(w.Platform)),
		NarrativeBeats: decodeBeats(w.NarrativeBeats),
	}
	// Unknown values are kept verbatim so the recovery ladder can see them.
	if raw := firstNonEmpty(w.Pillar, w.Pilar); raw != "" {
		if p, ok := types.ParsePillar(raw); ok {
			idea.Pillar = p
		} else {
			idea.Pillar = types.Pillar(strings.ToLower(strings.TrimSpace(raw)))
		}
	}
	if raw := firstNonEmpty(w.Template, w.RecommendedTemplate); raw != "" {
		if t, ok := types.ParseTemplate(raw); ok {
			idea.Template = t
		} else {
			idea.Template = types.Template(strings.TrimSpace(raw))
		}
	}
	return idea
}

func decodeBeats(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var plain []string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return compact(plain)
	}
	var objs []map[string]any
	if err := json.Unmarshal(raw, &objs); err == nil {
		out := make([]string, 0, len(objs))
		for _, o := range objs {
			for _, k := range []string{"text", "beat", "description", "voiceover"} {
				if s, ok := o[k].(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
					break
				}
			}
		}
		return out
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return compact(strings.Split(single, "\n"))
	}
	return nil
}

// RefinedItem is one entry of a creator response.
type RefinedItem struct {
	ContentID       string          `json:"id"`
	OriginID        string          `json:"origin_id"`
	Week            int             `json:"week"`
	ContentName     string          `json:"content_name"`
	Status          string          `json:"status"`
	Platform        string          `json:"platform"`
	Pillar          string          `json:"pilar"`
	Template        string          `json:"template"`
	VideoSource     string          `json:"video_source"`
	Title           string          `json:"title"`
	Hook            string          `json:"hook"`
	Description     string          `json:"description"`
	PostDescription string          `json:"post_description"`
	TextBase        string          `json:"text_base"`
	Hashtags        []string        `json:"hashtags"`
	DayOfTheWeek    string          `json:"day_of_the_week"`
	ShotPlan        *types.ShotPlan `json:"shotplan,omitempty"`
}

// UnmarshalJSON tolerates string weeks, space separated hashtags and the
// "pillar" spelling.
func (r *RefinedItem) UnmarshalJSON(b []byte) error {
	type alias RefinedItem
	aux := struct {
		*alias
		Week     json.RawMessage `json:"week"`
		Hashtags json.RawMessage `json:"hashtags"`
		PillarEN string          `json:"pillar"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.Week = rawInt(aux.Week)
	r.Hashtags = decodeHashtags(aux.Hashtags)
	if r.Pillar == "" {
		r.Pillar = aux.PillarEN
	}
	return nil
}

func decodeHashtags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\n' })
	}
	return nil
}

// CreatorResponse holds the decodable items and the count of entries that
// could not be decoded.
type CreatorResponse struct {
	Items     []RefinedItem
	Undecoded int
}

// ParseCreatorResponse requires a top-level "items" array.
func ParseCreatorResponse(raw string, batch int) (CreatorResponse, error) {
	obj, err := decodeObject(types.PhaseCreator, batch, raw)
	if err != nil {
		return CreatorResponse{}, err
	}
	itemsRaw, ok := obj["items"]
	if !ok {
		return CreatorResponse{}, &ContractViolation{Phase: types.PhaseCreator, Batch: batch, MissingKey: "items"}
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(itemsRaw, &elems); err != nil {
		return CreatorResponse{}, &ContractViolation{Phase: types.PhaseCreator, Batch: batch, MissingKey: "items", Detail: "not an array"}
	}
	var out CreatorResponse
	for _, el := range elems {
		var item RefinedItem
		if err := json.Unmarshal(el, &item); err != nil {
			out.Undecoded++
			continue
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func rawInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f)
	}
	if s := rawString(raw); s != "" {
		n, _ = strconv.Atoi(strings.TrimPrefix(strings.ToLower(s), "week "))
	}
	return n
}

func firstString(obj map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if s := rawString(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
