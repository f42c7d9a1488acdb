package strategy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
)

func TestParseStrategistResponse_BareShape(t *testing.T) {
	raw := "Here you go:\n```json\n{\"week\": 2, \"ideas\": [{\"title\": \"Latte art\", \"pilar\": \"ventas\", \"template\": \"green screen\", \"narrative_beats\": [\"a\", \" \", \"b\"]}, \"202610-acme-w1-01-CON\"]}\n```"
	payload, err := ParseStrategistResponse(raw, 2)
	require.NoError(t, err)
	require.False(t, payload.Legacy)
	require.Equal(t, 2, payload.Week)

	ideas := payload.IdeasForWeek(2)
	require.Len(t, ideas, 2)
	require.Equal(t, types.PillarSales, ideas[0].Pillar)
	require.Equal(t, types.TemplateAvatarGreenscreen, ideas[0].Template)
	require.Equal(t, []string{"a", "b"}, ideas[0].NarrativeBeats)
	require.True(t, ideas[1].IsReference())
}

func TestParseStrategistResponse_LegacyShape(t *testing.T) {
	raw := `{"strategy_name": "Autumn", "objective_of_the_month": "Awareness", "weekly_plan": [
		{"week_number": 1, "content_pieces": [{"title": "One"}]},
		{"week": "2", "ideas": [{"title": "Two"}, {"title": "Three"}]}
	]}`
	payload, err := ParseStrategistResponse(raw, 2)
	require.NoError(t, err)
	require.True(t, payload.Legacy)
	require.Equal(t, "Autumn", payload.StrategyName)
	require.Equal(t, "Awareness", payload.Objective)
	require.Len(t, payload.IdeasForWeek(1), 1)
	require.Len(t, payload.IdeasForWeek(2), 2)
	require.Empty(t, payload.IdeasForWeek(3))
}

func TestParseStrategistResponse_ErrorClasses(t *testing.T) {
	_, err := ParseStrategistResponse("I could not produce a plan this time.", 1)
	var se *StructuralError
	require.True(t, errors.As(err, &se), "got %v", err)
	require.True(t, IsFatal(err))

	_, err = ParseStrategistResponse(`{"plan": []}`, 1)
	var cv *ContractViolation
	require.True(t, errors.As(err, &cv), "got %v", err)
	require.Equal(t, "ideas", cv.MissingKey)
	require.True(t, IsFatal(err))
}

func TestParseCreatorResponse(t *testing.T) {
	raw := `{"items": [
		{"id": "a", "origin_id": "a", "week": "3", "pillar": "sales", "hashtags": "#one two,three"},
		"not an object"
	]}`
	resp, err := ParseCreatorResponse(raw, 3)
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	require.Equal(t, 1, resp.Undecoded)
	it := resp.Items[0]
	require.Equal(t, 3, it.Week)
	require.Equal(t, "sales", it.Pillar)
	require.Equal(t, []string{"#one", "two", "three"}, it.Hashtags)
}

func TestParseCreatorResponse_MissingItemsIsContractViolation(t *testing.T) {
	_, err := ParseCreatorResponse(`{"wrong_key": "value"}`, 1)
	var cv *ContractViolation
	require.True(t, errors.As(err, &cv))
	require.Contains(t, err.Error(), `"items"`)

	_, err = ParseCreatorResponse(`{"items": `, 1)
	var se *StructuralError
	require.True(t, errors.As(err, &se))
}
