package strategy

import (
	"fmt"
	"strings"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
)

const narrationBeats = 7

// DefaultShotPlan builds the template's fallback structure from idea text:
// hook, development and close scenes for avatar templates, seven
// image/voiceover beats for narration templates.
func DefaultShotPlan(t types.Template, title, hook, description string, beats []string) types.ShotPlan {
	title = strings.TrimSpace(title)
	if hook = strings.TrimSpace(hook); hook == "" {
		hook = title
	}
	if description = strings.TrimSpace(description); description == "" {
		description = title
	}
	if !t.IsNarration() {
		return types.ShotPlan{Scenes: []types.Scene{
			{Order: 1, Label: "hook", Script: hook, Visual: "Close-up, direct to camera", Duration: 5},
			{Order: 2, Label: "development", Script: description, Visual: "Medium shot with on-screen keywords", Duration: 30},
			{Order: 3, Label: "close", Script: fmt.Sprintf("Follow for more on %s.", strings.ToLower(title)), Visual: "Logo and call to action", Duration: 5},
		}}
	}

	out := make([]types.Beat, 0, narrationBeats)
	for i := 0; i < narrationBeats; i++ {
		var voice string
		switch {
		case i < len(beats):
			voice = beats[i]
		case i == 0:
			voice = hook
		case i == narrationBeats-1:
			voice = fmt.Sprintf("Follow for more on %s.", strings.ToLower(title))
		default:
			voice = description
		}
		out = append(out, types.Beat{
			Order:       i + 1,
			ImagePrompt: fmt.Sprintf("Scene %d illustrating: %s", i+1, title),
			Voiceover:   voice,
		})
	}
	return types.ShotPlan{Beats: out}
}
