package strategy

// ShotPlan describes how an item is produced. Avatar templates use Scenes,
// narration templates use Beats.
type ShotPlan struct {
	Scenes []Scene `json:"scenes,omitempty"`
	Beats  []Beat  `json:"beats,omitempty"`
}

type Scene struct {
	Order    int    `json:"order"`
	Label    string `json:"label"`
	Script   string `json:"script"`
	Visual   string `json:"visual,omitempty"`
	Duration int    `json:"duration_seconds,omitempty"`
}

type Beat struct {
	Order       int    `json:"order"`
	ImagePrompt string `json:"image_prompt"`
	Voiceover   string `json:"voiceover"`
}

func (s ShotPlan) Empty() bool {
	return len(s.Scenes) == 0 && len(s.Beats) == 0
}

// ValidFor reports whether the plan has the structure template needs and
// every entry carries its required text.
func (s ShotPlan) ValidFor(t Template) bool {
	if t.IsNarration() {
		if len(s.Beats) == 0 {
			return false
		}
		for _, b := range s.Beats {
			if b.Voiceover == "" && b.ImagePrompt == "" {
				return false
			}
		}
		return true
	}
	if len(s.Scenes) == 0 {
		return false
	}
	for _, sc := range s.Scenes {
		if sc.Script == "" {
			return false
		}
	}
	return true
}
