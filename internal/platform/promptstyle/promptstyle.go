package promptstyle

import "strings"

const marker = "CONTENTPLAN_PROMPT_STYLE_V1"

const (
	ModeJSON = "json"
	ModeText = "text"
)

// ApplySystem prepends the shared output-discipline block to a system prompt.
// Applying it twice is a no-op.
func ApplySystem(system string, mode string) string {
	base := strings.TrimSpace(system)
	if base == "" {
		return base
	}
	if strings.Contains(base, marker) {
		return base
	}
	mode = strings.ToLower(strings.TrimSpace(mode))

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\nFollow the system and user instructions precisely.")
	b.WriteString("\nUse the brand brief, voice and guardrails as grounding; do not invent products, offers or claims.")
	b.WriteString("\nNever reuse a title listed as already planned.")
	if mode == ModeJSON {
		b.WriteString("\nReturn a single JSON object in the requested shape. No markdown fences, no commentary, no extra keys.")
	} else {
		b.WriteString("\nBe concise and structured.")
	}
	b.WriteString("\n---\n")
	b.WriteString(base)
	return strings.TrimSpace(b.String())
}
