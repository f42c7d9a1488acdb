package prompts

type PromptName string

const (
	PromptStrategistBatch PromptName = "strategist_batch"
	PromptCreatorBatch    PromptName = "creator_batch"
)
