package prompts

// Input is a superset of all fields any prompt might need.
// Missing fields render empty strings (templates use missingkey=zero).
type Input struct {
	// Brand
	BrandName  string
	BrandVoice string
	Guardrails string
	Brief      string
	Platforms  string
	Month      string

	// Batch scope
	BatchNumber      int
	TotalBatches     int
	Week             int
	FrequencyPerWeek int

	// Strategist
	PillarsCSV      string
	TemplatesCSV    string
	SeenTitles      string
	RecentItemNames string

	// Creator
	ItemsJSON string
}
