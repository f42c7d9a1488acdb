package prompts

import (
	"fmt"
	"strings"
)

type Validator func(Input) error

func RequireNonEmpty(field string, get func(Input) string) Validator {
	return func(in Input) error {
		if get == nil {
			return fmt.Errorf("validator for %s: getter is nil", field)
		}
		if strings.TrimSpace(get(in)) == "" {
			return fmt.Errorf("%s required", field)
		}
		return nil
	}
}

func RequirePositive(field string, get func(Input) int) Validator {
	return func(in Input) error {
		if get(in) <= 0 {
			return fmt.Errorf("%s must be positive", field)
		}
		return nil
	}
}

// fieldValidators maps the names used in spec files to validators.
var fieldValidators = map[string]Validator{
	"BrandName":        RequireNonEmpty("BrandName", func(in Input) string { return in.BrandName }),
	"Month":            RequireNonEmpty("Month", func(in Input) string { return in.Month }),
	"ItemsJSON":        RequireNonEmpty("ItemsJSON", func(in Input) string { return in.ItemsJSON }),
	"BatchNumber":      RequirePositive("BatchNumber", func(in Input) int { return in.BatchNumber }),
	"TotalBatches":     RequirePositive("TotalBatches", func(in Input) int { return in.TotalBatches }),
	"Week":             RequirePositive("Week", func(in Input) int { return in.Week }),
	"FrequencyPerWeek": RequirePositive("FrequencyPerWeek", func(in Input) int { return in.FrequencyPerWeek }),
}
