package backend

import (
	"strings"

	"github.com/rkoval/flume/pkg/models"
)

// ModelPricing contains pricing per 1M tokens for a model.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// defaultModelPricing contains pricing for known Claude models.
var defaultModelPricing = map[string]ModelPricing{
	"claude-opus-4-1-20250805":   {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"claude-sonnet-4-20250514":   {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-7-sonnet-20250219": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-5-haiku-20241022":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
}

// estimateCost returns the dollar cost of a call based on known model
// pricing. Unknown models cost zero rather than guessing. The model name
// is matched by substring so Bedrock inference profile IDs resolve too.
func estimateCost(model string, usage models.Usage) float64 {
	for name, pricing := range defaultModelPricing {
		if strings.Contains(model, name) {
			return float64(usage.InputTokens)/1_000_000*pricing.InputPerMillion +
				float64(usage.OutputTokens)/1_000_000*pricing.OutputPerMillion
		}
	}
	return 0
}
