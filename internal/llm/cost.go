package llm

// tariff is a per-1000-token cost pair for one model.
type tariff struct {
	InputPer1K  float64
	OutputPer1K float64
}

// modelTariffs is the per-model, per-1000-token pricing table. Unknown
// models fall back to defaultTariff, a conservative (higher) estimate so
// cost accounting never silently under-counts.
var modelTariffs = map[string]tariff{
	"cheap-fast-model":    {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"exp-fast-model":      {InputPer1K: 0.0003, OutputPer1K: 0.0012},
	"standard-fast-model": {InputPer1K: 0.0005, OutputPer1K: 0.0015},
	"premium-model":       {InputPer1K: 0.005, OutputPer1K: 0.015},
	"exp-premium-model":   {InputPer1K: 0.003, OutputPer1K: 0.01},
}

var defaultTariff = tariff{InputPer1K: 0.01, OutputPer1K: 0.03}

// EstimateCost applies the per-model tariff lookup to a token usage.
func EstimateCost(model string, usage TokenUsage) float64 {
	t, ok := modelTariffs[model]
	if !ok {
		t = defaultTariff
	}
	return float64(usage.PromptTokens)/1000*t.InputPer1K + float64(usage.CompletionTokens)/1000*t.OutputPer1K
}
