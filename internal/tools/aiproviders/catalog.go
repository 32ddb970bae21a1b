package aiproviders

// ModelInfo describes one hosted model's cost and limits.
type ModelInfo struct {
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	CostPerToken  float64  `json:"cost_per_token"`
	Capabilities  []string `json:"capabilities"`
	ContextWindow int      `json:"context_window"`
	MaxOutput     int      `json:"max_output"`
}

// Task capability tags used by model selection.
const (
	CapCoding        = "coding"
	CapAnalysis      = "analysis"
	CapReasoning     = "reasoning"
	CapConversation  = "conversation"
	CapGeneral       = "general"
	CapMultimodal    = "multimodal"
	CapCostEfficient = "cost_efficient"
	CapLongContext   = "long_context"
)

// defaultModels maps a provider to the model used when a request names
// none.
var defaultModels = map[string]string{
	ProviderClaude: "claude-3-5-sonnet-20241022",
	ProviderGPT:    "gpt-4o",
	ProviderGemini: "gemini-pro",
}

// catalog lists every known provider-model pair with its pricing and
// capability tags.
var catalog = []ModelInfo{
	{
		Provider:      ProviderClaude,
		Model:         "claude-3-5-sonnet-20241022",
		CostPerToken:  0.000015,
		Capabilities:  []string{CapCoding, CapAnalysis, CapReasoning},
		ContextWindow: 200000,
		MaxOutput:     4096,
	},
	{
		Provider:      ProviderClaude,
		Model:         "claude-3-haiku-20240307",
		CostPerToken:  0.00000025,
		Capabilities:  []string{CapCostEfficient, CapConversation},
		ContextWindow: 200000,
		MaxOutput:     4096,
	},
	{
		Provider:      ProviderGPT,
		Model:         "gpt-4o",
		CostPerToken:  0.00003,
		Capabilities:  []string{CapConversation, CapGeneral, CapMultimodal},
		ContextWindow: 128000,
		MaxOutput:     4096,
	},
	{
		Provider:      ProviderGPT,
		Model:         "gpt-4o-mini",
		CostPerToken:  0.000015,
		Capabilities:  []string{CapCostEfficient, CapConversation},
		ContextWindow: 128000,
		MaxOutput:     16384,
	},
	{
		Provider:      ProviderGemini,
		Model:         "gemini-pro",
		CostPerToken:  0.000001,
		Capabilities:  []string{CapCostEfficient, CapMultimodal, CapLongContext},
		ContextWindow: 1000000,
		MaxOutput:     8192,
	},
	{
		Provider:      ProviderGemini,
		Model:         "gemini-pro-vision",
		CostPerToken:  0.000002,
		Capabilities:  []string{CapMultimodal, CapAnalysis},
		ContextWindow: 30720,
		MaxOutput:     2048,
	},
}

func hasCapability(info ModelInfo, capability string) bool {
	for _, c := range info.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}
