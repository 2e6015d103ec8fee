package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	HistoryWindow int `envconfig:"CONVERSATION_HISTORY_WINDOW" default:"10"`
}

type NarrationModelConfig struct {
	Model       string  `envconfig:"NARRATION_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"NARRATION_MAX_TOKENS" default:"1000"`
	Temperature float32 `envconfig:"NARRATION_TEMPERATURE" default:"0.7"`
}

type ReasoningModelConfig struct {
	Model       string  `envconfig:"REASONING_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"REASONING_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"REASONING_TEMPERATURE" default:"0.3"`
}

type ToolsConfig struct {
	FirecrawlAPIKey  string        `envconfig:"FIRECRAWL_API_KEY"`
	FirecrawlBaseURL string        `envconfig:"FIRECRAWL_BASE_URL" default:"https://api.firecrawl.dev"`
	SerpAPIKey       string        `envconfig:"SERPAPI_KEY"`
	SerpBaseURL      string        `envconfig:"SERPAPI_BASE_URL" default:"https://serpapi.com"`
	CategoryTreePath string        `envconfig:"CATEGORY_TREE_PATH"`
	RequestTimeout   time.Duration `envconfig:"TOOLS_REQUEST_TIMEOUT" default:"60s"`
	RatePerSecond    float64       `envconfig:"TOOLS_RATE_PER_SECOND" default:"2"`
	RateBurst        int           `envconfig:"TOOLS_RATE_BURST" default:"4"`
	CacheTTL         time.Duration `envconfig:"TOOLS_CACHE_TTL" default:"1h"`
}
