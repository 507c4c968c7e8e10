package models

// Usage represents resource consumption reported by the step backend.
type Usage struct {
	// InputTokens is the number of prompt tokens consumed.
	InputTokens int64 `json:"input_tokens"`
	// OutputTokens is the number of completion tokens produced.
	OutputTokens int64 `json:"output_tokens"`
	// CacheTokens is the number of tokens served from prompt cache.
	CacheTokens int64 `json:"cache_tokens"`
	// Cost is the estimated cost in dollars.
	Cost float64 `json:"cost"`
}

// Add accumulates another usage record into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheTokens += other.CacheTokens
	u.Cost += other.Cost
}

// TotalTokens returns the sum of input, output, and cache tokens.
func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheTokens
}
