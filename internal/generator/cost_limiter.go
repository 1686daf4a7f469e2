package generator

import (
	"sync"
	"time"
)

const (
	// GPT-4o mini pricing (as of Dec 2024)
	// https://openai.com/api/pricing/
	InputTokenCostPer1M  = 0.150 // $0.150 per 1M input tokens
	OutputTokenCostPer1M = 0.600 // $0.600 per 1M output tokens
)

// CostLimiter tracks LLM API spending and enforces a daily budget. This
// is the kill switch on top of per-identity rate limiting: once the day's
// budget is gone, no more LLM calls go out regardless of who asks.
type CostLimiter struct {
	mu       sync.Mutex
	budget   float64 // daily budget in USD
	spent    float64 // amount spent in the current day
	dayStart time.Time

	// now is injectable for tests
	now func() time.Time
}

// NewCostLimiter creates a cost limiter with the specified daily budget
func NewCostLimiter(dailyBudget float64) *CostLimiter {
	return &CostLimiter{
		budget: dailyBudget,
		now:    time.Now,
	}
}

// AllowRequest checks whether a request with the given estimated cost
// fits the remaining daily budget, and reserves it if so
func (cl *CostLimiter) AllowRequest(cost float64) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cl.rollWindow()

	if cl.spent+cost > cl.budget {
		return false
	}

	cl.spent += cost
	return true
}

// GetSpent returns the amount spent so far today
func (cl *CostLimiter) GetSpent() float64 {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.rollWindow()
	return cl.spent
}

// GetRemaining returns the remaining budget for today
func (cl *CostLimiter) GetRemaining() float64 {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.rollWindow()
	return cl.budget - cl.spent
}

// Reset clears the spending counter
func (cl *CostLimiter) Reset() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.spent = 0
	cl.dayStart = cl.now()
}

// rollWindow zeroes the counter when the UTC day changes.
// Caller must hold cl.mu.
func (cl *CostLimiter) rollWindow() {
	now := cl.now().UTC()
	if cl.dayStart.IsZero() || now.YearDay() != cl.dayStart.YearDay() || now.Year() != cl.dayStart.Year() {
		cl.dayStart = now
		cl.spent = 0
	}
}

// EstimateTokenCost calculates the estimated cost for a token count,
// based on GPT-4o mini pricing
func (cl *CostLimiter) EstimateTokenCost(inputTokens, outputTokens int) float64 {
	inputCost := float64(inputTokens) * InputTokenCostPer1M / 1_000_000
	outputCost := float64(outputTokens) * OutputTokenCostPer1M / 1_000_000
	return inputCost + outputCost
}
