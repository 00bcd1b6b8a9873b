// Package ratelimit provides per-tool token bucket limits for MCP tools.
package ratelimit

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ToolLimiters maps tool names to their token buckets.
type ToolLimiters map[string]*rate.Limiter

// PerMinute returns a limiter that refills n tokens per minute and starts
// with a full burst.
func PerMinute(n float64, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(n/60), burst)
}

// NewToolLimiters creates the default set of per-tool rate limiters.
// Generation is the expensive call and gets the tightest budget.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"lifesim_generate":   PerMinute(6, 2),
		"lifesim_validate":   PerMinute(30, 5),
		"lifesim_archetypes": PerMinute(60, 10),
	}
}

// CheckLimit takes one token for toolName. Tools without a configured
// limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	return checkAt(limiters, toolName, time.Now())
}

func checkAt(limiters ToolLimiters, toolName string, now time.Time) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if limiter.AllowN(now, 1) {
		return nil
	}

	wait := time.Duration(float64(time.Second) / float64(limiter.Limit()))
	return fmt.Errorf("rate limit exceeded for %s, retry in %s", toolName, wait.Round(time.Second))
}
