package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// tpmLimiter applies a process-local tokens-per-minute budget to outgoing
// calls. A limiter built with budget <= 0 admits everything.
type tpmLimiter struct {
	limiter *rate.Limiter
}

func newTPMLimiter(tpm int) *tpmLimiter {
	if tpm <= 0 {
		return &tpmLimiter{}
	}
	return &tpmLimiter{limiter: rate.NewLimiter(rate.Limit(float64(tpm)/60.0), tpm)}
}

// wait blocks until the estimated token cost of messages is admitted or ctx
// is done.
func (l *tpmLimiter) wait(ctx context.Context, messages []Message) error {
	if l.limiter == nil {
		return nil
	}
	n := estimateTokens(messages)
	// WaitN rejects requests larger than the burst.
	if burst := l.limiter.Burst(); n > burst {
		n = burst
	}
	return l.limiter.WaitN(ctx, n)
}

// estimateTokens computes a cheap heuristic for the token cost of a call:
// roughly one token per three characters of prompt text, plus a fixed buffer
// for provider framing and the response.
func estimateTokens(messages []Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	tokens := chars / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
