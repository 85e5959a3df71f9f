package llm

import "github.com/dmvolsky/persona-telegram-bot/pkg/domain"

type outcome int

const (
	outcomeRetry outcome = iota
	outcomeGiveUp
)

// attempt is the retry state for one Send call, advanced by next after every
// failed attempt. Kept free of I/O so the policy is testable without a
// network: maxRetries transient failures still allow a retry (for a total of
// maxRetries+1 attempts); a non-transient failure gives up immediately.
type attempt struct {
	failures int
	max      int
	lastErr  *domain.LLMError
}

func newAttempt(maxRetries int) attempt {
	return attempt{max: maxRetries}
}

func (a attempt) next(err *domain.LLMError) (attempt, outcome) {
	a.failures++
	a.lastErr = err
	if !err.Transient() || a.failures > a.max {
		return a, outcomeGiveUp
	}
	return a, outcomeRetry
}
