package domain

import "fmt"

// FailureNotice is the only model-failure text a sender ever sees; the
// classified kinds below are for logs.
const FailureNotice = "Could not get a response right now. Please try again later."

// HistoryClearedNotice confirms the /clear command.
const HistoryClearedNotice = "Chat history cleared."

type LLMFailureKind string

const (
	LLMTimeout           LLMFailureKind = "timeout"
	LLMRateLimited       LLMFailureKind = "rate_limited"
	LLMServerError       LLMFailureKind = "server_error"
	LLMMalformedResponse LLMFailureKind = "malformed_response"
	LLMNetworkError      LLMFailureKind = "network_error"
)

// LLMError is a classified model-call failure. StatusCode is zero unless the
// endpoint answered with a non-2xx status.
type LLMError struct {
	Kind       LLMFailureKind
	StatusCode int
	Detail     string
}

func (e *LLMError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm %s (status %d): %s", e.Kind, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("llm %s: %s", e.Kind, e.Detail)
}

// Transient reports whether a retry may succeed: timeouts, network errors,
// rate limits and 5xx responses are worth retrying; malformed responses and
// 4xx (bad request, auth) are deterministic.
func (e *LLMError) Transient() bool {
	switch e.Kind {
	case LLMTimeout, LLMNetworkError, LLMRateLimited:
		return true
	case LLMServerError:
		return e.StatusCode >= 500
	}
	return false
}

// StorageError reports a session load or persist that could not be durably
// completed; the store's in-memory state is rolled back before it is raised.
type StorageError struct {
	Op  string
	Key ConversationKey
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("session storage %s for %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
