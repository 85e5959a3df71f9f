package query

import (
	"maps"

	"github.com/samber/lo"

	"github.com/dmvolsky/persona-telegram-bot/pkg/domain"
)

// Build assembles the request payload for one model call: the two prompt
// blobs as fixed leading context, then the session history filtered to the
// allowed kinds in original order. The inbound message is already the last
// history element, so there is no special case for the current turn.
//
// Pure: identical inputs yield identical payloads, and the returned payload
// shares no mutable state with the session or the params map.
func Build(
	session domain.Session,
	systemPrompt string,
	characterPrompt string,
	allowedKinds domain.KindSet,
	params map[string]any,
) domain.QueryPayload {
	history := lo.Filter(session.History, func(m domain.Message, _ int) bool {
		return allowedKinds.Contains(m.Kind)
	})

	return domain.QueryPayload{
		SystemPrompt:    systemPrompt,
		CharacterPrompt: characterPrompt,
		History:         history,
		ModelParams:     maps.Clone(params),
	}
}
