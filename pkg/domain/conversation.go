package domain

import "fmt"

type ChatType string

const (
	ChatTypeGroup   ChatType = "group"
	ChatTypePrivate ChatType = "private"
)

// ConversationKey uniquely identifies a session. Group chats are keyed by
// the group ID, private chats by the peer user ID.
type ConversationKey struct {
	Type ChatType
	ID   int64
}

// String renders the key in its persisted form, e.g. "group_123".
func (k ConversationKey) String() string {
	return fmt.Sprintf("%s_%d", k.Type, k.ID)
}
