package domain

import "time"

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// MessageKind classifies one turn's content. The set of recognized kinds is
// closed; anything else flows through as-is so that future platform kinds
// are preserved in storage and only filtered out at query-build time.
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindMface MessageKind = "mface"
	MessageKindImage MessageKind = "image"
	MessageKindOther MessageKind = "other"
)

// KindSet is a typed allow-list of message kinds.
type KindSet map[MessageKind]struct{}

func KindSetOf(kinds ...string) KindSet {
	s := make(KindSet, len(kinds))
	for _, k := range kinds {
		s[MessageKind(k)] = struct{}{}
	}
	return s
}

func (s KindSet) Contains(k MessageKind) bool {
	_, ok := s[k]
	return ok
}

// Message is one turn in a conversation. SenderName and SenderID attribute
// the turn in group prompts; they are zero for assistant turns.
type Message struct {
	Role       MessageRole `json:"role"`
	Kind       MessageKind `json:"kind"`
	SenderID   int64       `json:"sender_id,omitempty"`
	SenderName string      `json:"sender_name,omitempty"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
}
