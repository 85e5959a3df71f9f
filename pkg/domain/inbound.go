package domain

import "time"

// Inbound is one message event received from the transport, normalized away
// from platform message objects.
type Inbound struct {
	Key        ConversationKey
	SenderID   int64
	SenderName string
	Kind       MessageKind
	Content    string
	Timestamp  time.Time

	// Mentioned is set when the bot was @-mentioned or replied to in a
	// group chat. Always false for private chats.
	Mentioned bool

	// Command holds the bare command name ("clear") for command-prefixed
	// messages; such messages never enter the session history.
	Command string
}
