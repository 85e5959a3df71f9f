package domain

// Response is an outbound reply addressed to one conversation.
type Response struct {
	Key  ConversationKey
	Text string
}
