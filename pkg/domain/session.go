package domain

// Session is a value snapshot of one conversation's bounded history. The
// session store owns the mutable state; snapshots handed out never alias it.
type Session struct {
	Key        ConversationKey
	History    []Message
	MaxHistory int
}
