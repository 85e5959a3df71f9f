package access

import (
	"slices"

	"github.com/dmvolsky/persona-telegram-bot/pkg/config"
	"github.com/dmvolsky/persona-telegram-bot/pkg/domain"
)

// Allow decides whether a sender may use the bot in the given conversation.
// Admins bypass the lists in private chats only. The subject of the list
// check is the group ID for group chats and the sender ID for private chats.
// Deterministic over the snapshot passed in; no side effects.
func Allow(ac config.AccessControl, key domain.ConversationKey, senderID int64) bool {
	if key.Type == domain.ChatTypePrivate && slices.Contains(ac.AdminIDs, senderID) {
		return true
	}

	lists := ac.Group
	subject := key.ID
	if key.Type == domain.ChatTypePrivate {
		lists = ac.User
		subject = senderID
	}

	if slices.Contains(lists.Blacklist, subject) {
		return false
	}
	if lists.EnableWhitelist {
		return slices.Contains(lists.Whitelist, subject)
	}
	return true
}
