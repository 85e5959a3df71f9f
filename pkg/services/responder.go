package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/dmvolsky/persona-telegram-bot/pkg/access"
	"github.com/dmvolsky/persona-telegram-bot/pkg/config"
	"github.com/dmvolsky/persona-telegram-bot/pkg/domain"
	"github.com/dmvolsky/persona-telegram-bot/pkg/logger"
	"github.com/dmvolsky/persona-telegram-bot/pkg/prompt"
	"github.com/dmvolsky/persona-telegram-bot/pkg/query"
)

type ConfigProvider interface {
	Snapshot() *config.Snapshot
}

type SessionStore interface {
	Load(ctx context.Context, key domain.ConversationKey) (domain.Session, error)
	Append(ctx context.Context, key domain.ConversationKey, msg domain.Message) (domain.Session, error)
	ReplaceHistory(ctx context.Context, key domain.ConversationKey, msgs []domain.Message) (domain.Session, error)
}

type PromptSource interface {
	SystemPrompt(qb config.QueryBuild, chatType domain.ChatType, now time.Time) (string, error)
	CharacterPrompt(qb config.QueryBuild) (string, error)
	Character(qb config.QueryBuild) (prompt.Character, error)
}

type LLMClient interface {
	Send(ctx context.Context, cfg config.LLMAPI, payload domain.QueryPayload) (string, error)
}

// responder runs the per-message state machine: gate, kind filter, session
// load/append, query build, model call, session update, reply. Each step is
// terminal on its failure branch; denied or unsupported messages exit
// silently and a failed model call costs only this one exchange.
type responder struct {
	cfg        ConfigProvider
	sessions   SessionStore
	prompts    PromptSource
	llm        LLMClient
	responseCh chan<- domain.Response
	now        func() time.Time
}

func NewResponder(
	cfg ConfigProvider,
	sessions SessionStore,
	prompts PromptSource,
	llm LLMClient,
	responseCh chan<- domain.Response,
) *responder {
	return &responder{
		cfg:        cfg,
		sessions:   sessions,
		prompts:    prompts,
		llm:        llm,
		responseCh: responseCh,
		now:        time.Now,
	}
}

func (r *responder) HandleInbound(ctx context.Context, in domain.Inbound) {
	ctx = logger.ContextWithConversation(ctx, in.Key)
	cfg := r.cfg.Snapshot()

	if !access.Allow(cfg.AccessControl, in.Key, in.SenderID) {
		slog.DebugContext(ctx, "Access denied", "senderID", in.SenderID)
		return
	}

	if in.Command != "" {
		r.handleCommand(ctx, cfg, in)
		return
	}

	valid := cfg.ValidKinds()
	if !valid.Contains(in.Kind) {
		slog.DebugContext(ctx, "Dropping unsupported message kind", "kind", in.Kind)
		return
	}

	sess, err := r.sessions.Append(ctx, in.Key, domain.Message{
		Role:       domain.MessageRoleUser,
		Kind:       in.Kind,
		SenderID:   in.SenderID,
		SenderName: in.SenderName,
		Content:    in.Content,
		Timestamp:  in.Timestamp,
	})
	if err != nil {
		slog.ErrorContext(ctx, "Appending inbound message", logger.Err(err))
		r.respond(in.Key, domain.FailureNotice)
		return
	}

	if !r.shouldReply(ctx, cfg, in) {
		slog.DebugContext(ctx, "Message recorded without reply")
		return
	}

	systemPrompt, err := r.prompts.SystemPrompt(cfg.QueryBuild, in.Key.Type, r.now())
	if err != nil {
		slog.ErrorContext(ctx, "Loading system prompt", logger.Err(err))
		r.respond(in.Key, domain.FailureNotice)
		return
	}
	characterPrompt, err := r.prompts.CharacterPrompt(cfg.QueryBuild)
	if err != nil {
		slog.ErrorContext(ctx, "Loading character prompt", logger.Err(err))
		r.respond(in.Key, domain.FailureNotice)
		return
	}

	payload := query.Build(sess, systemPrompt, characterPrompt, valid, cfg.Hyperparameters)

	slog.InfoContext(ctx, "Calling model", "model", cfg.LLMAPI.Model, "historyLen", len(payload.History))

	reply, err := r.llm.Send(ctx, cfg.LLMAPI, payload)
	if err != nil {
		var llmErr *domain.LLMError
		if errors.As(err, &llmErr) {
			slog.WarnContext(ctx, "Model call failed", "kind", llmErr.Kind, logger.Err(err))
		} else {
			slog.ErrorContext(ctx, "Model call failed", logger.Err(err))
		}
		r.respond(in.Key, domain.FailureNotice)
		return
	}

	assistant := domain.Message{
		Role:      domain.MessageRoleAssistant,
		Kind:      domain.MessageKindText,
		Content:   reply,
		Timestamp: r.now(),
	}
	if ch, err := r.prompts.Character(cfg.QueryBuild); err == nil {
		assistant.SenderName = ch.Name
	}
	if _, err := r.sessions.Append(ctx, in.Key, assistant); err != nil {
		// the reply was generated; deliver it even if recording failed
		slog.ErrorContext(ctx, "Appending assistant reply", logger.Err(err))
	}

	r.respond(in.Key, reply)
}

func (r *responder) handleCommand(ctx context.Context, cfg *config.Snapshot, in domain.Inbound) {
	switch in.Command {
	case "clear":
		if _, err := r.sessions.ReplaceHistory(ctx, in.Key, nil); err != nil {
			slog.ErrorContext(ctx, "Clearing history", logger.Err(err))
			r.respond(in.Key, domain.FailureNotice)
			return
		}
		slog.InfoContext(ctx, "History cleared", "senderID", in.SenderID)
		r.respond(in.Key, domain.HistoryClearedNotice)
	default:
		// unknown commands are for other bots or tooling; stay silent
		slog.DebugContext(ctx, "Ignoring command", "command", in.Command)
	}
}

// shouldReply implements the group mention gate: the message is already
// recorded, but the model is only queried when the bot was addressed.
// Private chats always trigger.
func (r *responder) shouldReply(ctx context.Context, cfg *config.Snapshot, in domain.Inbound) bool {
	if in.Key.Type == domain.ChatTypePrivate {
		return true
	}
	if in.Mentioned {
		return true
	}

	ch, err := r.prompts.Character(cfg.QueryBuild)
	if err != nil {
		slog.WarnContext(ctx, "Loading character for mention check", logger.Err(err))
		return false
	}

	names := append([]string{ch.Name}, ch.Alias...)
	for _, name := range names {
		if name == "" {
			continue
		}
		if containsName(in.Content, name) {
			return true
		}
	}
	return false
}

// containsName matches ASCII names as whole words case-insensitively and
// non-ASCII names (e.g. CJK) as substrings.
func containsName(text, name string) bool {
	if isASCII(name) {
		for _, word := range strings.Fields(text) {
			if strings.EqualFold(word, name) {
				return true
			}
		}
		return false
	}
	return strings.Contains(text, name)
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func (r *responder) respond(key domain.ConversationKey, text string) {
	r.responseCh <- domain.Response{Key: key, Text: text}
}
