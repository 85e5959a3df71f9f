package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmvolsky/persona-telegram-bot/pkg/config"
	"github.com/dmvolsky/persona-telegram-bot/pkg/domain"
	"github.com/dmvolsky/persona-telegram-bot/pkg/prompt"
)

type fakeProvider struct {
	snap *config.Snapshot
}

func (f *fakeProvider) Snapshot() *config.Snapshot { return f.snap }

type fakeStore struct {
	histories map[domain.ConversationKey][]domain.Message
	appendErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{histories: make(map[domain.ConversationKey][]domain.Message)}
}

func (f *fakeStore) session(key domain.ConversationKey) domain.Session {
	return domain.Session{Key: key, History: f.histories[key], MaxHistory: 10}
}

func (f *fakeStore) Load(_ context.Context, key domain.ConversationKey) (domain.Session, error) {
	return f.session(key), nil
}

func (f *fakeStore) Append(_ context.Context, key domain.ConversationKey, msg domain.Message) (domain.Session, error) {
	if f.appendErr != nil {
		return domain.Session{}, f.appendErr
	}
	f.histories[key] = append(f.histories[key], msg)
	return f.session(key), nil
}

func (f *fakeStore) ReplaceHistory(_ context.Context, key domain.ConversationKey, msgs []domain.Message) (domain.Session, error) {
	f.histories[key] = msgs
	return f.session(key), nil
}

type fakePrompts struct {
	character prompt.Character
	err       error
}

func (f *fakePrompts) SystemPrompt(config.QueryBuild, domain.ChatType, time.Time) (string, error) {
	return "system prompt", f.err
}

func (f *fakePrompts) CharacterPrompt(config.QueryBuild) (string, error) {
	return "character prompt", f.err
}

func (f *fakePrompts) Character(config.QueryBuild) (prompt.Character, error) {
	return f.character, f.err
}

type fakeLLM struct {
	reply    string
	err      error
	payloads []domain.QueryPayload
}

func (f *fakeLLM) Send(_ context.Context, _ config.LLMAPI, payload domain.QueryPayload) (string, error) {
	f.payloads = append(f.payloads, payload)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fixture struct {
	responder  *responder
	store      *fakeStore
	llm        *fakeLLM
	prompts    *fakePrompts
	responseCh chan domain.Response
}

func newFixture(snap *config.Snapshot) *fixture {
	f := &fixture{
		store: newFakeStore(),
		llm:   &fakeLLM{reply: "model reply"},
		prompts: &fakePrompts{
			character: prompt.Character{Name: "Nora", Alias: []string{"norabot"}},
		},
		responseCh: make(chan domain.Response, 4),
	}
	f.responder = NewResponder(&fakeProvider{snap: snap}, f.store, f.prompts, f.llm, f.responseCh)
	return f
}

func (f *fixture) drain() []domain.Response {
	var out []domain.Response
	for {
		select {
		case r := <-f.responseCh:
			out = append(out, r)
		default:
			return out
		}
	}
}

func testSnapshot() *config.Snapshot {
	snap := config.Default()
	snap.AccessControl.Group.Whitelist = []int64{100}
	snap.LLMAPI.Key = "k"
	snap.LLMAPI.Model = "m"
	return snap
}

var (
	privateKey = domain.ConversationKey{Type: domain.ChatTypePrivate, ID: 7}
	groupKey   = domain.ConversationKey{Type: domain.ChatTypeGroup, ID: 100}
)

func privateText(content string) domain.Inbound {
	return domain.Inbound{
		Key:        privateKey,
		SenderID:   7,
		SenderName: "alice",
		Kind:       domain.MessageKindText,
		Content:    content,
		Timestamp:  time.Now(),
	}
}

func groupText(content string) domain.Inbound {
	in := privateText(content)
	in.Key = groupKey
	return in
}

func TestHandleInboundPrivateSuccess(t *testing.T) {
	f := newFixture(testSnapshot())

	f.responder.HandleInbound(context.Background(), privateText("hello"))

	responses := f.drain()
	if len(responses) != 1 || responses[0].Text != "model reply" {
		t.Fatalf("responses = %+v, want one model reply", responses)
	}
	if responses[0].Key != privateKey {
		t.Errorf("response key = %v, want %v", responses[0].Key, privateKey)
	}

	history := f.store.histories[privateKey]
	if len(history) != 2 {
		t.Fatalf("history length = %d, want user turn + assistant turn", len(history))
	}
	if history[0].Role != domain.MessageRoleUser || history[0].Content != "hello" {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[1].Role != domain.MessageRoleAssistant || history[1].Content != "model reply" {
		t.Errorf("history[1] = %+v", history[1])
	}
	if history[1].SenderName != "Nora" {
		t.Errorf("assistant SenderName = %q, want the character name", history[1].SenderName)
	}
}

func TestHandleInboundDeniedIsSilent(t *testing.T) {
	snap := testSnapshot()
	snap.AccessControl.User.Blacklist = []int64{7}
	f := newFixture(snap)

	f.responder.HandleInbound(context.Background(), privateText("hello"))

	if responses := f.drain(); len(responses) != 0 {
		t.Errorf("responses = %+v, want none", responses)
	}
	if len(f.store.histories[privateKey]) != 0 {
		t.Error("denied message must not be stored")
	}
	if len(f.llm.payloads) != 0 {
		t.Error("denied message must not reach the model")
	}
}

func TestHandleInboundUnsupportedKindIsSilent(t *testing.T) {
	f := newFixture(testSnapshot())

	in := privateText("sticker")
	in.Kind = domain.MessageKindMface
	f.responder.HandleInbound(context.Background(), in)

	if responses := f.drain(); len(responses) != 0 {
		t.Errorf("responses = %+v, want none", responses)
	}
	if len(f.store.histories[privateKey]) != 0 {
		t.Error("unsupported kind must not be stored")
	}
}

func TestHandleInboundLLMFailure(t *testing.T) {
	f := newFixture(testSnapshot())
	f.llm.err = &domain.LLMError{Kind: domain.LLMTimeout, Detail: "slow"}

	f.responder.HandleInbound(context.Background(), privateText("hello"))

	responses := f.drain()
	if len(responses) != 1 || responses[0].Text != domain.FailureNotice {
		t.Fatalf("responses = %+v, want the failure notice", responses)
	}

	history := f.store.histories[privateKey]
	if len(history) != 1 || history[0].Role != domain.MessageRoleUser {
		t.Errorf("history = %+v, want the inbound message kept", history)
	}
}

func TestHandleInboundAppendFailure(t *testing.T) {
	f := newFixture(testSnapshot())
	f.store.appendErr = &domain.StorageError{Op: "append", Key: privateKey, Err: errors.New("disk full")}

	f.responder.HandleInbound(context.Background(), privateText("hello"))

	responses := f.drain()
	if len(responses) != 1 || responses[0].Text != domain.FailureNotice {
		t.Fatalf("responses = %+v, want the failure notice", responses)
	}
	if len(f.llm.payloads) != 0 {
		t.Error("the model must not be called when the append failed")
	}
}

func TestHandleInboundClearCommand(t *testing.T) {
	f := newFixture(testSnapshot())
	f.store.histories[privateKey] = []domain.Message{{Role: domain.MessageRoleUser, Content: "old"}}

	in := privateText("/clear")
	in.Command = "clear"
	f.responder.HandleInbound(context.Background(), in)

	responses := f.drain()
	if len(responses) != 1 || responses[0].Text != domain.HistoryClearedNotice {
		t.Fatalf("responses = %+v, want the cleared notice", responses)
	}
	if len(f.store.histories[privateKey]) != 0 {
		t.Error("history must be cleared")
	}
}

func TestHandleInboundUnknownCommandIsSilent(t *testing.T) {
	f := newFixture(testSnapshot())

	in := privateText("!roll d20")
	in.Command = "roll"
	f.responder.HandleInbound(context.Background(), in)

	if responses := f.drain(); len(responses) != 0 {
		t.Errorf("responses = %+v, want none", responses)
	}
	if len(f.store.histories[privateKey]) != 0 {
		t.Error("command messages must not enter the history")
	}
}

func TestHandleInboundGroupMentionGate(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		mentioned bool
		wantReply bool
	}{
		{name: "unaddressed", content: "what a day", wantReply: false},
		{name: "explicit mention", content: "what a day", mentioned: true, wantReply: true},
		{name: "name as word", content: "hey Nora what's up", wantReply: true},
		{name: "name case insensitive", content: "NORA are you there", wantReply: true},
		{name: "name glued to punctuation", content: "Nora!?", wantReply: false},
		{name: "alias as word", content: "ping norabot please", wantReply: true},
		{name: "name inside another word", content: "noranothing here", wantReply: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(testSnapshot())

			in := groupText(tt.content)
			in.Mentioned = tt.mentioned
			f.responder.HandleInbound(context.Background(), in)

			responses := f.drain()
			if tt.wantReply && len(responses) != 1 {
				t.Fatalf("responses = %+v, want a reply", responses)
			}
			if !tt.wantReply && len(responses) != 0 {
				t.Fatalf("responses = %+v, want none", responses)
			}

			// the message is recorded either way
			if len(f.store.histories[groupKey]) == 0 {
				t.Error("group message must be recorded even without a reply")
			}
		})
	}
}

func TestHandleInboundNonASCIINameMatchesSubstring(t *testing.T) {
	f := newFixture(testSnapshot())
	f.prompts.character = prompt.Character{Name: "奏"}

	f.responder.HandleInbound(context.Background(), groupText("你好奏今天怎么样"))

	if responses := f.drain(); len(responses) != 1 {
		t.Errorf("responses = %+v, want a reply to a substring name match", responses)
	}
}

func TestHandleInboundPayloadIncludesInbound(t *testing.T) {
	f := newFixture(testSnapshot())
	f.store.histories[privateKey] = []domain.Message{
		{Role: domain.MessageRoleAssistant, Kind: domain.MessageKindText, Content: "earlier"},
	}

	f.responder.HandleInbound(context.Background(), privateText("latest"))

	if len(f.llm.payloads) != 1 {
		t.Fatalf("payloads = %d, want 1", len(f.llm.payloads))
	}
	payload := f.llm.payloads[0]
	if payload.SystemPrompt != "system prompt" || payload.CharacterPrompt != "character prompt" {
		t.Errorf("prompts not carried: %+v", payload)
	}
	last := payload.History[len(payload.History)-1]
	if last.Content != "latest" || last.Role != domain.MessageRoleUser {
		t.Errorf("last history turn = %+v, want the inbound message", last)
	}
}
