package llm

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/dmvolsky/persona-telegram-bot/pkg/domain"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// reserved keys a hyperparameter may not override.
var reservedParams = map[string]struct{}{
	"model":    {},
	"messages": {},
	"stream":   {},
}

// buildRequest serializes the payload to the chat-completions schema: the
// system and character prompts lead as system messages, history follows in
// order, and the hyperparameters are flattened into the request object.
func buildRequest(model string, payload domain.QueryPayload) map[string]any {
	messages := make([]chatMessage, 0, len(payload.History)+2)
	messages = append(messages, chatMessage{Role: "system", Content: payload.SystemPrompt})
	if payload.CharacterPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: payload.CharacterPrompt})
	}
	messages = append(messages, lo.Map(payload.History, func(m domain.Message, _ int) chatMessage {
		return chatMessage{Role: string(m.Role), Content: renderContent(m)}
	})...)

	req := map[string]any{
		"model":    model,
		"messages": messages,
		"stream":   false,
	}
	for k, v := range payload.ModelParams {
		if _, reserved := reservedParams[k]; reserved {
			continue
		}
		req[k] = v
	}
	return req
}

// renderContent attributes user turns that carry a sender, so the model can
// tell group participants apart.
func renderContent(m domain.Message) string {
	if m.Role != domain.MessageRoleUser || m.SenderName == "" {
		return m.Content
	}
	return fmt.Sprintf("%s (%d) | %s\n%s",
		m.SenderName, m.SenderID, m.Timestamp.Format(time.DateTime), m.Content)
}

// extractReply pulls the generated text out of a decoded success response.
func extractReply(resp *chatCompletionsResponse) (string, bool) {
	if len(resp.Choices) == 0 {
		return "", false
	}
	choice := resp.Choices[0]
	if choice.Message.Content != "" {
		return choice.Message.Content, true
	}
	if choice.Delta.Content != "" {
		return choice.Delta.Content, true
	}
	return "", false
}
