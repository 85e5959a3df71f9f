package workers

import (
	"context"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dmvolsky/persona-telegram-bot/pkg/domain"
)

type Responder interface {
	HandleInbound(ctx context.Context, in domain.Inbound)
}

type TelegramClient interface {
	GetUpdates() tgbotapi.UpdatesChannel
	ToInbound(update *tgbotapi.Update) (domain.Inbound, bool)
	SendResponse(ctx context.Context, response *domain.Response)
}

type telegramListener struct {
	client     TelegramClient
	responder  Responder
	responseCh <-chan domain.Response
	wg         sync.WaitGroup
}

func NewTelegramListener(
	client TelegramClient,
	responder Responder,
	responseCh <-chan domain.Response,
) (*telegramListener, error) {
	return &telegramListener{
		client:     client,
		responder:  responder,
		responseCh: responseCh,
	}, nil
}

func (t *telegramListener) Name() string { return "telegram_listener_worker" }

func (t *telegramListener) Start(ctx context.Context) error {
	slog.Info("Starting worker", "name", t.Name())
	defer slog.Info("Worker stopped", "name", t.Name())

	updates := t.client.GetUpdates()

	for {
		select {
		case <-ctx.Done():
			t.drainAndWait(ctx)
			return nil
		case update := <-updates:
			t.wg.Add(1)
			go func(update tgbotapi.Update) {
				defer t.wg.Done()
				t.processUpdate(ctx, &update)
			}(update)
		case response := <-t.responseCh:
			t.client.SendResponse(ctx, &response)
		}
	}
}

// drainAndWait keeps consuming the response channel until every in-flight
// handler has finished, so a handler blocked on sending its reply can always
// complete during shutdown. The replies still go out.
func (t *telegramListener) drainAndWait(ctx context.Context) {
	handlersDone := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(handlersDone)
	}()

	for {
		select {
		case response := <-t.responseCh:
			t.client.SendResponse(ctx, &response)
		case <-handlersDone:
			return
		}
	}
}

func (t *telegramListener) processUpdate(ctx context.Context, update *tgbotapi.Update) {
	in, ok := t.client.ToInbound(update)
	if !ok {
		slog.DebugContext(ctx, "Skipping update without a message", "updateID", update.UpdateID)
		return
	}

	t.responder.HandleInbound(ctx, in)
}
