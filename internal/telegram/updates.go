package telegram

import (
	"context"
	"fmt"
	"marksbot/internal/components/assert"
	"marksbot/internal/conversation"
	"marksbot/internal/usage"
	"net/http"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	report_updates_webhook = "updates.webhook"
)

// Handler is implemented by *conversation.Controller.
type Handler interface {
	Handle(ctx context.Context, event conversation.Event)
}

func toUser(user *tgbotapi.User) usage.User {
	if user == nil {
		return usage.User{}
	}
	return usage.User{ID: user.ID, Username: user.UserName}
}

// ToEvent translates an update into a conversation event, updates the bot
// does not react to are reported as not ok.
func ToEvent(update tgbotapi.Update) (conversation.Event, bool) {
	if update.CallbackQuery != nil {
		query := update.CallbackQuery
		if query.Message == nil || query.Message.Chat == nil {
			return conversation.Event{}, false
		}
		return conversation.Event{
			Kind:      conversation.EventPress,
			ChatID:    query.Message.Chat.ID,
			MessageID: query.Message.MessageID,
			User:      toUser(query.From),
			PressID:   query.ID,
			Data:      query.Data,
		}, true
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return conversation.Event{}, false
	}

	event := conversation.Event{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		User:      toUser(msg.From),
	}
	switch msg.Command() {
	case "start":
		event.Kind = conversation.EventStart
	case "cancel":
		event.Kind = conversation.EventCancel
	case "contact":
		event.Kind = conversation.EventContact
	default:
		return conversation.Event{}, false
	}
	return event, true
}

// dispatcher hands every event to the handler on its own goroutine.
type dispatcher struct {
	handler Handler
	wg      sync.WaitGroup
}

func (d *dispatcher) dispatch(ctx context.Context, update tgbotapi.Update) {
	event, ok := ToEvent(update)
	if !ok {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.handler.Handle(ctx, event)
	}()
}

// Poll long polls for updates until ctx is cancelled, then waits for the
// events in flight to be handled.
func (b *Bot) Poll(ctx context.Context, handler Handler) error {
	assert.NotNil(handler, "handler")

	// polling does not work while a webhook is registered
	_, err := b.api.Request(tgbotapi.DeleteWebhookConfig{})
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := b.api.GetUpdatesChan(cfg)

	d := &dispatcher{handler: handler}
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			d.wg.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				d.wg.Wait()
				return nil
			}
			d.dispatch(ctx, update)
		}
	}
}

// RegisterWebhook points the bot at link.
func (b *Bot) RegisterWebhook(link string) error {
	webhook, err := tgbotapi.NewWebhook(link)
	if err != nil {
		return fmt.Errorf("webhook url: %w", err)
	}
	_, err = b.api.Request(webhook)
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// Webhook receives updates pushed by Telegram. Events are handled under the
// context given to WebhookHandler rather than the request context since they
// outlive the request.
type Webhook struct {
	bot *Bot
	ctx context.Context
	d   *dispatcher
}

// WebhookHandler returns the http handler receiving webhook updates.
func (b *Bot) WebhookHandler(ctx context.Context, handler Handler) *Webhook {
	assert.NotNil(handler, "handler")
	return &Webhook{
		bot: b,
		ctx: ctx,
		d:   &dispatcher{handler: handler},
	}
}

func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	update, err := h.bot.api.HandleUpdate(r)
	if err != nil {
		h.bot.tel.ReportWarning(report_updates_webhook, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.d.dispatch(h.ctx, *update)
	w.WriteHeader(http.StatusOK)
}

// Wait blocks until the events in flight are handled, call it once the http
// server stopped accepting requests.
func (h *Webhook) Wait() {
	h.d.wg.Wait()
}
