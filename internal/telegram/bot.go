package telegram

import (
	"context"
	"fmt"
	"marksbot/internal/components/assert"
	"marksbot/internal/components/telemetry"
	"marksbot/internal/conversation"
	"net/http"
	"os"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	report_bot_dismiss = "bot.dismiss"
	report_bot_library = "bot.library"
)

// workingText is shown while a file is retrieved when no sticker is configured.
const workingText = "⏳"

type BotOptions struct {
	Token string
	// ApiEndpoint overrides tgbotapi.APIEndpoint, it is a format string
	// taking the token and the method.
	ApiEndpoint string
	// WorkingSticker is the file id of the sticker shown while a file is
	// retrieved.
	WorkingSticker string
	// HttpClient defaults to http.DefaultClient.
	HttpClient tgbotapi.HTTPClient
}

// Bot implements conversation.UI on top of the Telegram Bot API.
type Bot struct {
	api            *tgbotapi.BotAPI
	workingSticker string
	tel            telemetry.API
}

func NewBot(opts BotOptions, tel telemetry.API) (*Bot, error) {
	assert.NotEmptyStr(opts.Token, "token")
	assert.NotNil(tel, "tel")

	tel = telemetry.NewScopedAPI("telegram", tel)

	if opts.ApiEndpoint == "" {
		opts.ApiEndpoint = tgbotapi.APIEndpoint
	}
	if opts.HttpClient == nil {
		opts.HttpClient = http.DefaultClient
	}

	err := tgbotapi.SetLogger(libraryLogger{tel: tel})
	if err != nil {
		return nil, err
	}

	api, err := tgbotapi.NewBotAPIWithClient(opts.Token, opts.ApiEndpoint, opts.HttpClient)
	if err != nil {
		return nil, fmt.Errorf("connect bot: %w", err)
	}
	tel.ReportDebug("authorized", api.Self.UserName)

	return &Bot{
		api:            api,
		workingSticker: opts.WorkingSticker,
		tel:            tel,
	}, nil
}

// Username returns the username of the bot.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

func toMarkup(keyboard conversation.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, len(keyboard))
	for i, row := range keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, len(row))
		for j, button := range row {
			buttons[j] = tgbotapi.NewInlineKeyboardButtonData(button.Label, button.Data)
		}
		rows[i] = tgbotapi.NewInlineKeyboardRow(buttons...)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) ShowOptions(ctx context.Context, chatId int64, messageId int, text string, keyboard conversation.Keyboard) error {
	var msg tgbotapi.Chattable
	switch {
	case messageId != 0 && keyboard == nil:
		msg = tgbotapi.NewEditMessageText(chatId, messageId, text)
	case messageId != 0:
		msg = tgbotapi.NewEditMessageTextAndMarkup(chatId, messageId, text, toMarkup(keyboard))
	default:
		newMsg := tgbotapi.NewMessage(chatId, text)
		if keyboard != nil {
			newMsg.ReplyMarkup = toMarkup(keyboard)
		}
		msg = newMsg
	}

	_, err := b.api.Send(msg)
	if err != nil {
		return fmt.Errorf("show options: %w", err)
	}
	return nil
}

func (b *Bot) SendText(ctx context.Context, chatId int64, text string) error {
	_, err := b.api.Send(tgbotapi.NewMessage(chatId, text))
	if err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

func (b *Bot) SendFile(ctx context.Context, chatId int64, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("send file: %w", err)
	}
	defer file.Close()

	document := tgbotapi.NewDocument(chatId, tgbotapi.FileReader{
		Name:   filepath.Base(path),
		Reader: file,
	})
	_, err = b.api.Send(document)
	if err != nil {
		return fmt.Errorf("send file: %w", err)
	}
	return nil
}

func (b *Bot) ShowWorking(ctx context.Context, chatId int64) (func(), error) {
	var indicator tgbotapi.Chattable = tgbotapi.NewMessage(chatId, workingText)
	if b.workingSticker != "" {
		indicator = tgbotapi.NewSticker(chatId, tgbotapi.FileID(b.workingSticker))
	}

	sent, err := b.api.Send(indicator)
	if err != nil {
		return nil, fmt.Errorf("show working: %w", err)
	}

	dismiss := func() {
		_, err := b.api.Request(tgbotapi.NewDeleteMessage(chatId, sent.MessageID))
		if err != nil {
			b.tel.ReportWarning(report_bot_dismiss, err, chatId, sent.MessageID)
		}
	}
	return dismiss, nil
}

func (b *Bot) AnswerPress(ctx context.Context, pressId string) error {
	if pressId == "" {
		return nil
	}
	_, err := b.api.Request(tgbotapi.NewCallback(pressId, ""))
	if err != nil {
		return fmt.Errorf("answer press: %w", err)
	}
	return nil
}

// libraryLogger routes the logs of the bot library into telemetry.
type libraryLogger struct {
	tel telemetry.API
}

func (l libraryLogger) Println(v ...any) {
	l.tel.ReportDebug(report_bot_library, v...)
}

func (l libraryLogger) Printf(format string, v ...any) {
	l.tel.ReportDebug(report_bot_library, fmt.Sprintf(format, v...))
}
