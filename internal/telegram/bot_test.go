package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"marksbot/internal/components/telemetry"
	"marksbot/internal/conversation"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const testToken = "123:secret"

type apiCall struct {
	method string
	params map[string]string
	file   string
}

// fakeBotApi records every Bot API method called on it.
type fakeBotApi struct {
	mutex     sync.Mutex
	calls     []apiCall
	messageId int
	// pending is handed out by the next getUpdates call
	pending []map[string]any
}

func (f *fakeBotApi) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := "/bot" + testToken + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	method := strings.TrimPrefix(r.URL.Path, prefix)

	call := apiCall{method: method, params: map[string]string{}}
	if strings.HasPrefix(r.Header.Get("content-type"), "multipart/form-data") {
		err := r.ParseMultipartForm(1 << 20)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for key, files := range r.MultipartForm.File {
			f, err := files[0].Open()
			if err == nil {
				content, _ := io.ReadAll(f)
				f.Close()
				call.params[key] = files[0].Filename
				call.file = string(content)
			}
		}
	} else {
		r.ParseForm()
	}
	for key := range r.Form {
		call.params[key] = r.Form.Get(key)
	}

	f.mutex.Lock()
	f.calls = append(f.calls, call)
	f.messageId++
	messageId := f.messageId
	f.mutex.Unlock()

	var result any
	switch method {
	case "getMe":
		result = map[string]any{"id": 1, "is_bot": true, "first_name": "marks", "username": "marks_test_bot"}
	case "deleteMessage", "answerCallbackQuery", "setWebhook", "deleteWebhook":
		result = true
	case "getUpdates":
		f.mutex.Lock()
		updates := f.pending
		f.pending = nil
		f.mutex.Unlock()
		if updates == nil {
			updates = []map[string]any{}
		}
		result = updates
	default:
		result = map[string]any{
			"message_id": messageId,
			"date":       0,
			"chat":       map[string]any{"id": 100, "type": "private"},
		}
	}
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func (f *fakeBotApi) methods() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.method
	}
	return out
}

func (f *fakeBotApi) last() apiCall {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.calls[len(f.calls)-1]
}

func newTestBot(t testing.TB, sticker string) (*Bot, *fakeBotApi) {
	fake := &fakeBotApi{}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	bot, err := NewBot(BotOptions{
		Token:          testToken,
		ApiEndpoint:    server.URL + "/bot%s/%s",
		WorkingSticker: sticker,
	}, telemetry.SlogAPI{})
	require.NoError(t, err)
	return bot, fake
}

type markup struct {
	InlineKeyboard [][]struct {
		Text         string `json:"text"`
		CallbackData string `json:"callback_data"`
	} `json:"inline_keyboard"`
}

func TestShowOptions(t *testing.T) {
	bot, fake := newTestBot(t, "")
	require.Equal(t, "marks_test_bot", bot.Username())

	keyboard := conversation.Keyboard{
		{{Label: "2025", Data: "year:2025"}, {Label: "2024", Data: "year:2024"}},
		{{Label: "الفصلين", Data: "season:-1"}},
	}

	require.NoError(t, bot.ShowOptions(context.Background(), 100, 0, "اختر العام:", keyboard))
	call := fake.last()
	require.Equal(t, "sendMessage", call.method)
	require.Equal(t, "100", call.params["chat_id"])
	require.Equal(t, "اختر العام:", call.params["text"])

	var sent markup
	require.NoError(t, json.Unmarshal([]byte(call.params["reply_markup"]), &sent))
	require.Len(t, sent.InlineKeyboard, 2)
	require.Len(t, sent.InlineKeyboard[0], 2)
	require.Equal(t, "year:2024", sent.InlineKeyboard[0][1].CallbackData)
	require.Equal(t, "الفصلين", sent.InlineKeyboard[1][0].Text)

	require.NoError(t, bot.ShowOptions(context.Background(), 100, 42, "اختر الفصل الدراسي:", keyboard))
	call = fake.last()
	require.Equal(t, "editMessageText", call.method)
	require.Equal(t, "42", call.params["message_id"])
	require.Contains(t, call.params["reply_markup"], "season:-1")

	require.NoError(t, bot.ShowOptions(context.Background(), 100, 42, "...", nil))
	call = fake.last()
	require.Equal(t, "editMessageText", call.method)
	require.Empty(t, call.params["reply_markup"])
}

func TestSendFile(t *testing.T) {
	bot, fake := newTestBot(t, "")

	path := filepath.Join(t.TempDir(), "prog1.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0644))

	require.NoError(t, bot.SendFile(context.Background(), 100, path))
	call := fake.last()
	require.Equal(t, "sendDocument", call.method)
	require.Equal(t, "prog1.pdf", call.params["document"])
	require.Equal(t, "%PDF-1.4", call.file)
}

func TestWorkingIndicator(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		bot, fake := newTestBot(t, "")
		dismiss, err := bot.ShowWorking(context.Background(), 100)
		require.NoError(t, err)
		require.Equal(t, "sendMessage", fake.last().method)

		sentId := fmt.Sprint(fake.messageId)
		dismiss()
		call := fake.last()
		require.Equal(t, "deleteMessage", call.method)
		require.Equal(t, sentId, call.params["message_id"])
	})

	t.Run("sticker", func(t *testing.T) {
		bot, fake := newTestBot(t, "sticker-file-id")
		dismiss, err := bot.ShowWorking(context.Background(), 100)
		require.NoError(t, err)
		call := fake.last()
		require.Equal(t, "sendSticker", call.method)
		require.Equal(t, "sticker-file-id", call.params["sticker"])

		dismiss()
		require.Equal(t, "deleteMessage", fake.last().method)
	})
}

func TestAnswerPress(t *testing.T) {
	bot, fake := newTestBot(t, "")
	require.NoError(t, bot.AnswerPress(context.Background(), "cb-1"))
	call := fake.last()
	require.Equal(t, "answerCallbackQuery", call.method)
	require.Equal(t, "cb-1", call.params["callback_query_id"])

	calls := len(fake.methods())
	require.NoError(t, bot.AnswerPress(context.Background(), ""))
	require.Len(t, fake.methods(), calls)
}

func TestRegisterWebhook(t *testing.T) {
	bot, fake := newTestBot(t, "")
	require.NoError(t, bot.RegisterWebhook("https://marks.example.org/webhook"))
	call := fake.last()
	require.Equal(t, "setWebhook", call.method)
	require.Equal(t, "https://marks.example.org/webhook", call.params["url"])
}
