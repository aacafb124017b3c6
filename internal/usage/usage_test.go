package usage

import (
	"fmt"
	"marksbot/internal/components/telemetry"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	counter := NewCounter()
	require.Equal(t, 0, counter.Get(1))
	require.Equal(t, 1, counter.Increment(1))
	require.Equal(t, 2, counter.Increment(1))
	require.Equal(t, 1, counter.Increment(2))
	require.Equal(t, 2, counter.Get(1))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			counter.Increment(3)
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter.Get(3))
}

func TestFormatMessage(t *testing.T) {
	require.Equal(
		t,
		"User ID: 42\nUsername: @qusai\nStart Count: 3",
		FormatMessage(User{ID: 42, Username: "qusai"}, 3),
	)
}

type sentMessage struct {
	path   string
	chatId string
	text   string
}

func TestNotifier(t *testing.T) {
	var mutex sync.Mutex
	var sent []sentMessage

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		mutex.Lock()
		sent = append(sent, sentMessage{
			path:   r.URL.Path,
			chatId: r.PostForm.Get("chat_id"),
			text:   r.PostForm.Get("text"),
		})
		mutex.Unlock()
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	notifier := NewNotifier(NotifierOptions{
		Token:   "123:abc",
		ChatID:  "777",
		ApiBase: server.URL,
	}, NewCounter(), telemetry.SlogAPI{})
	require.True(t, notifier.Enabled())

	user := User{ID: 9, Username: "student"}
	require.Equal(t, 1, notifier.Started(user))
	require.Equal(t, 2, notifier.Started(user))
	notifier.Wait()

	require.Len(t, sent, 2)
	texts := []string{sent[0].text, sent[1].text}
	require.ElementsMatch(t, []string{
		"User ID: 9\nUsername: @student\nStart Count: 1",
		"User ID: 9\nUsername: @student\nStart Count: 2",
	}, texts)
	for _, msg := range sent {
		require.Equal(t, "/bot123:abc/sendMessage", msg.path)
		require.Equal(t, "777", msg.chatId)
	}
}

func TestNotifierFailureIsSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	notifier := NewNotifier(NotifierOptions{
		Token:   "bad",
		ChatID:  "1",
		ApiBase: server.URL,
	}, NewCounter(), telemetry.SlogAPI{})

	require.Equal(t, 1, notifier.Started(User{ID: 1}))
	notifier.Wait()
}

type recordingAPI struct {
	mutex   sync.Mutex
	reports []string
}

func (r *recordingAPI) record(id string, params []any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = append(r.reports, id+" "+fmt.Sprint(params...))
}

func (r *recordingAPI) ReportBroken(id string, params ...any)  { r.record(id, params) }
func (r *recordingAPI) ReportWarning(id string, params ...any) { r.record(id, params) }
func (r *recordingAPI) ReportDebug(msg string, params ...any)  { r.record(msg, params) }
func (r *recordingAPI) ReportCount(id string, count int64)     { r.record(id, nil) }

func TestNotifierReportsWithoutToken(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	tel := &recordingAPI{}
	notifier := NewNotifier(NotifierOptions{
		Token:   "123:secret",
		ChatID:  "1",
		ApiBase: server.URL,
	}, NewCounter(), tel)
	notifier.Started(User{ID: 1})
	notifier.Wait()

	reports := strings.Join(tel.reports, "\n")
	require.Contains(t, reports, "usage: resty.request")
	require.Contains(t, reports, "/bot{token}/sendMessage")
	require.Contains(t, reports, "usage: notifier.send")
	require.NotContains(t, reports, "123:secret")
}

func TestNotifierDisabled(t *testing.T) {
	notifier := NewNotifier(NotifierOptions{}, NewCounter(), telemetry.SlogAPI{})
	require.False(t, notifier.Enabled())
	require.Equal(t, 1, notifier.Started(User{ID: 5}))
	require.Equal(t, 2, notifier.Started(User{ID: 5}))
	notifier.Wait()
}
