package usage

import (
	"context"
	"errors"
	"fmt"
	"marksbot/internal/components/assert"
	"marksbot/internal/components/telemetry"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_notifier_send = "notifier.send"
)

const defaultApiBase = "https://api.telegram.org"

// User identifies who started a query.
type User struct {
	ID       int64
	Username string
}

// Counter counts /start invocations per user, in memory only.
type Counter struct {
	mutex  sync.Mutex
	counts map[int64]int
}

func NewCounter() *Counter {
	return &Counter{counts: map[int64]int{}}
}

// Increment bumps the count of the given user and returns the new count.
func (c *Counter) Increment(userId int64) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.counts[userId]++
	return c.counts[userId]
}

func (c *Counter) Get(userId int64) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.counts[userId]
}

type NotifierOptions struct {
	// Token of the bot used to send notifications, empty disables the notifier.
	Token string
	// ChatID is the chat notifications are sent to.
	ChatID string
	// Timeout bounds a single notification, defaults to 10s.
	Timeout time.Duration
	// ApiBase overrides the Bot API base url.
	ApiBase string
}

// Notifier reports query starts to a separate chat.
type Notifier struct {
	http    *resty.Client
	opts    NotifierOptions
	counter *Counter
	tel     telemetry.API
	wg      sync.WaitGroup
}

func NewNotifier(opts NotifierOptions, counter *Counter, tel telemetry.API) *Notifier {
	assert.NotNil(counter, "counter")
	assert.NotNil(tel, "tel")

	tel = telemetry.NewScopedAPI("usage", tel)

	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.ApiBase == "" {
		opts.ApiBase = defaultApiBase
	}

	client := resty.New()
	client.SetBaseURL(opts.ApiBase)
	client.SetTimeout(opts.Timeout)
	telemetry.InstrumentResty(client, tel)

	return &Notifier{
		http:    client,
		opts:    opts,
		counter: counter,
		tel:     tel,
	}
}

func (n *Notifier) Enabled() bool {
	return n.opts.Token != "" && n.opts.ChatID != ""
}

// FormatMessage renders the notification text.
func FormatMessage(user User, count int) string {
	return fmt.Sprintf(
		"User ID: %d\nUsername: @%s\nStart Count: %d",
		user.ID,
		user.Username,
		count,
	)
}

// Started counts a start for user and sends the notification in the
// background. It never blocks on the network and never fails.
func (n *Notifier) Started(user User) int {
	count := n.counter.Increment(user.ID)
	if !n.Enabled() {
		return count
	}

	text := FormatMessage(user, count)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.opts.Timeout)
		defer cancel()

		err := n.send(ctx, text)
		if err != nil {
			n.tel.ReportWarning(report_notifier_send, err, user.ID)
		}
	}()

	return count
}

// Wait blocks until in-flight notifications are done.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) send(ctx context.Context, text string) error {
	res, err := n.http.R().
		SetContext(ctx).
		SetPathParam("token", n.opts.Token).
		SetFormData(map[string]string{
			"chat_id": n.opts.ChatID,
			"text":    text,
		}).
		Post("/bot{token}/sendMessage")
	if err != nil {
		// the request url carries the token
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("send message: %w", err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("send message: unexpected status %d", res.StatusCode())
	}
	return nil
}
