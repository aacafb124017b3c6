package conversation

import (
	"context"
	"errors"
	"fmt"
	"marksbot/internal/components/assert"
	"marksbot/internal/components/telemetry"
	"marksbot/internal/portal"
	"marksbot/internal/retrieve"
	"marksbot/internal/session"
	"marksbot/internal/usage"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	report_controller_ui       = "controller.ui"
	report_controller_press    = "controller.press"
	report_controller_crawl    = "controller.crawl"
	report_controller_retrieve = "controller.retrieve"
	report_controller_render   = "controller.render"
	report_artifact_remove     = "controller.artifact-remove"
	report_controller_meter    = "controller.meter"
)

var meter = otel.Meter("marksbot/conversation")

// Crawler is implemented by portal.Crawler.
type Crawler interface {
	Crawl(ctx context.Context, q portal.Query) ([]portal.Entry, error)
}

// Retriever is implemented by *retrieve.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, link string) (retrieve.Artifact, error)
}

// Notifier is implemented by *usage.Notifier.
type Notifier interface {
	Started(user usage.User) int
}

type Options struct {
	Departments []portal.Option
	Years       []portal.Option
	Seasons     []portal.Option

	// MaxConversations defaults to 2048.
	MaxConversations int
	// ConversationTTL defaults to 2h.
	ConversationTTL time.Duration
}

// Controller runs the query wizard and the result browsing of every chat.
type Controller struct {
	ui        UI
	crawler   Crawler
	retriever Retriever
	notifier  Notifier
	rand      session.RandomAPI
	tel       telemetry.API

	departments []portal.Option
	seasons     []portal.Option
	yearsMutex  sync.RWMutex
	years       []portal.Option

	store  *store
	events metric.Int64Counter
}

func NewController(
	ui UI,
	crawler Crawler,
	retriever Retriever,
	notifier Notifier,
	rand session.RandomAPI,
	opts Options,
	tel telemetry.API,
) *Controller {
	assert.NotNil(ui, "ui")
	assert.NotNil(crawler, "crawler")
	assert.NotNil(retriever, "retriever")
	assert.NotNil(notifier, "notifier")
	assert.NotNil(rand, "rand")
	assert.NotNil(tel, "tel")

	if len(opts.Departments) == 0 {
		opts.Departments = portal.Departments
	}
	if len(opts.Years) == 0 {
		opts.Years = portal.Years(time.Now().Year(), 6)
	}
	if len(opts.Seasons) == 0 {
		opts.Seasons = portal.Seasons
	}
	if opts.MaxConversations <= 0 {
		opts.MaxConversations = 2048
	}
	if opts.ConversationTTL <= 0 {
		opts.ConversationTTL = 2 * time.Hour
	}

	tel = telemetry.NewScopedAPI("conversation", tel)

	events, err := meter.Int64Counter(
		"marksbot.conversation.events",
		metric.WithDescription("Chat events handled by kind."),
	)
	if err != nil {
		tel.ReportBroken(report_controller_meter, err)
	}

	return &Controller{
		ui:          ui,
		crawler:     crawler,
		retriever:   retriever,
		notifier:    notifier,
		rand:        rand,
		tel:         tel,
		departments: opts.Departments,
		years:       opts.Years,
		seasons:     opts.Seasons,
		store:       newStore(opts.MaxConversations, opts.ConversationTTL),
		events:      events,
	}
}

// SetYears replaces the offered years, wizards already past the year step
// are unaffected.
func (c *Controller) SetYears(years []portal.Option) {
	c.yearsMutex.Lock()
	defer c.yearsMutex.Unlock()
	c.years = years
}

func (c *Controller) currentYears() []portal.Option {
	c.yearsMutex.RLock()
	defer c.yearsMutex.RUnlock()
	return c.years
}

// Handle handles a single event. Events of the same chat are handled one
// at a time, events of different chats may be handled concurrently.
func (c *Controller) Handle(ctx context.Context, event Event) {
	c.tel.ReportDebug("event", event.Kind.String(), event.ChatID, event.Data)
	if c.events != nil {
		c.events.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", event.Kind.String())))
	}

	switch event.Kind {
	case EventStart:
		c.start(ctx, event)
	case EventCancel:
		c.cancel(ctx, event)
	case EventContact:
		c.reportUI(c.ui.SendText(ctx, event.ChatID, msgContact))
	case EventPress:
		c.press(ctx, event)
	}
}

func (c *Controller) reportUI(err error) {
	if err != nil {
		c.tel.ReportWarning(report_controller_ui, err)
	}
}

func (c *Controller) start(ctx context.Context, event Event) {
	st, previous := c.store.replace(event.ChatID)
	defer st.mutex.Unlock()

	if previous != nil {
		// presses still queued on the old state see a finished conversation
		previous.mutex.Lock()
		previous.reset()
		previous.stage = stageDone
		previous.mutex.Unlock()
	}

	c.notifier.Started(event.User)

	c.reportUI(c.ui.ShowOptions(ctx, event.ChatID, 0, msgWelcome, departmentKeyboard(c.departments)))
}

func (c *Controller) cancel(ctx context.Context, event Event) {
	st, ok := c.store.get(event.ChatID)
	if ok {
		// waits for whatever is in flight for the chat
		st.mutex.Lock()
		st.reset()
		st.stage = stageDone
		st.mutex.Unlock()
		c.store.remove(event.ChatID, st)
	}
	c.reportUI(c.ui.SendText(ctx, event.ChatID, msgCancelled))
}

func (c *Controller) press(ctx context.Context, event Event) {
	c.reportUI(c.ui.AnswerPress(ctx, event.PressID))
	if event.Data == dataNoop {
		return
	}

	st, ok := c.store.get(event.ChatID)
	if !ok {
		c.pressWithoutState(ctx, event)
		return
	}

	st.mutex.Lock()
	defer st.mutex.Unlock()
	defer c.store.touch(event.ChatID, st)

	if value, ok := cutPrefix(event.Data, prefixDepartment); ok {
		c.chooseDepartment(ctx, st, event, value)
		return
	}
	if value, ok := cutPrefix(event.Data, prefixYear); ok {
		c.chooseYear(ctx, st, event, value)
		return
	}
	if value, ok := cutPrefix(event.Data, prefixSeason); ok {
		c.chooseSeason(ctx, st, event, value)
		return
	}

	if st.session == nil {
		c.pressWithoutState(ctx, event)
		return
	}

	if id, ok := cutPrefix(event.Data, prefixFile); ok {
		c.selectFile(ctx, st.session, event, id)
		return
	}
	switch event.Data {
	case dataNext:
		c.navigate(ctx, event, st.session.Next)
	case dataPrev:
		c.navigate(ctx, event, st.session.Prev)
	case dataAll:
		c.selectAll(ctx, st.session, event)
	default:
		c.tel.ReportWarning(report_controller_press, "unknown payload", event.Data)
	}
}

// pressWithoutState handles presses arriving for a chat that has no results
// session, either because it expired or because it was never created.
func (c *Controller) pressWithoutState(ctx context.Context, event Event) {
	switch {
	case event.Data == dataNext, event.Data == dataPrev, event.Data == dataAll:
		c.reportUI(c.ui.SendText(ctx, event.ChatID, msgLinkNotFound))
	case isWizardPress(event.Data):
		c.reportUI(c.ui.SendText(ctx, event.ChatID, msgConversationExpired))
	default:
		if _, ok := cutPrefix(event.Data, prefixFile); ok {
			c.reportUI(c.ui.SendText(ctx, event.ChatID, msgLinkNotFound))
			return
		}
		c.tel.ReportDebug("stale press ignored", event.ChatID, event.Data)
	}
}

func (c *Controller) chooseDepartment(ctx context.Context, st *state, event Event, value string) {
	if st.stage != stageDepartment {
		c.tel.ReportDebug("stale department press", event.ChatID, value)
		return
	}
	if _, ok := portal.FindOption(c.departments, value); !ok {
		c.tel.ReportWarning(report_controller_press, "unknown department", value)
		return
	}
	st.query.DepartmentID = value
	st.stage = stageYear
	c.reportUI(c.ui.ShowOptions(ctx, event.ChatID, event.MessageID, msgChooseYear, yearKeyboard(c.currentYears())))
}

func (c *Controller) chooseYear(ctx context.Context, st *state, event Event, value string) {
	if st.stage != stageYear {
		c.tel.ReportDebug("stale year press", event.ChatID, value)
		return
	}
	if _, ok := portal.FindOption(c.currentYears(), value); !ok {
		c.tel.ReportWarning(report_controller_press, "unknown year", value)
		return
	}
	st.query.Year = value
	st.stage = stageSeason
	c.reportUI(c.ui.ShowOptions(ctx, event.ChatID, event.MessageID, msgChooseSeason, seasonKeyboard(c.seasons)))
}

func (c *Controller) chooseSeason(ctx context.Context, st *state, event Event, value string) {
	if st.stage != stageSeason {
		c.tel.ReportDebug("stale season press", event.ChatID, value)
		return
	}
	if _, ok := portal.FindOption(c.seasons, value); !ok {
		c.tel.ReportWarning(report_controller_press, "unknown season", value)
		return
	}
	st.query.Season = value
	st.stage = stageDone

	c.reportUI(c.ui.ShowOptions(ctx, event.ChatID, event.MessageID, msgProcessing, nil))

	entries, err := c.crawler.Crawl(ctx, st.query)
	if errors.Is(err, portal.ErrNoResults) {
		c.reportUI(c.ui.SendText(ctx, event.ChatID, msgNoResults))
		return
	}
	if err != nil {
		c.tel.ReportWarning(report_controller_crawl, err, st.query)
		c.reportUI(c.ui.SendText(ctx, event.ChatID, fmt.Sprintf(msgFetchFailed, err.Error())))
		return
	}

	sess, err := session.New(entries, c.rand)
	if errors.Is(err, session.ErrEmpty) {
		c.reportUI(c.ui.SendText(ctx, event.ChatID, msgNoResults))
		return
	}
	if err != nil {
		c.tel.ReportBroken(report_controller_render, err)
		return
	}
	st.session = sess
	st.stage = stageResults

	page, err := sess.Render()
	if err != nil {
		c.tel.ReportBroken(report_controller_render, err)
		return
	}
	c.reportUI(c.ui.ShowOptions(ctx, event.ChatID, event.MessageID, msgChooseFile, pageKeyboard(page)))
}

func (c *Controller) navigate(ctx context.Context, event Event, move func() (session.Page, error)) {
	page, err := move()
	if errors.Is(err, session.ErrNoNextPage) || errors.Is(err, session.ErrNoPrevPage) {
		c.tel.ReportDebug("navigation out of range", event.ChatID, event.Data)
		return
	}
	if err != nil {
		c.tel.ReportBroken(report_controller_render, err)
		return
	}
	c.reportUI(c.ui.ShowOptions(ctx, event.ChatID, event.MessageID, msgChooseFile, pageKeyboard(page)))
}

func (c *Controller) selectFile(ctx context.Context, sess *session.Session, event Event, id string) {
	entry, err := sess.Select(id)
	if err != nil {
		c.reportUI(c.ui.SendText(ctx, event.ChatID, msgLinkNotFound))
		return
	}

	dismiss, err := c.ui.ShowWorking(ctx, event.ChatID)
	if err != nil {
		c.reportUI(err)
		dismiss = func() {}
	}
	defer dismiss()

	err = c.deliver(ctx, event.ChatID, entry)
	if err != nil {
		c.reportUI(c.ui.SendText(ctx, event.ChatID, msgDownloadFailed))
	}
}

func (c *Controller) selectAll(ctx context.Context, sess *session.Session, event Event) {
	entries, err := sess.All()
	if err != nil {
		c.reportUI(c.ui.SendText(ctx, event.ChatID, msgLinkNotFound))
		return
	}

	c.reportUI(c.ui.SendText(ctx, event.ChatID, msgDownloadingAll))
	for _, entry := range entries {
		err := c.deliver(ctx, event.ChatID, entry)
		if err != nil {
			c.reportUI(c.ui.SendText(ctx, event.ChatID, fmt.Sprintf(msgItemFailed, entry.Title)))
		}
	}
	c.reportUI(c.ui.SendText(ctx, event.ChatID, msgDownloadedAll))
}

// deliver retrieves entry and hands it to the chat, the artifact is always
// removed afterwards.
func (c *Controller) deliver(ctx context.Context, chatId int64, entry portal.Entry) error {
	artifact, err := c.retriever.Retrieve(ctx, entry.URL)
	if err != nil {
		c.tel.ReportWarning(report_controller_retrieve, err, entry.Title)
		return err
	}
	defer func() {
		err := artifact.Remove()
		if err != nil {
			c.tel.ReportBroken(report_artifact_remove, err, artifact.Path)
		}
	}()

	err = c.ui.SendFile(ctx, chatId, artifact.Path)
	if err != nil {
		c.tel.ReportWarning(report_controller_ui, err, entry.Title)
		return err
	}
	return nil
}

// Conversations returns how many chats are currently held in memory.
func (c *Controller) Conversations() int {
	return c.store.len()
}
