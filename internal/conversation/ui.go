package conversation

import (
	"context"
	"marksbot/internal/usage"
)

// Button is an inline option, Data comes back in a Press event.
type Button struct {
	Label string
	Data  string
}

// Keyboard is a list of button rows.
type Keyboard [][]Button

// UI is the chat surface the controller drives.
//
// note: fault injection point
type UI interface {
	// ShowOptions presents text with a keyboard, editing messageId in place
	// when it is non-zero. A nil keyboard presents the text only.
	ShowOptions(ctx context.Context, chatId int64, messageId int, text string, keyboard Keyboard) error
	SendText(ctx context.Context, chatId int64, text string) error
	// SendFile hands a local file over for delivery, the file may be
	// removed as soon as SendFile returns.
	SendFile(ctx context.Context, chatId int64, path string) error
	// ShowWorking presents a transient indicator, the returned func removes it.
	ShowWorking(ctx context.Context, chatId int64) (dismiss func(), err error)
	// AnswerPress acknowledges a button press.
	AnswerPress(ctx context.Context, pressId string) error
}

type EventKind int

const (
	EventStart EventKind = iota
	EventCancel
	EventContact
	EventPress
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventCancel:
		return "cancel"
	case EventContact:
		return "contact"
	case EventPress:
		return "press"
	}
	return "unknown"
}

// Event is something a user did in a chat.
type Event struct {
	Kind   EventKind
	ChatID int64
	// MessageID is the message holding the pressed button.
	MessageID int
	User      usage.User
	// PressID and Data are only set for EventPress.
	PressID string
	Data    string
}
