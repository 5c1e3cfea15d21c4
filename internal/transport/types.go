package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// Sender identifies the account behind an update.
type Sender struct {
	ID        int64
	Username  string
	FirstName string
}

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // forum topic thread id (0 if none)
	From     Sender
	Text     string
	IsGroup  bool
}

type Callback struct {
	ID        string
	From      Sender
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

// SenderOf returns the sender of any update kind.
func (u Update) SenderOf() Sender {
	switch {
	case u.Message != nil:
		return u.Message.From
	case u.Callback != nil:
		return u.Callback.From
	}
	return Sender{}
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// Private returns the target for a one-to-one chat with a user.
func Private(userID int64) ChatTarget { return ChatTarget{ChatID: userID} }

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (telebot: *telebot.ReplyMarkup)
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish the
// platform command menu (setMyCommands).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
