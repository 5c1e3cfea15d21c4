// Package fake is an in-memory transport.Adapter for tests.
package fake

import (
	"context"
	"errors"
	"sort"
	"sync"

	kit "issuebot/internal/transport"
)

var ErrSendFailed = errors.New("fake: send failed")

// Sent is one recorded outbound message.
type Sent struct {
	To   kit.ChatTarget
	Text string
	Opt  kit.SendOptions
}

type Answer struct {
	CallbackID string
	Text       string
	Alert      bool
}

type Edit struct {
	Ref  kit.MessageRef
	Text string
	Opt  kit.SendOptions
}

type Adapter struct {
	mu      sync.Mutex
	nextID  int
	fail    map[int64]bool
	sent    []Sent
	edits   []Edit
	answers []Answer
	menu    []kit.BotCommand
	out     chan<- kit.Update
}

func New() *Adapter { return &Adapter{fail: map[int64]bool{}} }

// FailFor makes every send to chatID fail.
func (a *Adapter) FailFor(chatIDs ...int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range chatIDs {
		a.fail[id] = true
	}
}

func (a *Adapter) Start(_ context.Context, out chan<- kit.Update) error {
	a.mu.Lock()
	a.out = out
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Stop(context.Context) error {
	a.mu.Lock()
	a.out = nil
	a.mu.Unlock()
	return nil
}

// Push delivers an inbound update to the consumer given to Start.
func (a *Adapter) Push(up kit.Update) {
	a.mu.Lock()
	out := a.out
	a.mu.Unlock()
	if out != nil {
		out <- up
	}
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var o kit.SendOptions
	if opt != nil {
		o = *opt
	}
	a.sent = append(a.sent, Sent{To: to, Text: text, Opt: o})
	if a.fail[to.ChatID] {
		return kit.MessageRef{}, ErrSendFailed
	}
	a.nextID++
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: a.nextID}, nil
}

func (a *Adapter) EditText(_ context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var o kit.SendOptions
	if opt != nil {
		o = *opt
	}
	a.edits = append(a.edits, Edit{Ref: ref, Text: text, Opt: o})
	return nil
}

func (a *Adapter) AnswerCallback(_ context.Context, callbackID, text string, alert bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.answers = append(a.answers, Answer{CallbackID: callbackID, Text: text, Alert: alert})
	return nil
}

func (a *Adapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.menu = append([]kit.BotCommand(nil), cmds...)
	return nil
}

// Sent returns every recorded send.
func (a *Adapter) Sent() []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Sent(nil), a.sent...)
}

// SentTo returns the texts sent to chatID, in order.
func (a *Adapter) SentTo(chatID int64) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, s := range a.sent {
		if s.To.ChatID == chatID {
			out = append(out, s.Text)
		}
	}
	return out
}

// LastTo returns the most recent send to chatID.
func (a *Adapter) LastTo(chatID int64) (Sent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.sent) - 1; i >= 0; i-- {
		if a.sent[i].To.ChatID == chatID {
			return a.sent[i], true
		}
	}
	return Sent{}, false
}

// Recipients returns the distinct chat ids that were sent something, ascending.
func (a *Adapter) Recipients() []int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	seen := map[int64]bool{}
	var out []int64
	for _, s := range a.sent {
		if !seen[s.To.ChatID] {
			seen[s.To.ChatID] = true
			out = append(out, s.To.ChatID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (a *Adapter) Edits() []Edit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Edit(nil), a.edits...)
}

func (a *Adapter) Answers() []Answer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Answer(nil), a.answers...)
}

func (a *Adapter) Menu() []kit.BotCommand {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]kit.BotCommand(nil), a.menu...)
}

// Reset forgets everything recorded so far.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent, a.edits, a.answers = nil, nil, nil
}
