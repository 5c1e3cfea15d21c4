package router

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"issuebot/internal/domain"
	rtsup "issuebot/internal/runtime/supervisor"
	kit "issuebot/internal/transport"
	"issuebot/pkg/tgui"
	logx "issuebot/pkg/logx"
)

type Config struct {
	// Workers is the number of dispatch shards; updates from one sender
	// always land on the same shard.
	Workers        int
	QueueSize      int
	CommandTimeout time.Duration // default for commands without their own
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 30 * time.Second
	}
	return c
}

type CommandManager struct {
	cfg     Config
	log     logx.Logger
	adapter kit.Adapter
	roles   RolePort

	mu       sync.RWMutex
	cmds     []Command
	byName   map[string]*Command
	byButton map[string]*Command
	fallback HandlerFunc

	cbMu      sync.RWMutex
	callbacks map[string]map[string]CallbackRoute // namespace -> action -> route

	runMu   sync.Mutex
	running bool
	shards  []chan func()
}

func NewCommandManager(cfg Config, log logx.Logger, adapter kit.Adapter, roles RolePort) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		cfg:       cfg.withDefaults(),
		log:       log.With(logx.String("comp", "telegram.router")),
		adapter:   adapter,
		roles:     roles,
		byName:    map[string]*Command{},
		byButton:  map[string]*Command{},
		callbacks: map[string]map[string]CallbackRoute{},
	}
}

// SetCommandTimeout changes the default timeout (hot reload).
func (m *CommandManager) SetCommandTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.cfg.CommandTimeout = d
	m.mu.Unlock()
}

// SetFallback installs the handler for plain text that matched no command
// or button. It returns ErrNotHandled to get the unknown-command reply.
func (m *CommandManager) SetFallback(h HandlerFunc) {
	m.mu.Lock()
	m.fallback = h
	m.mu.Unlock()
}

// SetRegistry replaces the commands and callback routes. /help is added
// unless a command with that name is supplied.
func (m *CommandManager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	cmds = append([]Command(nil), cmds...)
	hasHelp := false
	for _, c := range cmds {
		if strings.EqualFold(c.Name, "help") {
			hasHelp = true
		}
	}
	if !hasHelp {
		cmds = append(cmds, Command{
			Name:        "help",
			Description: "show what I can do",
			Usage:       "/help [command]",
			Access:      AccessEveryone,
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, m.Help(req.Role, req.Args))
			},
		})
	}

	list := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		c.Name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Name), "/"))
		if c.Name == "" || c.Handle == nil {
			continue
		}
		list = append(list, c)
	}
	byName := map[string]*Command{}
	byButton := map[string]*Command{}
	for i := range list {
		c := &list[i]
		byName[c.Name] = c
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(a), "/"))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			if _, exists := byName[a]; !exists {
				byName[a] = c
			}
		}
		for _, b := range c.Buttons {
			if l := normalizeLabel(b); l != "" {
				byButton[l] = c
			}
		}
	}
	// Canonical names win over aliases of other commands.
	for i := range list {
		byName[list[i].Name] = &list[i]
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, r := range cbs {
		ns := strings.TrimSpace(r.Namespace)
		a := strings.TrimSpace(r.Action)
		if ns == "" || a == "" || r.Handle == nil {
			continue
		}
		if cb[ns] == nil {
			cb[ns] = map[string]CallbackRoute{}
		}
		cb[ns][a] = r
	}

	m.mu.Lock()
	m.cmds = list
	m.byName = byName
	m.byButton = byButton
	m.mu.Unlock()

	m.cbMu.Lock()
	m.callbacks = cb
	m.cbMu.Unlock()
}

// PublishMenu pushes the visible commands to the platform menu when the
// adapter supports it.
func (m *CommandManager) PublishMenu(ctx context.Context) error {
	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	m.mu.RLock()
	menu := buildMenuCommands(m.cmds)
	m.mu.RUnlock()
	return up.UpdateMenuCommands(ctx, menu)
}

func (m *CommandManager) shardFor(id int64) int {
	u := uint64(id)
	if id < 0 {
		u = uint64(-id)
	}
	return int(u % uint64(len(m.shards)))
}

func (m *CommandManager) tryEnqueue(id int64, fn func()) (ok bool) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running || len(m.shards) == 0 {
		return false
	}
	select {
	case m.shards[m.shardFor(id)] <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
// Each sender's updates are handled in order on one shard worker.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	cfg := m.cfg
	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log),
		rtsup.WithCancelOnError(false),
	)

	shards := make([]chan func(), cfg.Workers)
	for i := range shards {
		shards[i] = make(chan func(), cfg.QueueSize)
	}
	m.runMu.Lock()
	m.shards = shards
	m.running = true
	m.runMu.Unlock()

	m.log.Info("command dispatcher started", logx.Int("workers", cfg.Workers), logx.Int("queue_cap", cfg.QueueSize))

	for i, jobs := range shards {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					job()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		m.runMu.Lock()
		m.running = false
		for _, ch := range shards {
			close(ch)
		}
		m.shards = nil
		m.runMu.Unlock()

		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			from := up.SenderOf()
			if !m.tryEnqueue(from.ID, func() { m.Dispatch(ctx, up) }) {
				m.log.Warn("dispatch queue full", logx.Int64("from_id", from.ID))
				m.replyBusy(ctx, up)
			}
		}
	}
}

func (m *CommandManager) replyBusy(ctx context.Context, up kit.Update) {
	switch {
	case up.Callback != nil:
		_ = m.adapter.AnswerCallback(ctx, up.Callback.ID, BusyText, false)
	case up.Message != nil:
		_, _ = m.adapter.SendText(ctx, kit.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID}, BusyText, nil)
	}
}

// Dispatch handles one update synchronously.
func (m *CommandManager) Dispatch(ctx context.Context, up kit.Update) {
	from := up.SenderOf()
	if from.ID == 0 {
		return
	}
	if m.roles != nil {
		if err := m.roles.TouchActivity(ctx, from.ID); err != nil {
			m.log.Debug("touch activity failed", logx.Int64("from_id", from.ID), logx.Err(err))
		}
	}
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			m.routeMessage(ctx, up)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			m.routeCallback(ctx, up)
		}
	}
}

// lookupRole resolves the sender's role; unknown senders are employees.
func (m *CommandManager) lookupRole(ctx context.Context, id int64) (domain.Role, bool, error) {
	if m.roles == nil {
		return domain.RoleEmployee, false, nil
	}
	role, known, err := m.roles.Role(ctx, id)
	if err != nil {
		return domain.RoleEmployee, false, err
	}
	if !known {
		return domain.RoleEmployee, false, nil
	}
	return role, true, nil
}

func (m *CommandManager) newRequest(up kit.Update, chat kit.ChatTarget, command string) *Request {
	rid := newReqID()
	from := up.SenderOf()
	return &Request{
		Update:  up,
		Chat:    chat,
		From:    from,
		Command: command,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from.ID),
			logx.String("cmd", command),
		),
	}
}

func (m *CommandManager) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	m.mu.RLock()
	byName, byButton, fallback, defTimeout := m.byName, m.byButton, m.fallback, m.cfg.CommandTimeout
	m.mu.RUnlock()

	var (
		cmd  *Command
		args []string
	)
	// Quote-only text like '' tokenizes to nothing; treat it as plain text.
	parts := tokenize(text)
	word, isCmd := "", false
	if len(parts) > 0 {
		word, isCmd = commandWord(parts[0])
	}
	if isCmd {
		cmd = byName[word]
		args = parts[1:]
		if cmd == nil {
			// Unknown slash commands may still be conversation input (/cancel
			// when not registered); the fallback decides.
			if fallback == nil {
				_, _ = m.adapter.SendText(ctx, chat, UnknownText, nil)
				return
			}
		}
	} else {
		cmd = byButton[normalizeLabel(text)]
	}

	req := m.newRequest(up, chat, "text")
	req.Text = text
	role, known, err := m.lookupRole(ctx, req.From.ID)
	req.Role, req.Known = role, known

	if cmd == nil {
		if fallback == nil {
			_, _ = m.adapter.SendText(ctx, chat, UnknownText, nil)
			return
		}
		if err != nil {
			req.Logger.Warn("role lookup failed", logx.Err(err))
		}
		m.run(ctx, req, fallback, defTimeout)
		return
	}

	req.Command = cmd.Name
	req.Args = args
	req.Logger = req.Logger.With(logx.String("cmd", cmd.Name))
	if cmd.Access != AccessEveryone {
		if err != nil {
			req.Logger.Warn("role lookup failed", logx.Err(err))
			_ = req.ReplyText(ctx, FailureText)
			return
		}
		if !cmd.Access.Allows(role) {
			req.Logger.Info("access denied", logx.String("role", string(role)))
			_ = req.ReplyText(ctx, DeniedText)
			return
		}
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defTimeout
	}
	m.run(ctx, req, cmd.Handle, timeout)
}

func (m *CommandManager) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	ns, action, payload, ok := tgui.ParseData(strings.TrimSpace(cb.Data))
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "", false)
		return
	}

	m.cbMu.RLock()
	route, found := m.callbacks[ns][action]
	m.cbMu.RUnlock()
	m.mu.RLock()
	defTimeout := m.cfg.CommandTimeout
	m.mu.RUnlock()

	req := m.newRequest(up, chat, "cb:"+ns+":"+action)
	req.Payload = payload
	if !found {
		req.Logger.Debug("unknown callback")
		_ = req.Answer(ctx, "", false)
		return
	}

	role, known, err := m.lookupRole(ctx, req.From.ID)
	req.Role, req.Known = role, known
	if route.Access != AccessEveryone {
		if err != nil {
			req.Logger.Warn("role lookup failed", logx.Err(err))
			_ = req.Answer(ctx, FailureText, true)
			return
		}
		if !route.Access.Allows(role) {
			req.Logger.Info("access denied", logx.String("role", string(role)))
			_ = req.Answer(ctx, DeniedText, true)
			return
		}
	}
	timeout := route.Timeout
	if timeout <= 0 {
		timeout = defTimeout
	}
	m.run(ctx, req, route.Handle, timeout)
	// Stop the button spinner if the handler did not answer.
	_ = req.Answer(ctx, "", false)
}

func (m *CommandManager) run(ctx context.Context, req *Request, h HandlerFunc, timeout time.Duration) {
	final := Chain(
		h,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(timeout),
	)
	err := final(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotHandled):
		_ = req.ReplyText(ctx, UnknownText)
	case req.IsCallback():
		_ = req.Answer(ctx, FailureText, true)
	default:
		_ = req.ReplyText(ctx, FailureText)
	}
}
