// Package conversation runs the per-admin multi-step forms: title then
// description to create an issue, and resolution to close one.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"issuebot/internal/broadcast"
	"issuebot/internal/domain"
	"issuebot/internal/issues"
	kit "issuebot/internal/transport"
	logx "issuebot/pkg/logx"
)

// DefaultTTL bounds how long an unanswered prompt stays pending.
const DefaultTTL = 30 * time.Minute

// CancelLabel is the reply-keyboard button shown while a form is pending.
const CancelLabel = "❌ Cancel"

// Broadcast names used for the two announcements.
const (
	AnnounceCreated  = "issue.created"
	AnnounceResolved = "issue.resolved"
)

// IsCancel reports whether text is one of the cancel keywords.
func IsCancel(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == "/cancel" || t == "cancel" || t == strings.ToLower(CancelLabel)
}

type Outcome int

const (
	// OutcomeIdle: no pending conversation; the text was not consumed.
	OutcomeIdle Outcome = iota
	// OutcomeReprompt: input rejected, same step again.
	OutcomeReprompt
	// OutcomeAdvanced: moved to the next step.
	OutcomeAdvanced
	OutcomeCancelled
	OutcomeCreated
	OutcomeClosed
	// OutcomeNotFound: the issue was closed (or vanished) before the resolution arrived.
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeReprompt:
		return "reprompt"
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeCreated:
		return "created"
	case OutcomeClosed:
		return "closed"
	case OutcomeNotFound:
		return "not_found"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result describes what HandleText did.
type Result struct {
	Outcome Outcome
	Prev    Step // step before the input
	Step    Step // step after the input
	Invalid *issues.ValidationError
	Issue   domain.Issue

	// Delivery is the announcement summary for OutcomeCreated and OutcomeClosed.
	Delivery    broadcast.Summary
	DeliveryErr error
}

// Issues is the part of issues.Service the controller drives.
type Issues interface {
	Create(ctx context.Context, title, description string, creator int64) (domain.Issue, error)
	Close(ctx context.Context, id int64, resolution string, closer int64) (domain.Issue, error)
	Get(ctx context.Context, id int64) (domain.Issue, bool, error)
}

// Announcer delivers announcements to every user.
type Announcer interface {
	Broadcast(ctx context.Context, name, text string, opt *kit.SendOptions) (broadcast.Summary, error)
}

type Controller struct {
	store  Store
	issues Issues
	ann    Announcer
	log    logx.Logger

	// Serializes inputs per admin inside this process; the store CAS covers
	// everything else (other processes, redis).
	locks sync.Map // int64 -> *sync.Mutex
}

func NewController(store Store, iss Issues, ann Announcer, log logx.Logger) *Controller {
	return &Controller{store: store, issues: iss, ann: ann, log: log.With(logx.String("comp", "conversation"))}
}

func (c *Controller) lock(admin int64) func() {
	v, _ := c.locks.LoadOrStore(admin, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Current returns the admin's pending state; ok is false when idle.
func (c *Controller) Current(ctx context.Context, admin int64) (State, bool, error) {
	return c.store.Load(ctx, admin)
}

// BeginIssue starts (or restarts) the create form.
func (c *Controller) BeginIssue(ctx context.Context, admin int64) error {
	defer c.lock(admin)()
	if _, err := c.store.Put(ctx, admin, State{Step: StepAwaitingTitle}); err != nil {
		return fmt.Errorf("begin issue: %w", err)
	}
	c.log.Debug("conversation started", logx.Int64("admin", admin), logx.String("step", string(StepAwaitingTitle)))
	return nil
}

// BeginClose starts the resolution form for an open issue.
func (c *Controller) BeginClose(ctx context.Context, admin, issueID int64) (domain.Issue, error) {
	defer c.lock(admin)()
	iss, ok, err := c.issues.Get(ctx, issueID)
	if err != nil {
		return domain.Issue{}, fmt.Errorf("begin close: %w", err)
	}
	if !ok || !iss.Open() {
		return domain.Issue{}, issues.ErrNotFoundOrClosed
	}
	if _, err := c.store.Put(ctx, admin, State{Step: StepAwaitingResolution, IssueID: issueID}); err != nil {
		return domain.Issue{}, fmt.Errorf("begin close: %w", err)
	}
	c.log.Debug("conversation started", logx.Int64("admin", admin), logx.String("step", string(StepAwaitingResolution)), logx.String("ref", iss.Reference()))
	return iss, nil
}

// Cancel clears any pending state.
func (c *Controller) Cancel(ctx context.Context, admin int64) (bool, error) {
	defer c.lock(admin)()
	had, err := c.store.Delete(ctx, admin)
	if err != nil {
		return false, fmt.Errorf("cancel: %w", err)
	}
	return had, nil
}

// HandleText feeds one free-text message into the admin's conversation.
func (c *Controller) HandleText(ctx context.Context, admin int64, text string) (Result, error) {
	defer c.lock(admin)()

	st, ok, err := c.store.Load(ctx, admin)
	if err != nil {
		return Result{}, fmt.Errorf("load conversation: %w", err)
	}
	if !ok {
		if IsCancel(text) {
			return Result{Outcome: OutcomeCancelled, Prev: StepIdle, Step: StepIdle}, nil
		}
		return Result{Outcome: OutcomeIdle, Prev: StepIdle, Step: StepIdle}, nil
	}

	if IsCancel(text) {
		if _, err := c.store.Delete(ctx, admin); err != nil {
			return Result{}, fmt.Errorf("cancel: %w", err)
		}
		return Result{Outcome: OutcomeCancelled, Prev: st.Step, Step: StepIdle}, nil
	}

	switch st.Step {
	case StepAwaitingTitle:
		return c.onTitle(ctx, admin, st, text)
	case StepAwaitingDescription:
		return c.onDescription(ctx, admin, st, text)
	case StepAwaitingResolution:
		return c.onResolution(ctx, admin, st, text)
	}
	// Unknown step (older deploy): drop it.
	_, _ = c.store.Delete(ctx, admin)
	return Result{Outcome: OutcomeIdle, Prev: st.Step, Step: StepIdle}, nil
}

func reprompt(st State, err error) (Result, error) {
	var ve *issues.ValidationError
	if errors.As(err, &ve) {
		return Result{Outcome: OutcomeReprompt, Prev: st.Step, Step: st.Step, Invalid: ve}, nil
	}
	return Result{}, err
}

func (c *Controller) swap(ctx context.Context, admin int64, st State, next *State) error {
	swapped, err := c.store.CompareAndSwap(ctx, admin, st.Version, next)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if !swapped {
		return ErrStateChanged
	}
	return nil
}

func (c *Controller) onTitle(ctx context.Context, admin int64, st State, text string) (Result, error) {
	title, err := issues.ValidateTitle(text)
	if err != nil {
		return reprompt(st, err)
	}
	if err := c.swap(ctx, admin, st, &State{Step: StepAwaitingDescription, Title: title}); err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeAdvanced, Prev: st.Step, Step: StepAwaitingDescription}, nil
}

func (c *Controller) onDescription(ctx context.Context, admin int64, st State, text string) (Result, error) {
	desc, err := issues.ValidateDescription(text)
	if err != nil {
		return reprompt(st, err)
	}
	// Clear the form before creating so a double submit creates one issue.
	if err := c.swap(ctx, admin, st, nil); err != nil {
		return Result{}, err
	}
	iss, err := c.issues.Create(ctx, st.Title, desc, admin)
	if err != nil {
		return Result{}, err
	}

	res := Result{Outcome: OutcomeCreated, Prev: st.Step, Step: StepIdle, Issue: iss}
	msg := issues.NewIssueAnnouncement(iss)
	res.Delivery, res.DeliveryErr = c.ann.Broadcast(broadcast.WithActor(ctx, admin), AnnounceCreated, msg.Text, msg.Opt)
	return res, nil
}

func (c *Controller) onResolution(ctx context.Context, admin int64, st State, text string) (Result, error) {
	resolution, err := issues.ValidateResolution(text)
	if err != nil {
		return reprompt(st, err)
	}
	if err := c.swap(ctx, admin, st, nil); err != nil {
		return Result{}, err
	}
	iss, err := c.issues.Close(ctx, st.IssueID, resolution, admin)
	if errors.Is(err, issues.ErrNotFoundOrClosed) {
		return Result{Outcome: OutcomeNotFound, Prev: st.Step, Step: StepIdle, Issue: domain.Issue{ID: st.IssueID}}, nil
	}
	if err != nil {
		return Result{}, err
	}

	res := Result{Outcome: OutcomeClosed, Prev: st.Step, Step: StepIdle, Issue: iss}
	msg := issues.ResolvedAnnouncement(iss)
	res.Delivery, res.DeliveryErr = c.ann.Broadcast(broadcast.WithActor(ctx, admin), AnnounceResolved, msg.Text, msg.Opt)
	return res, nil
}
