// Package issues owns the issue lifecycle: validation, creation, listing and
// the one-way open -> closed transition.
package issues

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"issuebot/internal/domain"
	"issuebot/internal/eventbus"
	"issuebot/internal/storage"
	logx "issuebot/pkg/logx"
)

// Length bounds, counted in runes after trimming surrounding whitespace.
const (
	TitleMin       = 3
	TitleMax       = 255
	DescriptionMin = 10
	ResolutionMin  = 10
)

// ErrNotFoundOrClosed is returned by Close when the issue does not exist or
// was already closed.
var ErrNotFoundOrClosed = errors.New("issue not found or already closed")

// ValidationError reports a field whose length is out of bounds.
// Max is 0 when the field has no upper bound.
type ValidationError struct {
	Field string
	Min   int
	Max   int
	Got   int
}

func (e *ValidationError) Error() string {
	if e.Max > 0 {
		return fmt.Sprintf("%s must be %d-%d characters (got %d)", e.Field, e.Min, e.Max, e.Got)
	}
	return fmt.Sprintf("%s must be at least %d characters (got %d)", e.Field, e.Min, e.Got)
}

func checkLen(field, v string, min, max int) error {
	n := utf8.RuneCountInString(v)
	if n < min || (max > 0 && n > max) {
		return &ValidationError{Field: field, Min: min, Max: max, Got: n}
	}
	return nil
}

// ValidateTitle trims t and checks it against [TitleMin, TitleMax].
func ValidateTitle(t string) (string, error) {
	t = strings.TrimSpace(t)
	return t, checkLen("title", t, TitleMin, TitleMax)
}

// ValidateDescription trims d and checks it is at least DescriptionMin long.
func ValidateDescription(d string) (string, error) {
	d = strings.TrimSpace(d)
	return d, checkLen("description", d, DescriptionMin, 0)
}

// ValidateResolution trims r and checks it is at least ResolutionMin long.
func ValidateResolution(r string) (string, error) {
	r = strings.TrimSpace(r)
	return r, checkLen("resolution", r, ResolutionMin, 0)
}

type Service struct {
	store storage.IssueStore
	audit storage.AuditStore
	bus   eventbus.Bus
	log   logx.Logger
	now   func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithAudit(a storage.AuditStore) Option { return func(s *Service) { s.audit = a } }

func New(store storage.IssueStore, bus eventbus.Bus, log logx.Logger, opts ...Option) *Service {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	s := &Service{store: store, bus: bus, log: log.With(logx.String("comp", "issues")), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create validates and stores a new open issue.
func (s *Service) Create(ctx context.Context, title, description string, creator int64) (domain.Issue, error) {
	title, err := ValidateTitle(title)
	if err != nil {
		return domain.Issue{}, err
	}
	description, err = ValidateDescription(description)
	if err != nil {
		return domain.Issue{}, err
	}
	iss, err := s.store.InsertIssue(ctx, title, description, creator, s.now())
	if err != nil {
		return domain.Issue{}, fmt.Errorf("create issue: %w", err)
	}
	s.log.Info("issue created", logx.String("ref", iss.Reference()), logx.Int64("creator", creator))
	s.appendAudit(ctx, creator, "create", iss)
	s.bus.Publish(eventbus.Event{Type: eventbus.TopicIssueCreated, Data: issueEvent(iss, creator)})
	return iss, nil
}

// Get returns the issue; ok is false when it does not exist.
func (s *Service) Get(ctx context.Context, id int64) (domain.Issue, bool, error) {
	return s.store.GetIssue(ctx, id)
}

// ListOpen returns open issues newest first. A nil creator lists everyone's.
func (s *Service) ListOpen(ctx context.Context, creator *int64) ([]domain.Issue, error) {
	out, err := s.store.ListOpenIssues(ctx, creator)
	if err != nil {
		return nil, fmt.Errorf("list open issues: %w", err)
	}
	return out, nil
}

// Close records the resolution and closes the issue exactly once.
// The resolution is validated before the store is touched.
func (s *Service) Close(ctx context.Context, id int64, resolution string, closer int64) (domain.Issue, error) {
	resolution, err := ValidateResolution(resolution)
	if err != nil {
		return domain.Issue{}, err
	}
	iss, ok, err := s.store.CloseIssue(ctx, id, resolution, closer, s.now())
	if err != nil {
		return domain.Issue{}, fmt.Errorf("close issue: %w", err)
	}
	if !ok {
		return domain.Issue{}, ErrNotFoundOrClosed
	}
	s.log.Info("issue closed", logx.String("ref", iss.Reference()), logx.Int64("closer", closer))
	s.appendAudit(ctx, closer, "close", iss)
	s.bus.Publish(eventbus.Event{Type: eventbus.TopicIssueClosed, Data: issueEvent(iss, closer)})
	return iss, nil
}

func issueEvent(iss domain.Issue, actor int64) eventbus.IssueEvent {
	return eventbus.IssueEvent{IssueID: iss.ID, Ref: iss.Reference(), Title: iss.Title, Actor: actor}
}

func (s *Service) appendAudit(ctx context.Context, actor int64, action string, iss domain.Issue) {
	if s.audit == nil {
		return
	}
	if err := s.audit.AppendAudit(ctx, storage.AuditEntry{
		At: s.now(), ActorID: actor, Component: "issues", Action: action, Target: iss.Reference(), OK: 1,
	}); err != nil {
		s.log.Warn("audit append failed", logx.String("action", action), logx.Err(err))
	}
}
