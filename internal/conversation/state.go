package conversation

import (
	"context"
	"errors"
	"time"
)

// Step tags the pending input of an admin's conversation.
type Step string

const (
	StepIdle                Step = "idle"
	StepAwaitingTitle       Step = "awaiting_title"
	StepAwaitingDescription Step = "awaiting_description"
	StepAwaitingResolution  Step = "awaiting_resolution"
)

// State is one admin's pending conversation. Title is set only while
// awaiting the description; IssueID only while awaiting a resolution.
type State struct {
	Step      Step      `json:"step"`
	Title     string    `json:"title,omitempty"`
	IssueID   int64     `json:"issue_id,omitempty"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrStateChanged is returned when another update won the race for the same
// conversation (a concurrent double submit).
var ErrStateChanged = errors.New("conversation state changed concurrently")

// Store keeps conversation state per admin id. Versions are unique across
// the whole store so a deleted-then-recreated state never matches a stale
// expectation.
type Store interface {
	// Load returns the live state; ok is false when idle or expired.
	Load(ctx context.Context, admin int64) (st State, ok bool, err error)
	// Put overwrites any state (last writer wins) and returns it with its new version.
	Put(ctx context.Context, admin int64, st State) (State, error)
	// CompareAndSwap replaces the state only if its version equals expect.
	// A nil next deletes it. swapped is false when the version moved on.
	CompareAndSwap(ctx context.Context, admin int64, expect uint64, next *State) (swapped bool, err error)
	// Delete clears the state; existed reports whether there was one.
	Delete(ctx context.Context, admin int64) (existed bool, err error)
}

// Sweeper is implemented by stores that need periodic expiry.
type Sweeper interface {
	Sweep(now time.Time) int
}
