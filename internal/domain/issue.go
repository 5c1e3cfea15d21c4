package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type IssueStatus string

const (
	IssueOpen   IssueStatus = "open"
	IssueClosed IssueStatus = "closed"
)

// Issue is a tracked announcement. Resolution, ClosedBy and ClosedAt are
// zero while the issue is open and are set together when it closes.
type Issue struct {
	ID          int64
	Title       string
	Description string
	Status      IssueStatus
	CreatedBy   int64
	CreatedAt   time.Time

	Resolution string
	ClosedBy   int64
	ClosedAt   time.Time
}

func (i Issue) Open() bool { return i.Status == IssueOpen }

func (i Issue) Reference() string { return Reference(i.ID) }

const referencePrefix = "ISSUE-"

// Reference renders an issue id as ISSUE-007. Ids above 999 keep all digits.
func Reference(id int64) string {
	return fmt.Sprintf("%s%03d", referencePrefix, id)
}

var ErrBadReference = errors.New("invalid issue reference")

// ParseReference accepts "ISSUE-007", "issue-7", "#7" and "7".
func ParseReference(s string) (int64, error) {
	s = strings.TrimSpace(s)
	n := len(referencePrefix)
	switch {
	case len(s) > n && strings.EqualFold(s[:n], referencePrefix):
		s = s[n:]
	case strings.HasPrefix(s, "#"):
		s = s[1:]
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadReference, s)
	}
	return id, nil
}
