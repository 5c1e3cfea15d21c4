package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFiltersByTopic(t *testing.T) {
	t.Parallel()
	b := New()
	issues, unsubIssues := b.Subscribe(4, TopicIssueCreated, TopicIssueClosed)
	defer unsubIssues()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()

	b.Publish(Event{Type: TopicUserRegistered, Data: UserEvent{UserID: 1}})
	b.Publish(Event{Type: TopicIssueCreated, Data: IssueEvent{IssueID: 7, Ref: "ISSUE-007"}})

	require.Len(t, issues, 1)
	e := <-issues
	assert.Equal(t, TopicIssueCreated, e.Type)
	assert.False(t, e.Time.IsZero())
	assert.Equal(t, "ISSUE-007", e.Data.(IssueEvent).Ref)

	assert.Len(t, all, 2)
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	assert.Len(t, ch, 1)

	unsub()
	unsub()
	b.Publish(Event{Type: "c"})
	_, open := <-ch
	assert.True(t, open)
	_, open = <-ch
	assert.False(t, open)
}
