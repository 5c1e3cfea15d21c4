package app

import (
	"context"

	"issuebot/internal/eventbus"
	logx "issuebot/pkg/logx"
)

// startEventLog records bus events in the log so operators (and the log
// chat) see issue activity.
func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(128)
	log := a.log.With(logx.String("comp", "events"))
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				logEvent(log, e)
			}
		}
	})
}

func logEvent(log logx.Logger, e eventbus.Event) {
	switch d := e.Data.(type) {
	case eventbus.IssueEvent:
		log.Debug(e.Type, logx.String("issue", d.Ref), logx.Int64("actor", d.Actor))
	case eventbus.BroadcastEvent:
		log.Info(e.Type, logx.String("name", d.Name), logx.Int("total", d.Total),
			logx.Int("sent", d.Sent), logx.Int("failed", d.Failed), logx.Duration("took", d.Took))
	case eventbus.UserEvent:
		log.Debug(e.Type, logx.Int64("user_id", d.UserID), logx.String("username", d.Username))
	default:
		log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	}
}
