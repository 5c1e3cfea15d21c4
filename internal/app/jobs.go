package app

import (
	"context"
	"strings"
	"time"

	"issuebot/internal/config"
	"issuebot/internal/conversation"
	logx "issuebot/pkg/logx"
)

const (
	JobDigest = "issues.digest"
	JobSweep  = "conversation.sweep"
)

func (a *App) registerJobs(cfg *config.Config) error {
	if sw, ok := a.convStore.(conversation.Sweeper); ok {
		every, err := config.DurationOr("scheduler.sweep_every", cfg.Scheduler.SweepEvery, 5*time.Minute)
		if err != nil {
			return err
		}
		err = a.sched.AddSchedule(JobSweep, every.String(), 10*time.Second, func(context.Context) error {
			if n := sw.Sweep(time.Now()); n > 0 {
				a.log.Debug("expired conversations dropped", logx.Int("count", n))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return a.applyDigest(cfg)
}

// applyDigest adds, replaces or removes the digest job to match cfg.
func (a *App) applyDigest(cfg *config.Config) error {
	spec := strings.TrimSpace(cfg.Scheduler.Digest)
	if spec == "" {
		a.sched.Remove(JobDigest)
		return nil
	}
	timeout, err := config.DurationOr("scheduler.digest_timeout", cfg.Scheduler.DigestTimeout, 2*time.Minute)
	if err != nil {
		return err
	}
	return a.sched.AddSchedule(JobDigest, spec, timeout, func(ctx context.Context) error {
		sum, err := a.bot.SendDigest(ctx)
		if err != nil {
			return err
		}
		a.log.Info("digest sent", logx.Int("sent", sum.Sent), logx.Int("failed", sum.Failed))
		return nil
	})
}
