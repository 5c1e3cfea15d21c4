// Package scheduler triggers periodic bot jobs (the open-issues digest and
// the conversation sweep) with robfig/cron.
package scheduler
