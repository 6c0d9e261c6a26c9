// Package digestjob sends the submissions digest on a cron schedule.
package digestjob

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"relaybot/pkg/logger"
	"relaybot/pkg/models"
)

// Source lists submissions created at or after a point in time.
type Source interface {
	Since(t time.Time) []*models.Submission
}

// Sender delivers a rendered digest to a chat.
type Sender interface {
	SendDigest(ctx context.Context, chatID int64, subs []*models.Submission) error
}

type Job struct {
	cron   string
	chatID int64
	src    Source
	send   Sender
	now    func() time.Time

	mu      sync.Mutex
	running bool
	lastRun time.Time
}

func New(cron string, chatID int64, src Source, send Sender) *Job {
	return &Job{cron: cron, chatID: chatID, src: src, send: send, now: time.Now}
}

// Start runs the schedule loop until ctx is done or the returned cancel
// func is called.
func (j *Job) Start(ctx context.Context) context.CancelFunc {
	ctx2, cancel := context.WithCancel(ctx)
	logger.Info("digest_schedule_enabled", "cron", j.cron, "chat", j.chatID)
	go j.scheduleLoop(ctx2)
	return cancel
}

func (j *Job) scheduleLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(j.cron, j.now(), false)
		if err != nil {
			logger.Error("digest_nexttick_failed", "cron", j.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := j.RunOnce(ctx); err != nil {
				logger.Error("digest_run_failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// window returns the start of the period a run at now covers: the
// previous run, or on the first run the cron tick before now.
func (j *Job) window(now time.Time) time.Time {
	if !j.lastRun.IsZero() {
		return j.lastRun
	}
	prev, err := gronx.PrevTickBefore(j.cron, now, false)
	if err != nil {
		return now.AddDate(0, 0, -7)
	}
	return prev
}

// RunOnce sends the digest of submissions since the last window start.
// Overlapping runs are skipped; an empty window sends nothing.
func (j *Job) RunOnce(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	now := j.now()
	since := j.window(now)
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	subs := j.src.Since(since)
	if len(subs) == 0 {
		logger.Info("digest_skipped_empty", "since", since.Format(time.RFC3339))
		j.markRun(now)
		return nil
	}
	if err := j.send.SendDigest(ctx, j.chatID, subs); err != nil {
		return fmt.Errorf("digest for %d submissions: %w", len(subs), err)
	}
	j.markRun(now)
	return nil
}

func (j *Job) markRun(t time.Time) {
	j.mu.Lock()
	j.lastRun = t
	j.mu.Unlock()
}
