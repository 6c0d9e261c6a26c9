package digestjob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/pkg/models"
)

type fakeSource struct {
	subs  []*models.Submission
	asked []time.Time
}

func (f *fakeSource) Since(t time.Time) []*models.Submission {
	f.asked = append(f.asked, t)
	var out []*models.Submission
	for _, s := range f.subs {
		if !s.CreatedAt.Before(t) {
			out = append(out, s)
		}
	}
	return out
}

type fakeSender struct {
	chat int64
	got  [][]*models.Submission
	err  error
}

func (f *fakeSender) SendDigest(_ context.Context, chatID int64, subs []*models.Submission) error {
	if f.err != nil {
		return f.err
	}
	f.chat = chatID
	f.got = append(f.got, subs)
	return nil
}

// Monday 2026-03-02 06:00 UTC
var tick = time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

func sub(id string, at time.Time) *models.Submission {
	return &models.Submission{ID: id, CreatedAt: at, Content: models.Text{Text: id}}
}

func TestRunOnceCoversPreviousWeek(t *testing.T) {
	src := &fakeSource{subs: []*models.Submission{
		sub("old", tick.AddDate(0, 0, -8)),
		sub("recent", tick.AddDate(0, 0, -2)),
	}}
	snd := &fakeSender{}
	j := New("0 6 * * 1", -100, src, snd)
	j.now = func() time.Time { return tick }

	require.NoError(t, j.RunOnce(context.Background()))
	require.Len(t, snd.got, 1)
	assert.Equal(t, int64(-100), snd.chat)
	require.Len(t, snd.got[0], 1)
	assert.Equal(t, "recent", snd.got[0][0].ID)
	assert.Equal(t, tick.AddDate(0, 0, -7), src.asked[0])
}

func TestRunOnceStartsFromLastRun(t *testing.T) {
	src := &fakeSource{}
	snd := &fakeSender{}
	j := New("0 6 * * 1", -100, src, snd)
	now := tick
	j.now = func() time.Time { return now }

	require.NoError(t, j.RunOnce(context.Background()))
	assert.Empty(t, snd.got, "empty window sends nothing")

	src.subs = []*models.Submission{sub("new", tick.Add(time.Hour))}
	now = tick.AddDate(0, 0, 7)
	require.NoError(t, j.RunOnce(context.Background()))
	assert.Equal(t, tick, src.asked[1])
	require.Len(t, snd.got, 1)
}

func TestRunOnceSendFailureKeepsWindow(t *testing.T) {
	src := &fakeSource{subs: []*models.Submission{sub("a", tick.Add(-time.Hour))}}
	snd := &fakeSender{err: errors.New("boom")}
	j := New("0 6 * * 1", -100, src, snd)
	j.now = func() time.Time { return tick }

	err := j.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.True(t, j.lastRun.IsZero())
}

func TestStartStopsOnCancel(t *testing.T) {
	j := New("0 6 * * 1", -100, &fakeSource{}, &fakeSender{})
	ctx, cancel := context.WithCancel(context.Background())
	stop := j.Start(ctx)
	stop()
	cancel()
}
