package game

import (
	"bytes"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func acceptAll(TimerKind, int64) bool { return true }

func TestSchedulerOrder(t *testing.T) {
	s := NewScheduler(log.New(&bytes.Buffer{}, "", 0))
	var got []string
	s.Schedule(t0.Add(2*time.Second), TimerAdvance, 1, func(time.Time) { got = append(got, "advance") })
	s.Schedule(t0.Add(time.Second), TimerCarve, 1, func(time.Time) { got = append(got, "carve") })
	s.Schedule(t0.Add(time.Second), TimerKill, 1, func(time.Time) { got = append(got, "kill") })

	next, ok := s.Next()
	assert.True(t, ok)
	assert.Equal(t, t0.Add(time.Second), next)

	assert.Equal(t, 0, s.RunDue(t0, acceptAll))
	assert.Equal(t, 2, s.RunDue(t0.Add(time.Second), acceptAll))
	assert.Equal(t, []string{"carve", "kill"}, got, "same instant keeps scheduling order")
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.RunDue(t0.Add(time.Hour), acceptAll))
	assert.Equal(t, []string{"carve", "kill", "advance"}, got)
	_, ok = s.Next()
	assert.False(t, ok)
}

func TestSchedulerDropsStale(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler(log.New(&buf, "", 0))
	ran := 0
	s.Schedule(t0, TimerKill, 1, func(time.Time) { ran++ })
	s.Schedule(t0, TimerKill, 2, func(time.Time) { ran++ })
	s.Schedule(t0, TimerBotFire, 7, func(time.Time) { ran++ })

	n := s.RunDue(t0, func(kind TimerKind, epoch int64) bool {
		return kind == TimerKill && epoch == 2
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, ran)
	assert.Equal(t, 0, s.Len())
	assert.Contains(t, buf.String(), "kind=bot-fire epoch=7 reason=stale")
}

func TestSchedulerRecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler(log.New(&buf, "", 0))
	after := false
	s.Schedule(t0, TimerCarve, 1, func(time.Time) { panic("boom") })
	s.Schedule(t0, TimerAdvance, 1, func(time.Time) { after = true })

	assert.NotPanics(t, func() { s.RunDue(t0, acceptAll) })
	assert.True(t, after)
	assert.Contains(t, buf.String(), "timer panic kind=carve")
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler(log.New(&bytes.Buffer{}, "", 0))
	s.Schedule(t0, TimerKill, 1, func(time.Time) { t.Fatal("cancelled timer ran") })
	s.Cancel()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.RunDue(t0.Add(time.Hour), acceptAll))
}
