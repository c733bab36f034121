package game

import (
	"container/heap"
	"log"
	"runtime/debug"
	"time"
)

// TimerKind identifies what a scheduled callback does. Shot timers are
// validated against the shot epoch, bot timers against the turn sequence.
type TimerKind int

const (
	TimerKill TimerKind = iota
	TimerCarve
	TimerAdvance
	TimerBotFire
)

func (k TimerKind) String() string {
	switch k {
	case TimerKill:
		return "kill"
	case TimerCarve:
		return "carve"
	case TimerAdvance:
		return "advance"
	case TimerBotFire:
		return "bot-fire"
	}
	return "unknown"
}

type timer struct {
	at    time.Time
	kind  TimerKind
	epoch int64
	seq   uint64
	fn    func(now time.Time)
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timer)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Scheduler is a min-heap of deferred session mutations. It is not safe for
// concurrent use; the owning room goroutine drains it.
type Scheduler struct {
	timers timerHeap
	seq    uint64
	log    *log.Logger
}

// NewScheduler returns an empty scheduler that reports callback panics to
// logger.
func NewScheduler(logger *log.Logger) *Scheduler {
	return &Scheduler{log: logger}
}

// Schedule queues fn to run at or after at. Entries due at the same instant
// run in the order they were scheduled.
func (s *Scheduler) Schedule(at time.Time, kind TimerKind, epoch int64, fn func(now time.Time)) {
	s.seq++
	heap.Push(&s.timers, &timer{at: at, kind: kind, epoch: epoch, seq: s.seq, fn: fn})
}

// Next returns when the earliest entry is due.
func (s *Scheduler) Next() (time.Time, bool) {
	if len(s.timers) == 0 {
		return time.Time{}, false
	}
	return s.timers[0].at, true
}

// Len returns the number of pending entries.
func (s *Scheduler) Len() int {
	return len(s.timers)
}

// RunDue pops and runs every entry due at now. Entries whose epoch valid
// rejects are dropped without running. It returns the number of callbacks
// that ran.
func (s *Scheduler) RunDue(now time.Time, valid func(kind TimerKind, epoch int64) bool) int {
	ran := 0
	for len(s.timers) > 0 && !s.timers[0].at.After(now) {
		t := heap.Pop(&s.timers).(*timer)
		if !valid(t.kind, t.epoch) {
			s.log.Printf("timer dropped kind=%s epoch=%d reason=stale", t.kind, t.epoch)
			continue
		}
		s.run(t, now)
		ran++
	}
	return ran
}

func (s *Scheduler) run(t *timer, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Printf("timer panic kind=%s epoch=%d err=%v\n%s", t.kind, t.epoch, r, debug.Stack())
		}
	}()
	t.fn(now)
}

// Cancel drops every pending entry.
func (s *Scheduler) Cancel() {
	s.timers = nil
}
