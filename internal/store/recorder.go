package store

import (
	"context"
	"sync"
	"time"

	"github.com/MJE43/funcwar-server/internal/game"
)

// Recorder implements game.MatchRecorder. Matches are written on a
// background goroutine so the room loop never waits on the database.
type Recorder struct {
	store   *Store
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ game.MatchRecorder = (*Recorder)(nil)

// NewRecorder creates a recorder writing to store. timeout bounds each
// write; zero means 5s.
func NewRecorder(store *Store, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{store: store, timeout: timeout}
}

// RecordMatch copies results and saves them in the background.
func (r *Recorder) RecordMatch(results []game.MatchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(results) == 0 {
		return
	}
	batch := make([]game.MatchResult, len(results))
	copy(batch, results)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.store.SaveMatch(ctx, batch); err != nil {
			r.store.log.Printf("record match failed id=%s err=%v", batch[0].MatchID, err)
		}
	}()
}

// Flush waits for in-flight writes.
func (r *Recorder) Flush() {
	r.wg.Wait()
}

// Close rejects further matches and waits for in-flight writes.
func (r *Recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}
