// Package scan evaluates a batch of candidates in parallel and keeps the ones
// whose metric matches a target condition.
package scan

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// TargetOp compares a candidate's metric with Request.TargetVal.
type TargetOp string

const (
	OpLessEqual    TargetOp = "le"
	OpGreaterEqual TargetOp = "ge"
)

// Outcome is what an evaluator reports for one candidate. Candidates with
// OK == false are counted but never become hits.
type Outcome struct {
	Metric float64
	OK     bool
}

// Evaluator scores the candidate at index i. It is called concurrently.
type Evaluator func(ctx context.Context, i int) Outcome

// Request describes one scan over the candidate indices [0, Count).
type Request struct {
	Count     int
	Evaluate  Evaluator
	TargetOp  TargetOp
	TargetVal float64
	Limit     int // keep at most this many hits; 0 keeps all
	Timeout   time.Duration
}

// Hit represents a single matching candidate
type Hit struct {
	Index  int     `json:"index"`
	Metric float64 `json:"metric"`
}

// Summary contains aggregate statistics
type Summary struct {
	TotalEvaluated uint64  `json:"total_evaluated"`
	HitsFound      int     `json:"hits_found"`
	MinMetric      float64 `json:"min_metric"`
	TimedOut       bool    `json:"timed_out,omitempty"`
}

// Result holds hits ordered by metric, then index.
type Result struct {
	Hits    []Hit   `json:"hits"`
	Summary Summary `json:"summary"`
}

// Job represents a batch of candidate indices to process
type Job struct {
	Start int
	End   int // inclusive
}

func (op TargetOp) matches(metric, target float64) bool {
	switch op {
	case OpLessEqual:
		return metric <= target
	case OpGreaterEqual:
		return metric >= target
	default:
		return false
	}
}

// Scanner fans candidate batches out to a fixed worker pool.
type Scanner struct {
	workerCount int
	batchSize   int
}

// NewScanner creates a scanner with one worker per available CPU.
func NewScanner() *Scanner {
	return &Scanner{
		workerCount: runtime.GOMAXPROCS(0),
		batchSize:   8,
	}
}

// Scan evaluates every candidate unless the context or the request timeout
// ends first. The hit order does not depend on worker scheduling.
func (s *Scanner) Scan(ctx context.Context, req Request) (*Result, error) {
	if req.Count < 0 || req.Evaluate == nil {
		return nil, ErrInvalidRequest
	}
	if req.TargetOp != OpLessEqual && req.TargetOp != OpGreaterEqual {
		return nil, ErrInvalidRequest
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	jobs := make(chan Job, s.workerCount*2)
	hits := make(chan Hit, s.workerCount*s.batchSize)

	var evaluated uint64
	var wg sync.WaitGroup
	for i := 0; i < s.workerCount; i++ {
		w := &worker{
			jobs:      jobs,
			hits:      hits,
			evaluate:  req.Evaluate,
			op:        req.TargetOp,
			target:    req.TargetVal,
			evaluated: &evaluated,
		}
		wg.Add(1)
		go w.run(ctx, &wg)
	}

	go s.generateJobs(ctx, jobs, req.Count)
	go func() {
		wg.Wait()
		close(hits)
	}()

	collected := make([]Hit, 0, 16)
	for hit := range hits {
		collected = append(collected, hit)
	}
	timedOut := ctx.Err() != nil

	sort.Slice(collected, func(a, b int) bool {
		if collected[a].Metric != collected[b].Metric {
			return collected[a].Metric < collected[b].Metric
		}
		return collected[a].Index < collected[b].Index
	})
	summary := summarize(collected, atomic.LoadUint64(&evaluated), timedOut)
	if req.Limit > 0 && len(collected) > req.Limit {
		collected = collected[:req.Limit]
	}
	return &Result{Hits: collected, Summary: summary}, nil
}

type worker struct {
	jobs      <-chan Job
	hits      chan<- Hit
	evaluate  Evaluator
	op        TargetOp
	target    float64
	evaluated *uint64 // atomic counter
}

func (w *worker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			w.process(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

func (w *worker) process(ctx context.Context, job Job) {
	for i := job.Start; i <= job.End; i++ {
		if ctx.Err() != nil {
			return
		}
		out := w.evaluate(ctx, i)
		atomic.AddUint64(w.evaluated, 1)
		if !out.OK || !w.op.matches(out.Metric, w.target) {
			continue
		}
		select {
		case w.hits <- Hit{Index: i, Metric: out.Metric}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scanner) generateJobs(ctx context.Context, jobs chan<- Job, count int) {
	defer close(jobs)
	for current := 0; current < count; {
		end := current + s.batchSize - 1
		if end >= count {
			end = count - 1
		}
		select {
		case jobs <- Job{Start: current, End: end}:
			current = end + 1
		case <-ctx.Done():
			return
		}
	}
}

// summarize expects hits sorted by metric.
func summarize(hits []Hit, total uint64, timedOut bool) Summary {
	summary := Summary{
		TotalEvaluated: total,
		HitsFound:      len(hits),
		TimedOut:       timedOut,
	}
	if len(hits) > 0 {
		summary.MinMetric = hits[0].Metric
	}
	return summary
}
