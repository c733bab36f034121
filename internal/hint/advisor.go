package hint

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/MJE43/funcwar-server/internal/scan"
	"github.com/MJE43/funcwar-server/internal/shot"
	"github.com/MJE43/funcwar-server/internal/trajectory"
)

const defaultSearchTimeout = 2 * time.Second

// Advisor runs the validate-and-retry loop around a Strategy. A nil strategy
// skips straight to the local fallbacks.
type Advisor struct {
	strategy      Strategy
	scanner       *scan.Scanner
	searchTimeout time.Duration
	log           *log.Logger
}

// NewAdvisor creates an advisor. logger may be nil.
func NewAdvisor(strategy Strategy, logger *log.Logger) *Advisor {
	if logger == nil {
		logger = log.New(os.Stdout, "[HINT] ", log.LstdFlags|log.Lshortfile)
	}
	return &Advisor{
		strategy:      strategy,
		scanner:       scan.NewScanner(),
		searchTimeout: defaultSearchTimeout,
		log:           logger,
	}
}

// Generate never fails: when nothing validates it still returns the bot
// baseline. Strategy calls are bounded by the request's MaxHintAttempts.
func (a *Advisor) Generate(ctx context.Context, req Request) Response {
	c := BuildContext(req)
	maxAttempts := req.Game.MaxHintAttempts
	var seen []verdict
	attempts := 0

	if a.strategy != nil {
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			if ctx.Err() != nil {
				a.log.Printf("strategy stopped attempt=%d err=%v", attempt, ctx.Err())
				break
			}
			if req.Progress != nil {
				req.Progress(attempt, maxAttempts)
			}
			c.Attempt = attempt
			raw, err := a.strategy.Suggest(ctx, c)
			attempts++
			if err != nil {
				a.log.Printf("strategy failed attempt=%d err=%v", attempt, err)
				c.Feedback = append(c.Feedback, Feedback{Reason: "no usable answer: " + err.Error()})
				continue
			}
			candidate := Substitute(clean(raw), c)
			v := evaluate(req, c, candidate)
			seen = append(seen, v)
			if v.accepted {
				a.log.Printf("hint accepted source=%s attempt=%d function=%q", SourceStrategy, attempt, candidate)
				return Response{Function: candidate, Source: SourceStrategy, Attempts: attempts, Accepted: true}
			}
			a.log.Printf("hint rejected attempt=%d function=%q reason=%q", attempt, candidate, v.reason)
			c.Feedback = append(c.Feedback, v.feedback())
		}
	}

	// The search is local and short; run it even if the strategy used up
	// the caller's deadline.
	searchCtx := context.WithoutCancel(ctx)
	if fn, ok := a.search(searchCtx, req, c, &seen); ok {
		return Response{Function: fn, Source: SourceSearch, Attempts: attempts, Accepted: true}
	}
	if fn, ok := bestEffort(seen); ok {
		return Response{Function: fn, Source: SourceBestEffort, Attempts: attempts}
	}
	return Response{Function: Baseline(req.Mode, c.DX, c.DY), Source: SourceBaseline, Attempts: attempts}
}

func shotFrame(req Request) trajectory.Params {
	return shot.Frame(req.Game, req.Shooter, req.Angle)
}
