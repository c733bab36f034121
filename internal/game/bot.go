package game

import (
	"math"
	"time"

	bt "github.com/joeycumines/go-behaviortree"

	"github.com/MJE43/funcwar-server/internal/hint"
	"github.com/MJE43/funcwar-server/internal/shot"
	"github.com/MJE43/funcwar-server/internal/trajectory"
)

// botPlan is the blackboard for one bot turn.
type botPlan struct {
	s   *Session
	p   *Player
	now time.Time

	target   shot.Target
	function string
}

// tree aims at the nearest enemy and fires; if any step fails the bot passes
// its turn so the match never stalls on it.
func (b *botPlan) tree() bt.Node {
	return bt.New(
		bt.Selector,
		bt.New(
			bt.Sequence,
			bt.New(b.pickTarget),
			bt.New(b.aim),
			bt.New(b.fire),
		),
		bt.New(b.pass),
	)
}

func (b *botPlan) pickTarget([]bt.Node) (bt.Status, error) {
	t, ok := b.s.nearestEnemy(b.p)
	if !ok {
		return bt.Failure, nil
	}
	b.target = t
	return bt.Success, nil
}

// aim uses the same capped straight-line baseline the hint advisor falls
// back to. In the second-order mode the bot also tilts its launch angle
// toward the target, since y'' = 0 keeps the initial slope.
func (b *botPlan) aim([]bt.Node) (bt.Status, error) {
	sd := b.p.Soldiers[b.p.Current]
	frame := shot.Frame(b.s.g, b.s.target(b.p, b.p.Current), sd.Angle)
	dx, dy := frame.ToLocal(b.target.Pos)
	if b.s.mode == trajectory.SecondOrderODE && dx > 0 {
		sd.Angle = frame.ClampAngle(math.Atan2(dy, dx))
	}
	b.function = hint.Baseline(b.s.mode, dx, dy)
	return bt.Success, nil
}

func (b *botPlan) fire([]bt.Node) (bt.Status, error) {
	if err := b.s.fire(b.p, b.function, b.now); err != nil {
		b.s.log.Printf("bot shot rejected session=%s client=%s function=%q err=%v", b.s.id, b.p.ClientID, b.function, err)
		return bt.Failure, nil
	}
	return bt.Success, nil
}

func (b *botPlan) pass([]bt.Node) (bt.Status, error) {
	b.s.advanceTurn(b.now, "pass")
	return bt.Success, nil
}

// botTurn runs when the bot's fire timer comes due.
func (s *Session) botTurn(now time.Time) {
	p := s.players[s.current]
	if !p.IsBot {
		return
	}
	plan := &botPlan{s: s, p: p, now: now}
	if status, err := plan.tree().Tick(); err != nil || status != bt.Success {
		s.log.Printf("bot turn incomplete session=%s client=%s status=%v err=%v", s.id, p.ClientID, status, err)
	}
}
