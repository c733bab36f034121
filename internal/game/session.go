package game

import (
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/funcwar-server/internal/config"
	"github.com/MJE43/funcwar-server/internal/hint"
	"github.com/MJE43/funcwar-server/internal/protocol"
	"github.com/MJE43/funcwar-server/internal/shot"
	"github.com/MJE43/funcwar-server/internal/terrain"
	"github.com/MJE43/funcwar-server/internal/trajectory"
)

// Options configures a new Session.
type Options struct {
	ID      string
	Mode    trajectory.Mode
	Game    config.Game
	Players []PlayerSpec

	// Terrain is used as is when set; otherwise a field is generated from
	// Seed. Seed 0 picks one from the clock.
	Terrain *terrain.Terrain
	Seed    int64
	// Soldiers pins soldier positions per client. Players not listed are
	// placed randomly.
	Soldiers map[string][]terrain.Point

	Transport Transport
	Recorder  MatchRecorder
	Logger    *log.Logger
}

// Session is one match.
type Session struct {
	id      string
	matchID string
	mode    trajectory.Mode
	g       config.Game
	terrain *terrain.Terrain
	players []*Player
	phase   Phase

	current       int // index into players
	turnSeq       int64
	turnStartedAt time.Time
	hintPausedAt  time.Time
	hintOwner     string

	shotSeq  int64
	shooter  *Player
	lastShot *protocol.ShotState

	startedAt time.Time
	winner    int

	sched     *Scheduler
	transport Transport
	recorder  MatchRecorder
	log       *log.Logger
}

// NewSession validates the roster, builds the terrain and places soldiers.
// The session stays in PhaseLobby until Start.
func NewSession(opts Options) (*Session, error) {
	if err := opts.Game.Validate(); err != nil {
		return nil, err
	}
	teams := map[int]bool{}
	seen := map[string]bool{}
	for _, ps := range opts.Players {
		if ps.Team != 1 && ps.Team != 2 {
			return nil, fmt.Errorf("game: player %q has invalid team %d", ps.ClientID, ps.Team)
		}
		if seen[ps.ClientID] {
			return nil, fmt.Errorf("game: duplicate player %q", ps.ClientID)
		}
		seen[ps.ClientID] = true
		teams[ps.Team] = true
	}
	if len(teams) < 2 {
		return nil, ErrNeedOpponents
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	t := opts.Terrain
	if t == nil {
		t = generateTerrain(rng, opts.Game)
	}

	s := &Session{
		id:        opts.ID,
		matchID:   uuid.NewString(),
		mode:      opts.Mode,
		g:         opts.Game,
		terrain:   t,
		phase:     PhaseLobby,
		sched:     NewScheduler(logger),
		transport: opts.Transport,
		recorder:  opts.Recorder,
		log:       logger,
	}
	var random []*Player
	for _, ps := range opts.Players {
		p := &Player{ClientID: ps.ClientID, Name: ps.Name, Team: ps.Team, IsBot: ps.IsBot}
		s.players = append(s.players, p)
		if pos, ok := opts.Soldiers[ps.ClientID]; ok && len(pos) > 0 {
			for _, at := range pos {
				p.Soldiers = append(p.Soldiers, &Soldier{Pos: at, Alive: true})
			}
			continue
		}
		random = append(random, p)
	}
	placeSoldiers(rng, s.terrain, s.g, random)
	return s, nil
}

func (s *Session) ID() string                { return s.id }
func (s *Session) MatchID() string           { return s.matchID }
func (s *Session) Phase() Phase              { return s.phase }
func (s *Session) Mode() trajectory.Mode     { return s.mode }
func (s *Session) Winner() int               { return s.winner }
func (s *Session) Terrain() *terrain.Terrain { return s.terrain }
func (s *Session) HintPaused() bool          { return !s.hintPausedAt.IsZero() }

// TurnHolder returns the acting player and soldier index.
func (s *Session) TurnHolder() (clientID string, soldier int) {
	if len(s.players) == 0 {
		return "", 0
	}
	p := s.players[s.current]
	return p.ClientID, p.Current
}

// Player returns the participant with clientID, or nil.
func (s *Session) Player(clientID string) *Player {
	for _, p := range s.players {
		if p.ClientID == clientID {
			return p
		}
	}
	return nil
}

// Start hands the first turn to the first player that has a soldier.
func (s *Session) Start(now time.Time) {
	if s.phase != PhaseLobby {
		return
	}
	s.startedAt = now
	s.current = len(s.players) - 1
	s.log.Printf("session started id=%s match=%s mode=%s players=%d", s.id, s.matchID, s.mode, len(s.players))
	s.advanceTurn(now, "start")
}

// Next reports when the earliest scheduled effect is due.
func (s *Session) Next() (time.Time, bool) {
	return s.sched.Next()
}

// RunDue applies every scheduled effect due at now.
func (s *Session) RunDue(now time.Time) int {
	return s.sched.RunDue(now, s.valid)
}

func (s *Session) valid(kind TimerKind, epoch int64) bool {
	if kind == TimerBotFire {
		return s.phase == PhasePlaying && epoch == s.turnSeq
	}
	return s.phase == PhaseAnimatingShot && epoch == s.shotSeq
}

// Fire commits a shot for the turn holder. Parse and simulation errors are
// returned unchanged and leave the turn untouched.
func (s *Session) Fire(clientID, fn string, now time.Time) error {
	p, err := s.turnHolder(clientID)
	if err != nil {
		return err
	}
	return s.fire(p, fn, now)
}

func (s *Session) fire(p *Player, fn string, now time.Time) error {
	sd := p.Soldiers[p.Current]
	res, err := shot.Simulate(shot.Request{
		Mode:     s.mode,
		Function: fn,
		Terrain:  s.terrain,
		Shooter:  s.target(p, p.Current),
		Targets:  s.livingTargets(),
		Angle:    sd.Angle,
		Game:     s.g,
	})
	if err != nil {
		return err
	}

	s.hintPausedAt, s.hintOwner = time.Time{}, ""
	s.phase = PhaseAnimatingShot
	s.shotSeq++
	epoch := s.shotSeq
	s.shooter = p
	p.Shots++
	p.shotKills = 0

	hits := res.EnemyHits(p.Team)
	s.lastShot = &protocol.ShotState{
		ShooterID: p.ClientID,
		Function:  res.Function,
		Mode:      s.mode.String(),
		FireAngle: res.FireAngle,
		StartedAt: now.UnixMilli(),
		Velocity:  s.g.FunctionVelocity,
		Explosion: res.Explosion,
		Hits:      hits,
		Path:      res.Path,
	}
	for _, h := range hits {
		h := h
		s.sched.Schedule(now.Add(shot.Offset(s.g, h.KillStep)), TimerKill, epoch, func(time.Time) {
			s.applyKill(p, h)
		})
	}
	carveAt := now.Add(shot.Offset(s.g, len(res.Path)))
	explosion := res.Explosion
	s.sched.Schedule(carveAt, TimerCarve, epoch, func(time.Time) { s.carve(explosion) })
	s.sched.Schedule(carveAt.Add(s.g.PostShotDelay), TimerAdvance, epoch, s.finishShot)

	s.log.Printf("shot fired session=%s client=%s function=%q points=%d hits=%d stop=%s",
		s.id, p.ClientID, fn, len(res.Path), len(hits), res.Stop)
	s.broadcast(protocol.MsgShot, s.lastShot)
	return nil
}

func (s *Session) applyKill(by *Player, h shot.Hit) {
	target := s.Player(h.TargetClientID)
	if target == nil || h.SoldierIndex >= len(target.Soldiers) {
		return
	}
	sd := target.Soldiers[h.SoldierIndex]
	if !sd.Alive {
		return
	}
	sd.Alive = false
	by.Kills++
	by.shotKills++
	s.broadcast(protocol.MsgKill, protocol.Kill{
		TargetClientID: target.ClientID,
		SoldierIndex:   h.SoldierIndex,
		ByClientID:     by.ClientID,
	})
}

func (s *Session) carve(explosion terrain.Circle) {
	s.terrain.AddHole(explosion)
	if s.lastShot != nil {
		s.lastShot.Path = nil
	}
	s.broadcastState()
}

func (s *Session) finishShot(now time.Time) {
	if p := s.shooter; p != nil && p.shotKills > p.BestMultiKill {
		p.BestMultiKill = p.shotKills
	}
	s.advanceTurn(now, "shot")
}

// SetAngle updates the acting soldier's launch angle.
func (s *Session) SetAngle(clientID string, angle float64) error {
	p, err := s.turnHolder(clientID)
	if err != nil {
		return err
	}
	if math.IsInf(angle, 0) || math.IsNaN(angle) {
		return fmt.Errorf("game: angle must be finite")
	}
	frame := trajectory.Params{MaxAngle: s.g.MaxAngle}
	p.Soldiers[p.Current].Angle = frame.ClampAngle(angle)
	s.broadcastState()
	return nil
}

// Surrender kills all of a player's soldiers.
func (s *Session) Surrender(clientID string, now time.Time) error {
	if s.phase == PhaseLobby || s.phase == PhaseOver {
		return ErrNotPlaying
	}
	p := s.Player(clientID)
	if p == nil {
		return ErrUnknownPlayer
	}
	s.eliminate(p, now, "surrender")
	return nil
}

// PlayerLeft treats a disconnect as a surrender.
func (s *Session) PlayerLeft(clientID string, now time.Time) {
	p := s.Player(clientID)
	if p == nil {
		return
	}
	p.Left = true
	if s.phase == PhaseLobby || s.phase == PhaseOver {
		return
	}
	s.eliminate(p, now, "left")
}

func (s *Session) eliminate(p *Player, now time.Time, reason string) {
	for _, sd := range p.Soldiers {
		sd.Alive = false
	}
	s.log.Printf("player eliminated session=%s client=%s reason=%s", s.id, p.ClientID, reason)
	if s.checkOver(now, reason) {
		return
	}
	if s.players[s.current] == p {
		s.advanceTurn(now, reason)
		return
	}
	s.broadcastState()
}

// Tick ends the turn once the limit has passed. A paused hint stops the
// clock.
func (s *Session) Tick(now time.Time) {
	if s.phase != PhasePlaying || s.HintPaused() {
		return
	}
	if now.Sub(s.turnStartedAt) > s.g.TurnTimeLimit {
		holder, _ := s.TurnHolder()
		s.log.Printf("turn timeout session=%s client=%s", s.id, holder)
		s.advanceTurn(now, "timeout")
	}
}

// advanceTurn passes the turn to the next player with a living soldier, or
// ends the match.
func (s *Session) advanceTurn(now time.Time, reason string) {
	if s.checkOver(now, reason) {
		return
	}
	n := len(s.players)
	for i := 1; i <= n; i++ {
		idx := (s.current + i) % n
		p := s.players[idx]
		if p.Left || p.aliveCount() == 0 {
			continue
		}
		s.beginTurn(idx, now, reason)
		return
	}
	s.finish(now, 0, reason)
}

func (s *Session) beginTurn(idx int, now time.Time, reason string) {
	p := s.players[idx]
	if j := p.upcoming(); j >= 0 {
		p.Current = j
	}
	p.hadTurn = true

	s.current = idx
	s.phase = PhasePlaying
	s.turnSeq++
	s.turnStartedAt = now
	s.hintPausedAt, s.hintOwner = time.Time{}, ""

	s.broadcast(protocol.MsgTurn, protocol.Turn{
		ClientID:     p.ClientID,
		SoldierIndex: p.Current,
		StartedAt:    now.UnixMilli(),
		TimeLimitMs:  s.g.TurnTimeLimit.Milliseconds(),
		Reason:       reason,
	})
	s.broadcastState()
	if p.IsBot {
		s.sched.Schedule(now.Add(s.g.BotDelay), TimerBotFire, s.turnSeq, s.botTurn)
	}
}

// checkOver finishes the match when at most one team still has a living
// soldier.
func (s *Session) checkOver(now time.Time, reason string) bool {
	if s.phase == PhaseOver {
		return true
	}
	teams := map[int]bool{}
	for _, p := range s.players {
		if !p.Left && p.aliveCount() > 0 {
			teams[p.Team] = true
		}
	}
	if len(teams) > 1 {
		return false
	}
	winner := 0
	for t := range teams {
		winner = t
	}
	s.finish(now, winner, reason)
	return true
}

func (s *Session) finish(now time.Time, winner int, reason string) {
	if s.phase == PhaseOver {
		return
	}
	s.phase = PhaseOver
	s.winner = winner
	s.sched.Cancel()
	s.hintPausedAt, s.hintOwner = time.Time{}, ""

	s.log.Printf("session over id=%s match=%s winner=%d reason=%s", s.id, s.matchID, winner, reason)
	s.broadcast(protocol.MsgGameOver, protocol.GameOver{
		WinnerTeam: winner,
		Reason:     reason,
		Stats:      s.stats(),
	})
	s.broadcastState()
	if s.recorder != nil {
		s.recorder.RecordMatch(s.results(now, reason))
	}
}

// BeginHint pauses the turn clock and returns a snapshot for the hint
// advisor together with the turn it belongs to.
func (s *Session) BeginHint(clientID string, now time.Time) (hint.Request, int64, error) {
	p, err := s.turnHolder(clientID)
	if err != nil {
		return hint.Request{}, 0, err
	}
	if p.IsBot {
		return hint.Request{}, 0, ErrBotHint
	}
	if s.HintPaused() {
		return hint.Request{}, 0, ErrHintBusy
	}
	target, ok := s.nearestEnemy(p)
	if !ok {
		return hint.Request{}, 0, ErrNotPlaying
	}
	s.hintPausedAt = now
	s.hintOwner = clientID
	s.broadcastState()

	return hint.Request{
		Mode:    s.mode,
		Terrain: s.terrain.Clone(),
		Shooter: s.target(p, p.Current),
		Angle:   p.Soldiers[p.Current].Angle,
		Target:  target,
		Targets: s.livingTargets(),
		Game:    s.g,
	}, s.turnSeq, nil
}

// EndHint resumes the clock, crediting the paused time to the turn, and
// delivers the hint. Results for a turn that already ended are dropped.
func (s *Session) EndHint(clientID string, turnSeq int64, resp hint.Response, now time.Time) bool {
	if turnSeq != s.turnSeq || s.hintOwner != clientID || !s.HintPaused() {
		s.log.Printf("hint dropped session=%s client=%s turn=%d current=%d", s.id, clientID, turnSeq, s.turnSeq)
		return false
	}
	s.turnStartedAt = s.turnStartedAt.Add(now.Sub(s.hintPausedAt))
	s.hintPausedAt, s.hintOwner = time.Time{}, ""

	s.send(clientID, protocol.MsgHint, protocol.Hint{
		Function: resp.Function,
		Source:   string(resp.Source),
		Attempts: resp.Attempts,
		Accepted: resp.Accepted,
	})
	s.broadcastState()
	return true
}

// HintProgress relays an attempt counter to the hint's requester.
func (s *Session) HintProgress(clientID string, turnSeq int64, attempt, max int) {
	if turnSeq != s.turnSeq || s.hintOwner != clientID {
		return
	}
	s.send(clientID, protocol.MsgHintProgress, protocol.HintProgress{Attempt: attempt, MaxAttempts: max})
}

func (s *Session) turnHolder(clientID string) (*Player, error) {
	if s.phase != PhasePlaying {
		return nil, ErrNotPlaying
	}
	p := s.Player(clientID)
	if p == nil {
		return nil, ErrUnknownPlayer
	}
	if s.players[s.current] != p {
		return nil, ErrNotYourTurn
	}
	return p, nil
}

func (s *Session) target(p *Player, soldier int) shot.Target {
	return shot.Target{ClientID: p.ClientID, Team: p.Team, Soldier: soldier, Pos: p.Soldiers[soldier].Pos}
}

func (s *Session) livingTargets() []shot.Target {
	var out []shot.Target
	for _, p := range s.players {
		for i, sd := range p.Soldiers {
			if sd.Alive {
				out = append(out, s.target(p, i))
			}
		}
	}
	return out
}

// nearestEnemy picks the living enemy soldier closest to p's acting soldier.
func (s *Session) nearestEnemy(p *Player) (shot.Target, bool) {
	from := p.Soldiers[p.Current].Pos
	var best shot.Target
	bestDist := math.Inf(1)
	for _, t := range s.livingTargets() {
		if t.Team == p.Team {
			continue
		}
		if d := from.Dist(t.Pos); d < bestDist {
			best, bestDist = t, d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}
