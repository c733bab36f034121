package game

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/funcwar-server/internal/config"
	"github.com/MJE43/funcwar-server/internal/function"
	"github.com/MJE43/funcwar-server/internal/hint"
	"github.com/MJE43/funcwar-server/internal/protocol"
	"github.com/MJE43/funcwar-server/internal/shot"
	"github.com/MJE43/funcwar-server/internal/terrain"
	"github.com/MJE43/funcwar-server/internal/trajectory"
)

type sent struct {
	to  string // empty for broadcasts
	env protocol.Envelope
}

type fakeTransport struct {
	msgs []sent
}

func (f *fakeTransport) Send(_, clientID string, msg []byte) {
	env, _ := protocol.DecodeEnvelope(msg)
	f.msgs = append(f.msgs, sent{to: clientID, env: env})
}

func (f *fakeTransport) Broadcast(_ string, msg []byte) {
	env, _ := protocol.DecodeEnvelope(msg)
	f.msgs = append(f.msgs, sent{env: env})
}

func (f *fakeTransport) of(t string) []sent {
	var out []sent
	for _, m := range f.msgs {
		if m.env.T == t {
			out = append(out, m)
		}
	}
	return out
}

type fakeRecorder struct {
	results [][]MatchResult
}

func (f *fakeRecorder) RecordMatch(r []MatchResult) { f.results = append(f.results, r) }

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// A stands at (100, 300); B0 sits at local (10, 4) from A's first soldier.
func newTestSession(t *testing.T, mode trajectory.Mode, extra ...PlayerSpec) (*Session, *fakeTransport, *fakeRecorder) {
	t.Helper()
	g := config.DefaultGame()
	tr := &fakeTransport{}
	rec := &fakeRecorder{}
	players := append([]PlayerSpec{
		{ClientID: "A", Name: "alice", Team: 1},
		{ClientID: "B", Name: "bob", Team: 2},
	}, extra...)
	soldiers := map[string][]terrain.Point{
		"A": {{X: 100, Y: 300}, {X: 100, Y: 200}},
		"B": {{X: 254, Y: 238.4}, {X: 600, Y: 200}},
		"C": {{X: 60, Y: 400}, {X: 60, Y: 100}},
	}
	s, err := NewSession(Options{
		ID:        "ROOM01",
		Mode:      mode,
		Game:      g,
		Players:   players,
		Terrain:   terrain.New(g.PlaneWidth, g.PlaneHeight, nil),
		Soldiers:  soldiers,
		Transport: tr,
		Recorder:  rec,
	})
	require.NoError(t, err)
	return s, tr, rec
}

// drain runs every scheduled effect in order and returns the time of the
// last one.
func drain(s *Session, from time.Time) time.Time {
	now := from
	for {
		at, ok := s.Next()
		if !ok {
			return now
		}
		if at.After(now) {
			now = at
		}
		s.RunDue(now)
	}
}

func holder(s *Session) string {
	id, _ := s.TurnHolder()
	return id
}

func TestNewSessionValidation(t *testing.T) {
	g := config.DefaultGame()
	_, err := NewSession(Options{Game: g, Players: []PlayerSpec{{ClientID: "A", Team: 1}, {ClientID: "B", Team: 1}}})
	assert.ErrorIs(t, err, ErrNeedOpponents)

	_, err = NewSession(Options{Game: g, Players: []PlayerSpec{{ClientID: "A", Team: 1}, {ClientID: "B", Team: 3}}})
	assert.Error(t, err)

	_, err = NewSession(Options{Game: g, Players: []PlayerSpec{{ClientID: "A", Team: 1}, {ClientID: "A", Team: 2}}})
	assert.Error(t, err)
}

func TestRandomPlacementKeepsSides(t *testing.T) {
	g := config.DefaultGame()
	s, err := NewSession(Options{
		Game:    g,
		Seed:    7,
		Players: []PlayerSpec{{ClientID: "A", Team: 1}, {ClientID: "B", Team: 2}},
	})
	require.NoError(t, err)
	for _, p := range s.players {
		require.Len(t, p.Soldiers, g.SoldiersPerPlayer)
		for _, sd := range p.Soldiers {
			assert.False(t, s.terrain.Solid(sd.Pos), "soldier inside terrain at %+v", sd.Pos)
			if p.Team == 1 {
				assert.Less(t, sd.Pos.X, g.PlaneWidth/2)
			} else {
				assert.Greater(t, sd.Pos.X, g.PlaneWidth/2)
			}
		}
	}
}

func TestTurnRotation(t *testing.T) {
	s, tr, _ := newTestSession(t, trajectory.Normal)
	s.Start(t0)
	require.Equal(t, PhasePlaying, s.Phase())
	id, soldier := s.TurnHolder()
	assert.Equal(t, "A", id)
	assert.Equal(t, 0, soldier)
	require.Len(t, tr.of(protocol.MsgTurn), 1)

	require.NoError(t, s.Fire("A", "0", t0))
	assert.Equal(t, PhaseAnimatingShot, s.Phase())
	assert.ErrorIs(t, s.Fire("A", "0", t0), ErrNotPlaying)

	now := drain(s, t0)
	id, soldier = s.TurnHolder()
	assert.Equal(t, "B", id)
	assert.Equal(t, 0, soldier)

	require.NoError(t, s.Fire("B", "0", now))
	drain(s, now)
	id, soldier = s.TurnHolder()
	assert.Equal(t, "A", id)
	assert.Equal(t, 1, soldier, "soldiers rotate between turns")
	assert.Len(t, tr.of(protocol.MsgTurn), 3)
	assert.Len(t, s.terrain.Holes, 2)
}

func TestFullRoundReturnsToFirstPlayer(t *testing.T) {
	s, _, _ := newTestSession(t, trajectory.Normal)
	s.Start(t0)
	living := 0
	for _, p := range s.players {
		living += p.aliveCount()
	}
	require.Equal(t, 4, living)

	var order []string
	for i := 0; i < living; i++ {
		s.advanceTurn(t0, "test")
		id, soldier := s.TurnHolder()
		order = append(order, fmt.Sprintf("%s%d", id, soldier))
	}
	assert.Equal(t, []string{"B0", "A1", "B1", "A0"}, order)
	assert.Equal(t, PhasePlaying, s.Phase())
}

func TestStateSkipsDeadSoldierBetweenTurns(t *testing.T) {
	s, _, _ := newTestSession(t, trajectory.Normal)
	s.Start(t0)
	require.NoError(t, s.Fire("A", "0.4*x", t0))
	h := s.lastShot.Hits[0]
	s.RunDue(t0.Add(shot.Offset(s.g, h.KillStep)))
	require.False(t, s.Player("B").Soldiers[0].Alive)

	// Still A's shot; B's next soldier is already the living one.
	st := s.State()
	assert.Equal(t, 0, st.Players[0].CurrentSoldier)
	assert.Equal(t, 1, st.Players[1].CurrentSoldier)

	s.Player("B").Soldiers[1].Alive = false
	assert.Equal(t, -1, s.State().Players[1].CurrentSoldier)
}

func TestFireErrorsKeepTurn(t *testing.T) {
	s, tr, _ := newTestSession(t, trajectory.Normal)
	s.Start(t0)

	err := s.Fire("A", "sin(", t0)
	var malformed *function.MalformedFunctionError
	assert.True(t, errors.As(err, &malformed))

	assert.ErrorIs(t, s.Fire("A", "1/x", t0), shot.ErrInvalidShot)
	assert.ErrorIs(t, s.Fire("B", "0", t0), ErrNotYourTurn)
	assert.ErrorIs(t, s.Fire("Z", "0", t0), ErrUnknownPlayer)

	assert.Equal(t, PhasePlaying, s.Phase())
	assert.Equal(t, "A", holder(s))
	assert.Empty(t, tr.of(protocol.MsgShot))
	assert.Equal(t, 0, s.Player("A").Shots)
}

func TestKillIsTimedToThePath(t *testing.T) {
	s, tr, _ := newTestSession(t, trajectory.Normal)
	s.Start(t0)
	require.NoError(t, s.Fire("A", "0.4*x", t0))

	require.NotNil(t, s.lastShot)
	require.Len(t, s.lastShot.Hits, 1)
	h := s.lastShot.Hits[0]
	assert.Equal(t, "B", h.TargetClientID)
	assert.Equal(t, 0, h.SoldierIndex)

	killAt := t0.Add(shot.Offset(s.g, h.KillStep))
	s.RunDue(killAt.Add(-time.Millisecond))
	assert.True(t, s.Player("B").Soldiers[0].Alive)
	s.RunDue(killAt)
	assert.False(t, s.Player("B").Soldiers[0].Alive)
	require.Len(t, tr.of(protocol.MsgKill), 1)
	assert.Empty(t, s.terrain.Holes, "carve waits for the full path")

	drain(s, killAt)
	assert.Len(t, s.terrain.Holes, 1)
	assert.Nil(t, s.lastShot.Path)
	a := s.Player("A")
	assert.Equal(t, 1, a.Kills)
	assert.Equal(t, 1, a.BestMultiKill)
	// B0 is dead, so B acts with its other soldier.
	id, soldier := s.TurnHolder()
	assert.Equal(t, "B", id)
	assert.Equal(t, 1, soldier)
}

func TestFriendlyFireIsIgnored(t *testing.T) {
	g := config.DefaultGame()
	frame := shot.Frame(g, shot.Target{Team: 1, Pos: terrain.Point{X: 100, Y: 300}}, 0)
	s, _, _ := newTestSession(t, trajectory.Normal)
	s.Player("A").Soldiers[1].Pos = frame.ToWorld(5, 2)

	s.Start(t0)
	require.NoError(t, s.Fire("A", "0.4*x", t0))
	for _, h := range s.lastShot.Hits {
		assert.NotEqual(t, 1, h.Team)
	}
	drain(s, t0)
	assert.True(t, s.Player("A").Soldiers[1].Alive)
	assert.True(t, s.Player("A").Soldiers[0].Alive)
	assert.False(t, s.Player("B").Soldiers[0].Alive)
}

func TestStaleShotEffectsAreDropped(t *testing.T) {
	s, tr, _ := newTestSession(t, trajectory.Normal, PlayerSpec{ClientID: "C", Name: "carol", Team: 1})
	s.Start(t0)
	require.NoError(t, s.Fire("A", "0.4*x", t0))

	// The shooter gives up mid-flight; team 1 lives on through C.
	require.NoError(t, s.Surrender("A", t0.Add(10*time.Millisecond)))
	assert.Equal(t, PhasePlaying, s.Phase())
	assert.Equal(t, "B", holder(s))

	drain(s, t0)
	assert.True(t, s.Player("B").Soldiers[0].Alive)
	assert.Empty(t, tr.of(protocol.MsgKill))
	assert.Empty(t, s.terrain.Holes)
	assert.Equal(t, "B", holder(s))
}

func TestSurrenderEndsMatch(t *testing.T) {
	s, tr, rec := newTestSession(t, trajectory.Normal)
	s.Start(t0)
	require.NoError(t, s.Fire("A", "0.4*x", t0))
	now := drain(s, t0)

	require.NoError(t, s.Surrender("B", now))
	assert.Equal(t, PhaseOver, s.Phase())
	assert.Equal(t, 1, s.Winner())
	assert.ErrorIs(t, s.Surrender("B", now), ErrNotPlaying)
	assert.ErrorIs(t, s.Fire("A", "0", now), ErrNotPlaying)
	_, pending := s.Next()
	assert.False(t, pending)

	over := tr.of(protocol.MsgGameOver)
	require.Len(t, over, 1)
	payload, err := protocol.DecodePayload[protocol.GameOver](over[0].env)
	require.NoError(t, err)
	assert.Equal(t, 1, payload.WinnerTeam)
	assert.Equal(t, "surrender", payload.Reason)

	require.Len(t, rec.results, 1)
	results := rec.results[0]
	require.Len(t, results, 2)
	byID := map[string]MatchResult{}
	for _, r := range results {
		byID[r.ClientID] = r
		assert.Equal(t, s.MatchID(), r.MatchID)
		assert.Equal(t, t0, r.StartedAt)
	}
	assert.True(t, byID["A"].Won)
	assert.Equal(t, 1, byID["A"].Kills)
	assert.Equal(t, 1, byID["A"].Shots)
	assert.False(t, byID["B"].Won)
}

func TestLastEnemyKilledEndsMatch(t *testing.T) {
	s, _, rec := newTestSession(t, trajectory.Normal)
	s.Player("B").Soldiers = s.Player("B").Soldiers[:1]
	s.Start(t0)
	require.NoError(t, s.Fire("A", "0.4*x", t0))
	assert.Equal(t, PhaseAnimatingShot, s.Phase(), "the match ends only after the shot plays out")
	drain(s, t0)
	assert.Equal(t, PhaseOver, s.Phase())
	assert.Equal(t, 1, s.Winner())
	require.Len(t, rec.results, 1)
}

func TestPlayerLeftPassesTurn(t *testing.T) {
	s, _, _ := newTestSession(t, trajectory.Normal, PlayerSpec{ClientID: "C", Name: "carol", Team: 1})
	s.Start(t0)
	s.PlayerLeft("A", t0)
	assert.Equal(t, "B", holder(s))
	assert.True(t, s.Player("A").Left)

	s.PlayerLeft("C", t0)
	assert.Equal(t, PhaseOver, s.Phase())
	assert.Equal(t, 2, s.Winner())
}

func TestTimeoutAndHintPause(t *testing.T) {
	s, tr, _ := newTestSession(t, trajectory.Normal)
	limit := s.g.TurnTimeLimit
	s.Start(t0)

	s.Tick(t0.Add(limit / 2))
	assert.Equal(t, "A", holder(s))

	req, seq, err := s.BeginHint("A", t0.Add(10*time.Second))
	require.NoError(t, err)
	assert.True(t, s.HintPaused())
	assert.Equal(t, "B", req.Target.ClientID)
	assert.Equal(t, 0, req.Target.Soldier)
	_, _, err = s.BeginHint("A", t0.Add(11*time.Second))
	assert.ErrorIs(t, err, ErrHintBusy)

	// Paused: no timeout even long after the limit.
	s.Tick(t0.Add(limit + 30*time.Second))
	assert.Equal(t, "A", holder(s))

	s.HintProgress("A", seq, 1, 4)
	require.True(t, s.EndHint("A", seq, hint.Response{Function: "0.4*x", Source: hint.SourceSearch, Accepted: true}, t0.Add(40*time.Second)))
	assert.False(t, s.HintPaused())

	hints := tr.of(protocol.MsgHint)
	require.Len(t, hints, 1)
	assert.Equal(t, "A", hints[0].to)
	assert.Len(t, tr.of(protocol.MsgHintProgress), 1)

	// 30s of pause were credited: the turn now ends at t0+limit+30s.
	s.Tick(t0.Add(limit + 29*time.Second))
	assert.Equal(t, "A", holder(s))
	s.Tick(t0.Add(limit + 31*time.Second))
	assert.Equal(t, "B", holder(s))

	turns := tr.of(protocol.MsgTurn)
	last, err := protocol.DecodePayload[protocol.Turn](turns[len(turns)-1].env)
	require.NoError(t, err)
	assert.Equal(t, "timeout", last.Reason)
}

func TestStaleHintIsDropped(t *testing.T) {
	s, tr, _ := newTestSession(t, trajectory.Normal)
	s.Start(t0)
	_, seq, err := s.BeginHint("A", t0)
	require.NoError(t, err)
	require.NoError(t, s.Fire("A", "0", t0.Add(time.Second)))
	assert.False(t, s.HintPaused())

	assert.False(t, s.EndHint("A", seq, hint.Response{Function: "0"}, t0.Add(2*time.Second)))
	assert.Empty(t, tr.of(protocol.MsgHint))
}

func TestSetAngle(t *testing.T) {
	s, _, _ := newTestSession(t, trajectory.SecondOrderODE)
	s.Start(t0)
	require.NoError(t, s.SetAngle("A", 10))
	assert.Equal(t, s.g.MaxAngle, s.Player("A").Soldiers[0].Angle)
	assert.ErrorIs(t, s.SetAngle("B", 0.2), ErrNotYourTurn)

	require.NoError(t, s.SetAngle("A", 0.3))
	require.NoError(t, s.Fire("A", "0", t0))
	assert.InDelta(t, 0.3, s.lastShot.FireAngle, 1e-12)
}

func TestBotTakesItsTurn(t *testing.T) {
	g := config.DefaultGame()
	tr := &fakeTransport{}
	s, err := NewSession(Options{
		ID:      "BOT",
		Mode:    trajectory.Normal,
		Game:    g,
		Terrain: terrain.New(g.PlaneWidth, g.PlaneHeight, nil),
		Players: []PlayerSpec{
			{ClientID: "A", Name: "alice", Team: 1},
			{ClientID: "bot", Name: "Bot", Team: 2, IsBot: true},
		},
		Soldiers: map[string][]terrain.Point{
			"A":   {{X: 100, Y: 300}, {X: 100, Y: 100}},
			"bot": {{X: 600, Y: 300}, {X: 650, Y: 100}},
		},
		Transport: tr,
	})
	require.NoError(t, err)
	s.Start(t0)

	_, _, err = s.BeginHint("bot", t0)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	// Straight into the ground, clear of the bot's soldiers.
	require.NoError(t, s.Fire("A", "-x", t0))
	now := drain(s, t0)

	bot := s.Player("bot")
	assert.Equal(t, 1, bot.Shots)
	assert.False(t, s.Player("A").Soldiers[0].Alive, "flat baseline shot lands on A's first soldier")
	assert.Equal(t, 1, bot.Kills)
	id, soldier := s.TurnHolder()
	assert.Equal(t, "A", id)
	assert.Equal(t, 1, soldier)
	assert.False(t, now.Before(t0.Add(g.BotDelay)))
}

func TestBotSecondOrderTiltsAngle(t *testing.T) {
	g := config.DefaultGame()
	s, err := NewSession(Options{
		Mode:    trajectory.SecondOrderODE,
		Game:    g,
		Terrain: terrain.New(g.PlaneWidth, g.PlaneHeight, nil),
		Players: []PlayerSpec{
			{ClientID: "bot", Team: 1, IsBot: true},
			{ClientID: "B", Team: 2},
		},
		Soldiers: map[string][]terrain.Point{
			"bot": {{X: 100, Y: 300}},
			"B":   {{X: 254, Y: 238.4}},
		},
	})
	require.NoError(t, err)
	s.Start(t0)
	drain(s, t0)
	assert.Greater(t, s.Player("bot").Soldiers[0].Angle, 0.0)
	assert.Equal(t, PhaseOver, s.Phase())
	assert.Equal(t, 1, s.Winner())
}

func TestStateSnapshot(t *testing.T) {
	s, _, _ := newTestSession(t, trajectory.FirstOrderODE)
	s.Start(t0)
	st := s.State()
	assert.Equal(t, "ROOM01", st.Room)
	assert.Equal(t, "playing", st.Phase)
	assert.Equal(t, "ode1", st.Mode)
	assert.Equal(t, "A", st.CurrentTurn)
	assert.Equal(t, t0.UnixMilli(), st.TurnStartedAt)
	require.Len(t, st.Players, 2)
	assert.Len(t, st.Players[1].Soldiers, 2)
	assert.Nil(t, st.LastShot)
}
