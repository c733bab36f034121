// Package game owns match state: turn rotation, shot commitment, timed kill
// and carve effects, bots, surrender, timeouts and win detection.
//
// A Session is a plain state machine. It starts no goroutines and is not
// safe for concurrent use; a Room actor drives it from a single goroutine
// and feeds it the current time, which keeps every transition deterministic
// under test.
package game

import (
	"context"
	"errors"
	"time"

	"github.com/MJE43/funcwar-server/internal/hint"
	"github.com/MJE43/funcwar-server/internal/terrain"
)

// Phase is the session state.
type Phase int

const (
	PhaseLobby Phase = iota
	PhasePlaying
	PhaseAnimatingShot
	PhaseOver
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhasePlaying:
		return "playing"
	case PhaseAnimatingShot:
		return "animating"
	case PhaseOver:
		return "over"
	}
	return "unknown"
}

var (
	ErrNotPlaying    = errors.New("game: not accepting actions right now")
	ErrNotYourTurn   = errors.New("game: not your turn")
	ErrUnknownPlayer = errors.New("game: unknown player")
	ErrHintBusy      = errors.New("game: hint already in progress")
	ErrBotHint       = errors.New("game: bots do not get hints")
	ErrNeedOpponents = errors.New("game: at least two teams are required")
)

type Soldier struct {
	Pos   terrain.Point
	Angle float64
	Alive bool
}

// Player is one participant. Current is the index of the soldier on turn,
// or of the one that acted last.
type Player struct {
	ClientID string
	Name     string
	Team     int
	IsBot    bool
	Left     bool
	Soldiers []*Soldier
	Current  int

	Kills         int
	Shots         int
	BestMultiKill int
	shotKills     int
	hadTurn       bool
}

// upcoming returns the soldier that acts on the player's next turn: the
// next living one after Current, or the first living one before any turn.
// It returns -1 when none is alive.
func (p *Player) upcoming() int {
	start := 0
	if p.hadTurn {
		start = p.Current + 1
	}
	for k := range p.Soldiers {
		j := (start + k) % len(p.Soldiers)
		if p.Soldiers[j].Alive {
			return j
		}
	}
	return -1
}

func (p *Player) aliveCount() int {
	n := 0
	for _, s := range p.Soldiers {
		if s.Alive {
			n++
		}
	}
	return n
}

// PlayerSpec describes a participant at session start.
type PlayerSpec struct {
	ClientID string
	Name     string
	Team     int
	IsBot    bool
}

// Transport delivers encoded protocol messages to the clients of a session.
type Transport interface {
	Send(sessionID, clientID string, msg []byte)
	Broadcast(sessionID string, msg []byte)
}

// MatchResult is one participant's record of a finished match.
type MatchResult struct {
	MatchID       string
	SessionID     string
	Mode          string
	ClientID      string
	Name          string
	Team          int
	IsBot         bool
	Won           bool
	Kills         int
	Shots         int
	BestMultiKill int
	Reason        string
	StartedAt     time.Time
	EndedAt       time.Time
}

// MatchRecorder persists finished matches. Implementations must not block
// the caller for long.
type MatchRecorder interface {
	RecordMatch(results []MatchResult)
}

// Hinter produces hints. *hint.Advisor implements it.
type Hinter interface {
	Generate(ctx context.Context, req hint.Request) hint.Response
}
